package actorkit

// Producer builds one Actor instance. The engine calls it exactly once per
// Spawn, from the actor's own goroutine.
type Producer func() Actor

// Props configures how an actor is constructed. It is deliberately small —
// this engine has no supervision strategy or routing config, just a
// producer — mirroring the single-process, single-conversation-per-actor
// shape the connection and conversation engines need.
type Props struct {
	producer Producer
}

// NewProps wraps a Producer in a Props.
func NewProps(producer Producer) *Props {
	if producer == nil {
		panic("actorkit: producer cannot be nil")
	}
	return &Props{producer: producer}
}

func (p *Props) produce() Actor {
	return p.producer()
}
