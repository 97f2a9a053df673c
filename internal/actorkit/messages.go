package actorkit

// Started is delivered once an actor's goroutine is running, before any
// user message.
type Started struct{}

// Stopping is delivered when the engine begins tearing an actor down. No
// user messages are delivered after it.
type Stopping struct{}

// Stopped is the final message delivered to an actor, just before its
// goroutine exits.
type Stopped struct{}

// messageEnvelope wraps a user message with the PID of whoever sent it, if
// known.
type messageEnvelope struct {
	Sender  *PID
	Message interface{}
}
