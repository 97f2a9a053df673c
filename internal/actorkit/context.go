package actorkit

// Context is everything an Actor's Receive needs to act on an incoming
// message: who sent it, who it is, and a handle back to the engine so it
// can send to other actors or spawn children.
type Context interface {
	Engine() *Engine
	Self() *PID
	Sender() *PID
	Message() interface{}
}

type context struct {
	engine  *Engine
	self    *PID
	sender  *PID
	message interface{}
}

func (c *context) Engine() *Engine      { return c.engine }
func (c *context) Self() *PID           { return c.self }
func (c *context) Sender() *PID         { return c.sender }
func (c *context) Message() interface{} { return c.message }

// Actor processes messages delivered to its mailbox strictly one at a time,
// in delivery order. There is no shared mutable state between actors; all
// cross-actor communication goes through Engine.Send.
type Actor interface {
	Receive(ctx Context)
}
