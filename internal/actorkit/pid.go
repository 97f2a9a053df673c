package actorkit

// PID is a unique reference to a running actor. It carries a human-readable
// tag so log lines can show what an actor is for ("conversation-7",
// "conn-a3f1") instead of an opaque counter.
type PID struct {
	ID string
}

func (pid *PID) String() string {
	if pid == nil {
		return "<nil>"
	}
	return pid.ID
}
