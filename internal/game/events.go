package game

// EventKind enumerates the kinds of change a Conversation can broadcast.
// Every connection following a conversation receives each event exactly
// once, in the order the conversation applied it, via direct synchronous
// listener callbacks from inside the conversation actor's own mailbox
// drain, which is what gives the ordering guarantee without a lock.
type EventKind int

const (
	EventPlayerJoined EventKind = iota
	EventPlayerName
	EventPlayerFlags
	EventPlayerShouted
	EventTile
	EventNTiles
	EventLanguage
	EventMessage
	EventConversationStarted
	EventEnded
)

// Event carries enough detail for a listener to know which dirty bit(s) to
// set.
type Event struct {
	Kind        EventKind
	PlayerNum   uint8
	TileNum     uint8
	MessageIdx  int
	MessageText string
}

// Listener receives conversation change events. Implemented by the server
// connection engine (internal/serverconn) for every connection following a
// conversation. Snap is a fresh snapshot taken at the moment of the event,
// since a listener living in its own actor has no safe way to re-read the
// conversation's fields directly once the call returns.
type Listener interface {
	OnConversationEvent(ev Event, snap Snapshot)
}

func (c *Conversation) notify(ev Event) {
	if len(c.listeners) == 0 {
		return
	}
	snap := c.snapshot()
	for _, l := range c.listeners {
		l.OnConversationEvent(ev, snap)
	}
}

// AddListener registers l to receive future events. It does not replay
// history — the caller is expected to have already primed the listener's
// dirty bits from the conversation's current state at bind time.
func (c *Conversation) AddListener(l Listener) {
	c.listeners = append(c.listeners, l)
}

// RemoveListener unregisters l.
func (c *Conversation) RemoveListener(l Listener) {
	for i, existing := range c.listeners {
		if existing == l {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}
