package clientconn

// EventKind classifies what changed and is worth telling an embedder about.
type EventKind int

const (
	EventHeader EventKind = iota
	EventConversationID
	EventNTilesChanged
	EventLanguageChanged
	EventPlayerNameChanged
	EventPlayerFlagsChanged
	EventTileChanged
	EventMessage
	EventPlayerShouted
	EventEnd
	EventPollChanged
	EventRunningStateChanged
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventHeader:
		return "header"
	case EventConversationID:
		return "conversation_id"
	case EventNTilesChanged:
		return "n_tiles_changed"
	case EventLanguageChanged:
		return "language_changed"
	case EventPlayerNameChanged:
		return "player_name_changed"
	case EventPlayerFlagsChanged:
		return "player_flags_changed"
	case EventTileChanged:
		return "tile_changed"
	case EventMessage:
		return "message"
	case EventPlayerShouted:
		return "player_shouted"
	case EventEnd:
		return "end"
	case EventPollChanged:
		return "poll_changed"
	case EventRunningStateChanged:
		return "running_state_changed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the single type published on Connection.Events(). Only the
// fields relevant to Kind are populated. Synced marks state-carrying
// events (header, conversation_id, n_tiles_changed, ...) that arrived
// inside a SYNC-bounded batch from the server, as opposed to one that
// landed mid-batch and may still be followed by more changes from the
// same server turn.
type Event struct {
	Kind EventKind

	Synced bool

	State State

	PersonID  uint64
	PlayerNum uint8

	ConversationID uint64
	NTiles         int
	Language       string

	PlayerName  string
	PlayerFlags uint8

	TileNum      uint8
	TileX, TileY int16
	TileLetter   string
	LastPlayer   uint8

	MessagePlayerNum uint8
	MessageText      string

	ShoutedBy uint8

	Err error
}
