// Package wire implements the binary command protocol and the RFC-6455
// subset of WebSocket framing that carries it. Both codecs are hand-rolled:
// the command vocabulary and frame rules here are a fixed wire contract,
// not a general-purpose WebSocket implementation, so wrapping an existing
// library would mean fighting its abstractions rather than using them (see
// DESIGN.md).
package wire

// Command is the one-byte opcode that leads every command payload.
type Command uint8

// Server-to-client commands.
const (
	PlayerID           Command = 0x00
	Message            Command = 0x01
	NTiles             Command = 0x02
	Tile               Command = 0x03
	PlayerName         Command = 0x04
	PlayerFlags        Command = 0x05
	PlayerShouted      Command = 0x06
	Sync               Command = 0x07
	End                Command = 0x08
	BadPlayerID        Command = 0x09
	ConversationID     Command = 0x0A
	BadConversationID  Command = 0x0B
	Language           Command = 0x0C
	ConversationFull   Command = 0x0D
)

// Client-to-server commands.
const (
	NewPlayer       Command = 0x80
	Reconnect       Command = 0x81
	KeepAlive       Command = 0x83
	Leave           Command = 0x84
	SendMessage     Command = 0x85
	StartTyping     Command = 0x86
	StopTyping      Command = 0x87
	MoveTile        Command = 0x88
	Turn            Command = 0x89
	Shout           Command = 0x8A
	SetNTiles       Command = 0x8B
	NewPrivateGame  Command = 0x8C
	JoinGame        Command = 0x8D
	SetLanguage     Command = 0x8E
)

// names gives each opcode a lowercase label used in error messages, e.g.
// "The server sent an invalid player_id command".
var names = map[Command]string{
	PlayerID:          "player_id",
	Message:           "message",
	NTiles:            "n_tiles",
	Tile:              "tile",
	PlayerName:        "player_name",
	PlayerFlags:       "player_flags",
	PlayerShouted:     "player_shouted",
	Sync:              "sync",
	End:               "end",
	BadPlayerID:       "bad_player_id",
	ConversationID:    "conversation_id",
	BadConversationID: "bad_conversation_id",
	Language:          "language",
	ConversationFull:  "conversation_full",
	NewPlayer:         "new_player",
	Reconnect:         "reconnect",
	KeepAlive:         "keep_alive",
	Leave:             "leave",
	SendMessage:       "send_message",
	StartTyping:       "start_typing",
	StopTyping:        "stop_typing",
	MoveTile:          "move_tile",
	Turn:              "turn",
	Shout:             "shout",
	SetNTiles:         "set_n_tiles",
	NewPrivateGame:    "new_private_game",
	JoinGame:          "join_game",
	SetLanguage:       "set_language",
}

// Name returns the lowercase label for c, or "unknown" if c isn't in the
// vocabulary.
func (c Command) Name() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "unknown"
}

// Player flag bits for PLAYER_FLAGS.
const (
	FlagConnected uint8 = 1 << 0
	FlagTyping    uint8 = 1 << 1
	FlagNextTurn  uint8 = 1 << 2
)

// MaxPayloadSize is the largest payload (header excluded) this protocol
// will ever send or accept.
const MaxPayloadSize = 1024

// MaxControlFramePayload bounds WebSocket control frame payloads.
const MaxControlFramePayload = 125

// MaxNameLength bounds normalized player/room names.
const MaxNameLength = 256

// MaxMessageBytes bounds a single chat message after UTF-8-safe clipping.
const MaxMessageBytes = 1000
