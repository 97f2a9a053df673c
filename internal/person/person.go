// Package person tracks the binding between a wire-level person id and the
// player seat, conversation, and message-offset it owns across reconnects.
package person

import (
	"github.com/vsxgame/vsxserver/internal/actorkit"
)

// SilenceWindowMicros is how long a person may go without sending any
// command before the registry's sweep considers it abandoned.
const SilenceWindowMicros = 5 * 60 * 1_000_000

// Person binds a person id to the seat it holds in one conversation. A
// reconnecting client presents the same id and resumes exactly this binding
// rather than getting a fresh seat.
type Person struct {
	ID              uint64
	ConversationID  uint64
	ConversationPID *actorkit.PID
	PlayerNum       uint8
	MessageOffset   int
	LastNoiseMicro  int64
}
