package game

import "errors"

// Domain errors returned by Conversation methods. The server connection
// engine sends TURN and MOVE_TILE requests without waiting for a reply, so
// none of these errors reaches the wire or the server log: a mis-authorized
// TURN or an out-of-play MOVE_TILE simply has no effect.
var (
	ErrUnknownPlayer   = errors.New("game: unknown or disconnected player")
	ErrNotYourTurn     = errors.New("game: player does not hold next-turn")
	ErrShoutInProgress = errors.New("game: conversation is currently shouting")
	ErrTileNotInPlay   = errors.New("Player tried to move a tile that is not in play")
)
