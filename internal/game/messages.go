package game

import "github.com/vsxgame/vsxserver/internal/actorkit"

// Message types exchanged with a ConversationActor. Request messages name
// the requesting player explicitly rather than relying on sender identity,
// since the sender is the connection actor, not the player seat itself.

// FollowRequest registers replyTo to receive ConversationEventMsg for
// every future change, and primes it with the conversation's current
// snapshot so it can mark every relevant dirty bit immediately at bind
// time.
type FollowRequest struct {
	ReplyTo *actorkit.PID
}

// FollowResponse answers a FollowRequest (or a JoinRequest/creation path)
// with a read-only snapshot of conversation state at the moment of
// binding.
type FollowResponse struct {
	Snapshot Snapshot
}

// UnfollowRequest stops delivery of ConversationEventMsg to replyTo.
type UnfollowRequest struct {
	ReplyTo *actorkit.PID
}

// ConversationEventMsg wraps one Event plus a snapshot taken at the moment
// of the event, forwarded to every follower.
type ConversationEventMsg struct {
	Event    Event
	Snapshot Snapshot
}

// JoinRequest asks the conversation to seat a new player named Name,
// replying with JoinResponse.
type JoinRequest struct {
	Name    string
	ReplyTo *actorkit.PID
}

// JoinResponse carries the new seat's player number and a snapshot, or
// Full == true if the conversation was already at MaxPlayers.
type JoinResponse struct {
	PlayerNum uint8
	Snapshot  Snapshot
	Full      bool
}

// DisconnectRequest marks PlayerNum as no longer connected.
type DisconnectRequest struct{ PlayerNum uint8 }

// SetTypingRequest toggles PlayerNum's typing flag.
type SetTypingRequest struct {
	PlayerNum uint8
	Typing    bool
}

// SendMessageRequest appends Text to the chat log under PlayerNum.
type SendMessageRequest struct {
	PlayerNum uint8
	Text      string
}

// TurnRequest asks the conversation to turn the next tile for PlayerNum,
// replying with TurnResponse.
type TurnRequest struct {
	PlayerNum uint8
	ReplyTo   *actorkit.PID
}

// TurnResponse carries the authorization outcome of a TurnRequest.
type TurnResponse struct{ Err error }

// MoveTileRequest asks the conversation to relocate TileNum, replying with
// MoveTileResponse.
type MoveTileRequest struct {
	PlayerNum uint8
	TileNum   uint8
	X, Y      int16
	ReplyTo   *actorkit.PID
}

// MoveTileResponse carries the authorization outcome of a MoveTileRequest.
type MoveTileResponse struct{ Err error }

// ShoutRequest asks the conversation to record a shout from PlayerNum.
type ShoutRequest struct{ PlayerNum uint8 }

// SetNTilesRequest asks the conversation to change its deck size.
type SetNTilesRequest struct{ N int }

// SetLanguageRequest asks the conversation to change its tile set.
type SetLanguageRequest struct {
	PlayerNum uint8
	Code      string
}

// ConnectedCountRequest asks how many seats are currently connected,
// replying with ConnectedCountResponse. The registry polls this after a
// DisconnectRequest to decide whether to reap the conversation.
type ConnectedCountRequest struct{ ReplyTo *actorkit.PID }

// ConnectedCountResponse answers a ConnectedCountRequest.
type ConnectedCountResponse struct{ Count int }

// MessageRangeRequest asks the conversation for every logged message from
// FromIdx onward, replying with MessageRangeResponse. Used to deliver chat
// backlog on RECONNECT, since message_offset may leave a gap between what a
// reconnecting client already has and what the log currently holds.
type MessageRangeRequest struct {
	FromIdx int
	ReplyTo *actorkit.PID
}

// MessageRangeResponse answers a MessageRangeRequest. Total is the
// conversation's true message count at the time of the reply, independent
// of FromIdx/len(Messages) — a caller needs this to tell a FromIdx that
// legitimately starts at the end of the log apart from one that claims more
// messages than the log actually holds.
type MessageRangeResponse struct {
	Messages []Message
	FromIdx  int
	Total    int
}

// Snapshot is a read-only copy of conversation state a new follower needs
// to prime its dirty bits: player identities/flags and every in-play tile.
type Snapshot struct {
	ID           uint64
	Language     string
	TotalNTiles  int
	NTilesInPlay int
	Players      []Player
	Tiles        []Tile
	MessageCount int
}

func (c *Conversation) snapshot() Snapshot {
	players := make([]Player, len(c.Players))
	for i, p := range c.Players {
		players[i] = *p
	}
	tiles := make([]Tile, c.NTilesInPlay)
	for i := 0; i < c.NTilesInPlay; i++ {
		tiles[i] = *c.Tiles[i]
	}
	return Snapshot{
		ID:           c.ID,
		Language:     c.language,
		TotalNTiles:  c.TotalNTiles,
		NTilesInPlay: c.NTilesInPlay,
		Players:      players,
		Tiles:        tiles,
		MessageCount: len(c.Messages),
	}
}

// MessageAt looks up a logged chat entry by absolute index, for connections
// draining their backlog from person.message_offset onward.
func (c *Conversation) MessageAt(idx int) (Message, bool) {
	if idx < 0 || idx >= len(c.Messages) {
		return Message{}, false
	}
	return c.Messages[idx], true
}

// MessageCount is the number of log entries so far.
func (c *Conversation) MessageCount() int { return len(c.Messages) }
