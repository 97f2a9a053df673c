package game

import (
	"github.com/vsxgame/vsxserver/internal/actorkit"
	"github.com/vsxgame/vsxserver/internal/clock"
	"github.com/vsxgame/vsxserver/internal/tileset"
)

// pidListener adapts a remote actor PID into a Listener: every event is
// forwarded as a ConversationEventMsg through the engine instead of a
// direct function call, since followers live in their own actors (server
// connections) rather than in-process with the conversation.
type pidListener struct {
	engine *actorkit.Engine
	self   *actorkit.PID
	target *actorkit.PID
}

func (l pidListener) OnConversationEvent(ev Event, snap Snapshot) {
	l.engine.Send(l.target, ConversationEventMsg{Event: ev, Snapshot: snap}, l.self)
}

// ConversationActor serializes all access to one Conversation behind an
// actor mailbox, so every field read or write happens on one goroutine
// without locks (see DESIGN.md).
type ConversationActor struct {
	conv *Conversation
	self *actorkit.PID
}

// NewConversationProducer builds a Producer for a fresh conversation with
// the given id, language, tile registry, and clock.
func NewConversationProducer(id uint64, language string, reg *tileset.Registry, clk clock.Clock) actorkit.Producer {
	return func() actorkit.Actor {
		return &ConversationActor{conv: New(id, language, reg, clk)}
	}
}

func (a *ConversationActor) Receive(ctx actorkit.Context) {
	if a.self == nil {
		a.self = ctx.Self()
	}

	switch msg := ctx.Message().(type) {
	case actorkit.Started, actorkit.Stopping, actorkit.Stopped:
		return

	case FollowRequest:
		if msg.ReplyTo != nil {
			a.conv.AddListener(pidListener{engine: ctx.Engine(), self: a.self, target: msg.ReplyTo})
			ctx.Engine().Send(msg.ReplyTo, FollowResponse{Snapshot: a.conv.snapshot()}, a.self)
		}

	case UnfollowRequest:
		a.conv.RemoveListener(pidListener{engine: ctx.Engine(), self: a.self, target: msg.ReplyTo})

	case JoinRequest:
		if len(a.conv.Players) >= MaxPlayers {
			ctx.Engine().Send(msg.ReplyTo, JoinResponse{Full: true}, a.self)
			return
		}
		p := a.conv.Join(msg.Name)
		a.conv.AddListener(pidListener{engine: ctx.Engine(), self: a.self, target: msg.ReplyTo})
		ctx.Engine().Send(msg.ReplyTo, JoinResponse{PlayerNum: p.Num, Snapshot: a.conv.snapshot()}, a.self)

	case DisconnectRequest:
		a.conv.Disconnect(msg.PlayerNum)

	case SetTypingRequest:
		a.conv.SetTyping(msg.PlayerNum, msg.Typing)

	case SendMessageRequest:
		a.conv.AddMessage(msg.PlayerNum, msg.Text)

	case TurnRequest:
		err := a.conv.Turn(msg.PlayerNum)
		if msg.ReplyTo != nil {
			ctx.Engine().Send(msg.ReplyTo, TurnResponse{Err: err}, a.self)
		}

	case MoveTileRequest:
		err := a.conv.MoveTile(msg.PlayerNum, msg.TileNum, msg.X, msg.Y)
		if msg.ReplyTo != nil {
			ctx.Engine().Send(msg.ReplyTo, MoveTileResponse{Err: err}, a.self)
		}

	case ShoutRequest:
		a.conv.Shout(msg.PlayerNum)

	case SetNTilesRequest:
		a.conv.SetNTiles(msg.N)

	case SetLanguageRequest:
		a.conv.SetLanguage(msg.PlayerNum, msg.Code)

	case ConnectedCountRequest:
		if msg.ReplyTo != nil {
			ctx.Engine().Send(msg.ReplyTo, ConnectedCountResponse{Count: a.conv.ConnectedCount()}, a.self)
		}

	case MessageRangeRequest:
		if msg.ReplyTo == nil {
			return
		}
		from := msg.FromIdx
		if from < 0 {
			from = 0
		}
		total := a.conv.MessageCount()
		var out []Message
		if from < total {
			out = append(out, a.conv.Messages[from:]...)
		}
		ctx.Engine().Send(msg.ReplyTo, MessageRangeResponse{Messages: out, FromIdx: from, Total: total}, a.self)
	}
}
