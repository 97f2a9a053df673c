package person

import (
	"net"
	"time"

	"github.com/vsxgame/vsxserver/internal/actorkit"
	"github.com/vsxgame/vsxserver/internal/clock"
	"github.com/vsxgame/vsxserver/internal/game"
)

// SweepInterval is how often the registry scans for silent people.
const SweepInterval = 5 * time.Minute

// CreateRequest asks the registry to mint a new person id bound to the
// given conversation seat, replying with CreateResponse.
type CreateRequest struct {
	Addr            net.Addr
	ConversationID  uint64
	ConversationPID *actorkit.PID
	PlayerNum       uint8
	MessageOffset   int
	ReplyTo         *actorkit.PID
}

// CreateResponse carries the freshly minted person id.
type CreateResponse struct{ ID uint64 }

// ActivateRequest looks up id and, if found, resets its silence timer —
// every authorized command from a bound connection does this.
type ActivateRequest struct {
	ID      uint64
	ReplyTo *actorkit.PID
}

// ActivateResponse answers ActivateRequest.
type ActivateResponse struct {
	Person Person
	Found  bool
}

// RebindRequest updates an existing person's seat after a successful
// RECONNECT to a different connection.
type RebindRequest struct {
	ID              uint64
	ConversationID  uint64
	ConversationPID *actorkit.PID
	PlayerNum       uint8
}

// ForgetRequest removes id outright, used when a player explicitly leaves.
type ForgetRequest struct{ ID uint64 }

// sweepTick is sent by the registry's own background ticker goroutine to
// drive the periodic silence sweep without involving a second actor.
type sweepTick struct{}

// Registry is the person registry actor: it allocates person ids and
// evicts silent ones, grounded on the silence-GC sweep of the reference
// implementation's person set.
type Registry struct {
	engine               *actorkit.Engine
	clk                  clock.Clock
	conversationRegistry *actorkit.PID
	self                 *actorkit.PID

	people map[uint64]*Person

	ticker *time.Ticker
	stopCh chan struct{}
}

// NewRegistryProducer builds a Producer for the person registry actor.
// conversationRegistry receives a CheckEmptyRequest after every seat the
// silence sweep disconnects, so it can reap conversations left empty.
func NewRegistryProducer(engine *actorkit.Engine, clk clock.Clock, conversationRegistry *actorkit.PID) actorkit.Producer {
	return func() actorkit.Actor {
		return &Registry{
			engine:               engine,
			clk:                  clk,
			conversationRegistry: conversationRegistry,
			people:               make(map[uint64]*Person),
		}
	}
}

func (r *Registry) Receive(ctx actorkit.Context) {
	if r.self == nil {
		r.self = ctx.Self()
	}

	switch msg := ctx.Message().(type) {
	case actorkit.Started:
		r.startSweeping(ctx)
		return

	case actorkit.Stopping:
		r.stopSweeping()
		return

	case actorkit.Stopped:
		return

	case CreateRequest:
		var id uint64
		for {
			id = game.GenerateID(msg.Addr)
			if _, collide := r.people[id]; !collide {
				break
			}
		}
		r.people[id] = &Person{
			ID:              id,
			ConversationID:  msg.ConversationID,
			ConversationPID: msg.ConversationPID,
			PlayerNum:       msg.PlayerNum,
			MessageOffset:   msg.MessageOffset,
			LastNoiseMicro:  r.clk.NowMicro(),
		}
		if msg.ReplyTo != nil {
			ctx.Engine().Send(msg.ReplyTo, CreateResponse{ID: id}, r.self)
		}

	case ActivateRequest:
		p, ok := r.people[msg.ID]
		if ok {
			p.LastNoiseMicro = r.clk.NowMicro()
		}
		if msg.ReplyTo == nil {
			return
		}
		if !ok {
			ctx.Engine().Send(msg.ReplyTo, ActivateResponse{Found: false}, r.self)
			return
		}
		ctx.Engine().Send(msg.ReplyTo, ActivateResponse{Person: *p, Found: true}, r.self)

	case RebindRequest:
		p, ok := r.people[msg.ID]
		if !ok {
			return
		}
		p.ConversationID = msg.ConversationID
		p.ConversationPID = msg.ConversationPID
		p.PlayerNum = msg.PlayerNum
		p.LastNoiseMicro = r.clk.NowMicro()

	case ForgetRequest:
		delete(r.people, msg.ID)

	case sweepTick:
		r.sweep(ctx)
	}
}

// startSweeping launches the background ticker goroutine that drives the
// periodic silence sweep via a self-addressed message, matching the
// ticking-message idiom used elsewhere in this codebase's actors.
func (r *Registry) startSweeping(ctx actorkit.Context) {
	r.ticker = time.NewTicker(SweepInterval)
	r.stopCh = make(chan struct{})
	engine := ctx.Engine()
	self := r.self
	ticker := r.ticker
	stopCh := r.stopCh
	go func() {
		for {
			select {
			case <-stopCh:
				return
			case _, ok := <-ticker.C:
				if !ok {
					return
				}
				engine.Send(self, sweepTick{}, nil)
			}
		}
	}()
}

func (r *Registry) stopSweeping() {
	if r.ticker != nil {
		r.ticker.Stop()
	}
	if r.stopCh != nil {
		close(r.stopCh)
	}
}

// sweep evicts every person whose silence window has elapsed, disconnecting
// their seat in the owning conversation and letting the conversation
// registry decide whether the conversation is now empty.
func (r *Registry) sweep(ctx actorkit.Context) {
	now := r.clk.NowMicro()
	for id, p := range r.people {
		if now-p.LastNoiseMicro <= SilenceWindowMicros {
			continue
		}
		if p.ConversationPID != nil {
			ctx.Engine().Send(p.ConversationPID, game.DisconnectRequest{PlayerNum: p.PlayerNum}, r.self)
			if r.conversationRegistry != nil {
				ctx.Engine().Send(r.conversationRegistry, game.CheckEmptyRequest{ID: p.ConversationID}, r.self)
			}
		}
		delete(r.people, id)
	}
}
