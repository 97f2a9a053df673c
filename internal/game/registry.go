package game

import (
	"crypto/rand"
	"encoding/binary"
	"net"

	"github.com/vsxgame/vsxserver/internal/actorkit"
	"github.com/vsxgame/vsxserver/internal/clock"
	"github.com/vsxgame/vsxserver/internal/tileset"
)

// GenerateID produces a 64-bit identifier from a cryptographic-quality
// random source XORed with addr's bytes, so that per-peer diversity
// supplements the RNG rather than depending on it alone.
func GenerateID(addr net.Addr) uint64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return binary.LittleEndian.Uint64(buf[:]) ^ foldAddress(addr)
}

func foldAddress(addr net.Addr) uint64 {
	if addr == nil {
		return 0
	}
	raw := []byte(addr.String())
	var acc uint64
	for i, b := range raw {
		acc ^= uint64(b) << (8 * uint(i%8))
	}
	return acc
}

// ConversationRef names a live conversation actor.
type ConversationRef struct {
	ID  uint64
	PID *actorkit.PID
}

// FindOrCreatePendingRequest asks the registry for the conversation
// currently joinable under Room, creating one if none exists (NEW_PLAYER).
type FindOrCreatePendingRequest struct {
	Room     string
	Language string
	Addr     net.Addr
	ReplyTo  *actorkit.PID
}

// CreatePrivateRequest asks the registry to create a conversation that is
// never offered to room-name lookups (NEW_PRIVATE_GAME).
type CreatePrivateRequest struct {
	Language string
	Addr     net.Addr
	ReplyTo  *actorkit.PID
}

// LookupRequest asks the registry to resolve a conversation by ID
// (JOIN_GAME / RECONNECT's owning conversation).
type LookupRequest struct {
	ID      uint64
	ReplyTo *actorkit.PID
}

// ConversationRefResponse answers FindOrCreatePendingRequest,
// CreatePrivateRequest, and LookupRequest. Found is false only for
// LookupRequest misses.
type ConversationRefResponse struct {
	Ref   ConversationRef
	Found bool
}

// CheckEmptyRequest asks the registry to verify whether a conversation
// still has any connected player, reaping it if not. Sent by a server
// connection after it disconnects a player.
type CheckEmptyRequest struct{ ID uint64 }

// Registry is the conversation registry actor: it allocates IDs, tracks
// every conversation ever created (the "other" list, modeled as the id
// table itself) and which ones are still joinable by room name (the
// "pending" list), and reaps conversations once no player remains
// connected.
type Registry struct {
	engine   *actorkit.Engine
	tilesReg *tileset.Registry
	clk      clock.Clock

	self *actorkit.PID

	byID    map[uint64]*actorkit.PID
	pending map[string]uint64 // room name -> conversation id
}

// NewRegistryProducer builds a Producer for the conversation registry
// actor.
func NewRegistryProducer(engine *actorkit.Engine, tilesReg *tileset.Registry, clk clock.Clock) actorkit.Producer {
	return func() actorkit.Actor {
		return &Registry{
			engine:   engine,
			tilesReg: tilesReg,
			clk:      clk,
			byID:     make(map[uint64]*actorkit.PID),
			pending:  make(map[string]uint64),
		}
	}
}

func (r *Registry) Receive(ctx actorkit.Context) {
	if r.self == nil {
		r.self = ctx.Self()
	}

	switch msg := ctx.Message().(type) {
	case actorkit.Started, actorkit.Stopping, actorkit.Stopped:
		return

	case FindOrCreatePendingRequest:
		id, ok := r.pending[msg.Room]
		if ok {
			ctx.Engine().Send(msg.ReplyTo, ConversationRefResponse{Ref: ConversationRef{ID: id, PID: r.byID[id]}, Found: true}, r.self)
			return
		}
		ref := r.spawn(msg.Language, msg.Addr)
		r.pending[msg.Room] = ref.ID
		ctx.Engine().Send(msg.ReplyTo, ConversationRefResponse{Ref: ref, Found: true}, r.self)

	case CreatePrivateRequest:
		ref := r.spawn(msg.Language, msg.Addr)
		ctx.Engine().Send(msg.ReplyTo, ConversationRefResponse{Ref: ref, Found: true}, r.self)

	case LookupRequest:
		pid, ok := r.byID[msg.ID]
		if !ok {
			ctx.Engine().Send(msg.ReplyTo, ConversationRefResponse{Found: false}, r.self)
			return
		}
		ctx.Engine().Send(msg.ReplyTo, ConversationRefResponse{Ref: ConversationRef{ID: msg.ID, PID: pid}, Found: true}, r.self)

	case ConversationEventMsg:
		if msg.Event.Kind == EventConversationStarted {
			r.removeFromPending(ctx.Sender())
		}

	case CheckEmptyRequest:
		r.checkEmpty(ctx, msg.ID)
	}
}

func (r *Registry) spawn(language string, addr net.Addr) ConversationRef {
	var id uint64
	for {
		id = GenerateID(addr)
		if _, collide := r.byID[id]; !collide {
			break
		}
	}

	pid := r.engine.Spawn("conversation", NewConversationProducer(id, language, r.tilesReg, r.clk))
	r.byID[id] = pid
	r.engine.Send(pid, FollowRequest{ReplyTo: r.self}, r.self)

	return ConversationRef{ID: id, PID: pid}
}

// removeFromPending drops whichever room name currently maps to the
// conversation that sent the EventConversationStarted, identified by the
// envelope's sender PID (the conversation actor's own address).
func (r *Registry) removeFromPending(sender *actorkit.PID) {
	if sender == nil {
		return
	}
	for room, id := range r.pending {
		if pid := r.byID[id]; pid != nil && pid.ID == sender.ID {
			delete(r.pending, room)
			return
		}
	}
}

func (r *Registry) checkEmpty(ctx actorkit.Context, id uint64) {
	pid, ok := r.byID[id]
	if !ok {
		return
	}
	replyPID := r.engine.Spawn("reap-probe", actorkit.NewProps(func() actorkit.Actor {
		return &reapProbe{registry: r, id: id}
	}))
	ctx.Engine().Send(pid, ConnectedCountRequest{ReplyTo: replyPID}, r.self)
}

// reapProbe is a short-lived actor that exists only to receive one
// ConnectedCountResponse on the registry's behalf and hand the decision
// back, since a Registry can't block its own Receive waiting for a reply
// without risking deadlock against the very conversation it's asking.
type reapProbe struct {
	registry *Registry
	id       uint64
}

func (p *reapProbe) Receive(ctx actorkit.Context) {
	switch msg := ctx.Message().(type) {
	case ConnectedCountResponse:
		if msg.Count == 0 {
			p.registry.reap(ctx, p.id)
		}
		ctx.Engine().Stop(ctx.Self())
	case actorkit.Started, actorkit.Stopping, actorkit.Stopped:
		return
	}
}

func (r *Registry) reap(ctx actorkit.Context, id uint64) {
	pid, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	for room, roomID := range r.pending {
		if roomID == id {
			delete(r.pending, room)
		}
	}
	ctx.Engine().Stop(pid)
}
