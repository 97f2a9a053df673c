// Package serverconn implements the per-socket server connection engine:
// the WebSocket handshake and frame reassembly, command authorization and
// dispatch against a bound conversation, and the dirty-bit outbound
// scheduler that drains conversation change events back to the peer in a
// fixed priority order.
package serverconn

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/vsxgame/vsxserver/internal/actorkit"
	"github.com/vsxgame/vsxserver/internal/clock"
	"github.com/vsxgame/vsxserver/internal/game"
	"github.com/vsxgame/vsxserver/internal/person"
	"github.com/vsxgame/vsxserver/internal/wire"
)

// idleTimeoutMicros is how long a connection may go with no inbound message
// before it is closed outright, independent of whether it is bound to a
// person — the same 5-minute window the person registry uses for its own
// silence sweep (see person.SilenceWindowMicros), but enforced here too
// since a connection that never identifies itself never becomes a person
// and so would otherwise never be reaped.
const idleTimeoutMicros = 5 * 60 * 1_000_000

// idleCheckInterval is how often the connection wakes itself up to check
// idleTimeoutMicros; it only needs to be finer than the timeout itself.
const idleCheckInterval = 30 * time.Second

// idleCheckTick is sent by the connection's own ticker goroutine to drive
// the periodic idle check without a second actor, matching the ticking-
// message idiom used by person.Registry's silence sweep.
type idleCheckTick struct{}

// Transport is the byte channel a connection reads from and writes to. A
// production connection wires this to a net.Conn; tests substitute an
// in-memory pipe.
type Transport interface {
	io.Reader
	io.Writer
	Close() error
}

type connState int

const (
	stateHeaders connState = iota
	stateData
	stateDone
)

type bindKind int

const (
	bindNone bindKind = iota
	bindNewPlayer
	bindNewPrivate
	bindJoinGame
	bindReconnect
)

// bindState tracks the in-flight identity-command round trip: which
// greeting command started it and whatever it needs once every downstream
// reply has arrived.
type bindState struct {
	kind      bindKind
	name      string
	nReceived uint16
}

type pendingMessage struct {
	Idx       int
	PlayerNum uint8
	Text      string
}

// inboundData is sent by the connection's reader goroutine for every read
// that returned bytes.
type inboundData struct{ Data []byte }

// inboundErr is sent by the reader goroutine once Read returns a non-nil
// error (including io.EOF), after which it exits.
type inboundErr struct{ err error }

// Connection is the server-side connection actor: one instance per
// accepted socket, serializing the handshake, frame reassembly, command
// dispatch, and outbound drain behind its own mailbox.
type Connection struct {
	engine         *actorkit.Engine
	self           *actorkit.PID
	log            zerolog.Logger
	transport      Transport
	addr           net.Addr
	convRegistry   *actorkit.PID
	personRegistry *actorkit.PID
	clk            clock.Clock

	scanner *wire.HeaderScanner
	parser  *wire.Parser
	state   connState

	stopReading chan struct{}

	lastMessageMicros int64
	idleTicker        *time.Ticker
	stopIdle          chan struct{}

	identitySeen bool
	bound        bool
	leftViaLeave bool

	bind bindState

	personID      uint64
	convID        uint64
	convPID       *actorkit.PID
	playerNum     uint8
	messageOffset int

	language     string
	totalNTiles  int
	nTilesInPlay int
	playerNames  [game.MaxPlayers]string
	playerFlags  [game.MaxPlayers]uint8
	tiles        [game.MaxTiles]game.Tile

	pendingMessages []pendingMessage

	dirty dirtyBits
}

// NewProducer builds a Producer for a connection actor serving one accepted
// transport from addr, wired to the conversation and person registries.
func NewProducer(engine *actorkit.Engine, log zerolog.Logger, transport Transport, addr net.Addr, convRegistry, personRegistry *actorkit.PID, clk clock.Clock) actorkit.Producer {
	return func() actorkit.Actor {
		return &Connection{
			engine:         engine,
			log:            log.With().Str("component", "serverconn").Str("addr", addrString(addr)).Logger(),
			transport:      transport,
			addr:           addr,
			convRegistry:   convRegistry,
			personRegistry: personRegistry,
			clk:            clk,
		}
	}
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	return addr.String()
}

func (c *Connection) Receive(ctx actorkit.Context) {
	if c.self == nil {
		c.self = ctx.Self()
	}

	switch msg := ctx.Message().(type) {
	case actorkit.Started:
		c.onStarted()
	case actorkit.Stopping:
		c.closeConn()
	case actorkit.Stopped:
		return

	case inboundData:
		c.onInboundData(ctx, msg.Data)
	case inboundErr:
		c.onReadError(msg.err)

	case game.ConversationRefResponse:
		c.onConversationRef(ctx, msg)
	case game.JoinResponse:
		c.onJoinResponse(ctx, msg)
	case game.FollowResponse:
		c.onFollowResponse(ctx, msg)
	case game.MessageRangeResponse:
		c.onMessageRange(ctx, msg)
	case game.ConversationEventMsg:
		c.onConversationEvent(ctx, msg)

	case person.CreateResponse:
		c.onPersonCreated(ctx, msg)
	case person.ActivateResponse:
		c.onPersonActivated(ctx, msg)

	case idleCheckTick:
		c.checkIdle()
	}
}

func (c *Connection) onStarted() {
	c.scanner = &wire.HeaderScanner{}
	c.state = stateHeaders
	c.stopReading = make(chan struct{})
	go c.readLoop()

	c.lastMessageMicros = c.clk.NowMicro()
	c.startIdleTicker()
}

// startIdleTicker launches the background ticker goroutine that drives the
// periodic idle check via a self-addressed message, matching the same
// ticking-message idiom person.Registry uses for its own silence sweep.
func (c *Connection) startIdleTicker() {
	c.idleTicker = time.NewTicker(idleCheckInterval)
	c.stopIdle = make(chan struct{})
	engine := c.engine
	self := c.self
	ticker := c.idleTicker
	stopIdle := c.stopIdle
	go func() {
		for {
			select {
			case <-stopIdle:
				return
			case _, ok := <-ticker.C:
				if !ok {
					return
				}
				engine.Send(self, idleCheckTick{}, nil)
			}
		}
	}()
}

// checkIdle closes the connection once idleTimeoutMicros has elapsed since
// the last inbound message, independent of whether it is bound to a person
// — a connection that never identifies itself never becomes a person and
// so would otherwise never be reaped by the person registry's own sweep.
func (c *Connection) checkIdle() {
	if c.state == stateDone {
		return
	}
	if c.clk.NowMicro()-c.lastMessageMicros < idleTimeoutMicros {
		return
	}
	c.log.Warn().Msg("Connection idle for too long, closing")
	c.closeConn()
}

func (c *Connection) readLoop() {
	buf := make([]byte, 4096)
	for {
		select {
		case <-c.stopReading:
			return
		default:
		}
		n, err := c.transport.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			c.engine.Send(c.self, inboundData{Data: data}, nil)
		}
		if err != nil {
			c.engine.Send(c.self, inboundErr{err: err}, nil)
			return
		}
	}
}

func (c *Connection) onInboundData(ctx actorkit.Context, data []byte) {
	if c.state == stateDone {
		return
	}
	c.lastMessageMicros = c.clk.NowMicro()

	if c.state == stateHeaders {
		finished, rest := c.scanner.Feed(data)
		if !finished {
			return
		}
		c.state = stateData
		c.parser = wire.NewParser(wire.RoleServer)
		if _, err := c.transport.Write(wire.BuildHandshakeResponse(c.scanner.Key())); err != nil {
			c.fail(err)
			return
		}
		if len(rest) == 0 {
			return
		}
		data = rest
	}

	events, ferr := c.parser.Feed(data)
	for _, ev := range events {
		c.handleFrameEvent(ctx, ev)
		if c.state == stateDone {
			return
		}
	}
	if ferr != nil {
		c.log.Warn().Err(ferr).Msg("framing error, closing connection")
		c.closeConn()
	}
}

func (c *Connection) handleFrameEvent(ctx actorkit.Context, ev wire.Event) {
	switch ev.Kind {
	case wire.EventPong:
		c.dirty.pongPending = true
		c.dirty.pongPayload = ev.Payload
		c.drainAll(ctx)
	case wire.EventClose:
		// Ignored at the frame layer; termination is driven by LEAVE or a
		// subsequent read error, matching the wire contract.
	case wire.EventMessage:
		c.handleCommand(ctx, ev.Payload)
	}
}

func (c *Connection) fail(err error) {
	c.log.Warn().Err(err).Msg("Error reading from socket")
	c.closeConn()
}

func (c *Connection) onReadError(err error) {
	if c.state == stateDone {
		return
	}
	switch {
	case errors.Is(err, io.EOF) && c.state == stateHeaders:
		c.log.Warn().Msg("Client closed the connection before finishing WebSocket negotiation")
	case errors.Is(err, io.EOF) && c.bound && !c.leftViaLeave:
		c.log.Warn().Msg("Client closed the connection before sending a LEAVE command")
	case errors.Is(err, io.EOF):
		c.log.Warn().Msg("Client closed the connection in the middle of a frame")
	default:
		c.log.Warn().Err(err).Msg("Error reading from socket")
	}
	c.closeConn()
}

func (c *Connection) closeConn() {
	if c.state == stateDone {
		return
	}
	c.state = stateDone
	if c.stopReading != nil {
		select {
		case <-c.stopReading:
		default:
			close(c.stopReading)
		}
	}
	if c.idleTicker != nil {
		c.idleTicker.Stop()
	}
	if c.stopIdle != nil {
		select {
		case <-c.stopIdle:
		default:
			close(c.stopIdle)
		}
	}
	_ = c.transport.Close()
}

// writeFrame wraps payload in an unfragmented binary frame and writes it.
func (c *Connection) writeFrame(payload []byte) error {
	_, err := c.transport.Write(wire.EncodeFrame(wire.FrameBinary, payload))
	return err
}

// writeAndClose sends a standalone domain-error opcode (no payload) and
// ends the connection, bypassing the dirty-bit drain since it only ever
// happens before a person is bound.
func (c *Connection) writeAndClose(opcode wire.Command) {
	buf := make([]byte, 4)
	n, _ := wire.WriteCommand(buf, opcode)
	_ = c.writeFrame(buf[:n])
	c.closeConn()
}

func (c *Connection) invalidCommand(opcode wire.Command) {
	if opcode == wire.NewPlayer {
		c.log.Warn().Msg("Invalid new player command received")
	} else {
		c.log.Warn().Msgf("Client sent an invalid %s command", opcode.Name())
	}
	c.closeConn()
}

func (c *Connection) touchPerson(ctx actorkit.Context) {
	if c.personID == 0 {
		return
	}
	ctx.Engine().Send(c.personRegistry, person.ActivateRequest{ID: c.personID}, c.self)
}

func (c *Connection) primeFromSnapshot(snap game.Snapshot) {
	c.language = snap.Language
	c.totalNTiles = snap.TotalNTiles
	c.nTilesInPlay = snap.NTilesInPlay
	c.dirty.language = true
	c.dirty.nTiles = true

	for i, p := range snap.Players {
		c.playerNames[i] = p.Name
		c.playerFlags[i] = p.Flags
		c.dirty.playerName[i] = true
		c.dirty.playerFlags[i] = true
	}
	for i := 0; i < snap.NTilesInPlay; i++ {
		c.tiles[i] = snap.Tiles[i]
		c.dirty.tile[i] = true
	}
	c.dirty.sync = true
}

func (c *Connection) finishBind(ctx actorkit.Context) {
	c.bound = true
	c.dirty.playerID = true
	c.dirty.conversationID = true
	c.drainAll(ctx)
}
