// Package clientconn implements the client side of the connection engine:
// the greeting-choice logic (RECONNECT > JOIN_GAME > NEW_PLAYER >
// NEW_PRIVATE_GAME), exponential reconnect backoff, keep-alive scheduling,
// move-tile/message coalescing, and a small event bus an embedder drains
// to learn what changed.
package clientconn

import (
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vsxgame/vsxserver/internal/clock"
	"github.com/vsxgame/vsxserver/internal/wire"
)

// State is the client engine's running state, mirroring the five states an
// embedder can observe via a RUNNING_STATE_CHANGED event.
type State int

const (
	Disconnected State = iota
	WaitingForConfiguration
	WaitingForReconnect
	Reconnecting
	Running
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case WaitingForConfiguration:
		return "waiting_for_configuration"
	case WaitingForReconnect:
		return "waiting_for_reconnect"
	case Reconnecting:
		return "reconnecting"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Backoff and keep-alive timing, ported from original_source/client's
// VSX_CONNECTION_{INITIAL,MAX}_TIMEOUT / KEEP_ALIVE_TIME / STABLE_TIME,
// which are exact and required no interpretive judgment call (see
// DESIGN.md).
const (
	initialReconnectTimeout = 16 * time.Second
	maxReconnectTimeout     = 512 * time.Second
	keepAliveInterval       = 150 * time.Second
	stableConnectionTime    = 15 * time.Second
)

// tileMove is one coalesced MOVE_TILE request: a later call for the same
// Num replaces an earlier one in place rather than queuing both.
type tileMove struct {
	Num  uint8
	X, Y int16
}

// Config is the write-once identity an embedder supplies before the engine
// can connect. Room, PersonID, and ConversationID select the greeting
// command, in the priority order sendGreeting applies.
type Config struct {
	Address        net.Addr
	Room           string
	Language       string
	PlayerName     string
	HasPersonID    bool
	PersonID       uint64
	HasConvID      bool
	ConversationID uint64
}

// Dialer opens a transport to addr. Production code wires this to
// net.Dial; tests substitute an in-memory pipe.
type Dialer func(addr net.Addr) (net.Conn, error)

// Connection is the client-side connection engine: one instance drives one
// logical game session across however many physical reconnects it takes,
// queuing player input between connections and replaying it once a new
// connection resumes.
type Connection struct {
	log  zerolog.Logger
	clk  clock.Clock
	dial Dialer

	mu sync.Mutex

	cfg      Config
	hasCfg   bool
	running  bool
	typing   bool
	state    State
	finished bool

	nMessagesReceived uint16

	tileQueue    []tileMove
	messageQueue []string
	sentTyping   bool

	reconnectTimeout time.Duration
	nextRetryAt      time.Time
	playerIDSince    time.Time
	keepAliveAt      time.Time

	conn       net.Conn
	dialing    net.Conn // set while a handshake is in flight, so SetRunning(false)/Reset can unblock its Read
	parser     *wire.Parser
	stopReader chan struct{}
	generation uint64
	frames     chan frameMsg

	batch  []Event
	events chan Event
}

// New creates a client engine. events is the channel Events returns and
// the engine publishes to; a reasonably buffered channel (e.g. 64) keeps a slow consumer from
// stalling the read loop.
func New(log zerolog.Logger, clk clock.Clock, dial Dialer, events chan Event) *Connection {
	return &Connection{
		log:    log.With().Str("component", "clientconn").Logger(),
		clk:    clk,
		dial:   dial,
		state:  WaitingForConfiguration,
		events: events,
	}
}

// Events returns the channel every state change, reconnect, and inbound
// server command is published to.
func (c *Connection) Events() <-chan Event { return c.events }

func (c *Connection) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn().Str("kind", ev.Kind.String()).Msg("event channel full, dropping event")
	}
}

// State reports the engine's current running state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Configure sets the write-once identity fields. It may only be called
// once per engine lifetime (or after Reset); a second call is a caller
// bug and panics, matching the write-once contract.
func (c *Connection) Configure(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasCfg {
		panic("clientconn: Configure called twice without Reset")
	}
	c.cfg = cfg
	c.hasCfg = true
	if c.state == WaitingForConfiguration {
		c.transition(WaitingForReconnect)
		c.nextRetryAt = time.Time{} // first attempt fires immediately
	}
}

// SetRunning starts or stops the engine. Setting it false tears down any
// live connection and stops reconnecting; setting it true (re-)starts it,
// immediately if already configured.
func (c *Connection) SetRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running == running {
		return
	}
	c.running = running
	if !running {
		c.teardownLocked()
		c.transition(Disconnected)
		return
	}
	if !c.hasCfg {
		c.transition(WaitingForConfiguration)
		return
	}
	c.transition(WaitingForReconnect)
	c.nextRetryAt = time.Time{}
}

// SetTyping updates the locally-held typing flag; it takes effect on the
// next drain the same way a queued move or message does.
func (c *Connection) SetTyping(typing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typing = typing
	c.emit(Event{Kind: EventPollChanged})
}

// QueueMoveTile records a tile move to send once the connection is
// writable, replacing any not-yet-sent move for the same tile.
func (c *Connection) QueueMoveTile(num uint8, x, y int16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.tileQueue {
		if c.tileQueue[i].Num == num {
			c.tileQueue[i].X, c.tileQueue[i].Y = x, y
			c.emit(Event{Kind: EventPollChanged})
			return
		}
	}
	c.tileQueue = append(c.tileQueue, tileMove{Num: num, X: x, Y: y})
	c.emit(Event{Kind: EventPollChanged})
}

// QueueMessage enqueues a chat message, clipping it to MaxMessageBytes on
// a UTF-8 boundary, and resets the typing flag (sending a message implies
// the player stopped typing).
func (c *Connection) QueueMessage(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageQueue = append(c.messageQueue, clipMessage(text))
	c.typing = false
	c.emit(Event{Kind: EventPollChanged})
}

// clipMessage truncates s to wire.MaxMessageBytes without splitting a
// UTF-8 rune.
func clipMessage(s string) string {
	if len(s) <= wire.MaxMessageBytes {
		return s
	}
	cut := wire.MaxMessageBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Reset clears identity, queues, and timers and stops any live connection,
// matching the teacher's vsx_connection_reset: an embedder calls this to
// leave a conversation entirely rather than just reconnect to the same one.
func (c *Connection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.cfg = Config{}
	c.hasCfg = false
	c.running = false
	c.typing = false
	c.finished = false
	c.nMessagesReceived = 0
	c.sentTyping = false
	c.tileQueue = nil
	c.messageQueue = nil
	c.batch = nil
	c.reconnectTimeout = 0
	c.transition(WaitingForConfiguration)
}

// clearDialing drops a dial/handshake attempt's net.Conn reference once it
// has failed on its own, so a later SetRunning(false)/Reset doesn't try to
// close an already-dead connection from a superseded generation.
func (c *Connection) clearDialing(gen uint64) {
	c.mu.Lock()
	if gen == c.generation {
		c.dialing = nil
	}
	c.mu.Unlock()
}

func (c *Connection) teardownLocked() {
	c.generation++
	if c.stopReader != nil {
		select {
		case <-c.stopReader:
		default:
			close(c.stopReader)
		}
		c.stopReader = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.dialing != nil {
		_ = c.dialing.Close()
		c.dialing = nil
	}
}

// transition records a new running state and emits both
// RUNNING_STATE_CHANGED and POLL_CHANGED, since every state change also
// changes when the engine next needs to be driven.
func (c *Connection) transition(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.emit(Event{Kind: EventRunningStateChanged, State: s})
	c.emit(Event{Kind: EventPollChanged})
}
