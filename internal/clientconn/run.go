package clientconn

import (
	"io"
	"time"

	"github.com/vsxgame/vsxserver/internal/wire"
)

// pollInterval is how often RunRealtime wakes the engine up to check
// whether a backoff deadline or keep-alive deadline has elapsed. It is
// real wall-clock cadence, independent of the logical clock.Clock seam
// used for the deadlines themselves, so tests can drive Tick directly
// against a clock.Fake without waiting on it.
const pollInterval = 50 * time.Millisecond

// frameMsg is one frame event from the current connection's reader
// goroutine, tagged with the generation it was read under so a stale
// reader (from a connection already torn down) can't corrupt state from a
// newer one.
type frameMsg struct {
	generation uint64
	ev         wire.Event
	err        error
}

// RunRealtime drives the engine until stop is closed: it dials and
// reconnects on the schedule Tick computes, and dispatches every inbound
// frame as it arrives. Call it once, in its own goroutine.
func (c *Connection) RunRealtime(stop <-chan struct{}) {
	frames := make(chan frameMsg, 64)
	c.mu.Lock()
	c.frames = frames
	c.mu.Unlock()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			c.mu.Lock()
			c.teardownLocked()
			c.mu.Unlock()
			return
		case <-ticker.C:
			c.Tick()
		case fm := <-frames:
			c.handleFrame(fm)
		}
	}
}

// Tick drives every time-based transition: firing a due reconnect attempt,
// or (while connected) flushing queued input and sending a keep-alive once
// the idle deadline passes. An embedder with its own event loop can call
// this directly instead of RunRealtime, as long as it also pumps frames
// some other way — RunRealtime is the common case.
func (c *Connection) Tick() {
	c.mu.Lock()
	state := c.state
	running := c.running
	due := running && state == WaitingForReconnect && !c.nextRetryAt.After(c.now())
	c.mu.Unlock()

	if due {
		c.startConnect()
		return
	}

	c.mu.Lock()
	connected := c.state == Running && c.conn != nil
	keepAliveDue := connected && !c.keepAliveAt.After(c.now())
	c.mu.Unlock()

	if connected {
		c.flushQueued()
	}
	if keepAliveDue {
		c.sendKeepAlive()
	}
}

func (c *Connection) now() time.Time {
	return time.UnixMicro(c.clk.NowMicro())
}

// startConnect dials, handshakes, sends the chosen greeting, and launches
// a reader goroutine, all under a fresh generation so a still-unwinding
// previous attempt can't deliver frames into the new one.
func (c *Connection) startConnect() {
	c.mu.Lock()
	addr := c.cfg.Address
	c.generation++
	gen := c.generation
	c.transition(Reconnecting)
	frames := c.frames
	c.mu.Unlock()

	conn, err := c.dial(addr)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to connect")
		c.scheduleRetry()
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.dialing = conn
	c.mu.Unlock()

	if _, err := conn.Write([]byte(wire.HandshakeRequest)); err != nil {
		_ = conn.Close()
		c.clearDialing(gen)
		c.scheduleRetry()
		return
	}

	scanner := &wire.HeaderScanner{}
	buf := make([]byte, 4096)
	var rest []byte
	for {
		n, err := conn.Read(buf)
		if err != nil {
			_ = conn.Close()
			c.clearDialing(gen)
			c.scheduleRetry()
			return
		}
		finished, r := scanner.Feed(buf[:n])
		if finished {
			rest = r
			break
		}
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.dialing = nil
	c.conn = conn
	c.parser = wire.NewParser(wire.RoleClient)
	c.stopReader = make(chan struct{})
	c.sentTyping = false // the new connection has no notion of our prior typing state
	stopReader := c.stopReader
	c.mu.Unlock()

	if err := c.sendGreeting(conn); err != nil {
		_ = conn.Close()
		c.scheduleRetry()
		return
	}
	c.mu.Lock()
	c.keepAliveAt = c.now().Add(keepAliveInterval)
	c.mu.Unlock()

	go c.readLoop(conn, gen, stopReader, frames)

	if len(rest) > 0 {
		c.feedInitial(gen, rest, frames)
	}
}

// feedInitial parses any bytes the server pipelined immediately after the
// handshake response, before the reader goroutine's first real read.
func (c *Connection) feedInitial(gen uint64, data []byte, frames chan<- frameMsg) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	events, err := c.parser.Feed(data)
	c.mu.Unlock()
	for _, ev := range events {
		frames <- frameMsg{generation: gen, ev: ev}
	}
	if err != nil {
		frames <- frameMsg{generation: gen, err: err}
	}
}

func (c *Connection) readLoop(conn io.Reader, gen uint64, stop <-chan struct{}, frames chan<- frameMsg) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := conn.Read(buf)
		if n > 0 {
			c.mu.Lock()
			stillCurrent := gen == c.generation
			var events []wire.Event
			var ferr error
			if stillCurrent {
				events, ferr = c.parser.Feed(buf[:n])
			}
			c.mu.Unlock()
			if !stillCurrent {
				return
			}
			for _, ev := range events {
				frames <- frameMsg{generation: gen, ev: ev}
			}
			if ferr != nil {
				frames <- frameMsg{generation: gen, err: ferr}
				return
			}
		}
		if err != nil {
			frames <- frameMsg{generation: gen, err: err}
			return
		}
	}
}

// sendGreeting builds and writes the one greeting command this connection
// attempt opens with, in the fixed priority RECONNECT > JOIN_GAME > NEW_PLAYER >
// NEW_PRIVATE_GAME (spec's connect-choice rule).
func (c *Connection) sendGreeting(conn io.Writer) error {
	c.mu.Lock()
	cfg := c.cfg
	nReceived := c.nMessagesReceived
	c.mu.Unlock()

	buf := make([]byte, wire.MaxPayloadSize)
	var n int
	var err error
	switch {
	case cfg.HasPersonID:
		n, err = wire.WriteCommand(buf, wire.Reconnect, wire.U64(cfg.PersonID), wire.U16(nReceived))
	case cfg.HasConvID:
		n, err = wire.WriteCommand(buf, wire.JoinGame, wire.U64(cfg.ConversationID), wire.Str(cfg.PlayerName))
	case cfg.Room != "":
		n, err = wire.WriteCommand(buf, wire.NewPlayer, wire.Str(cfg.Room), wire.Str(cfg.PlayerName))
	default:
		n, err = wire.WriteCommand(buf, wire.NewPrivateGame, wire.Str(cfg.Language), wire.Str(cfg.PlayerName))
	}
	if err != nil {
		return err
	}
	_, err = conn.Write(wire.EncodeFrame(wire.FrameBinary, buf[:n]))
	return err
}

// scheduleRetry is called after a failed connection attempt (dial,
// handshake, or a mid-session drop). The very first attempt after
// configuration or a stable-reset is immediate (reconnectTimeout == 0);
// every attempt after that doubles from 16s up to a 512s cap.
func (c *Connection) scheduleRetry() {
	c.mu.Lock()
	if c.reconnectTimeout == 0 {
		c.reconnectTimeout = initialReconnectTimeout
	} else {
		c.reconnectTimeout *= 2
		if c.reconnectTimeout > maxReconnectTimeout {
			c.reconnectTimeout = maxReconnectTimeout
		}
	}
	c.nextRetryAt = c.now().Add(c.reconnectTimeout)
	c.conn = nil
	c.transition(WaitingForReconnect)
	c.mu.Unlock()
}
