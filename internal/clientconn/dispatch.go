package clientconn

import (
	"errors"
	"io"

	"github.com/vsxgame/vsxserver/internal/wire"
)

// handleFrame processes one inbound unit from the current connection: a
// decode error (closing it and scheduling a retry), or a wire-level event
// (a ping to echo, a close to ignore, or a command to dispatch).
func (c *Connection) handleFrame(fm frameMsg) {
	c.mu.Lock()
	stale := fm.generation != c.generation
	c.mu.Unlock()
	if stale {
		return
	}

	if fm.err != nil {
		c.onConnectionLost(fm.err)
		return
	}

	switch fm.ev.Kind {
	case wire.EventPong:
		c.writeRaw(wire.EncodeFrame(wire.FramePong, fm.ev.Payload))
	case wire.EventClose:
		// ignored at the frame layer, matching the server's wire contract
	case wire.EventMessage:
		c.handleCommand(fm.ev.Payload)
	}
}

func (c *Connection) onConnectionLost(err error) {
	c.mu.Lock()
	wasRunningState := c.state == Running
	stable := wasRunningState && !c.playerIDSince.IsZero() && c.now().Sub(c.playerIDSince) >= stableConnectionTime
	finished := c.finished
	c.mu.Unlock()

	if finished {
		return
	}

	if !errors.Is(err, io.EOF) {
		c.log.Warn().Err(err).Msg("connection error")
	}

	c.scheduleRetry()
	if stable {
		// A stable connection's loss resets the backoff: retry immediately.
		c.mu.Lock()
		c.reconnectTimeout = 0
		c.nextRetryAt = c.now()
		c.mu.Unlock()
	}
}

// handleCommand decodes and dispatches one server-to-client command.
// Malformed commands are logged and dropped rather than torn down — the
// wire contract only requires the server to police its peer strictly; a
// client tolerates a server bug by ignoring the one bad frame.
func (c *Connection) handleCommand(payload []byte) {
	if len(payload) == 0 {
		return
	}
	opcode := wire.Command(payload[0])
	body := payload[1:]
	r := wire.NewReader(body)

	switch opcode {
	case wire.PlayerID:
		personID := r.U64()
		selfNum := r.U8()
		if r.Done() != nil {
			c.logBadCommand(opcode)
			return
		}
		c.mu.Lock()
		c.cfg.HasPersonID = true
		c.cfg.PersonID = personID
		c.playerIDSince = c.now()
		c.transition(Running)
		c.mu.Unlock()
		c.buffer(Event{Kind: EventHeader, PersonID: personID, PlayerNum: selfNum})

	case wire.ConversationID:
		id := r.U64()
		if r.Done() != nil {
			c.logBadCommand(opcode)
			return
		}
		c.mu.Lock()
		c.cfg.HasConvID = true
		c.cfg.ConversationID = id
		c.mu.Unlock()
		c.buffer(Event{Kind: EventConversationID, ConversationID: id})

	case wire.NTiles:
		n := r.U8()
		if r.Done() != nil {
			c.logBadCommand(opcode)
			return
		}
		c.buffer(Event{Kind: EventNTilesChanged, NTiles: int(n)})

	case wire.Language:
		lang := r.Str()
		if r.Done() != nil {
			c.logBadCommand(opcode)
			return
		}
		c.buffer(Event{Kind: EventLanguageChanged, Language: lang})

	case wire.PlayerName:
		num := r.U8()
		name := r.Str()
		if r.Done() != nil {
			c.logBadCommand(opcode)
			return
		}
		c.buffer(Event{Kind: EventPlayerNameChanged, PlayerNum: num, PlayerName: name})

	case wire.PlayerFlags:
		num := r.U8()
		flags := r.U8()
		if r.Done() != nil {
			c.logBadCommand(opcode)
			return
		}
		c.buffer(Event{Kind: EventPlayerFlagsChanged, PlayerNum: num, PlayerFlags: flags})

	case wire.PlayerShouted:
		num := r.U8()
		if r.Done() != nil {
			c.logBadCommand(opcode)
			return
		}
		c.buffer(Event{Kind: EventPlayerShouted, PlayerNum: num})

	case wire.Tile:
		num := r.U8()
		x := r.I16()
		y := r.I16()
		letter := r.Str()
		last := r.U8()
		if r.Done() != nil {
			c.logBadCommand(opcode)
			return
		}
		c.buffer(Event{Kind: EventTileChanged, TileNum: num, TileX: x, TileY: y, TileLetter: letter, LastPlayer: last})

	case wire.Message:
		num := r.U8()
		text := r.Str()
		if r.Done() != nil {
			c.logBadCommand(opcode)
			return
		}
		c.mu.Lock()
		c.nMessagesReceived++
		c.mu.Unlock()
		c.buffer(Event{Kind: EventMessage, MessagePlayerNum: num, MessageText: text})

	case wire.Sync:
		c.flushBatch()

	case wire.End:
		c.flushBatch()
		c.mu.Lock()
		c.finished = true
		c.teardownLocked()
		c.transition(Disconnected)
		c.mu.Unlock()
		c.emit(Event{Kind: EventEnd, Synced: true})

	case wire.BadPlayerID, wire.BadConversationID, wire.ConversationFull:
		c.failTerminal(opcode)

	default:
		c.log.Warn().Str("opcode", opcode.Name()).Msg("server sent an unknown command")
	}
}

func (c *Connection) logBadCommand(opcode wire.Command) {
	c.log.Warn().Str("opcode", opcode.Name()).Msg("server sent a malformed command")
}

// failTerminal handles the three error classes that end the session
// without reconnecting: the server has told us our identity or target
// conversation is simply invalid, and retrying would only repeat the
// failure.
func (c *Connection) failTerminal(opcode wire.Command) {
	c.mu.Lock()
	c.finished = true
	c.teardownLocked()
	c.transition(Disconnected)
	c.mu.Unlock()
	c.emit(Event{Kind: EventError, Synced: true, Err: terminalErr(opcode)})
}

func terminalErr(opcode wire.Command) error {
	switch opcode {
	case wire.BadPlayerID:
		return errBadPlayerID
	case wire.BadConversationID:
		return errBadConversationID
	case wire.ConversationFull:
		return errConversationFull
	default:
		return errors.New("clientconn: unknown terminal error")
	}
}

var (
	errBadPlayerID       = errors.New("server rejected this person id")
	errBadConversationID = errors.New("server rejected this conversation id")
	errConversationFull  = errors.New("conversation is full")
)

// buffer holds ev until the next SYNC, at which point the whole batch is
// emitted together with Synced set, mirroring the server's own
// drain-then-SYNC framing of one coherent update.
func (c *Connection) buffer(ev Event) {
	c.mu.Lock()
	c.batch = append(c.batch, ev)
	c.mu.Unlock()
}

func (c *Connection) flushBatch() {
	c.mu.Lock()
	batch := c.batch
	c.batch = nil
	c.mu.Unlock()
	for _, ev := range batch {
		ev.Synced = true
		c.emit(ev)
	}
}

// flushQueued writes the locally-typed state this connection owes the
// server: a typing-flag transition, every coalesced tile move, and every
// queued chat message, in that order.
func (c *Connection) flushQueued() {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return
	}
	var toSend [][]byte
	buf := make([]byte, wire.MaxPayloadSize)

	if c.typing != c.sentTyping {
		op := wire.StopTyping
		if c.typing {
			op = wire.StartTyping
		}
		n, _ := wire.WriteCommand(buf, op)
		toSend = append(toSend, append([]byte(nil), buf[:n]...))
		c.sentTyping = c.typing
	}

	for _, m := range c.tileQueue {
		n, _ := wire.WriteCommand(buf, wire.MoveTile, wire.U8(m.Num), wire.I16(m.X), wire.I16(m.Y))
		toSend = append(toSend, append([]byte(nil), buf[:n]...))
	}
	c.tileQueue = nil

	for _, text := range c.messageQueue {
		n, _ := wire.WriteCommand(buf, wire.SendMessage, wire.Str(text))
		toSend = append(toSend, append([]byte(nil), buf[:n]...))
	}
	c.messageQueue = nil
	c.mu.Unlock()

	for _, payload := range toSend {
		c.writeRaw(wire.EncodeFrame(wire.FrameBinary, payload))
	}
}

func (c *Connection) sendKeepAlive() {
	buf := make([]byte, 4)
	n, _ := wire.WriteCommand(buf, wire.KeepAlive)
	c.writeRaw(wire.EncodeFrame(wire.FrameBinary, buf[:n]))
}

// writeRaw writes a fully-framed payload to the live connection, if any,
// and resets the keep-alive deadline on success — every write, not just an
// explicit KEEP_ALIVE, counts as activity.
func (c *Connection) writeRaw(framed []byte) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.Write(framed); err != nil {
		c.onConnectionLost(err)
		return
	}
	c.mu.Lock()
	c.keepAliveAt = c.now().Add(keepAliveInterval)
	c.mu.Unlock()
}
