package serverconn

import (
	"github.com/vsxgame/vsxserver/internal/actorkit"
	"github.com/vsxgame/vsxserver/internal/game"
	"github.com/vsxgame/vsxserver/internal/wire"
)

// dirtyBits tracks every outbound frame this connection owes its peer.
// drainAll writes one frame per pending bit, highest priority first, so a
// single slow peer never lets unbounded state accumulate behind a burst of
// conversation events.
type dirtyBits struct {
	pongPending bool
	pongPayload []byte

	playerID       bool
	conversationID bool
	nTiles         bool
	language       bool

	playerName  [game.MaxPlayers]bool
	playerFlags [game.MaxPlayers]bool
	shoutedBy   []uint8
	tile        [game.MaxTiles]bool

	message bool
	end     bool
	sync    bool
}

func (d *dirtyBits) any() bool {
	if d.pongPending || d.playerID || d.conversationID || d.nTiles || d.language || d.message || d.end || d.sync {
		return true
	}
	if len(d.shoutedBy) > 0 {
		return true
	}
	for _, v := range d.playerName {
		if v {
			return true
		}
	}
	for _, v := range d.playerFlags {
		if v {
			return true
		}
	}
	for _, v := range d.tile {
		if v {
			return true
		}
	}
	return false
}

// drainAll writes every currently dirty frame, in the fixed priority order,
// stopping as soon as the connection closes (writeAndClose/onReadError
// already took care of that) or a write fails.
func (c *Connection) drainAll(ctx actorkit.Context) {
	for c.state != stateDone && c.dirty.any() {
		if !c.drainOne(ctx) {
			return
		}
	}
}

// drainOne emits the single highest-priority pending frame and clears its
// bit, returning false if the write failed (the connection is already
// closing by the time it returns).
func (c *Connection) drainOne(ctx actorkit.Context) bool {
	buf := make([]byte, wire.MaxPayloadSize)

	if c.dirty.pongPending {
		c.dirty.pongPending = false
		if _, err := c.transport.Write(wire.EncodeFrame(wire.FramePong, c.dirty.pongPayload)); err != nil {
			c.fail(err)
			return false
		}
		return true
	}

	if c.dirty.playerID {
		c.dirty.playerID = false
		n, _ := wire.WriteCommand(buf, wire.PlayerID, wire.U64(c.personID), wire.U8(c.playerNum))
		return c.emit(buf[:n])
	}

	if c.dirty.conversationID {
		c.dirty.conversationID = false
		n, _ := wire.WriteCommand(buf, wire.ConversationID, wire.U64(c.convID))
		return c.emit(buf[:n])
	}

	if c.dirty.nTiles {
		c.dirty.nTiles = false
		n, _ := wire.WriteCommand(buf, wire.NTiles, wire.U8(uint8(c.totalNTiles)))
		return c.emit(buf[:n])
	}

	if c.dirty.language {
		c.dirty.language = false
		n, _ := wire.WriteCommand(buf, wire.Language, wire.Str(c.language))
		return c.emit(buf[:n])
	}

	for i := range c.dirty.playerName {
		if !c.dirty.playerName[i] {
			continue
		}
		c.dirty.playerName[i] = false
		n, _ := wire.WriteCommand(buf, wire.PlayerName, wire.U8(uint8(i)), wire.Str(c.playerNames[i]))
		return c.emit(buf[:n])
	}

	for i := range c.dirty.playerFlags {
		if !c.dirty.playerFlags[i] {
			continue
		}
		c.dirty.playerFlags[i] = false
		n, _ := wire.WriteCommand(buf, wire.PlayerFlags, wire.U8(uint8(i)), wire.U8(c.playerFlags[i]))
		return c.emit(buf[:n])
	}

	if len(c.dirty.shoutedBy) > 0 {
		num := c.dirty.shoutedBy[0]
		c.dirty.shoutedBy = c.dirty.shoutedBy[1:]
		n, _ := wire.WriteCommand(buf, wire.PlayerShouted, wire.U8(num))
		return c.emit(buf[:n])
	}

	for i := range c.dirty.tile {
		if !c.dirty.tile[i] {
			continue
		}
		c.dirty.tile[i] = false
		t := c.tiles[i]
		n, _ := wire.WriteCommand(buf, wire.Tile, wire.U8(t.Num), wire.I16(t.X), wire.I16(t.Y), wire.Str(t.Letter), wire.U8(t.LastPlayer))
		return c.emit(buf[:n])
	}

	if c.dirty.message {
		if len(c.pendingMessages) == 0 {
			c.dirty.message = false
			return true
		}
		m := c.pendingMessages[0]
		c.pendingMessages = c.pendingMessages[1:]
		if len(c.pendingMessages) == 0 {
			c.dirty.message = false
		}
		n, _ := wire.WriteCommand(buf, wire.Message, wire.U8(m.PlayerNum), wire.Str(m.Text))
		return c.emit(buf[:n])
	}

	if c.dirty.end {
		c.dirty.end = false
		n, _ := wire.WriteCommand(buf, wire.End)
		if !c.emit(buf[:n]) {
			return false
		}
		c.closeConn()
		return false
	}

	if c.dirty.sync {
		c.dirty.sync = false
		n, _ := wire.WriteCommand(buf, wire.Sync)
		return c.emit(buf[:n])
	}

	return false
}

func (c *Connection) emit(payload []byte) bool {
	if err := c.writeFrame(payload); err != nil {
		c.fail(err)
		return false
	}
	return true
}
