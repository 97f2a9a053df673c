package serverconn

import (
	"github.com/vsxgame/vsxserver/internal/actorkit"
	"github.com/vsxgame/vsxserver/internal/game"
	"github.com/vsxgame/vsxserver/internal/nameutil"
	"github.com/vsxgame/vsxserver/internal/person"
	"github.com/vsxgame/vsxserver/internal/wire"
)

// handleCommand decodes the opcode byte and dispatches to the per-command
// handler. Exactly one of the four identity commands may be the first
// semantic command on a connection; everything else requires a bound
// person.
func (c *Connection) handleCommand(ctx actorkit.Context, payload []byte) {
	if len(payload) == 0 {
		c.log.Warn().Msg("Client sent an empty command")
		c.closeConn()
		return
	}
	opcode := wire.Command(payload[0])
	body := payload[1:]

	isIdentity := opcode == wire.NewPlayer || opcode == wire.NewPrivateGame ||
		opcode == wire.JoinGame || opcode == wire.Reconnect

	if isIdentity {
		if c.identitySeen {
			c.log.Warn().Msg("Client sent a second identity command on an already-bound connection")
			c.closeConn()
			return
		}
		c.identitySeen = true
		switch opcode {
		case wire.NewPlayer:
			c.handleNewPlayer(ctx, body)
		case wire.NewPrivateGame:
			c.handleNewPrivateGame(ctx, body)
		case wire.JoinGame:
			c.handleJoinGame(ctx, body)
		case wire.Reconnect:
			c.handleReconnect(ctx, body)
		}
		return
	}

	if !c.bound {
		c.log.Warn().Msgf("Client sent %s before any identity command", opcode.Name())
		c.closeConn()
		return
	}

	c.touchPerson(ctx)

	switch opcode {
	case wire.KeepAlive:
		// touchPerson above already did the work.

	case wire.Leave:
		c.handleLeave(ctx)

	case wire.SendMessage:
		r := wire.NewReader(body)
		text := r.Str()
		if r.Done() != nil {
			c.invalidCommand(opcode)
			return
		}
		ctx.Engine().Send(c.convPID, game.SendMessageRequest{PlayerNum: c.playerNum, Text: text}, c.self)

	case wire.StartTyping:
		ctx.Engine().Send(c.convPID, game.SetTypingRequest{PlayerNum: c.playerNum, Typing: true}, c.self)

	case wire.StopTyping:
		ctx.Engine().Send(c.convPID, game.SetTypingRequest{PlayerNum: c.playerNum, Typing: false}, c.self)

	case wire.MoveTile:
		r := wire.NewReader(body)
		num := r.U8()
		x := r.I16()
		y := r.I16()
		if r.Done() != nil {
			c.invalidCommand(opcode)
			return
		}
		ctx.Engine().Send(c.convPID, game.MoveTileRequest{PlayerNum: c.playerNum, TileNum: num, X: x, Y: y}, c.self)

	case wire.Turn:
		if len(body) != 0 {
			c.invalidCommand(opcode)
			return
		}
		ctx.Engine().Send(c.convPID, game.TurnRequest{PlayerNum: c.playerNum}, c.self)

	case wire.Shout:
		if len(body) != 0 {
			c.invalidCommand(opcode)
			return
		}
		ctx.Engine().Send(c.convPID, game.ShoutRequest{PlayerNum: c.playerNum}, c.self)

	case wire.SetNTiles:
		r := wire.NewReader(body)
		n := r.U8()
		if r.Done() != nil {
			c.invalidCommand(opcode)
			return
		}
		ctx.Engine().Send(c.convPID, game.SetNTilesRequest{N: int(n)}, c.self)

	case wire.SetLanguage:
		r := wire.NewReader(body)
		code := r.Str()
		if r.Done() != nil {
			c.invalidCommand(opcode)
			return
		}
		ctx.Engine().Send(c.convPID, game.SetLanguageRequest{PlayerNum: c.playerNum, Code: code}, c.self)

	default:
		c.log.Warn().Msgf("Client sent an unknown opcode 0x%02x", byte(opcode))
		c.closeConn()
	}
}

func (c *Connection) handleNewPlayer(ctx actorkit.Context, body []byte) {
	r := wire.NewReader(body)
	room := r.Str()
	name := r.Str()
	if r.Done() != nil {
		c.invalidCommand(wire.NewPlayer)
		return
	}
	normName, ok := nameutil.Normalize(name)
	if !ok {
		c.log.Warn().Msg("Client sent an invalid player name")
		c.closeConn()
		return
	}
	normRoom, ok := nameutil.Normalize(room)
	if !ok {
		c.log.Warn().Msg("Client sent an invalid room name")
		c.closeConn()
		return
	}
	c.bind = bindState{kind: bindNewPlayer, name: normName}
	ctx.Engine().Send(c.convRegistry, game.FindOrCreatePendingRequest{
		Room: normRoom, Addr: c.addr, ReplyTo: c.self,
	}, c.self)
}

func (c *Connection) handleNewPrivateGame(ctx actorkit.Context, body []byte) {
	r := wire.NewReader(body)
	language := r.Str()
	name := r.Str()
	if r.Done() != nil {
		c.invalidCommand(wire.NewPrivateGame)
		return
	}
	normName, ok := nameutil.Normalize(name)
	if !ok {
		c.log.Warn().Msg("Client sent an invalid player name")
		c.closeConn()
		return
	}
	c.bind = bindState{kind: bindNewPrivate, name: normName}
	ctx.Engine().Send(c.convRegistry, game.CreatePrivateRequest{
		Language: language, Addr: c.addr, ReplyTo: c.self,
	}, c.self)
}

func (c *Connection) handleJoinGame(ctx actorkit.Context, body []byte) {
	r := wire.NewReader(body)
	id := r.U64()
	name := r.Str()
	if r.Done() != nil {
		c.invalidCommand(wire.JoinGame)
		return
	}
	normName, ok := nameutil.Normalize(name)
	if !ok {
		c.log.Warn().Msg("Client sent an invalid player name")
		c.closeConn()
		return
	}
	c.bind = bindState{kind: bindJoinGame, name: normName}
	ctx.Engine().Send(c.convRegistry, game.LookupRequest{ID: id, ReplyTo: c.self}, c.self)
}

func (c *Connection) handleReconnect(ctx actorkit.Context, body []byte) {
	r := wire.NewReader(body)
	pid := r.U64()
	nReceived := r.U16()
	if r.Done() != nil {
		c.invalidCommand(wire.Reconnect)
		return
	}
	c.bind = bindState{kind: bindReconnect, nReceived: nReceived}
	ctx.Engine().Send(c.personRegistry, person.ActivateRequest{ID: pid, ReplyTo: c.self}, c.self)
}

// onConversationRef answers the registry round trip started by NEW_PLAYER,
// NEW_PRIVATE_GAME, or JOIN_GAME.
func (c *Connection) onConversationRef(ctx actorkit.Context, msg game.ConversationRefResponse) {
	if c.bind.kind == bindNone {
		return
	}

	if c.bind.kind == bindJoinGame && !msg.Found {
		c.writeAndClose(wire.BadConversationID)
		return
	}

	c.convID = msg.Ref.ID
	c.convPID = msg.Ref.PID
	ctx.Engine().Send(c.convPID, game.JoinRequest{Name: c.bind.name, ReplyTo: c.self}, c.self)
}

// onJoinResponse answers the seat allocation started by onConversationRef.
func (c *Connection) onJoinResponse(ctx actorkit.Context, msg game.JoinResponse) {
	if c.bind.kind == bindNone {
		return
	}
	if msg.Full {
		c.writeAndClose(wire.ConversationFull)
		return
	}

	c.playerNum = msg.PlayerNum
	c.primeFromSnapshot(msg.Snapshot)

	ctx.Engine().Send(c.personRegistry, person.CreateRequest{
		Addr:            c.addr,
		ConversationID:  c.convID,
		ConversationPID: c.convPID,
		PlayerNum:       c.playerNum,
		MessageOffset:   msg.Snapshot.MessageCount,
		ReplyTo:         c.self,
	}, c.self)
}

func (c *Connection) onPersonCreated(ctx actorkit.Context, msg person.CreateResponse) {
	if c.bind.kind == bindNone {
		return
	}
	c.personID = msg.ID
	c.messageOffset = 0
	c.finishBind(ctx)
	c.bind = bindState{}
}

// onPersonActivated answers the RECONNECT round trip: the person registry
// was asked for the id presented on the wire.
func (c *Connection) onPersonActivated(ctx actorkit.Context, msg person.ActivateResponse) {
	if c.bind.kind != bindReconnect {
		return
	}
	if !msg.Found {
		c.writeAndClose(wire.BadPlayerID)
		return
	}

	p := msg.Person
	c.personID = p.ID
	c.convID = p.ConversationID
	c.convPID = p.ConversationPID
	c.playerNum = p.PlayerNum
	c.messageOffset = p.MessageOffset + int(c.bind.nReceived)

	ctx.Engine().Send(c.convPID, game.MessageRangeRequest{FromIdx: c.messageOffset, ReplyTo: c.self}, c.self)
}

// onMessageRange completes a RECONNECT: if n_received put message_offset
// past what the log actually holds, that's a fatal protocol error; on
// success it rebinds the person, subscribes to the conversation, and seeds
// the backlog into pendingMessages.
func (c *Connection) onMessageRange(ctx actorkit.Context, msg game.MessageRangeResponse) {
	if c.bind.kind != bindReconnect {
		return
	}
	if c.messageOffset > msg.Total {
		c.log.Warn().Msgf("Client claimed to have received %d messages but only %d are available", c.messageOffset, msg.Total)
		c.closeConn()
		return
	}

	ctx.Engine().Send(c.personRegistry, person.RebindRequest{
		ID: c.personID, ConversationID: c.convID, ConversationPID: c.convPID, PlayerNum: c.playerNum,
	}, c.self)

	for i, m := range msg.Messages {
		c.pendingMessages = append(c.pendingMessages, pendingMessage{Idx: msg.FromIdx + i, PlayerNum: m.PlayerNum, Text: m.Text})
	}
	c.dirty.message = true

	ctx.Engine().Send(c.convPID, game.FollowRequest{ReplyTo: c.self}, c.self)
}

// onFollowResponse arrives once the conversation has registered c as a
// listener, carrying the snapshot needed to prime dirty bits (the RECONNECT
// path, since NEW_PLAYER/NEW_PRIVATE_GAME/JOIN_GAME already primed from
// JoinResponse's snapshot and subscribed as a side effect of JoinRequest).
func (c *Connection) onFollowResponse(ctx actorkit.Context, msg game.FollowResponse) {
	if c.bound {
		return
	}
	c.primeFromSnapshot(msg.Snapshot)
	c.finishBind(ctx)
	c.bind = bindState{}
}

func (c *Connection) handleLeave(ctx actorkit.Context) {
	if !c.bound {
		return
	}
	c.leftViaLeave = true
	ctx.Engine().Send(c.convPID, game.DisconnectRequest{PlayerNum: c.playerNum}, c.self)
	ctx.Engine().Send(c.convRegistry, game.CheckEmptyRequest{ID: c.convID}, c.self)
	if c.personID != 0 {
		ctx.Engine().Send(c.personRegistry, person.ForgetRequest{ID: c.personID}, c.self)
	}
	c.dirty.end = true
	c.drainAll(ctx)
}

// onConversationEvent applies a live change broadcast from the conversation
// into the connection's local cache and the corresponding dirty bit(s),
// then runs the drain.
func (c *Connection) onConversationEvent(ctx actorkit.Context, msg game.ConversationEventMsg) {
	if !c.bound {
		return
	}
	ev := msg.Event
	switch ev.Kind {
	case game.EventPlayerJoined:
		// PLAYER_NAME and PLAYER_FLAGS follow immediately; nothing to do
		// for the join marker itself.

	case game.EventPlayerName:
		if int(ev.PlayerNum) < len(msg.Snapshot.Players) {
			c.playerNames[ev.PlayerNum] = msg.Snapshot.Players[ev.PlayerNum].Name
		}
		c.dirty.playerName[ev.PlayerNum] = true

	case game.EventPlayerFlags:
		if int(ev.PlayerNum) < len(msg.Snapshot.Players) {
			c.playerFlags[ev.PlayerNum] = msg.Snapshot.Players[ev.PlayerNum].Flags
		}
		c.dirty.playerFlags[ev.PlayerNum] = true

	case game.EventPlayerShouted:
		c.dirty.shoutedBy = append(c.dirty.shoutedBy, ev.PlayerNum)

	case game.EventTile:
		if int(ev.TileNum) < len(msg.Snapshot.Tiles) {
			c.tiles[ev.TileNum] = msg.Snapshot.Tiles[ev.TileNum]
		}
		c.nTilesInPlay = msg.Snapshot.NTilesInPlay
		c.dirty.tile[ev.TileNum] = true

	case game.EventNTiles:
		c.totalNTiles = msg.Snapshot.TotalNTiles
		c.dirty.nTiles = true

	case game.EventLanguage:
		c.language = msg.Snapshot.Language
		c.dirty.language = true

	case game.EventMessage:
		if ev.MessageIdx >= c.messageOffset {
			c.pendingMessages = append(c.pendingMessages, pendingMessage{Idx: ev.MessageIdx, PlayerNum: ev.PlayerNum, Text: ev.MessageText})
			c.dirty.message = true
		}

	case game.EventConversationStarted:
		// No dedicated wire opcode; reflected by the NTiles/flags events
		// that already accompany the first TURN.

	case game.EventEnded:
		c.dirty.end = true
	}

	c.drainAll(ctx)
}
