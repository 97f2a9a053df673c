package game

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vsxgame/vsxserver/internal/actorkit"
	"github.com/vsxgame/vsxserver/internal/clock"
)

type gameCollector struct {
	out chan interface{}
}

func (c *gameCollector) Receive(ctx actorkit.Context) {
	switch ctx.Message().(type) {
	case actorkit.Started, actorkit.Stopping, actorkit.Stopped:
		return
	}
	c.out <- ctx.Message()
}

func spawnGameCollector(engine *actorkit.Engine) (*actorkit.PID, chan interface{}) {
	out := make(chan interface{}, 8)
	pid := engine.Spawn("collector", actorkit.NewProps(func() actorkit.Actor {
		return &gameCollector{out: out}
	}))
	return pid, out
}

func recvReg(t *testing.T, ch chan interface{}) interface{} {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestFindOrCreatePendingReusesSameRoom(t *testing.T) {
	engine := actorkit.NewEngine(zerolog.Nop())
	regPID := engine.Spawn("registry", NewRegistryProducer(engine, testRegistry(), clock.NewFake(0)))
	replyPID, replies := spawnGameCollector(engine)

	engine.Send(regPID, FindOrCreatePendingRequest{Room: "room-a", Language: "eo", ReplyTo: replyPID}, nil)
	first := recvReg(t, replies).(ConversationRefResponse)
	require.True(t, first.Found)

	engine.Send(regPID, FindOrCreatePendingRequest{Room: "room-a", Language: "eo", ReplyTo: replyPID}, nil)
	second := recvReg(t, replies).(ConversationRefResponse)
	require.Equal(t, first.Ref.ID, second.Ref.ID)

	engine.Send(regPID, FindOrCreatePendingRequest{Room: "room-b", Language: "eo", ReplyTo: replyPID}, nil)
	third := recvReg(t, replies).(ConversationRefResponse)
	require.NotEqual(t, first.Ref.ID, third.Ref.ID)
}

func TestLookupFindsCreatedPrivateConversation(t *testing.T) {
	engine := actorkit.NewEngine(zerolog.Nop())
	regPID := engine.Spawn("registry", NewRegistryProducer(engine, testRegistry(), clock.NewFake(0)))
	replyPID, replies := spawnGameCollector(engine)

	engine.Send(regPID, CreatePrivateRequest{Language: "en", ReplyTo: replyPID}, nil)
	created := recvReg(t, replies).(ConversationRefResponse)

	engine.Send(regPID, LookupRequest{ID: created.Ref.ID, ReplyTo: replyPID}, nil)
	found := recvReg(t, replies).(ConversationRefResponse)
	require.True(t, found.Found)
	require.Equal(t, created.Ref.ID, found.Ref.ID)
}

func TestLookupUnknownIDNotFound(t *testing.T) {
	engine := actorkit.NewEngine(zerolog.Nop())
	regPID := engine.Spawn("registry", NewRegistryProducer(engine, testRegistry(), clock.NewFake(0)))
	replyPID, replies := spawnGameCollector(engine)

	engine.Send(regPID, LookupRequest{ID: 123456, ReplyTo: replyPID}, nil)
	resp := recvReg(t, replies).(ConversationRefResponse)
	require.False(t, resp.Found)
}

func TestRoomStopsBeingPendingOnceConversationStarts(t *testing.T) {
	engine := actorkit.NewEngine(zerolog.Nop())
	regPID := engine.Spawn("registry", NewRegistryProducer(engine, testRegistry(), clock.NewFake(0)))
	replyPID, replies := spawnGameCollector(engine)

	engine.Send(regPID, FindOrCreatePendingRequest{Room: "room-a", Language: "eo", ReplyTo: replyPID}, nil)
	created := recvReg(t, replies).(ConversationRefResponse)

	for i := 0; i < MaxPlayers; i++ {
		joinerPID, joinerReplies := spawnGameCollector(engine)
		engine.Send(created.Ref.PID, JoinRequest{Name: "p", ReplyTo: joinerPID}, nil)
		_ = recvReg(t, joinerReplies).(JoinResponse)
	}

	require.Eventually(t, func() bool {
		probe, probeReplies := spawnGameCollector(engine)
		engine.Send(regPID, FindOrCreatePendingRequest{Room: "room-a", Language: "eo", ReplyTo: probe}, nil)
		resp := recvReg(t, probeReplies).(ConversationRefResponse)
		return resp.Ref.ID != created.Ref.ID
	}, time.Second, 10*time.Millisecond)
}

func TestCheckEmptyReapsConversationWithNoConnectedPlayers(t *testing.T) {
	engine := actorkit.NewEngine(zerolog.Nop())
	regPID := engine.Spawn("registry", NewRegistryProducer(engine, testRegistry(), clock.NewFake(0)))
	replyPID, replies := spawnGameCollector(engine)

	engine.Send(regPID, CreatePrivateRequest{Language: "eo", ReplyTo: replyPID}, nil)
	created := recvReg(t, replies).(ConversationRefResponse)

	engine.Send(created.Ref.PID, JoinRequest{Name: "solo", ReplyTo: replyPID}, nil)
	joined := recvReg(t, replies).(JoinResponse)
	engine.Send(created.Ref.PID, DisconnectRequest{PlayerNum: joined.PlayerNum}, nil)

	engine.Send(regPID, CheckEmptyRequest{ID: created.Ref.ID}, nil)

	require.Eventually(t, func() bool {
		probe, probeReplies := spawnGameCollector(engine)
		engine.Send(regPID, LookupRequest{ID: created.Ref.ID, ReplyTo: probe}, nil)
		resp := recvReg(t, probeReplies).(ConversationRefResponse)
		return !resp.Found
	}, time.Second, 10*time.Millisecond)
}
