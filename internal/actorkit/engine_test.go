package actorkit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type echoActor struct {
	received chan interface{}
}

func (a *echoActor) Receive(ctx Context) {
	switch ctx.Message().(type) {
	case Started, Stopping, Stopped:
		return
	}
	a.received <- ctx.Message()
}

func TestEngineSpawnSendStop(t *testing.T) {
	e := NewEngine(zerolog.Nop())

	received := make(chan interface{}, 1)
	pid := e.Spawn("echo", NewProps(func() Actor {
		return &echoActor{received: received}
	}))
	require.NotNil(t, pid)

	e.Send(pid, "hello", nil)

	select {
	case msg := <-received:
		require.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	e.Stop(pid)
	require.Eventually(t, func() bool {
		return e.Count() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestEngineShutdownStopsAllActors(t *testing.T) {
	e := NewEngine(zerolog.Nop())
	for i := 0; i < 5; i++ {
		e.Spawn("worker", NewProps(func() Actor {
			return &echoActor{received: make(chan interface{}, 1)}
		}))
	}
	require.Equal(t, 5, e.Count())

	e.Shutdown(time.Second)
	require.Equal(t, 0, e.Count())
}

type panickyActor struct{}

func (a *panickyActor) Receive(ctx Context) {
	if _, ok := ctx.Message().(string); ok {
		panic("boom")
	}
}

func TestActorPanicStopsItself(t *testing.T) {
	e := NewEngine(zerolog.Nop())
	pid := e.Spawn("panicky", NewProps(func() Actor { return &panickyActor{} }))
	e.Send(pid, "trigger", nil)

	require.Eventually(t, func() bool {
		return e.Count() == 0
	}, time.Second, 5*time.Millisecond)
}
