package serverconn

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vsxgame/vsxserver/internal/actorkit"
	"github.com/vsxgame/vsxserver/internal/clock"
	"github.com/vsxgame/vsxserver/internal/game"
	"github.com/vsxgame/vsxserver/internal/person"
	"github.com/vsxgame/vsxserver/internal/tileset"
	"github.com/vsxgame/vsxserver/internal/wire"
)

// pipeTransport is an in-memory Transport: everything written to it lands
// in out, everything fed via feed() is returned by Read.
type pipeTransport struct {
	mu     sync.Mutex
	toRead bytes.Buffer
	cond   *sync.Cond
	closed bool

	out bytes.Buffer
}

func newPipeTransport() *pipeTransport {
	t := &pipeTransport{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *pipeTransport) feed(b []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toRead.Write(b)
	t.cond.Broadcast()
}

func (t *pipeTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.toRead.Len() == 0 && !t.closed {
		t.cond.Wait()
	}
	if t.toRead.Len() == 0 && t.closed {
		return 0, io.EOF
	}
	return t.toRead.Read(p)
}

func (t *pipeTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	return t.out.Write(p)
}

func (t *pipeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.cond.Broadcast()
	return nil
}

func (t *pipeTransport) writtenFrames() []wire.Event {
	t.mu.Lock()
	data := append([]byte(nil), t.out.Bytes()...)
	t.mu.Unlock()
	p := wire.NewParser(wire.RoleClient)
	events, err := p.Feed(data)
	if err != nil {
		// Tests only assert on frames already flushed; a trailing partial
		// frame is expected once the peer closes mid-write and is not an
		// error for this helper's purposes.
		return events
	}
	return events
}

type fakeAddr struct{ s string }

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return a.s }

func testTileRegistry() *tileset.Registry {
	return tileset.NewRegistry([]*tileset.Set{
		{Language: "eo", Tiles: []tileset.TileSpec{{Letter: "A", Count: 3}, {Letter: "B", Count: 2}}},
	})
}

type harness struct {
	engine  *actorkit.Engine
	convReg *actorkit.PID
	personR *actorkit.PID
	clk     *clock.Fake
	conn    *actorkit.PID
	transp  *pipeTransport
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	engine := actorkit.NewEngine(zerolog.Nop())
	clk := clock.NewFake(0)
	convReg := engine.Spawn("conv-registry", game.NewRegistryProducer(engine, testTileRegistry(), clk))
	personR := engine.Spawn("person-registry", person.NewRegistryProducer(engine, clk, convReg))

	transp := newPipeTransport()
	addr := fakeAddr{s: "10.0.0.1:5555"}
	connPID := engine.Spawn("conn", actorkit.NewProps(
		NewProducer(engine, zerolog.Nop(), transp, addr, convReg, personR, clk),
	))

	return &harness{engine: engine, convReg: convReg, personR: personR, clk: clk, conn: connPID, transp: transp}
}

func doHandshake(h *harness) {
	h.transp.feed([]byte(wire.HandshakeRequest))
	waitForBytes(h.transp, 1)
}

func waitForBytes(t *pipeTransport, min int) {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		t.mu.Lock()
		n := t.out.Len()
		t.mu.Unlock()
		if n >= min {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func waitForCondition(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func sendCommand(t *testing.T, h *harness, n int, err error, buf []byte) {
	t.Helper()
	require.NoError(t, err)
	h.transp.feed(wire.EncodeFrame(wire.FrameBinary, buf[:n]))
}

func TestNewPlayerBindsAndDrainsInPriorityOrder(t *testing.T) {
	h := newHarness(t)
	doHandshake(h)

	buf := make([]byte, wire.MaxPayloadSize)
	n, err := wire.WriteCommand(buf, wire.NewPlayer, wire.Str("room-1"), wire.Str("alice"))
	sendCommand(t, h, n, err, buf)

	ok := waitForCondition(func() bool {
		for _, ev := range h.transp.writtenFrames() {
			if ev.Kind == wire.EventMessage && len(ev.Payload) > 0 && wire.Command(ev.Payload[0]) == wire.Sync {
				return true
			}
		}
		return false
	})
	require.True(t, ok, "expected a SYNC frame to eventually be written")

	frames := h.transp.writtenFrames()
	var opcodes []wire.Command
	for _, ev := range frames {
		if ev.Kind == wire.EventMessage && len(ev.Payload) > 0 {
			opcodes = append(opcodes, wire.Command(ev.Payload[0]))
		}
	}
	require.Contains(t, opcodes, wire.PlayerID)
	require.Contains(t, opcodes, wire.ConversationID)
	require.Contains(t, opcodes, wire.NTiles)
	require.Contains(t, opcodes, wire.Sync)

	// PLAYER_ID must precede CONVERSATION_ID, which must precede SYNC.
	idxOf := func(c wire.Command) int {
		for i, o := range opcodes {
			if o == c {
				return i
			}
		}
		return -1
	}
	require.Less(t, idxOf(wire.PlayerID), idxOf(wire.ConversationID))
	require.Less(t, idxOf(wire.ConversationID), idxOf(wire.Sync))
}

func TestJoinGameUnknownIDSendsBadConversationIDAndCloses(t *testing.T) {
	h := newHarness(t)
	doHandshake(h)

	buf := make([]byte, wire.MaxPayloadSize)
	n, err := wire.WriteCommand(buf, wire.JoinGame, wire.U64(0xdeadbeef), wire.Str("bob"))
	sendCommand(t, h, n, err, buf)

	ok := waitForCondition(func() bool {
		for _, ev := range h.transp.writtenFrames() {
			if ev.Kind == wire.EventMessage && len(ev.Payload) > 0 && wire.Command(ev.Payload[0]) == wire.BadConversationID {
				return true
			}
		}
		return false
	})
	require.True(t, ok)

	ok = waitForCondition(func() bool {
		h.transp.mu.Lock()
		defer h.transp.mu.Unlock()
		return h.transp.closed
	})
	require.True(t, ok, "connection should close after BAD_CONVERSATION_ID")
}

func TestReconnectUnknownPersonIDSendsBadPlayerIDAndCloses(t *testing.T) {
	h := newHarness(t)
	doHandshake(h)

	buf := make([]byte, wire.MaxPayloadSize)
	n, err := wire.WriteCommand(buf, wire.Reconnect, wire.U64(0x1234), wire.U16(0))
	sendCommand(t, h, n, err, buf)

	ok := waitForCondition(func() bool {
		for _, ev := range h.transp.writtenFrames() {
			if ev.Kind == wire.EventMessage && len(ev.Payload) > 0 && wire.Command(ev.Payload[0]) == wire.BadPlayerID {
				return true
			}
		}
		return false
	})
	require.True(t, ok)
}

func TestCommandBeforeIdentityCloses(t *testing.T) {
	h := newHarness(t)
	doHandshake(h)

	buf := make([]byte, wire.MaxPayloadSize)
	n, err := wire.WriteCommand(buf, wire.Turn)
	sendCommand(t, h, n, err, buf)

	ok := waitForCondition(func() bool {
		h.transp.mu.Lock()
		defer h.transp.mu.Unlock()
		return h.transp.closed
	})
	require.True(t, ok, "connection should close when a non-identity command arrives unbound")
}

func TestLeaveSendsEndAndCloses(t *testing.T) {
	h := newHarness(t)
	doHandshake(h)

	buf := make([]byte, wire.MaxPayloadSize)
	n, err := wire.WriteCommand(buf, wire.NewPlayer, wire.Str("room-2"), wire.Str("carol"))
	sendCommand(t, h, n, err, buf)

	boundOK := waitForCondition(func() bool {
		for _, ev := range h.transp.writtenFrames() {
			if ev.Kind == wire.EventMessage && len(ev.Payload) > 0 && wire.Command(ev.Payload[0]) == wire.Sync {
				return true
			}
		}
		return false
	})
	require.True(t, boundOK)

	n, err = wire.WriteCommand(buf, wire.Leave)
	sendCommand(t, h, n, err, buf)

	ok := waitForCondition(func() bool {
		for _, ev := range h.transp.writtenFrames() {
			if ev.Kind == wire.EventMessage && len(ev.Payload) > 0 && wire.Command(ev.Payload[0]) == wire.End {
				return true
			}
		}
		return false
	})
	require.True(t, ok, "expected an END frame after LEAVE")

	ok = waitForCondition(func() bool {
		h.transp.mu.Lock()
		defer h.transp.mu.Unlock()
		return h.transp.closed
	})
	require.True(t, ok)
}

var _ net.Addr = fakeAddr{}
