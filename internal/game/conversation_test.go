package game

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/vsxgame/vsxserver/internal/clock"
	"github.com/vsxgame/vsxserver/internal/tileset"
)

func testRegistry() *tileset.Registry {
	return tileset.NewRegistry([]*tileset.Set{
		{Language: "eo", Tiles: []tileset.TileSpec{{Letter: "A", Count: 3}, {Letter: "B", Count: 2}}},
		{Language: "en", Tiles: []tileset.TileSpec{{Letter: "X", Count: 4}}},
	})
}

type recordingListener struct {
	events []Event
}

func (l *recordingListener) OnConversationEvent(ev Event, snap Snapshot) {
	l.events = append(l.events, ev)
}

func TestNewAppliesDefaultLanguageWhenUnknown(t *testing.T) {
	reg := testRegistry()
	c := New(1, "fr", reg, clock.NewFake(0))
	require.Equal(t, "eo", c.Language())
	require.Equal(t, 5, c.TotalNTiles)
	require.Equal(t, 0, c.NTilesInPlay)
}

func TestNewAppliesRequestedLanguage(t *testing.T) {
	reg := testRegistry()
	c := New(1, "en", reg, clock.NewFake(0))
	require.Equal(t, "en", c.Language())
	require.Equal(t, 4, c.TotalNTiles)
}

func TestJoinAssignsSequentialSeatsAndNotifies(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	l := &recordingListener{}
	c.AddListener(l)

	p0 := c.Join("Alice")
	p1 := c.Join("Bob")

	require.Equal(t, uint8(0), p0.Num)
	require.Equal(t, uint8(1), p1.Num)
	require.True(t, p0.connected())
	require.Len(t, l.events, 6) // joined+name+flags per player
}

func TestJoinAtMaxPlayersForcesInProgress(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	for i := 0; i < MaxPlayers; i++ {
		c.Join("p")
	}
	require.Equal(t, InProgress, c.State)
}

func TestDisconnectTransfersNextTurn(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	a := c.Join("A")
	b := c.Join("B")
	a.setFlag(FlagNextTurn, true)

	c.Disconnect(a.Num)

	require.False(t, a.connected())
	require.False(t, a.Flags&FlagNextTurn != 0)
	require.True(t, b.Flags&FlagNextTurn != 0)
}

func TestDisconnectWithoutNextTurnDoesNotAssignIt(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	a := c.Join("A")
	b := c.Join("B")

	c.Disconnect(a.Num)

	require.False(t, b.Flags&FlagNextTurn != 0)
}

func TestSetTypingTogglesFlagAndSkipsNoOpNotify(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	p := c.Join("A")
	l := &recordingListener{}
	c.AddListener(l)

	c.SetTyping(p.Num, true)
	require.True(t, p.Flags&FlagTyping != 0)
	before := len(l.events)

	c.SetTyping(p.Num, true) // already set, should be a no-op notify-wise
	require.Len(t, l.events, before)
}

func TestAddMessageClipsOversizeUTF8SafelyAndClearsTyping(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	p := c.Join("A")
	c.SetTyping(p.Num, true)

	longText := ""
	for i := 0; i < 1100; i++ {
		longText += "é" // 2-byte rune
	}
	c.AddMessage(p.Num, longText)

	require.Len(t, c.Messages, 1)
	require.LessOrEqual(t, len(c.Messages[0].Text), 1000)
	require.False(t, p.Flags&FlagTyping != 0)

	// clipped text must still be valid UTF-8 (no dangling continuation byte)
	for i := 0; i < len(c.Messages[0].Text); {
		r, size := utf8.DecodeRuneInString(c.Messages[0].Text[i:])
		require.NotEqual(t, utf8.RuneError, r)
		i += size
	}
}

func TestSetNTilesOnlyEffectiveAwaitingStartAndClamped(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))

	c.SetNTiles(0)
	require.Equal(t, 1, c.TotalNTiles)

	c.SetNTiles(1000)
	require.Equal(t, MaxTiles, c.TotalNTiles)

	c.SetNTiles(3)
	require.Equal(t, 3, c.TotalNTiles)

	c.State = InProgress
	c.SetNTiles(4)
	require.Equal(t, 3, c.TotalNTiles)
}

func TestSetLanguageOnlyFromPlayerZeroAndKnownCode(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	c.Join("A")
	c.Join("B")

	c.SetLanguage(1, "en") // not player 0, ignored
	require.Equal(t, "eo", c.Language())

	c.SetLanguage(0, "zz") // unknown code, ignored
	require.Equal(t, "eo", c.Language())

	c.SetLanguage(0, "en")
	require.Equal(t, "en", c.Language())

	c.State = InProgress
	c.SetLanguage(0, "eo") // no longer AwaitingStart, ignored
	require.Equal(t, "en", c.Language())
}

func TestShoutSuppressesWithinWindow(t *testing.T) {
	fake := clock.NewFake(0)
	c := New(1, "eo", testRegistry(), fake)
	p := c.Join("A")
	l := &recordingListener{}
	c.AddListener(l)

	c.Shout(p.Num)
	require.True(t, c.IsShouting())
	before := len(l.events)

	c.Shout(p.Num) // still inside window
	require.Len(t, l.events, before)

	fake.Advance(time.Duration(ShoutWindowMicros+1) * time.Microsecond)
	require.False(t, c.IsShouting())

	c.Shout(p.Num)
	require.Len(t, l.events, before+1)
}

func TestTurnFirstIsFreeForAllSubsequentRequireNextTurn(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	a := c.Join("A")
	b := c.Join("B")

	require.NoError(t, c.Turn(b.Num)) // first turn: anyone may go
	require.Equal(t, 1, c.NTilesInPlay)

	err := c.Turn(b.Num) // second turn: b does not hold NEXT_TURN
	require.ErrorIs(t, err, ErrNotYourTurn)

	require.True(t, a.Flags&FlagNextTurn != 0)
	require.NoError(t, c.Turn(a.Num))
	require.Equal(t, 2, c.NTilesInPlay)
}

func TestTurnRejectedWhileShouting(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	p := c.Join("A")
	c.Shout(p.Num)

	err := c.Turn(p.Num)
	require.ErrorIs(t, err, ErrShoutInProgress)
}

func TestTurnUnknownOrDisconnectedPlayerRejected(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	require.ErrorIs(t, c.Turn(5), ErrUnknownPlayer)

	p := c.Join("A")
	c.Disconnect(p.Num)
	require.ErrorIs(t, c.Turn(p.Num), ErrUnknownPlayer)
}

func TestTurnStartsConversationAndStopsAtDeckExhaustion(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	p := c.Join("A")
	require.Equal(t, AwaitingStart, c.State)

	for i := 0; i < c.TotalNTiles; i++ {
		require.NoError(t, c.Turn(p.Num))
	}
	require.Equal(t, InProgress, c.State)
	require.Equal(t, c.TotalNTiles, c.NTilesInPlay)

	require.NoError(t, c.Turn(p.Num)) // deck exhausted, no-op success
	require.Equal(t, c.TotalNTiles, c.NTilesInPlay)
}

func TestMoveTileRejectsTileNotInPlay(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	p := c.Join("A")

	err := c.MoveTile(p.Num, 0, 10, 10)
	require.ErrorIs(t, err, ErrTileNotInPlay)
}

func TestMoveTileRelocatesInPlayTile(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	p := c.Join("A")
	require.NoError(t, c.Turn(p.Num))

	err := c.MoveTile(p.Num, 0, 42, 84)
	require.NoError(t, err)
	require.Equal(t, int16(42), c.Tiles[0].X)
	require.Equal(t, int16(84), c.Tiles[0].Y)
	require.Equal(t, p.Num, c.Tiles[0].LastPlayer)
}

func TestRemoveListenerStopsFutureNotifications(t *testing.T) {
	c := New(1, "eo", testRegistry(), clock.NewFake(0))
	l := &recordingListener{}
	c.AddListener(l)
	c.Join("A")
	before := len(l.events)

	c.RemoveListener(l)
	c.Join("B")
	require.Len(t, l.events, before)
}
