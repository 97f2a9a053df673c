package game

import (
	"unicode/utf8"

	"github.com/vsxgame/vsxserver/internal/clock"
	"github.com/vsxgame/vsxserver/internal/tileset"
)

// State is where a conversation sits in its lifecycle.
type State int

const (
	AwaitingStart State = iota
	InProgress
)

// ShoutWindowMicros is how long a conversation stays "shouting" after a
// SHOUT command, suppressing further shouts; see DESIGN.md for why 3s was
// chosen.
const ShoutWindowMicros = 3_000_000

// Message is one append-only chat-log entry.
type Message struct {
	PlayerNum uint8
	Text      string
}

// Conversation is the authoritative state of one game: players, the
// shuffled tile deck, the chat log, turn order, and shout cooldown. Every
// mutating method assumes it is only ever called from the single goroutine
// driving the owning actor's mailbox — there is no internal locking.
type Conversation struct {
	ID       uint64
	State    State
	Players  []*Player
	Tiles    []*Tile
	Messages []Message

	TotalNTiles  int
	NTilesInPlay int

	lastShoutTime int64
	hasShouted    bool

	language string
	clk      clock.Clock
	tilesReg *tileset.Registry
	listeners []Listener
}

// New creates a conversation seeded with language's tile set (or the
// registry's default if language is unknown/empty), with its deck already
// shuffled. Tile positions are all (0,0) until the first Turn.
func New(id uint64, language string, reg *tileset.Registry, clk clock.Clock) *Conversation {
	c := &Conversation{
		ID:       id,
		State:    AwaitingStart,
		clk:      clk,
		tilesReg: reg,
	}
	c.applyTileSet(language)
	return c
}

func (c *Conversation) applyTileSet(language string) {
	set, ok := c.tilesReg.Get(language)
	if !ok {
		set = c.tilesReg.Default()
		language = ""
		if set != nil {
			language = set.Language
		}
	}
	c.language = language

	letters := []string{}
	if set != nil {
		letters = set.Letters()
	}
	if len(letters) > MaxTiles {
		letters = letters[:MaxTiles]
	}

	shuffleStrings(letters)

	tiles := make([]*Tile, len(letters))
	for i, l := range letters {
		tiles[i] = newTile(uint8(i), l)
	}
	c.Tiles = tiles
	c.TotalNTiles = len(tiles)
	c.NTilesInPlay = 0
}

// shuffleStrings performs a Fisher-Yates shuffle using the package's shared
// deterministic-when-seeded RNG (see rng.go) — grounded on the original's
// plain Fisher-Yates pass over the tile array.
func shuffleStrings(s []string) {
	for i := len(s) - 1; i > 0; i-- {
		j := randIntn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// NPlayers is the number of seats, connected or not.
func (c *Conversation) NPlayers() int { return len(c.Players) }

// ConnectedCount is how many seats currently have FlagConnected set.
func (c *Conversation) ConnectedCount() int {
	n := 0
	for _, p := range c.Players {
		if p.connected() {
			n++
		}
	}
	return n
}

// Join adds a new player seat with the given (already-normalized) name,
// returning it. Reaching MaxPlayers forces an immediate transition to
// InProgress, even if no tile has been turned yet.
func (c *Conversation) Join(name string) *Player {
	p := newPlayer(uint8(len(c.Players)), name)
	c.Players = append(c.Players, p)
	c.notify(Event{Kind: EventPlayerJoined, PlayerNum: p.Num})
	c.notify(Event{Kind: EventPlayerName, PlayerNum: p.Num})
	c.notify(Event{Kind: EventPlayerFlags, PlayerNum: p.Num})

	if len(c.Players) == MaxPlayers && c.State == AwaitingStart {
		c.State = InProgress
		c.notify(Event{Kind: EventConversationStarted})
	}

	return p
}

// Player looks up a seat by number.
func (c *Conversation) Player(num uint8) *Player {
	if int(num) >= len(c.Players) {
		return nil
	}
	return c.Players[num]
}

// Disconnect marks num as no longer connected, transferring NEXT_TURN to
// the next connected player (round-robin from the leaver's index) if the
// leaver held it.
func (c *Conversation) Disconnect(num uint8) {
	p := c.Player(num)
	if p == nil || !p.connected() {
		return
	}
	hadTurn := p.Flags&FlagNextTurn != 0
	p.setFlag(FlagConnected, false)
	p.setFlag(FlagTyping, false)
	c.notify(Event{Kind: EventPlayerFlags, PlayerNum: num})

	if hadTurn {
		p.setFlag(FlagNextTurn, false)
		if next := c.nextConnectedFrom(num); next != nil {
			next.setFlag(FlagNextTurn, true)
			c.notify(Event{Kind: EventPlayerFlags, PlayerNum: next.Num})
		}
		c.notify(Event{Kind: EventPlayerFlags, PlayerNum: num})
	}
}

func (c *Conversation) nextConnectedFrom(from uint8) *Player {
	n := len(c.Players)
	if n == 0 {
		return nil
	}
	for i := 1; i <= n; i++ {
		idx := (int(from) + i) % n
		if c.Players[idx].connected() {
			return c.Players[idx]
		}
	}
	return nil
}

// SetTyping toggles num's typing flag. No-op if the player has left.
func (c *Conversation) SetTyping(num uint8, typing bool) {
	p := c.Player(num)
	if p == nil || !p.connected() {
		return
	}
	if p.setFlag(FlagTyping, typing) {
		c.notify(Event{Kind: EventPlayerFlags, PlayerNum: num})
	}
}

// AddMessage appends text (clipped to 1000 bytes on a UTF-8-safe
// boundary) to the log under num, and implicitly clears num's typing flag.
func (c *Conversation) AddMessage(num uint8, text string) {
	const maxBytes = 1000
	if len(text) > maxBytes {
		text = clipUTF8(text, maxBytes)
	}
	c.Messages = append(c.Messages, Message{PlayerNum: num, Text: text})
	c.notify(Event{Kind: EventMessage, PlayerNum: num, MessageIdx: len(c.Messages) - 1, MessageText: text})
	c.SetTyping(num, false)
}

// clipUTF8 truncates s to at most n bytes without splitting a multi-byte
// rune's continuation bytes.
func clipUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.RuneStart(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	// If the final rune's leading byte survived but its continuation
	// bytes were cut, drop the incomplete rune entirely.
	if len(s) > 0 {
		if r, size := utf8.DecodeLastRuneInString(s); r == utf8.RuneError && size <= 1 {
			s = s[:len(s)-1]
		}
	}
	return s
}

// SetNTiles sets the deck size, effective only while AwaitingStart,
// clamped to [1, 256].
func (c *Conversation) SetNTiles(n int) {
	if c.State != AwaitingStart {
		return
	}
	if n < 1 {
		n = 1
	}
	if n > MaxTiles {
		n = MaxTiles
	}
	c.TotalNTiles = n
	c.notify(Event{Kind: EventNTiles})
}

// SetLanguage replaces the tile set, effective only while AwaitingStart,
// only from player 0, and only if reg has code. Unknown codes and
// off-seat requests are silently ignored rather than treated as protocol
// errors (see DESIGN.md's SET_LANGUAGE Open Question resolution).
func (c *Conversation) SetLanguage(requester uint8, code string) {
	if c.State != AwaitingStart || requester != 0 {
		return
	}
	if _, ok := c.tilesReg.Get(code); !ok {
		return
	}
	c.applyTileSet(code)
	c.notify(Event{Kind: EventLanguage})
	c.notify(Event{Kind: EventNTiles})
}

// Language returns the active tile set's language code.
func (c *Conversation) Language() string { return c.language }

// IsShouting reports whether a SHOUT is currently suppressed.
func (c *Conversation) IsShouting() bool {
	return c.hasShouted && c.clk.NowMicro()-c.lastShoutTime < ShoutWindowMicros
}

// Shout records a shout from num unless one is already in its cooldown
// window, in which case it's silently ignored.
func (c *Conversation) Shout(num uint8) {
	if c.IsShouting() {
		return
	}
	c.lastShoutTime = c.clk.NowMicro()
	c.hasShouted = true
	c.notify(Event{Kind: EventPlayerShouted, PlayerNum: num})
}

// Turn authorizes and applies a TURN command from num: only the current
// NEXT_TURN holder may turn, except the very first turn (free-for-all),
// and never while a shout is active.
func (c *Conversation) Turn(num uint8) error {
	if c.IsShouting() {
		return ErrShoutInProgress
	}

	p := c.Player(num)
	if p == nil || !p.connected() {
		return ErrUnknownPlayer
	}
	if c.NTilesInPlay >= c.TotalNTiles {
		return nil
	}

	firstTurn := c.NTilesInPlay == 0
	if !firstTurn && p.Flags&FlagNextTurn == 0 {
		return ErrNotYourTurn
	}

	if p.Flags&FlagNextTurn != 0 {
		p.setFlag(FlagNextTurn, false)
		c.notify(Event{Kind: EventPlayerFlags, PlayerNum: num})
	}

	tileNum := c.NTilesInPlay
	tile := c.Tiles[tileNum]
	tile.X, tile.Y = findFreeLocation(c.Tiles, tileNum)
	c.NTilesInPlay++
	c.notify(Event{Kind: EventTile, TileNum: uint8(tileNum)})

	if c.State == AwaitingStart {
		c.State = InProgress
		c.notify(Event{Kind: EventConversationStarted})
	}

	if c.NTilesInPlay < c.TotalNTiles {
		if next := c.nextConnectedFrom(num); next != nil {
			next.setFlag(FlagNextTurn, true)
			c.notify(Event{Kind: EventPlayerFlags, PlayerNum: next.Num})
		}
	}

	return nil
}

// MoveTile relocates a tile already in play, stamping it with mover's
// number.
func (c *Conversation) MoveTile(mover, tileNum uint8, x, y int16) error {
	if int(tileNum) >= c.NTilesInPlay {
		return ErrTileNotInPlay
	}
	t := c.Tiles[tileNum]
	t.X, t.Y = x, y
	t.LastPlayer = mover
	c.notify(Event{Kind: EventTile, TileNum: tileNum})
	return nil
}
