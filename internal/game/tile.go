package game

// MaxTiles bounds the size of a conversation's shuffled deck.
const MaxTiles = 256

// NoPlayer is the sentinel last_player value meaning "never moved".
const NoPlayer uint8 = 255

// TileSize and TileGap are the geometry constants the free-location search
// uses to keep placed tiles from overlapping; see DESIGN.md for why these
// values were chosen.
const (
	TileSize = 20
	TileGap  = 5
)

// BoardCenterX and BoardCenterY are the fixed starting point the
// free-location search scans outward from.
const (
	BoardCenterX = 300 - TileSize/2
	BoardCenterY = 180 - TileSize/2
)

// Tile is one letter in the shuffled deck. Its letter never changes after
// allocation; only position and LastPlayer do.
type Tile struct {
	Num        uint8
	X, Y       int16
	Letter     string
	LastPlayer uint8
}

func newTile(num uint8, letter string) *Tile {
	return &Tile{Num: num, Letter: letter, LastPlayer: NoPlayer}
}

func overlaps(ax, ay int16, tiles []*Tile, n int) bool {
	for i := 0; i < n; i++ {
		t := tiles[i]
		if ax < t.X+TileSize && ax+TileSize > t.X &&
			ay < t.Y+TileSize && ay+TileSize > t.Y {
			return true
		}
	}
	return false
}

// findFreeLocation scans outward from the board center for the first
// position that doesn't overlap any of the first n already-placed tiles: y
// grows unbounded as the outer loop, x ranges over [0, 9) as the inner one,
// and each (x, y) pair is tried under all four sign combinations before x
// advances. This is the same nested search (not a ring walk) the reference
// free-location search performs, including its redundant duplicate checks
// when x or y is 0 (both signs produce the same offset that turn).
func findFreeLocation(tiles []*Tile, n int) (int16, int16) {
	stride := TileSize + TileGap

	for y := 0; ; y++ {
		for x := 0; x < 9; x++ {
			for _, signX := range [2]int{-1, 1} {
				for _, signY := range [2]int{-1, 1} {
					tryX := x*signX*stride + BoardCenterX
					tryY := y*signY*stride + BoardCenterY
					if !overlaps(int16(tryX), int16(tryY), tiles, n) {
						return int16(tryX), int16(tryY)
					}
				}
			}
		}
	}
}
