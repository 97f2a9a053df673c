package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindFreeLocationFirstTileGoesAtCenter(t *testing.T) {
	x, y := findFreeLocation(nil, 0)
	require.Equal(t, int16(BoardCenterX), x)
	require.Equal(t, int16(BoardCenterY), y)
}

func TestFindFreeLocationSecondTileGoesWestOfCenter(t *testing.T) {
	center := newTile(0, "A")
	center.X, center.Y = int16(BoardCenterX), int16(BoardCenterY)
	tiles := []*Tile{center}

	x, y := findFreeLocation(tiles, 1)
	require.Equal(t, int16(BoardCenterX-(TileSize+TileGap)), x)
	require.Equal(t, int16(BoardCenterY), y)
}

func TestFindFreeLocationNeverOverlapsPlaced(t *testing.T) {
	tiles := make([]*Tile, 0, 40)
	for i := 0; i < 40; i++ {
		x, y := findFreeLocation(tiles, len(tiles))
		require.False(t, overlaps(x, y, tiles, len(tiles)), "new tile %d overlaps an existing tile", i)

		tile := newTile(uint8(i), "A")
		tile.X, tile.Y = x, y
		tiles = append(tiles, tile)
	}

	for i, a := range tiles {
		for j, b := range tiles {
			if i == j {
				continue
			}
			overlap := a.X < b.X+TileSize && a.X+TileSize > b.X &&
				a.Y < b.Y+TileSize && a.Y+TileSize > b.Y
			require.False(t, overlap, "tile %d overlaps tile %d", i, j)
		}
	}
}

func TestNewTileStartsUnmoved(t *testing.T) {
	tile := newTile(3, "Z")
	require.Equal(t, uint8(3), tile.Num)
	require.Equal(t, "Z", tile.Letter)
	require.Equal(t, NoPlayer, tile.LastPlayer)
}
