// Package tilestore implements a sparse, swappable store of fixed-size pixel tiles.
//
// A [Store] covers an infinite plane divided into 64x64 pixel tiles. Tiles
// are created lazily on first write; reading a missing tile yields the
// store's default pixel. When a memory budget is set, least-recently-used
// tiles are compressed with [codec.TileCompressor] and handed to a
// [Swapper]; the next access rehydrates them transparently.
//
// Writers obtain exclusive access to one tile at a time through
// [Store.AcquireTile]; at most one writer holds a given tile.
//
// Thread safety: Store is safe for concurrent use.
package tilestore

import (
	"fmt"
	"sync"
)

// Tile size constants.
const (
	// TileWidth is the width of a tile in pixels.
	TileWidth = 64

	// TileHeight is the height of a tile in pixels.
	TileHeight = 64

	// TilePixels is the number of pixels in a tile.
	TilePixels = TileWidth * TileHeight
)

// TileKey addresses a tile by column and row. Tile (0, 0) covers pixels
// [0, 64) x [0, 64); negative keys cover negative coordinates.
type TileKey struct {
	Col int
	Row int
}

// KeyAt returns the key of the tile containing pixel (x, y).
func KeyAt(x, y int) TileKey {
	return TileKey{Col: floorDiv(x, TileWidth), Row: floorDiv(y, TileHeight)}
}

// Bounds returns the pixel bounds of the tile.
func (k TileKey) Bounds() Rect {
	return Rect{X: k.Col * TileWidth, Y: k.Row * TileHeight, W: TileWidth, H: TileHeight}
}

// String returns "(col,row)".
func (k TileKey) String() string {
	return fmt.Sprintf("(%d,%d)", k.Col, k.Row)
}

// TileRange returns the inclusive range of tile keys intersecting r.
// ok is false when r is empty.
func TileRange(r Rect) (first, last TileKey, ok bool) {
	if r.Empty() {
		return TileKey{}, TileKey{}, false
	}
	return KeyAt(r.X, r.Y), KeyAt(r.Right()-1, r.Bottom()-1), true
}

// ForEachTileKey calls fn for every tile intersecting r in row-major order.
// It stops at the first error.
func ForEachTileKey(r Rect, fn func(TileKey) error) error {
	first, last, ok := TileRange(r)
	if !ok {
		return nil
	}
	for row := first.Row; row <= last.Row; row++ {
		for col := first.Col; col <= last.Col; col++ {
			if err := fn(TileKey{Col: col, Row: row}); err != nil {
				return err
			}
		}
	}
	return nil
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// tileState tracks where a tile's bytes live.
type tileState uint8

const (
	// stateResident: data holds the uncompressed tile.
	stateResident tileState = iota

	// stateSwapped: data is nil and slot holds the compressed record.
	stateSwapped
)

// tile is one store tile. All fields except key are guarded by mu.
type tile struct {
	key TileKey

	// mu serializes writers, readers, eviction and rehydration.
	mu sync.Mutex

	data  []byte
	state tileState
	slot  Slot
	dirty bool

	// removed is set when the tile has been dropped from the store while a
	// caller was waiting on mu; the caller must look the tile up again.
	removed bool

	// lru is the tile's residency list node; nil while swapped.
	// Guarded by the store mutex, not by mu.
	lru *lruNode
}
