package parallel

import (
	"math/bits"
	"sync/atomic"

	"github.com/gogpu/tilepipe/tilestore"
)

// TileMask is a bitmap of tiles over a rectangular window of the tile plane.
//
// The scheduler marks every rectangle of a node's dirty region into a mask
// and then visits each marked tile once, in row-major order, regardless of
// how many rectangles touch it.
//
// Bit index = (row-origin.Row)*cols + (col-origin.Col), packed 64 per word.
// All methods are safe for concurrent use.
type TileMask struct {
	words  []atomic.Uint64
	origin tilestore.TileKey
	cols   int
	rows   int
}

// NewTileMask creates an empty mask covering every tile that intersects
// bounds. It returns nil if bounds is empty.
func NewTileMask(bounds tilestore.Rect) *TileMask {
	first, last, ok := tilestore.TileRange(bounds)
	if !ok {
		return nil
	}

	cols := last.Col - first.Col + 1
	rows := last.Row - first.Row + 1
	return &TileMask{
		words:  make([]atomic.Uint64, (cols*rows+63)/64),
		origin: first,
		cols:   cols,
		rows:   rows,
	}
}

// index returns the bit index of key, or -1 outside the window.
func (m *TileMask) index(key tilestore.TileKey) int {
	c := key.Col - m.origin.Col
	r := key.Row - m.origin.Row
	if c < 0 || c >= m.cols || r < 0 || r >= m.rows {
		return -1
	}
	return r*m.cols + c
}

// Mark marks one tile. Keys outside the window are ignored.
func (m *TileMask) Mark(key tilestore.TileKey) {
	idx := m.index(key)
	if idx < 0 {
		return
	}
	m.words[idx/64].Or(1 << (idx & 63))
}

// MarkRect marks every tile intersecting the pixel rectangle r.
func (m *TileMask) MarkRect(r tilestore.Rect) {
	_ = tilestore.ForEachTileKey(r, func(key tilestore.TileKey) error {
		m.Mark(key)
		return nil
	})
}

// IsMarked reports whether key is marked.
func (m *TileMask) IsMarked(key tilestore.TileKey) bool {
	idx := m.index(key)
	if idx < 0 {
		return false
	}
	return m.words[idx/64].Load()&(1<<(idx&63)) != 0
}

// IsEmpty reports whether no tile is marked.
func (m *TileMask) IsEmpty() bool {
	for i := range m.words {
		if m.words[i].Load() != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of marked tiles.
func (m *TileMask) Count() int {
	n := 0
	for i := range m.words {
		n += bits.OnesCount64(m.words[i].Load())
	}
	return n
}

// Clear unmarks all tiles.
func (m *TileMask) Clear() {
	for i := range m.words {
		m.words[i].Store(0)
	}
}

// Keys returns the marked tiles in row-major order.
func (m *TileMask) Keys() []tilestore.TileKey {
	keys := make([]tilestore.TileKey, 0, m.Count())
	m.ForEach(func(key tilestore.TileKey) {
		keys = append(keys, key)
	})
	return keys
}

// ForEach calls fn for each marked tile in row-major order.
func (m *TileMask) ForEach(fn func(tilestore.TileKey)) {
	for wordIdx := range m.words {
		word := m.words[wordIdx].Load()
		for word != 0 {
			bit := bits.TrailingZeros64(word)
			idx := wordIdx*64 + bit
			fn(tilestore.TileKey{
				Col: m.origin.Col + idx%m.cols,
				Row: m.origin.Row + idx/m.cols,
			})
			word &^= 1 << bit
		}
	}
}

// Window returns the first tile and the window size in tiles.
func (m *TileMask) Window() (origin tilestore.TileKey, cols, rows int) {
	return m.origin, m.cols, m.rows
}
