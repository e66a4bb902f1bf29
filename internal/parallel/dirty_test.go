package parallel

import (
	"sync"
	"testing"

	"github.com/gogpu/tilepipe/tilestore"
)

// =============================================================================
// TileMask Tests
// =============================================================================

func TestTileMask_Create(t *testing.T) {
	tests := []struct {
		name     string
		bounds   tilestore.Rect
		wantNil  bool
		wantCols int
		wantRows int
	}{
		{"single tile", tilestore.XYWH(0, 0, 64, 64), false, 1, 1},
		{"640x441", tilestore.XYWH(0, 0, 640, 441), false, 10, 7},
		{"straddles origin", tilestore.XYWH(-1, -1, 2, 2), false, 2, 2},
		{"empty", tilestore.Rect{}, true, 0, 0},
		{"zero height", tilestore.XYWH(0, 0, 10, 0), true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewTileMask(tt.bounds)
			if (m == nil) != tt.wantNil {
				t.Fatalf("NewTileMask(%v) nil = %v, want %v", tt.bounds, m == nil, tt.wantNil)
			}
			if m == nil {
				return
			}
			_, cols, rows := m.Window()
			if cols != tt.wantCols || rows != tt.wantRows {
				t.Errorf("Window() = %dx%d, want %dx%d", cols, rows, tt.wantCols, tt.wantRows)
			}
			if !m.IsEmpty() {
				t.Error("new mask should be empty")
			}
		})
	}
}

func TestTileMask_MarkRect(t *testing.T) {
	m := NewTileMask(tilestore.XYWH(-64, 0, 640, 441))

	m.MarkRect(tilestore.XYWH(0, 0, 160, 441))
	m.MarkRect(tilestore.XYWH(100, 0, 10, 10)) // already covered
	m.MarkRect(tilestore.XYWH(-10, 0, 5, 5))

	// 3 columns x 7 rows plus tile (-1, 0).
	if m.Count() != 22 {
		t.Errorf("Count() = %d, want 22", m.Count())
	}
	if !m.IsMarked(tilestore.TileKey{Col: -1, Row: 0}) {
		t.Error("tile (-1,0) should be marked")
	}
	if m.IsMarked(tilestore.TileKey{Col: 3, Row: 0}) {
		t.Error("tile (3,0) should not be marked")
	}
	if m.IsMarked(tilestore.TileKey{Col: 100, Row: 100}) {
		t.Error("keys outside the window are never marked")
	}
}

func TestTileMask_KeysRowMajor(t *testing.T) {
	m := NewTileMask(tilestore.XYWH(0, 0, 256, 256))
	m.Mark(tilestore.TileKey{Col: 3, Row: 1})
	m.Mark(tilestore.TileKey{Col: 0, Row: 2})
	m.Mark(tilestore.TileKey{Col: 1, Row: 0})
	m.Mark(tilestore.TileKey{Col: 9, Row: 9}) // outside

	want := []tilestore.TileKey{{Col: 1, Row: 0}, {Col: 3, Row: 1}, {Col: 0, Row: 2}}
	got := m.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	m.Clear()
	if !m.IsEmpty() || m.Count() != 0 {
		t.Error("Clear() should unmark all tiles")
	}
}

func TestTileMask_LargeWindow(t *testing.T) {
	// More than 64 tiles spans several words.
	m := NewTileMask(tilestore.XYWH(0, 0, 64*20, 64*20))
	m.MarkRect(tilestore.XYWH(0, 0, 64*20, 64*20))
	if m.Count() != 400 {
		t.Errorf("Count() = %d, want 400", m.Count())
	}
	if len(m.Keys()) != 400 {
		t.Errorf("len(Keys()) = %d, want 400", len(m.Keys()))
	}
}

func TestTileMask_ConcurrentMark(t *testing.T) {
	m := NewTileMask(tilestore.XYWH(0, 0, 64*16, 64*16))

	var wg sync.WaitGroup
	for row := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for col := range 16 {
				m.Mark(tilestore.TileKey{Col: col, Row: row})
			}
		}()
	}
	wg.Wait()

	if m.Count() != 256 {
		t.Errorf("Count() = %d, want 256", m.Count())
	}
}

func BenchmarkTileMask_MarkRect(b *testing.B) {
	m := NewTileMask(tilestore.XYWH(0, 0, 1920, 1080))
	r := tilestore.XYWH(100, 100, 800, 600)
	for range b.N {
		m.MarkRect(r)
	}
}
