package tilestore

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/tilepipe"
	"github.com/gogpu/tilepipe/codec"
)

// Store errors.
var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("tilestore: store closed")

	// ErrBufferSize is returned when a caller buffer does not match the
	// rectangle it describes.
	ErrBufferSize = errors.New("tilestore: buffer size does not match rectangle")
)

// Stats is a snapshot of store counters.
type Stats struct {
	Tiles        int
	Resident     int
	Swapped      int
	Evictions    uint64
	Rehydrations uint64
	SwapFailures uint64
}

// Store is a sparse tiled pixel device.
type Store struct {
	name      string
	pixelSize int
	tileBytes int

	defaultPixel []byte
	defaultTile  []byte

	compressor *codec.TileCompressor
	swapper    Swapper
	ownSwapper bool
	budget     int
	buffers    *bufferPool

	// mu guards tiles, resident and closed. Lock order: tile.mu before mu.
	mu       sync.Mutex
	tiles    map[TileKey]*tile
	resident lruList
	closed   bool

	evictions    atomic.Uint64
	rehydrations atomic.Uint64
	swapFailures atomic.Uint64
}

// New creates a store for pixels of pixelSize bytes.
// It panics if pixelSize is not positive.
func New(pixelSize int, opts ...Option) *Store {
	if pixelSize <= 0 {
		panic(fmt.Sprintf("tilestore: invalid pixel size %d", pixelSize))
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	defaultPixel := make([]byte, pixelSize)
	if len(o.defaultPixel) == pixelSize {
		copy(defaultPixel, o.defaultPixel)
	}

	tileBytes := TilePixels * pixelSize
	defaultTile := make([]byte, tileBytes)
	fillPixel(defaultTile, defaultPixel)

	s := &Store{
		name:         o.name,
		pixelSize:    pixelSize,
		tileBytes:    tileBytes,
		defaultPixel: defaultPixel,
		defaultTile:  defaultTile,
		compressor:   codec.NewTileCompressor(o.compression),
		swapper:      o.swapper,
		budget:       o.budget,
		buffers:      newBufferPool(tileBytes),
		tiles:        make(map[TileKey]*tile),
	}
	if s.swapper == nil {
		s.swapper = NewMemorySwap()
		s.ownSwapper = true
	}
	return s
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// PixelSize returns the number of bytes per pixel.
func (s *Store) PixelSize() int { return s.pixelSize }

// TileBytes returns the size of one tile buffer.
func (s *Store) TileBytes() int { return s.tileBytes }

// DefaultPixel returns a copy of the default pixel.
func (s *Store) DefaultPixel() []byte {
	return append([]byte(nil), s.defaultPixel...)
}

// =============================================================================
// Tile access
// =============================================================================

// TileHandle grants exclusive write access to one tile until Release.
type TileHandle struct {
	store *Store
	tile  *tile
}

// Data returns the tile buffer: TileWidth*TileHeight pixels, row-major,
// stride TileWidth*PixelSize. It is valid until Release.
func (h *TileHandle) Data() []byte { return h.tile.data }

// Key returns the tile key.
func (h *TileHandle) Key() TileKey { return h.tile.key }

// Bounds returns the tile's pixel bounds.
func (h *TileHandle) Bounds() Rect { return h.tile.key.Bounds() }

// Stride returns the row stride in bytes.
func (h *TileHandle) Stride() int { return TileWidth * h.store.pixelSize }

// Release marks the tile dirty, gives up write access and lets the store
// evict tiles over the memory budget. Release must be called exactly once.
func (h *TileHandle) Release() {
	s := h.store
	t := h.tile
	t.dirty = true

	s.mu.Lock()
	if t.lru != nil {
		s.resident.MoveToFront(t.lru)
	}
	s.mu.Unlock()

	t.mu.Unlock()
	s.enforceBudget()
}

// AcquireTile returns exclusive write access to tile (col, row), creating a
// default-filled tile if none exists and rehydrating it if it was evicted.
// Concurrent acquisitions of the same tile are serialized.
//
// A rehydration failure is an internal-consistency fault; the returned
// error wraps codec.ErrCorrupt or the swapper's error.
func (s *Store) AcquireTile(col, row int) (*TileHandle, error) {
	key := TileKey{Col: col, Row: row}
	for {
		t, err := s.lookup(key, true)
		if err != nil {
			return nil, err
		}

		t.mu.Lock()
		if t.removed {
			t.mu.Unlock()
			continue
		}
		if err := s.makeResident(t); err != nil {
			t.mu.Unlock()
			return nil, err
		}
		return &TileHandle{store: s, tile: t}, nil
	}
}

// readTile calls fn with the contents of tile key. Missing tiles read as
// the default tile. fn must not retain the slice.
func (s *Store) readTile(key TileKey, fn func(data []byte)) error {
	for {
		t, err := s.lookup(key, false)
		if err != nil {
			return err
		}
		if t == nil {
			fn(s.defaultTile)
			return nil
		}

		t.mu.Lock()
		if t.removed {
			t.mu.Unlock()
			continue
		}
		if err := s.makeResident(t); err != nil {
			t.mu.Unlock()
			return err
		}
		fn(t.data)

		s.mu.Lock()
		if t.lru != nil {
			s.resident.MoveToFront(t.lru)
		}
		s.mu.Unlock()
		t.mu.Unlock()

		s.enforceBudget()
		return nil
	}
}

// lookup returns the tile for key, creating it when create is set.
func (s *Store) lookup(key TileKey, create bool) (*tile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	t, ok := s.tiles[key]
	if ok || !create {
		return t, nil
	}

	data := s.buffers.Get()
	copy(data, s.defaultTile)
	t = &tile{key: key, data: data, state: stateResident}
	t.lru = s.resident.PushFront(t)
	s.tiles[key] = t
	return t, nil
}

// makeResident rehydrates a swapped tile. t.mu must be held.
func (s *Store) makeResident(t *tile) error {
	if t.state == stateResident {
		return nil
	}

	record, err := s.swapper.Get(t.slot)
	if err != nil {
		tilepipe.Logger().Error("tilestore: swap read failed", "store", s.name, "tile", t.key, "err", err)
		return fmt.Errorf("tilestore: rehydrate tile %v: %w", t.key, err)
	}

	data := s.buffers.Get()
	if err := s.compressor.Decode(record, data, s.pixelSize); err != nil {
		s.buffers.Put(data)
		tilepipe.Logger().Error("tilestore: corrupted tile record", "store", s.name, "tile", t.key, "err", err)
		return fmt.Errorf("tilestore: rehydrate tile %v: %w", t.key, err)
	}

	s.swapper.Free(t.slot)
	t.data = data
	t.slot = 0
	t.state = stateResident
	s.rehydrations.Add(1)

	s.mu.Lock()
	t.lru = s.resident.PushFront(t)
	s.mu.Unlock()

	return nil
}

// =============================================================================
// Eviction
// =============================================================================

// enforceBudget evicts tiles while the resident count exceeds the budget.
func (s *Store) enforceBudget() {
	if s.budget <= 0 {
		return
	}
	s.mu.Lock()
	over := s.resident.Len() - s.budget
	s.mu.Unlock()

	if over > 0 {
		s.Evict(over)
	}
}

// Evict compresses up to n least-recently-used tiles that nobody holds and
// hands them to the swapper. It returns the number of tiles evicted.
//
// Eviction never loses data: a tile whose record the swapper rejects stays
// resident.
func (s *Store) Evict(n int) int {
	if n <= 0 {
		return 0
	}

	// Pick victims under the store lock; TryLock skips tiles in use and
	// keeps the tile.mu -> s.mu lock order deadlock-free.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	victims := make([]*tile, 0, n)
	for node := s.resident.Oldest(); node != nil && len(victims) < n; {
		prev := node.prev
		t := node.tile
		if t.mu.TryLock() {
			s.resident.Remove(node)
			t.lru = nil
			victims = append(victims, t)
		}
		node = prev
	}
	s.mu.Unlock()

	evicted := 0
	for _, t := range victims {
		if s.swapOut(t) {
			evicted++
		}
		t.mu.Unlock()
	}
	return evicted
}

// swapOut encodes and stores one tile. t.mu must be held and t must not be
// in the residency list.
func (s *Store) swapOut(t *tile) bool {
	record := s.compressor.Encode(t.data, s.pixelSize)

	slot, err := s.swapper.Put(record)
	if err != nil {
		s.swapFailures.Add(1)
		tilepipe.Logger().Warn("tilestore: eviction failed, tile kept resident",
			"store", s.name, "tile", t.key, "err", err)

		s.mu.Lock()
		t.lru = s.resident.PushFront(t)
		s.mu.Unlock()
		return false
	}

	s.buffers.Put(t.data)
	t.data = nil
	t.slot = slot
	t.state = stateSwapped
	s.evictions.Add(1)

	tilepipe.Logger().Debug("tilestore: tile evicted",
		"store", s.name, "tile", t.key, "record", len(record), "compressed", record[0] == codec.FlagCompressed)
	return true
}

// =============================================================================
// Pixel operations
// =============================================================================

// ReadBytes copies the pixels of r into dst, row-major with stride
// r.W*PixelSize. Pixels that were never written read as the default pixel.
func (s *Store) ReadBytes(dst []byte, r Rect) error {
	if r.Empty() {
		return nil
	}
	ps := s.pixelSize
	stride := r.W * ps
	if len(dst) < stride*r.H {
		return fmt.Errorf("%w: %d bytes for %v", ErrBufferSize, len(dst), r)
	}

	return ForEachTileKey(r, func(key TileKey) error {
		tb := key.Bounds()
		ir := tb.Intersect(r)
		return s.readTile(key, func(data []byte) {
			copyRect(dst, stride, ir.X-r.X, ir.Y-r.Y,
				data, TileWidth*ps, ir.X-tb.X, ir.Y-tb.Y,
				ir.W, ir.H, ps)
		})
	})
}

// WriteBytes copies src, row-major with stride r.W*PixelSize, into r.
// Each tile is written under its own exclusive handle, so a concurrent
// reader of one tile sees either none or all of that tile's update.
func (s *Store) WriteBytes(src []byte, r Rect) error {
	if r.Empty() {
		return nil
	}
	ps := s.pixelSize
	stride := r.W * ps
	if len(src) < stride*r.H {
		return fmt.Errorf("%w: %d bytes for %v", ErrBufferSize, len(src), r)
	}

	return ForEachTileKey(r, func(key TileKey) error {
		h, err := s.AcquireTile(key.Col, key.Row)
		if err != nil {
			return err
		}
		defer h.Release()

		tb := key.Bounds()
		ir := tb.Intersect(r)
		copyRect(h.Data(), TileWidth*ps, ir.X-tb.X, ir.Y-tb.Y,
			src, stride, ir.X-r.X, ir.Y-r.Y,
			ir.W, ir.H, ps)
		return nil
	})
}

// Fill sets every pixel of r to pixel.
func (s *Store) Fill(r Rect, pixel []byte) error {
	if len(pixel) != s.pixelSize {
		return fmt.Errorf("%w: pixel of %d bytes, want %d", ErrBufferSize, len(pixel), s.pixelSize)
	}
	if r.Empty() {
		return nil
	}

	row := make([]byte, min(r.W, TileWidth)*s.pixelSize)
	fillPixel(row, pixel)

	return ForEachTileKey(r, func(key TileKey) error {
		h, err := s.AcquireTile(key.Col, key.Row)
		if err != nil {
			return err
		}
		defer h.Release()

		tb := key.Bounds()
		ir := tb.Intersect(r)
		stride := h.Stride()
		data := h.Data()
		for y := ir.Y - tb.Y; y < ir.Bottom()-tb.Y; y++ {
			off := y*stride + (ir.X-tb.X)*s.pixelSize
			copy(data[off:off+ir.W*s.pixelSize], row)
		}
		return nil
	})
}

// Clear resets r to the default pixel. Tiles entirely inside r are dropped.
func (s *Store) Clear(r Rect) error {
	if r.Empty() {
		return nil
	}

	var partial []Rect
	err := ForEachTileKey(r, func(key TileKey) error {
		tb := key.Bounds()
		if r.Contains(tb) {
			s.drop(key)
		} else {
			partial = append(partial, tb.Intersect(r))
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, pr := range partial {
		t, err := s.lookup(KeyAt(pr.X, pr.Y), false)
		if err != nil {
			return err
		}
		if t == nil {
			continue
		}
		if err := s.Fill(pr, s.defaultPixel); err != nil {
			return err
		}
	}
	return nil
}

// drop removes a tile from the store, waiting for any holder to release it.
func (s *Store) drop(key TileKey) {
	s.mu.Lock()
	t, ok := s.tiles[key]
	s.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return
	}

	s.mu.Lock()
	if s.tiles[key] == t {
		delete(s.tiles, key)
	}
	if t.lru != nil {
		s.resident.Remove(t.lru)
		t.lru = nil
	}
	s.mu.Unlock()

	s.releaseTile(t)
}

// releaseTile frees a removed tile's memory or swap slot. t.mu must be held.
func (s *Store) releaseTile(t *tile) {
	t.removed = true
	switch t.state {
	case stateResident:
		s.buffers.Put(t.data)
		t.data = nil
	case stateSwapped:
		s.swapper.Free(t.slot)
		t.slot = 0
	}
}

// Pixel returns a copy of the pixel at (x, y).
func (s *Store) Pixel(x, y int) ([]byte, error) {
	p := make([]byte, s.pixelSize)
	if err := s.ReadBytes(p, Rect{X: x, Y: y, W: 1, H: 1}); err != nil {
		return nil, err
	}
	return p, nil
}

// SetPixel writes the pixel at (x, y).
func (s *Store) SetPixel(x, y int, pixel []byte) error {
	if len(pixel) != s.pixelSize {
		return fmt.Errorf("%w: pixel of %d bytes, want %d", ErrBufferSize, len(pixel), s.pixelSize)
	}
	return s.WriteBytes(pixel, Rect{X: x, Y: y, W: 1, H: 1})
}

// CopyFrom copies r from src into s. Both stores must share the pixel size.
func (s *Store) CopyFrom(src *Store, r Rect) error {
	if src.pixelSize != s.pixelSize {
		return fmt.Errorf("%w: pixel size %d, want %d", ErrBufferSize, src.pixelSize, s.pixelSize)
	}
	return ForEachTileKey(r, func(key TileKey) error {
		ir := key.Bounds().Intersect(r)
		buf := make([]byte, ir.Area()*s.pixelSize)
		if err := src.ReadBytes(buf, ir); err != nil {
			return err
		}
		return s.WriteBytes(buf, ir)
	})
}

// =============================================================================
// Bookkeeping
// =============================================================================

// Extent returns the bounding rectangle of all allocated tiles.
func (s *Store) Extent() Rect {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r Rect
	for key := range s.tiles {
		r = r.Union(key.Bounds())
	}
	return r
}

// TileCount returns the number of allocated tiles.
func (s *Store) TileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tiles)
}

// ResidentCount returns the number of uncompressed tiles in memory.
func (s *Store) ResidentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resident.Len()
}

// DirtyKeys returns the keys of tiles written since the last ClearDirty.
func (s *Store) DirtyKeys() []TileKey {
	var keys []TileKey
	for _, t := range s.snapshot() {
		t.mu.Lock()
		if t.dirty && !t.removed {
			keys = append(keys, t.key)
		}
		t.mu.Unlock()
	}
	return keys
}

// ClearDirty resets the dirty flag of every tile.
func (s *Store) ClearDirty() {
	for _, t := range s.snapshot() {
		t.mu.Lock()
		t.dirty = false
		t.mu.Unlock()
	}
}

// Purge drops resident tiles whose contents equal the default tile.
// It returns the number of tiles dropped.
func (s *Store) Purge() int {
	purged := 0
	for _, t := range s.snapshot() {
		t.mu.Lock()
		if t.removed || t.state != stateResident || !bytes.Equal(t.data, s.defaultTile) {
			t.mu.Unlock()
			continue
		}

		s.mu.Lock()
		if s.tiles[t.key] == t {
			delete(s.tiles, t.key)
		}
		if t.lru != nil {
			s.resident.Remove(t.lru)
			t.lru = nil
		}
		s.mu.Unlock()

		s.releaseTile(t)
		t.mu.Unlock()
		purged++
	}
	return purged
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		Tiles:    len(s.tiles),
		Resident: s.resident.Len(),
	}
	s.mu.Unlock()

	st.Swapped = st.Tiles - st.Resident
	st.Evictions = s.evictions.Load()
	st.Rehydrations = s.rehydrations.Load()
	st.SwapFailures = s.swapFailures.Load()
	return st
}

// snapshot returns the current tiles.
func (s *Store) snapshot() []*tile {
	s.mu.Lock()
	defer s.mu.Unlock()

	tiles := make([]*tile, 0, len(s.tiles))
	for _, t := range s.tiles {
		tiles = append(tiles, t)
	}
	return tiles
}

// Close drops all tiles and releases their swap slots. A swapper created by
// the store is closed too. Operations after Close return ErrClosed.
func (s *Store) Close() error {
	tiles := s.snapshot()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.tiles = make(map[TileKey]*tile)
	s.resident.Clear()
	s.mu.Unlock()

	for _, t := range tiles {
		t.mu.Lock()
		t.lru = nil
		if !t.removed {
			s.releaseTile(t)
		}
		t.mu.Unlock()
	}

	if s.ownSwapper {
		return s.swapper.Close()
	}
	return nil
}

// copyRect copies a w x h pixel block between row-major buffers.
func copyRect(dst []byte, dstStride, dstX, dstY int,
	src []byte, srcStride, srcX, srcY int,
	w, h, pixelSize int,
) {
	rowBytes := w * pixelSize
	for y := range h {
		do := (dstY+y)*dstStride + dstX*pixelSize
		so := (srcY+y)*srcStride + srcX*pixelSize
		copy(dst[do:do+rowBytes], src[so:so+rowBytes])
	}
}
