package tilestore

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/gogpu/tilepipe"
	"github.com/gogpu/tilepipe/codec"
)

// Swap errors.
var (
	// ErrNotFound is returned when a slot is not held by the swapper.
	ErrNotFound = errors.New("tilestore: swap slot not found")

	// ErrSwapClosed is returned by a swapper after Close.
	ErrSwapClosed = errors.New("tilestore: swapper closed")
)

// Slot identifies a record held by a Swapper.
type Slot uint64

// Swapper holds compressed tile records for evicted tiles.
//
// Implementations must be safe for concurrent use. A Swapper may be shared
// by several stores; slots are allocated by the swapper and never collide.
type Swapper interface {
	// Put stores a record and returns its slot.
	Put(record []byte) (Slot, error)

	// Get returns the record stored in slot.
	Get(slot Slot) ([]byte, error)

	// Free releases slot. Freeing an unknown slot is a no-op.
	Free(slot Slot)

	// Close releases the swapper's resources.
	Close() error
}

// =============================================================================
// MemorySwap
// =============================================================================

// MemorySwap keeps compressed records in memory. It is the default swapper:
// eviction then trades CPU for memory without touching the disk.
type MemorySwap struct {
	mu      sync.Mutex
	records map[Slot][]byte
	next    Slot
	bytes   int64
	closed  bool
}

// NewMemorySwap creates an empty in-memory swapper.
func NewMemorySwap() *MemorySwap {
	return &MemorySwap{records: make(map[Slot][]byte)}
}

// Put stores record. The swapper takes ownership of the slice.
func (m *MemorySwap) Put(record []byte) (Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrSwapClosed
	}
	m.next++
	m.records[m.next] = record
	m.bytes += int64(len(record))
	return m.next, nil
}

// Get returns the record in slot.
func (m *MemorySwap) Get(slot Slot) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSwapClosed
	}
	record, ok := m.records[slot]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, slot)
	}
	return record, nil
}

// Free drops the record in slot.
func (m *MemorySwap) Free(slot Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record, ok := m.records[slot]; ok {
		m.bytes -= int64(len(record))
		delete(m.records, slot)
	}
}

// Bytes returns the total size of held records.
func (m *MemorySwap) Bytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytes
}

// Len returns the number of held records.
func (m *MemorySwap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Close drops all records.
func (m *MemorySwap) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = nil
	m.bytes = 0
	m.closed = true
	return nil
}

// =============================================================================
// FileSwap
// =============================================================================

// swapEntry locates a record in the swap file.
type swapEntry struct {
	offset int64
	size   int
	crc    uint32
}

// FileSwap appends compressed records to a temporary file.
//
// Records are written at a tracked end offset and never rewritten; freed
// space is accounted as garbage and reclaimed when the file is closed.
// Every record carries a CRC-32 so that on-disk corruption is reported as
// [codec.ErrCorrupt] instead of producing wrong pixels.
type FileSwap struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	offset  int64
	index   map[Slot]swapEntry
	next    Slot
	garbage int64
	closed  bool
}

// NewFileSwap creates a swap file in dir. An empty dir uses os.TempDir.
// The file is removed by Close.
func NewFileSwap(dir string) (*FileSwap, error) {
	file, err := os.CreateTemp(dir, "tilepipe-swap-*.bin")
	if err != nil {
		return nil, fmt.Errorf("tilestore: create swap file: %w", err)
	}

	tilepipe.Logger().Info("tilestore: swap file opened", "path", file.Name())

	return &FileSwap{
		file:  file,
		path:  file.Name(),
		index: make(map[Slot]swapEntry),
	}, nil
}

// Path returns the swap file path.
func (f *FileSwap) Path() string {
	return f.path
}

// Put appends record to the file.
func (f *FileSwap) Put(record []byte) (Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, ErrSwapClosed
	}

	n, err := f.file.WriteAt(record, f.offset)
	if err != nil {
		return 0, fmt.Errorf("tilestore: write swap record at %d: %w", f.offset, err)
	}

	f.next++
	f.index[f.next] = swapEntry{
		offset: f.offset,
		size:   n,
		crc:    crc32.ChecksumIEEE(record),
	}
	f.offset += int64(n)

	return f.next, nil
}

// Get reads the record in slot and verifies its checksum.
func (f *FileSwap) Get(slot Slot) ([]byte, error) {
	f.mu.Lock()
	entry, ok := f.index[slot]
	closed := f.closed
	f.mu.Unlock()

	if closed {
		return nil, ErrSwapClosed
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, slot)
	}

	buf := make([]byte, entry.size)
	n, err := f.file.ReadAt(buf, entry.offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("tilestore: read swap record at %d: %w", entry.offset, err)
	}
	if n != entry.size {
		return nil, fmt.Errorf("tilestore: swap record at %d: read %d bytes, want %d: %w",
			entry.offset, n, entry.size, codec.ErrCorrupt)
	}
	if crc32.ChecksumIEEE(buf) != entry.crc {
		return nil, fmt.Errorf("tilestore: swap record at %d: checksum mismatch: %w", entry.offset, codec.ErrCorrupt)
	}

	return buf, nil
}

// Free forgets slot. Its bytes stay in the file until Close.
func (f *FileSwap) Free(slot Slot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if entry, ok := f.index[slot]; ok {
		f.garbage += int64(entry.size)
		delete(f.index, slot)
	}
}

// Size returns the file size and the number of bytes held by freed records.
func (f *FileSwap) Size() (total, garbage int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset, f.garbage
}

// Len returns the number of live records.
func (f *FileSwap) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.index)
}

// Close closes and removes the swap file. Close is safe to call multiple times.
func (f *FileSwap) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	f.index = nil

	err := f.file.Close()
	if rmErr := os.Remove(f.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		err = errors.Join(err, rmErr)
	}
	if err != nil {
		return fmt.Errorf("tilestore: close swap file: %w", err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ Swapper = (*MemorySwap)(nil)
	_ Swapper = (*FileSwap)(nil)
)
