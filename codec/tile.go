package codec

import (
	"fmt"
	"sync"
)

// Record flags. A record is a flag byte followed by its payload.
const (
	// FlagRaw marks a record whose payload is the tile data as-is.
	FlagRaw byte = 0

	// FlagCompressed marks a record whose payload is compressed
	// (and linearized when the pixel size is greater than one).
	FlagCompressed byte = 1
)

// TileCompressor encodes tile buffers into self-describing records.
//
// Thread safety: TileCompressor is safe for concurrent use. Scratch buffers
// are drawn from an internal pool and never shared between calls.
type TileCompressor struct {
	compression Compression
	scratch     sync.Pool
}

// NewTileCompressor creates a tile compressor over c.
// If c is nil, [LZF] is used.
func NewTileCompressor(c Compression) *TileCompressor {
	if c == nil {
		c = LZF{}
	}
	return &TileCompressor{compression: c}
}

// Compression returns the underlying byte codec.
func (tc *TileCompressor) Compression() Compression {
	return tc.compression
}

// MaxRecordSize returns the largest record Encode can produce for dataSize bytes.
func (tc *TileCompressor) MaxRecordSize(dataSize int) int {
	return 1 + max(dataSize, tc.compression.OutputBufferSize(dataSize))
}

// Encode returns a newly allocated record for data.
//
// When pixelSize > 1 and divides len(data), the data is linearized before
// compression. If compression fails or does not shrink the data, the record
// stores data raw. Encode never fails.
func (tc *TileCompressor) Encode(data []byte, pixelSize int) []byte {
	src := data
	if planar(data, pixelSize) {
		lin := tc.getScratch(len(data))
		defer tc.putScratch(lin)
		LinearizeColors(data, *lin, pixelSize)
		src = *lin
	}

	out := tc.getScratch(tc.compression.OutputBufferSize(len(src)))
	defer tc.putScratch(out)

	n := tc.compression.Compress(src, *out)
	if n <= 0 || n >= len(data) {
		record := make([]byte, 1+len(data))
		record[0] = FlagRaw
		copy(record[1:], data)
		return record
	}

	record := make([]byte, 1+n)
	record[0] = FlagCompressed
	copy(record[1:], (*out)[:n])
	return record
}

// Decode restores the tile data of record into dst.
//
// dst must have exactly the size of the data that was encoded. Any mismatch
// or codec failure is returned as an error wrapping [ErrCorrupt] or
// [ErrShortBuffer]; dst contents are unspecified in that case.
func (tc *TileCompressor) Decode(record, dst []byte, pixelSize int) error {
	if len(record) == 0 {
		return fmt.Errorf("%w: empty tile record", ErrCorrupt)
	}

	payload := record[1:]
	switch record[0] {
	case FlagRaw:
		if len(payload) != len(dst) {
			return fmt.Errorf("%w: raw tile record holds %d bytes, want %d", ErrCorrupt, len(payload), len(dst))
		}
		copy(dst, payload)
		return nil

	case FlagCompressed:
		if !planar(dst, pixelSize) {
			return tc.decompressExact(payload, dst)
		}
		lin := tc.getScratch(len(dst))
		defer tc.putScratch(lin)
		if err := tc.decompressExact(payload, *lin); err != nil {
			return err
		}
		DelinearizeColors(*lin, dst, pixelSize)
		return nil

	default:
		return fmt.Errorf("%w: unknown tile record flag %#x", ErrCorrupt, record[0])
	}
}

// decompressExact decompresses payload and requires it to fill dst exactly.
func (tc *TileCompressor) decompressExact(payload, dst []byte) error {
	n, err := tc.compression.Decompress(payload, dst)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("%w: tile decompressed to %d bytes, want %d", ErrCorrupt, n, len(dst))
	}
	return nil
}

// planar reports whether data of this pixel size is linearized.
func planar(data []byte, pixelSize int) bool {
	return pixelSize > 1 && len(data)%pixelSize == 0
}

// getScratch returns a pooled buffer of exactly size bytes.
func (tc *TileCompressor) getScratch(size int) *[]byte {
	if v := tc.scratch.Get(); v != nil {
		buf := v.(*[]byte)
		if cap(*buf) >= size {
			*buf = (*buf)[:size]
			return buf
		}
	}
	buf := make([]byte, size)
	return &buf
}

// putScratch returns a buffer to the pool.
func (tc *TileCompressor) putScratch(buf *[]byte) {
	tc.scratch.Put(buf)
}
