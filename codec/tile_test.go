package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestTileCompressor_RoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		pixelSize int
		wantFlag  byte
	}{
		{"zeros rgba", zeros(tileBytes), 4, FlagCompressed},
		{"gradient rgba", gradientTile(), 4, FlagCompressed},
		{"random rgba", randomBytes(tileBytes, 11), 4, FlagRaw},
		{"gray8", repeating(64*64, 1, 2, 3, 4), 1, FlagCompressed},
		{"odd size falls back to interleaved", repeating(1001, 5), 4, FlagCompressed},
	}

	tc := NewTileCompressor(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := tc.Encode(tt.data, tt.pixelSize)
			if record[0] != tt.wantFlag {
				t.Errorf("record flag = %d, want %d", record[0], tt.wantFlag)
			}
			if len(record) > tc.MaxRecordSize(len(tt.data)) {
				t.Errorf("record size %d exceeds MaxRecordSize %d", len(record), tc.MaxRecordSize(len(tt.data)))
			}

			dst := make([]byte, len(tt.data))
			if err := tc.Decode(record, dst, tt.pixelSize); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !bytes.Equal(dst, tt.data) {
				t.Error("tile round trip mismatch")
			}
		})
	}
}

func TestTileCompressor_RawCodecStoresRaw(t *testing.T) {
	tc := NewTileCompressor(Raw{})
	data := gradientTile()

	record := tc.Encode(data, 4)
	if record[0] != FlagRaw {
		t.Errorf("record flag = %d, want FlagRaw", record[0])
	}
	if !bytes.Equal(record[1:], data) {
		t.Error("raw record payload should equal the tile data")
	}
}

func TestTileCompressor_DecodeErrors(t *testing.T) {
	tc := NewTileCompressor(nil)
	good := tc.Encode(zeros(tileBytes), 4)

	truncated := append([]byte{}, good[:len(good)/2]...)

	tests := []struct {
		name    string
		record  []byte
		dstSize int
	}{
		{"empty record", nil, tileBytes},
		{"unknown flag", []byte{7, 1, 2, 3}, tileBytes},
		{"raw size mismatch", []byte{FlagRaw, 1, 2, 3}, 4},
		{"decoded into larger tile", good, tileBytes * 2},
		{"truncated stream", truncated, tileBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tc.Decode(tt.record, make([]byte, tt.dstSize), 4)
			if !errors.Is(err, ErrCorrupt) && !errors.Is(err, ErrShortBuffer) {
				t.Errorf("Decode() error = %v, want ErrCorrupt or ErrShortBuffer", err)
			}
		})
	}
}

func TestTileCompressor_Concurrent(t *testing.T) {
	tc := NewTileCompressor(LZF{})
	data := gradientTile()

	errs := make(chan error, 16)
	for range 16 {
		go func() {
			dst := make([]byte, len(data))
			if err := tc.Decode(tc.Encode(data, 4), dst, 4); err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(dst, data) {
				errs <- errors.New("mismatch")
				return
			}
			errs <- nil
		}()
	}
	for range 16 {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
}
