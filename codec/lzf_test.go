package codec

import (
	"bytes"
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"
)

// tileBytes is the size of one 64x64 RGBA tile.
const tileBytes = 64 * 64 * 4

// =============================================================================
// Test data generators
// =============================================================================

func zeros(n int) []byte { return make([]byte, n) }

func randomBytes(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}

// gradientTile returns an RGBA tile with smooth channel gradients.
func gradientTile() []byte {
	b := make([]byte, tileBytes)
	for y := range 64 {
		for x := range 64 {
			i := (y*64 + x) * 4
			b[i] = byte(x * 4)
			b[i+1] = byte(y * 4)
			b[i+2] = byte((x + y) * 2)
			b[i+3] = 255
		}
	}
	return b
}

// repeating returns n bytes repeating pattern.
func repeating(n int, pattern ...byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = pattern[i%len(pattern)]
	}
	return b
}

// farMatches returns data whose only repeats are further apart than the window.
func farMatches() []byte {
	block := randomBytes(maxDistance+100, 7)
	return append(append([]byte{}, block...), block...)
}

func roundTrip(t *testing.T, c Compression, in []byte) []byte {
	t.Helper()

	out := make([]byte, c.OutputBufferSize(len(in)))
	n := c.Compress(in, out)
	if n == 0 {
		t.Fatalf("Compress(%d bytes) = 0, want > 0", len(in))
	}
	if n > c.OutputBufferSize(len(in)) {
		t.Fatalf("Compress wrote %d bytes, bound is %d", n, c.OutputBufferSize(len(in)))
	}

	dec := make([]byte, len(in))
	m, err := c.Decompress(out[:n], dec)
	if err != nil {
		t.Fatalf("Decompress() error = %v", err)
	}
	if m != len(in) {
		t.Fatalf("Decompress() = %d bytes, want %d", m, len(in))
	}
	return dec
}

// =============================================================================
// LZF Round Trip Tests
// =============================================================================

func TestLZF_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"single byte", []byte{42}},
		{"two bytes", []byte{1, 2}},
		{"below hash limit", repeating(maxCopy+3, 9)},
		{"exactly literal run", randomBytes(maxCopy, 1)},
		{"literal run plus one", randomBytes(maxCopy+1, 2)},
		{"zeros tile", zeros(tileBytes)},
		{"gradient tile", gradientTile()},
		{"random tile", randomBytes(tileBytes, 3)},
		{"pattern period 3", repeating(4096, 1, 2, 3)},
		{"pattern period 7", repeating(5000, 1, 2, 3, 4, 5, 6, 7)},
		{"long run beyond max match", repeating(3*maxLen+5, 0xAB)},
		{"matches beyond window", farMatches()},
		{"text", bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, LZF{}, tt.data)
			if !bytes.Equal(got, tt.data) {
				t.Errorf("round trip mismatch for %d bytes", len(tt.data))
			}
		})
	}
}

func TestLZF_RoundTripAllSmallSizes(t *testing.T) {
	for n := 1; n <= 300; n++ {
		data := randomBytes(n, int64(n))
		// Inject repeats so both token kinds appear.
		if n > 16 {
			copy(data[n/2:], data[:n/4])
		}
		got := roundTrip(t, LZF{}, data)
		if !bytes.Equal(got, data) {
			t.Fatalf("round trip mismatch for size %d", n)
		}
	}
}

func TestLZF_Compresses(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		maxRatio float64
	}{
		{"zeros", zeros(tileBytes), 0.05},
		{"period 4", repeating(tileBytes, 10, 20, 30, 255), 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := make([]byte, LZF{}.OutputBufferSize(len(tt.data)))
			n := LZF{}.Compress(tt.data, out)
			ratio := float64(n) / float64(len(tt.data))
			if ratio > tt.maxRatio {
				t.Errorf("compression ratio = %.3f, want <= %.3f", ratio, tt.maxRatio)
			}
		})
	}
}

// =============================================================================
// Property Tests
// =============================================================================

// tileValues fills args with tile-sized buffers mixing runs, repeats and noise.
func tileValues(args []reflect.Value, r *rand.Rand) {
	size := r.Intn(tileBytes) + 1
	b := make([]byte, size)
	for i := 0; i < size; {
		seg := r.Intn(600) + 1
		if i+seg > size {
			seg = size - i
		}
		switch r.Intn(3) {
		case 0:
			r.Read(b[i : i+seg])
		case 1:
			v := byte(r.Intn(256))
			for j := i; j < i+seg; j++ {
				b[j] = v
			}
		case 2:
			if i > 0 {
				src := r.Intn(i)
				for j := i; j < i+seg; j++ {
					b[j] = b[src+(j-i)%(i-src)]
				}
			}
		}
		i += seg
	}
	args[0] = reflect.ValueOf(b)
}

func TestLZF_PropertyRoundTrip(t *testing.T) {
	c := LZF{}
	prop := func(in []byte) bool {
		out := make([]byte, c.OutputBufferSize(len(in)))
		n := c.Compress(in, out)
		if n == 0 || n > len(out) {
			return false
		}
		dec := make([]byte, len(in))
		m, err := c.Decompress(out[:n], dec)
		return err == nil && m == len(in) && bytes.Equal(dec, in)
	}

	cfg := &quick.Config{MaxCount: 200, Values: tileValues}
	if err := quick.Check(prop, cfg); err != nil {
		t.Error(err)
	}
}

func TestLZF_PropertyBound(t *testing.T) {
	c := LZF{}
	prop := func(in []byte) bool {
		bound := c.OutputBufferSize(len(in))
		// Poison the slack beyond the bound to catch overruns.
		out := make([]byte, bound+64)
		for i := bound; i < len(out); i++ {
			out[i] = 0xEE
		}
		n := c.Compress(in, out[:bound])
		if n > bound {
			return false
		}
		for i := bound; i < len(out); i++ {
			if out[i] != 0xEE {
				return false
			}
		}
		return true
	}

	cfg := &quick.Config{MaxCount: 200, Values: tileValues}
	if err := quick.Check(prop, cfg); err != nil {
		t.Error(err)
	}
}

func TestLZF_IncompressibleInput(t *testing.T) {
	for seed := range int64(20) {
		data := randomBytes(tileBytes, 100+seed)
		bound := LZF{}.OutputBufferSize(len(data))

		out := make([]byte, bound)
		n := LZF{}.Compress(data, out)
		if n == 0 {
			t.Fatalf("seed %d: Compress() = 0 for random data with full bound", seed)
		}
		if n > bound {
			t.Fatalf("seed %d: Compress() = %d, exceeds bound %d", seed, n, bound)
		}

		dec := make([]byte, len(data))
		if _, err := (LZF{}).Decompress(out[:n], dec); err != nil {
			t.Fatalf("seed %d: Decompress() error = %v", seed, err)
		}
		if !bytes.Equal(dec, data) {
			t.Fatalf("seed %d: round trip mismatch", seed)
		}
	}
}

// =============================================================================
// Failure Tests
// =============================================================================

func TestLZF_CompressSoftFailures(t *testing.T) {
	c := LZF{}

	if n := c.Compress(nil, make([]byte, 100)); n != 0 {
		t.Errorf("Compress(empty) = %d, want 0", n)
	}

	data := gradientTile()
	if n := c.Compress(data, make([]byte, c.OutputBufferSize(len(data))-1)); n != 0 {
		t.Errorf("Compress(short output) = %d, want 0", n)
	}
}

func TestLZF_DecompressErrors(t *testing.T) {
	c := LZF{}
	data := repeating(4096, 1, 2, 3, 4)
	comp := make([]byte, c.OutputBufferSize(len(data)))
	n := c.Compress(data, comp)
	comp = comp[:n]

	tests := []struct {
		name    string
		in      []byte
		outSize int
		wantErr error
	}{
		{"output too small", comp, len(data) - 1, ErrShortBuffer},
		{"truncated literal", []byte{10, 1, 2}, 100, ErrCorrupt},
		{"truncated match distance", []byte{0, 1, 1 << 5}, 100, ErrCorrupt},
		{"truncated long match", []byte{0, 1, 7 << 5}, 100, ErrCorrupt},
		{"reference before start", []byte{0, 1, 1 << 5, 40}, 100, ErrCorrupt},
		{"literal into empty output", []byte{0, 1}, 0, ErrShortBuffer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := make([]byte, tt.outSize)
			_, err := c.Decompress(tt.in, out)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decompress() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLZF_DecompressEmpty(t *testing.T) {
	n, err := LZF{}.Decompress(nil, make([]byte, 10))
	if err != nil || n != 0 {
		t.Errorf("Decompress(empty) = (%d, %v), want (0, nil)", n, err)
	}
}

func TestLZF_OutputBufferSize(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 67},
		{16, 84},
		{tileBytes, tileBytes + tileBytes/16 + 67},
	}
	for _, tt := range tests {
		if got := (LZF{}).OutputBufferSize(tt.in); got != tt.want {
			t.Errorf("OutputBufferSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// Raw Tests
// =============================================================================

func TestRaw(t *testing.T) {
	data := randomBytes(1000, 5)
	got := roundTrip(t, Raw{}, data)
	if !bytes.Equal(got, data) {
		t.Error("Raw round trip mismatch")
	}

	if n := (Raw{}).Compress(data, make([]byte, 10)); n != 0 {
		t.Errorf("Raw.Compress(short output) = %d, want 0", n)
	}
	if _, err := (Raw{}).Decompress(data, make([]byte, 10)); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("Raw.Decompress(short output) error = %v, want ErrShortBuffer", err)
	}
}

// =============================================================================
// Concurrency
// =============================================================================

func TestLZF_ConcurrentCompress(t *testing.T) {
	inputs := [][]byte{gradientTile(), randomBytes(tileBytes, 9), repeating(tileBytes, 1, 2)}

	done := make(chan error, 32)
	for i := range 32 {
		go func() {
			in := inputs[i%len(inputs)]
			out := make([]byte, LZF{}.OutputBufferSize(len(in)))
			n := LZF{}.Compress(in, out)
			dec := make([]byte, len(in))
			if _, err := (LZF{}).Decompress(out[:n], dec); err != nil {
				done <- err
				return
			}
			if !bytes.Equal(dec, in) {
				done <- errors.New("mismatch")
				return
			}
			done <- nil
		}()
	}
	for range 32 {
		if err := <-done; err != nil {
			t.Errorf("concurrent round trip: %v", err)
		}
	}
}

// =============================================================================
// Fuzzing
// =============================================================================

func FuzzLZFRoundTrip(f *testing.F) {
	f.Add([]byte{1})
	f.Add(repeating(300, 1, 2, 3))
	f.Add(randomBytes(512, 1))
	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) == 0 {
			return
		}
		got := roundTrip(t, LZF{}, data)
		if !bytes.Equal(got, data) {
			t.Fatal("round trip mismatch")
		}
	})
}

func FuzzLZFDecompress(f *testing.F) {
	f.Add([]byte{0, 1}, 16)
	f.Add([]byte{31, 1, 2, 3}, 2)
	f.Add([]byte{0, 1, 1 << 5, 0}, 64)
	f.Fuzz(func(t *testing.T, in []byte, outSize int) {
		if outSize < 0 || outSize > 1<<16 {
			return
		}
		out := make([]byte, outSize)
		n, err := LZF{}.Decompress(in, out)
		if err == nil && n > outSize {
			t.Fatalf("Decompress() = %d, exceeds output of %d", n, outSize)
		}
	})
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkLZF_CompressGradient(b *testing.B) {
	data := gradientTile()
	out := make([]byte, LZF{}.OutputBufferSize(len(data)))
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		LZF{}.Compress(data, out)
	}
}

func BenchmarkLZF_Decompress(b *testing.B) {
	data := gradientTile()
	comp := make([]byte, LZF{}.OutputBufferSize(len(data)))
	n := LZF{}.Compress(data, comp)
	out := make([]byte, len(data))
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		_, _ = LZF{}.Decompress(comp[:n], out)
	}
}
