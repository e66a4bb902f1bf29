package codec

import (
	"bytes"
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"
)

func TestLinearizeColors(t *testing.T) {
	in := []byte{
		'r', 'g', 'b', 'a',
		'R', 'G', 'B', 'A',
		'x', 'y', 'z', 'w',
	}
	want := []byte{
		'r', 'R', 'x',
		'g', 'G', 'y',
		'b', 'B', 'z',
		'a', 'A', 'w',
	}

	out := make([]byte, len(in))
	LinearizeColors(in, out, 4)
	if !bytes.Equal(out, want) {
		t.Errorf("LinearizeColors() = %q, want %q", out, want)
	}

	back := make([]byte, len(in))
	DelinearizeColors(out, back, 4)
	if !bytes.Equal(back, in) {
		t.Errorf("DelinearizeColors() = %q, want %q", back, in)
	}
}

func TestLinearizeColors_PixelSizes(t *testing.T) {
	for _, pixelSize := range []int{1, 2, 3, 4, 8, 16} {
		data := randomBytes(pixelSize*257, int64(pixelSize))
		lin := make([]byte, len(data))
		back := make([]byte, len(data))

		LinearizeColors(data, lin, pixelSize)
		DelinearizeColors(lin, back, pixelSize)

		if !bytes.Equal(back, data) {
			t.Errorf("pixelSize %d: planar round trip mismatch", pixelSize)
		}
	}
}

func TestLinearizeColors_Property(t *testing.T) {
	values := func(args []reflect.Value, r *rand.Rand) {
		pixelSize := r.Intn(8) + 1
		data := make([]byte, pixelSize*r.Intn(1024))
		r.Read(data)
		args[0] = reflect.ValueOf(data)
		args[1] = reflect.ValueOf(pixelSize)
	}
	prop := func(data []byte, pixelSize int) bool {
		lin := make([]byte, len(data))
		back := make([]byte, len(data))
		LinearizeColors(data, lin, pixelSize)
		DelinearizeColors(lin, back, pixelSize)
		return bytes.Equal(back, data)
	}

	if err := quick.Check(prop, &quick.Config{MaxCount: 300, Values: values}); err != nil {
		t.Error(err)
	}
}

func TestLinearizeColors_Panics(t *testing.T) {
	tests := []struct {
		name      string
		in, out   []byte
		pixelSize int
	}{
		{"not a multiple", make([]byte, 10), make([]byte, 10), 4},
		{"size mismatch", make([]byte, 8), make([]byte, 12), 4},
		{"zero pixel size", make([]byte, 8), make([]byte, 8), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("LinearizeColors() did not panic")
				}
			}()
			LinearizeColors(tt.in, tt.out, tt.pixelSize)
		})
	}
}

func TestLinearizeColors_ImprovesGradientRatio(t *testing.T) {
	data := gradientTile()
	lin := make([]byte, len(data))
	LinearizeColors(data, lin, 4)

	out := make([]byte, LZF{}.OutputBufferSize(len(data)))
	interleaved := LZF{}.Compress(data, out)
	planar := LZF{}.Compress(lin, out)

	if planar >= interleaved {
		t.Errorf("linearized size %d, want smaller than interleaved %d", planar, interleaved)
	}
}
