package codec

import "errors"

// Errors returned by decompression. Both indicate an internal-consistency
// fault: the stream is damaged or it is being decoded into a buffer of a
// different size than the one it was produced from.
var (
	// ErrCorrupt is returned when a compressed stream is malformed: a token
	// runs past the end of the input or a back reference points before the
	// start of the output.
	ErrCorrupt = errors.New("codec: corrupt compressed stream")

	// ErrShortBuffer is returned when the decompressed data does not fit
	// into the output buffer.
	ErrShortBuffer = errors.New("codec: output buffer too small")
)

// Compression is a reversible byte compressor.
//
// Implementations must be safe for concurrent use.
type Compression interface {
	// Compress compresses in into out and returns the number of bytes
	// written. out must be at least OutputBufferSize(len(in)) bytes long.
	// A return value of 0 signals a soft failure: the caller stores the
	// data uncompressed.
	Compress(in, out []byte) int

	// Decompress decompresses in into out and returns the number of bytes
	// written. Any bounds violation is reported as an error wrapping
	// ErrCorrupt or ErrShortBuffer; out is never written past its length.
	Decompress(in, out []byte) (int, error)

	// OutputBufferSize returns the worst-case compressed size for
	// dataSize input bytes, including the literal-only path.
	OutputBufferSize(dataSize int) int
}

// Raw is a Compression that copies its input unchanged.
type Raw struct{}

// Compress copies in into out. It returns 0 when in is empty or out is too
// small.
func (Raw) Compress(in, out []byte) int {
	if len(in) == 0 || len(out) < len(in) {
		return 0
	}
	return copy(out, in)
}

// Decompress copies in into out.
func (Raw) Decompress(in, out []byte) (int, error) {
	if len(out) < len(in) {
		return 0, ErrShortBuffer
	}
	return copy(out, in), nil
}

// OutputBufferSize returns dataSize.
func (Raw) OutputBufferSize(dataSize int) int {
	return dataSize
}

// String returns "raw".
func (Raw) String() string { return "raw" }

// Compile-time interface checks.
var (
	_ Compression = LZF{}
	_ Compression = Raw{}
)
