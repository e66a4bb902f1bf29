// Package codec implements the byte-level compression contract for tiles.
//
// The package defines the [Compression] interface and two implementations:
//
//   - [LZF]: a single-pass LZF-family compressor (hash-assisted greedy
//     matching, 32-byte literal runs, 264-byte matches, 8 KiB window).
//   - [Raw]: a copying codec used when compression is switched off.
//
// On top of the raw byte codec, [TileCompressor] frames a whole tile as a
// self-describing record. Multi-byte pixels are first rewritten in
// channel-major order by [LinearizeColors], which groups bytes with similar
// statistics and improves the compression ratio for typical image data.
// A record that cannot be compressed is stored raw, so encoding never fails.
//
// # Failure semantics
//
// Compression failure is soft: [Compression.Compress] returns 0 and the
// caller keeps the data uncompressed. Decompression failure is fatal:
// [Compression.Decompress] returns an error wrapping [ErrCorrupt] or
// [ErrShortBuffer] and never writes past the output buffer.
//
// # Thread safety
//
// All codecs are stateless. LZF keeps its hash table on the stack of each
// Compress call, so concurrent calls never share scratch state.
package codec
