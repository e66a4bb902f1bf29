package codec

import "fmt"

// LZF stream parameters. The worst-case expansion bound in
// [LZF.OutputBufferSize] depends on maxCopy; changing any of these changes
// the stream format.
const (
	hashLog  = 12
	hashSize = 1 << hashLog
	hashMask = hashSize - 1

	// maxCopy is the longest literal run encoded behind one control byte.
	maxCopy = 32

	// maxLen is the longest back reference (256 + 8).
	maxLen = 264

	// maxDistance is the size of the back-reference window.
	maxDistance = 8192
)

// LZF is a fast LZF-family compressor.
//
// Token format: a control byte c < 32 starts a literal run of c+1 bytes.
// Otherwise the top three bits hold the match length minus two (7 means an
// extra length byte follows) and the low five bits are the high bits of the
// distance minus one; the next byte holds the low eight distance bits.
type LZF struct{}

// String returns "lzf".
func (LZF) String() string { return "lzf" }

// OutputBufferSize returns dataSize + dataSize/16 + 64 + 3.
func (LZF) OutputBufferSize(dataSize int) int {
	return dataSize + dataSize/16 + 64 + 3
}

// hashAt hashes the three bytes starting at p[i].
func hashAt(p []byte, i int) int {
	v := uint32(p[i]) | uint32(p[i+1])<<8
	v ^= (uint32(p[i+1]) | uint32(p[i+2])<<8) ^ (v >> (16 - hashLog))
	return int(v & hashMask)
}

// Compress compresses in into out. See [Compression.Compress].
func (c LZF) Compress(in, out []byte) int {
	n := len(in)
	if n == 0 || len(out) < c.OutputBufferSize(n) {
		return 0
	}

	// Positions of the last occurrence of each hashed prefix. Zero-valued
	// slots point at the start of the input, which the distance check
	// below rejects as a self-match when ip == 0.
	var htab [hashSize]int32

	ipLimit := n - maxCopy - 4
	outLimit := len(out) - 4

	ip := 0
	op := 0
	run := 0

	// Start with a literal run.
	out[op] = maxCopy - 1
	op++

	for ip < ipLimit {
		if op >= outLimit {
			return 0
		}

		h := hashAt(in, ip)
		ref := int(htab[h])
		htab[h] = int32(ip) //nolint:gosec // tile buffers are far below 2 GiB

		distance := ip - ref
		if distance == 0 || distance >= maxDistance ||
			in[ref] != in[ip] || in[ref+1] != in[ip+1] || in[ref+2] != in[ip+2] {
			out[op] = in[ip]
			op++
			ip++
			run++
			if run >= maxCopy {
				run = 0
				out[op] = maxCopy - 1
				op++
			}
			continue
		}

		// At least three bytes match; extend eight at a time.
		anchor := ip
		ref += 3
		ip += 3
		if ip < ipLimit-maxLen {
			for length := 3; length < maxLen-8; length += 8 {
				k := 0
				for k < 8 && in[ref+k] == in[ip+k] {
					k++
				}
				ip += k
				ref += k
				if k < 8 {
					ip++
					break
				}
			}
			ip--
		}
		length := ip - anchor

		// Close the pending literal run, or drop its unused control byte.
		if run > 0 {
			out[op-run-1] = byte(run - 1)
			run = 0
		} else {
			op--
		}

		length -= 2
		distance--

		if length < 7 {
			out[op] = byte(length<<5 + distance>>8)
			op++
		} else {
			out[op] = byte(7<<5 + distance>>8)
			out[op+1] = byte(length - 7)
			op += 2
		}
		out[op] = byte(distance)
		op++

		// Assume the next token is a literal run.
		out[op] = maxCopy - 1
		op++

		// Rehash at the match boundary.
		ip--
		htab[hashAt(in, ip)] = int32(ip) //nolint:gosec // see above
		ip++
	}

	// Trailing bytes are copied as literals.
	for ip < n {
		if op >= outLimit {
			return 0
		}
		out[op] = in[ip]
		op++
		ip++
		run++
		if run == maxCopy {
			run = 0
			out[op] = maxCopy - 1
			op++
		}
	}

	if run > 0 {
		out[op-run-1] = byte(run - 1)
	} else {
		op--
	}

	return op
}

// Decompress decompresses in into out. See [Compression.Decompress].
func (LZF) Decompress(in, out []byte) (int, error) {
	n := len(in)
	ip := 0
	op := 0

	for ip < n {
		ctrl := int(in[ip])
		ip++

		if ctrl < maxCopy {
			run := ctrl + 1
			if ip+run > n {
				return 0, fmt.Errorf("%w: literal run of %d at offset %d exceeds input", ErrCorrupt, run, ip-1)
			}
			if op+run > len(out) {
				return 0, fmt.Errorf("%w: literal run of %d at output offset %d", ErrShortBuffer, run, op)
			}
			copy(out[op:op+run], in[ip:ip+run])
			ip += run
			op += run
			continue
		}

		length := ctrl >> 5
		ref := op - (ctrl&31)<<8 - 1

		if length == 7 {
			if ip >= n {
				return 0, fmt.Errorf("%w: truncated match length at offset %d", ErrCorrupt, ip)
			}
			length += int(in[ip])
			ip++
		}
		if ip >= n {
			return 0, fmt.Errorf("%w: truncated match distance at offset %d", ErrCorrupt, ip)
		}
		ref -= int(in[ip])
		ip++
		length += 2

		if op+length > len(out) {
			return 0, fmt.Errorf("%w: match of %d at output offset %d", ErrShortBuffer, length, op)
		}
		if ref < 0 {
			return 0, fmt.Errorf("%w: back reference before start of output at offset %d", ErrCorrupt, op)
		}

		// Byte-wise copy: the source may overlap the bytes being written.
		for range length {
			out[op] = out[ref]
			op++
			ref++
		}
	}

	return op, nil
}
