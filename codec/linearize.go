package codec

import "fmt"

// LinearizeColors rewrites interleaved pixels (RGBARGBA...) in channel-major
// order (RR...GG...BB...AA...). in and out must have the same length, which
// must be a multiple of pixelSize. in and out must not overlap.
//
// It panics on size mismatches; those are programming errors.
func LinearizeColors(in, out []byte, pixelSize int) {
	numPixels := checkPlanar(in, out, pixelSize)
	if pixelSize == 1 {
		copy(out, in)
		return
	}

	for ch := range pixelSize {
		plane := out[ch*numPixels : (ch+1)*numPixels]
		src := ch
		for i := range plane {
			plane[i] = in[src]
			src += pixelSize
		}
	}
}

// DelinearizeColors is the exact inverse of [LinearizeColors].
func DelinearizeColors(in, out []byte, pixelSize int) {
	numPixels := checkPlanar(in, out, pixelSize)
	if pixelSize == 1 {
		copy(out, in)
		return
	}

	for ch := range pixelSize {
		plane := in[ch*numPixels : (ch+1)*numPixels]
		dst := ch
		for _, b := range plane {
			out[dst] = b
			dst += pixelSize
		}
	}
}

// checkPlanar validates linearization arguments and returns the pixel count.
func checkPlanar(in, out []byte, pixelSize int) int {
	if pixelSize <= 0 {
		panic(fmt.Sprintf("codec: invalid pixel size %d", pixelSize))
	}
	if len(in) != len(out) {
		panic(fmt.Sprintf("codec: linearization buffers differ in size (%d != %d)", len(in), len(out)))
	}
	if len(in)%pixelSize != 0 {
		panic(fmt.Sprintf("codec: data size %d is not a multiple of pixel size %d", len(in), pixelSize))
	}
	return len(in) / pixelSize
}
