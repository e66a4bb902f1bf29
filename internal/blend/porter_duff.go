// Package blend composites premultiplied 8-bit RGBA pixels.
//
// It provides the layer blend modes used when merging child projections into
// a group projection. All values are premultiplied alpha in the range 0-255,
// stored as R, G, B, A bytes.
//
// References:
//   - Porter-Duff: "Compositing Digital Images" (1984)
//   - W3C Compositing and Blending Level 1: https://www.w3.org/TR/compositing-1/
package blend

import (
	"fmt"
	"strings"
)

// PixelSize is the number of bytes per RGBA8 pixel.
const PixelSize = 4

// Mode is a layer blend mode.
type Mode uint8

const (
	ModeNormal     Mode = iota // S + D*(1-Sa)
	ModeMultiply               // B = S*D
	ModeScreen                 // B = S + D - S*D
	ModeDarken                 // B = min(S, D)
	ModeLighten                // B = max(S, D)
	ModeDifference             // B = |S - D|
	ModeAddition               // min(S + D, 1)
	ModeErase                  // D*(1-Sa)
	ModeCopy                   // S
)

var modeNames = [...]string{
	ModeNormal:     "normal",
	ModeMultiply:   "multiply",
	ModeScreen:     "screen",
	ModeDarken:     "darken",
	ModeLighten:    "lighten",
	ModeDifference: "difference",
	ModeAddition:   "addition",
	ModeErase:      "erase",
	ModeCopy:       "copy",
}

// String returns the mode name.
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", m)
}

// ParseMode returns the mode with the given name (case-insensitive).
func ParseMode(name string) (Mode, error) {
	for m, n := range modeNames {
		if strings.EqualFold(n, name) {
			return Mode(m), nil
		}
	}
	return ModeNormal, fmt.Errorf("blend: unknown mode %q", name)
}

// Func blends one source pixel onto one destination pixel.
type Func func(sr, sg, sb, sa, dr, dg, db, da byte) (r, g, b, a byte)

// GetFunc returns the blend function for mode.
// Unknown modes return the normal (source-over) function.
func GetFunc(mode Mode) Func {
	switch mode {
	case ModeMultiply:
		return blendMultiply
	case ModeScreen:
		return blendScreen
	case ModeDarken:
		return blendDarken
	case ModeLighten:
		return blendLighten
	case ModeDifference:
		return blendDifference
	case ModeAddition:
		return blendAddition
	case ModeErase:
		return blendErase
	case ModeCopy:
		return blendCopy
	default:
		return blendSourceOver
	}
}

// blendSourceOver composites source over destination.
// Formula: S + D * (1 - Sa)
func blendSourceOver(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invSa := 255 - sa
	return addClamp(sr, mulDiv255(dr, invSa)),
		addClamp(sg, mulDiv255(dg, invSa)),
		addClamp(sb, mulDiv255(db, invSa)),
		addClamp(sa, mulDiv255(da, invSa))
}

// blendErase removes destination where source is opaque.
// Formula: D * (1 - Sa)
func blendErase(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	invSa := 255 - sa
	return mulDiv255(dr, invSa), mulDiv255(dg, invSa), mulDiv255(db, invSa), mulDiv255(da, invSa)
}

// blendAddition adds source and destination, clamped.
func blendAddition(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return addClamp(sr, dr), addClamp(sg, dg), addClamp(sb, db), addClamp(sa, da)
}

// blendCopy replaces destination with source.
func blendCopy(sr, sg, sb, sa, _, _, _, _ byte) (byte, byte, byte, byte) {
	return sr, sg, sb, sa
}

// separable applies B(s, d) on unpremultiplied channels:
// Result = (1 - Sa)*D + (1 - Da)*S + Sa*Da*B(Sc, Dc)
func separable(sr, sg, sb, sa, dr, dg, db, da byte, fn func(s, d byte) byte) (byte, byte, byte, byte) {
	if sa == 0 {
		return dr, dg, db, da
	}
	if da == 0 {
		return sr, sg, sb, sa
	}

	invSa := 255 - sa
	invDa := 255 - da
	saDa := mulDiv255(sa, da)

	channel := func(s, d byte) byte {
		b := fn(unpremultiply(s, sa), unpremultiply(d, da))
		c := addClamp(mulDiv255(d, invSa), mulDiv255(s, invDa))
		return addClamp(c, mulDiv255(saDa, b))
	}

	return channel(sr, dr), channel(sg, dg), channel(sb, db),
		addClamp(sa, mulDiv255(da, invSa))
}

func blendMultiply(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return separable(sr, sg, sb, sa, dr, dg, db, da, mulDiv255)
}

func blendScreen(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return separable(sr, sg, sb, sa, dr, dg, db, da, func(s, d byte) byte {
		return 255 - mulDiv255(255-s, 255-d)
	})
}

func blendDarken(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return separable(sr, sg, sb, sa, dr, dg, db, da, func(s, d byte) byte {
		return min(s, d)
	})
}

func blendLighten(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return separable(sr, sg, sb, sa, dr, dg, db, da, func(s, d byte) byte {
		return max(s, d)
	})
}

func blendDifference(sr, sg, sb, sa, dr, dg, db, da byte) (byte, byte, byte, byte) {
	return separable(sr, sg, sb, sa, dr, dg, db, da, func(s, d byte) byte {
		if s > d {
			return s - d
		}
		return d - s
	})
}
