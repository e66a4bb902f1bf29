package blend

// CompositeRow blends the RGBA8 pixels of src onto dst in place.
// opacity scales the source before blending; 255 leaves it unchanged and 0
// leaves dst untouched. Only the common prefix of whole pixels is processed.
func CompositeRow(dst, src []byte, mode Mode, opacity byte) {
	if opacity == 0 && mode != ModeCopy {
		return
	}
	fn := GetFunc(mode)

	n := min(len(dst), len(src)) / PixelSize * PixelSize
	for i := 0; i < n; i += PixelSize {
		sr, sg, sb, sa := src[i], src[i+1], src[i+2], src[i+3]
		if opacity != 255 {
			sr = mulDiv255(sr, opacity)
			sg = mulDiv255(sg, opacity)
			sb = mulDiv255(sb, opacity)
			sa = mulDiv255(sa, opacity)
		}
		if sa == 0 && mode == ModeNormal {
			continue
		}
		dst[i], dst[i+1], dst[i+2], dst[i+3] = fn(sr, sg, sb, sa, dst[i], dst[i+1], dst[i+2], dst[i+3])
	}
}
