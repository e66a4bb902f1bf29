package document

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/tilepipe/tilestore"
)

// ExportImage returns the document projection over r.
func (d *Document) ExportImage(r tilestore.Rect) (*image.RGBA, error) {
	return storeImage(d.root.projection, r)
}

// Thumbnail scales the whole projection to w x h.
func (d *Document) Thumbnail(w, h int) (*image.RGBA, error) {
	src, err := storeImage(d.root.projection, d.bounds)
	if err != nil {
		return nil, err
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst, nil
}

// storeImage copies r of an RGBA8 store into an image whose bounds are r.
// image.RGBA is premultiplied, so the bytes are used as they are.
func storeImage(s *tilestore.Store, r tilestore.Rect) (*image.RGBA, error) {
	img := image.NewRGBA(r.ImageRect())
	if r.Empty() {
		return img, nil
	}
	if err := s.ReadBytes(img.Pix, r); err != nil {
		return nil, err
	}
	return img, nil
}

// toRGBA converts img to an image.RGBA anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// packed returns the pixels of img without row padding.
func packed(img *image.RGBA) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	rowBytes := w * 4
	if img.Stride == rowBytes {
		return img.Pix[:rowBytes*h]
	}
	out := make([]byte, rowBytes*h)
	for y := range h {
		copy(out[y*rowBytes:(y+1)*rowBytes], img.Pix[y*img.Stride:y*img.Stride+rowBytes])
	}
	return out
}
