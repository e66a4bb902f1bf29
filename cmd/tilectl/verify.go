package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/disintegration/imaging"

	"github.com/gogpu/tilepipe/document"
	"github.com/gogpu/tilepipe/scheduler"
	"github.com/gogpu/tilepipe/tilestore"
)

// stripOrder is the even-then-odd order in which strips are updated.
var stripOrder = []int{0, 2, 1, 3}

// VerifyCmd checks that updating an image in vertical strips produces the
// same projection as one full refresh.
type VerifyCmd struct {
	Image     string        `arg:"" help:"Image to verify" type:"existingfile"`
	Mode      string        `help:"Blend mode of the overlay layer" default:"multiply"`
	Opacity   uint8         `help:"Opacity of the overlay layer" default:"128"`
	Out       string        `help:"Save the refreshed projection to this file"`
	Thumbnail string        `help:"Save a thumbnail of the projection to this file"`
	Timeout   time.Duration `help:"Give up after this long" default:"1m"`

	blendMode scheduler.BlendMode
	out       io.Writer
}

// Validate implements kong's validation hook.
func (c *VerifyCmd) Validate(kctx *kong.Context) error {
	mode, err := scheduler.ParseBlendMode(c.Mode)
	if err != nil {
		return err
	}
	c.blendMode = mode

	for _, name := range []string{c.Out, c.Thumbnail} {
		if name == "" {
			continue
		}
		if _, err := imaging.FormatFromFilename(name); err != nil {
			return fmt.Errorf("invalid output file %q: %w", name, err)
		}
	}
	return nil
}

// Run builds a two-layer document from the image and compares the strip
// updates against a full refresh.
func (c *VerifyCmd) Run(g *Globals) error {
	out := c.out
	if out == nil {
		out = os.Stdout
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	img, err := imaging.Open(c.Image)
	if err != nil {
		return err
	}

	stg, err := g.storage()
	if err != nil {
		return err
	}
	defer stg.Close()

	b := img.Bounds()
	doc := document.New(b.Dx(), b.Dy(),
		document.WithStoreOptions(stg.opts...),
		document.WithSchedulerOptions(g.schedulerOptions()...),
	)
	defer func() {
		if err := doc.Close(); err != nil {
			slog.Error("could not close document", "error", err)
		}
	}()

	base, err := c.buildLayers(ctx, doc, img)
	if err != nil {
		return err
	}

	// Strip updates over a stale projection.
	if err := poison(doc.Projection(), doc.Bounds()); err != nil {
		return err
	}
	for _, i := range stripOrder {
		base.SetDirty(strip(doc.Bounds(), i, len(stripOrder)))
	}
	if err := doc.WaitForDone(ctx); err != nil {
		return err
	}
	strips, err := doc.ExportImage(doc.Bounds())
	if err != nil {
		return err
	}

	// Reference.
	if err := poison(doc.Projection(), doc.Bounds()); err != nil {
		return err
	}
	if err := doc.RefreshGraph(ctx); err != nil {
		return err
	}
	full, err := doc.ExportImage(doc.Bounds())
	if err != nil {
		return err
	}

	diff := countDiff(strips, full)
	fmt.Fprintf(out, "%s: %dx%d, %d strips, %s at %d: %d differing pixels\n",
		c.Image, b.Dx(), b.Dy(), len(stripOrder), c.blendMode, c.Opacity, diff)

	if c.Out != "" {
		if err := save(full, c.Out); err != nil {
			return err
		}
	}
	if c.Thumbnail != "" {
		w, h := thumbSize(b.Dx(), b.Dy(), 128)
		thumb, err := doc.Thumbnail(w, h)
		if err != nil {
			return err
		}
		if err := save(thumb, c.Thumbnail); err != nil {
			return err
		}
	}

	if diff > 0 {
		return fmt.Errorf("strip updates differ from full refresh in %d pixels", diff)
	}
	return nil
}

// buildLayers adds the image and an inverted overlay to doc, waits for the
// first projection and returns the image layer.
func (c *VerifyCmd) buildLayers(ctx context.Context, doc *document.Document, img image.Image) (*document.PaintLayer, error) {
	base := doc.NewPaintLayer(filepath.Base(c.Image))
	overlay := doc.NewPaintLayer("overlay")
	overlay.SetOpacity(c.Opacity)
	overlay.SetBlendMode(c.blendMode)

	doc.Lock()
	err := c.addLayers(doc, img, base, overlay)
	doc.Unlock()
	if err != nil {
		return nil, err
	}
	if err := doc.WaitForDone(ctx); err != nil {
		return nil, err
	}
	return base, nil
}

func (c *VerifyCmd) addLayers(doc *document.Document, img image.Image, base, overlay *document.PaintLayer) error {
	if err := doc.AddNode(doc.Root(), base, 0); err != nil {
		return err
	}
	if err := doc.AddNode(doc.Root(), overlay, -1); err != nil {
		return err
	}
	if err := base.ImportImage(img, image.Point{}); err != nil {
		return err
	}
	return overlay.ImportImage(imaging.Invert(img), image.Point{})
}

// strip returns vertical strip i of n covering bounds.
func strip(bounds tilestore.Rect, i, n int) tilestore.Rect {
	w := (bounds.W + n - 1) / n
	return tilestore.XYWH(bounds.X+i*w, bounds.Y, w, bounds.H).Intersect(bounds)
}

// poison fills the projection with a value no update produces.
func poison(proj *tilestore.Store, r tilestore.Rect) error {
	return proj.Fill(r, []byte{9, 9, 9, 9})
}

func countDiff(a, b *image.RGBA) int {
	n := 0
	for i := 0; i+3 < len(a.Pix) && i+3 < len(b.Pix); i += 4 {
		if a.Pix[i] != b.Pix[i] || a.Pix[i+1] != b.Pix[i+1] ||
			a.Pix[i+2] != b.Pix[i+2] || a.Pix[i+3] != b.Pix[i+3] {
			n++
		}
	}
	return n
}

// thumbSize fits w x h into a square of side long, keeping the aspect ratio.
func thumbSize(w, h, long int) (int, int) {
	if w >= h {
		return long, max(1, h*long/w)
	}
	return max(1, w*long/h), long
}

func save(img image.Image, name string) error {
	if err := imaging.Save(img, name); err != nil {
		return fmt.Errorf("could not save %q: %w", name, err)
	}
	slog.Info("saved", "file", name, "size", img.Bounds().Size(), "format", strings.TrimPrefix(filepath.Ext(name), "."))
	return nil
}
