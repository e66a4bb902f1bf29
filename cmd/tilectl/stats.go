package main

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"

	"github.com/disintegration/imaging"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/tilepipe/codec"
	"github.com/gogpu/tilepipe/tilestore"
)

// StatsCmd reports how well the tiles of each image compress.
type StatsCmd struct {
	Images      []string `arg:"" help:"Images to analyze" type:"existingfile"`
	PixelSize   int      `help:"Bytes per pixel: 4 for RGBA, 1 for grayscale" enum:"1,4" default:"4"`
	NoLinearize bool     `help:"Skip the planar (linearized) measurement"`

	out io.Writer
}

// imageStats are the sizes measured for one image.
type imageStats struct {
	Path       string
	Width      int
	Height     int
	Tiles      int
	Raw        int
	LZF        int
	Linearized int
	Swapped    int64
}

// Run analyzes every image; one unreadable image does not stop the others.
func (c *StatsCmd) Run(g *Globals) error {
	out := c.out
	if out == nil {
		out = os.Stdout
	}
	p := message.NewPrinter(language.English)

	failed := 0
	for _, path := range c.Images {
		st, err := c.analyze(g, path)
		if err != nil {
			failed++
			slog.Error("could not analyze image", "file", path, "error", err)
			continue
		}

		p.Fprintf(out, "%s: %dx%d, %d tiles\n", st.Path, st.Width, st.Height, st.Tiles)
		p.Fprintf(out, "  raw        %12d bytes\n", st.Raw)
		p.Fprintf(out, "  lzf        %12d bytes  %5.1f%%\n", st.LZF, percent(st.LZF, st.Raw))
		if !c.NoLinearize && c.PixelSize > 1 {
			p.Fprintf(out, "  linearized %12d bytes  %5.1f%%\n", st.Linearized, percent(st.Linearized, st.Raw))
		}
		if st.Swapped > 0 {
			p.Fprintf(out, "  swap file  %12d bytes\n", st.Swapped)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(c.Images))
	}
	return nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

func (c *StatsCmd) analyze(g *Globals, path string) (imageStats, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return imageStats{}, err
	}
	pix := pixelBytes(img, c.PixelSize)
	b := img.Bounds()
	r := tilestore.XYWH(0, 0, b.Dx(), b.Dy())

	stg, err := g.storage()
	if err != nil {
		return imageStats{}, err
	}
	defer stg.Close()

	store := tilestore.New(c.PixelSize, append(stg.opts, tilestore.WithName(path))...)
	defer store.Close()

	if err := store.WriteBytes(pix, r); err != nil {
		return imageStats{}, err
	}

	st := imageStats{Path: path, Width: r.W, Height: r.H}
	plain := codec.NewTileCompressor(codec.LZF{})

	buf := make([]byte, store.TileBytes())
	err = tilestore.ForEachTileKey(r, func(key tilestore.TileKey) error {
		if err := store.ReadBytes(buf, key.Bounds()); err != nil {
			return err
		}
		st.Tiles++
		st.Raw += len(buf)
		// Pixel size 1 compresses the interleaved bytes as they are.
		st.LZF += len(plain.Encode(buf, 1)) - 1
		if !c.NoLinearize {
			st.Linearized += len(plain.Encode(buf, c.PixelSize)) - 1
		}
		return nil
	})
	if err != nil {
		return imageStats{}, err
	}

	if stg.swap != nil {
		store.Evict(store.TileCount())
		s := store.Stats()
		slog.Debug("tiles evicted", "file", path, "evictions", s.Evictions, "failures", s.SwapFailures)
		st.Swapped = stg.swapped()
	}
	return st, nil
}

// pixelBytes returns the pixels of img packed at pixelSize bytes.
func pixelBytes(img image.Image, pixelSize int) []byte {
	if pixelSize == 1 {
		gray := imaging.Grayscale(img)
		out := make([]byte, len(gray.Pix)/4)
		for i := range out {
			out[i] = gray.Pix[i*4]
		}
		return out
	}
	return imaging.Clone(img).Pix
}
