package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/tilepipe"
	"github.com/gogpu/tilepipe/internal/blend"
	"github.com/gogpu/tilepipe/internal/parallel"
	"github.com/gogpu/tilepipe/tilestore"
)

// ErrPixelSize is returned when a projection is not 4 bytes per pixel.
var ErrPixelSize = errors.New("scheduler: projection pixel size must be 4 (RGBA8)")

// nodeWork is the area of one composite node to recompute.
type nodeWork struct {
	node   Node
	region *Region
	depth  int
}

// plan expands the requests of b into per-node work, deepest first.
func (s *Scheduler) plan(b *batch) []nodeWork {
	work := make(map[Node]*Region)
	merge := func(n Node, g *Region) {
		w, ok := work[n]
		if !ok {
			w = NewRegion(s.opts.policy)
			work[n] = w
		}
		w.AddRegion(g)
	}
	upwards := func(n Node, g *Region) {
		for ; n != nil; n = n.Parent() {
			if isComposite(n) {
				merge(n, g)
			}
		}
	}

	for node, g := range b.updates {
		if depthIn(s.root, node) < 0 {
			continue
		}
		upwards(node, g)
	}
	for node, g := range b.refresh {
		if depthIn(s.root, node) < 0 {
			continue
		}
		walkSubtree(node, func(n Node) {
			if isComposite(n) {
				merge(n, g)
			}
		})
		upwards(node.Parent(), g)
	}

	plan := make([]nodeWork, 0, len(work))
	for n, g := range work {
		plan = append(plan, nodeWork{node: n, region: g, depth: depthIn(s.root, n)})
	}
	slices.SortFunc(plan, func(a, b nodeWork) int {
		return cmp.Compare(b.depth, a.depth)
	})
	return plan
}

// execute runs one batch. It returns nil when the batch was cancelled.
func (s *Scheduler) execute(b *batch) error {
	start := time.Now()
	plan := s.plan(b)

	tiles := 0
	for lo := 0; lo < len(plan); {
		hi := lo
		var jobs []parallel.Job
		for ; hi < len(plan) && plan[hi].depth == plan[lo].depth; hi++ {
			jobs = append(jobs, tileJobs(plan[hi])...)
		}
		tiles += len(jobs)

		err := s.pool.Run(b.ctx, jobs)
		if b.ctx.Err() != nil {
			tilepipe.Logger().Warn("scheduler: batch cancelled",
				"batch", b.id, "depth", plan[lo].depth)
			return withoutCancellation(err)
		}
		if err != nil {
			tilepipe.Logger().Error("scheduler: batch failed",
				"batch", b.id, "depth", plan[lo].depth, "err", err)
			return fmt.Errorf("scheduler: batch %s: %w", b.id, err)
		}
		lo = hi
	}

	if s.opts.listener != nil {
		for _, w := range plan {
			if w.node != s.root {
				continue
			}
			for _, r := range w.region.Rects() {
				s.opts.listener(r)
			}
		}
	}

	tilepipe.Logger().Debug("scheduler: batch done",
		"batch", b.id, "nodes", len(plan), "tiles", tiles, "elapsed", time.Since(start))
	return nil
}

// tileJobs splits the work of one node into one job per projection tile.
func tileJobs(w nodeWork) []parallel.Job {
	mask := parallel.NewTileMask(w.region.Bounds())
	if mask == nil {
		return nil
	}
	rects := w.region.Rects()
	for _, r := range rects {
		mask.MarkRect(r)
	}

	jobs := make([]parallel.Job, 0, mask.Count())
	mask.ForEach(func(key tilestore.TileKey) {
		tb := key.Bounds()
		var parts []tilestore.Rect
		for _, r := range rects {
			if p := tb.Intersect(r); !p.Empty() {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			return
		}
		jobs = append(jobs, func(ctx context.Context) error {
			return recomputeTile(ctx, w.node, key, parts)
		})
	})
	return jobs
}

// scratchPool holds tile-sized RGBA8 buffers.
var scratchPool = sync.Pool{
	New: func() any {
		b := make([]byte, tilestore.TilePixels*blend.PixelSize)
		return &b
	},
}

// recomputeTile composites the children of n over parts, which all lie in
// tile key, and writes the result under one exclusive tile handle.
func recomputeTile(ctx context.Context, n Node, key tilestore.TileKey, parts []tilestore.Rect) error {
	proj := n.Projection()
	if proj.PixelSize() != blend.PixelSize {
		return fmt.Errorf("%w: %s has %d", ErrPixelSize, proj.Name(), proj.PixelSize())
	}

	tmp := scratchPool.Get().(*[]byte)
	defer scratchPool.Put(tmp)

	results := make([]*[]byte, len(parts))
	defer func() {
		for _, r := range results {
			if r != nil {
				scratchPool.Put(r)
			}
		}
	}()

	for i, r := range parts {
		results[i] = scratchPool.Get().(*[]byte)
		if err := compositeChildren(n, r, (*results[i])[:r.Area()*blend.PixelSize], (*tmp)[:r.Area()*blend.PixelSize]); err != nil {
			return err
		}
	}

	// Nothing is written once the batch is cancelled.
	if ctx.Err() != nil {
		return nil
	}

	h, err := proj.AcquireTile(key.Col, key.Row)
	if err != nil {
		return err
	}
	defer h.Release()

	data := h.Data()
	stride := h.Stride()
	tb := h.Bounds()
	for i, r := range parts {
		src := *results[i]
		rowBytes := r.W * blend.PixelSize
		for y := range r.H {
			off := (r.Y-tb.Y+y)*stride + (r.X-tb.X)*blend.PixelSize
			copy(data[off:off+rowBytes], src[y*rowBytes:(y+1)*rowBytes])
		}
	}
	return nil
}

// compositeChildren merges the visible children of n over r into dst,
// starting from transparent. tmp is scratch of the same size.
func compositeChildren(n Node, r tilestore.Rect, dst, tmp []byte) error {
	clear(dst)
	rowBytes := r.W * blend.PixelSize

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		visible, opacity, mode := compositing(c)
		if !visible {
			continue
		}
		src := c.Projection()
		if src == nil {
			continue
		}
		if src.PixelSize() != blend.PixelSize {
			return fmt.Errorf("%w: %s has %d", ErrPixelSize, src.Name(), src.PixelSize())
		}
		if err := src.ReadBytes(tmp, r); err != nil {
			return err
		}
		for y := range r.H {
			row := y * rowBytes
			blend.CompositeRow(dst[row:row+rowBytes], tmp[row:row+rowBytes], mode, opacity)
		}
	}
	return nil
}

// withoutCancellation strips context.Canceled from a joined job error.
func withoutCancellation(err error) error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var rest []error
		for _, e := range j.Unwrap() {
			if !errors.Is(e, context.Canceled) {
				rest = append(rest, e)
			}
		}
		return errors.Join(rest...)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
