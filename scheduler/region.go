package scheduler

import (
	"slices"

	"github.com/gogpu/tilepipe/tilestore"
)

// MergePolicy controls how rectangles registered against one node coalesce.
type MergePolicy uint8

const (
	// MergeExact keeps the exact union: contained rectangles are dropped and
	// rectangles sharing a full edge span are joined.
	MergeExact MergePolicy = iota

	// MergeBounding collapses all rectangles to their bounding box. Fewer,
	// larger jobs; pixels between the rectangles are recomputed too.
	MergeBounding
)

// String returns the policy name.
func (p MergePolicy) String() string {
	if p == MergeBounding {
		return "bounding"
	}
	return "exact"
}

// Region is a set of rectangles covering the dirty area of one node.
// Rectangles may overlap. The zero value is an empty region.
type Region struct {
	policy MergePolicy
	rects  []tilestore.Rect
}

// NewRegion creates an empty region with the given policy.
func NewRegion(policy MergePolicy) *Region {
	return &Region{policy: policy}
}

// Add merges r into the region. Empty rectangles are ignored.
func (g *Region) Add(r tilestore.Rect) {
	if r.Empty() {
		return
	}

	if g.policy == MergeBounding {
		if len(g.rects) == 0 {
			g.rects = append(g.rects, r)
		} else {
			g.rects[0] = g.rects[0].Union(r)
		}
		return
	}

	for _, e := range g.rects {
		if e.Contains(r) {
			return
		}
	}

	for merged := true; merged; {
		merged = false
		for i, e := range g.rects {
			if r.Contains(e) || joinable(e, r) {
				r = r.Union(e)
				g.rects = slices.Delete(g.rects, i, i+1)
				merged = true
				break
			}
		}
	}
	g.rects = append(g.rects, r)
}

// AddRegion merges every rectangle of o into the region.
func (g *Region) AddRegion(o *Region) {
	for _, r := range o.rects {
		g.Add(r)
	}
}

// joinable reports whether the union of a and b covers exactly a and b:
// same column span with touching or overlapping rows, or the reverse.
func joinable(a, b tilestore.Rect) bool {
	if a.X == b.X && a.W == b.W {
		return b.Y <= a.Bottom() && a.Y <= b.Bottom()
	}
	if a.Y == b.Y && a.H == b.H {
		return b.X <= a.Right() && a.X <= b.Right()
	}
	return false
}

// Rects returns a copy of the region's rectangles.
func (g *Region) Rects() []tilestore.Rect {
	return slices.Clone(g.rects)
}

// Empty reports whether the region covers no pixels.
func (g *Region) Empty() bool {
	return len(g.rects) == 0
}

// Bounds returns the bounding box of the region.
func (g *Region) Bounds() tilestore.Rect {
	var b tilestore.Rect
	for _, r := range g.rects {
		b = b.Union(r)
	}
	return b
}

// ContainsPoint reports whether pixel (x, y) lies in the region.
func (g *Region) ContainsPoint(x, y int) bool {
	for _, r := range g.rects {
		if r.ContainsPoint(x, y) {
			return true
		}
	}
	return false
}

// Clip intersects every rectangle with clip.
func (g *Region) Clip(clip tilestore.Rect) {
	out := g.rects[:0]
	for _, r := range g.rects {
		if c := r.Intersect(clip); !c.Empty() {
			out = append(out, c)
		}
	}
	g.rects = out
}
