package document

import (
	"image"
	"sync"

	"github.com/gogpu/tilepipe/scheduler"
	"github.com/gogpu/tilepipe/tilestore"
)

// Layer is a node of a document's layer tree.
type Layer interface {
	scheduler.Node
	scheduler.Compositing

	// Name returns the layer name.
	Name() string

	// Extent returns the bounding rectangle of the layer's content.
	Extent() tilestore.Rect

	props() *layer
}

// layer holds the state shared by all layer kinds.
type layer struct {
	self Layer
	doc  *Document
	name string

	// parent is guarded by doc.tree.
	parent *GroupLayer

	mu      sync.Mutex
	visible bool
	opacity byte
	mode    scheduler.BlendMode
}

func (l *layer) init(self Layer, doc *Document, name string) {
	l.self = self
	l.doc = doc
	l.name = name
	l.visible = true
	l.opacity = 255
}

func (l *layer) props() *layer { return l }

// Name returns the layer name.
func (l *layer) Name() string { return l.name }

// Parent returns the parent group, or nil for the root and detached layers.
func (l *layer) Parent() scheduler.Node {
	l.doc.tree.RLock()
	defer l.doc.tree.RUnlock()
	if l.parent == nil {
		return nil
	}
	return l.parent
}

// NextSibling returns the layer above this one in its parent.
func (l *layer) NextSibling() scheduler.Node {
	l.doc.tree.RLock()
	defer l.doc.tree.RUnlock()
	if l.parent == nil {
		return nil
	}
	i := l.parent.indexOf(l.self)
	if i < 0 || i+1 >= len(l.parent.children) {
		return nil
	}
	return l.parent.children[i+1]
}

// Visible reports whether the layer contributes to its parent.
func (l *layer) Visible() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.visible
}

// Opacity returns the layer opacity, 0-255.
func (l *layer) Opacity() byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opacity
}

// BlendMode returns how the layer is merged into its parent.
func (l *layer) BlendMode() scheduler.BlendMode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// SetVisible shows or hides the layer and schedules an update of its extent.
func (l *layer) SetVisible(v bool) {
	l.mu.Lock()
	changed := l.visible != v
	l.visible = v
	l.mu.Unlock()
	if changed {
		l.SetDirty(l.self.Extent())
	}
}

// SetOpacity sets the layer opacity and schedules an update of its extent.
func (l *layer) SetOpacity(o byte) {
	l.mu.Lock()
	changed := l.opacity != o
	l.opacity = o
	l.mu.Unlock()
	if changed {
		l.SetDirty(l.self.Extent())
	}
}

// SetBlendMode sets the blend mode and schedules an update of its extent.
func (l *layer) SetBlendMode(m scheduler.BlendMode) {
	l.mu.Lock()
	changed := l.mode != m
	l.mode = m
	l.mu.Unlock()
	if changed {
		l.SetDirty(l.self.Extent())
	}
}

// SetDirty schedules an update of r. It is a no-op for detached layers.
func (l *layer) SetDirty(r tilestore.Rect) {
	l.doc.sched.UpdateProjection(l.self, r, l.doc.Bounds())
}

// =============================================================================
// PaintLayer
// =============================================================================

// PaintLayer is a leaf layer holding RGBA8 premultiplied pixels.
type PaintLayer struct {
	layer
	device *tilestore.Store
}

// FirstChild returns nil.
func (p *PaintLayer) FirstChild() scheduler.Node { return nil }

// PaintDevice returns the layer's pixels.
func (p *PaintLayer) PaintDevice() *tilestore.Store { return p.device }

// Projection returns the layer's pixels.
func (p *PaintLayer) Projection() *tilestore.Store { return p.device }

// Extent returns the bounding rectangle of allocated tiles.
func (p *PaintLayer) Extent() tilestore.Rect { return p.device.Extent() }

// Fill fills r with an RGBA8 premultiplied pixel and schedules an update.
func (p *PaintLayer) Fill(r tilestore.Rect, pixel []byte) error {
	if err := p.device.Fill(r, pixel); err != nil {
		return err
	}
	p.SetDirty(r)
	return nil
}

// ImportImage draws img into the layer with its origin at at and schedules
// an update of the covered area.
func (p *PaintLayer) ImportImage(img image.Image, at image.Point) error {
	r := tilestore.FromImageRect(img.Bounds().Sub(img.Bounds().Min).Add(at))
	rgba := toRGBA(img)
	if err := p.device.WriteBytes(packed(rgba), r); err != nil {
		return err
	}
	p.SetDirty(r)
	return nil
}

// ExportImage returns the layer pixels over r.
func (p *PaintLayer) ExportImage(r tilestore.Rect) (*image.RGBA, error) {
	return storeImage(p.device, r)
}

// =============================================================================
// GroupLayer
// =============================================================================

// GroupLayer composites its children into its projection.
// Children are ordered bottom to top.
type GroupLayer struct {
	layer
	projection *tilestore.Store

	// children is guarded by doc.tree.
	children []Layer
}

// FirstChild returns the bottom child.
func (g *GroupLayer) FirstChild() scheduler.Node {
	g.doc.tree.RLock()
	defer g.doc.tree.RUnlock()
	if len(g.children) == 0 {
		return nil
	}
	return g.children[0]
}

// PaintDevice returns nil; a group has no pixels of its own.
func (g *GroupLayer) PaintDevice() *tilestore.Store { return nil }

// Projection returns the composited children.
func (g *GroupLayer) Projection() *tilestore.Store { return g.projection }

// Children returns a copy of the child list, bottom to top.
func (g *GroupLayer) Children() []Layer {
	g.doc.tree.RLock()
	defer g.doc.tree.RUnlock()
	return append([]Layer(nil), g.children...)
}

// Extent returns the union of the children's extents.
func (g *GroupLayer) Extent() tilestore.Rect {
	var r tilestore.Rect
	for _, c := range g.Children() {
		r = r.Union(c.Extent())
	}
	return r
}

// indexOf returns the position of l among the children, or -1.
// doc.tree must be held.
func (g *GroupLayer) indexOf(l Layer) int {
	for i, c := range g.children {
		if c == l {
			return i
		}
	}
	return -1
}

// Compile-time interface checks.
var (
	_ Layer = (*PaintLayer)(nil)
	_ Layer = (*GroupLayer)(nil)
)
