package document

import (
	"context"
	"errors"
	"sync"

	"github.com/gogpu/tilepipe"
	"github.com/gogpu/tilepipe/internal/blend"
	"github.com/gogpu/tilepipe/scheduler"
	"github.com/gogpu/tilepipe/tilestore"
)

// Errors returned by tree edits.
var (
	ErrNotInTree    = errors.New("document: layer is not in the tree")
	ErrHasParent    = errors.New("document: layer already has a parent")
	ErrIsRoot       = errors.New("document: operation not allowed on the root")
	ErrForeignLayer = errors.New("document: layer belongs to another document")
)

// Document is a layer tree with a scheduler keeping its projections current.
type Document struct {
	bounds tilestore.Rect
	opts   options
	root   *GroupLayer
	sched  *scheduler.Scheduler

	// tree guards parent and children links of every layer.
	tree sync.RWMutex

	mu     sync.Mutex
	stores []*tilestore.Store
	closed bool
}

// New creates a document of the given size with an empty root group.
func New(width, height int, opts ...Option) *Document {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	d := &Document{
		bounds: tilestore.XYWH(0, 0, width, height),
		opts:   o,
	}
	d.root = d.NewGroupLayer("root")

	schedOpts := append([]scheduler.Option{scheduler.WithBounds(d.bounds)}, o.schedOpts...)
	d.sched = scheduler.New(d.root, schedOpts...)
	return d
}

// Bounds returns the document rectangle.
func (d *Document) Bounds() tilestore.Rect { return d.bounds }

// Root returns the root group.
func (d *Document) Root() *GroupLayer { return d.root }

// Scheduler returns the document's scheduler.
func (d *Document) Scheduler() *scheduler.Scheduler { return d.sched }

// Projection returns the composited image of the whole document.
func (d *Document) Projection() *tilestore.Store { return d.root.projection }

// Lock takes the scheduler's barrier lock.
func (d *Document) Lock() { d.sched.BarrierLock() }

// Unlock releases the barrier lock.
func (d *Document) Unlock() { d.sched.Unlock() }

// WaitForDone waits for every scheduled update.
func (d *Document) WaitForDone(ctx context.Context) error {
	return d.sched.WaitForDone(ctx)
}

// RefreshGraph recomputes every group projection over the document bounds
// and waits for the result.
func (d *Document) RefreshGraph(ctx context.Context) error {
	return d.sched.FullRefresh(ctx, d.root, d.bounds, d.bounds)
}

// =============================================================================
// Layers
// =============================================================================

// NewPaintLayer creates a detached paint layer.
func (d *Document) NewPaintLayer(name string) *PaintLayer {
	p := &PaintLayer{device: d.newStore(name)}
	p.init(p, d, name)
	return p
}

// NewGroupLayer creates a detached, empty group layer.
func (d *Document) NewGroupLayer(name string) *GroupLayer {
	g := &GroupLayer{projection: d.newStore(name + ".projection")}
	g.init(g, d, name)
	return g
}

func (d *Document) newStore(name string) *tilestore.Store {
	opts := append([]tilestore.Option{tilestore.WithName(name)}, d.opts.storeOpts...)
	s := tilestore.New(blend.PixelSize, opts...)

	d.mu.Lock()
	d.stores = append(d.stores, s)
	d.mu.Unlock()
	return s
}

// AddNode inserts l into parent at index, counted from the bottom. An index
// outside the child list appends l on top. The area covered by l is
// refreshed, including every group inside l.
func (d *Document) AddNode(parent *GroupLayer, l Layer, index int) error {
	lp := l.props()
	if lp.doc != d || parent.doc != d {
		return ErrForeignLayer
	}
	if l == Layer(d.root) {
		return ErrIsRoot
	}

	d.sched.BarrierLock()
	defer d.sched.Unlock()

	d.tree.Lock()
	if lp.parent != nil {
		d.tree.Unlock()
		return ErrHasParent
	}
	if !d.attachedLocked(&parent.layer) {
		d.tree.Unlock()
		return ErrNotInTree
	}
	if index < 0 || index > len(parent.children) {
		index = len(parent.children)
	}
	parent.children = append(parent.children, nil)
	copy(parent.children[index+1:], parent.children[index:])
	parent.children[index] = l
	lp.parent = parent
	d.tree.Unlock()

	tilepipe.Logger().Debug("document: layer added",
		"layer", lp.name, "parent", parent.name, "index", index)

	d.sched.FullRefreshAsync(l, l.Extent(), d.bounds)
	return nil
}

// RemoveNode detaches l from its parent and schedules an update of the area
// it covered. The layer keeps its pixels and can be added again.
func (d *Document) RemoveNode(l Layer) error {
	lp := l.props()
	if lp.doc != d {
		return ErrForeignLayer
	}
	if l == Layer(d.root) {
		return ErrIsRoot
	}

	d.sched.BarrierLock()
	defer d.sched.Unlock()

	extent := l.Extent()

	d.tree.Lock()
	if !d.attachedLocked(lp) {
		d.tree.Unlock()
		return ErrNotInTree
	}
	parent := lp.parent
	if i := parent.indexOf(l); i >= 0 {
		parent.children = append(parent.children[:i], parent.children[i+1:]...)
	}
	lp.parent = nil
	d.tree.Unlock()

	tilepipe.Logger().Debug("document: layer removed", "layer", lp.name, "parent", parent.name)

	d.sched.UpdateProjection(parent, extent, d.bounds)
	return nil
}

// attachedLocked reports whether l is reachable from the root.
// d.tree must be held.
func (d *Document) attachedLocked(l *layer) bool {
	for l != nil {
		if l == &d.root.layer {
			return true
		}
		if l.parent == nil {
			return false
		}
		l = &l.parent.layer
	}
	return false
}

// Close stops the scheduler and closes every store the document created.
// Swappers passed through WithStoreOptions are not closed.
func (d *Document) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	stores := d.stores
	d.stores = nil
	d.mu.Unlock()

	errs := []error{d.sched.Close()}
	for _, s := range stores {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
