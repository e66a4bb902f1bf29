package scheduler

import (
	"github.com/gogpu/tilepipe/internal/blend"
	"github.com/gogpu/tilepipe/tilestore"
)

// Node is a vertex of the layer tree.
//
// The first child is the bottom of the stack; siblings follow upwards.
// A node whose Projection differs from its PaintDevice is a composite node:
// its projection is recomputed from its children. A leaf returns its paint
// device as its projection.
type Node interface {
	Parent() Node
	FirstChild() Node
	NextSibling() Node
	PaintDevice() *tilestore.Store
	Projection() *tilestore.Store
}

// Compositing is implemented by nodes that control how their projection is
// merged into the parent. Nodes without it are visible, opaque and normal.
type Compositing interface {
	Visible() bool
	Opacity() byte
	BlendMode() BlendMode
}

// BlendMode selects how a child projection is merged into its parent.
type BlendMode = blend.Mode

// Blend modes.
const (
	BlendNormal     = blend.ModeNormal
	BlendMultiply   = blend.ModeMultiply
	BlendScreen     = blend.ModeScreen
	BlendDarken     = blend.ModeDarken
	BlendLighten    = blend.ModeLighten
	BlendDifference = blend.ModeDifference
	BlendAddition   = blend.ModeAddition
	BlendErase      = blend.ModeErase
	BlendCopy       = blend.ModeCopy
)

// ParseBlendMode returns the blend mode with the given name.
func ParseBlendMode(name string) (BlendMode, error) {
	return blend.ParseMode(name)
}

// isComposite reports whether n's projection is computed from its children.
func isComposite(n Node) bool {
	p := n.Projection()
	return p != nil && p != n.PaintDevice()
}

// compositing returns the merge parameters of n.
func compositing(n Node) (visible bool, opacity byte, mode BlendMode) {
	if c, ok := n.(Compositing); ok {
		return c.Visible(), c.Opacity(), c.BlendMode()
	}
	return true, 255, BlendNormal
}

// depthIn returns the distance of n from root, or -1 if n is not in the
// tree rooted at root.
func depthIn(root, n Node) int {
	depth := 0
	for ; n != nil; n = n.Parent() {
		if n == root {
			return depth
		}
		depth++
	}
	return -1
}

// walkSubtree calls fn for n and every descendant of n.
func walkSubtree(n Node, fn func(Node)) {
	fn(n)
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		walkSubtree(c, fn)
	}
}
