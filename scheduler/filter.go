package scheduler

import "github.com/gogpu/tilepipe/tilestore"

// Filter inspects projection update requests before they are queued.
// Filter returns true to drop the request.
type Filter interface {
	Filter(node Node, rect tilestore.Rect) bool
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(node Node, rect tilestore.Rect) bool

// Filter calls f(node, rect).
func (f FilterFunc) Filter(node Node, rect tilestore.Rect) bool {
	return f(node, rect)
}

// DropAllFilter drops every projection update. Installing it disables dirty
// requests until it is removed; full refreshes are not filtered.
var DropAllFilter Filter = FilterFunc(func(Node, tilestore.Rect) bool { return true })

// FilterCookie identifies an installed filter.
type FilterCookie uint64
