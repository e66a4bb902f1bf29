package scheduler

import (
	"time"

	"github.com/gogpu/tilepipe/tilestore"
)

// Option configures a Scheduler during creation.
type Option func(*options)

type options struct {
	workers    int
	bounds     tilestore.Rect
	policy     MergePolicy
	listener   func(tilestore.Rect)
	batchDelay time.Duration
}

func defaultOptions() options {
	return options{policy: MergeExact}
}

// WithWorkers sets the number of tile workers. 0 uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithBounds clips every request to r (the image bounds).
func WithBounds(r tilestore.Rect) Option {
	return func(o *options) {
		o.bounds = r
	}
}

// WithMergePolicy sets how rectangles of one node coalesce.
func WithMergePolicy(p MergePolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithProjectionListener registers fn to be called, from the dispatcher
// goroutine, with every rectangle of the root projection a batch updated.
func WithProjectionListener(fn func(tilestore.Rect)) Option {
	return func(o *options) {
		o.listener = fn
	}
}

// WithBatchDelay sets how long the dispatcher accumulates requests after the
// first one before executing them. 0 dispatches immediately.
func WithBatchDelay(d time.Duration) Option {
	return func(o *options) {
		o.batchDelay = max(d, 0)
	}
}
