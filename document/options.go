package document

import (
	"github.com/gogpu/tilepipe/scheduler"
	"github.com/gogpu/tilepipe/tilestore"
)

// Option configures a Document during creation.
type Option func(*options)

type options struct {
	storeOpts []tilestore.Option
	schedOpts []scheduler.Option
}

// WithStoreOptions sets options applied to every layer store the document
// creates, such as a shared swapper or a memory budget.
func WithStoreOptions(opts ...tilestore.Option) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// WithSchedulerOptions sets options for the document's scheduler.
// The document bounds are always applied.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(o *options) {
		o.schedOpts = append(o.schedOpts, opts...)
	}
}
