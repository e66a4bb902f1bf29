package tilestore

import "github.com/gogpu/tilepipe/codec"

// Option configures a Store during creation.
//
// Example:
//
//	swap, _ := tilestore.NewFileSwap("")
//	s := tilestore.New(4,
//	    tilestore.WithSwapper(swap),
//	    tilestore.WithMemoryBudget(256),
//	)
type Option func(*options)

// options holds optional configuration for Store creation.
type options struct {
	name         string
	defaultPixel []byte
	compression  codec.Compression
	swapper      Swapper
	budget       int
}

// defaultOptions returns the default store options: zero default pixel,
// LZF compression, in-memory swap, unlimited residency.
func defaultOptions() options {
	return options{
		compression: codec.LZF{},
	}
}

// WithName sets the store name used in log records.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithDefaultPixel sets the value of pixels that were never written.
// The slice length must equal the store's pixel size; other lengths are ignored.
func WithDefaultPixel(pixel []byte) Option {
	return func(o *options) {
		o.defaultPixel = append([]byte(nil), pixel...)
	}
}

// WithCompression sets the codec used for evicted tiles.
// Pass codec.Raw{} to swap tiles uncompressed.
func WithCompression(c codec.Compression) Option {
	return func(o *options) {
		if c != nil {
			o.compression = c
		}
	}
}

// WithSwapper sets the swapper that receives evicted tiles.
// The store does not close a swapper passed in this way.
func WithSwapper(s Swapper) Option {
	return func(o *options) {
		o.swapper = s
	}
}

// WithMemoryBudget limits the number of resident tiles. When a release
// pushes the resident count over the budget, least-recently-used tiles are
// evicted. Zero means unlimited (eviction only via Store.Evict).
func WithMemoryBudget(maxResidentTiles int) Option {
	return func(o *options) {
		o.budget = max(maxResidentTiles, 0)
	}
}
