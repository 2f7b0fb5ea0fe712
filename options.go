package hdf5

import "github.com/scigolib/hdf5/internal/core"

// openOptions holds the resolved configuration for an open File.
type openOptions struct {
	filterRegistry     *core.FilterRegistry
	chunkCacheDisabled bool
}

// OpenOption configures an Open call. Options are applied in the order
// they're passed; later options override earlier ones for the same field.
type OpenOption func(*openOptions)

// WithFilterRegistry overrides (and extends) the default filter-ID
// dispatch used to decode chunk data, for filter IDs the built-in switch
// doesn't know or where the caller wants different behavior (e.g. a
// vendor-specific codec). Filter IDs not present in registry still fall
// back to the built-in dispatch.
func WithFilterRegistry(registry *core.FilterRegistry) OpenOption {
	return func(o *openOptions) {
		o.filterRegistry = registry
	}
}

// WithChunkCacheDisabled turns off the per-dataset decoded-chunk cache used
// by Dataset.ReadRaw: every call re-parses the chunk B-tree and re-decodes
// every chunk it touches instead of reusing the Dataset's persistent cache.
// The B-tree lookup and filter pipeline still run through the same code
// path; only the memoization is skipped. Read/ReadStrings/ReadCompound do
// not go through this cache at all (see DESIGN.md); this option only
// affects ReadRaw. Useful when a dataset is read once and the memory held
// by the cache isn't worth paying for.
func WithChunkCacheDisabled() OpenOption {
	return func(o *openOptions) {
		o.chunkCacheDisabled = true
	}
}

func resolveOptions(opts []OpenOption) *openOptions {
	o := &openOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
