package hdf5

import "github.com/scigolib/hdf5/internal/utils"

// Lazy computes a value of type T at most once, no matter how many
// goroutines call Get concurrently. The first caller runs fn; every
// other caller (before or after that first call returns) observes the
// same value or the same error.
//
// Used for the file's memory-mapped reader (file.go), per-node soft-link
// resolution (group.go's SoftLink.resolveOnce), per-dataset chunk-cache
// construction (group.go's Dataset.cacheOnce) and, through the
// internal/utils type this aliases, per-dataset chunk-lookup
// materialization (internal/core/chunkcache.go).
type Lazy[T any] = utils.Lazy[T]

// NewLazy returns a Lazy ready to compute its value on first Get.
func NewLazy[T any]() *Lazy[T] {
	return utils.NewLazy[T]()
}
