// Package hdf5 provides a pure Go implementation for reading HDF5 files.
// It supports HDF5 format versions 0, 2, and 3, with capabilities for
// reading datasets, groups, attributes, and various data layouts.
package hdf5

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/mmap"

	"github.com/scigolib/hdf5/internal/core"
	"github.com/scigolib/hdf5/internal/utils"
)

// File represents an open HDF5 file with its metadata and root group.
type File struct {
	osFile   *os.File
	filename string
	sb       *core.Superblock
	root     *Group
	arena    *arena
	opts     *openOptions

	mmapOnce *Lazy[*mmap.ReaderAt]
	mmapFile *mmap.ReaderAt
}

// Open opens an HDF5 file for reading and returns a File handle.
// The file must be a valid HDF5 file with a supported format version.
func Open(filename string, opts ...OpenOption) (*File, error) {
	//nolint:gosec // G304: User-provided filename is intentional for HDF5 file library
	f, err := os.Open(filename)
	if err != nil {
		return nil, classify(0, utils.WrapError("file open failed", err))
	}

	// Verify HDF5 signature before reading superblock.
	if !isHDF5File(f) {
		_ = f.Close()
		return nil, errNotHDF5(utils.ErrNotHDF5)
	}

	// Get file size for address validation.
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, classify(0, utils.WrapError("file stat failed", err))
	}
	fileSize := fi.Size()

	sb, err := core.ReadSuperblock(f)
	if err != nil {
		_ = f.Close()
		return nil, classify(0, utils.WrapError("superblock read failed", err))
	}

	file := &File{
		osFile:   f,
		filename: filename,
		sb:       sb,
		arena:    newArena(),
		opts:     resolveOptions(opts),
		mmapOnce: NewLazy[*mmap.ReaderAt](),
	}

	// Validate root group address.
	//nolint:gosec // G115: File size is always positive, safe to convert int64 to uint64
	if sb.RootGroup >= uint64(fileSize) {
		_ = f.Close()
		return nil, errCorruptHeader(sb.RootGroup,
			fmt.Sprintf("root group address %d beyond file size %d", sb.RootGroup, fileSize),
			utils.ErrCorruptHeader)
	}

	// For all versions, sb.RootGroup now contains the correct object header address.
	// The root is the first node registered in a fresh arena, so it always
	// lands at index 0, matching arena.path's special case for "/".
	file.root, err = loadGroup(file, sb.RootGroup, -1, "/")
	if err != nil {
		_ = f.Close()
		return nil, classify(sb.RootGroup, utils.WrapError("root group load failed", err))
	}

	return file, nil
}

// checkClosed returns a Closed error if the file has already been closed.
// Every Group/Dataset/SoftLink method that touches the underlying file
// calls this first, so a stale handle obtained before Close fails with a
// classified error instead of a nil-pointer panic on f.osFile.
func (f *File) checkClosed() error {
	if f.arena.isClosed() {
		return errClosed()
	}
	return nil
}

// isHDF5File verifies HDF5 file signature.
func isHDF5File(r utils.ReaderAt) bool {
	buf := utils.GetBuffer(8)
	defer utils.ReleaseBuffer(buf)

	if _, err := r.ReadAt(buf, 0); err != nil {
		return false
	}
	return string(buf) == core.Signature
}

// Close closes the HDF5 file and releases associated resources.
// It is safe to call Close multiple times.
func (f *File) Close() error {
	// Mark every node closed in one step before touching the handles, so
	// a concurrent node operation either completes against a still-valid
	// osFile or observes Closed, never a half-torn-down one.
	f.arena.close()

	if f.osFile == nil {
		return nil // Already closed.
	}

	if f.mmapFile != nil {
		_ = f.mmapFile.Close()
		f.mmapFile = nil
	}

	err := f.osFile.Close()
	f.osFile = nil // Prevent double close.
	return err
}

// Map returns a memory-mapped, zero-copy reader over the file, opening
// the mapping on first use and reusing it on every subsequent call.
// Callers that read the same regions repeatedly (e.g. re-decoding a
// chunk) avoid a syscall per read compared to Reader's os.File.
func (f *File) Map() (io.ReaderAt, error) {
	return f.mmapOnce.Get(func() (*mmap.ReaderAt, error) {
		r, err := mmap.Open(f.filename)
		if err != nil {
			return nil, utils.WrapError("mmap open failed", err)
		}
		f.mmapFile = r
		return r, nil
	})
}

// Root returns the root group of the HDF5 file.
func (f *File) Root() *Group {
	return f.root
}

// Walk traverses the entire file structure, calling fn for each object.
// Objects are visited in depth-first order starting from the root group.
func (f *File) Walk(fn func(path string, obj Object)) {
	walkGroup(f.root, "/", fn)
}

func walkGroup(g *Group, currentPath string, fn func(string, Object)) {
	fn(currentPath, g)

	for _, child := range g.Children() {
		childPath := currentPath + child.Name()

		if childGroup, ok := child.(*Group); ok {
			walkGroup(childGroup, childPath+"/", fn)
		} else {
			fn(childPath, child)
		}
	}
}

// SuperblockVersion returns the HDF5 superblock format version (0, 2, or 3).
func (f *File) SuperblockVersion() uint8 {
	return f.sb.Version
}

// Superblock returns the file's superblock metadata structure.
func (f *File) Superblock() *core.Superblock {
	return f.sb
}

// Reader returns the underlying file reader for low-level access.
func (f *File) Reader() io.ReaderAt {
	return f.osFile
}

// readSignature reads 4 bytes at address and returns string.
func readSignature(r io.ReaderAt, address uint64) string {
	buf := make([]byte, 4)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := r.ReadAt(buf, int64(address)); err != nil {
		return ""
	}
	return string(buf)
}
