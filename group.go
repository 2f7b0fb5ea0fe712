package hdf5

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/scigolib/hdf5/internal/core"
	"github.com/scigolib/hdf5/internal/structures"
	"github.com/scigolib/hdf5/internal/utils"
)

// HDF5 signature constants.
const (
	SignatureSNOD = "SNOD" // Symbol table node signature.
)

// Object represents any HDF5 object (Group, Dataset, SoftLink or
// ExternalLink) that can be accessed in the file structure.
type Object interface {
	Name() string
}

// chunkCacheHolder lets a Dataset's Lazy hold a possibly-nil *core.ChunkCache
// (nil when the dataset isn't chunked) without Lazy[T] itself needing to
// understand that distinction.
type chunkCacheHolder struct {
	cache *core.ChunkCache
}

// Dataset represents an HDF5 dataset containing multidimensional array data.
type Dataset struct {
	file    *File
	name    string
	address uint64 // Address of object header.
	idx     int    // Index into file.arena.

	cacheOnce *utils.Lazy[*chunkCacheHolder]
}

// Name returns the dataset's name.
func (d *Dataset) Name() string {
	return d.name
}

// Address returns the object header address (for internal/debugging use).
func (d *Dataset) Address() uint64 {
	return d.address
}

// Path returns the dataset's absolute path within its file, e.g. "/a/b".
func (d *Dataset) Path() string {
	return d.file.arena.path(d.idx)
}

// Parent returns the dataset's containing group. Every dataset has one
// (datasets can't be the root), so ok is always true for a value obtained
// through normal traversal.
func (d *Dataset) Parent() (*Group, bool) {
	obj, ok := d.file.arena.parentOf(d.idx)
	if !ok {
		return nil, false
	}
	g, ok := obj.(*Group)
	return g, ok
}

// Attributes returns all attributes attached to this dataset.
func (d *Dataset) Attributes() ([]*core.Attribute, error) {
	if err := d.file.checkClosed(); err != nil {
		return nil, err
	}
	header, err := core.ReadObjectHeader(d.file.osFile, d.address, d.file.sb)
	if err != nil {
		return nil, err
	}
	return header.Attributes, nil
}

// ListAttributes returns the names of all attributes attached to this dataset.
func (d *Dataset) ListAttributes() ([]string, error) {
	attrs, err := d.Attributes()
	if err != nil {
		return nil, err
	}

	names := make([]string, len(attrs))
	for i, attr := range attrs {
		names[i] = attr.Name
	}
	return names, nil
}

// ReadAttribute reads a single attribute by name and returns its parsed value.
func (d *Dataset) ReadAttribute(name string) (interface{}, error) {
	attr, err := d.Attribute(name)
	if err != nil {
		return nil, err
	}
	return attr.ReadValue()
}

// Attribute returns the named attribute without parsing its value.
func (d *Dataset) Attribute(name string) (*core.Attribute, error) {
	attrs, err := d.Attributes()
	if err != nil {
		return nil, err
	}

	for _, attr := range attrs {
		if attr.Name == name {
			return attr, nil
		}
	}

	return nil, errNotFound(name)
}

// Dimensions returns the dataset's shape: one entry per dimension, slowest
// varying first, matching the order HDF5 stores in its dataspace message.
func (d *Dataset) Dimensions() ([]uint64, error) {
	info, err := d.info()
	if err != nil {
		return nil, err
	}
	return info.Dataspace.Dimensions, nil
}

// Datatype returns the dataset's on-disk element type, without reading
// any element values.
func (d *Dataset) Datatype() (*core.DatatypeMessage, error) {
	info, err := d.info()
	if err != nil {
		return nil, err
	}
	return info.Datatype, nil
}

func (d *Dataset) info() (*core.DatasetInfo, error) {
	if err := d.file.checkClosed(); err != nil {
		return nil, err
	}
	header, err := core.ReadObjectHeader(d.file.osFile, d.address, d.file.sb)
	if err != nil {
		return nil, err
	}
	return core.ReadDatasetInfo(header, d.file.sb)
}

// ReadRaw returns the dataset's raw byte layout, with no type-specific
// conversion: reshaping those bytes against Dimensions()/Datatype() (as
// Read, ReadStrings and ReadCompound do) is the caller's concern.
//
// Chunked datasets read through a per-dataset chunk cache (disableable
// via WithChunkCacheDisabled) so repeated calls reuse the B-tree lookup
// and decoded chunk bytes instead of redoing that work from scratch, and
// through the file's memory-mapped reader (File.Map), opened lazily on
// first use here.
func (d *Dataset) ReadRaw() ([]byte, error) {
	if err := d.file.checkClosed(); err != nil {
		return nil, err
	}

	r, err := d.file.Map()
	if err != nil {
		return nil, err
	}

	header, err := core.ReadObjectHeader(r, d.address, d.file.sb)
	if err != nil {
		return nil, err
	}

	cache, err := d.chunkCache(r, header)
	if err != nil {
		return nil, err
	}

	raw, _, _, err := core.ReadDatasetRaw(r, header, d.file.sb, cache)
	return raw, err
}

// chunkCache builds (once, per dataset) the persistent ChunkCache backing
// ReadRaw's chunked-layout branch. For non-chunked datasets it resolves
// to a nil *core.ChunkCache, which ReadDatasetRaw never consults.
func (d *Dataset) chunkCache(r io.ReaderAt, header *core.ObjectHeader) (*core.ChunkCache, error) {
	holder, err := d.cacheOnce.Get(func() (*chunkCacheHolder, error) {
		return buildChunkCache(r, header, d.file.sb, d.file.opts)
	})
	if err != nil {
		return nil, err
	}
	return holder.cache, nil
}

func buildChunkCache(r io.ReaderAt, header *core.ObjectHeader, sb *core.Superblock, opts *openOptions) (*chunkCacheHolder, error) {
	var layoutMsg, filterMsg *core.HeaderMessage
	for _, msg := range header.Messages {
		switch msg.Type {
		case core.MsgDataLayout:
			layoutMsg = msg
		case core.MsgFilterPipeline:
			filterMsg = msg
		}
	}
	if layoutMsg == nil {
		return &chunkCacheHolder{}, nil
	}

	layout, err := core.ParseDataLayoutMessage(layoutMsg.Data, sb)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}
	if !layout.IsChunked() {
		return &chunkCacheHolder{}, nil
	}

	var filterPipeline *core.FilterPipelineMessage
	if filterMsg != nil {
		filterPipeline, err = core.ParseFilterPipelineMessage(filterMsg.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse filter pipeline: %w", err)
		}
	}

	var registry *core.FilterRegistry
	disabled := false
	if opts != nil {
		registry = opts.filterRegistry
		disabled = opts.chunkCacheDisabled
	}

	return &chunkCacheHolder{
		cache: core.NewChunkCache(r, layout, sb, filterPipeline, registry, disabled),
	}, nil
}

// Read reads the dataset values and returns them as float64 array.
// Currently supports float64, float32, int32, int64 datatypes.
// All values are converted to float64 for convenience.
func (d *Dataset) Read() ([]float64, error) {
	if err := d.file.checkClosed(); err != nil {
		return nil, err
	}
	header, err := core.ReadObjectHeader(d.file.osFile, d.address, d.file.sb)
	if err != nil {
		return nil, err
	}
	return core.ReadDatasetFloat64(d.file.osFile, header, d.file.sb)
}

// ReadStrings reads string dataset values and returns them as string array.
// Supports fixed-length strings (null-terminated, null-padded, space-padded).
// Variable-length strings are not yet supported.
func (d *Dataset) ReadStrings() ([]string, error) {
	if err := d.file.checkClosed(); err != nil {
		return nil, err
	}
	header, err := core.ReadObjectHeader(d.file.osFile, d.address, d.file.sb)
	if err != nil {
		return nil, err
	}
	return core.ReadDatasetStrings(d.file.osFile, header, d.file.sb)
}

// ReadCompound reads compound dataset values and returns them as array of maps.
// Each map represents one compound structure instance with field names as keys.
// Supports nested compound types, numeric types, and fixed-length strings.
func (d *Dataset) ReadCompound() ([]core.CompoundValue, error) {
	if err := d.file.checkClosed(); err != nil {
		return nil, err
	}
	header, err := core.ReadObjectHeader(d.file.osFile, d.address, d.file.sb)
	if err != nil {
		return nil, err
	}
	return core.ReadDatasetCompound(d.file.osFile, header, d.file.sb)
}

// Info returns metadata about the dataset without reading actual values.
func (d *Dataset) Info() (string, error) {
	info, err := d.info()
	if err != nil {
		return "", err
	}
	return info.String(), nil
}

// SoftLink is a named reference to another path within the same file. It
// keeps its own node identity in the tree (Name, Path, Parent all work on
// the link itself); Resolve follows TargetPath to find what it currently
// points at.
type SoftLink struct {
	file       *File
	name       string
	idx        int
	targetPath string

	resolveOnce *utils.Lazy[Object]
}

// Name returns the link's own name (not its target's).
func (s *SoftLink) Name() string { return s.name }

// Path returns the link's own absolute path within its file.
func (s *SoftLink) Path() string { return s.file.arena.path(s.idx) }

// Parent returns the group containing this link.
func (s *SoftLink) Parent() (*Group, bool) {
	obj, ok := s.file.arena.parentOf(s.idx)
	if !ok {
		return nil, false
	}
	g, ok := obj.(*Group)
	return g, ok
}

// TargetPath returns the path this link points to, exactly as stored in
// the file (not yet resolved against the tree).
func (s *SoftLink) TargetPath() string { return s.targetPath }

// Resolve walks TargetPath from the file's root and returns the object it
// names. A dangling target yields a NotFound error rather than a panic or
// parse failure. The resolution is cached: repeated calls reuse the first
// result instead of re-walking the tree.
func (s *SoftLink) Resolve() (Object, error) {
	if err := s.file.checkClosed(); err != nil {
		return nil, err
	}
	return s.resolveOnce.Get(func() (Object, error) {
		return resolvePath(s.file.root, s.targetPath)
	})
}

// ExternalLink is an unresolved reference to an object in a different
// HDF5 file. Opening the target file is the caller's responsibility;
// this type only surfaces the (file, path) pair the link records.
type ExternalLink struct {
	file *File // the file the link was found in, not its target.
	name string
	idx  int

	targetFile string
	targetPath string
}

// Name returns the link's own name.
func (e *ExternalLink) Name() string { return e.name }

// Path returns the link's own absolute path within its file.
func (e *ExternalLink) Path() string { return e.file.arena.path(e.idx) }

// Parent returns the group containing this link.
func (e *ExternalLink) Parent() (*Group, bool) {
	obj, ok := e.file.arena.parentOf(e.idx)
	if !ok {
		return nil, false
	}
	g, ok := obj.(*Group)
	return g, ok
}

// TargetFile returns the name of the file the link points into.
func (e *ExternalLink) TargetFile() string { return e.targetFile }

// TargetPath returns the object path within TargetFile.
func (e *ExternalLink) TargetPath() string { return e.targetPath }

// resolvePath walks an absolute (or root-relative) path from root and
// returns the object it names. Empty/"/" resolves to root itself.
func resolvePath(root *Group, path string) (Object, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return root, nil
	}

	var cur Object = root
	for _, seg := range strings.Split(trimmed, "/") {
		g, ok := cur.(*Group)
		if !ok {
			return nil, errNotFound(path)
		}
		child, err := g.Child(seg)
		if err != nil {
			return nil, errNotFound(path)
		}
		cur = child
	}
	return cur, nil
}

// Group represents an HDF5 group that can contain other groups and datasets.
type Group struct {
	file        *File
	name        string
	address     uint64 // Address of object header (0 if traditional/SNOD format)
	idx         int    // Index into file.arena.
	children    []Object
	symbolTable *structures.SymbolTable
	localHeap   *structures.LocalHeap
}

// Name returns the group's name.
func (g *Group) Name() string {
	return g.name
}

// Path returns the group's absolute path within its file. The root
// group's path is always "/".
func (g *Group) Path() string {
	return g.file.arena.path(g.idx)
}

// Parent returns the group's containing group, or ok=false for the root.
func (g *Group) Parent() (*Group, bool) {
	obj, ok := g.file.arena.parentOf(g.idx)
	if !ok {
		return nil, false
	}
	p, ok := obj.(*Group)
	return p, ok
}

// Children returns all child objects (groups, datasets and links) within
// this group.
func (g *Group) Children() []Object {
	return g.children
}

// Address returns the object header address (0 for traditional/SNOD groups
// that have no header of their own, e.g. the synthetic root of a v0 file).
func (g *Group) Address() uint64 {
	return g.address
}

// Child returns the named direct child object, or an error if no child by
// that name exists in this group.
func (g *Group) Child(name string) (Object, error) {
	if err := g.file.checkClosed(); err != nil {
		return nil, err
	}
	for _, child := range g.children {
		if child.Name() == name {
			return child, nil
		}
	}
	return nil, errNotFound(name)
}

// Attributes returns all attributes attached to this group.
// Note: For groups loaded via traditional format (SNOD), the address may be 0,
// and attributes cannot be retrieved (traditional format doesn't have attributes).
func (g *Group) Attributes() ([]*core.Attribute, error) {
	if err := g.file.checkClosed(); err != nil {
		return nil, err
	}

	// Traditional format groups (SNOD) don't support attributes.
	if g.address == 0 {
		return []*core.Attribute{}, nil
	}

	// Read object header to get attributes.
	header, err := core.ReadObjectHeader(g.file.osFile, g.address, g.file.sb)
	if err != nil {
		return nil, fmt.Errorf("failed to read object header: %w", err)
	}

	// Ensure we return an empty slice instead of nil if no attributes exist.
	if header.Attributes == nil {
		return []*core.Attribute{}, nil
	}

	return header.Attributes, nil
}

// Attribute returns the named attribute attached to this group.
func (g *Group) Attribute(name string) (*core.Attribute, error) {
	attrs, err := g.Attributes()
	if err != nil {
		return nil, err
	}

	for _, attr := range attrs {
		if attr.Name == name {
			return attr, nil
		}
	}

	return nil, errNotFound(name)
}

func loadGroup(file *File, address uint64, parentIdx int, name string) (*Group, error) {
	if address == 0 {
		return nil, errors.New("invalid group address: 0")
	}

	// Check signature to determine group format.
	sig := readSignature(file.osFile, address)

	// SNOD always means traditional format.
	if sig == SignatureSNOD {
		return loadTraditionalGroup(file, address, parentIdx, name)
	}

	// For OHDR or v1 headers (no signature), try loading as modern group.
	// ReadObjectHeader will handle both v1 and v2 formats.
	return loadModernGroup(file, address, parentIdx, name)
}

func loadModernGroup(file *File, address uint64, parentIdx int, name string) (*Group, error) {
	r := file.osFile
	sb := file.sb

	header, err := core.ReadObjectHeader(r, address, sb)
	if err != nil {
		return nil, utils.WrapError("object header read failed", err)
	}

	idx := file.arena.add(name, parentIdx)
	group := &Group{
		file:    file,
		name:    name,
		address: address, // Store address for later Attributes() access
		idx:     idx,
	}
	file.arena.bind(idx, group)

	// Load children only for groups.
	if header.Type == core.ObjectTypeGroup {
		// First, try to parse Link messages (modern format).
		hasLinkMessages := false
		for _, msg := range header.Messages {
			if msg.Type == core.MsgLinkMessage {
				hasLinkMessages = true

				// Parse the link message.
				linkMsg, err := structures.ParseLinkMessage(msg.Data, sb)
				if err != nil {
					return nil, utils.WrapError("link message parse failed", err)
				}

				switch {
				case linkMsg.IsHardLink():
					// Load the object that this link points to.
					child, err := loadObject(file, linkMsg.ObjectAddress, linkMsg.Name, idx)
					if err != nil {
						// Some links might point to objects we don't support yet;
						// skip them but keep loading the rest of the group.
						continue
					}
					group.children = append(group.children, child)

				case linkMsg.IsSoftLink():
					childIdx := file.arena.add(linkMsg.Name, idx)
					link := &SoftLink{
						file:        file,
						name:        linkMsg.Name,
						idx:         childIdx,
						targetPath:  linkMsg.TargetPath,
						resolveOnce: utils.NewLazy[Object](),
					}
					file.arena.bind(childIdx, link)
					group.children = append(group.children, link)

				case linkMsg.IsExternalLink():
					childIdx := file.arena.add(linkMsg.Name, idx)
					link := &ExternalLink{
						file:       file,
						name:       linkMsg.Name,
						idx:        childIdx,
						targetFile: linkMsg.ExternalFile,
						targetPath: linkMsg.ExternalPath,
					}
					file.arena.bind(childIdx, link)
					group.children = append(group.children, link)
				}
			}
		}

		// Fallback to symbol table if no link messages found (older format).
		if !hasLinkMessages {
			for _, msg := range header.Messages {
				if msg.Type == core.MsgSymbolTable {
					// Symbol table message data format:
					// Bytes 0-7: B-tree address.
					// Bytes 8-15: Local heap address.
					if len(msg.Data) >= 16 {
						btreeAddr := sb.Endianness.Uint64(msg.Data[0:8])
						heapAddr := sb.Endianness.Uint64(msg.Data[8:16])

						group.symbolTable = &structures.SymbolTable{
							Version:      1,
							BTreeAddress: btreeAddr,
							HeapAddress:  heapAddr,
						}
					}
				}
			}

			if group.symbolTable != nil {
				if err := group.loadChildren(); err != nil {
					return nil, utils.WrapError("load children failed", err)
				}
			}
		}
	}

	return group, nil
}

func loadTraditionalGroup(file *File, address uint64, parentIdx int, name string) (*Group, error) {
	// Parse the Symbol Table Node (SNOD).
	node, err := structures.ParseSymbolTableNode(file.osFile, address, file.sb)
	if err != nil {
		return nil, utils.WrapError("symbol table node parse failed", err)
	}

	// For traditional format, we need the local heap address.
	// The heap address should be in the root group's object header Symbol Table Message.
	// For now, we'll get it from the root group's symbol table message.
	// This is a bit of a chicken-and-egg problem for nested groups.

	// For root group, get heap from the symbol table message in object header.
	// For nested groups loaded via B-tree, we need to pass heap from parent.

	// TEMPORARY: Try to find heap address from root group's symbol table message.
	// This is a workaround - proper solution would pass heap address explicitly.
	var heap *structures.LocalHeap

	// Read root object header to get heap address.
	rootHeader, err := core.ReadObjectHeader(file.osFile, file.sb.RootGroup, file.sb)
	if err == nil {
		// Find symbol table message.
		for _, msg := range rootHeader.Messages {
			if msg.Type == core.MsgSymbolTable && len(msg.Data) >= 16 {
				heapAddr := file.sb.Endianness.Uint64(msg.Data[8:16])
				heap, err = structures.LoadLocalHeap(file.osFile, heapAddr, file.sb)
				if err != nil {
					return nil, utils.WrapError("local heap load failed", err)
				}
				break
			}
		}
	}

	if heap == nil {
		return nil, errors.New("could not find local heap for traditional group")
	}

	idx := file.arena.add(name, parentIdx)

	// Create group.
	group := &Group{
		file:      file,
		name:      name,
		idx:       idx,
		localHeap: heap,
	}
	file.arena.bind(idx, group)

	// Load children from SNOD entries.
	for _, entry := range node.Entries {
		linkName, err := heap.GetString(entry.LinkNameOffset)
		if err != nil {
			return nil, utils.WrapError("link name read failed", err)
		}

		child, err := loadObject(file, entry.ObjectAddress, linkName, idx)
		if err != nil {
			return nil, utils.WrapError("child load failed", err)
		}

		group.children = append(group.children, child)
	}

	return group, nil
}

func (g *Group) loadChildren() error {
	if g.symbolTable == nil {
		return errors.New("symbol table is nil")
	}

	heap, err := structures.LoadLocalHeap(g.file.osFile, g.symbolTable.HeapAddress, g.file.sb)
	if err != nil {
		return utils.WrapError("local heap load failed", err)
	}

	// Detect B-tree format by reading signature.
	btreeSig := readSignature(g.file.osFile, g.symbolTable.BTreeAddress)

	var entries []structures.BTreeEntry
	switch btreeSig {
	case "TREE":
		// v1 B-tree format (used in v0 files and some v1 files).
		entries, err = structures.ReadGroupBTreeEntries(g.file.osFile, g.symbolTable.BTreeAddress, g.file.sb)
	case "BTRE":
		// Modern B-tree format.
		entries, err = structures.ReadBTreeEntries(g.file.osFile, g.symbolTable.BTreeAddress, g.file.sb)
	default:
		return fmt.Errorf("unknown B-tree signature: %q at address 0x%X", btreeSig, g.symbolTable.BTreeAddress)
	}

	if err != nil {
		return utils.WrapError("B-tree read failed", err)
	}

	for _, entry := range entries {
		// Check if this is an unnamed SNOD (offset 0 AND object is SNOD) - means we should inline its children.
		// Note: offset 0 alone is NOT sufficient - it's a valid offset for the first string in the heap!
		// We must verify the object at the address is actually a SNOD, not a regular object with name at offset 0.
		sig := readSignature(g.file.osFile, entry.ObjectAddress)
		if entry.LinkNameOffset == 0 && sig == SignatureSNOD {
			// This is an unnamed SNOD container - load its children directly.
			node, err := structures.ParseSymbolTableNode(g.file.osFile, entry.ObjectAddress, g.file.sb)
			if err != nil {
				return utils.WrapError("SNOD parse failed", err)
			}

			// Add each entry from the SNOD to this group.
			for _, snodEntry := range node.Entries {
				childName, err := heap.GetString(snodEntry.LinkNameOffset)
				if err != nil {
					return utils.WrapError("SNOD child name read failed", err)
				}

				child, err := loadObject(g.file, snodEntry.ObjectAddress, childName, g.idx)
				if err != nil {
					return utils.WrapError("SNOD child load failed", err)
				}

				g.children = append(g.children, child)
			}
			continue
		}

		linkName, err := heap.GetString(entry.LinkNameOffset)
		if err != nil {
			return utils.WrapError("link name read failed", err)
		}

		child, err := loadObject(g.file, entry.ObjectAddress, linkName, g.idx)
		if err != nil {
			return utils.WrapError("child load failed", err)
		}

		g.children = append(g.children, child)
	}

	return nil
}

func loadObject(file *File, address uint64, name string, parentIdx int) (Object, error) {
	// Check signature first - SNOD means traditional group format.
	sig := readSignature(file.osFile, address)
	if sig == SignatureSNOD {
		// SNOD is a symbol table node - it might be:
		// 1. A true group with multiple children.
		// 2. A redirect node with single entry (v0 files).

		node, err := structures.ParseSymbolTableNode(file.osFile, address, file.sb)
		if err != nil {
			return nil, err
		}

		// If SNOD has single entry, it's likely a redirect - load the target directly.
		if len(node.Entries) == 1 {
			// Get heap from root to read the name.
			rootHeader, err := core.ReadObjectHeader(file.osFile, file.sb.RootGroup, file.sb)
			if err != nil {
				return nil, err
			}

			var heap *structures.LocalHeap
			for _, msg := range rootHeader.Messages {
				if msg.Type == core.MsgSymbolTable && len(msg.Data) >= 16 {
					heapAddr := file.sb.Endianness.Uint64(msg.Data[8:16])
					heap, err = structures.LoadLocalHeap(file.osFile, heapAddr, file.sb)
					if err != nil {
						return nil, err
					}
					break
				}
			}

			if heap != nil {
				entry := node.Entries[0]
				linkName, err := heap.GetString(entry.LinkNameOffset)
				if err == nil && linkName == name {
					// This is a redirect node - load the target object directly.
					return loadObject(file, entry.ObjectAddress, name, parentIdx)
				}
			}
		}

		// Otherwise, treat as a real group.
		return loadTraditionalGroup(file, address, parentIdx, name)
	}

	// Try reading object header (works for both v1 and v2).
	header, err := core.ReadObjectHeader(file.osFile, address, file.sb)
	if err != nil {
		return nil, err
	}

	switch header.Type {
	case core.ObjectTypeGroup:
		return loadGroup(file, address, parentIdx, name)
	case core.ObjectTypeDataset:
		idx := file.arena.add(name, parentIdx)
		dataset := &Dataset{
			file:      file,
			name:      name,
			address:   address, // Store address for later reading.
			idx:       idx,
			cacheOnce: utils.NewLazy[*chunkCacheHolder](),
		}
		file.arena.bind(idx, dataset)
		return dataset, nil
	default:
		return nil, fmt.Errorf("unsupported object type: %d", header.Type)
	}
}
