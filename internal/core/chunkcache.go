package core

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/scigolib/hdf5/internal/utils"
)

// ChunkCache memoizes the chunk B-tree lookup and decoded chunk bytes for
// one chunked dataset. The lookup map (ChunkKey -> ChunkEntry) is built at
// most once via utils.Lazy; decoded chunk bytes are cached in a sync.Map
// keyed by the chunk's scaled offset, and concurrent requests for the same
// chunk collapse onto a single read+filter pass via singleflight.
//
// A Dataset holds one ChunkCache per chunked layout for its lifetime, so
// repeated ReadRaw calls reuse prior B-tree parses and chunk decodes
// instead of redoing them from scratch.
type ChunkCache struct {
	r              io.ReaderAt
	layout         *DataLayoutMessage
	sb             *Superblock
	filterPipeline *FilterPipelineMessage
	registry       *FilterRegistry

	lookup  *utils.Lazy[map[string]ChunkEntry]
	decoded sync.Map // chunk key string -> []byte
	group   singleflight.Group

	disabled bool
}

// NewChunkCache returns a cache for the chunked dataset described by
// layout, reading chunk bytes from r and applying filterPipeline (with
// registry consulted first for each filter ID; registry may be nil).
// If disabled is true, decoded chunk bytes are never retained across
// calls, though the B-tree lookup itself is still built once.
func NewChunkCache(r io.ReaderAt, layout *DataLayoutMessage, sb *Superblock, filterPipeline *FilterPipelineMessage, registry *FilterRegistry, disabled bool) *ChunkCache {
	return &ChunkCache{
		r:              r,
		layout:         layout,
		sb:             sb,
		filterPipeline: filterPipeline,
		registry:       registry,
		lookup:         utils.NewLazy[map[string]ChunkEntry](),
		disabled:       disabled,
	}
}

func chunkKeyString(k ChunkKey) string {
	return fmt.Sprint(k.Scaled)
}

// Entries returns every chunk entry for the dataset, parsing the B-tree
// at most once no matter how many times Entries is called.
func (c *ChunkCache) Entries() ([]ChunkEntry, error) {
	m, err := c.lookupMap()
	if err != nil {
		return nil, err
	}

	entries := make([]ChunkEntry, 0, len(m))
	for _, e := range m {
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *ChunkCache) lookupMap() (map[string]ChunkEntry, error) {
	return c.lookup.Get(func() (map[string]ChunkEntry, error) {
		ndims := len(c.layout.ChunkSize)
		btree, err := ParseBTreeV1Node(c.r, c.layout.DataAddress, c.sb.OffsetSize, ndims, c.layout.ChunkSize)
		if err != nil {
			return nil, fmt.Errorf("failed to parse B-tree: %w", err)
		}

		chunks, err := btree.CollectAllChunks(c.r, c.sb.OffsetSize, c.layout.ChunkSize)
		if err != nil {
			return nil, fmt.Errorf("failed to collect chunks: %w", err)
		}

		m := make(map[string]ChunkEntry, len(chunks))
		for _, e := range chunks {
			m[chunkKeyString(e.Key)] = e
		}
		return m, nil
	})
}

// DecodedChunk returns the filtered bytes for entry, decoding it at most
// once: concurrent callers for the same chunk key share a single
// read+filter pass via singleflight, and (unless the cache is disabled)
// the result is reused by every later call.
func (c *ChunkCache) DecodedChunk(entry ChunkEntry) ([]byte, error) {
	key := chunkKeyString(entry.Key)

	if !c.disabled {
		if v, ok := c.decoded.Load(key); ok {
			return v.([]byte), nil
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if !c.disabled {
			if v, ok := c.decoded.Load(key); ok {
				return v, nil
			}
		}

		data, err := c.decodeChunk(entry)
		if err != nil {
			return nil, err
		}

		if !c.disabled {
			c.decoded.Store(key, data)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *ChunkCache) decodeChunk(entry ChunkEntry) ([]byte, error) {
	if err := utils.ValidateBufferSize(uint64(entry.Key.Nbytes), utils.MaxChunkSize, "chunk data"); err != nil {
		return nil, fmt.Errorf("invalid chunk size at 0x%x: %w", entry.Address, err)
	}

	chunkData := make([]byte, entry.Key.Nbytes)
	//nolint:gosec // G115: HDF5 addresses fit in int64 for io.ReaderAt interface
	if _, err := c.r.ReadAt(chunkData, int64(entry.Address)); err != nil {
		return nil, fmt.Errorf("failed to read chunk at 0x%x: %w", entry.Address, err)
	}

	if c.filterPipeline == nil {
		return chunkData, nil
	}

	decoded, err := c.filterPipeline.ApplyFiltersMaskedWithRegistry(chunkData, entry.Key.FilterMask, c.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to apply filters to chunk at 0x%x: %w", entry.Address, err)
	}
	return decoded, nil
}

// DecodedCount reports how many distinct chunks currently have cached
// decoded bytes. Exposed for tests asserting on cache population.
func (c *ChunkCache) DecodedCount() int {
	n := 0
	c.decoded.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
