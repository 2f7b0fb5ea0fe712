package core

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// countingReaderAt counts how many times ReadAt is called, regardless of
// offset, so tests can assert on decode counts without a real HDF5 file.
type countingReaderAt struct {
	data  []byte
	calls int32
}

func (r *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	atomic.AddInt32(&r.calls, 1)
	n := copy(p, r.data)
	return n, nil
}

func testEntry(scaled []uint64, nbytes uint32) ChunkEntry {
	return ChunkEntry{
		Key:     ChunkKey{Scaled: scaled, Nbytes: nbytes},
		Address: 0,
	}
}

func TestChunkCache_DecodedChunkCachesAcrossCalls(t *testing.T) {
	r := &countingReaderAt{data: make([]byte, 16)}
	cache := NewChunkCache(r, &DataLayoutMessage{}, &Superblock{}, nil, nil, false)

	entry := testEntry([]uint64{0, 0}, 16)

	_, err := cache.DecodedChunk(entry)
	require.NoError(t, err)
	_, err = cache.DecodedChunk(entry)
	require.NoError(t, err)
	_, err = cache.DecodedChunk(entry)
	require.NoError(t, err)

	require.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
	require.Equal(t, 1, cache.DecodedCount())
}

func TestChunkCache_DisabledCacheReDecodesEveryCall(t *testing.T) {
	r := &countingReaderAt{data: make([]byte, 16)}
	cache := NewChunkCache(r, &DataLayoutMessage{}, &Superblock{}, nil, nil, true)

	entry := testEntry([]uint64{0, 0}, 16)

	_, err := cache.DecodedChunk(entry)
	require.NoError(t, err)
	_, err = cache.DecodedChunk(entry)
	require.NoError(t, err)

	require.Equal(t, int32(2), atomic.LoadInt32(&r.calls))
}

func TestChunkCache_ConcurrentCallsDecodeAtMostOnce(t *testing.T) {
	r := &countingReaderAt{data: make([]byte, 16)}
	cache := NewChunkCache(r, &DataLayoutMessage{}, &Superblock{}, nil, nil, false)

	entry := testEntry([]uint64{1, 2}, 16)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.DecodedChunk(entry)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
}

func TestChunkCache_DistinctChunksDecodeIndependently(t *testing.T) {
	r := &countingReaderAt{data: make([]byte, 16)}
	cache := NewChunkCache(r, &DataLayoutMessage{}, &Superblock{}, nil, nil, false)

	_, err := cache.DecodedChunk(testEntry([]uint64{0, 0}, 16))
	require.NoError(t, err)
	_, err = cache.DecodedChunk(testEntry([]uint64{0, 1}, 16))
	require.NoError(t, err)
	_, err = cache.DecodedChunk(testEntry([]uint64{1, 0}, 16))
	require.NoError(t, err)

	require.Equal(t, int32(3), atomic.LoadInt32(&r.calls))
	require.Equal(t, 3, cache.DecodedCount())
}

func TestChunkCache_FilterRegistryOverridesBuiltinDispatch(t *testing.T) {
	r := &countingReaderAt{data: []byte{1, 2, 3, 4}}

	registry := NewFilterRegistry()
	var registryCalls int32
	registry.Register(FilterDeflate, func(filter Filter, data []byte) ([]byte, error) {
		atomic.AddInt32(&registryCalls, 1)
		return data, nil
	})

	pipeline := &FilterPipelineMessage{Filters: []Filter{{ID: FilterDeflate}}}
	cache := NewChunkCache(r, &DataLayoutMessage{}, &Superblock{}, pipeline, registry, false)

	_, err := cache.DecodedChunk(testEntry([]uint64{0}, 4))
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&registryCalls))
}
