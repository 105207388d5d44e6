package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/recordstore/internal/storage"
)

// newTestPool creates a DiskManager with one open file and a pool of the
// given capacity.
func newTestPool(t *testing.T, capacity int) (*Pool, *storage.DiskManager, int) {
	t.Helper()

	dm := storage.NewDiskManager()
	path := filepath.Join(t.TempDir(), "pool.dat")
	require.NoError(t, dm.CreateFile(path))

	fd, err := dm.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.CloseFile(fd) })

	return NewPool(dm, capacity, nil), dm, fd
}

func TestPool_FetchPage_LoadsAndPins(t *testing.T) {
	pool, _, fd := newTestPool(t, 4)

	id := storage.PageID{FD: fd, PageNo: 0}
	page1, err := pool.FetchPage(id)
	require.NoError(t, err)
	require.NotNil(t, page1)

	idx, ok := pool.pageTable[id]
	require.True(t, ok)
	require.Equal(t, int32(1), pool.frames[idx].pin)
	require.False(t, pool.frames[idx].dirty)

	// Second fetch of the same page returns the same frame and stacks a pin.
	page2, err := pool.FetchPage(id)
	require.NoError(t, err)
	require.Same(t, page1, page2)
	require.Equal(t, int32(2), pool.frames[idx].pin)

	// Both pins must be released before the frame becomes evictable.
	require.True(t, pool.UnpinPage(id, false))
	require.Equal(t, 0, pool.replacer.Size())
	require.True(t, pool.UnpinPage(id, false))
	require.Equal(t, 1, pool.replacer.Size())
}

func TestPool_CapacityBoundary(t *testing.T) {
	const k = 3
	pool, _, fd := newTestPool(t, k)

	// K distinct pinned pages fill the pool.
	for i := int32(0); i < k; i++ {
		_, err := pool.FetchPage(storage.PageID{FD: fd, PageNo: i})
		require.NoError(t, err)
	}

	// The (K+1)-th fetch of a new page fails while all K are pinned.
	_, err := pool.FetchPage(storage.PageID{FD: fd, PageNo: k})
	require.ErrorIs(t, err, ErrPoolExhausted)

	// Releasing one pin makes room again.
	require.True(t, pool.UnpinPage(storage.PageID{FD: fd, PageNo: 0}, false))
	_, err = pool.FetchPage(storage.PageID{FD: fd, PageNo: k})
	require.NoError(t, err)
}

func TestPool_LRUEvictionOrder(t *testing.T) {
	pool, _, fd := newTestPool(t, 3)

	ids := []storage.PageID{
		{FD: fd, PageNo: 0},
		{FD: fd, PageNo: 1},
		{FD: fd, PageNo: 2},
	}
	for _, id := range ids {
		_, err := pool.FetchPage(id)
		require.NoError(t, err)
	}
	// Unpin in order 0, 1, 2 -> page 0 is the LRU victim.
	for _, id := range ids {
		require.True(t, pool.UnpinPage(id, false))
	}

	_, err := pool.FetchPage(storage.PageID{FD: fd, PageNo: 3})
	require.NoError(t, err)

	// Page 0 was evicted, pages 1 and 2 are still resident.
	_, resident := pool.pageTable[ids[0]]
	require.False(t, resident)
	_, resident = pool.pageTable[ids[1]]
	require.True(t, resident)
	_, resident = pool.pageTable[ids[2]]
	require.True(t, resident)
}

func TestPool_DirtyWriteBackOnEviction(t *testing.T) {
	pool, dm, fd := newTestPool(t, 1)

	id0 := storage.PageID{FD: fd, PageNo: 0}
	page, err := pool.FetchPage(id0)
	require.NoError(t, err)

	page.Bytes()[0] = 42
	require.True(t, pool.UnpinPage(id0, true))

	// Fetching another page forces eviction of the dirty page 0.
	_, err = pool.FetchPage(storage.PageID{FD: fd, PageNo: 1})
	require.NoError(t, err)

	buf := make([]byte, storage.PageSize)
	require.NoError(t, dm.ReadPage(fd, 0, buf))
	require.Equal(t, byte(42), buf[0])
}

func TestPool_UnpinAbsentPage_Fails(t *testing.T) {
	pool, _, fd := newTestPool(t, 2)

	require.False(t, pool.UnpinPage(storage.PageID{FD: fd, PageNo: 9}, true))
	require.Equal(t, 0, pool.replacer.Size())
	require.Empty(t, pool.pageTable)
}

func TestPool_UnpinFloorsAtZero(t *testing.T) {
	pool, _, fd := newTestPool(t, 2)

	id := storage.PageID{FD: fd, PageNo: 0}
	_, err := pool.FetchPage(id)
	require.NoError(t, err)

	require.True(t, pool.UnpinPage(id, false))
	// Extra unpin reports success (page resident) but must not corrupt
	// the pin count or re-register the frame.
	require.True(t, pool.UnpinPage(id, false))

	idx := pool.pageTable[id]
	require.Equal(t, int32(0), pool.frames[idx].pin)
	require.Equal(t, 1, pool.replacer.Size())
}

func TestPool_FlushPage(t *testing.T) {
	pool, dm, fd := newTestPool(t, 2)

	id := storage.PageID{FD: fd, PageNo: 0}
	page, err := pool.FetchPage(id)
	require.NoError(t, err)
	page.Bytes()[7] = 7
	require.True(t, pool.UnpinPage(id, true))

	require.True(t, pool.FlushPage(id))

	idx := pool.pageTable[id]
	require.False(t, pool.frames[idx].dirty)

	buf := make([]byte, storage.PageSize)
	require.NoError(t, dm.ReadPage(fd, 0, buf))
	require.Equal(t, byte(7), buf[7])

	// Flushing a page that is not resident fails.
	require.False(t, pool.FlushPage(storage.PageID{FD: fd, PageNo: 42}))
}

func TestPool_NewPage_MonotonicNumbers(t *testing.T) {
	pool, _, fd := newTestPool(t, 4)

	id0, p0, err := pool.NewPage(fd)
	require.NoError(t, err)
	require.NotNil(t, p0)
	require.Equal(t, int32(0), id0.PageNo)

	id1, _, err := pool.NewPage(fd)
	require.NoError(t, err)
	require.Equal(t, int32(1), id1.PageNo)

	// New pages come back zeroed and pinned.
	idx := pool.pageTable[id0]
	require.Equal(t, int32(1), pool.frames[idx].pin)
	for _, b := range p0.Bytes() {
		require.Zero(t, b)
	}
}

func TestPool_NewPage_SeedsCounterFromDisk(t *testing.T) {
	pool, dm, fd := newTestPool(t, 4)

	// Two pages already on disk -> the first allocation is page 2.
	buf := make([]byte, storage.PageSize)
	require.NoError(t, dm.WritePage(fd, 0, buf))
	require.NoError(t, dm.WritePage(fd, 1, buf))

	id, _, err := pool.NewPage(fd)
	require.NoError(t, err)
	require.Equal(t, int32(2), id.PageNo)
}

func TestPool_DeletePage(t *testing.T) {
	pool, _, fd := newTestPool(t, 2)

	id := storage.PageID{FD: fd, PageNo: 0}
	_, err := pool.FetchPage(id)
	require.NoError(t, err)

	// Pinned pages cannot be deleted.
	require.False(t, pool.DeletePage(id))
	_, resident := pool.pageTable[id]
	require.True(t, resident)

	require.True(t, pool.UnpinPage(id, false))
	require.True(t, pool.DeletePage(id))
	_, resident = pool.pageTable[id]
	require.False(t, resident)
	require.Equal(t, 0, pool.replacer.Size())

	// Deleting a page that was never cached succeeds trivially.
	require.True(t, pool.DeletePage(storage.PageID{FD: fd, PageNo: 77}))
}

func TestPool_FlushAllPages_PerFD(t *testing.T) {
	dm := storage.NewDiskManager()
	dir := t.TempDir()

	pathA := filepath.Join(dir, "a.dat")
	pathB := filepath.Join(dir, "b.dat")
	require.NoError(t, dm.CreateFile(pathA))
	require.NoError(t, dm.CreateFile(pathB))

	fdA, err := dm.OpenFile(pathA)
	require.NoError(t, err)
	fdB, err := dm.OpenFile(pathB)
	require.NoError(t, err)

	pool := NewPool(dm, 4, nil)

	idA := storage.PageID{FD: fdA, PageNo: 0}
	idB := storage.PageID{FD: fdB, PageNo: 0}

	pa, err := pool.FetchPage(idA)
	require.NoError(t, err)
	pb, err := pool.FetchPage(idB)
	require.NoError(t, err)

	pa.Bytes()[0] = 0xAA
	pb.Bytes()[0] = 0xBB
	require.True(t, pool.UnpinPage(idA, true))
	require.True(t, pool.UnpinPage(idB, true))

	// Only fdA is flushed.
	require.NoError(t, pool.FlushAllPages(fdA))

	bufA := make([]byte, storage.PageSize)
	require.NoError(t, dm.ReadPage(fdA, 0, bufA))
	require.Equal(t, byte(0xAA), bufA[0])

	bufB := make([]byte, storage.PageSize)
	require.NoError(t, dm.ReadPage(fdB, 0, bufB))
	require.Zero(t, bufB[0])

	require.False(t, pool.frames[pool.pageTable[idA]].dirty)
	require.True(t, pool.frames[pool.pageTable[idB]].dirty)
}

func TestPool_FetchAfterEviction_SeesFlushedBytes(t *testing.T) {
	pool, _, fd := newTestPool(t, 1)

	id0 := storage.PageID{FD: fd, PageNo: 0}
	page, err := pool.FetchPage(id0)
	require.NoError(t, err)
	copy(page.Bytes(), []byte("hello"))
	require.True(t, pool.UnpinPage(id0, true))

	// Cycle the only frame through another page, then bring page 0 back.
	id1 := storage.PageID{FD: fd, PageNo: 1}
	_, err = pool.FetchPage(id1)
	require.NoError(t, err)
	require.True(t, pool.UnpinPage(id1, false))

	page, err = pool.FetchPage(id0)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), page.Bytes()[:5])
}
