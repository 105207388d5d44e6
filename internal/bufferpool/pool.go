package bufferpool

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tuannm99/recordstore/internal/storage"
)

var (
	DefaultCapacity = 128

	// ErrPoolExhausted: no free frame and nothing evictable (all pinned).
	ErrPoolExhausted = errors.New("bufferpool: no free or evictable frame available")

	// ErrPagePinned: an in-use page blocks a whole-file release.
	ErrPagePinned = errors.New("bufferpool: page is pinned")
)

// Replacer picks eviction victims among unpinned frames. The pool only
// ever registers frames whose pin count dropped to zero, so a victim is
// unpinned by construction.
type Replacer interface {
	Pin(frameID int)
	Unpin(frameID int)
	Victim() (frameID int, ok bool)
	Size() int
}

// frame is one fixed slot of the pool: a page buffer plus cache metadata.
// Buffers are allocated once at pool construction and rebound to
// different page ids over their lifetime.
type frame struct {
	id    storage.PageID
	page  *storage.Page
	pin   int32
	dirty bool
	inUse bool
}

// Pool mediates all page access: it owns the frame array, the free list,
// the page table and the replacer. Every public operation takes the one
// pool-wide mutex; disk I/O for load/flush happens under it as well,
// trading throughput for a simple consistency story.
type Pool struct {
	dm  *storage.DiskManager
	log *zap.Logger

	mu         sync.Mutex
	frames     []frame
	freeList   []int
	pageTable  map[storage.PageID]int
	replacer   Replacer
	nextPageNo map[int]int32 // per-fd page allocation counter
}

func NewPool(dm *storage.DiskManager, capacity int, log *zap.Logger) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pool{
		dm:         dm,
		log:        log,
		frames:     make([]frame, capacity),
		freeList:   make([]int, 0, capacity),
		pageTable:  make(map[storage.PageID]int, capacity),
		replacer:   newLRUAdapter(capacity),
		nextPageNo: make(map[int]int32),
	}
	for i := range p.frames {
		p.frames[i].page = storage.NewPage()
		p.freeList = append(p.freeList, i)
	}
	return p
}

func (p *Pool) Capacity() int { return len(p.frames) }

// allocFrame returns a usable frame index: free list first, then a
// replacer victim. A victim still holding a dirty page is flushed before
// reuse and its page-table entry removed. Caller holds p.mu.
func (p *Pool) allocFrame() (int, error) {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[0]
		p.freeList = p.freeList[1:]
		return idx, nil
	}

	idx, ok := p.replacer.Victim()
	if !ok {
		return -1, ErrPoolExhausted
	}

	f := &p.frames[idx]
	if f.inUse {
		if f.dirty {
			if err := p.dm.WritePage(f.id.FD, f.id.PageNo, f.page.Bytes()); err != nil {
				// Flush failed: the victim keeps its contents and stays
				// evictable; the caller sees the I/O error.
				p.replacer.Unpin(idx)
				return -1, fmt.Errorf("flush victim page %v: %w", f.id, err)
			}
			f.dirty = false
		}
		p.log.Debug("evicted page",
			zap.Int("fd", f.id.FD),
			zap.Int32("page_no", f.id.PageNo),
			zap.Int("frame", idx))
		delete(p.pageTable, f.id)
		f.inUse = false
	}
	return idx, nil
}

// FetchPage returns the page pinned. A resident page just gains a pin; a
// non-resident one is loaded into a free or victim frame. Fails with
// ErrPoolExhausted when every frame is pinned.
func (p *Pool) FetchPage(id storage.PageID) (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[id]; ok {
		f := &p.frames[idx]
		f.pin++
		p.replacer.Pin(idx)
		return f.page, nil
	}

	idx, err := p.allocFrame()
	if err != nil {
		return nil, err
	}

	f := &p.frames[idx]
	if err := p.dm.ReadPage(id.FD, id.PageNo, f.page.Bytes()); err != nil {
		// Frame was already vacated; hand it back to the free list.
		p.freeList = append(p.freeList, idx)
		return nil, fmt.Errorf("load page %v: %w", id, err)
	}

	f.id = id
	f.pin = 1
	f.dirty = false
	f.inUse = true
	p.pageTable[id] = idx

	return f.page, nil
}

// NewPage allocates a fresh page number for fd and binds a zeroed frame to
// it, pinned. No disk read happens; the page only reaches disk once a
// caller unpins it dirty (or flushes it).
func (p *Pool) NewPage(fd int) (storage.PageID, *storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, err := p.allocFrame()
	if err != nil {
		return storage.PageID{}, nil, err
	}

	next, ok := p.nextPageNo[fd]
	if !ok {
		// First allocation for this fd in this pool: continue after the
		// pages already on disk. Exact because closing a file flushes it.
		next, err = p.dm.NumPages(fd)
		if err != nil {
			p.freeList = append(p.freeList, idx)
			return storage.PageID{}, nil, fmt.Errorf("seed page counter: %w", err)
		}
	}
	p.nextPageNo[fd] = next + 1

	id := storage.PageID{FD: fd, PageNo: next}
	f := &p.frames[idx]
	f.page.Reset()
	f.id = id
	f.pin = 1
	f.dirty = false
	f.inUse = true
	p.pageTable[id] = idx

	return id, f.page, nil
}

// UnpinPage drops one pin and ORs dirty into the frame's dirty flag.
// Returns false when the page is not resident. When the pin count reaches
// zero the frame becomes evictable.
func (p *Pool) UnpinPage(id storage.PageID, dirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return false
	}

	f := &p.frames[idx]
	if dirty {
		f.dirty = true
	}
	if f.pin > 0 {
		f.pin--
		if f.pin == 0 {
			p.replacer.Unpin(idx)
		}
	}
	return true
}

// FlushPage writes the page to disk unconditionally (dirty or not) and
// clears the dirty flag. Returns false when the page is not resident.
func (p *Pool) FlushPage(id storage.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(id)
}

func (p *Pool) flushLocked(id storage.PageID) bool {
	idx, ok := p.pageTable[id]
	if !ok {
		return false
	}
	f := &p.frames[idx]
	if err := p.dm.WritePage(id.FD, id.PageNo, f.page.Bytes()); err != nil {
		p.log.Error("flush page failed",
			zap.Int("fd", id.FD),
			zap.Int32("page_no", id.PageNo),
			zap.Error(err))
		return false
	}
	f.dirty = false
	return true
}

// DeletePage drops a page from the pool without writing it back: the
// caller is discarding its contents. A non-resident page deletes
// trivially; a pinned page cannot be deleted.
func (p *Pool) DeletePage(id storage.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return true
	}

	f := &p.frames[idx]
	if f.pin > 0 {
		return false
	}

	// Pin count is zero, so the frame is registered with the replacer;
	// take it back before recycling.
	p.replacer.Pin(idx)
	delete(p.pageTable, id)
	f.page.Reset()
	f.dirty = false
	f.inUse = false
	p.freeList = append(p.freeList, idx)
	return true
}

// ReleaseFilePages writes back every dirty resident page of fd and drops
// all of fd's pages from the pool, returning their frames to the free
// list. Used when a file is closed: its descriptor must not linger in
// frames that could be evicted later. Fails without changing anything if
// any page of fd is still pinned.
func (p *Pool) ReleaseFilePages(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, idx := range p.pageTable {
		if id.FD == fd && p.frames[idx].pin > 0 {
			return fmt.Errorf("%w: %v", ErrPagePinned, id)
		}
	}

	for id, idx := range p.pageTable {
		if id.FD != fd {
			continue
		}
		f := &p.frames[idx]
		if f.dirty {
			if err := p.dm.WritePage(id.FD, id.PageNo, f.page.Bytes()); err != nil {
				return fmt.Errorf("flush page %v: %w", id, err)
			}
		}
		p.replacer.Pin(idx)
		delete(p.pageTable, id)
		f.page.Reset()
		f.dirty = false
		f.inUse = false
		p.freeList = append(p.freeList, idx)
	}
	delete(p.nextPageNo, fd)
	return nil
}

// FlushAllPages flushes every resident page belonging to fd.
func (p *Pool) FlushAllPages(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, idx := range p.pageTable {
		if id.FD != fd {
			continue
		}
		f := &p.frames[idx]
		if err := p.dm.WritePage(id.FD, id.PageNo, f.page.Bytes()); err != nil {
			return fmt.Errorf("flush page %v: %w", id, err)
		}
		f.dirty = false
	}
	return nil
}
