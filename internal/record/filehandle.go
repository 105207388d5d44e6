package record

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tuannm99/recordstore/internal/bufferpool"
	"github.com/tuannm99/recordstore/internal/storage"
)

// FileHandle operates on one open record file: fixed-length records laid
// out in slotted data pages, with a free-page chain threading every page
// that still has room. All page access goes through the buffer pool with
// strict pin/mutate/unpin discipline.
//
// Callers are expected to serialize mutations per file; like the buffer
// pool below it, the handle provides no row-level locking.
type FileHandle struct {
	dm   *storage.DiskManager
	pool *bufferpool.Pool
	log  *zap.Logger

	fd   int
	path string
	hdr  FileHeader

	// Derived from the header at open, cached for slot addressing.
	bitmapLen int32
	slotsOff  int32
}

func newFileHandle(dm *storage.DiskManager, pool *bufferpool.Pool, log *zap.Logger,
	fd int, path string, hdr FileHeader,
) *FileHandle {
	return &FileHandle{
		dm:        dm,
		pool:      pool,
		log:       log,
		fd:        fd,
		path:      path,
		hdr:       hdr,
		bitmapLen: bitmapLen(hdr.RecordsPerPage),
		slotsOff:  pageHeaderFixedSize + bitmapLen(hdr.RecordsPerPage),
	}
}

func (fh *FileHandle) FD() int { return fh.fd }

// Header returns a copy of the in-memory file header.
func (fh *FileHandle) Header() FileHeader { return fh.hdr }

func (fh *FileHandle) validRid(rid Rid) bool {
	return rid.PageNo >= 0 && rid.PageNo < fh.hdr.NumPages &&
		rid.SlotNo >= 0 && rid.SlotNo < fh.hdr.RecordsPerPage
}

// fetchPageHandle pins the logical data page and wraps it.
func (fh *FileHandle) fetchPageHandle(pageNo int32) (pageHandle, error) {
	ph := pageHandle{fh: fh, pageNo: pageNo}
	page, err := fh.pool.FetchPage(ph.pageID())
	if err != nil {
		return pageHandle{}, err
	}
	ph.page = page
	return ph, nil
}

func (fh *FileHandle) unpin(ph pageHandle, dirty bool) {
	fh.pool.UnpinPage(ph.pageID(), dirty)
}

// createNewPageHandle allocates a brand-new data page via the buffer
// pool, formats it empty and links it at the head of the free-page chain.
// The page comes back pinned.
func (fh *FileHandle) createNewPageHandle() (pageHandle, error) {
	id, page, err := fh.pool.NewPage(fh.fd)
	if err != nil {
		return pageHandle{}, err
	}

	logical := id.PageNo - 1
	if logical != fh.hdr.NumPages {
		// Page numbers and the header's page count must advance together.
		fh.pool.UnpinPage(id, false)
		return pageHandle{}, fmt.Errorf("%w: allocated disk page %d, header has %d data pages",
			ErrCorruptPage, id.PageNo, fh.hdr.NumPages)
	}

	ph := pageHandle{fh: fh, pageNo: logical, page: page}
	ph.initEmpty()
	ph.setNextFreePageNo(fh.hdr.FirstFreePageNo)
	fh.hdr.FirstFreePageNo = logical
	fh.hdr.NumPages++

	fh.log.Debug("allocated data page",
		zap.String("file", fh.path),
		zap.Int32("page_no", logical))
	return ph, nil
}

// freePageHandle returns a pinned page with at least one free slot: the
// first usable page on the free-page chain, or a freshly created one when
// the chain is empty. Full pages found at the chain head (left there by
// raw overwrites) are unlinked in passing.
func (fh *FileHandle) freePageHandle() (pageHandle, error) {
	// A well-formed chain visits each page at most once.
	for hops := int32(0); hops <= fh.hdr.NumPages; hops++ {
		pageNo := fh.hdr.FirstFreePageNo
		if pageNo == storage.InvalidPageNo {
			return fh.createNewPageHandle()
		}
		if pageNo < 0 || pageNo >= fh.hdr.NumPages {
			return pageHandle{}, fmt.Errorf("%w: free chain points at page %d of %d",
				ErrCorruptPage, pageNo, fh.hdr.NumPages)
		}

		ph, err := fh.fetchPageHandle(pageNo)
		if err != nil {
			return pageHandle{}, err
		}
		if ph.freeSlots() > 0 {
			return ph, nil
		}

		// Stale chain entry: the page filled up without being unlinked.
		fh.hdr.FirstFreePageNo = ph.nextFreePageNo()
		ph.setNextFreePageNo(storage.InvalidPageNo)
		fh.unpin(ph, true)
	}
	return pageHandle{}, fmt.Errorf("%w: free-page chain cycle", ErrCorruptPage)
}

// releasePageHandle links a page that just regained free space back into
// the free-page chain, at the head.
func (fh *FileHandle) releasePageHandle(ph pageHandle) {
	ph.setNextFreePageNo(fh.hdr.FirstFreePageNo)
	fh.hdr.FirstFreePageNo = ph.pageNo
}

// GetRecord returns an independent copy of the record at rid.
func (fh *FileHandle) GetRecord(rid Rid) ([]byte, error) {
	if !fh.validRid(rid) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRid, rid)
	}

	ph, err := fh.fetchPageHandle(rid.PageNo)
	if err != nil {
		return nil, err
	}
	defer fh.unpin(ph, false)

	if !ph.isOccupied(rid.SlotNo) {
		return nil, fmt.Errorf("%w: %v", ErrRecordNotFound, rid)
	}
	slot, err := ph.slot(rid.SlotNo)
	if err != nil {
		return nil, err
	}
	out := make([]byte, fh.hdr.RecordSize)
	copy(out, slot)
	return out, nil
}

// InsertRecord places data in the first free slot reachable through the
// free-page chain, growing the file when nothing has room.
func (fh *FileHandle) InsertRecord(data []byte) (Rid, error) {
	if int32(len(data)) != fh.hdr.RecordSize {
		return Rid{}, fmt.Errorf("%w: got %d, want %d", ErrBadRecordSize, len(data), fh.hdr.RecordSize)
	}

	ph, err := fh.freePageHandle()
	if err != nil {
		return Rid{}, err
	}

	slotNo := bitmapFirstZero(ph.bitmap(), fh.hdr.RecordsPerPage)
	if slotNo < 0 {
		fh.unpin(ph, false)
		return Rid{}, fmt.Errorf("%w: page %d claims %d free slots but bitmap is full",
			ErrCorruptPage, ph.pageNo, ph.freeSlots())
	}

	slot, err := ph.slot(slotNo)
	if err != nil {
		fh.unpin(ph, false)
		return Rid{}, err
	}
	copy(slot, data)
	bitmapSet(ph.bitmap(), slotNo)

	free := ph.freeSlots() - 1
	ph.setFreeSlots(free)
	if free == 0 {
		// Page is full: unlink it from the chain head.
		fh.hdr.FirstFreePageNo = ph.nextFreePageNo()
		ph.setNextFreePageNo(storage.InvalidPageNo)
	}
	fh.hdr.NumRecords++
	fh.unpin(ph, true)

	return Rid{PageNo: ph.pageNo, SlotNo: slotNo}, nil
}

// InsertRecordAt overwrites the slot at rid unconditionally (redo path).
// A previously free slot becomes occupied and the counters adjust, but a
// page that fills up this way is unlinked from the free chain lazily, by
// the next insert walk.
func (fh *FileHandle) InsertRecordAt(rid Rid, data []byte) error {
	if !fh.validRid(rid) {
		return fmt.Errorf("%w: %v", ErrInvalidRid, rid)
	}
	if int32(len(data)) != fh.hdr.RecordSize {
		return fmt.Errorf("%w: got %d, want %d", ErrBadRecordSize, len(data), fh.hdr.RecordSize)
	}

	ph, err := fh.fetchPageHandle(rid.PageNo)
	if err != nil {
		return err
	}

	slot, err := ph.slot(rid.SlotNo)
	if err != nil {
		fh.unpin(ph, false)
		return err
	}
	copy(slot, data)
	if !ph.isOccupied(rid.SlotNo) {
		bitmapSet(ph.bitmap(), rid.SlotNo)
		ph.setFreeSlots(ph.freeSlots() - 1)
		fh.hdr.NumRecords++
	}
	fh.unpin(ph, true)
	return nil
}

// DeleteRecord frees the slot at rid. A page that was completely full
// rejoins the free-page chain at the head.
func (fh *FileHandle) DeleteRecord(rid Rid) error {
	if !fh.validRid(rid) {
		return fmt.Errorf("%w: %v", ErrInvalidRid, rid)
	}

	ph, err := fh.fetchPageHandle(rid.PageNo)
	if err != nil {
		return err
	}
	if !ph.isOccupied(rid.SlotNo) {
		fh.unpin(ph, false)
		return fmt.Errorf("%w: %v", ErrRecordNotFound, rid)
	}

	bitmapClear(ph.bitmap(), rid.SlotNo)
	free := ph.freeSlots() + 1
	ph.setFreeSlots(free)
	if free == 1 {
		fh.releasePageHandle(ph)
	}
	fh.hdr.NumRecords--
	fh.unpin(ph, true)
	return nil
}

// UpdateRecord overwrites the record at rid in place. Occupancy and
// free-slot state are untouched.
func (fh *FileHandle) UpdateRecord(rid Rid, data []byte) error {
	if !fh.validRid(rid) {
		return fmt.Errorf("%w: %v", ErrInvalidRid, rid)
	}
	if int32(len(data)) != fh.hdr.RecordSize {
		return fmt.Errorf("%w: got %d, want %d", ErrBadRecordSize, len(data), fh.hdr.RecordSize)
	}

	ph, err := fh.fetchPageHandle(rid.PageNo)
	if err != nil {
		return err
	}
	if !ph.isOccupied(rid.SlotNo) {
		fh.unpin(ph, false)
		return fmt.Errorf("%w: %v", ErrRecordNotFound, rid)
	}

	slot, err := ph.slot(rid.SlotNo)
	if err != nil {
		fh.unpin(ph, false)
		return err
	}
	copy(slot, data)
	fh.unpin(ph, true)
	return nil
}
