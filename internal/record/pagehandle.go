package record

import (
	"encoding/binary"

	"github.com/tuannm99/recordstore/internal/storage"
)

// pageHandle is a pinned view of one data page: typed access to the page
// header, the occupancy bitmap and the record slots. The holder must
// unpin exactly once on every return path.
type pageHandle struct {
	fh     *FileHandle
	pageNo int32 // logical data-page number
	page   *storage.Page
}

// pageID maps the logical data page to its disk page: the file header
// occupies disk page 0, so data pages are shifted by one.
func (ph pageHandle) pageID() storage.PageID {
	return storage.PageID{FD: ph.fh.fd, PageNo: ph.pageNo + 1}
}

func (ph pageHandle) nextFreePageNo() int32 {
	return int32(binary.LittleEndian.Uint32(ph.page.Bytes()[offNextFreePageNo:]))
}

func (ph pageHandle) setNextFreePageNo(v int32) {
	binary.LittleEndian.PutUint32(ph.page.Bytes()[offNextFreePageNo:], uint32(v))
}

func (ph pageHandle) freeSlots() int32 {
	return int32(binary.LittleEndian.Uint32(ph.page.Bytes()[offFreeSlots:]))
}

func (ph pageHandle) setFreeSlots(v int32) {
	binary.LittleEndian.PutUint32(ph.page.Bytes()[offFreeSlots:], uint32(v))
}

func (ph pageHandle) bitmap() []byte {
	return ph.page.Bytes()[offBitmap : offBitmap+ph.fh.bitmapLen]
}

// slot returns the checked sub-slice holding one record.
func (ph pageHandle) slot(slotNo int32) ([]byte, error) {
	off := ph.fh.slotsOff + slotNo*ph.fh.hdr.RecordSize
	return ph.page.Slice(int(off), int(ph.fh.hdr.RecordSize))
}

func (ph pageHandle) isOccupied(slotNo int32) bool {
	return bitmapTest(ph.bitmap(), slotNo)
}

// initEmpty formats a freshly allocated page: every slot free, not linked
// into the free-page chain yet.
func (ph pageHandle) initEmpty() {
	ph.page.Reset()
	ph.setNextFreePageNo(storage.InvalidPageNo)
	ph.setFreeSlots(ph.fh.hdr.RecordsPerPage)
}
