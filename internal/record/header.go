package record

import (
	"encoding/binary"
	"errors"

	"github.com/tuannm99/recordstore/internal/storage"
)

// On-disk layouts. The file header lives in disk page 0 of a record file;
// data pages follow, so logical data page n maps to disk page n+1. Each
// data page starts with a fixed header, then an occupancy bitmap, then the
// slots. All integers are little endian.

const (
	// File header: record_size, records_per_page, num_pages,
	// first_free_page_no, num_records (5 * int32).
	fileHeaderSize = 20

	// Data page header: next_free_page_no, free_slots (2 * int32). The
	// bitmap starts right after.
	pageHeaderFixedSize = 8

	offRecordSize      = 0
	offRecordsPerPage  = 4
	offNumPages        = 8
	offFirstFreePageNo = 12
	offNumRecords      = 16

	offNextFreePageNo = 0
	offFreeSlots      = 4
	offBitmap         = 8
)

// MaxRecordSize leaves room for the page header and one bitmap byte.
const MaxRecordSize = storage.PageSize - pageHeaderFixedSize - 1

var (
	ErrInvalidRid     = errors.New("record: rid out of range")
	ErrRecordNotFound = errors.New("record: no record at rid")
	ErrBadRecordSize  = errors.New("record: data length != file record size")
	ErrCorruptHeader  = errors.New("record: corrupt file header")
	ErrCorruptPage    = errors.New("record: corrupt page state")
)

// FileHeader is the per-file metadata, kept in memory while the file is
// open and written back to disk page 0 on close.
type FileHeader struct {
	RecordSize      int32
	RecordsPerPage  int32
	NumPages        int32 // data pages; only ever grows
	FirstFreePageNo int32 // head of the free-page chain, InvalidPageNo when empty
	NumRecords      int32
}

func (h *FileHeader) marshal(dst []byte) {
	_ = dst[fileHeaderSize-1]
	binary.LittleEndian.PutUint32(dst[offRecordSize:], uint32(h.RecordSize))
	binary.LittleEndian.PutUint32(dst[offRecordsPerPage:], uint32(h.RecordsPerPage))
	binary.LittleEndian.PutUint32(dst[offNumPages:], uint32(h.NumPages))
	binary.LittleEndian.PutUint32(dst[offFirstFreePageNo:], uint32(h.FirstFreePageNo))
	binary.LittleEndian.PutUint32(dst[offNumRecords:], uint32(h.NumRecords))
}

func (h *FileHeader) unmarshal(src []byte) error {
	if len(src) < fileHeaderSize {
		return ErrCorruptHeader
	}
	h.RecordSize = int32(binary.LittleEndian.Uint32(src[offRecordSize:]))
	h.RecordsPerPage = int32(binary.LittleEndian.Uint32(src[offRecordsPerPage:]))
	h.NumPages = int32(binary.LittleEndian.Uint32(src[offNumPages:]))
	h.FirstFreePageNo = int32(binary.LittleEndian.Uint32(src[offFirstFreePageNo:]))
	h.NumRecords = int32(binary.LittleEndian.Uint32(src[offNumRecords:]))

	// Continuing with a bad header would silently corrupt data, so this
	// is the one place that escalates instead of returning "not found".
	if h.RecordSize <= 0 || h.RecordSize > MaxRecordSize ||
		h.RecordsPerPage != recordsPerPage(h.RecordSize) ||
		h.NumPages < 0 || h.NumRecords < 0 ||
		(h.FirstFreePageNo != storage.InvalidPageNo && h.FirstFreePageNo >= h.NumPages) {
		return ErrCorruptHeader
	}
	return nil
}

// recordsPerPage is the largest n such that the fixed page header, an
// n-bit occupancy bitmap and n slots all fit in one page.
func recordsPerPage(recordSize int32) int32 {
	if recordSize <= 0 || recordSize > MaxRecordSize {
		return 0
	}
	n := (storage.PageSize - pageHeaderFixedSize) * 8 / (recordSize*8 + 1)
	for n > 0 && pageHeaderFixedSize+bitmapLen(n)+n*recordSize > storage.PageSize {
		n--
	}
	return n
}

func bitmapLen(n int32) int32 { return (n + 7) / 8 }

// ---- bitmap helpers ----

func bitmapTest(bm []byte, i int32) bool {
	return bm[i/8]&(1<<(uint(i)%8)) != 0
}

func bitmapSet(bm []byte, i int32) {
	bm[i/8] |= 1 << (uint(i) % 8)
}

func bitmapClear(bm []byte, i int32) {
	bm[i/8] &^= 1 << (uint(i) % 8)
}

// bitmapFirstZero returns the lowest clear bit in [0, n), or -1.
func bitmapFirstZero(bm []byte, n int32) int32 {
	for i := int32(0); i < n; i++ {
		if bm[i/8] == 0xFF {
			i += 7 - i%8 // skip the rest of a full byte
			continue
		}
		if !bitmapTest(bm, i) {
			return i
		}
	}
	return -1
}
