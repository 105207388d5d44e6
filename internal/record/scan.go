package record

// Scan is a forward-only cursor over a record file, yielding the Rids of
// occupied slots in page-then-slot order. It pins one page at a time and
// unpins it before moving on.
type Scan struct {
	fh  *FileHandle
	rid Rid
}

// NewScan positions the cursor on the file's first occupied slot, or at
// the end for an empty file.
func NewScan(fh *FileHandle) (*Scan, error) {
	s := &Scan{fh: fh}
	if err := s.seek(Rid{PageNo: 0, SlotNo: 0}); err != nil {
		return nil, err
	}
	return s, nil
}

// Next advances to the next occupied slot. Calling Next at the end is a
// no-op.
func (s *Scan) Next() error {
	if s.IsEnd() {
		return nil
	}
	return s.seek(Rid{PageNo: s.rid.PageNo, SlotNo: s.rid.SlotNo + 1})
}

// seek moves the cursor to the first occupied slot at or after from,
// marking the cursor terminal when none remains.
func (s *Scan) seek(from Rid) error {
	hdr := s.fh.Header()

	for pageNo := from.PageNo; pageNo < hdr.NumPages; pageNo++ {
		ph, err := s.fh.fetchPageHandle(pageNo)
		if err != nil {
			s.rid = ridEnd
			return err
		}

		start := int32(0)
		if pageNo == from.PageNo {
			start = from.SlotNo
		}
		bm := ph.bitmap()
		for slotNo := start; slotNo < hdr.RecordsPerPage; slotNo++ {
			if bitmapTest(bm, slotNo) {
				s.fh.unpin(ph, false)
				s.rid = Rid{PageNo: pageNo, SlotNo: slotNo}
				return nil
			}
		}
		s.fh.unpin(ph, false)
	}

	s.rid = ridEnd
	return nil
}

// IsEnd reports whether the cursor ran off the end of the file.
func (s *Scan) IsEnd() bool {
	return s.rid == ridEnd
}

// Rid returns the cursor's current position without advancing.
func (s *Scan) Rid() Rid {
	return s.rid
}
