package record

import "fmt"

// Rid identifies one record slot within a record file: logical data-page
// number plus slot number. It stays stable for the record's lifetime and
// is only reused after a delete once a new record lands in the freed slot.
type Rid struct {
	PageNo int32
	SlotNo int32
}

// ridEnd is the scan cursor's terminal position.
var ridEnd = Rid{PageNo: -1, SlotNo: -1}

func (r Rid) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageNo, r.SlotNo)
}
