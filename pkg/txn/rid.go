package txn

import "fmt"

// RID identifies a tuple by the page it lives on and its slot within that
// page's slot array.
type RID struct {
	PageID int32
	Slot   int32
}

func (r RID) String() string {
	return fmt.Sprintf("%d:%d", r.PageID, r.Slot)
}
