// Package table implements the minimal slotted table page the write-ahead
// log replays against: tuple storage layered directly on buffer-pool
// frames, with no query processing above it.
package table

import "dinocore/pkg/txn"

// Tuple is an opaque, length-prefixed byte payload plus the rid it was read
// from (zero value RID if the tuple was never persisted).
type Tuple struct {
	RID  txn.RID
	Data []byte
}

// Size returns the number of bytes the tuple's data occupies on a page.
func (t Tuple) Size() int32 {
	return int32(len(t.Data))
}

// Clone returns a Tuple with an independent copy of Data, so callers may
// safely retain it past the lifetime of the buffer it was read from.
func (t Tuple) Clone() Tuple {
	data := make([]byte, len(t.Data))
	copy(data, t.Data)
	return Tuple{RID: t.RID, Data: data}
}
