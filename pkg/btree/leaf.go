package btree

import (
	"encoding/binary"
	"sort"

	"dinocore/pkg/txn"
)

// Entry is one key/value pair stored in a leaf: a bigint key and the RID of
// the tuple it indexes.
type Entry struct {
	Key int64
	RID txn.RID
}

// leafPage is a thin view over a page's raw bytes, giving accessor methods
// for the packed entry array. It carries no lifetime of its own; the caller
// owns pinning and latching the underlying frame.
type leafPage struct {
	Data []byte
}

func initLeaf(data []byte) leafPage {
	for i := range data {
		data[i] = 0
	}
	data[offNodeType] = byte(leafNodeType)
	p := leafPage{Data: data}
	p.setNext(InvalidPageID)
	return p
}

func (p leafPage) numKeys() int      { return readNumKeys(p.Data) }
func (p leafPage) setNumKeys(n int)  { writeNumKeys(p.Data, n) }
func (p leafPage) isFull() bool      { return p.numKeys() > leafMaxSize }
func (p leafPage) belowMin() bool    { return p.numKeys() < leafMinSize }

func (p leafPage) next() int32 {
	return int32(binary.LittleEndian.Uint32(p.Data[offLeafNext:]))
}

func (p leafPage) setNext(pid int32) {
	binary.LittleEndian.PutUint32(p.Data[offLeafNext:], uint32(pid))
}

func (p leafPage) entryOffset(i int) int {
	return leafHdrSize + i*leafEntrySz
}

func (p leafPage) entryAt(i int) Entry {
	off := p.entryOffset(i)
	key := int64(binary.LittleEndian.Uint64(p.Data[off:]))
	pageID := int32(binary.LittleEndian.Uint32(p.Data[off+8:]))
	slot := int32(binary.LittleEndian.Uint32(p.Data[off+12:]))
	return Entry{Key: key, RID: txn.RID{PageID: pageID, Slot: slot}}
}

func (p leafPage) setEntryAt(i int, e Entry) {
	off := p.entryOffset(i)
	binary.LittleEndian.PutUint64(p.Data[off:], uint64(e.Key))
	binary.LittleEndian.PutUint32(p.Data[off+8:], uint32(e.RID.PageID))
	binary.LittleEndian.PutUint32(p.Data[off+12:], uint32(e.RID.Slot))
}

// search returns the first index i such that entryAt(i).Key >= key, or
// numKeys() if no such entry exists.
func (p leafPage) search(key int64) int {
	n := p.numKeys()
	return sort.Search(n, func(i int) bool { return p.entryAt(i).Key >= key })
}

// insertAt shifts entries at and after i to the right by one slot and
// writes e into the gap. Callers must have already verified there is room.
func (p leafPage) insertAt(i int, e Entry) {
	n := p.numKeys()
	for j := n - 1; j >= i; j-- {
		p.setEntryAt(j+1, p.entryAt(j))
	}
	p.setEntryAt(i, e)
	p.setNumKeys(n + 1)
}

// removeAt shifts entries after i left by one, dropping the entry at i.
func (p leafPage) removeAt(i int) {
	n := p.numKeys()
	for j := i; j < n-1; j++ {
		p.setEntryAt(j, p.entryAt(j+1))
	}
	p.setNumKeys(n - 1)
}

// moveRightHalfTo transfers the upper half of p's entries onto dst, which
// must be empty, for a leaf split.
func (p leafPage) moveRightHalfTo(dst leafPage) int64 {
	n := p.numKeys()
	mid := n / 2
	for i := mid; i < n; i++ {
		dst.insertAt(dst.numKeys(), p.entryAt(i))
	}
	p.setNumKeys(mid)
	return dst.entryAt(0).Key
}

// moveAllTo appends all of p's entries onto the end of dst, for a coalesce.
func (p leafPage) moveAllTo(dst leafPage) {
	for i := 0; i < p.numKeys(); i++ {
		dst.insertAt(dst.numKeys(), p.entryAt(i))
	}
	p.setNumKeys(0)
}

// moveFirstTo pops p's first entry onto the end of dst, for redistribution
// when p is the right sibling donating to a left node.
func (p leafPage) moveFirstTo(dst leafPage) {
	e := p.entryAt(0)
	p.removeAt(0)
	dst.insertAt(dst.numKeys(), e)
}

// moveLastTo pops p's last entry onto the front of dst, for redistribution
// when p is the left sibling donating to a right node.
func (p leafPage) moveLastTo(dst leafPage) {
	last := p.numKeys() - 1
	e := p.entryAt(last)
	p.removeAt(last)
	dst.insertAt(0, e)
}
