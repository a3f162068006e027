package btree

import (
	"encoding/binary"
	"sort"
)

// internalPage is a view over an internal node's raw bytes: numKeys() keys
// separating numKeys()+1 child pointers. Child i covers keys in
// [keyAt(i-1), keyAt(i)), with child 0 covering everything below keyAt(0)
// and the last child covering everything at or above keyAt(numKeys()-1).
type internalPage struct {
	Data []byte
}

func initInternal(data []byte) internalPage {
	for i := range data {
		data[i] = 0
	}
	data[offNodeType] = byte(internalNodeType)
	return internalPage{Data: data}
}

func (p internalPage) numKeys() int     { return readNumKeys(p.Data) }
func (p internalPage) setNumKeys(n int) { writeNumKeys(p.Data, n) }
func (p internalPage) isFull() bool     { return p.numKeys() > internalMaxSize }
func (p internalPage) belowMin() bool   { return p.numKeys() < internalMinSize }

func (p internalPage) keyOffset(i int) int  { return offInternalKeys + i*internalKeySz }
func (p internalPage) kidOffset(i int) int  { return offInternalKids + i*internalChildSz }

func (p internalPage) keyAt(i int) int64 {
	return int64(binary.LittleEndian.Uint64(p.Data[p.keyOffset(i):]))
}

func (p internalPage) setKeyAt(i int, key int64) {
	binary.LittleEndian.PutUint64(p.Data[p.keyOffset(i):], uint64(key))
}

func (p internalPage) childAt(i int) int32 {
	return int32(binary.LittleEndian.Uint32(p.Data[p.kidOffset(i):]))
}

func (p internalPage) setChildAt(i int, pid int32) {
	binary.LittleEndian.PutUint32(p.Data[p.kidOffset(i):], uint32(pid))
}

// search returns the index of the child pointer to follow for key: the
// first index i such that keyAt(i) > key, or numKeys() if key is at least
// as large as every separator (meaning the last child).
func (p internalPage) search(key int64) int {
	n := p.numKeys()
	return sort.Search(n, func(i int) bool { return p.keyAt(i) > key })
}

// childIndexOf returns the position of childPageID among this node's
// children, or -1 if not present.
func (p internalPage) childIndexOf(childPageID int32) int {
	for i := 0; i <= p.numKeys(); i++ {
		if p.childAt(i) == childPageID {
			return i
		}
	}
	return -1
}

// insertAfter inserts (key, rightChild) so that rightChild becomes the
// child immediately after leftChildIdx, shifting everything after it over.
func (p internalPage) insertAfter(leftChildIdx int, key int64, rightChild int32) {
	n := p.numKeys()
	for j := n - 1; j >= leftChildIdx; j-- {
		p.setKeyAt(j+1, p.keyAt(j))
	}
	for j := n; j > leftChildIdx; j-- {
		p.setChildAt(j+1, p.childAt(j))
	}
	p.setKeyAt(leftChildIdx, key)
	p.setChildAt(leftChildIdx+1, rightChild)
	p.setNumKeys(n + 1)
}

// removeChildAt removes the child at index idx along with the separator key
// to its left (or, if idx is 0, the separator to its right), shifting the
// rest down.
func (p internalPage) removeChildAt(idx int) {
	n := p.numKeys()
	keyIdx := idx - 1
	if keyIdx < 0 {
		keyIdx = 0
	}
	for j := keyIdx; j < n-1; j++ {
		p.setKeyAt(j, p.keyAt(j+1))
	}
	for j := idx; j < n; j++ {
		p.setChildAt(j, p.childAt(j+1))
	}
	p.setNumKeys(n - 1)
}

// setRoot0 initializes a brand new root with a single separator key and two
// children, used both for the very first split of a leaf root and whenever
// the top of the tree grows.
func (p internalPage) setRoot0(key int64, left, right int32) {
	p.setChildAt(0, left)
	p.setKeyAt(0, key)
	p.setChildAt(1, right)
	p.setNumKeys(1)
}

// moveRightHalfTo splits p, moving its upper half (keys and children) to
// dst, which must be empty. Returns the separator key pushed up to the
// parent; unlike a leaf split this key is removed from both nodes.
func (p internalPage) moveRightHalfTo(dst internalPage) int64 {
	n := p.numKeys()
	mid := n / 2
	pushedKey := p.keyAt(mid)
	for i := mid + 1; i <= n; i++ {
		dst.setChildAt(dst.numKeys(), p.childAt(i))
		if i < n {
			dst.setKeyAt(dst.numKeys(), p.keyAt(i))
			dst.setNumKeys(dst.numKeys() + 1)
		}
	}
	p.setNumKeys(mid)
	return pushedKey
}

// moveAllTo appends p's separator key (pulled down from the parent) and all
// of p's children onto dst, for a coalesce. dst must already hold its own
// entries; parentKey is the separator between dst and p in their parent.
func (p internalPage) moveAllTo(dst internalPage, parentKey int64) {
	dst.setKeyAt(dst.numKeys(), parentKey)
	dst.setNumKeys(dst.numKeys() + 1)
	n := p.numKeys()
	for i := 0; i <= n; i++ {
		dst.setChildAt(dst.numKeys(), p.childAt(i))
		if i < n {
			dst.setKeyAt(dst.numKeys(), p.keyAt(i))
			dst.setNumKeys(dst.numKeys() + 1)
		}
	}
	p.setNumKeys(0)
}

// moveFirstTo pops p's first child (and pulls the parent separator down as
// the last key of dst) for redistribution when p is the right sibling.
// Returns the new separator to install in the parent (p's old first key).
func (p internalPage) moveFirstTo(dst internalPage, parentKey int64) int64 {
	firstChild := p.childAt(0)
	newSeparator := p.keyAt(0)
	dst.setKeyAt(dst.numKeys(), parentKey)
	dst.setChildAt(dst.numKeys()+1, firstChild)
	dst.setNumKeys(dst.numKeys() + 1)
	p.removeChildAt(0)
	return newSeparator
}

// moveLastTo pops p's last child (and pulls the parent separator down as
// the first key of dst) for redistribution when p is the left sibling.
// Returns the new separator to install in the parent (p's old last key).
func (p internalPage) moveLastTo(dst internalPage, parentKey int64) int64 {
	n := p.numKeys()
	lastChild := p.childAt(n)
	newSeparator := p.keyAt(n - 1)
	// Shift dst right by one to make room at the front.
	for j := dst.numKeys() - 1; j >= 0; j-- {
		dst.setKeyAt(j+1, dst.keyAt(j))
	}
	for j := dst.numKeys(); j >= 0; j-- {
		dst.setChildAt(j+1, dst.childAt(j))
	}
	dst.setKeyAt(0, parentKey)
	dst.setChildAt(0, lastChild)
	dst.setNumKeys(dst.numKeys() + 1)
	p.removeChildAt(n)
	return newSeparator
}
