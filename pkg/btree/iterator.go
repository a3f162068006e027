package btree

import (
	"errors"

	"dinocore/pkg/buffer"
)

// ErrIteratorExhausted is returned by Entry once an Iterator has advanced
// past the last entry in the tree.
var ErrIteratorExhausted = errors.New("btree: iterator exhausted")

// Iterator walks the leaf chain in key order, holding a pinned, read-latched
// leaf and a cursor index into it. Advancing past the leaf's last slot
// unpins the leaf, follows next_page_id to the sibling leaf, pins and
// read-latches it, and resets the cursor. Callers must call Close once done
// so the current leaf is released.
type Iterator struct {
	idx   *BTreeIndex
	frame *buffer.Frame
	pos   int
	done  bool
}

// Seek returns an Iterator positioned at the first entry with key >= start.
func (idx *BTreeIndex) Seek(start int64) (*Iterator, error) {
	anc, leaf, err := idx.descend(false, start, alwaysSafe)
	if err != nil {
		return nil, err
	}
	// Same root-latch caveat as Get: release explicitly rather than assume
	// descend already dropped it, since a single-leaf tree never enters the
	// loop that would have done so.
	anc.releaseAncestors(idx.pool, idx)
	lp := leafPage{Data: leaf.Data}
	it := &Iterator{idx: idx, frame: leaf, pos: lp.search(start)}
	it.skipEmptyLeaves()
	return it, nil
}

// SeekFirst returns an Iterator positioned at the tree's smallest key.
func (idx *BTreeIndex) SeekFirst() (*Iterator, error) {
	anc, leaf, err := idx.descend(false, -1<<63, alwaysSafe)
	if err != nil {
		return nil, err
	}
	anc.releaseAncestors(idx.pool, idx)
	it := &Iterator{idx: idx, frame: leaf, pos: 0}
	it.skipEmptyLeaves()
	return it, nil
}

// skipEmptyLeaves advances across zero-key leaves (possible after deletes)
// so the iterator never reports "valid" while sitting on an empty node.
func (it *Iterator) skipEmptyLeaves() {
	for !it.done {
		lp := leafPage{Data: it.frame.Data}
		if it.pos < lp.numKeys() {
			return
		}
		if !it.advanceLeaf() {
			it.done = true
			return
		}
	}
}

// advanceLeaf releases the current leaf and follows next_page_id to the
// sibling. Returns false once there is no next leaf.
func (it *Iterator) advanceLeaf() bool {
	lp := leafPage{Data: it.frame.Data}
	nextID := lp.next()
	it.frame.RWMutex.RUnlock()
	it.idx.pool.Unpin(it.frame.PageID, false)
	it.frame = nil
	if nextID == InvalidPageID {
		return false
	}
	next, err := it.idx.pool.Fetch(nextID)
	if err != nil {
		return false
	}
	next.RWMutex.RLock()
	it.frame = next
	it.pos = 0
	return true
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return !it.done
}

// Entry returns the entry currently pointed to.
func (it *Iterator) Entry() (Entry, error) {
	if it.done {
		return Entry{}, ErrIteratorExhausted
	}
	return leafPage{Data: it.frame.Data}.entryAt(it.pos), nil
}

// Next advances the iterator by one entry, returning false once it lands on
// a valid entry and true once it has run off the end of the tree.
func (it *Iterator) Next() (atEnd bool) {
	if it.done {
		return true
	}
	it.pos++
	it.skipEmptyLeaves()
	return it.done
}

// Close releases the leaf the iterator currently holds, if any.
func (it *Iterator) Close() {
	if it.frame != nil {
		it.frame.RWMutex.RUnlock()
		it.idx.pool.Unpin(it.frame.PageID, false)
		it.frame = nil
	}
	it.done = true
}
