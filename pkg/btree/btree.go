package btree

import (
	"errors"
	"sync"

	"dinocore/pkg/buffer"
	"dinocore/pkg/txn"
)

var (
	// ErrDuplicateKey is returned by Insert when the key is already present.
	ErrDuplicateKey = errors.New("btree: duplicate key")
	// ErrKeyNotFound is returned by Get/Delete when the key isn't present.
	ErrKeyNotFound = errors.New("btree: key not found")
)

// BTreeIndex is a concurrent B+Tree index over a shared buffer pool. Several
// named indexes may live in the same pool; each has its own root page,
// tracked in the pool's header directory (page 0).
type BTreeIndex struct {
	pool *buffer.Pool
	name string
	head *headerDirectory

	// rootLatch is the process-wide latch protecting rootPageID during
	// crabbing: readers take it for the duration of pinning the root page,
	// writers hold it until the operation proves an ancestor safe.
	rootLatch  sync.RWMutex
	rootPageID int32
}

// OpenIndex opens (creating if necessary) a named B+Tree index backed by
// pool. If pool is brand new, this also initializes its header directory.
func OpenIndex(pool *buffer.Pool, name string) (*BTreeIndex, error) {
	head, err := openHeaderDirectory(pool)
	if err != nil {
		return nil, err
	}
	idx := &BTreeIndex{pool: pool, name: name, head: head}

	rootID, ok, err := head.lookup(name)
	if err != nil {
		return nil, err
	}
	if ok {
		idx.rootPageID = rootID
		return idx, nil
	}

	rootFrame, err := pool.New()
	if err != nil {
		return nil, err
	}
	initLeaf(rootFrame.Data)
	idx.rootPageID = rootFrame.PageID
	pool.Unpin(rootFrame.PageID, true)
	if err := head.register(name, idx.rootPageID); err != nil {
		return nil, err
	}
	return idx, nil
}

func alwaysSafe(nodeType, int) bool { return true }

func insertSafe(nt nodeType, numKeys int) bool {
	if nt == leafNodeType {
		return numKeys < leafMaxSize
	}
	return numKeys < internalMaxSize
}

func deleteSafe(nt nodeType, numKeys int) bool {
	if nt == leafNodeType {
		return numKeys > leafMinSize
	}
	return numKeys > internalMinSize
}

func isBelowMin(data []byte) bool {
	if peekNodeType(data) == leafNodeType {
		return leafPage{Data: data}.belowMin()
	}
	return internalPage{Data: data}.belowMin()
}

// ancestry tracks the chain of pinned, latched pages held during a
// traversal, plus the process-wide root latch, plus any pages a write
// operation has decided to delete once every latch is released.
type ancestry struct {
	write     bool
	rootHeld  bool
	frames    []*buffer.Frame
	deleted   []int32
}

func (a *ancestry) releaseAncestors(pool *buffer.Pool, idx *BTreeIndex) {
	for _, f := range a.frames {
		if a.write {
			f.RWMutex.Unlock()
		} else {
			f.RWMutex.RUnlock()
		}
		pool.Unpin(f.PageID, false)
	}
	a.frames = nil
	if a.rootHeld {
		if a.write {
			idx.rootLatch.Unlock()
		} else {
			idx.rootLatch.RUnlock()
		}
		a.rootHeld = false
	}
}

// descend implements latch crabbing: it walks from the root to the leaf
// governing key, releasing ancestor latches as soon as safe reports the
// most recently latched child can absorb the operation without touching
// its parent. For the read path (write=false), pass alwaysSafe so every
// ancestor is dropped the instant its child is latched.
func (idx *BTreeIndex) descend(write bool, key int64, safe func(nodeType, int) bool) (*ancestry, *buffer.Frame, error) {
	anc := &ancestry{write: write}
	if write {
		idx.rootLatch.Lock()
	} else {
		idx.rootLatch.RLock()
	}
	anc.rootHeld = true

	frame, err := idx.pool.Fetch(idx.rootPageID)
	if err != nil {
		anc.releaseAncestors(idx.pool, idx)
		return nil, nil, err
	}
	if write {
		frame.RWMutex.Lock()
	} else {
		frame.RWMutex.RLock()
	}
	anc.frames = append(anc.frames, frame)

	for peekNodeType(frame.Data) != leafNodeType {
		ip := internalPage{Data: frame.Data}
		childID := ip.childAt(ip.search(key))
		child, err := idx.pool.Fetch(childID)
		if err != nil {
			anc.releaseAncestors(idx.pool, idx)
			return nil, nil, err
		}
		if write {
			child.RWMutex.Lock()
		} else {
			child.RWMutex.RLock()
		}
		if safe(peekNodeType(child.Data), readNumKeys(child.Data)) {
			anc.releaseAncestors(idx.pool, idx)
		}
		anc.frames = append(anc.frames, child)
		frame = child
	}

	leaf := anc.frames[len(anc.frames)-1]
	anc.frames = anc.frames[:len(anc.frames)-1]
	return anc, leaf, nil
}

// Get looks up key, returning its entry and true if present.
func (idx *BTreeIndex) Get(key int64) (Entry, bool, error) {
	anc, leaf, err := idx.descend(false, key, alwaysSafe)
	if err != nil {
		return Entry{}, false, err
	}
	// The read path never keeps ancestors past the point their child was
	// proven safe, but if the root is itself the leaf we descended to, its
	// latch is still held here and must be released explicitly.
	anc.releaseAncestors(idx.pool, idx)
	defer func() {
		leaf.RWMutex.RUnlock()
		idx.pool.Unpin(leaf.PageID, false)
	}()
	lp := leafPage{Data: leaf.Data}
	i := lp.search(key)
	if i < lp.numKeys() && lp.entryAt(i).Key == key {
		return lp.entryAt(i), true, nil
	}
	return Entry{}, false, nil
}

// Insert adds key -> rid to the tree, returning ErrDuplicateKey if key is
// already present.
func (idx *BTreeIndex) Insert(key int64, rid txn.RID) error {
	anc, leaf, err := idx.descend(true, key, insertSafe)
	if err != nil {
		return err
	}
	lp := leafPage{Data: leaf.Data}
	i := lp.search(key)
	if i < lp.numKeys() && lp.entryAt(i).Key == key {
		leaf.RWMutex.Unlock()
		idx.pool.Unpin(leaf.PageID, false)
		anc.releaseAncestors(idx.pool, idx)
		return ErrDuplicateKey
	}
	lp.insertAt(i, Entry{Key: key, RID: rid})
	leaf.Dirty = true

	if !lp.isFull() {
		leaf.RWMutex.Unlock()
		idx.pool.Unpin(leaf.PageID, true)
		anc.releaseAncestors(idx.pool, idx)
		return nil
	}

	newFrame, err := idx.pool.New()
	if err != nil {
		leaf.RWMutex.Unlock()
		idx.pool.Unpin(leaf.PageID, true)
		anc.releaseAncestors(idx.pool, idx)
		return err
	}
	newFrame.RWMutex.Lock()
	newLp := initLeaf(newFrame.Data)
	pushedKey := lp.moveRightHalfTo(newLp)
	newLp.setNext(lp.next())
	lp.setNext(newFrame.PageID)
	newFrame.Dirty = true

	leftID := leaf.PageID
	rightID := newFrame.PageID
	leaf.RWMutex.Unlock()
	idx.pool.Unpin(leaf.PageID, true)
	newFrame.RWMutex.Unlock()
	idx.pool.Unpin(newFrame.PageID, true)

	err = idx.propagateSplit(anc, leftID, pushedKey, rightID)
	for _, pid := range anc.deleted {
		idx.pool.Delete(pid)
	}
	return err
}

// propagateSplit installs (key, rightPageID) as a new separator in the
// parent of leftPageID, splitting the parent in turn if it's now full, all
// the way up to a new root if necessary.
func (idx *BTreeIndex) propagateSplit(anc *ancestry, leftPageID int32, key int64, rightPageID int32) error {
	if len(anc.frames) == 0 {
		return idx.growRoot(anc, key, leftPageID, rightPageID)
	}
	parentFrame := anc.frames[len(anc.frames)-1]
	anc.frames = anc.frames[:len(anc.frames)-1]

	ip := internalPage{Data: parentFrame.Data}
	ip.insertAfter(ip.childIndexOf(leftPageID), key, rightPageID)
	parentFrame.Dirty = true

	if !ip.isFull() {
		parentFrame.RWMutex.Unlock()
		idx.pool.Unpin(parentFrame.PageID, true)
		anc.releaseAncestors(idx.pool, idx)
		return nil
	}

	newFrame, err := idx.pool.New()
	if err != nil {
		parentFrame.RWMutex.Unlock()
		idx.pool.Unpin(parentFrame.PageID, true)
		anc.releaseAncestors(idx.pool, idx)
		return err
	}
	newFrame.RWMutex.Lock()
	newIp := initInternal(newFrame.Data)
	pushedKey := ip.moveRightHalfTo(newIp)
	newFrame.Dirty = true

	leftID := parentFrame.PageID
	rightID := newFrame.PageID
	parentFrame.RWMutex.Unlock()
	idx.pool.Unpin(parentFrame.PageID, true)
	newFrame.RWMutex.Unlock()
	idx.pool.Unpin(newFrame.PageID, true)

	return idx.propagateSplit(anc, leftID, pushedKey, rightID)
}

// growRoot allocates a new root above the current one when it splits.
func (idx *BTreeIndex) growRoot(anc *ancestry, key int64, left, right int32) error {
	newRootFrame, err := idx.pool.New()
	if err != nil {
		anc.releaseAncestors(idx.pool, idx)
		return err
	}
	newRoot := initInternal(newRootFrame.Data)
	newRoot.setRoot0(key, left, right)
	newRootFrame.Dirty = true
	idx.rootPageID = newRootFrame.PageID
	idx.pool.Unpin(newRootFrame.PageID, true)
	if err := idx.head.setRoot(idx.name, idx.rootPageID); err != nil {
		anc.releaseAncestors(idx.pool, idx)
		return err
	}
	anc.releaseAncestors(idx.pool, idx)
	return nil
}

// Delete removes key from the tree, returning ErrKeyNotFound if absent.
func (idx *BTreeIndex) Delete(key int64) error {
	anc, leaf, err := idx.descend(true, key, deleteSafe)
	if err != nil {
		return err
	}
	lp := leafPage{Data: leaf.Data}
	i := lp.search(key)
	if i >= lp.numKeys() || lp.entryAt(i).Key != key {
		leaf.RWMutex.Unlock()
		idx.pool.Unpin(leaf.PageID, false)
		anc.releaseAncestors(idx.pool, idx)
		return ErrKeyNotFound
	}
	lp.removeAt(i)
	leaf.Dirty = true

	err = idx.settle(anc, leaf)
	for _, pid := range anc.deleted {
		idx.pool.Delete(pid)
	}
	return err
}

// settle finalizes nodeFrame after one of its entries (or, recursively,
// one of its child pointers) was removed: roots are exempt from the
// minimum-size rule and only need AdjustRoot; any other node under minSize
// must coalesce with or redistribute from a sibling.
func (idx *BTreeIndex) settle(anc *ancestry, nodeFrame *buffer.Frame) error {
	if len(anc.frames) == 0 {
		return idx.adjustRoot(anc, nodeFrame)
	}
	if !isBelowMin(nodeFrame.Data) {
		nodeFrame.RWMutex.Unlock()
		idx.pool.Unpin(nodeFrame.PageID, true)
		anc.releaseAncestors(idx.pool, idx)
		return nil
	}
	return idx.coalesceOrRedistribute(anc, nodeFrame)
}

// adjustRoot collapses an internal root down to its sole remaining child,
// or leaves an empty leaf root as the (now empty) whole tree.
func (idx *BTreeIndex) adjustRoot(anc *ancestry, nodeFrame *buffer.Frame) error {
	if peekNodeType(nodeFrame.Data) == internalNodeType {
		ip := internalPage{Data: nodeFrame.Data}
		if ip.numKeys() == 0 {
			newRootID := ip.childAt(0)
			anc.deleted = append(anc.deleted, nodeFrame.PageID)
			idx.rootPageID = newRootID
			if err := idx.head.setRoot(idx.name, newRootID); err != nil {
				nodeFrame.RWMutex.Unlock()
				idx.pool.Unpin(nodeFrame.PageID, true)
				anc.releaseAncestors(idx.pool, idx)
				return err
			}
		}
	}
	nodeFrame.RWMutex.Unlock()
	idx.pool.Unpin(nodeFrame.PageID, true)
	anc.releaseAncestors(idx.pool, idx)
	return nil
}

// coalesceOrRedistribute merges nodeFrame with a sibling if the combined
// size fits one node, otherwise shifts a single entry across and adjusts
// the parent separator. The left sibling is preferred; the right sibling is
// used only when nodeFrame is already its parent's leftmost child.
func (idx *BTreeIndex) coalesceOrRedistribute(anc *ancestry, nodeFrame *buffer.Frame) error {
	parentFrame := anc.frames[len(anc.frames)-1]
	ip := internalPage{Data: parentFrame.Data}
	idxInParent := ip.childIndexOf(nodeFrame.PageID)

	var siblingIdx int
	var nodeIsLeft bool
	if idxInParent == 0 {
		siblingIdx, nodeIsLeft = 1, true
	} else {
		siblingIdx, nodeIsLeft = idxInParent-1, false
	}
	siblingFrame, err := idx.pool.Fetch(ip.childAt(siblingIdx))
	if err != nil {
		nodeFrame.RWMutex.Unlock()
		idx.pool.Unpin(nodeFrame.PageID, true)
		anc.releaseAncestors(idx.pool, idx)
		return err
	}
	siblingFrame.RWMutex.Lock()

	var leftFrame, rightFrame *buffer.Frame
	var separatorIdx int
	if nodeIsLeft {
		leftFrame, rightFrame, separatorIdx = nodeFrame, siblingFrame, idxInParent
	} else {
		leftFrame, rightFrame, separatorIdx = siblingFrame, nodeFrame, siblingIdx
	}
	separatorKey := ip.keyAt(separatorIdx)

	nt := peekNodeType(nodeFrame.Data)
	var canCoalesce bool
	if nt == leafNodeType {
		canCoalesce = leafPage{Data: leftFrame.Data}.numKeys()+leafPage{Data: rightFrame.Data}.numKeys() <= leafMaxSize
	} else {
		canCoalesce = internalPage{Data: leftFrame.Data}.numKeys()+internalPage{Data: rightFrame.Data}.numKeys()+1 <= internalMaxSize
	}

	if canCoalesce {
		if nt == leafNodeType {
			lRight := leafPage{Data: rightFrame.Data}
			lLeft := leafPage{Data: leftFrame.Data}
			lRight.moveAllTo(lLeft)
			lLeft.setNext(lRight.next())
		} else {
			internalPage{Data: rightFrame.Data}.moveAllTo(internalPage{Data: leftFrame.Data}, separatorKey)
		}
		leftFrame.Dirty = true
		ip.removeChildAt(ip.childIndexOf(rightFrame.PageID))
		parentFrame.Dirty = true
		anc.deleted = append(anc.deleted, rightFrame.PageID)

		nodeFrame.RWMutex.Unlock()
		idx.pool.Unpin(nodeFrame.PageID, true)
		siblingFrame.RWMutex.Unlock()
		idx.pool.Unpin(siblingFrame.PageID, true)

		anc.frames = anc.frames[:len(anc.frames)-1]
		return idx.settle(anc, parentFrame)
	}

	if nt == leafNodeType {
		lNode := leafPage{Data: nodeFrame.Data}
		lSib := leafPage{Data: siblingFrame.Data}
		if nodeIsLeft {
			lSib.moveFirstTo(lNode)
			ip.setKeyAt(separatorIdx, lSib.entryAt(0).Key)
		} else {
			lSib.moveLastTo(lNode)
			ip.setKeyAt(separatorIdx, lNode.entryAt(0).Key)
		}
	} else {
		iNode := internalPage{Data: nodeFrame.Data}
		iSib := internalPage{Data: siblingFrame.Data}
		var newSep int64
		if nodeIsLeft {
			newSep = iSib.moveFirstTo(iNode, separatorKey)
		} else {
			newSep = iSib.moveLastTo(iNode, separatorKey)
		}
		ip.setKeyAt(separatorIdx, newSep)
	}
	nodeFrame.Dirty = true
	siblingFrame.Dirty = true
	parentFrame.Dirty = true

	nodeFrame.RWMutex.Unlock()
	idx.pool.Unpin(nodeFrame.PageID, true)
	siblingFrame.RWMutex.Unlock()
	idx.pool.Unpin(siblingFrame.PageID, true)
	anc.frames = anc.frames[:len(anc.frames)-1]
	parentFrame.RWMutex.Unlock()
	idx.pool.Unpin(parentFrame.PageID, true)
	anc.releaseAncestors(idx.pool, idx)
	return nil
}
