// Package replacer selects eviction victims for the buffer pool. LRU is the
// only policy the storage core implements.
package replacer

import (
	"sync"

	"dinocore/internal/list"
)

// LRU tracks frame ids that are currently unpinned and eligible for
// eviction, ordered from most to least recently unpinned. Membership here
// corresponds exactly to "unpinned in the buffer pool" - a frame is either
// pinned or sitting in the replacer, never both.
type LRU struct {
	mtx   sync.Mutex
	order *list.List[int32]
	nodes map[int32]*list.Link[int32]
}

// NewLRU returns an empty replacer.
func NewLRU() *LRU {
	return &LRU{
		order: list.New[int32](),
		nodes: make(map[int32]*list.Link[int32]),
	}
}

// Insert marks frameID as unpinned and eligible for eviction, moving it to
// the most-recently-used position if it was already tracked.
func (r *LRU) Insert(frameID int32) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if link, ok := r.nodes[frameID]; ok {
		link.PopSelf()
	}
	r.nodes[frameID] = r.order.PushHead(frameID)
}

// Victim pops and returns the least-recently-used frame id. The second
// return is false if the replacer is empty.
func (r *LRU) Victim() (int32, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	tail := r.order.PeekTail()
	if tail == nil {
		return 0, false
	}
	tail.PopSelf()
	delete(r.nodes, tail.GetValue())
	return tail.GetValue(), true
}

// Erase removes frameID from the replacer, e.g. because it was just pinned.
// Returns whether frameID was present.
func (r *LRU) Erase(frameID int32) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	link, ok := r.nodes[frameID]
	if !ok {
		return false
	}
	link.PopSelf()
	delete(r.nodes, frameID)
	return true
}

// Size returns the number of frames currently eligible for eviction.
func (r *LRU) Size() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.nodes)
}
