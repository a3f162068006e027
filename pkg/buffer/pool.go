// Package buffer implements the storage engine's buffer pool: a fixed set of
// in-memory frames caching pages from disk, backed by an extendible-hash
// page table and an LRU replacer.
package buffer

import (
	"errors"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"dinocore/config"
	"dinocore/internal/list"
	"dinocore/pkg/disk"
	"dinocore/pkg/hash"
	"dinocore/pkg/pagetable"
	"dinocore/pkg/replacer"
)

// ErrPoolExhausted is returned when every frame is pinned and none can be
// evicted to satisfy a fetch or new-page request.
var ErrPoolExhausted = errors.New("buffer: no free frames or eviction candidates")

// LogFlusher is the subset of the log manager the buffer pool needs to
// honor the write-ahead-log rule: a dirty frame may not be written back
// until the log record describing its last mutation is durable.
type LogFlusher interface {
	FlushLSN(lsn int64)
}

func pageHash(pageID int32) uint64 {
	return hash.XxHasher(int64(pageID))
}

// Pool is a fixed-size cache of disk pages.
type Pool struct {
	disk *disk.Manager
	log  LogFlusher

	mtx       sync.Mutex
	frames    []*Frame
	freeList  *list.List[int32]
	freeLinks map[int32]*list.Link[int32]
	table     *pagetable.Table[int32, int32] // pageID -> frame index
	lru       *replacer.LRU
	// dirty marks which frame indices currently hold unflushed writes, so
	// FlushAll can walk only the frames that need work instead of every
	// frame in the pool. Always mutated with mtx held.
	dirty *bitset.BitSet
}

// NewPool allocates a pool of numFrames frames, each disk.PageSize bytes.
func NewPool(numFrames int, d *disk.Manager) *Pool {
	if numFrames < 1 {
		numFrames = 1
	}
	p := &Pool{
		disk:      d,
		frames:    make([]*Frame, numFrames),
		freeList:  list.New[int32](),
		freeLinks: make(map[int32]*list.Link[int32], numFrames),
		table:     pagetable.New[int32, int32](config.DefaultBucketSize, pageHash),
		lru:       replacer.NewLRU(),
		dirty:     bitset.New(uint(numFrames)),
	}
	for i := 0; i < numFrames; i++ {
		p.frames[i] = newFrame(disk.PageSize)
		p.freeLinks[int32(i)] = p.freeList.PushTail(int32(i))
	}
	return p
}

// NumPages returns the number of pages allocated on disk through this
// pool's disk manager, letting callers (like a header directory) tell a
// brand-new page file apart from one that already has data.
func (p *Pool) NumPages() int64 {
	return p.disk.NumPages()
}

// SetLogFlusher wires the log manager the pool must consult before evicting
// or explicitly flushing a dirty frame. Recovery, which replays pages
// without a log manager running yet, may leave this unset.
func (p *Pool) SetLogFlusher(log LogFlusher) {
	p.log = log
}

// victim finds a frame to reuse: the free list first, then the LRU
// replacer. p.mtx must be held on entry. Returns the frame index.
func (p *Pool) victim() (int32, error) {
	if link := p.freeList.PeekHead(); link != nil {
		idx := link.GetValue()
		link.PopSelf()
		delete(p.freeLinks, idx)
		return idx, nil
	}
	idx, ok := p.lru.Victim()
	if !ok {
		return 0, ErrPoolExhausted
	}
	frame := p.frames[idx]
	frame.RWMutex.Lock()
	if frame.Dirty {
		p.flushFrameLocked(frame)
		p.dirty.Clear(uint(idx))
	}
	frame.RWMutex.Unlock()
	p.table.Remove(frame.PageID)
	return idx, nil
}

// flushFrameLocked writes a dirty frame's bytes to disk, first satisfying
// the WAL rule if a log manager is attached. Caller holds frame.RWMutex.
func (p *Pool) flushFrameLocked(frame *Frame) {
	if p.log != nil {
		p.log.FlushLSN(frame.LastLSN)
	}
	p.disk.WritePage(frame.PageID, frame.Data)
	frame.Dirty = false
}

// Fetch pins and returns the frame holding pageID, reading it from disk if
// it isn't already resident.
func (p *Pool) Fetch(pageID int32) (*Frame, error) {
	p.mtx.Lock()
	if idx, ok := p.table.Find(pageID); ok {
		frame := p.frames[idx]
		if frame.PinCount == 0 {
			p.lru.Erase(idx)
		}
		frame.PinCount++
		p.mtx.Unlock()
		return frame, nil
	}

	idx, err := p.victim()
	if err != nil {
		p.mtx.Unlock()
		return nil, err
	}
	frame := p.frames[idx]
	frame.RWMutex.Lock()
	frame.reset(pageID)
	if err := p.disk.ReadPage(pageID, frame.Data); err != nil {
		frame.RWMutex.Unlock()
		p.freeLinks[idx] = p.freeList.PushTail(idx)
		p.mtx.Unlock()
		return nil, err
	}
	frame.RWMutex.Unlock()
	p.table.Insert(pageID, idx)
	p.mtx.Unlock()
	return frame, nil
}

// New allocates a fresh page on disk and returns it pinned, uninitialized.
func (p *Pool) New() (*Frame, error) {
	p.mtx.Lock()
	idx, err := p.victim()
	if err != nil {
		p.mtx.Unlock()
		return nil, err
	}
	pageID := p.disk.AllocatePage()
	frame := p.frames[idx]
	frame.RWMutex.Lock()
	frame.reset(pageID)
	frame.Dirty = true
	frame.RWMutex.Unlock()
	p.dirty.Set(uint(idx))
	p.table.Insert(pageID, idx)
	p.mtx.Unlock()
	return frame, nil
}

// Unpin releases a reference to pageID. If dirty is true the frame is
// marked dirty even if the caller didn't actually change its bytes, since a
// caller only ever un-dirties intentionally, never accidentally.
func (p *Pool) Unpin(pageID int32, dirty bool) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	idx, ok := p.table.Find(pageID)
	if !ok {
		return errors.New("buffer: unpin of page not in pool")
	}
	frame := p.frames[idx]
	if frame.PinCount == 0 {
		return errors.New("buffer: unpin of page with zero pin count")
	}
	if dirty {
		frame.Dirty = true
		p.dirty.Set(uint(idx))
	}
	frame.PinCount--
	if frame.PinCount == 0 {
		p.lru.Insert(idx)
	}
	return nil
}

// Flush writes pageID's bytes to disk if dirty, honoring the WAL rule.
func (p *Pool) Flush(pageID int32) error {
	p.mtx.Lock()
	idx, ok := p.table.Find(pageID)
	p.mtx.Unlock()
	if !ok {
		return errors.New("buffer: flush of page not in pool")
	}
	frame := p.frames[idx]
	frame.RWMutex.Lock()
	defer frame.RWMutex.Unlock()
	if frame.Dirty {
		p.flushFrameLocked(frame)
		p.mtx.Lock()
		p.dirty.Clear(uint(idx))
		p.mtx.Unlock()
	}
	return nil
}

// FlushAll writes every dirty frame to disk. Used at clean shutdown. It
// walks the dirty bitmap rather than every frame, so an idle pool with a
// handful of writes among thousands of clean, resident pages costs O(dirty)
// instead of O(frames).
func (p *Pool) FlushAll() {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	for i, ok := p.dirty.NextSet(0); ok; i, ok = p.dirty.NextSet(i + 1) {
		frame := p.frames[i]
		frame.RWMutex.Lock()
		if frame.PageID != -1 && frame.Dirty {
			p.flushFrameLocked(frame)
		}
		frame.RWMutex.Unlock()
		p.dirty.Clear(i)
	}
}

// Delete removes pageID from the pool, failing if it is currently pinned.
func (p *Pool) Delete(pageID int32) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	idx, ok := p.table.Find(pageID)
	if !ok {
		return nil
	}
	frame := p.frames[idx]
	if frame.PinCount > 0 {
		return errors.New("buffer: delete of pinned page")
	}
	p.lru.Erase(idx)
	p.table.Remove(pageID)
	p.disk.DeallocatePage(pageID)
	frame.RWMutex.Lock()
	frame.PageID = -1
	frame.RWMutex.Unlock()
	p.dirty.Clear(uint(idx))
	p.freeLinks[idx] = p.freeList.PushTail(idx)
	return nil
}
