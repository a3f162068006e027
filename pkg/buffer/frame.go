package buffer

import (
	"sync"

	"github.com/ncw/directio"
)

// Frame is one slot of buffer-pool memory. It either holds a live page or is
// free. PageID and PinCount are protected by the pool's page table mutex;
// Data is protected by RWMutex, matching how the reference pager separates
// "which page is this" bookkeeping from "the page's bytes".
type Frame struct {
	PageID   int32
	PinCount int32
	Dirty    bool
	// LastLSN is the log sequence number of the most recent WAL record that
	// describes a mutation to this page. The WAL rule requires the log
	// manager to have durably flushed at least this LSN before the frame's
	// bytes may be written back to disk.
	LastLSN int64

	RWMutex sync.RWMutex
	Data    []byte
}

// newFrame allocates a frame's page buffer with directio.AlignedBlock rather
// than a plain make([]byte, ...): the page file is opened with O_DIRECT
// (pkg/disk), which requires block-aligned buffers on the read/write path,
// and a plain slice is only page-sized by accident of the allocator's size
// classes.
func newFrame(pageSize int64) *Frame {
	return &Frame{
		PageID:  -1,
		LastLSN: -1,
		Data:    directio.AlignedBlock(int(pageSize)),
	}
}

func (f *Frame) reset(pageID int32) {
	f.PageID = pageID
	f.PinCount = 1
	f.Dirty = false
	f.LastLSN = -1
	for i := range f.Data {
		f.Data[i] = 0
	}
}
