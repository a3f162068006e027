package btree

import (
	"encoding/binary"

	"dinocore/pkg/buffer"
)

// headerPageID is the fixed page id of the root-page-id directory, shared
// by every index opened against the same pool. It must be the first page
// ever allocated in a fresh pool.
const headerPageID int32 = 0

const (
	headerNameBytes  = 24
	headerEntrySize  = 1 + headerNameBytes + 4 // len prefix, name, root page id
	headerCountOff   = 0
	headerEntriesOff = 4
)

// headerDirectory maps index names to their root page id, persisted on
// headerPageID. It exists so more than one named B+Tree can share a pool,
// matching how a real table/index catalog would hand out root pointers.
type headerDirectory struct {
	pool *buffer.Pool
}

func openHeaderDirectory(pool *buffer.Pool) (*headerDirectory, error) {
	h := &headerDirectory{pool: pool}
	if pool.NumPages() == 0 {
		frame, err := pool.New()
		if err != nil {
			return nil, err
		}
		if frame.PageID != headerPageID {
			pool.Unpin(frame.PageID, false)
			panic("btree: header page must be the first page allocated in a fresh pool")
		}
		for i := range frame.Data {
			frame.Data[i] = 0
		}
		pool.Unpin(frame.PageID, true)
	}
	return h, nil
}

func (h *headerDirectory) entryOffset(i int) int {
	return headerEntriesOff + i*headerEntrySize
}

// lookup returns the root page id registered for name, if any.
func (h *headerDirectory) lookup(name string) (int32, bool, error) {
	frame, err := h.pool.Fetch(headerPageID)
	if err != nil {
		return 0, false, err
	}
	frame.RWMutex.RLock()
	defer func() {
		frame.RWMutex.RUnlock()
		h.pool.Unpin(headerPageID, false)
	}()
	count := int(binary.LittleEndian.Uint32(frame.Data[headerCountOff:]))
	for i := 0; i < count; i++ {
		off := h.entryOffset(i)
		nameLen := int(frame.Data[off])
		entryName := string(frame.Data[off+1 : off+1+nameLen])
		if entryName == name {
			pid := int32(binary.LittleEndian.Uint32(frame.Data[off+1+headerNameBytes:]))
			return pid, true, nil
		}
	}
	return 0, false, nil
}

// register records that name's root lives at pageID, appending a new entry.
func (h *headerDirectory) register(name string, pageID int32) error {
	frame, err := h.pool.Fetch(headerPageID)
	if err != nil {
		return err
	}
	frame.RWMutex.Lock()
	defer func() {
		frame.RWMutex.Unlock()
		h.pool.Unpin(headerPageID, true)
	}()
	count := int(binary.LittleEndian.Uint32(frame.Data[headerCountOff:]))
	off := h.entryOffset(count)
	if len(name) > headerNameBytes {
		name = name[:headerNameBytes]
	}
	frame.Data[off] = byte(len(name))
	copy(frame.Data[off+1:], name)
	binary.LittleEndian.PutUint32(frame.Data[off+1+headerNameBytes:], uint32(pageID))
	binary.LittleEndian.PutUint32(frame.Data[headerCountOff:], uint32(count+1))
	return nil
}

// setRoot updates an existing entry's root page id in place.
func (h *headerDirectory) setRoot(name string, pageID int32) error {
	frame, err := h.pool.Fetch(headerPageID)
	if err != nil {
		return err
	}
	frame.RWMutex.Lock()
	defer func() {
		frame.RWMutex.Unlock()
		h.pool.Unpin(headerPageID, true)
	}()
	count := int(binary.LittleEndian.Uint32(frame.Data[headerCountOff:]))
	for i := 0; i < count; i++ {
		off := h.entryOffset(i)
		nameLen := int(frame.Data[off])
		entryName := string(frame.Data[off+1 : off+1+nameLen])
		if entryName == name {
			binary.LittleEndian.PutUint32(frame.Data[off+1+headerNameBytes:], uint32(pageID))
			return nil
		}
	}
	return nil
}
