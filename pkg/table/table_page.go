package table

import (
	"encoding/binary"
	"errors"
)

// Table page header layout, byte offsets within the page:
//
//	page_id             @0  (int32)
//	last_lsn            @4  (int32)
//	prev_page_id        @8  (int32)
//	next_page_id        @12 (int32)
//	free_space_pointer  @16 (int32)
//	tuple_count         @20 (int32)
//	slot array          @24 (offset:int32, size:int32) pairs, growing upward
//
// Tuple bytes are packed from the end of the page downward. A negative slot
// size marks the tuple deleted (MARKDELETE); a slot size of zero marks the
// slot free for reuse (ApplyDelete has run).
const (
	offPageID      = 0
	offLastLSN     = 4
	offPrevPageID  = 8
	offNextPageID  = 12
	offFreeSpace   = 16
	offTupleCount  = 20
	slotArrayStart = 24
	slotSize       = 8
)

// InvalidPageID mirrors disk.InvalidPageID without importing disk, since
// this package only ever sees raw page bytes handed to it by the buffer
// pool's caller.
const InvalidPageID int32 = -1

var (
	// ErrNoSpace is returned when a page has insufficient free space for an
	// insert or a growing update.
	ErrNoSpace = errors.New("table: page has insufficient free space")
	// ErrSlotOutOfRange is returned when a rid names a slot the page never
	// allocated.
	ErrSlotOutOfRange = errors.New("table: slot out of range")
	// ErrTupleDeleted is returned by operations that require a live tuple.
	ErrTupleDeleted = errors.New("table: tuple already deleted")
)

// Page is a slotted table page viewed over caller-owned bytes (normally a
// buffer-pool frame's Data field).
type Page struct {
	Data []byte
}

// Init lays out an empty page for pageID, chained after prevPageID.
func (p Page) Init(pageID, prevPageID int32) {
	invalidPageID := InvalidPageID
	binary.LittleEndian.PutUint32(p.Data[offPageID:], uint32(pageID))
	binary.LittleEndian.PutUint32(p.Data[offLastLSN:], uint32(invalidPageID))
	binary.LittleEndian.PutUint32(p.Data[offPrevPageID:], uint32(prevPageID))
	binary.LittleEndian.PutUint32(p.Data[offNextPageID:], uint32(invalidPageID))
	binary.LittleEndian.PutUint32(p.Data[offFreeSpace:], uint32(len(p.Data)))
	binary.LittleEndian.PutUint32(p.Data[offTupleCount:], 0)
}

func (p Page) getInt32(off int) int32 { return int32(binary.LittleEndian.Uint32(p.Data[off:])) }
func (p Page) setInt32(off int, v int32) {
	binary.LittleEndian.PutUint32(p.Data[off:], uint32(v))
}

func (p Page) PageID() int32         { return p.getInt32(offPageID) }
func (p Page) LastLSN() int32        { return p.getInt32(offLastLSN) }
func (p Page) SetLastLSN(lsn int32)  { p.setInt32(offLastLSN, lsn) }
func (p Page) PrevPageID() int32     { return p.getInt32(offPrevPageID) }
func (p Page) SetPrevPageID(id int32) { p.setInt32(offPrevPageID, id) }
func (p Page) NextPageID() int32     { return p.getInt32(offNextPageID) }
func (p Page) SetNextPageID(id int32) { p.setInt32(offNextPageID, id) }
func (p Page) freeSpacePointer() int32 { return p.getInt32(offFreeSpace) }
func (p Page) setFreeSpacePointer(v int32) { p.setInt32(offFreeSpace, v) }
func (p Page) TupleCount() int32     { return p.getInt32(offTupleCount) }
func (p Page) setTupleCount(v int32) { p.setInt32(offTupleCount, v) }

func slotOffsetOff(slot int32) int { return slotArrayStart + int(slot)*slotSize }
func slotSizeOff(slot int32) int   { return slotArrayStart + int(slot)*slotSize + 4 }

func (p Page) slotOffset(slot int32) int32   { return p.getInt32(slotOffsetOff(slot)) }
func (p Page) setSlotOffset(slot, v int32)   { p.setInt32(slotOffsetOff(slot), v) }
func (p Page) slotSize(slot int32) int32     { return p.getInt32(slotSizeOff(slot)) }
func (p Page) setSlotSize(slot, v int32)     { p.setInt32(slotSizeOff(slot), v) }

// FreeSpaceSize returns the number of unused bytes between the slot array
// and the tuple heap.
func (p Page) FreeSpaceSize() int32 {
	return p.freeSpacePointer() - slotArrayStart - p.TupleCount()*slotSize
}

// InsertTuple appends data to the page, reusing a free slot if one exists.
// Returns the assigned slot number.
func (p Page) InsertTuple(data []byte) (int32, error) {
	size := int32(len(data))
	if size <= 0 {
		return 0, errors.New("table: cannot insert empty tuple")
	}

	var slot int32 = -1
	count := p.TupleCount()
	for i := int32(0); i < count; i++ {
		if p.slotSize(i) == 0 {
			slot = i
			break
		}
	}
	if slot == -1 {
		if p.FreeSpaceSize() < size+slotSize {
			return 0, ErrNoSpace
		}
		slot = count
	} else if p.FreeSpaceSize() < size {
		return 0, ErrNoSpace
	}

	newFree := p.freeSpacePointer() - size
	copy(p.Data[newFree:newFree+size], data)
	p.setFreeSpacePointer(newFree)
	p.setSlotOffset(slot, newFree)
	p.setSlotSize(slot, size)
	if slot == count {
		p.setTupleCount(count + 1)
	}
	return slot, nil
}

// GetTuple returns a copy of the live tuple bytes at slot.
func (p Page) GetTuple(slot int32) ([]byte, error) {
	if slot < 0 || slot >= p.TupleCount() {
		return nil, ErrSlotOutOfRange
	}
	size := p.slotSize(slot)
	if size <= 0 {
		return nil, ErrTupleDeleted
	}
	off := p.slotOffset(slot)
	out := make([]byte, size)
	copy(out, p.Data[off:off+size])
	return out, nil
}

// MarkDelete flips a live slot's size negative, hiding it from GetTuple
// without reclaiming its space.
func (p Page) MarkDelete(slot int32) error {
	if slot < 0 || slot >= p.TupleCount() {
		return ErrSlotOutOfRange
	}
	size := p.slotSize(slot)
	if size < 0 {
		return ErrTupleDeleted
	}
	if size > 0 {
		p.setSlotSize(slot, -size)
	}
	return nil
}

// RollbackDelete flips a mark-deleted slot's size back to positive.
func (p Page) RollbackDelete(slot int32) error {
	if slot < 0 || slot >= p.TupleCount() {
		return ErrSlotOutOfRange
	}
	size := p.slotSize(slot)
	if size < 0 {
		p.setSlotSize(slot, -size)
	}
	return nil
}

// ApplyDelete compacts a mark-deleted (or newly inserted, on undo) slot's
// bytes out of the tuple heap and frees the slot for reuse. Returns the
// deleted bytes for undo purposes.
func (p Page) ApplyDelete(slot int32) ([]byte, error) {
	if slot < 0 || slot >= p.TupleCount() {
		return nil, ErrSlotOutOfRange
	}
	size := p.slotSize(slot)
	if size < 0 {
		size = -size
	}
	off := p.slotOffset(slot)
	deleted := make([]byte, size)
	copy(deleted, p.Data[off:off+size])

	free := p.freeSpacePointer()
	copy(p.Data[free+size:off+size], p.Data[free:off])
	p.setFreeSpacePointer(free + size)
	p.setSlotSize(slot, 0)
	p.setSlotOffset(slot, 0)
	for i := int32(0); i < p.TupleCount(); i++ {
		s := p.slotSize(i)
		o := p.slotOffset(i)
		if s != 0 && o < off {
			p.setSlotOffset(i, o+size)
		}
	}
	return deleted, nil
}

// UpdateTuple overwrites slot's bytes with newData, returning the previous
// bytes. Fails with ErrNoSpace if the new tuple doesn't fit without
// evicting other tuples.
func (p Page) UpdateTuple(slot int32, newData []byte) ([]byte, error) {
	if slot < 0 || slot >= p.TupleCount() {
		return nil, ErrSlotOutOfRange
	}
	oldSize := p.slotSize(slot)
	if oldSize <= 0 {
		return nil, ErrTupleDeleted
	}
	newSize := int32(len(newData))
	if p.FreeSpaceSize() < newSize-oldSize {
		return nil, ErrNoSpace
	}

	oldOff := p.slotOffset(slot)
	old := make([]byte, oldSize)
	copy(old, p.Data[oldOff:oldOff+oldSize])

	free := p.freeSpacePointer()
	copy(p.Data[free+oldSize-newSize:oldOff+oldSize-newSize], p.Data[free:oldOff])
	p.setFreeSpacePointer(free + oldSize - newSize)
	copy(p.Data[oldOff+oldSize-newSize:oldOff+oldSize], newData)
	p.setSlotSize(slot, newSize)
	for i := int32(0); i < p.TupleCount(); i++ {
		o := p.slotOffset(i)
		if p.slotSize(i) != 0 && o < oldOff+oldSize {
			p.setSlotOffset(i, o+oldSize-newSize)
		}
	}
	return old, nil
}

// FirstTupleSlot returns the slot of the first live tuple, or -1 if the
// page holds none.
func (p Page) FirstTupleSlot() int32 {
	for i := int32(0); i < p.TupleCount(); i++ {
		if p.slotSize(i) > 0 {
			return i
		}
	}
	return -1
}

// NextTupleSlot returns the next live tuple slot after cur, or -1.
func (p Page) NextTupleSlot(cur int32) int32 {
	for i := cur + 1; i < p.TupleCount(); i++ {
		if p.slotSize(i) > 0 {
			return i
		}
	}
	return -1
}
