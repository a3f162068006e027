package wal

import (
	"encoding/binary"
	"errors"

	"dinocore/pkg/txn"
)

// RecordType tags the payload that follows a record's header.
type RecordType int32

const (
	Invalid RecordType = iota
	Insert
	MarkDelete
	ApplyDelete
	RollbackDelete
	Update
	Begin
	Commit
	Abort
	NewPage
)

// InvalidLSN is the sentinel LSN meaning "no record" (e.g. the prev-lsn of
// a transaction's first record).
const InvalidLSN int32 = 0

// HeaderSize is the fixed byte length of every record's header, matching
// the field layout of the original ARIES-style log this engine is modeled
// on: four 32-bit fields plus a 32-bit type tag.
const HeaderSize = 20

// Record is one entry of the write-ahead log. LSN, TxnID, and PrevLSN are
// carried as int64 in memory for headroom, but the wire format truncates
// them to int32 to match the fixed 20-byte header.
type Record struct {
	LSN     int64
	TxnID   int64
	PrevLSN int64
	Type    RecordType

	RID      txn.RID
	Tuple    []byte
	OldTuple []byte
	NewTuple []byte

	PrevPageID int32
	PageID     int32
}

// Size returns the serialized byte length of the record.
func (r Record) Size() int32 {
	switch r.Type {
	case Insert, MarkDelete, ApplyDelete, RollbackDelete:
		return HeaderSize + 8 + 4 + int32(len(r.Tuple))
	case Update:
		return HeaderSize + 8 + 4 + int32(len(r.OldTuple)) + 4 + int32(len(r.NewTuple))
	case NewPage:
		return HeaderSize + 8
	default: // Begin, Commit, Abort
		return HeaderSize
	}
}

// Marshal serializes the record into a freshly allocated byte slice.
func (r Record) Marshal() []byte {
	buf := make([]byte, r.Size())
	binary.LittleEndian.PutUint32(buf[0:], uint32(r.Size()))
	binary.LittleEndian.PutUint32(buf[4:], uint32(r.LSN))
	binary.LittleEndian.PutUint32(buf[8:], uint32(r.TxnID))
	binary.LittleEndian.PutUint32(buf[12:], uint32(r.PrevLSN))
	binary.LittleEndian.PutUint32(buf[16:], uint32(r.Type))

	pos := HeaderSize
	switch r.Type {
	case Insert, MarkDelete, ApplyDelete, RollbackDelete:
		binary.LittleEndian.PutUint32(buf[pos:], uint32(r.RID.PageID))
		binary.LittleEndian.PutUint32(buf[pos+4:], uint32(r.RID.Slot))
		pos += 8
		binary.LittleEndian.PutUint32(buf[pos:], uint32(len(r.Tuple)))
		pos += 4
		copy(buf[pos:], r.Tuple)
	case Update:
		binary.LittleEndian.PutUint32(buf[pos:], uint32(r.RID.PageID))
		binary.LittleEndian.PutUint32(buf[pos+4:], uint32(r.RID.Slot))
		pos += 8
		binary.LittleEndian.PutUint32(buf[pos:], uint32(len(r.OldTuple)))
		pos += 4
		copy(buf[pos:], r.OldTuple)
		pos += len(r.OldTuple)
		binary.LittleEndian.PutUint32(buf[pos:], uint32(len(r.NewTuple)))
		pos += 4
		copy(buf[pos:], r.NewTuple)
	case NewPage:
		binary.LittleEndian.PutUint32(buf[pos:], uint32(r.PrevPageID))
		binary.LittleEndian.PutUint32(buf[pos+4:], uint32(r.PageID))
	}
	return buf
}

// ErrTruncated is returned when buf does not contain a complete record,
// signaling recovery's REDO scan to stop (e.g. a torn write at the tail of
// the log left by a crash mid-append).
var ErrTruncated = errors.New("wal: truncated record")

// Unmarshal parses a record from the front of buf, returning the record and
// the number of bytes consumed.
func Unmarshal(buf []byte) (Record, int, error) {
	if len(buf) < HeaderSize {
		return Record{}, 0, ErrTruncated
	}
	size := int32(binary.LittleEndian.Uint32(buf[0:]))
	if size <= 0 || int(size) > len(buf) {
		return Record{}, 0, ErrTruncated
	}
	r := Record{
		LSN:     int64(int32(binary.LittleEndian.Uint32(buf[4:]))),
		TxnID:   int64(int32(binary.LittleEndian.Uint32(buf[8:]))),
		PrevLSN: int64(int32(binary.LittleEndian.Uint32(buf[12:]))),
		Type:    RecordType(binary.LittleEndian.Uint32(buf[16:])),
	}

	pos := HeaderSize
	switch r.Type {
	case Insert, MarkDelete, ApplyDelete, RollbackDelete:
		r.RID = txn.RID{
			PageID: int32(binary.LittleEndian.Uint32(buf[pos:])),
			Slot:   int32(binary.LittleEndian.Uint32(buf[pos+4:])),
		}
		pos += 8
		n := int(binary.LittleEndian.Uint32(buf[pos:]))
		pos += 4
		r.Tuple = append([]byte(nil), buf[pos:pos+n]...)
	case Update:
		r.RID = txn.RID{
			PageID: int32(binary.LittleEndian.Uint32(buf[pos:])),
			Slot:   int32(binary.LittleEndian.Uint32(buf[pos+4:])),
		}
		pos += 8
		n := int(binary.LittleEndian.Uint32(buf[pos:]))
		pos += 4
		r.OldTuple = append([]byte(nil), buf[pos:pos+n]...)
		pos += n
		n = int(binary.LittleEndian.Uint32(buf[pos:]))
		pos += 4
		r.NewTuple = append([]byte(nil), buf[pos:pos+n]...)
	case NewPage:
		r.PrevPageID = int32(binary.LittleEndian.Uint32(buf[pos:]))
		r.PageID = int32(binary.LittleEndian.Uint32(buf[pos+4:]))
	}
	return r, int(size), nil
}
