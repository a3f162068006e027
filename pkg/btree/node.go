// Package btree implements a concurrent B+Tree index over the buffer pool,
// with latch-crabbing on the read and write paths and full delete-side
// coalesce/redistribute (the piece a first pass at this structure usually
// leaves out).
package btree

import (
	"encoding/binary"

	"dinocore/pkg/disk"
)

// InvalidPageID mirrors table.InvalidPageID for btree pages, which live in
// their own pool/page-file and so can't import the table package's sentinel
// without a needless cross-package coupling.
const InvalidPageID int32 = -1

type nodeType uint8

const (
	internalNodeType nodeType = 0
	leafNodeType     nodeType = 1
)

// Shared header layout: a one-byte node type tag followed by a 4-byte key
// count. Leaf and internal pages both start this way so the type can be
// read off a page before deciding how to interpret the rest of it.
const (
	offNodeType = 0
	offNumKeys  = 4
	headerSize  = 8
)

func peekNodeType(data []byte) nodeType {
	if data[offNodeType] == byte(leafNodeType) {
		return leafNodeType
	}
	return internalNodeType
}

func readNumKeys(data []byte) int {
	return int(int32(binary.LittleEndian.Uint32(data[offNumKeys:])))
}

func writeNumKeys(data []byte, n int) {
	binary.LittleEndian.PutUint32(data[offNumKeys:], uint32(int32(n)))
}

// Leaf layout: header, next-leaf page id, then a packed array of
// (key int64, rid.PageID int32, rid.Slot int32) entries. leafCapacity is how
// many entries physically fit; leafMaxSize is one less, reserving the extra
// slot an insert temporarily needs before a full leaf is split.
const (
	offLeafNext  = headerSize
	leafHdrSize  = offLeafNext + 4
	leafEntrySz  = 8 + 4 + 4
	leafCapacity = int((disk.PageSize - leafHdrSize) / leafEntrySz)
	leafMaxSize  = leafCapacity - 1
	leafMinSize  = leafMaxSize / 2
)

// Internal layout: header, then a fixed array of internalCapacity keys
// followed by a fixed array of internalCapacity+1 child page ids, sized so
// the arrays can briefly hold one more key/child than internalMaxSize
// allows while an insertAfter is pending a split.
const (
	internalKeySz     = 8
	internalChildSz   = 4
	internalCapacity  = int((disk.PageSize - headerSize - internalChildSz) / (internalKeySz + internalChildSz))
	internalMaxSize   = internalCapacity - 1
	internalMinSize   = internalMaxSize / 2
	offInternalKeys   = headerSize
	internalKeysBytes = internalCapacity * internalKeySz
	offInternalKids   = offInternalKeys + internalKeysBytes
)
