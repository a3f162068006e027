// Package hash provides the raw hash functions the pagetable's extendible
// hash table is parameterized over. Keeping them out of pagetable itself
// lets any int64-keyed table pick whichever hash family fits: xxHash for
// speed, MurmurHash3 when a different bit-mixing is wanted for a table
// sharing the same key space (e.g. to decorrelate directory splits between
// two independently-hashed tables over the same keys).
package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

func varint(key int64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutVarint(buf, key)
	return buf[:n]
}

// XxHasher hashes key with xxHash.
func XxHasher(key int64) uint64 {
	return xxhash.Sum64(varint(key))
}

// MurmurHasher hashes key with MurmurHash3.
func MurmurHasher(key int64) uint64 {
	return murmur3.Sum64(varint(key))
}
