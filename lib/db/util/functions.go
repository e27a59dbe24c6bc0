package util

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	"time"
)

// GenerateSeed returns a random seed for the shard hash of a database instance
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// UintKey is the 64 bit hash of a key
type UintKey uint64

// HashString returns the FNV-1a hash of s, prefixed with seed.
// The result only depends on its inputs, a zero seed gives the same value on every node.
func HashString(s string, seed uint64) UintKey {
	h := fnv.New64a()
	if seed != 0 {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], seed)
		_, _ = h.Write(b[:])
	}
	_, _ = h.Write([]byte(s))
	return UintKey(h.Sum64())
}

// ReplicaID maps a human readable replica name (e.g. node-1) to a raft replica id
func ReplicaID(name string) uint64 {
	id := uint64(HashString(name, 0))
	if id == 0 {
		// dragonboat reserves replica id 0
		return 1
	}
	return id
}
