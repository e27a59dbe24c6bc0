package internal

import (
	"github.com/ValentinKolb/dProof/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with metadata)
// --------------------------------------------------------------------------

// Entry stores a value with metadata
type Entry struct {
	Value []byte // Stored data
	Index uint64 // Write index when this entry was created/updated
}

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard represents a partition of the database
type Shard struct {
	Data *xsync.MapOf[string, Entry] // Map of active key-value entries
}

// NewShard creates a new, empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, Entry](),
	}
}

// NewShards creates n empty shards
func NewShards(n int) []*Shard {
	shards := make([]*Shard, n)
	for i := range shards {
		shards[i] = NewShard()
	}
	return shards
}

// GetShard returns the appropriate shard for a given key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}
