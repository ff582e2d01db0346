package internal

import (
	"github.com/ValentinKolb/jstore/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Shard Type (partition of the database)
// --------------------------------------------------------------------------

// Shard holds a part of the committed entries.
// Keys are type|0x00|encoded key, values the concatenated payloads.
type Shard struct {
	Data *xsync.MapOf[string, []byte]
}

// NewShard creates a new empty shard
func NewShard() *Shard {
	return &Shard{
		Data: xsync.NewMapOf[string, []byte](),
	}
}

// GetShard returns the appropriate shard for a given key hash
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func GetShard[T any](key util.UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	shiftedKey := uint64(key) >> 7
	shardPos := shiftedKey % uint64(len(shards))
	return shards[shardPos]
}

// --------------------------------------------------------------------------
// Staged writes
// --------------------------------------------------------------------------

// Op is a write staged in the current batch
type Op struct {
	Key     string
	Payload []byte
}
