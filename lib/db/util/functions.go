package util

import (
	"io/fs"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// UintKey is an efficient key type based on uint64 for internal hash representation
type UintKey uint64

// HashBytes generates the xxHash64 value of a byte slice
func HashBytes(b []byte) UintKey {
	return UintKey(xxhash.Sum64(b))
}

// HashString is HashBytes for strings
func HashString(s string) UintKey {
	return UintKey(xxhash.Sum64String(s))
}

// --------------------------------------------------------------------------
// File System Helpers
// --------------------------------------------------------------------------

// DirSize returns the summed size of all regular files below dir.
// Files that vanish during the walk are ignored.
func DirSize(dir string) int64 {
	var size int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
