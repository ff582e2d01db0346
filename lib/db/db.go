package db

import (
	"errors"

	"github.com/ValentinKolb/jstore/lib/document"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplPebble Implementation = "pebble"
	ImplLevel  Implementation = "level"
	ImplMaple  Implementation = "maple"
)

// ParseImplementation converts a flag value to an Implementation.
func ParseImplementation(s string) (Implementation, error) {
	switch impl := Implementation(s); impl {
	case ImplPebble, ImplLevel, ImplMaple:
		return impl, nil
	default:
		return "", errors.New("invalid engine " + s + " (expected pebble, level or maple)")
	}
}

// Policy is the rule by which payloads of the same (type, key) are combined.
type Policy string

const (
	PolicyMergeAppend Policy = "merge-append" // payload bytes are concatenated
	PolicyRowInsert   Policy = "row-insert"   // every payload is a row of its own
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureWrite     Feature = 1 << iota // Support for Write operations
	FeatureRead                          // Support for Read operations
	FeatureBatch                         // Writes are staged and committed atomically
	FeatureRangeScan                     // Support for ScanRange
	FeatureSnapshot                      // State is persisted as a snapshot on Close
	FeatureDurable                       // Every commit is durable on disk
)

func (f Feature) String() string {
	switch f {
	case FeatureWrite:
		return "Write"
	case FeatureRead:
		return "Read"
	case FeatureBatch:
		return "Batch"
	case FeatureRangeScan:
		return "RangeScan"
	case FeatureSnapshot:
		return "Snapshot"
	case FeatureDurable:
		return "Durable"
	default:
		return "Unknown"
	}
}

// MarshalText renders features by name in JSON output
func (f Feature) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

type DatabaseInfo struct {
	SizeBytes         int64          `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	Policy            Policy         `json:"policy"`
	DeclaredTypes     []string       `json:"declared_types"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// Options are passed to every engine on open.
type Options struct {
	KeyMode  document.KeyMode // key mode of the store
	ReadOnly bool             // open without write access
}

// ScanFunc is called by ScanRange once per (key, type) with all payloads of
// that pair in write order. Returning an error stops the scan.
type ScanFunc func(key int64, docType string, payloads [][]byte) error

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrCorrupt is returned if stored bytes cannot be split into JSON values.
	ErrCorrupt = errors.New("stored payload is corrupt")
	// ErrReadOnly is returned for writes on a database opened read-only.
	ErrReadOnly = errors.New("database is read-only")
	// ErrKeyMode is returned if a key does not match the database key mode.
	ErrKeyMode = errors.New("key does not match key mode")
	// ErrUnsupported is returned for operations the implementation does not support.
	ErrUnsupported = errors.New("operation not supported")
)

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// PartitionDB defines an interface for partitioned document databases.
// A database maps (document type, key) pairs to the accumulated payloads
// written for that pair. Implementations differ in their accumulation policy
// but must produce the same observable result: all payloads ever committed for
// a pair, in write order.
//
// Exactly one goroutine may call the write methods (Write, Commit, Discard).
// The read methods are safe for concurrent use, also while a writer is active,
// and never observe a partially committed batch.
type PartitionDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Write stages payload for (docType, key) in the current batch.
	// The first write of an unknown docType also stages its registration.
	Write(docType string, key document.Key, payload []byte) (err error)

	// Commit makes all staged writes visible at once.
	// Either all staged writes become visible or none of them.
	Commit() (err error)

	// Discard drops all staged writes.
	Discard()

	// Pending returns the number of staged writes.
	Pending() (n int)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// DeclaredTypes returns the sorted names of all types with at least one
	// committed write.
	DeclaredTypes() (types []string, err error)

	// Read returns every payload committed for (docType, key) in write order.
	// An empty result is not an error. ErrCorrupt is returned if the stored
	// bytes are not a sequence of JSON values.
	Read(docType string, key document.Key) (payloads [][]byte, err error)

	// ScanRange visits all (key, type) pairs with min <= key <= max ordered by
	// key and then by type name. Only valid for integer keys.
	ScanRange(min, max int64, fn ScanFunc) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database. Staged but uncommitted writes are dropped.
	Close() (err error)
}
