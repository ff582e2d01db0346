// Package maple implements an in-memory merge-append engine of jstore.
//
// Committed data lives in a fixed number of shards, each a lock-free
// xsync.MapOf. An entry maps type|0x00|encoded key to the concatenated payloads
// of that pair. The shard of an entry is chosen from the xxHash64 of its key.
//
// Batches:
//
// Write copies the payload into a list of staged operations. Commit applies the
// whole list while holding the write side of a RWMutex, readers hold the read
// side, so a reader never sees a partially applied batch. The first document of
// a type registers the type in the same critical section.
//
// Persistence:
//
// maple keeps all data in memory while the database is open. On Close the state
// is written as a zstd compressed snapshot (maple.snap.zst) into the database
// directory. The snapshot is written to a temporary file which is renamed over
// the old one, so a crash during Close leaves the previous snapshot intact. Data
// committed after the last successful Close is lost on a crash, which is why
// maple does not advertise db.FeatureDurable.
//
// Snapshot layout (little endian):
//
//	magic "JSTMAPLE" | version | key mode
//	type count  | { length | name }
//	entry count | { key length | key | value length | value }
//
// Locking:
//
// A writer creates the file LOCK exclusively and removes it on Close. A second
// writer fails with ErrLocked. Read-only opens do not take the lock and see the
// last snapshot. If a writer crashed the LOCK file has to be removed by hand.
//
// Thread Safety:
//   - Write, Commit and Discard must be called from a single goroutine.
//   - Read, ScanRange, DeclaredTypes and GetInfo are safe for concurrent use.
package maple
