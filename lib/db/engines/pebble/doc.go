// Package pebble implements the default, durable merge-append engine of jstore on
// top of the cockroachdb/pebble LSM tree.
//
// Every document is written as a pebble merge operand under the key
// d|type|0x00|encoded key. The ConcatenateMerger resolves all operands of a key
// to the concatenation of their bytes in write order, so a read returns one
// value that is split back into the individual payloads by a streaming JSON
// decoder (util.SplitConcatenated). Nothing is read-modify-written during
// ingestion, which keeps write cost independent of the accumulated size.
//
// The merger is a value passed to pebble.Open. Its name is persisted by pebble,
// reopening a location with a different merger fails.
//
// Batches:
//   - Write stages operands in a pebble.Batch.
//   - Commit applies the batch synchronously. If the batch contains the first
//     document of a type, the sorted list of declared types (stored under the
//     metadata key m|types) is rewritten in the same batch.
//   - Discard closes the batch without applying it.
//
// Range scans read every key of the interval for every declared type in name
// order. This keeps the engine independent of iterator APIs and is efficient for
// the dense integer keys range extraction is used with.
//
// Usage:
//
//	database, err := pebble.NewPebbleDB("/data/store/pebble", db.Options{KeyMode: document.KeyModeInt})
//	if err != nil {
//		return err
//	}
//	defer database.Close()
package pebble
