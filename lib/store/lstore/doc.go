// Package lstore implements a local, single-node document store based on the
// store.IStore interface. It provides a thin wrapper around one of the
// db.PartitionDB engines with automatic batch management.
//
// Store Layout:
//
//	<location>/jstore.yaml     manifest: format version, engine, key mode
//	<location>/<engine>/       files of the engine (pebble, level or maple)
//
// Implementation Details:
//
//   - Open or Create: Open creates a missing location (unless read-only) and
//     writes the manifest. Opening an existing location validates the manifest:
//     a different engine or key mode than the recorded one fails with
//     RetCStoreUnavailable. Readers may adopt the recorded key mode instead.
//
//   - Batch Management: Writes are staged in the engine. Once BatchSize writes
//     are staged the batch is committed. Flush commits the rest, Abort discards
//     it. Commits are recorded in the process metrics (documents written,
//     batches, commit latency and batch sizes).
//
//   - Error Mapping: Engine errors are converted to *store.Error values
//     (db.ErrCorrupt becomes RetCStoreCorrupt, read-only and key mode violations
//     become RetCInvalidOperation) with the engine error as cause.
//
// Thread Safety:
//
//	Write, Flush and Abort must be called from a single goroutine (the ingestion
//	pipeline funnels all documents through one writer). Reads are safe for
//	concurrent use and never observe a partially committed batch.
//
// Usage Example:
//
//	st, err := lstore.Open("/data/store", lstore.Options{KeyMode: document.KeyModeInt})
//	if err != nil {
//		return err
//	}
//	defer st.Close()
package lstore
