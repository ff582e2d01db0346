// Package store provides the high-level interface of a typed document store with
// batched, atomic ingestion and unified error handling. It serves as an
// abstraction layer over the lower-level db.PartitionDB engines, adding batch
// size management, store metadata and standardized error reporting.
//
// Key Components:
//
//   - IStore Interface: The abstraction the ingestion pipeline and the join engine
//     work with. Writes are staged and committed in batches (automatically when
//     the batch size is reached, explicitly with Flush). A batch is either fully
//     visible or not at all; Abort discards it.
//
//   - Error System: A structured error type (*Error) carrying a return code, a
//     message and, depending on the code, the affected key or the found and
//     expected counts of a range. Every code has a sentinel, so callers can use
//     errors.Is(err, store.ErrKeyNotFound) and errors.As for the details. The
//     underlying cause stays reachable through Unwrap.
//
//   - DBFactory: A function type that opens the underlying db.PartitionDB,
//     providing dependency injection of the storage engine.
//
// Implementations:
//
//   - Local Store (lstore): Opens a store location on the local file system,
//     records engine and key mode in a manifest and delegates to one of the
//     engines in lib/db/engines.
//     Available in the "github.com/ValentinKolb/jstore/lib/store/lstore" package.
package store
