// Package db provides a standardized interface for partitioned document databases.
// It defines the PartitionDB interface that allows for consistent interaction
// with various storage engines while abstracting how payloads are accumulated.
//
// The package focuses on:
//   - A unified interface for staging, committing and reading typed documents
//   - Feature discovery through capability flags
//   - Comprehensive metadata reporting
//
// Key Components:
//
//   - PartitionDB Interface: The core interface that all engines must satisfy.
//     A database is a set of partitions, one per document type. Each partition
//     maps a key to the payloads written under it. Writes are staged in a batch
//     (Write) and become visible atomically (Commit). Reads return the payloads
//     of one (type, key) pair in write order (Read) or visit an integer key
//     interval ordered by key and type (ScanRange).
//
//   - Accumulation Policies: Engines either concatenate payload bytes under a
//     single key (PolicyMergeAppend) or store one row per payload
//     (PolicyRowInsert). Callers never depend on the active policy.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method.
//
//   - Database Information: The DatabaseInfo structure reports the implementation,
//     policy, declared types and implementation-specific metadata.
//
// Note on Concurrency:
//   - Single Writer: Write, Commit and Discard must only be called from one
//     goroutine at a time. The ingestion pipeline guarantees this by funnelling
//     all documents through one writer goroutine.
//   - Readers: Read, ScanRange and DeclaredTypes may be called concurrently and
//     never observe a partially committed batch.
//
// Note on Type Registration:
//   - The first write of a type stages the registration of that type in the same
//     batch. A discarded batch therefore never leaves a type declared without
//     documents.
//
// Related Packages:
//
// The engines/pebble package provides the default durable merge-append engine built
// on an LSM tree with a concatenating merge operator.
//
// The engines/level package provides a durable row-insert engine on LevelDB.
//
// The engines/maple package provides an in-memory sharded merge-append engine that
// persists a compressed snapshot on Close.
//
// The util package provides the order preserving key codec and payload helpers shared
// by the engines.
//
// The testing package provides the conformance suite (RunPartitionDBTests) and
// benchmarks (RunPartitionDBBenchmarks) every engine is tested with.
package db
