// Package ingest implements the ingestion pipeline of jstore: it turns streams of
// JSON lines into documents and writes them to a store.
//
// Single stream:
//
// IndexStream reads one source line by line, parses every non-blank line with
// document.Parser and writes it to the store. The first failure ends the run.
//
// Fan-in:
//
// IndexSources (and IndexManifest, which reads the list of inputs from a file)
// reads many sources concurrently:
//
//	source 1 ──┐
//	source 2 ──┼──> bounded channel ──> writer ──> store
//	source n ──┘
//
// At most Parallelism sources are open at the same time (errgroup with a
// limit). The channel has ChannelCapacity slots, so slow writes apply
// backpressure to the readers. The writer is the only goroutine touching the
// store, it tracks progress (documents/second from a go-metrics Meter, logged
// at most once per ProgressInterval) and logs every document type seen for the
// first time.
//
// Failure semantics:
//
// Any error (unreadable input, malformed line, store failure) cancels the run.
// The writer discards the pending batch, so none of its documents become
// visible, and the first error is returned. Batches committed earlier stay in
// the store. Parse errors are *store.Error values with code RetCParseError
// naming the source and line number.
//
// Document types of manifest entries are derived from the file names, see
// TypeFromPath.
package ingest
