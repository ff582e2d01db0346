// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.PartitionDB interface.
//
// The package contains:
//   - testing: A comprehensive test suite for validating conformance to the PartitionDB
//     interface contract (write order, batch atomicity, declared types, reopen,
//     read-only mode, key encodings and range scans)
//   - benchmark: Performance tests for measuring throughput of common database operations
//
// Every engine runs the same suite, so all of them produce the same observable
// results regardless of their accumulation policy.
//
// Example usage:
//
//	// Running the standard test suite
//	dbtesting.RunPartitionDBTests(t, "MyDatabase", NewMyDatabase)
//
//	// Running performance benchmarks
//	dbtesting.RunPartitionDBBenchmarks(b, "MyDatabase", NewMyDatabase)
package testing
