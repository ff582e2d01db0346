// Package util provides utility components for
// database implementations that satisfy the db.PartitionDB interface.
//
// The package contains:
//   - keycodec: An order preserving encoding of string and integer keys, used to build
//     composite storage keys whose byte order equals (key, type, sequence) order
//   - payloads: Splitting of concatenated JSON values and payload validation
//   - functions: Hash functions used for sharding and the on-disk size of a directory
//   - statistics: Summary statistics of samples (latencies, shard distribution)
//
// Each component is designed to work with any implementation of the db.PartitionDB interface.
package util
