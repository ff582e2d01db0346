// Package cmd implements the command-line interface of jstore. It provides a
// flat command structure for building stores from JSON-Lines exports and for
// querying them.
//
// The package is organized into several subpackages:
//
//   - index: Commands that build a store (index, index-many)
//   - query: Commands that read a store (lookup, extract-range, info)
//   - perf: A synthetic benchmark of the storage engines
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through an environment variable with the prefix
// JSTORE_, dashes become underscores (--batch-size -> JSTORE_BATCH_SIZE).
// Variables are also read from .env and .env.local in the working directory.
//
// Documents are only ever written to stdout or the given output file, logs go
// to stderr. A failing command exits with the return code of the store error
// that caused it (see store.RetCode), or 1 for other errors.
//
// See jstore --help for a list of all commands.
package cmd
