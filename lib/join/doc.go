// Package join implements the query side of jstore: it joins the documents of
// all declared types for a key into one JSON object.
//
// For the declared types A and B (sorted by name) the object of key "x" is
//
//	{"id":"x","A":[{...},{...}],"B":[]}
//
// The key field name is configurable (Options.KeyField). Every declared type
// appears in every object, types without documents for the key as an empty
// array. Payloads are copied verbatim in the order they were written. The
// declared types are read once when the query starts, types added while the
// query runs are not part of its objects.
//
// Lookup:
//
// Lookup reads one key per line and writes one object per line, in request
// order. Keys are resolved in windows of Options.WindowSize keys by up to
// Options.Parallelism goroutines (errgroup), each window is written before the
// next one is read. A key without any document is handled by the missing key
// policy:
//
//   - fail (default): the lookup stops with a RetCKeyNotFound error. Objects of
//     earlier keys were already written.
//   - warn-and-skip: a warning is logged and the key is omitted.
//
// Keys whose payloads are corrupt are always omitted, the lookup continues and
// returns a RetCStoreCorrupt error listing them once all other keys are done.
//
// Range extraction:
//
// ExtractRange writes the objects of all keys in [min, max] of an integer
// store in ascending key order. It relies on db.FeatureRangeScan. A range is
// expected to be complete: if a key in the interval has no documents at all,
// the objects of all found keys are still written and a RetCIncompleteRange
// error reports the found and expected counts. Corrupt payloads end the
// extraction immediately.
//
// Both operations return Stats, whose State follows
//
//	Opened -> Scanning -> Emitting -> Closed
//
// and ends in Failed when an error is returned.
package join
