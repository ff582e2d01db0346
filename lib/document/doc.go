// Package document turns single JSON-Lines records into typed documents.
//
// A document is one JSON object per line. Exactly one top-level field (by
// default "id") carries the key the document is indexed and later joined
// under. The key is either a string or a signed 64-bit integer, depending on
// the KeyMode the surrounding store was created with.
//
// The payload of a document is the original line (after the optional
// backslash unescape, see Unescape) and is never re-serialized, so numeric
// precision and field order survive a round trip through the store.
//
// Parsing is a pure function. Every failure is reported as one of the
// sentinel errors ErrMalformedJSON, ErrMissingKeyField or ErrWrongKeyType,
// wrapped with a short preview of the offending line.
package document
