// Package level implements a durable row-insert engine of jstore on top of
// syndtr/goleveldb.
//
// Instead of concatenating payloads, every document becomes a row of its own.
// The row key orders rows by document key, then type name, then a store wide
// sequence number, so all payloads of a (type, key) pair are adjacent and in
// write order. Reads are prefix iterations, range scans are a single ordered
// iteration over the encoded integer interval.
//
// One commit is one leveldb.Batch containing the rows, the registration rows of
// types seen for the first time and the updated sequence counter. goleveldb
// applies a batch atomically, concurrent readers see all of it or nothing.
package level
