package store

import (
	"fmt"

	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/document"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that opens the db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func(dir string, opts db.Options) (db.PartitionDB, error)

// IStore is the interface for interacting with a typed document store.
// All errors returned are of type *Error.
//
// Write, Flush and Abort must be called from a single goroutine. All other
// methods are safe for concurrent use.
type IStore interface {
	// Write stages a document. Staged writes are committed automatically once
	// the configured batch size is reached.
	Write(docType string, key document.Key, payload []byte) (err error)
	// Flush commits all staged writes atomically.
	Flush() (err error)
	// Abort discards all staged writes and returns their number. Earlier
	// commits are not affected.
	Abort() (discarded int)
	// DeclaredTypes returns the sorted names of all types with committed documents.
	DeclaredTypes() (types []string, err error)
	// Read returns all committed payloads of (docType, key) in write order.
	Read(docType string, key document.Key) (payloads [][]byte, err error)
	// ScanRange visits all (key, type) pairs of an integer interval ordered by
	// key and then by type name.
	ScanRange(min, max int64, fn db.ScanFunc) (err error)
	// KeyMode returns the key mode recorded for the store.
	KeyMode() (mode document.KeyMode)
	// Location returns the directory of the store.
	Location() (location string)
	// GetDBInfo returns metadata about the database underlying the store.
	GetDBInfo() (info db.DatabaseInfo, err error)
	// Close closes the store. Staged writes that were not flushed are dropped.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and, depending on the code, further details.
type Error struct {
	Code     RetCode // The return code
	Msg      string  // The error message
	Key      string  // The affected key(s), if any
	Found    uint64  // Number of keys found (RetCIncompleteRange)
	Expected uint64  // Number of keys expected (RetCIncompleteRange)
	Err      error   // The underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("store error (code %s): %s", e.Code, e.Msg)
	if e.Code == RetCIncompleteRange {
		msg += fmt.Sprintf(" (found %d of %d keys)", e.Found, e.Expected)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
// This allows errors.Is(err, store.ErrKeyNotFound) style checks.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new Error with the given code and message wrapping err.
func WrapError(code RetCode, err error, format string, args ...any) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// Sentinels for errors.Is checks
var (
	ErrInternal             = NewError(RetCInternalError, "")
	ErrUnsupportedOperation = NewError(RetCUnsupportedOperation, "")
	ErrInvalidOperation     = NewError(RetCInvalidOperation, "")
	ErrParse                = NewError(RetCParseError, "")
	ErrStoreUnavailable     = NewError(RetCStoreUnavailable, "")
	ErrStoreCorrupt         = NewError(RetCStoreCorrupt, "")
	ErrKeyNotFound          = NewError(RetCKeyNotFound, "")
	ErrIncompleteRange      = NewError(RetCIncompleteRange, "")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCParseError                          // 4: An input line could not be parsed.
	RetCStoreUnavailable                    // 5: The store location cannot be opened.
	RetCStoreCorrupt                        // 6: Stored bytes cannot be decoded.
	RetCKeyNotFound                         // 7: A requested key has no documents.
	RetCIncompleteRange                     // 8: A key range has gaps.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCParseError:
		return "ParseError"
	case RetCStoreUnavailable:
		return "StoreUnavailable"
	case RetCStoreCorrupt:
		return "StoreCorrupt"
	case RetCKeyNotFound:
		return "KeyNotFound"
	case RetCIncompleteRange:
		return "IncompleteRange"
	default:
		return "Unknown"
	}
}
