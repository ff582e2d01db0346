package store

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("lookup failed: %w", &Error{Code: RetCKeyNotFound, Msg: "no documents", Key: "x"})

	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.NotErrorIs(t, err, ErrStoreCorrupt)

	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "x", storeErr.Key)
}

func TestErrorUnwrap(t *testing.T) {
	err := WrapError(RetCStoreUnavailable, io.ErrUnexpectedEOF, "could not open %s", "/data")

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "store error (code StoreUnavailable): could not open /data: unexpected EOF", err.Error())
}

func TestIncompleteRangeMessage(t *testing.T) {
	err := &Error{Code: RetCIncompleteRange, Msg: "range 1..10", Found: 9, Expected: 10}

	assert.Contains(t, err.Error(), "found 9 of 10 keys")
	assert.True(t, errors.Is(err, ErrIncompleteRange))
}

func TestRetCodeString(t *testing.T) {
	assert.Equal(t, "ParseError", RetCParseError.String())
	assert.Equal(t, "Unknown", RetCode(99).String())
}
