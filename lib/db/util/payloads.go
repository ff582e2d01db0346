package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ValentinKolb/jstore/lib/db"
)

// --------------------------------------------------------------------------
// Payload Helpers
// --------------------------------------------------------------------------

// SplitConcatenated splits back-to-back JSON values (as produced by merge-append
// engines) into the individual payloads. The returned slices are copies.
// db.ErrCorrupt is returned if raw is not a sequence of JSON values.
func SplitConcatenated(raw []byte) ([][]byte, error) {
	var payloads [][]byte
	dec := json.NewDecoder(bytes.NewReader(raw))
	for {
		var value json.RawMessage
		err := dec.Decode(&value)
		if errors.Is(err, io.EOF) {
			return payloads, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v (at byte %d)", db.ErrCorrupt, err, dec.InputOffset())
		}
		payloads = append(payloads, value)
	}
}

// ValidatePayload returns db.ErrCorrupt if p is not a single JSON value.
func ValidatePayload(p []byte) error {
	if !json.Valid(p) {
		return fmt.Errorf("%w: invalid json value of %d bytes", db.ErrCorrupt, len(p))
	}
	return nil
}

// SizeOf returns the summed length of all payloads.
func SizeOf(payloads [][]byte) int64 {
	var n int64
	for _, p := range payloads {
		n += int64(len(p))
	}
	return n
}
