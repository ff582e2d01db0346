package pebble

import (
	"io"

	pebbledb "github.com/cockroachdb/pebble"
)

// MergerName is persisted by pebble in the OPTIONS file. A location written
// with this merger can only be reopened with a merger of the same name.
const MergerName = "jstore.concatenate"

// ConcatenateMerger resolves all merge operands of a key to the back-to-back
// concatenation of their bytes, oldest first. It is passed to pebble.Open
// explicitly, there is no global registration.
var ConcatenateMerger = &pebbledb.Merger{
	Name: MergerName,
	Merge: func(key, value []byte) (pebbledb.ValueMerger, error) {
		// pebble may reuse value after Merge returns
		return &concatenation{buf: append([]byte(nil), value...)}, nil
	},
}

// concatenation implements pebble.ValueMerger
type concatenation struct {
	buf []byte
}

// MergeNewer appends an operand written after all operands seen so far
func (c *concatenation) MergeNewer(value []byte) error {
	c.buf = append(c.buf, value...)
	return nil
}

// MergeOlder prepends an operand written before all operands seen so far
func (c *concatenation) MergeOlder(value []byte) error {
	buf := make([]byte, 0, len(value)+len(c.buf))
	buf = append(buf, value...)
	c.buf = append(buf, c.buf...)
	return nil
}

func (c *concatenation) Finish(includesBase bool) ([]byte, io.Closer, error) {
	return c.buf, nil, nil
}
