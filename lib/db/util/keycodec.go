package util

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ValentinKolb/jstore/lib/document"
)

// --------------------------------------------------------------------------
// Order Preserving Key Encoding
// --------------------------------------------------------------------------

/*
 Keys are encoded so that the byte order of the encodings equals the order of the keys:

  - int64:  8 bytes big endian with the sign bit flipped (negative keys sort first)
  - string: the raw bytes with 0x00 escaped as 0x00 0xFF, terminated by 0x00 0x01

 Both encodings are prefix free, so further components (type name, sequence
 number) can be appended without ambiguity.
*/

const (
	escape     byte = 0x00
	escapedNul byte = 0xFF
	terminator byte = 0x01
)

var ErrInvalidEncoding = errors.New("invalid key encoding")

// AppendKey appends the order preserving encoding of k to dst.
func AppendKey(dst []byte, k document.Key) []byte {
	if k.Mode() == document.KeyModeInt {
		return AppendInt(dst, k.Int())
	}
	s := k.String()
	for i := 0; i < len(s); i++ {
		if s[i] == escape {
			dst = append(dst, escape, escapedNul)
		} else {
			dst = append(dst, s[i])
		}
	}
	return append(dst, escape, terminator)
}

// AppendInt appends the encoding of an integer key to dst.
func AppendInt(dst []byte, n int64) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(n)^(1<<63))
}

// DecodeInt decodes an integer key and returns the remaining bytes.
func DecodeInt(b []byte) (int64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("%w: need 8 bytes, got %d", ErrInvalidEncoding, len(b))
	}
	return int64(binary.BigEndian.Uint64(b[:8]) ^ (1 << 63)), b[8:], nil
}

// DecodeKey decodes a key of the given mode and returns the remaining bytes.
func DecodeKey(mode document.KeyMode, b []byte) (document.Key, []byte, error) {
	if mode == document.KeyModeInt {
		n, rest, err := DecodeInt(b)
		return document.IntKey(n), rest, err
	}

	s := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != escape {
			s = append(s, b[i])
			continue
		}
		if i+1 >= len(b) {
			break
		}
		switch b[i+1] {
		case escapedNul:
			s = append(s, escape)
			i++
		case terminator:
			return document.StringKey(string(s)), b[i+2:], nil
		default:
			return document.Key{}, nil, fmt.Errorf("%w: unexpected byte 0x%02x after escape", ErrInvalidEncoding, b[i+1])
		}
	}
	return document.Key{}, nil, fmt.Errorf("%w: missing terminator", ErrInvalidEncoding)
}
