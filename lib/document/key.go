package document

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Key Modes
// --------------------------------------------------------------------------

// KeyMode selects the scalar type of document keys. It is chosen once per
// store and fixed for its lifetime.
type KeyMode uint8

const (
	KeyModeString KeyMode = iota // keys are JSON strings
	KeyModeInt                   // keys are JSON integers (int64)
)

func (m KeyMode) String() string {
	switch m {
	case KeyModeString:
		return "string"
	case KeyModeInt:
		return "int"
	default:
		return "unknown"
	}
}

// ParseKeyMode converts the textual representation used in flags and
// manifests to a KeyMode.
func ParseKeyMode(s string) (KeyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str":
		return KeyModeString, nil
	case "int", "integer":
		return KeyModeInt, nil
	default:
		return 0, fmt.Errorf("invalid key mode %q (expected string or int)", s)
	}
}

// --------------------------------------------------------------------------
// Key
// --------------------------------------------------------------------------

// Key is the value documents are grouped and joined by.
// The zero value is the empty string key.
type Key struct {
	mode KeyMode
	str  string
	num  int64
}

// StringKey returns a string key.
func StringKey(s string) Key {
	return Key{mode: KeyModeString, str: s}
}

// IntKey returns an integer key.
func IntKey(n int64) Key {
	return Key{mode: KeyModeInt, num: n}
}

// ParseKey parses the textual form of a key, e.g. a line of a lookup request
// stream. Surrounding whitespace is ignored.
func ParseKey(mode KeyMode, text string) (Key, error) {
	text = strings.TrimSpace(text)
	switch mode {
	case KeyModeString:
		return StringKey(text), nil
	case KeyModeInt:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q is not a 64 bit integer", ErrWrongKeyType, text)
		}
		return IntKey(n), nil
	default:
		return Key{}, fmt.Errorf("unknown key mode %d", mode)
	}
}

// Mode returns the key mode of k.
func (k Key) Mode() KeyMode {
	return k.mode
}

// Int returns the integer value of an integer key and 0 otherwise.
func (k Key) Int() int64 {
	return k.num
}

// String returns the plain textual form of the key.
func (k Key) String() string {
	if k.mode == KeyModeInt {
		return strconv.FormatInt(k.num, 10)
	}
	return k.str
}

// AppendJSON appends the JSON encoding of the key to dst.
func (k Key) AppendJSON(dst []byte) []byte {
	if k.mode == KeyModeInt {
		return strconv.AppendInt(dst, k.num, 10)
	}
	b, _ := json.Marshal(k.str) // marshalling a string cannot fail
	return append(dst, b...)
}
