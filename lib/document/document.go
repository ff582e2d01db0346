package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/buger/jsonparser"
)

// DefaultKeyField is the conventional name of the key field.
const DefaultKeyField = "id"

// maximum length of a document type name
const maxTypeLen = 255

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrMalformedJSON is returned if a line is not a single JSON object.
	ErrMalformedJSON = errors.New("malformed json")
	// ErrMissingKeyField is returned if the key field is absent.
	ErrMissingKeyField = errors.New("missing key field")
	// ErrWrongKeyType is returned if the key field is not of the expected scalar type.
	ErrWrongKeyType = errors.New("wrong key type")
	// ErrInvalidType is returned for unusable document type names.
	ErrInvalidType = errors.New("invalid document type")
)

// --------------------------------------------------------------------------
// Document and Parser
// --------------------------------------------------------------------------

// Document is a parsed line: the extracted key plus the unmodified JSON text.
type Document struct {
	Key     Key
	Payload []byte
}

// Parser extracts keys from JSON lines.
type Parser struct {
	Mode     KeyMode // scalar type of the key field
	Field    string  // name of the key field, DefaultKeyField if empty
	Unescape bool    // undo upstream double escaping of backslashes before parsing
}

func (p Parser) field() string {
	if p.Field == "" {
		return DefaultKeyField
	}
	return p.Field
}

// Parse parses one line of JSON text. The returned payload is a copy and does
// not alias line.
func (p Parser) Parse(line []byte) (Document, error) {
	line = bytes.TrimRight(line, "\r\n")
	if p.Unescape {
		line = Unescape(line)
	}
	payload := bytes.TrimSpace(line)

	if len(payload) == 0 || payload[0] != '{' || !json.Valid(payload) {
		return Document{}, fmt.Errorf("%w: %s", ErrMalformedJSON, preview(payload))
	}

	value, valueType, _, err := jsonparser.Get(payload, p.field())
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return Document{}, fmt.Errorf("%w %q: %s", ErrMissingKeyField, p.field(), preview(payload))
	} else if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	var key Key
	switch p.Mode {
	case KeyModeString:
		if valueType != jsonparser.String {
			return Document{}, fmt.Errorf("%w: field %q must be a string, got %s", ErrWrongKeyType, p.field(), valueType)
		}
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}
		key = StringKey(s)
	case KeyModeInt:
		if valueType != jsonparser.Number {
			return Document{}, fmt.Errorf("%w: field %q must be an integer, got %s", ErrWrongKeyType, p.field(), valueType)
		}
		n, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return Document{}, fmt.Errorf("%w: field %q must be a 64 bit integer, got %s", ErrWrongKeyType, p.field(), value)
		}
		key = IntKey(n)
	default:
		return Document{}, fmt.Errorf("unknown key mode %d", p.Mode)
	}

	return Document{
		Key:     key,
		Payload: bytes.Clone(payload),
	}, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

var (
	doubleBackslash = []byte(`\\`)
	singleBackslash = []byte(`\`)
)

// Unescape replaces every two-character sequence `\\` with a single
// backslash. Upstream exports double escape backslashes, so a JSON string
// containing one literal backslash arrives as four characters.
func Unescape(line []byte) []byte {
	if !bytes.Contains(line, doubleBackslash) {
		return line
	}
	return bytes.ReplaceAll(line, doubleBackslash, singleBackslash)
}

// ValidateType checks that name can be used as a document type.
func ValidateType(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidType)
	}
	if len(name) > maxTypeLen {
		return fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidType, name[:32]+"...", maxTypeLen)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: %q is not valid utf-8", ErrInvalidType, name)
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c < 0x20 || c == 0x7f {
			return fmt.Errorf("%w: %q contains control characters", ErrInvalidType, name)
		}
	}
	return nil
}

// preview shortens a line for error messages
func preview(line []byte) string {
	const max = 120
	if len(line) <= max {
		return string(line)
	}
	return string(line[:max]) + "..."
}
