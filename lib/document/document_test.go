package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringKey(t *testing.T) {
	p := Parser{Mode: KeyModeString}

	doc, err := p.Parse([]byte(`{"id": "URS0000", "value": 1.50}` + "\n"))
	require.NoError(t, err)
	assert.Equal(t, StringKey("URS0000"), doc.Key)
	assert.Equal(t, `{"id": "URS0000", "value": 1.50}`, string(doc.Payload))
}

func TestParseIntKey(t *testing.T) {
	p := Parser{Mode: KeyModeInt}

	doc, err := p.Parse([]byte(`{"id": -42, "a": [1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(-42), doc.Key.Int())
	assert.Equal(t, KeyModeInt, doc.Key.Mode())
}

func TestParseCustomField(t *testing.T) {
	p := Parser{Mode: KeyModeString, Field: "urs"}

	doc, err := p.Parse([]byte(`{"id": 1, "urs": "a\"b"}`))
	require.NoError(t, err)
	assert.Equal(t, `a"b`, doc.Key.String())
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		mode KeyMode
		line string
		err  error
	}{
		{"not json", KeyModeString, `{"id": "a",`, ErrMalformedJSON},
		{"empty", KeyModeString, ``, ErrMalformedJSON},
		{"array", KeyModeString, `[{"id": "a"}]`, ErrMalformedJSON},
		{"two values", KeyModeString, `{"id": "a"}{"id": "b"}`, ErrMalformedJSON},
		{"missing", KeyModeString, `{"other": "a"}`, ErrMissingKeyField},
		{"nested only", KeyModeString, `{"x": {"id": "a"}}`, ErrMissingKeyField},
		{"number for string", KeyModeString, `{"id": 1}`, ErrWrongKeyType},
		{"string for int", KeyModeInt, `{"id": "1"}`, ErrWrongKeyType},
		{"float for int", KeyModeInt, `{"id": 1.5}`, ErrWrongKeyType},
		{"overflow", KeyModeInt, `{"id": 92233720368547758070}`, ErrWrongKeyType},
		{"null", KeyModeInt, `{"id": null}`, ErrWrongKeyType},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parser{Mode: c.mode}.Parse([]byte(c.line))
			require.ErrorIs(t, err, c.err)
		})
	}
}

func TestParseUnescape(t *testing.T) {
	// upstream exports write one literal backslash as four characters
	line := []byte(`{"id": "k", "path": "C:\\\\dir"}`)

	_, err := Parser{Mode: KeyModeString}.Parse([]byte(`{"id": "k", "path": "\q"}`))
	require.ErrorIs(t, err, ErrMalformedJSON)

	doc, err := Parser{Mode: KeyModeString, Unescape: true}.Parse(line)
	require.NoError(t, err)
	assert.Equal(t, `{"id": "k", "path": "C:\\dir"}`, string(doc.Payload))

	var decoded struct{ Path string }
	require.NoError(t, json.Unmarshal(doc.Payload, &decoded))
	assert.Equal(t, `C:\dir`, decoded.Path)
}

func TestParseDoesNotAlias(t *testing.T) {
	line := []byte(`{"id": "a"}`)
	doc, err := Parser{}.Parse(line)
	require.NoError(t, err)

	line[1] = 'X'
	assert.Equal(t, `{"id": "a"}`, string(doc.Payload))
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey(KeyModeInt, " 17\n")
	require.NoError(t, err)
	assert.Equal(t, IntKey(17), k)

	_, err = ParseKey(KeyModeInt, "abc")
	require.ErrorIs(t, err, ErrWrongKeyType)

	k, err = ParseKey(KeyModeString, "URS1_9606\r\n")
	require.NoError(t, err)
	assert.Equal(t, "URS1_9606", k.String())
}

func TestKeyAppendJSON(t *testing.T) {
	assert.Equal(t, `"a\"b"`, string(StringKey(`a"b`).AppendJSON(nil)))
	assert.Equal(t, `-3`, string(IntKey(-3).AppendJSON(nil)))
}

func TestKeyMode(t *testing.T) {
	m, err := ParseKeyMode("INT")
	require.NoError(t, err)
	assert.Equal(t, KeyModeInt, m)
	assert.Equal(t, "string", KeyModeString.String())

	_, err = ParseKeyMode("float")
	require.Error(t, err)
}

func TestValidateType(t *testing.T) {
	require.NoError(t, ValidateType("rfam_hits"))
	require.ErrorIs(t, ValidateType(""), ErrInvalidType)
	require.ErrorIs(t, ValidateType("a\x00b"), ErrInvalidType)
	require.ErrorIs(t, ValidateType(string(make([]byte, 300))), ErrInvalidType)
}
