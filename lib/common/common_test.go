package common

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	content := `{"id":"a","v":1}` + "\n" + `{"id":"b","v":2}` + "\n"

	for _, name := range []string{"plain.json", "packed.json.gz", "packed.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)

			w, err := CreateOutput(path)
			require.NoError(t, err)
			_, err = io.WriteString(w, content)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			r, err := OpenInput(path)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())

			assert.Equal(t, content, string(got))
		})
	}
}

func TestCompressedOutputIsCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json.gz")
	w, err := CreateOutput(path)
	require.NoError(t, err)
	_, err = io.WriteString(w, strings.Repeat(`{"id":"a"}`+"\n", 1000))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Less(t, len(raw), 1000)
	assert.Equal(t, []byte{0x1f, 0x8b}, raw[:2])
}

func TestOpenInputMissing(t *testing.T) {
	_, err := OpenInput(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, logger.WARNING, lvl)

	lvl, err = ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, logger.INFO, lvl)

	_, err = ParseLogLevel("verbose")
	require.Error(t, err)
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Location = "/data/store"

	s := cfg.String()
	assert.Contains(t, s, "STORE")
	assert.Contains(t, s, "/data/store")
	assert.Contains(t, s, "1000000")
	assert.NotContains(t, s, "Metrics File")
}
