package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/jstore/lib/store"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args. Flag values and viper keep state
// between executions, both are reset first.
func run(t *testing.T, args ...string) error {
	t.Helper()
	reset := func(f *pflag.Flag) {
		require.NoError(t, f.Value.Set(f.DefValue))
		f.Changed = false
	}
	RootCmd.PersistentFlags().VisitAll(reset)
	for _, c := range RootCmd.Commands() {
		c.Flags().VisitAll(reset)
	}
	viper.Reset()

	RootCmd.SetArgs(args)
	return RootCmd.Execute()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIndexAndQuery(t *testing.T) {
	dir := t.TempDir()
	location := filepath.Join(dir, "store")

	// four backslashes in the file, unescaped to two
	precompute := writeFile(t, dir, "precompute.jsonl", `{"id":7,"path":"C:\\\\dir"}`+"\n")
	raw := writeFile(t, dir, "raw.jsonl", `{"id":7,"raw":"a\\\\b"}`+"\n")
	keys := writeFile(t, dir, "keys.txt", "7\n")

	require.NoError(t, run(t, "index", "precompute", precompute, location, "--key-mode", "int"))

	// no --key-mode: the integer key mode of the store is adopted
	require.NoError(t, run(t, "index", "raw", raw, location, "--unescape=false"))

	expected := `{"id":7,"precompute":[{"id":7,"path":"C:\\dir"}],"raw":[{"id":7,"raw":"a\\\\b"}]}` + "\n"

	out := filepath.Join(dir, "lookup.jsonl")
	require.NoError(t, run(t, "lookup", location, keys, out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, expected, string(got))

	out = filepath.Join(dir, "range.jsonl")
	require.NoError(t, run(t, "extract-range", location, "7", "7", out))
	got, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, expected, string(got))

	// an explicitly set key mode must match the store
	err = run(t, "lookup", location, keys, filepath.Join(dir, "mismatch.jsonl"), "--key-mode", "string")
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)
}

func TestIndexInvalidType(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "in.jsonl", `{"id":"a"}`+"\n")
	assert.Error(t, run(t, "index", "", input, filepath.Join(dir, "store")))
}

func TestLookupMissingStore(t *testing.T) {
	dir := t.TempDir()
	keys := writeFile(t, dir, "keys.txt", "a\n")
	err := run(t, "lookup", filepath.Join(dir, "nothing"), keys)
	assert.ErrorIs(t, err, store.ErrStoreUnavailable)

	_, statErr := os.Stat(filepath.Join(dir, "nothing"))
	assert.True(t, os.IsNotExist(statErr), "a read-only lookup must not create a store")
}
