package lstore

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/document"
	"github.com/ValentinKolb/jstore/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var engines = []db.Implementation{db.ImplPebble, db.ImplLevel, db.ImplMaple}

func TestOpenCreatesManifest(t *testing.T) {
	for _, engine := range engines {
		t.Run(string(engine), func(t *testing.T) {
			location := filepath.Join(t.TempDir(), "store")

			st, err := Open(location, Options{Engine: engine, KeyMode: document.KeyModeInt})
			require.NoError(t, err)
			require.NoError(t, st.Close())

			m, err := ReadManifest(location)
			require.NoError(t, err)
			require.NotNil(t, m)
			assert.Equal(t, engine, m.Engine)
			assert.Equal(t, "int", m.KeyMode)
			assert.Equal(t, FormatVersion, m.FormatVersion)
		})
	}
}

func TestOpenValidatesManifest(t *testing.T) {
	location := t.TempDir()

	st, err := Open(location, Options{Engine: db.ImplLevel, KeyMode: document.KeyModeInt})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = Open(location, Options{Engine: db.ImplPebble, KeyMode: document.KeyModeInt})
	require.ErrorIs(t, err, store.ErrStoreUnavailable)

	_, err = Open(location, Options{KeyMode: document.KeyModeString})
	require.ErrorIs(t, err, store.ErrStoreUnavailable)

	// readers may adopt the recorded key mode
	st, err = Open(location, Options{AdoptKeyMode: true, ReadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, document.KeyModeInt, st.KeyMode())
	require.NoError(t, st.Close())
}

func TestOpenReadOnlyMissing(t *testing.T) {
	location := filepath.Join(t.TempDir(), "missing")

	_, err := Open(location, Options{ReadOnly: true})
	require.ErrorIs(t, err, store.ErrStoreUnavailable)

	_, statErr := os.Stat(location)
	assert.True(t, os.IsNotExist(statErr), "read-only open must not create the location")
}

func TestOpenBrokenManifest(t *testing.T) {
	location := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(location, ManifestFile), []byte("format_version: 99\n"), 0o644))

	_, err := Open(location, Options{})
	require.ErrorIs(t, err, store.ErrStoreUnavailable)
}

func TestAutoCommit(t *testing.T) {
	for _, engine := range engines {
		t.Run(string(engine), func(t *testing.T) {
			st, err := Open(t.TempDir(), Options{Engine: engine, BatchSize: 2})
			require.NoError(t, err)
			defer st.Close()

			key := document.StringKey("k")
			for i := 0; i < 5; i++ {
				require.NoError(t, st.Write("A", key, []byte(fmt.Sprintf(`{"id":"k","n":%d}`, i))))
			}

			// two full batches are visible, the fifth write is still staged
			payloads, err := st.Read("A", key)
			require.NoError(t, err)
			assert.Len(t, payloads, 4)

			require.NoError(t, st.Flush())
			payloads, err = st.Read("A", key)
			require.NoError(t, err)
			assert.Len(t, payloads, 5)
		})
	}
}

func TestAbort(t *testing.T) {
	st, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	defer st.Close()

	key := document.StringKey("k")
	require.NoError(t, st.Write("A", key, []byte(`{"id":"k"}`)))
	require.NoError(t, st.Flush())

	require.NoError(t, st.Write("A", key, []byte(`{"id":"k","aborted":true}`)))
	require.NoError(t, st.Write("B", key, []byte(`{"id":"k"}`)))
	assert.Equal(t, 2, st.Abort())
	assert.Equal(t, 0, st.Abort())
	require.NoError(t, st.Flush())

	types, err := st.DeclaredTypes()
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, types)

	payloads, err := st.Read("A", key)
	require.NoError(t, err)
	assert.Len(t, payloads, 1)
}

func TestWriteErrors(t *testing.T) {
	location := t.TempDir()
	st, err := Open(location, Options{KeyMode: document.KeyModeInt})
	require.NoError(t, err)

	err = st.Write("", document.IntKey(1), []byte(`{}`))
	require.ErrorIs(t, err, store.ErrInvalidOperation)

	err = st.Write("A", document.StringKey("x"), []byte(`{}`))
	require.ErrorIs(t, err, store.ErrInvalidOperation)
	require.ErrorIs(t, err, db.ErrKeyMode)
	require.NoError(t, st.Close())

	ro, err := Open(location, Options{KeyMode: document.KeyModeInt, ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()

	err = ro.Write("A", document.IntKey(1), []byte(`{}`))
	require.ErrorIs(t, err, store.ErrInvalidOperation)
	require.ErrorIs(t, err, db.ErrReadOnly)
}

func TestReopenIdempotent(t *testing.T) {
	location := t.TempDir()

	st, err := Open(location, Options{})
	require.NoError(t, err)
	require.NoError(t, st.Write("A", document.StringKey("k"), []byte(`{"id":"k"}`)))
	require.NoError(t, st.Flush())
	require.NoError(t, st.Close())

	for i := 0; i < 3; i++ {
		st, err := Open(location, Options{})
		require.NoError(t, err)
		payloads, err := st.Read("A", document.StringKey("k"))
		require.NoError(t, err)
		assert.Len(t, payloads, 1)
		require.NoError(t, st.Close())
	}
}

func TestCloseTwice(t *testing.T) {
	st, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
}

func TestGetDBInfo(t *testing.T) {
	st, err := Open(t.TempDir(), Options{Engine: db.ImplLevel})
	require.NoError(t, err)
	defer st.Close()

	info, err := st.GetDBInfo()
	require.NoError(t, err)
	assert.Equal(t, db.ImplLevel, info.DbType)
	assert.Equal(t, db.PolicyRowInsert, info.Policy)
}
