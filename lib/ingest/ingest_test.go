package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/jstore/lib/common"
	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/document"
	"github.com/ValentinKolb/jstore/lib/store"
	"github.com/ValentinKolb/jstore/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func openStore(t *testing.T, opts lstore.Options) store.IStore {
	t.Helper()
	st, err := lstore.Open(t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func stringSource(docType, name, content string) Source {
	return Source{Type: docType, Name: name, Reader: strings.NewReader(content)}
}

func lines(format string, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString(fmt.Sprintf(format, i))
		sb.WriteString("\n")
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Single stream
// --------------------------------------------------------------------------

func TestIndexStream(t *testing.T) {
	st := openStore(t, lstore.Options{})

	src := stringSource("precompute", "precompute.json", `{"id":"a","n":1}
{"id":"b","n":2}

{"id":"a","n":3}`)
	n, err := IndexStream(context.Background(), st, src, Options{})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	payloads, err := st.Read("precompute", document.StringKey("a"))
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Equal(t, `{"id":"a","n":1}`, string(payloads[0]))
	assert.Equal(t, `{"id":"a","n":3}`, string(payloads[1]))

	types, err := st.DeclaredTypes()
	require.NoError(t, err)
	assert.Equal(t, []string{"precompute"}, types)
}

func TestIndexStreamBatchAtomicity(t *testing.T) {
	st := openStore(t, lstore.Options{BatchSize: 3})

	content := lines(`{"id":"k%d"}`, 7) + `{"id": broken}` + "\n" + `{"id":"late"}` + "\n"
	n, err := IndexStream(context.Background(), st, stringSource("A", "a.json", content), Options{})

	require.ErrorIs(t, err, store.ErrParse)
	require.ErrorIs(t, err, document.ErrMalformedJSON)
	assert.Contains(t, err.Error(), "a.json:8")
	assert.Equal(t, uint64(6), n, "only committed documents are counted")

	// two full batches are committed, the third (k6) was discarded
	for i := 0; i < 7; i++ {
		payloads, err := st.Read("A", document.StringKey(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
		if i < 6 {
			assert.Len(t, payloads, 1, "k%d", i)
		} else {
			assert.Empty(t, payloads, "k%d", i)
		}
	}
}

func TestIndexStreamNothingVisibleOnEarlyFailure(t *testing.T) {
	st := openStore(t, lstore.Options{})

	content := lines(`{"id":"k%d"}`, 10) + `{"other":"x"}` + "\n"
	_, err := IndexStream(context.Background(), st, stringSource("A", "a.json", content), Options{})
	require.ErrorIs(t, err, document.ErrMissingKeyField)

	types, err := st.DeclaredTypes()
	require.NoError(t, err)
	assert.Empty(t, types)
}

func TestIndexStreamUnescape(t *testing.T) {
	st := openStore(t, lstore.Options{})

	// the export writes one literal backslash as four characters
	src := stringSource("A", "a.json", `{"id":"k","path":"C:\\\\dir"}`+"\n")
	_, err := IndexStream(context.Background(), st, src, Options{Unescape: true})
	require.NoError(t, err)

	payloads, err := st.Read("A", document.StringKey("k"))
	require.NoError(t, err)
	require.Len(t, payloads, 1)

	var decoded struct{ Path string }
	require.NoError(t, json.Unmarshal(payloads[0], &decoded))
	assert.Equal(t, `C:\dir`, decoded.Path)
}

func TestIndexStreamIntKeys(t *testing.T) {
	st := openStore(t, lstore.Options{KeyMode: document.KeyModeInt})

	_, err := IndexStream(context.Background(), st, stringSource("A", "a.json", `{"id":"1"}`), Options{})
	require.ErrorIs(t, err, store.ErrParse)
	require.ErrorIs(t, err, document.ErrWrongKeyType)

	_, err = IndexStream(context.Background(), st, stringSource("A", "a.json", `{"uid":17}`), Options{KeyField: "uid"})
	require.NoError(t, err)

	payloads, err := st.Read("A", document.IntKey(17))
	require.NoError(t, err)
	assert.Len(t, payloads, 1)
}

func TestIndexStreamInvalidType(t *testing.T) {
	st := openStore(t, lstore.Options{})

	_, err := IndexStream(context.Background(), st, stringSource("", "x.json", `{"id":"a"}`), Options{})
	require.ErrorIs(t, err, store.ErrInvalidOperation)
}

func TestIndexStreamOpenFailure(t *testing.T) {
	st := openStore(t, lstore.Options{})

	src := FileSource("A", filepath.Join(t.TempDir(), "missing.json"))
	_, err := IndexStream(context.Background(), st, src, Options{})
	require.ErrorIs(t, err, store.ErrStoreUnavailable)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// --------------------------------------------------------------------------
// Fan-in
// --------------------------------------------------------------------------

func TestIndexSourcesTypeCompleteness(t *testing.T) {
	for _, engine := range []db.Implementation{db.ImplPebble, db.ImplLevel, db.ImplMaple} {
		t.Run(string(engine), func(t *testing.T) {
			st := openStore(t, lstore.Options{Engine: engine, BatchSize: 97})

			const perSource = 300
			var sources []Source
			for s := 0; s < 8; s++ {
				docType := fmt.Sprintf("type%d", s%4)
				content := lines(`{"id":"k%d","src":`+fmt.Sprint(s)+`}`, perSource)
				sources = append(sources, stringSource(docType, fmt.Sprintf("src%d", s), content))
			}

			n, err := IndexSources(context.Background(), st, sources, Options{Parallelism: 3, ChannelCapacity: 16})
			require.NoError(t, err)
			assert.Equal(t, uint64(8*perSource), n)

			types, err := st.DeclaredTypes()
			require.NoError(t, err)
			assert.Equal(t, []string{"type0", "type1", "type2", "type3"}, types)

			// every key has one document per source of its type
			for i := 0; i < perSource; i += 37 {
				for _, docType := range types {
					payloads, err := st.Read(docType, document.StringKey(fmt.Sprintf("k%d", i)))
					require.NoError(t, err)
					assert.Len(t, payloads, 2)
				}
			}
		})
	}
}

func TestIndexSourcesOrderWithinSource(t *testing.T) {
	st := openStore(t, lstore.Options{})

	sources := []Source{
		stringSource("A", "one", lines(`{"id":"same","n":%d}`, 200)),
		stringSource("B", "two", lines(`{"id":"same","n":%d}`, 200)),
	}
	_, err := IndexSources(context.Background(), st, sources, Options{Parallelism: 2, ChannelCapacity: 1})
	require.NoError(t, err)

	payloads, err := st.Read("A", document.StringKey("same"))
	require.NoError(t, err)
	require.Len(t, payloads, 200)
	for i, p := range payloads {
		assert.Equal(t, fmt.Sprintf(`{"id":"same","n":%d}`, i), string(p))
	}
}

func TestIndexSourcesFailure(t *testing.T) {
	st := openStore(t, lstore.Options{})

	sources := []Source{
		stringSource("A", "good1", lines(`{"id":"k%d"}`, 1000)),
		stringSource("B", "bad", lines(`{"id":"k%d"}`, 10)+"not json\n"),
		stringSource("C", "good2", lines(`{"id":"k%d"}`, 1000)),
	}
	_, err := IndexSources(context.Background(), st, sources, Options{Parallelism: 2, ChannelCapacity: 4})
	require.ErrorIs(t, err, store.ErrParse)
	assert.Contains(t, err.Error(), "bad:11")

	// the whole pending batch was discarded
	types, err := st.DeclaredTypes()
	require.NoError(t, err)
	assert.Empty(t, types)
}

// slowStore delays every write, so documents queue up in the fan-in channel
type slowStore struct {
	store.IStore
	delay time.Duration
}

func (s *slowStore) Write(docType string, key document.Key, payload []byte) error {
	time.Sleep(s.delay)
	return s.IStore.Write(docType, key, payload)
}

// delayedReader returns content after a delay
type delayedReader struct {
	delay   time.Duration
	content io.Reader
}

func (r *delayedReader) Read(p []byte) (int, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
		r.delay = 0
	}
	return r.content.Read(p)
}

func TestIndexSourcesNoCommitsAfterReadFailure(t *testing.T) {
	st := openStore(t, lstore.Options{BatchSize: 5})
	slow := &slowStore{IStore: st, delay: 5 * time.Millisecond}

	sources := []Source{
		stringSource("A", "good", lines(`{"id":"k%d"}`, 40)),
		{Type: "B", Name: "bad", Reader: &delayedReader{delay: 2 * time.Millisecond, content: strings.NewReader("not json\n")}},
	}
	n, err := IndexSources(context.Background(), slow, sources, Options{Parallelism: 2})
	require.ErrorIs(t, err, store.ErrParse)
	assert.Contains(t, err.Error(), "bad:1")

	// the reader fails while the first batch is still pending
	committed := 0
	for i := 0; i < 40; i++ {
		payloads, err := st.Read("A", document.StringKey(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
		committed += len(payloads)
	}
	assert.LessOrEqual(t, committed, 5)
	assert.Equal(t, uint64(committed), n)
}

func TestIndexSourcesCanceled(t *testing.T) {
	st := openStore(t, lstore.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sources := []Source{stringSource("A", "a", lines(`{"id":"k%d"}`, 10))}
	_, err := IndexSources(ctx, st, sources, Options{})
	require.ErrorIs(t, err, context.Canceled)
}

// --------------------------------------------------------------------------
// Manifest
// --------------------------------------------------------------------------

func TestTypeFromPath(t *testing.T) {
	cases := map[string]string{
		"/data/precompute.json.gz": "precompute",
		"rfam_hits.jsonl":          "rfam_hits",
		"qa.json.zst":              "qa",
		"a.b.json":                 "a.b",
		"plain":                    "plain",
	}
	for path, expected := range cases {
		assert.Equal(t, expected, TypeFromPath(path), path)
	}
}

func TestParseManifest(t *testing.T) {
	manifest := "a.json\n\n  # comment\n/abs/b.json.gz\n-\n"

	sources, err := ParseManifest(strings.NewReader(manifest), "/base")
	require.NoError(t, err)
	require.Len(t, sources, 3)

	assert.Equal(t, "/base/a.json", sources[0].Name)
	assert.Equal(t, "a", sources[0].Type)
	assert.Equal(t, "/abs/b.json.gz", sources[1].Name)
	assert.Equal(t, "b", sources[1].Type)
	assert.Equal(t, "-", sources[2].Name)
}

func TestIndexManifest(t *testing.T) {
	dir := t.TempDir()

	write := func(name, content string) {
		w, err := common.CreateOutput(filepath.Join(dir, name))
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
	write("precompute.json", `{"id":"x","v":1}`+"\n")
	write("rfam_hits.json.gz", `{"id":"x","hit":"RF1"}`+"\n"+`{"id":"y","hit":"RF2"}`+"\n")
	write("qa.json.zst", `{"id":"y","ok":true}`+"\n")

	st := openStore(t, lstore.Options{})
	manifest := "precompute.json\nrfam_hits.json.gz\n\nqa.json.zst\n"
	n, err := IndexManifest(context.Background(), st, strings.NewReader(manifest), Options{ManifestDir: dir})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)

	types, err := st.DeclaredTypes()
	require.NoError(t, err)
	assert.Equal(t, []string{"precompute", "qa", "rfam_hits"}, types)
}
