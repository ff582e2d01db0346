package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/document"
)

// DBFactory opens (or creates) a PartitionDB implementation in dir
type DBFactory func(dir string, opts db.Options) (db.PartitionDB, error)

// RunPartitionDBTests runs a comprehensive test suite for a PartitionDB implementation.
func RunPartitionDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Write&Read", func(t *testing.T) {
			testWriteRead(t, factory)
		})

		t.Run("Accumulation", func(t *testing.T) {
			testAccumulation(t, factory)
		})

		t.Run("UncommittedInvisible", func(t *testing.T) {
			testUncommittedInvisible(t, factory)
		})

		t.Run("Discard", func(t *testing.T) {
			testDiscard(t, factory)
		})

		t.Run("DeclaredTypes", func(t *testing.T) {
			testDeclaredTypes(t, factory)
		})

		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory)
		})

		t.Run("CloseDropsPending", func(t *testing.T) {
			testCloseDropsPending(t, factory)
		})

		t.Run("ReadOnly", func(t *testing.T) {
			testReadOnly(t, factory)
		})

		t.Run("KeyMode", func(t *testing.T) {
			testKeyMode(t, factory)
		})

		t.Run("StringKeys", func(t *testing.T) {
			testStringKeys(t, factory)
		})

		t.Run("ScanRange", func(t *testing.T) {
			testScanRange(t, factory)
		})

		t.Run("ConcurrentReads", func(t *testing.T) {
			testConcurrentReads(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.PartitionDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

func open(t testing.TB, factory DBFactory, dir string, opts db.Options) db.PartitionDB {
	t.Helper()
	database, err := factory(dir, opts)
	if err != nil {
		t.Fatalf("Failed to open database in %s: %v", dir, err)
	}
	return database
}

func mustWrite(t testing.TB, database db.PartitionDB, docType string, key document.Key, payload string) {
	t.Helper()
	if err := database.Write(docType, key, []byte(payload)); err != nil {
		t.Fatalf("Write(%s, %s) failed: %v", docType, key, err)
	}
}

func mustCommit(t testing.TB, database db.PartitionDB) {
	t.Helper()
	if err := database.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
}

func expectPayloads(t testing.TB, database db.PartitionDB, docType string, key document.Key, expected ...string) {
	t.Helper()
	payloads, err := database.Read(docType, key)
	if err != nil {
		t.Fatalf("Read(%s, %s) failed: %v", docType, key, err)
	}
	if len(payloads) != len(expected) {
		t.Fatalf("Read(%s, %s): expected %d payloads, got %d (%q)", docType, key, len(expected), len(payloads), payloads)
	}
	for i := range expected {
		if !bytes.Equal(payloads[i], []byte(expected[i])) {
			t.Errorf("Read(%s, %s)[%d]: expected %s, got %s", docType, key, i, expected[i], payloads[i])
		}
	}
}

func expectTypes(t testing.TB, database db.PartitionDB, expected ...string) {
	t.Helper()
	types, err := database.DeclaredTypes()
	if err != nil {
		t.Fatalf("DeclaredTypes() failed: %v", err)
	}
	if fmt.Sprint(types) != fmt.Sprint(expected) && !(len(types) == 0 && len(expected) == 0) {
		t.Errorf("Expected declared types %v, got %v", expected, types)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testWriteRead(t *testing.T, factory DBFactory) {
	database := open(t, factory, t.TempDir(), db.Options{})
	defer database.Close()

	requireFeature(t, database, db.FeatureWrite|db.FeatureRead)

	key := document.StringKey("URS0000000001")
	mustWrite(t, database, "precompute", key, `{"id":"URS0000000001","v":1}`)
	mustWrite(t, database, "precompute", key, `{"id":"URS0000000001","v":2.50}`)
	mustWrite(t, database, "rfam_hits", key, `{"id":"URS0000000001","hit":"RF00001"}`)

	if n := database.Pending(); n != 3 {
		t.Errorf("Expected 3 pending writes, got %d", n)
	}
	mustCommit(t, database)
	if n := database.Pending(); n != 0 {
		t.Errorf("Expected 0 pending writes after commit, got %d", n)
	}

	expectPayloads(t, database, "precompute", key, `{"id":"URS0000000001","v":1}`, `{"id":"URS0000000001","v":2.50}`)
	expectPayloads(t, database, "rfam_hits", key, `{"id":"URS0000000001","hit":"RF00001"}`)
	expectPayloads(t, database, "precompute", document.StringKey("missing"))
	expectPayloads(t, database, "unknown_type", key)
}

func testAccumulation(t *testing.T, factory DBFactory) {
	database := open(t, factory, t.TempDir(), db.Options{})
	defer database.Close()

	key := document.StringKey("a")
	expected := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		payload := fmt.Sprintf(`{"id":"a","n":%d}`, i)
		expected = append(expected, payload)
		mustWrite(t, database, "example", key, payload)
		// commit in uneven batches
		if i%3 == 0 {
			mustCommit(t, database)
		}
	}
	mustCommit(t, database)

	expectPayloads(t, database, "example", key, expected...)
}

func testUncommittedInvisible(t *testing.T, factory DBFactory) {
	database := open(t, factory, t.TempDir(), db.Options{})
	defer database.Close()

	requireFeature(t, database, db.FeatureBatch)

	key := document.StringKey("a")
	mustWrite(t, database, "example", key, `{"id":"a"}`)

	expectPayloads(t, database, "example", key)
	expectTypes(t, database)

	mustCommit(t, database)
	expectPayloads(t, database, "example", key, `{"id":"a"}`)
	expectTypes(t, database, "example")
}

func testDiscard(t *testing.T, factory DBFactory) {
	database := open(t, factory, t.TempDir(), db.Options{})
	defer database.Close()

	requireFeature(t, database, db.FeatureBatch)

	key := document.StringKey("a")
	mustWrite(t, database, "kept", key, `{"id":"a","kept":true}`)
	mustCommit(t, database)

	mustWrite(t, database, "kept", key, `{"id":"a","kept":false}`)
	mustWrite(t, database, "dropped", key, `{"id":"a"}`)
	database.Discard()

	if n := database.Pending(); n != 0 {
		t.Errorf("Expected 0 pending writes after discard, got %d", n)
	}

	// a discarded batch never leaves a type declared without documents
	expectTypes(t, database, "kept")
	expectPayloads(t, database, "kept", key, `{"id":"a","kept":true}`)
	expectPayloads(t, database, "dropped", key)

	// the type can still be registered by a later batch
	mustWrite(t, database, "dropped", key, `{"id":"a","later":true}`)
	mustCommit(t, database)
	expectTypes(t, database, "dropped", "kept")
	expectPayloads(t, database, "dropped", key, `{"id":"a","later":true}`)
}

func testDeclaredTypes(t *testing.T, factory DBFactory) {
	database := open(t, factory, t.TempDir(), db.Options{})
	defer database.Close()

	expectTypes(t, database)

	for i, docType := range []string{"C", "A", "B", "A", "C"} {
		mustWrite(t, database, docType, document.StringKey(fmt.Sprint(i)), `{}`)
	}
	mustCommit(t, database)

	expectTypes(t, database, "A", "B", "C")

	info := database.GetInfo()
	if fmt.Sprint(info.DeclaredTypes) != "[A B C]" {
		t.Errorf("Expected GetInfo() to report declared types [A B C], got %v", info.DeclaredTypes)
	}
}

func testReopen(t *testing.T, factory DBFactory) {
	dir := t.TempDir()
	opts := db.Options{KeyMode: document.KeyModeInt}

	database := open(t, factory, dir, opts)
	mustWrite(t, database, "A", document.IntKey(7), `{"id":7,"a":1}`)
	mustWrite(t, database, "B", document.IntKey(7), `{"id":7,"b":1}`)
	mustCommit(t, database)
	if err := database.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// open twice in sequence, the results must be identical
	for i := 0; i < 2; i++ {
		database = open(t, factory, dir, opts)
		expectTypes(t, database, "A", "B")
		expectPayloads(t, database, "A", document.IntKey(7), `{"id":7,"a":1}`)
		expectPayloads(t, database, "B", document.IntKey(7), `{"id":7,"b":1}`)
		if err := database.Close(); err != nil {
			t.Fatalf("Close() failed: %v", err)
		}
	}

	// appending after reopen keeps the old payloads
	database = open(t, factory, dir, opts)
	mustWrite(t, database, "A", document.IntKey(7), `{"id":7,"a":2}`)
	mustCommit(t, database)
	if err := database.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	database = open(t, factory, dir, db.Options{KeyMode: document.KeyModeInt, ReadOnly: true})
	defer database.Close()
	expectPayloads(t, database, "A", document.IntKey(7), `{"id":7,"a":1}`, `{"id":7,"a":2}`)
}

func testCloseDropsPending(t *testing.T, factory DBFactory) {
	dir := t.TempDir()

	database := open(t, factory, dir, db.Options{})
	requireFeature(t, database, db.FeatureBatch)
	mustWrite(t, database, "A", document.StringKey("x"), `{"id":"x"}`)
	if err := database.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	database = open(t, factory, dir, db.Options{})
	defer database.Close()
	expectTypes(t, database)
	expectPayloads(t, database, "A", document.StringKey("x"))
}

func testReadOnly(t *testing.T, factory DBFactory) {
	dir := t.TempDir()

	database := open(t, factory, dir, db.Options{})
	mustWrite(t, database, "A", document.StringKey("x"), `{"id":"x"}`)
	mustCommit(t, database)
	if err := database.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	database = open(t, factory, dir, db.Options{ReadOnly: true})
	defer database.Close()

	err := database.Write("A", document.StringKey("y"), []byte(`{"id":"y"}`))
	if !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
	expectPayloads(t, database, "A", document.StringKey("x"), `{"id":"x"}`)
}

func testKeyMode(t *testing.T, factory DBFactory) {
	database := open(t, factory, t.TempDir(), db.Options{KeyMode: document.KeyModeString})
	defer database.Close()

	if err := database.Write("A", document.IntKey(1), []byte(`{"id":1}`)); !errors.Is(err, db.ErrKeyMode) {
		t.Errorf("Expected ErrKeyMode for int key in string database, got %v", err)
	}

	err := database.ScanRange(0, 10, func(int64, string, [][]byte) error { return nil })
	if !errors.Is(err, db.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported for ScanRange on string keys, got %v", err)
	}
}

func testStringKeys(t *testing.T, factory DBFactory) {
	database := open(t, factory, t.TempDir(), db.Options{})
	defer database.Close()

	keys := []string{"a", "ab", "a\x00b", "", "ü", "A"}
	for i, k := range keys {
		mustWrite(t, database, "T", document.StringKey(k), fmt.Sprintf(`{"n":%d}`, i))
	}
	mustCommit(t, database)

	for i, k := range keys {
		expectPayloads(t, database, "T", document.StringKey(k), fmt.Sprintf(`{"n":%d}`, i))
	}
}

func testScanRange(t *testing.T, factory DBFactory) {
	database := open(t, factory, t.TempDir(), db.Options{KeyMode: document.KeyModeInt})
	defer database.Close()

	requireFeature(t, database, db.FeatureRangeScan)

	for k := int64(-2); k <= 5; k++ {
		if k == 3 {
			continue
		}
		// write types in reverse order, the scan must still order them by name
		mustWrite(t, database, "B", document.IntKey(k), fmt.Sprintf(`{"id":%d,"t":"B"}`, k))
		if k%2 == 0 {
			mustWrite(t, database, "A", document.IntKey(k), fmt.Sprintf(`{"id":%d,"t":"A"}`, k))
			mustWrite(t, database, "A", document.IntKey(k), fmt.Sprintf(`{"id":%d,"t":"A2"}`, k))
		}
	}
	mustCommit(t, database)

	var visited []string
	err := database.ScanRange(-1, 4, func(key int64, docType string, payloads [][]byte) error {
		visited = append(visited, fmt.Sprintf("%d/%s/%d", key, docType, len(payloads)))
		return nil
	})
	if err != nil {
		t.Fatalf("ScanRange() failed: %v", err)
	}

	expected := "[-1/B/1 0/A/2 0/B/1 1/B/1 2/A/2 2/B/1 4/A/2 4/B/1]"
	if fmt.Sprint(visited) != expected {
		t.Errorf("Expected scan %s, got %v", expected, visited)
	}

	// payload order inside a group is write order
	err = database.ScanRange(2, 2, func(key int64, docType string, payloads [][]byte) error {
		if docType == "A" && string(payloads[1]) != `{"id":2,"t":"A2"}` {
			t.Errorf("Expected second payload of A to be A2, got %s", payloads[1])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanRange() failed: %v", err)
	}

	// errors returned by fn stop the scan
	stop := errors.New("stop")
	calls := 0
	err = database.ScanRange(-2, 5, func(int64, string, [][]byte) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Expected scan to stop after first error, got %v after %d calls", err, calls)
	}

	// empty interval
	err = database.ScanRange(100, 200, func(int64, string, [][]byte) error {
		t.Errorf("Unexpected visit in empty interval")
		return nil
	})
	if err != nil {
		t.Fatalf("ScanRange() failed: %v", err)
	}
}

func testConcurrentReads(t *testing.T, factory DBFactory) {
	database := open(t, factory, t.TempDir(), db.Options{})
	defer database.Close()

	requireFeature(t, database, db.FeatureBatch)

	const (
		batches   = 50
		batchSize = 4
		readers   = 4
	)
	key := document.StringKey("hot")

	var (
		done   atomic.Bool
		wg     sync.WaitGroup
		failed atomic.Value
	)
	wg.Add(readers)
	for r := 0; r < readers; r++ {
		go func() {
			defer wg.Done()
			for !done.Load() {
				payloads, err := database.Read("T", key)
				if err != nil {
					failed.Store(err)
					return
				}
				// a reader must never observe a partial batch
				if len(payloads)%batchSize != 0 {
					failed.Store(fmt.Errorf("observed %d payloads, not a multiple of %d", len(payloads), batchSize))
					return
				}
			}
		}()
	}

	for b := 0; b < batches; b++ {
		for i := 0; i < batchSize; i++ {
			mustWrite(t, database, "T", key, fmt.Sprintf(`{"b":%d,"i":%d}`, b, i))
		}
		mustCommit(t, database)
	}
	done.Store(true)
	wg.Wait()

	if err, ok := failed.Load().(error); ok {
		t.Fatalf("Concurrent reader failed: %v", err)
	}

	payloads, err := database.Read("T", key)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if len(payloads) != batches*batchSize {
		t.Errorf("Expected %d payloads, got %d", batches*batchSize, len(payloads))
	}
}
