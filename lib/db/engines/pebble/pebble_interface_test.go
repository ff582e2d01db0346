package pebble

import (
	"testing"

	"github.com/ValentinKolb/jstore/lib/db"
	dbtesting "github.com/ValentinKolb/jstore/lib/db/testing"
	"github.com/ValentinKolb/jstore/lib/document"
)

func Test(t *testing.T) {
	dbtesting.RunPartitionDBTests(t, "PebbleDB", NewPebbleDB)
}

func Benchmark(b *testing.B) {
	dbtesting.RunPartitionDBBenchmarks(b, "PebbleDB", NewPebbleDB)
}

func TestConcatenation(t *testing.T) {
	vm, err := ConcatenateMerger.Merge([]byte("k"), []byte(`{"n":2}`))
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	if err := vm.MergeNewer([]byte(`{"n":3}`)); err != nil {
		t.Fatalf("MergeNewer() failed: %v", err)
	}
	if err := vm.MergeOlder([]byte(`{"n":1}`)); err != nil {
		t.Fatalf("MergeOlder() failed: %v", err)
	}

	value, closer, err := vm.Finish(true)
	if err != nil {
		t.Fatalf("Finish() failed: %v", err)
	}
	if closer != nil {
		t.Errorf("Expected no closer")
	}
	if string(value) != `{"n":1}{"n":2}{"n":3}` {
		t.Errorf("Expected operands in write order, got %s", value)
	}
}

func TestMergeOperandIsCopied(t *testing.T) {
	operand := []byte(`{"n":1}`)
	vm, err := ConcatenateMerger.Merge([]byte("k"), operand)
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}
	operand[1] = 'X'

	value, _, _ := vm.Finish(true)
	if string(value) != `{"n":1}` {
		t.Errorf("Merge operand was aliased: %s", value)
	}
}

func TestDocKeyLayout(t *testing.T) {
	a := docKey("A", document.StringKey("x"))
	ab := docKey("AB", document.StringKey("x"))

	if a[0] != prefixDoc {
		t.Errorf("Expected document prefix %q, got %q", prefixDoc, a[0])
	}
	// type "A" must not be a prefix of type "AB"
	if string(ab[:len(a)]) == string(a) {
		t.Errorf("Document key of type A is a prefix of type AB")
	}
}

func TestReopenWithMerger(t *testing.T) {
	dir := t.TempDir()
	opts := db.Options{KeyMode: document.KeyModeString}

	database, err := NewPebbleDB(dir, opts)
	if err != nil {
		t.Fatalf("NewPebbleDB() failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := database.Write("A", document.StringKey("x"), []byte(`{"id":"x"}`)); err != nil {
			t.Fatalf("Write() failed: %v", err)
		}
		if err := database.Commit(); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	database, err = NewPebbleDB(dir, db.Options{KeyMode: document.KeyModeString, ReadOnly: true})
	if err != nil {
		t.Fatalf("NewPebbleDB() failed: %v", err)
	}
	defer database.Close()

	payloads, err := database.Read("A", document.StringKey("x"))
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if len(payloads) != 3 {
		t.Errorf("Expected 3 payloads, got %d", len(payloads))
	}
	if info := database.GetInfo(); info.Policy != db.PolicyMergeAppend || info.DbType != db.ImplPebble {
		t.Errorf("Unexpected database info %+v", info)
	}
}
