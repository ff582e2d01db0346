package level

import (
	"testing"

	"github.com/ValentinKolb/jstore/lib/db"
	dbtesting "github.com/ValentinKolb/jstore/lib/db/testing"
	"github.com/ValentinKolb/jstore/lib/document"
)

func Test(t *testing.T) {
	dbtesting.RunPartitionDBTests(t, "LevelDB", NewLevelDB)
}

func Benchmark(b *testing.B) {
	dbtesting.RunPartitionDBBenchmarks(b, "LevelDB", NewLevelDB)
}

func TestRowKeyRoundTrip(t *testing.T) {
	k := rowKey("rfam_hits", document.IntKey(-5), 42)

	n, docType, err := parseIntRow(k)
	if err != nil {
		t.Fatalf("parseIntRow() failed: %v", err)
	}
	if n != -5 || docType != "rfam_hits" {
		t.Errorf("Expected (-5, rfam_hits), got (%d, %s)", n, docType)
	}

	if _, _, err := parseIntRow([]byte{prefixRow, 1, 2}); err == nil {
		t.Errorf("Expected error for truncated row key")
	}
}

func TestSequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	opts := db.Options{KeyMode: document.KeyModeInt}

	database, err := NewLevelDB(dir, opts)
	if err != nil {
		t.Fatalf("NewLevelDB() failed: %v", err)
	}
	_ = database.Write("A", document.IntKey(1), []byte(`{"id":1,"n":1}`))
	if err := database.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	database.Close()

	// rows written after reopen must sort after the existing ones
	database, err = NewLevelDB(dir, opts)
	if err != nil {
		t.Fatalf("NewLevelDB() failed: %v", err)
	}
	defer database.Close()
	_ = database.Write("A", document.IntKey(1), []byte(`{"id":1,"n":2}`))
	if err := database.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	payloads, err := database.Read("A", document.IntKey(1))
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	if len(payloads) != 2 || string(payloads[1]) != `{"id":1,"n":2}` {
		t.Errorf("Expected two payloads in write order, got %q", payloads)
	}
}

func TestReadOnlyMissing(t *testing.T) {
	_, err := NewLevelDB(t.TempDir()+"/missing", db.Options{ReadOnly: true})
	if err == nil {
		t.Errorf("Expected error when opening a missing database read-only")
	}
}
