package maple

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/jstore/lib/db"
	dbtesting "github.com/ValentinKolb/jstore/lib/db/testing"
	"github.com/ValentinKolb/jstore/lib/document"
)

func Test(t *testing.T) {
	dbtesting.RunPartitionDBTests(t, "MapleDB", NewMapleDB)
}

func Benchmark(b *testing.B) {
	dbtesting.RunPartitionDBBenchmarks(b, "MapleDB", NewMapleDB)
}

func TestSingleWriter(t *testing.T) {
	dir := t.TempDir()

	first, err := NewMapleDB(dir, db.Options{})
	if err != nil {
		t.Fatalf("NewMapleDB() failed: %v", err)
	}

	if _, err := NewMapleDB(dir, db.Options{}); !errors.Is(err, ErrLocked) {
		t.Errorf("Expected ErrLocked for second writer, got %v", err)
	}

	// readers do not take the lock
	reader, err := NewMapleDB(dir, db.Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("Read-only open failed: %v", err)
	}
	reader.Close()

	if err := first.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, lockFile)); !os.IsNotExist(err) {
		t.Errorf("Expected lock file to be removed on Close, got %v", err)
	}

	second, err := NewMapleDB(dir, db.Options{})
	if err != nil {
		t.Fatalf("NewMapleDB() after Close failed: %v", err)
	}
	second.Close()
}

func TestSnapshotKeyModeMismatch(t *testing.T) {
	dir := t.TempDir()

	database, err := NewMapleDB(dir, db.Options{KeyMode: document.KeyModeInt})
	if err != nil {
		t.Fatalf("NewMapleDB() failed: %v", err)
	}
	_ = database.Write("A", document.IntKey(1), []byte(`{"id":1}`))
	if err := database.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if _, err := NewMapleDB(dir, db.Options{KeyMode: document.KeyModeString}); !errors.Is(err, db.ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt for key mode mismatch, got %v", err)
	}
	// a failed open must not leave the lock behind
	if _, err := os.Stat(filepath.Join(dir, lockFile)); !os.IsNotExist(err) {
		t.Errorf("Expected no lock file after failed open, got %v", err)
	}
}

func TestShardDistribution(t *testing.T) {
	database, err := NewMapleDBWithOptions(t.TempDir(), db.Options{}, DBOptions{NumShards: 8})
	if err != nil {
		t.Fatalf("NewMapleDBWithOptions() failed: %v", err)
	}
	defer database.Close()

	for i := 0; i < 1000; i++ {
		_ = database.Write("A", document.StringKey(string(rune('a'+i%26))+string(rune(i))), []byte(`{}`))
	}
	if err := database.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	info := database.GetInfo()
	if info.SizeBytes <= 0 {
		t.Errorf("Expected positive size, got %d", info.SizeBytes)
	}
	if !database.SupportsFeature(db.FeatureSnapshot) || database.SupportsFeature(db.FeatureDurable) {
		t.Errorf("Unexpected feature set")
	}
}
