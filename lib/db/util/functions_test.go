package util

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// TestHash tests that both hash functions agree and use xxHash64
func TestHash(t *testing.T) {
	if got := HashString(""); got != 0xef46db3751d8e999 {
		t.Errorf("Expected xxHash64 of the empty string, got %#x", uint64(got))
	}
	for _, s := range []string{"a", "A\x00key", "precompute\x00URS0000000001"} {
		if HashString(s) != HashBytes([]byte(s)) {
			t.Errorf("HashString(%q) differs from HashBytes", s)
		}
	}
}

// TestHashSpread tests that similar keys are spread over shards
func TestHashSpread(t *testing.T) {
	const shards = 16
	counts := make([]float64, shards)
	for i := 0; i < 16000; i++ {
		h := HashString(fmt.Sprintf("A\x00k%d", i))
		counts[(uint64(h)>>7)%shards]++
	}
	for i, c := range counts {
		if c < 800 || c > 1200 {
			t.Errorf("Shard %d holds %.0f of 16000 keys", i, c)
		}
	}
}

// TestDirSize tests that DirSize sums the files of nested directories
func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b"), make([]byte, 23), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := DirSize(dir); got != 123 {
		t.Errorf("Expected 123 bytes, got %d", got)
	}
	if got := DirSize(filepath.Join(dir, "missing")); got != 0 {
		t.Errorf("Expected 0 bytes for a missing directory, got %d", got)
	}
}
