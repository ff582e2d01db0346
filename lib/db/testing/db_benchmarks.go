package testing

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/document"
)

// RunPartitionDBBenchmarks runs all benchmarks for a PartitionDB implementation
func RunPartitionDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Write", func(b *testing.B) {
		benchmarkWrite(b, factory, 1000)
	})

	b.Run("WriteSmallBatches", func(b *testing.B) {
		benchmarkWrite(b, factory, 10)
	})

	b.Run("WriteLargePayload", func(b *testing.B) {
		benchmarkWriteLargePayload(b, factory)
	})

	b.Run("Read", func(b *testing.B) {
		benchmarkRead(b, factory)
	})

	b.Run("ReadAccumulated", func(b *testing.B) {
		benchmarkReadAccumulated(b, factory)
	})

	b.Run("ScanRange", func(b *testing.B) {
		benchmarkScanRange(b, factory)
	})

	b.Run("Reopen", func(b *testing.B) {
		benchmarkReopen(b, factory)
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

var benchTypes = []string{"precompute", "rfam_hits", "r2dt", "qa"}

func benchPayload(key int64, docType string) []byte {
	return []byte(fmt.Sprintf(`{"id":%d,"type":%q,"value":"%032d"}`, key, docType, key))
}

// fill writes n keys with one document per benchmark type
func fill(b *testing.B, database db.PartitionDB, n int) {
	b.Helper()
	for i := 0; i < n; i++ {
		for _, t := range benchTypes {
			if err := database.Write(t, document.IntKey(int64(i)), benchPayload(int64(i), t)); err != nil {
				b.Fatalf("Write() failed: %v", err)
			}
		}
		if database.Pending() >= 10_000 {
			mustCommit(b, database)
		}
	}
	mustCommit(b, database)
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Write operation, committing every batchSize writes
func benchmarkWrite(b *testing.B, factory DBFactory, batchSize int) {
	database := open(b, factory, b.TempDir(), db.Options{KeyMode: document.KeyModeInt})
	b.Cleanup(func() {
		database.Close()
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		t := benchTypes[i%len(benchTypes)]
		if err := database.Write(t, document.IntKey(int64(i)), benchPayload(int64(i), t)); err != nil {
			b.Fatalf("Write() failed: %v", err)
		}
		if database.Pending() >= batchSize {
			mustCommit(b, database)
		}
	}
	mustCommit(b, database)
}

// Benchmark for Write operation with large payloads
func benchmarkWriteLargePayload(b *testing.B, factory DBFactory) {
	database := open(b, factory, b.TempDir(), db.Options{})
	b.Cleanup(func() {
		database.Close()
	})

	payload := []byte(fmt.Sprintf(`{"id":"k","blob":"%0*d"}`, 256*1024, 0)) // 256KB

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := database.Write("blob", document.StringKey(fmt.Sprintf("k-%d", i)), payload); err != nil {
			b.Fatalf("Write() failed: %v", err)
		}
		if database.Pending() >= 16 {
			mustCommit(b, database)
		}
	}
	mustCommit(b, database)
}

// Parallel benchmarking for Read operation
func benchmarkRead(b *testing.B, factory DBFactory) {
	database := open(b, factory, b.TempDir(), db.Options{KeyMode: document.KeyModeInt})
	b.Cleanup(func() {
		database.Close()
	})

	const numKeys = 10_000
	fill(b, database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := document.IntKey(r.Int63n(numKeys))
			if _, err := database.Read(benchTypes[key.Int()%int64(len(benchTypes))], key); err != nil {
				b.Errorf("Read() failed: %v", err)
				return
			}
		}
	})
}

// Benchmark for Read operation on a key with many accumulated payloads
func benchmarkReadAccumulated(b *testing.B, factory DBFactory) {
	database := open(b, factory, b.TempDir(), db.Options{})
	b.Cleanup(func() {
		database.Close()
	})

	key := document.StringKey("hot")
	for i := 0; i < 1000; i++ {
		if err := database.Write("T", key, []byte(fmt.Sprintf(`{"id":"hot","n":%d}`, i))); err != nil {
			b.Fatalf("Write() failed: %v", err)
		}
	}
	mustCommit(b, database)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := database.Read("T", key); err != nil {
			b.Fatalf("Read() failed: %v", err)
		}
	}
}

// Benchmark for ScanRange over 100 keys
func benchmarkScanRange(b *testing.B, factory DBFactory) {
	database := open(b, factory, b.TempDir(), db.Options{KeyMode: document.KeyModeInt})
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureRangeScan)

	const numKeys = 10_000
	fill(b, database, numKeys)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		start := int64(i*100) % (numKeys - 100)
		visited := 0
		err := database.ScanRange(start, start+99, func(int64, string, [][]byte) error {
			visited++
			return nil
		})
		if err != nil {
			b.Fatalf("ScanRange() failed: %v", err)
		}
		if visited != 100*len(benchTypes) {
			b.Fatalf("Expected %d visits, got %d", 100*len(benchTypes), visited)
		}
	}
}

// Benchmark for closing and reopening a filled database
func benchmarkReopen(b *testing.B, factory DBFactory) {
	dir := b.TempDir()
	opts := db.Options{KeyMode: document.KeyModeInt}

	database := open(b, factory, dir, opts)
	fill(b, database, 10_000)
	if err := database.Close(); err != nil {
		b.Fatalf("Close() failed: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database = open(b, factory, dir, opts)
		if err := database.Close(); err != nil {
			b.Fatalf("Close() failed: %v", err)
		}
	}
}
