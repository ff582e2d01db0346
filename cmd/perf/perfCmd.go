package perf

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	cmdUtil "github.com/ValentinKolb/jstore/cmd/util"
	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/db/util"
	"github.com/ValentinKolb/jstore/lib/document"
	"github.com/ValentinKolb/jstore/lib/ingest"
	"github.com/ValentinKolb/jstore/lib/join"
	"github.com/ValentinKolb/jstore/lib/store"
	"github.com/ValentinKolb/jstore/lib/store/lstore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// PerfCmd runs a synthetic ingest and query benchmark against every engine
	PerfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for the storage engines",
		Long: `Index synthetic documents into a fresh store per engine and measure ingestion,
point reads, joined lookups and range extraction. The stores are created in a
temporary directory that is removed afterwards.`,
		Args:    cobra.NoArgs,
		PreRunE: processPerfConfig,
		RunE:    run,
	}
	perfEngines     = []db.Implementation{db.ImplPebble, db.ImplLevel, db.ImplMaple}
	perfNumDocs     = 100_000
	perfNumTypes    = 4
	perfPayloadSize = 128
	perfNumThreads  = 10
	perfSamples     = 1000
	perfSkip        = make([]string, 0)
)

func init() {
	key := "engines"
	PerfCmd.Flags().String(key, "pebble,level,maple", cmdUtil.WrapString("Comma separated list of engines to benchmark"))
	key = "skip"
	PerfCmd.Flags().String(key, "", cmdUtil.WrapString("Benchmarks to skip (comma separated - e.g. read,extract-range)"))
	key = "docs"
	PerfCmd.Flags().Int(key, perfNumDocs, cmdUtil.WrapString("Number of distinct keys, every key gets one document per type"))
	key = "types"
	PerfCmd.Flags().Int(key, perfNumTypes, cmdUtil.WrapString("Number of document types"))
	key = "payload-size"
	PerfCmd.Flags().Int(key, perfPayloadSize, cmdUtil.WrapString("Approximate size of a document in bytes"))
	key = "threads"
	PerfCmd.Flags().Int(key, perfNumThreads, cmdUtil.WrapString("Number of goroutines used for the read benchmarks"))
	key = "samples"
	PerfCmd.Flags().Int(key, perfSamples, cmdUtil.WrapString("Number of single key lookups timed for the latency distribution"))
	key = "csv"
	PerfCmd.Flags().String(key, "", cmdUtil.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	perfEngines = perfEngines[:0]
	for _, name := range strings.Split(viper.GetString("engines"), ",") {
		impl, err := db.ParseImplementation(strings.TrimSpace(name))
		if err != nil {
			return err
		}
		perfEngines = append(perfEngines, impl)
	}
	perfNumDocs = viper.GetInt("docs")
	perfNumTypes = viper.GetInt("types")
	perfPayloadSize = viper.GetInt("payload-size")
	perfNumThreads = viper.GetInt("threads")
	perfSamples = viper.GetInt("samples")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfNumDocs <= 0 || perfNumTypes <= 0 {
		return fmt.Errorf("docs and types must be positive")
	}
	return nil
}

// result is the outcome of one benchmark of one engine
type result struct {
	engine  db.Implementation
	test    string
	bench   testing.BenchmarkResult
	latency util.Stats // microseconds, only for sampled benchmarks
	skipped bool
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for jstore engines")

	conf := cmdUtil.GetConfig()
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Print(conf.String())
	fmt.Printf("  %-22s: %d\n", "Documents", perfNumDocs)
	fmt.Printf("  %-22s: %d\n", "Types", perfNumTypes)
	fmt.Printf("  %-22s: %d\n", "Threads", perfNumThreads)
	fmt.Println()

	dir, err := os.MkdirTemp("", "jstore-perf-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	ctx, cancel := cmdUtil.SignalContext()
	defer cancel()

	var results []result
	for _, engine := range perfEngines {
		fmt.Printf("engine %s\n", engine)
		engineResults, err := runEngine(ctx, filepath.Join(dir, string(engine)), engine, conf.Store.BatchSize)
		if err != nil {
			return fmt.Errorf("engine %s: %w", engine, err)
		}
		results = append(results, engineResults...)
		fmt.Println()
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("Exporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// runEngine creates a store with engine at dir and runs all benchmarks on it
func runEngine(ctx context.Context, dir string, engine db.Implementation, batchSize int) ([]result, error) {
	st, err := lstore.Open(dir, lstore.Options{Engine: engine, KeyMode: document.KeyModeInt, BatchSize: batchSize})
	if err != nil {
		return nil, err
	}
	defer st.Close()

	var results []result
	add := func(r result) {
		r.engine = engine
		results = append(results, r)
		printResult(r)
	}

	// index (always runs, the other benchmarks read its documents)
	started := time.Now()
	n, err := ingest.IndexSources(ctx, st, syntheticSources(), ingest.Options{Parallelism: perfNumThreads})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(started)
	add(result{test: "index", bench: testing.BenchmarkResult{N: int(n), T: elapsed}})

	types, err := st.DeclaredTypes()
	if err != nil {
		return nil, err
	}

	if !shouldSkip("read") {
		add(result{test: "read", bench: testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(perfNumThreads)
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					key := document.IntKey(int64(counter % perfNumDocs))
					if _, err := st.Read(types[counter%len(types)], key); err != nil {
						b.Error(err)
						return
					}
					counter++
				}
			})
		})})
	} else {
		add(result{test: "read", skipped: true})
	}

	if !shouldSkip("lookup") {
		add(result{test: "lookup", bench: testing.Benchmark(func(b *testing.B) {
			keys := keyList(b.N)
			b.ResetTimer()
			if _, err := join.Lookup(ctx, st, keys, io.Discard, join.Options{Parallelism: perfNumThreads}); err != nil {
				b.Error(err)
			}
		}), latency: sampleLookups(ctx, st)})
	} else {
		add(result{test: "lookup", skipped: true})
	}

	if !shouldSkip("extract-range") {
		add(result{test: "extract-range", bench: testing.Benchmark(func(b *testing.B) {
			span := int64(min(b.N, perfNumDocs))
			for i := 0; i < b.N; i += int(span) {
				start := int64(i % perfNumDocs)
				end := min(start+span-1, int64(perfNumDocs-1))
				if _, err := join.ExtractRange(ctx, st, start, end, io.Discard, join.Options{}); err != nil {
					b.Error(err)
					return
				}
			}
		})})
	} else {
		add(result{test: "extract-range", skipped: true})
	}

	info, err := st.GetDBInfo()
	if err == nil {
		fmt.Printf("%-20s%s\n", "size on disk", formatBytes(info.SizeBytes))
	}

	return results, st.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// syntheticSources returns one generated source per type, every source has one
// document per key
func syntheticSources() []ingest.Source {
	filler := strings.Repeat("x", max(perfPayloadSize-32, 0))

	sources := make([]ingest.Source, perfNumTypes)
	for t := range sources {
		docType := fmt.Sprintf("type%02d", t)
		sources[t] = ingest.Source{
			Type: docType,
			Name: "synthetic-" + docType,
			Open: func() (io.ReadCloser, error) {
				pr, pw := io.Pipe()
				go func() {
					w := bufio.NewWriter(pw)
					for k := 0; k < perfNumDocs; k++ {
						fmt.Fprintf(w, `{"id":%d,"t":%d,"f":"%s"}`+"\n", k, t, filler)
					}
					pw.CloseWithError(w.Flush())
				}()
				return pr, nil
			},
		}
	}
	return sources
}

// keyList returns n keys, one per line, cycling through all indexed keys
func keyList(n int) io.Reader {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.WriteString(strconv.Itoa(i % perfNumDocs))
		buf.WriteByte('\n')
	}
	return &buf
}

// sampleLookups times single key lookups and summarizes their latency in microseconds
func sampleLookups(ctx context.Context, st store.IStore) util.Stats {
	latencies := make([]float64, 0, perfSamples)
	for i := 0; i < perfSamples; i++ {
		keys := strings.NewReader(strconv.Itoa(i*7919%perfNumDocs) + "\n")
		started := time.Now()
		if _, err := join.Lookup(ctx, st, keys, io.Discard, join.Options{Parallelism: 1, WindowSize: 1}); err != nil {
			break
		}
		latencies = append(latencies, float64(time.Since(started).Microseconds()))
	}
	return util.NewStats(latencies)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(r result) {
	if r.skipped || r.bench.N == 0 {
		fmt.Printf("%-20sskipped\n", r.test)
		return
	}

	nsPerOp := math.Max(float64(r.bench.T.Nanoseconds())/float64(r.bench.N), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec", r.test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
	if r.latency.Count > 0 {
		fmt.Printf("\tp50=%.0fµs p99=%.0fµs", r.latency.Median, r.latency.P99)
	}
	fmt.Println()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []result) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{
		"Engine", "Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"LatencyMedianUs", "LatencyP99Us",
		"Documents", "Types", "PayloadSize", "Threads",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, r := range results {
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if !r.skipped && r.bench.N > 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(r.bench.T.Nanoseconds())/float64(r.bench.N), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			string(r.engine),
			r.test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			fmt.Sprintf("%.0f", r.latency.Median),
			fmt.Sprintf("%.0f", r.latency.P99),
			strconv.Itoa(perfNumDocs),
			strconv.Itoa(perfNumTypes),
			strconv.Itoa(perfPayloadSize),
			strconv.Itoa(perfNumThreads),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", r.test, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
