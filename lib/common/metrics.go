package common

import (
	"fmt"
	"os"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

// Metrics holds all counters and histograms of a jstore process
var Metrics = metrics.NewSet()

var (
	DocumentsWritten = Metrics.NewCounter("jstore_documents_written_total")
	BatchesCommitted = Metrics.NewCounter("jstore_batches_committed_total")
	BatchesAborted   = Metrics.NewCounter("jstore_batches_aborted_total")
	CommitDuration   = Metrics.NewHistogram("jstore_commit_duration_seconds")
	BatchSize        = Metrics.NewHistogram("jstore_batch_size_documents")

	LookupsTotal     = Metrics.NewCounter("jstore_lookups_total")
	MissingKeysTotal = Metrics.NewCounter("jstore_missing_keys_total")
	CorruptKeysTotal = Metrics.NewCounter("jstore_corrupt_keys_total")
	RangeKeysEmitted = Metrics.NewCounter("jstore_range_keys_emitted_total")
	QueryDuration    = Metrics.NewHistogram("jstore_query_duration_seconds")
)

// ObserveSince records the seconds elapsed since start in h
func ObserveSince(h *metrics.Histogram, start time.Time) {
	h.Update(time.Since(start).Seconds())
}

// WriteMetrics dumps all metrics in the Prometheus text format to path.
// An empty path is a no-op.
func WriteMetrics(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create metrics file: %w", err)
	}
	Metrics.WritePrometheus(f)
	return f.Close()
}
