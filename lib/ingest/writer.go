package ingest

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/jstore/lib/store"
	"github.com/rcrowley/go-metrics"
	"golang.org/x/time/rate"
)

// --------------------------------------------------------------------------
// Writer
// --------------------------------------------------------------------------

// writer is the only component touching the store during an ingestion run.
// It tracks the number of written documents, the document rate and the types
// seen for the first time.
type writer struct {
	st       store.IStore
	written  uint64
	started  time.Time
	meter    metrics.Meter
	progress *rate.Sometimes
	types    map[string]struct{}
}

func newWriter(st store.IStore, opts Options) (*writer, error) {
	declared, err := st.DeclaredTypes()
	if err != nil {
		return nil, err
	}
	types := make(map[string]struct{}, len(declared))
	for _, t := range declared {
		types[t] = struct{}{}
	}

	return &writer{
		st:       st,
		started:  time.Now(),
		meter:    metrics.NewMeter(),
		progress: &rate.Sometimes{Interval: opts.ProgressInterval},
		types:    types,
	}, nil
}

func (w *writer) write(d typedDocument) error {
	if _, ok := w.types[d.docType]; !ok {
		w.types[d.docType] = struct{}{}
		Logger.Infof("new document type %s (first seen in %s:%d)", d.docType, d.source, d.line)
	}

	if err := w.st.Write(d.docType, d.doc.Key, d.doc.Payload); err != nil {
		return fmt.Errorf("%s:%d: %w", d.source, d.line, err)
	}

	w.written++
	w.meter.Mark(1)
	w.progress.Do(func() {
		Logger.Infof("indexed %d documents (%.0f docs/s, 1m avg %.0f docs/s)", w.written, w.meter.RateMean(), w.meter.Rate1())
	})
	return nil
}

// finish flushes the last batch
func (w *writer) finish() error {
	if err := w.st.Flush(); err != nil {
		return err
	}
	Logger.Infof("indexed %d documents of %d types in %s", w.written, len(w.types), time.Since(w.started).Round(time.Millisecond))
	return nil
}

// abort discards the pending batch. Afterwards written only counts committed
// documents.
func (w *writer) abort() {
	discarded := uint64(w.st.Abort())
	w.written -= min(discarded, w.written)
}

func (w *writer) stop() {
	w.meter.Stop()
}
