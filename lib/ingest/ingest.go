package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/jstore/lib/common"
	"github.com/ValentinKolb/jstore/lib/document"
	"github.com/ValentinKolb/jstore/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("ingest")

// --------------------------------------------------------------------------
// Sources and Options
// --------------------------------------------------------------------------

// Source is one input stream of documents of a single type
type Source struct {
	Type string // document type of all documents in the stream
	Name string // name used in errors and logs, e.g. the file path

	// Reader is the stream. If it is nil, Open is called by the producer that
	// reads the source, so inputs are only opened once they are read.
	Reader io.Reader
	Open   func() (io.ReadCloser, error)
}

// FileSource returns a source reading path lazily. "-" is stdin, .gz and .zst
// files are decompressed.
func FileSource(docType, path string) Source {
	return Source{
		Type: docType,
		Name: path,
		Open: func() (io.ReadCloser, error) { return common.OpenInput(path) },
	}
}

func (s Source) open() (io.Reader, io.Closer, error) {
	if s.Reader != nil {
		return s.Reader, io.NopCloser(nil), nil
	}
	if s.Open == nil {
		return nil, nil, fmt.Errorf("source %s has neither a reader nor an open function", s.Name)
	}
	rc, err := s.Open()
	if err != nil {
		return nil, nil, err
	}
	return rc, rc, nil
}

// Options configure an ingestion run
type Options struct {
	KeyField         string        // name of the key field (default "id")
	Unescape         bool          // replace \\ by \ before parsing
	Parallelism      int           // number of concurrently read sources
	ChannelCapacity  int           // capacity of the channel between readers and the writer
	ProgressInterval time.Duration // minimum time between two progress log lines
	ManifestDir      string        // base directory of relative manifest entries
}

// DefaultOptions returns the default ingestion options
func DefaultOptions() Options {
	return Options{
		KeyField:         common.DefaultKeyField,
		Unescape:         true,
		Parallelism:      common.DefaultParallelism,
		ChannelCapacity:  common.DefaultChannelCapacity,
		ProgressInterval: common.DefaultProgressInterval,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.KeyField == "" {
		o.KeyField = d.KeyField
	}
	if o.Parallelism <= 0 {
		o.Parallelism = d.Parallelism
	}
	if o.ChannelCapacity <= 0 {
		o.ChannelCapacity = d.ChannelCapacity
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = d.ProgressInterval
	}
	return o
}

func (o Options) parser(mode document.KeyMode) document.Parser {
	return document.Parser{Mode: mode, Field: o.KeyField, Unescape: o.Unescape}
}

// --------------------------------------------------------------------------
// Single stream ingestion
// --------------------------------------------------------------------------

// IndexStream parses src line by line and writes every document to st.
// The first error stops the run and discards the pending batch. Batches
// committed before the failure stay visible. The returned number counts the
// committed documents: all of them on success, the ones committed before the
// failure otherwise.
func IndexStream(ctx context.Context, st store.IStore, src Source, opts Options) (uint64, error) {
	opts = opts.withDefaults()
	w, err := newWriter(st, opts)
	if err != nil {
		return 0, err
	}
	defer w.stop()

	parser := opts.parser(st.KeyMode())
	err = readSource(ctx, src, parser, func(d typedDocument) error {
		return w.write(d)
	})
	if err != nil {
		w.abort()
		return w.written, err
	}
	return w.written, w.finish()
}

// --------------------------------------------------------------------------
// Reading
// --------------------------------------------------------------------------

// typedDocument is a parsed document on its way to the writer
type typedDocument struct {
	docType string
	source  string
	line    int
	doc     document.Document
}

// readSource parses every non-blank line of src and passes it to emit.
// Parse errors are returned as store errors naming the source and line.
func readSource(ctx context.Context, src Source, parser document.Parser, emit func(typedDocument) error) error {
	if err := document.ValidateType(src.Type); err != nil {
		return store.WrapError(store.RetCInvalidOperation, err, "source %s", src.Name)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	r, closer, err := src.open()
	if err != nil {
		return store.WrapError(store.RetCStoreUnavailable, err, "could not open input %s", src.Name)
	}
	defer closer.Close()

	Logger.Debugf("reading %s as type %s", src.Name, src.Type)

	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer
	for lineNo := 1; ; lineNo++ {
		line, readErr := br.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return store.WrapError(store.RetCInternalError, readErr, "%s:%d: read failed", src.Name, lineNo)
		}

		if len(bytes.TrimSpace(line)) > 0 {
			doc, err := parser.Parse(line)
			if err != nil {
				return &store.Error{
					Code: store.RetCParseError,
					Msg:  fmt.Sprintf("%s:%d", src.Name, lineNo),
					Err:  err,
				}
			}
			if err := emit(typedDocument{docType: src.Type, source: src.Name, line: lineNo, doc: doc}); err != nil {
				return err
			}
		}

		if readErr != nil { // io.EOF
			return nil
		}
		if lineNo%4096 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
