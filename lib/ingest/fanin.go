package ingest

import (
	"bufio"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/jstore/lib/store"
	"golang.org/x/sync/errgroup"
)

// --------------------------------------------------------------------------
// Fan-in of many sources
// --------------------------------------------------------------------------

// IndexSources reads all sources concurrently and writes their documents to st.
//
// At most opts.Parallelism sources are read at the same time. Parsed documents
// are passed through a channel of capacity opts.ChannelCapacity to the calling
// goroutine, which is the only one writing to the store. The order of the
// documents of one source is preserved, the order across sources is not.
//
// The first error (of any reader or of the store) cancels all readers. The
// writer stops writing as soon as it observes the failure and discards the
// pending batch. The returned number counts the committed documents, see
// IndexStream.
func IndexSources(ctx context.Context, st store.IStore, sources []Source, opts Options) (uint64, error) {
	opts = opts.withDefaults()
	w, err := newWriter(st, opts)
	if err != nil {
		return 0, err
	}
	defer w.stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)

	docs := make(chan typedDocument, opts.ChannelCapacity)
	produced := make(chan error, 1)
	parser := opts.parser(st.KeyMode())

	// set by the first failing reader. gctx is no signal for the writer, the
	// errgroup also cancels it once all readers are done.
	var readFailed atomic.Bool

	// producers
	go func() {
		defer close(docs)
		for _, src := range sources {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				err := readSource(gctx, src, parser, func(d typedDocument) error {
					select {
					case docs <- d:
						return nil
					case <-gctx.Done():
						return gctx.Err()
					}
				})
				if err != nil {
					readFailed.Store(true)
				}
				return err
			})
		}
		produced <- g.Wait()
	}()

	// writer: stop writing at the first failure but keep draining, so no
	// producer blocks forever
	var writeErr error
	for d := range docs {
		if writeErr != nil || readFailed.Load() || ctx.Err() != nil {
			continue
		}
		if err := w.write(d); err != nil {
			writeErr = err
			cancel()
		}
	}
	produceErr := <-produced
	if produceErr == nil {
		// canceled before any reader was started
		produceErr = ctx.Err()
	}

	if err := firstError(writeErr, produceErr); err != nil {
		w.abort()
		return w.written, err
	}
	return w.written, w.finish()
}

// firstError returns the error that stopped the run. A write error cancels
// the producers, their cancellation errors are not reported.
func firstError(writeErr, produceErr error) error {
	if writeErr != nil {
		return writeErr
	}
	return produceErr
}

// --------------------------------------------------------------------------
// Manifest
// --------------------------------------------------------------------------

// TypeFromPath derives the document type from an input path: the file name
// without a .gz or .zst suffix and without one further extension.
//
//	/data/precompute.json.gz -> precompute
//	rfam_hits.jsonl          -> rfam_hits
func TypeFromPath(path string) string {
	name := filepath.Base(path)
	for _, suffix := range []string{".gz", ".zst"} {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ParseManifest reads one input path per line. Blank lines and lines starting
// with # are ignored. Relative paths are resolved against baseDir.
func ParseManifest(manifest io.Reader, baseDir string) ([]Source, error) {
	var sources []Source
	scanner := bufio.NewScanner(manifest)
	for scanner.Scan() {
		path := strings.TrimSpace(scanner.Text())
		if path == "" || strings.HasPrefix(path, "#") {
			continue
		}
		if baseDir != "" && path != "-" && !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		sources = append(sources, FileSource(TypeFromPath(path), path))
	}
	if err := scanner.Err(); err != nil {
		return nil, store.WrapError(store.RetCParseError, err, "could not read manifest")
	}
	return sources, nil
}

// IndexManifest indexes every file listed in manifest, see ParseManifest and IndexSources
func IndexManifest(ctx context.Context, st store.IStore, manifest io.Reader, opts Options) (uint64, error) {
	sources, err := ParseManifest(manifest, opts.ManifestDir)
	if err != nil {
		return 0, err
	}
	Logger.Infof("indexing %d inputs with %d readers", len(sources), opts.withDefaults().Parallelism)
	return IndexSources(ctx, st, sources, opts)
}
