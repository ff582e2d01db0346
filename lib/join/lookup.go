package join

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ValentinKolb/jstore/lib/common"
	"github.com/ValentinKolb/jstore/lib/document"
	"github.com/ValentinKolb/jstore/lib/store"
	"golang.org/x/sync/errgroup"
)

// --------------------------------------------------------------------------
// Point lookup
// --------------------------------------------------------------------------

// resolved is the result of reading one key from every declared type
type resolved struct {
	key      document.Key
	line     int
	payloads [][][]byte // per declared type
	found    bool
	corrupt  error
}

// Lookup reads one key per line from keys and writes one joined object per key
// to out, in request order:
//
//	{"<key field>": key, "<type 1>": [payloads...], "<type 2>": [], ...}
//
// Types are the declared types at the start of the lookup in sorted order.
// Blank request lines are ignored. Keys without any document are handled by
// opts.Missing. Keys with corrupt payloads are omitted, the lookup continues
// and a RetCStoreCorrupt error naming all of them is returned at the end.
func Lookup(ctx context.Context, st store.IStore, keys io.Reader, out io.Writer, opts Options) (Stats, error) {
	opts = opts.withDefaults()
	started := time.Now()
	defer common.ObserveSince(common.QueryDuration, started)

	stats := Stats{State: StateOpened}
	types, err := skeletonTypes(st, opts.KeyField)
	if err != nil {
		return stats.fail(err)
	}
	stats.Types = types

	bw := bufio.NewWriterSize(out, 1024*1024) // 1 MB buffer
	defer bw.Flush()

	var (
		corruptKeys []string
		corruptErrs []error
		window      = make([]resolved, 0, opts.WindowSize)
		buf         []byte
	)

	// emit writes the objects of a resolved window in request order
	emit := func() error {
		stats.State = StateEmitting
		for _, r := range window {
			switch {
			case r.corrupt != nil:
				stats.Corrupt++
				common.CorruptKeysTotal.Inc()
				corruptKeys = append(corruptKeys, r.key.String())
				corruptErrs = append(corruptErrs, r.corrupt)
				Logger.Errorf("omitting key %s (line %d): %v", r.key, r.line, r.corrupt)
			case !r.found:
				stats.Missing++
				common.MissingKeysTotal.Inc()
				if opts.Missing == MissingFail {
					return &store.Error{
						Code: store.RetCKeyNotFound,
						Msg:  fmt.Sprintf("no documents for key %s (line %d)", r.key, r.line),
						Key:  r.key.String(),
					}
				}
				Logger.Warningf("skipping key %s (line %d): no documents", r.key, r.line)
			default:
				buf = appendObject(buf[:0], opts.KeyField, r.key, types, r.payloads)
				if _, err := bw.Write(buf); err != nil {
					return store.WrapError(store.RetCInternalError, err, "could not write output")
				}
				stats.Emitted++
			}
		}
		window = window[:0]
		stats.State = StateScanning
		return nil
	}

	stats.State = StateScanning
	scanner := bufio.NewScanner(keys)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		key, err := document.ParseKey(st.KeyMode(), text)
		if err != nil {
			return stats.fail(&store.Error{
				Code: store.RetCParseError,
				Msg:  fmt.Sprintf("request line %d", lineNo),
				Key:  text,
				Err:  err,
			})
		}

		stats.Requested++
		common.LookupsTotal.Inc()
		window = append(window, resolved{key: key, line: lineNo})

		if len(window) == opts.WindowSize {
			if err := resolveWindow(ctx, st, types, window, opts.Parallelism); err != nil {
				return stats.fail(err)
			}
			if err := emit(); err != nil {
				return stats.fail(err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats.fail(store.WrapError(store.RetCInternalError, err, "could not read requested keys"))
	}

	if err := resolveWindow(ctx, st, types, window, opts.Parallelism); err != nil {
		return stats.fail(err)
	}
	if err := emit(); err != nil {
		return stats.fail(err)
	}
	if err := bw.Flush(); err != nil {
		return stats.fail(store.WrapError(store.RetCInternalError, err, "could not write output"))
	}

	stats.Duration = time.Since(started)
	if len(corruptKeys) > 0 {
		return stats.fail(&store.Error{
			Code: store.RetCStoreCorrupt,
			Msg:  fmt.Sprintf("%d keys with corrupt payloads were omitted", len(corruptKeys)),
			Key:  strings.Join(corruptKeys, ","),
			Err:  errors.Join(corruptErrs...),
		})
	}

	stats.State = StateClosed
	Logger.Infof("looked up %d keys: %d emitted, %d missing in %s", stats.Requested, stats.Emitted, stats.Missing, stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// resolveWindow reads all keys of window concurrently. Corrupt payloads are
// recorded per key, all other errors stop the lookup.
func resolveWindow(ctx context.Context, st store.IStore, types []string, window []resolved, parallelism int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i := range window {
		r := &window[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.payloads = make([][][]byte, len(types))
			for j, t := range types {
				payloads, err := st.Read(t, r.key)
				if errors.Is(err, store.ErrStoreCorrupt) {
					r.corrupt = fmt.Errorf("type %s: %w", t, err)
					return nil
				}
				if err != nil {
					return err
				}
				r.payloads[j] = payloads
				r.found = r.found || len(payloads) > 0
			}
			return nil
		})
	}
	return g.Wait()
}
