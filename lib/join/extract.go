package join

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/ValentinKolb/jstore/lib/common"
	"github.com/ValentinKolb/jstore/lib/document"
	"github.com/ValentinKolb/jstore/lib/store"
)

// --------------------------------------------------------------------------
// Range extraction
// --------------------------------------------------------------------------

// ExtractRange writes one joined object for every key k with min <= k <= max
// to out, in ascending key order. The object layout is the one of Lookup.
//
// The range must be complete: if fewer than max-min+1 keys have documents, a
// RetCIncompleteRange error with the found and expected counts is returned
// after all found keys were written. Corrupt payloads fail immediately.
// Range extraction is only available for stores with integer keys.
func ExtractRange(ctx context.Context, st store.IStore, min, max int64, out io.Writer, opts Options) (Stats, error) {
	opts = opts.withDefaults()
	started := time.Now()
	defer common.ObserveSince(common.QueryDuration, started)

	stats := Stats{State: StateOpened}
	if st.KeyMode() != document.KeyModeInt {
		return stats.fail(store.NewError(store.RetCInvalidOperation,
			fmt.Sprintf("range extraction needs integer keys, store has %s keys", st.KeyMode())))
	}
	if min > max {
		return stats.fail(store.NewError(store.RetCInvalidOperation,
			fmt.Sprintf("invalid range %d..%d: min is greater than max", min, max)))
	}
	size, ok := rangeSize(min, max)
	if !ok {
		return stats.fail(store.NewError(store.RetCInvalidOperation,
			fmt.Sprintf("invalid range %d..%d: more than 2^64-1 keys", min, max)))
	}

	types, err := skeletonTypes(st, opts.KeyField)
	if err != nil {
		return stats.fail(err)
	}
	stats.Types = types
	stats.Requested = size

	typeIndex := make(map[string]int, len(types))
	for i, t := range types {
		typeIndex[t] = i
	}

	bw := bufio.NewWriterSize(out, 1024*1024) // 1 MB buffer
	defer bw.Flush()

	var (
		current  int64
		payloads = make([][][]byte, len(types))
		pending  bool
		buf      []byte
	)

	emit := func() error {
		stats.State = StateEmitting
		buf = appendObject(buf[:0], opts.KeyField, document.IntKey(current), types, payloads)
		if _, err := bw.Write(buf); err != nil {
			return store.WrapError(store.RetCInternalError, err, "could not write output")
		}
		stats.Emitted++
		common.RangeKeysEmitted.Inc()
		clear(payloads)
		pending = false
		stats.State = StateScanning
		return nil
	}

	stats.State = StateScanning
	err = st.ScanRange(min, max, func(key int64, docType string, p [][]byte) error {
		if pending && key != current {
			if err := emit(); err != nil {
				return err
			}
			if stats.Emitted%4096 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
		}
		i, ok := typeIndex[docType]
		if !ok {
			// declared after the query started
			return nil
		}
		current = key
		payloads[i] = p
		pending = true
		return nil
	})
	if err == nil && pending {
		err = emit()
	}
	if err != nil {
		return stats.fail(err)
	}
	if err := bw.Flush(); err != nil {
		return stats.fail(store.WrapError(store.RetCInternalError, err, "could not write output"))
	}

	stats.Duration = time.Since(started)
	if stats.Emitted != stats.Requested {
		return stats.fail(&store.Error{
			Code:     store.RetCIncompleteRange,
			Msg:      fmt.Sprintf("range %d..%d", min, max),
			Found:    stats.Emitted,
			Expected: stats.Requested,
		})
	}

	stats.State = StateClosed
	Logger.Infof("extracted %d keys (%d..%d) in %s", stats.Emitted, min, max, stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// rangeSize returns the number of keys in [min, max] with min <= max. The
// full int64 range has 2^64 keys, which does not fit and is reported as !ok.
func rangeSize(min, max int64) (uint64, bool) {
	span := uint64(max) - uint64(min)
	if span == math.MaxUint64 {
		return 0, false
	}
	return span + 1, true
}
