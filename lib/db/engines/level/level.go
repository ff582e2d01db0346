package level

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/db/util"
	"github.com/ValentinKolb/jstore/lib/document"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"
)

var Logger = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Key Layout
// --------------------------------------------------------------------------

/*
 r | encoded key | type | 0x00 | seq (8 bytes BE) -> one payload (row)
 s                                              -> last used sequence number
 t | type                                       -> declared type (empty value)

 Rows sort by key, then by type name, then by sequence number, which is the
 order Read and ScanRange return them in.
*/

const (
	prefixRow  byte = 'r'
	prefixSeq  byte = 's'
	prefixType byte = 't'
	seqLen          = 8
)

var seqKey = []byte{prefixSeq}

func rowPrefix(docType string, key document.Key) []byte {
	b := make([]byte, 0, 1+16+len(docType)+1+seqLen)
	b = append(b, prefixRow)
	b = util.AppendKey(b, key)
	b = append(b, docType...)
	return append(b, 0x00)
}

func rowKey(docType string, key document.Key, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(rowPrefix(docType, key), seq)
}

func typeKey(docType string) []byte {
	return append([]byte{prefixType}, docType...)
}

// parseIntRow splits the key of a row of an integer database
func parseIntRow(k []byte) (int64, string, error) {
	if len(k) < 1+8+1+seqLen || k[0] != prefixRow {
		return 0, "", fmt.Errorf("%w: malformed row key %x", db.ErrCorrupt, k)
	}
	n, rest, err := util.DecodeInt(k[1:])
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", db.ErrCorrupt, err)
	}
	sep := len(rest) - seqLen - 1
	if sep < 0 || rest[sep] != 0x00 {
		return 0, "", fmt.Errorf("%w: malformed row key %x", db.ErrCorrupt, k)
	}
	return n, string(rest[:sep]), nil
}

// --------------------------------------------------------------------------
// Core LevelDB database structure
// --------------------------------------------------------------------------

// levelImpl implements db.PartitionDB on goleveldb with one row per payload
type levelImpl struct {
	dir   string
	opts  db.Options
	store *leveldb.DB

	// writer state, only touched by the single writer goroutine
	batch        *leveldb.Batch
	seq          uint64 // last sequence number handed out
	committedSeq uint64 // last sequence number made durable
	known        map[string]struct{}
	staged       map[string]struct{}
}

// NewLevelDB opens (or creates) a goleveldb database in dir
func NewLevelDB(dir string, opts db.Options) (db.PartitionDB, error) {
	store, err := leveldb.OpenFile(dir, &opt.Options{
		ReadOnly:       opts.ReadOnly,
		ErrorIfMissing: opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open leveldb database in %s: %w", dir, err)
	}

	l := &levelImpl{
		dir:    dir,
		opts:   opts,
		store:  store,
		batch:  new(leveldb.Batch),
		known:  make(map[string]struct{}),
		staged: make(map[string]struct{}),
	}

	raw, err := store.Get(seqKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		store.Close()
		return nil, err
	case len(raw) != seqLen:
		store.Close()
		return nil, fmt.Errorf("%w: sequence counter has %d bytes", db.ErrCorrupt, len(raw))
	default:
		l.seq = binary.BigEndian.Uint64(raw)
		l.committedSeq = l.seq
	}

	types, err := l.DeclaredTypes()
	if err != nil {
		store.Close()
		return nil, err
	}
	for _, t := range types {
		l.known[t] = struct{}{}
	}

	Logger.Debugf("opened leveldb database %s (%d declared types, seq=%d)", dir, len(types), l.seq)
	return l, nil
}

// --------------------------------------------------------------------------
// PartitionDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

func (l *levelImpl) Write(docType string, key document.Key, payload []byte) error {
	if l.opts.ReadOnly {
		return db.ErrReadOnly
	}
	if key.Mode() != l.opts.KeyMode {
		return fmt.Errorf("%w: %s key in %s database", db.ErrKeyMode, key.Mode(), l.opts.KeyMode)
	}

	l.seq++
	l.batch.Put(rowKey(docType, key, l.seq), payload)

	if _, ok := l.known[docType]; !ok {
		if _, ok := l.staged[docType]; !ok {
			l.staged[docType] = struct{}{}
			l.batch.Put(typeKey(docType), nil)
		}
	}
	return nil
}

func (l *levelImpl) Commit() error {
	if l.seq == l.committedSeq {
		return nil
	}

	l.batch.Put(seqKey, binary.BigEndian.AppendUint64(nil, l.seq))
	if err := l.store.Write(l.batch, &opt.WriteOptions{Sync: true}); err != nil {
		l.Discard()
		return fmt.Errorf("could not commit batch: %w", err)
	}

	for t := range l.staged {
		l.known[t] = struct{}{}
	}
	l.committedSeq = l.seq
	l.batch.Reset()
	clear(l.staged)
	return nil
}

func (l *levelImpl) Discard() {
	l.batch.Reset()
	l.seq = l.committedSeq
	clear(l.staged)
}

func (l *levelImpl) Pending() int {
	return int(l.seq - l.committedSeq)
}

// --------------------------------------------------------------------------
// PartitionDB Interface Methods - Query Operations
// --------------------------------------------------------------------------

func (l *levelImpl) DeclaredTypes() ([]string, error) {
	iter := l.store.NewIterator(ldbutil.BytesPrefix([]byte{prefixType}), nil)
	defer iter.Release()

	var types []string
	for iter.Next() {
		types = append(types, string(iter.Key()[1:]))
	}
	return types, iter.Error()
}

func (l *levelImpl) Read(docType string, key document.Key) ([][]byte, error) {
	if key.Mode() != l.opts.KeyMode {
		return nil, fmt.Errorf("%w: %s key in %s database", db.ErrKeyMode, key.Mode(), l.opts.KeyMode)
	}

	iter := l.store.NewIterator(ldbutil.BytesPrefix(rowPrefix(docType, key)), nil)
	defer iter.Release()

	var payloads [][]byte
	for iter.Next() {
		payload := bytes.Clone(iter.Value())
		if err := util.ValidatePayload(payload); err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, iter.Error()
}

// ScanRange iterates the rows of the interval in key order and groups
// consecutive rows of the same (key, type) into one call of fn.
func (l *levelImpl) ScanRange(min, max int64, fn db.ScanFunc) error {
	if l.opts.KeyMode != document.KeyModeInt {
		return fmt.Errorf("%w: range scan on %s keys", db.ErrUnsupported, l.opts.KeyMode)
	}
	if min > max {
		return nil
	}

	r := &ldbutil.Range{Start: util.AppendInt([]byte{prefixRow}, min)}
	if max == math.MaxInt64 {
		r.Limit = []byte{prefixRow + 1}
	} else {
		r.Limit = util.AppendInt([]byte{prefixRow}, max+1)
	}

	iter := l.store.NewIterator(r, nil)
	defer iter.Release()

	var (
		currKey  int64
		currType string
		group    [][]byte
	)
	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		err := fn(currKey, currType, group)
		group = nil
		return err
	}

	for iter.Next() {
		k, t, err := parseIntRow(iter.Key())
		if err != nil {
			return err
		}
		if len(group) > 0 && (k != currKey || t != currType) {
			if err := flush(); err != nil {
				return err
			}
		}
		currKey, currType = k, t

		payload := bytes.Clone(iter.Value())
		if err := util.ValidatePayload(payload); err != nil {
			return fmt.Errorf("key %d, type %s: %w", k, t, err)
		}
		group = append(group, payload)
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return flush()
}

// --------------------------------------------------------------------------
// PartitionDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

func (l *levelImpl) GetInfo() db.DatabaseInfo {
	types, _ := l.DeclaredTypes()
	stats, _ := l.store.GetProperty("leveldb.stats")

	meta := &struct {
		Location string `json:"location"`
		ReadOnly bool   `json:"read_only"`
		KeyMode  string `json:"key_mode"`
		Sequence uint64 `json:"sequence"`
		Pending  int    `json:"pending"`
		Stats    string `json:"stats"`
	}{
		Location: l.dir,
		ReadOnly: l.opts.ReadOnly,
		KeyMode:  l.opts.KeyMode.String(),
		Sequence: l.committedSeq,
		Pending:  l.Pending(),
		Stats:    stats,
	}

	return db.DatabaseInfo{
		SizeBytes:     util.DirSize(l.dir),
		DbType:        db.ImplLevel,
		Policy:        db.PolicyRowInsert,
		DeclaredTypes: types,
		SupportedFeatures: []db.Feature{
			db.FeatureWrite, db.FeatureRead,
			db.FeatureBatch, db.FeatureRangeScan,
			db.FeatureDurable,
		},
		Metadata: meta,
	}
}

func (l *levelImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureWrite |
		db.FeatureRead |
		db.FeatureBatch |
		db.FeatureRangeScan |
		db.FeatureDurable
	return supportedFeatures&feature == feature
}

// Close drops the pending batch and closes the database
func (l *levelImpl) Close() error {
	if n := l.Pending(); n > 0 {
		Logger.Warningf("closing leveldb database %s with %d uncommitted writes", l.dir, n)
	}
	l.Discard()
	return l.store.Close()
}
