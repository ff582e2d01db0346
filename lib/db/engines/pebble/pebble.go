package pebble

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/db/util"
	"github.com/ValentinKolb/jstore/lib/document"
	pebbledb "github.com/cockroachdb/pebble"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Key Layout
// --------------------------------------------------------------------------

/*
 d | type | 0x00 | encoded key   -> concatenated payloads of (type, key)
 m | "types"                    -> JSON array of all declared types (sorted)

 Type names never contain 0x00, so the separator is unambiguous.
*/

const (
	prefixDoc  byte = 'd'
	prefixMeta byte = 'm'
)

var typesKey = append([]byte{prefixMeta}, "types"...)

func docKey(docType string, key document.Key) []byte {
	b := make([]byte, 0, 1+len(docType)+1+16)
	b = append(b, prefixDoc)
	b = append(b, docType...)
	b = append(b, 0x00)
	return util.AppendKey(b, key)
}

// --------------------------------------------------------------------------
// Core Pebble database structure
// --------------------------------------------------------------------------

// pebbleImpl implements db.PartitionDB on a pebble LSM tree. Payloads are
// accumulated with merge operands resolved by ConcatenateMerger.
type pebbleImpl struct {
	dir   string
	opts  db.Options
	store *pebbledb.DB

	// writer state, only touched by the single writer goroutine
	batch   *pebbledb.Batch
	pending int
	known   map[string]struct{} // committed types
	staged  map[string]struct{} // types first written in the current batch
}

// NewPebbleDB opens (or creates) a pebble database in dir
func NewPebbleDB(dir string, opts db.Options) (db.PartitionDB, error) {
	store, err := pebbledb.Open(dir, &pebbledb.Options{
		Merger:   ConcatenateMerger,
		ReadOnly: opts.ReadOnly,
		Logger:   engineLogger{},
	})
	if err != nil {
		return nil, fmt.Errorf("could not open pebble database in %s: %w", dir, err)
	}

	p := &pebbleImpl{
		dir:    dir,
		opts:   opts,
		store:  store,
		known:  make(map[string]struct{}),
		staged: make(map[string]struct{}),
	}

	types, err := p.DeclaredTypes()
	if err != nil {
		store.Close()
		return nil, err
	}
	for _, t := range types {
		p.known[t] = struct{}{}
	}

	Logger.Debugf("opened pebble database %s (%d declared types, read-only=%t)", dir, len(types), opts.ReadOnly)
	return p, nil
}

// --------------------------------------------------------------------------
// PartitionDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

func (p *pebbleImpl) Write(docType string, key document.Key, payload []byte) error {
	if p.opts.ReadOnly {
		return db.ErrReadOnly
	}
	if key.Mode() != p.opts.KeyMode {
		return fmt.Errorf("%w: %s key in %s database", db.ErrKeyMode, key.Mode(), p.opts.KeyMode)
	}

	if p.batch == nil {
		p.batch = p.store.NewBatch()
	}
	if err := p.batch.Merge(docKey(docType, key), payload, nil); err != nil {
		return err
	}

	if _, ok := p.known[docType]; !ok {
		p.staged[docType] = struct{}{}
	}
	p.pending++
	return nil
}

func (p *pebbleImpl) Commit() error {
	if p.batch == nil {
		return nil
	}

	// register new types in the same batch as their first documents
	if len(p.staged) > 0 {
		types := make([]string, 0, len(p.known)+len(p.staged))
		for t := range p.known {
			types = append(types, t)
		}
		for t := range p.staged {
			types = append(types, t)
		}
		sort.Strings(types)

		raw, err := json.Marshal(types)
		if err != nil {
			p.Discard()
			return err
		}
		if err := p.batch.Set(typesKey, raw, nil); err != nil {
			p.Discard()
			return err
		}
	}

	if err := p.batch.Commit(pebbledb.Sync); err != nil {
		p.Discard()
		return fmt.Errorf("could not commit batch: %w", err)
	}

	for t := range p.staged {
		p.known[t] = struct{}{}
	}
	p.resetBatch()
	return nil
}

func (p *pebbleImpl) Discard() {
	p.resetBatch()
}

func (p *pebbleImpl) Pending() int {
	return p.pending
}

func (p *pebbleImpl) resetBatch() {
	if p.batch != nil {
		_ = p.batch.Close()
		p.batch = nil
	}
	p.pending = 0
	clear(p.staged)
}

// --------------------------------------------------------------------------
// PartitionDB Interface Methods - Query Operations
// --------------------------------------------------------------------------

// get returns a copy of the value stored under key or nil if there is none
func (p *pebbleImpl) get(key []byte) ([]byte, error) {
	value, closer, err := p.store.Get(key)
	if errors.Is(err, pebbledb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(value), nil
}

func (p *pebbleImpl) DeclaredTypes() ([]string, error) {
	raw, err := p.get(typesKey)
	if err != nil || raw == nil {
		return nil, err
	}
	var types []string
	if err := json.Unmarshal(raw, &types); err != nil {
		return nil, fmt.Errorf("%w: declared types: %v", db.ErrCorrupt, err)
	}
	return types, nil
}

func (p *pebbleImpl) Read(docType string, key document.Key) ([][]byte, error) {
	if key.Mode() != p.opts.KeyMode {
		return nil, fmt.Errorf("%w: %s key in %s database", db.ErrKeyMode, key.Mode(), p.opts.KeyMode)
	}
	raw, err := p.get(docKey(docType, key))
	if err != nil || raw == nil {
		return nil, err
	}
	return util.SplitConcatenated(raw)
}

// ScanRange uses point reads for every key of the interval. Range extraction
// expects dense keys, so there is (almost) one hit per read.
func (p *pebbleImpl) ScanRange(min, max int64, fn db.ScanFunc) error {
	if p.opts.KeyMode != document.KeyModeInt {
		return fmt.Errorf("%w: range scan on %s keys", db.ErrUnsupported, p.opts.KeyMode)
	}
	if min > max {
		return nil
	}

	types, err := p.DeclaredTypes()
	if err != nil {
		return err
	}

	for k := min; ; k++ {
		key := document.IntKey(k)
		for _, t := range types {
			raw, err := p.get(docKey(t, key))
			if err != nil {
				return err
			}
			if raw == nil {
				continue
			}
			payloads, err := util.SplitConcatenated(raw)
			if err != nil {
				return fmt.Errorf("key %d, type %s: %w", k, t, err)
			}
			if err := fn(k, t, payloads); err != nil {
				return err
			}
		}
		if k == max {
			return nil
		}
	}
}

// --------------------------------------------------------------------------
// PartitionDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

func (p *pebbleImpl) GetInfo() db.DatabaseInfo {
	types, _ := p.DeclaredTypes()

	meta := &struct {
		Location string `json:"location"`
		Merger   string `json:"merger"`
		ReadOnly bool   `json:"read_only"`
		KeyMode  string `json:"key_mode"`
		Pending  int    `json:"pending"`
	}{
		Location: p.dir,
		Merger:   MergerName,
		ReadOnly: p.opts.ReadOnly,
		KeyMode:  p.opts.KeyMode.String(),
		Pending:  p.pending,
	}

	return db.DatabaseInfo{
		SizeBytes:     util.DirSize(p.dir),
		DbType:        db.ImplPebble,
		Policy:        db.PolicyMergeAppend,
		DeclaredTypes: types,
		SupportedFeatures: []db.Feature{
			db.FeatureWrite, db.FeatureRead,
			db.FeatureBatch, db.FeatureRangeScan,
			db.FeatureDurable,
		},
		Metadata: meta,
	}
}

func (p *pebbleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureWrite |
		db.FeatureRead |
		db.FeatureBatch |
		db.FeatureRangeScan |
		db.FeatureDurable
	return supportedFeatures&feature == feature
}

// Close drops the pending batch and closes the database
func (p *pebbleImpl) Close() error {
	if p.pending > 0 {
		Logger.Warningf("closing pebble database %s with %d uncommitted writes", p.dir, p.pending)
	}
	p.resetBatch()
	return p.store.Close()
}

// --------------------------------------------------------------------------
// Logging
// --------------------------------------------------------------------------

// engineLogger routes pebble's internal log output to the engine logger
type engineLogger struct{}

func (engineLogger) Infof(format string, args ...interface{}) {
	Logger.Debugf("pebble: "+format, args...)
}

func (engineLogger) Errorf(format string, args ...interface{}) {
	Logger.Errorf("pebble: "+format, args...)
}

func (engineLogger) Fatalf(format string, args ...interface{}) {
	Logger.Panicf("pebble: "+format, args...)
}
