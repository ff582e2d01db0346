package lstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/jstore/lib/common"
	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/db/engines/level"
	"github.com/ValentinKolb/jstore/lib/db/engines/maple"
	"github.com/ValentinKolb/jstore/lib/db/engines/pebble"
	"github.com/ValentinKolb/jstore/lib/document"
	"github.com/ValentinKolb/jstore/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

// DefaultBatchSize is the number of staged writes after which a batch is
// committed automatically
const DefaultBatchSize = common.DefaultBatchSize

// Factories maps every engine to the function opening it
var Factories = map[db.Implementation]store.DBFactory{
	db.ImplPebble: pebble.NewPebbleDB,
	db.ImplLevel:  level.NewLevelDB,
	db.ImplMaple:  maple.NewMapleDB,
}

// Options configure how a store location is opened
type Options struct {
	// Engine used to create a new store. Empty means the manifest's engine for
	// existing stores and pebble for new ones. A different engine than the
	// recorded one is an error.
	Engine db.Implementation
	// KeyMode of the store. A different key mode than the recorded one is an
	// error unless AdoptKeyMode is set.
	KeyMode document.KeyMode
	// AdoptKeyMode makes an existing store use its recorded key mode instead of KeyMode
	AdoptKeyMode bool
	// BatchSize is the number of staged writes committed at once (0 = DefaultBatchSize)
	BatchSize int
	// ReadOnly opens an existing store without write access
	ReadOnly bool
}

type storeImpl struct {
	location  string
	manifest  Manifest
	batchSize int
	db        db.PartitionDB
	closed    atomic.Bool
}

// Open opens the store at location, creating it if it does not exist and the
// store is not opened read-only. Opening an existing store is idempotent.
func Open(location string, opts Options) (store.IStore, error) {
	manifest, err := ReadManifest(location)
	if err != nil {
		return nil, store.WrapError(store.RetCStoreUnavailable, err, "could not read manifest of %s", location)
	}

	if manifest == nil {
		if opts.ReadOnly {
			return nil, store.NewError(store.RetCStoreUnavailable, fmt.Sprintf("no store at %s", location))
		}
		if manifest, err = create(location, opts); err != nil {
			return nil, err
		}
	}

	if opts.Engine != "" && opts.Engine != manifest.Engine {
		return nil, store.NewError(store.RetCStoreUnavailable,
			fmt.Sprintf("store %s uses engine %s, not %s", location, manifest.Engine, opts.Engine))
	}

	mode, _ := manifest.Mode() // validated by ReadManifest
	if !opts.AdoptKeyMode && mode != opts.KeyMode {
		return nil, store.NewError(store.RetCStoreUnavailable,
			fmt.Sprintf("store %s has %s keys, not %s", location, mode, opts.KeyMode))
	}

	factory, ok := Factories[manifest.Engine]
	if !ok {
		return nil, store.NewError(store.RetCStoreUnavailable, fmt.Sprintf("unknown engine %s", manifest.Engine))
	}
	database, err := factory(filepath.Join(location, string(manifest.Engine)), db.Options{
		KeyMode:  mode,
		ReadOnly: opts.ReadOnly,
	})
	if err != nil {
		return nil, store.WrapError(store.RetCStoreUnavailable, err, "could not open store %s", location)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	Logger.Infof("opened store %s (engine=%s, keys=%s, read-only=%t)", location, manifest.Engine, mode, opts.ReadOnly)
	return &storeImpl{
		location:  location,
		manifest:  *manifest,
		batchSize: batchSize,
		db:        database,
	}, nil
}

// create initializes a new store location
func create(location string, opts Options) (*Manifest, error) {
	engine := opts.Engine
	if engine == "" {
		engine = db.ImplPebble
	}
	if _, ok := Factories[engine]; !ok {
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown engine %s", engine))
	}

	if err := os.MkdirAll(location, 0o755); err != nil {
		return nil, store.WrapError(store.RetCStoreUnavailable, err, "could not create store %s", location)
	}

	m := &Manifest{
		FormatVersion: FormatVersion,
		Engine:        engine,
		KeyMode:       opts.KeyMode.String(),
		Created:       time.Now().UTC().Truncate(time.Second),
	}
	if err := WriteManifest(location, m); err != nil {
		return nil, store.WrapError(store.RetCStoreUnavailable, err, "could not write manifest of %s", location)
	}

	Logger.Infof("created store %s (engine=%s, keys=%s)", location, engine, opts.KeyMode)
	return m, nil
}

// --------------------------------------------------------------------------
// Error mapping
// --------------------------------------------------------------------------

// wrapDBError converts an engine error to a *store.Error
func wrapDBError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		return err
	}

	code := store.RetCInternalError
	switch {
	case errors.Is(err, db.ErrCorrupt):
		code = store.RetCStoreCorrupt
	case errors.Is(err, db.ErrReadOnly), errors.Is(err, db.ErrKeyMode):
		code = store.RetCInvalidOperation
	case errors.Is(err, db.ErrUnsupported):
		code = store.RetCUnsupportedOperation
	}
	return store.WrapError(code, err, format, args...)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Write(docType string, key document.Key, payload []byte) error {
	if err := document.ValidateType(docType); err != nil {
		return store.WrapError(store.RetCInvalidOperation, err, "invalid document type %q", docType)
	}
	if err := s.db.Write(docType, key, payload); err != nil {
		return wrapDBError(err, "could not write %s/%s", docType, key)
	}
	if s.db.Pending() >= s.batchSize {
		return s.Flush()
	}
	return nil
}

func (s *storeImpl) Flush() error {
	n := s.db.Pending()
	if n == 0 {
		return nil
	}

	start := time.Now()
	if err := s.db.Commit(); err != nil {
		common.BatchesAborted.Inc()
		return wrapDBError(err, "could not commit batch of %d documents", n)
	}

	common.ObserveSince(common.CommitDuration, start)
	common.BatchSize.Update(float64(n))
	common.BatchesCommitted.Inc()
	common.DocumentsWritten.Add(n)
	Logger.Debugf("committed batch of %d documents in %s", n, time.Since(start))
	return nil
}

func (s *storeImpl) Abort() int {
	n := s.db.Pending()
	if n > 0 {
		s.db.Discard()
		common.BatchesAborted.Inc()
		Logger.Warningf("discarded batch of %d uncommitted documents", n)
	}
	return n
}

func (s *storeImpl) DeclaredTypes() ([]string, error) {
	types, err := s.db.DeclaredTypes()
	return types, wrapDBError(err, "could not read declared types")
}

func (s *storeImpl) Read(docType string, key document.Key) ([][]byte, error) {
	payloads, err := s.db.Read(docType, key)
	return payloads, wrapDBError(err, "could not read %s/%s", docType, key)
}

func (s *storeImpl) ScanRange(min, max int64, fn db.ScanFunc) error {
	if !s.db.SupportsFeature(db.FeatureRangeScan) {
		return store.NewError(store.RetCUnsupportedOperation, "ScanRange operation is not supported")
	}
	return wrapDBError(s.db.ScanRange(min, max, fn), "could not scan range %d..%d", min, max)
}

func (s *storeImpl) KeyMode() document.KeyMode {
	mode, _ := s.manifest.Mode()
	return mode
}

func (s *storeImpl) Location() string {
	return s.location
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}

func (s *storeImpl) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return store.WrapError(store.RetCInternalError, err, "could not close store %s", s.location)
	}
	Logger.Debugf("closed store %s", s.location)
	return nil
}
