package maple

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/jstore/lib/db/util"
	"github.com/ValentinKolb/jstore/lib/document"
	"github.com/klauspost/compress/zstd"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	magicNum     = "JSTMAPLE"       // File format identifier
	mapleVersion = 1                // Snapshot format version
	snapshotFile = "maple.snap.zst" // Snapshot file in the database directory
	lockFile     = "LOCK"           // Created exclusively by a writer
)

// ErrLocked is returned if another writer holds the database
var ErrLocked = errors.New("database is locked by another writer")

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements db.PartitionDB in memory with sharded maps.
// Commits are applied under an exclusive lock so readers never observe a
// partially applied batch.
type mapleImpl struct {
	dir    string
	opts   db.Options
	shards []*internal.Shard
	types  *xsync.MapOf[string, struct{}] // committed types

	mu    sync.RWMutex // readers share, Commit is exclusive
	dirty atomic.Bool  // set if the state differs from the snapshot

	// writer state, only touched by the single writer goroutine
	pending []internal.Op
	staged  map[string]struct{}
	locked  bool
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards int // Number of shards (0 = number of CPUs)
}

// NewMapleDB opens (or creates) a maple database in dir with default options
func NewMapleDB(dir string, opts db.Options) (db.PartitionDB, error) {
	return NewMapleDBWithOptions(dir, opts, DBOptions{})
}

// NewMapleDBWithOptions opens (or creates) a maple database in dir. If a snapshot
// exists it is loaded. A writer creates the LOCK file exclusively and removes it
// on Close.
func NewMapleDBWithOptions(dir string, opts db.Options, mapleOpts DBOptions) (db.PartitionDB, error) {
	numShards := mapleOpts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}

	shards := make([]*internal.Shard, numShards)
	for i := range shards {
		shards[i] = internal.NewShard()
	}

	maple := &mapleImpl{
		dir:    dir,
		opts:   opts,
		shards: shards,
		types:  xsync.NewMapOf[string, struct{}](),
		staged: make(map[string]struct{}),
	}

	if opts.ReadOnly {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("could not open maple database in %s: %w", dir, err)
		}
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create maple database in %s: %w", dir, err)
		}
		if err := maple.lock(); err != nil {
			return nil, err
		}
	}

	if err := maple.load(); err != nil {
		maple.unlock()
		return nil, err
	}

	Logger.Debugf("opened maple database %s (%d shards, %d declared types)", dir, numShards, maple.types.Size())
	return maple, nil
}

func (maple *mapleImpl) lock() error {
	f, err := os.OpenFile(filepath.Join(maple.dir, lockFile), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s (remove %s if no other process is running)", ErrLocked, maple.dir, lockFile)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	maple.locked = true
	return f.Close()
}

func (maple *mapleImpl) unlock() {
	if maple.locked {
		_ = os.Remove(filepath.Join(maple.dir, lockFile))
		maple.locked = false
	}
}

// --------------------------------------------------------------------------
// Hash Helper Functions
// --------------------------------------------------------------------------

func entryKey(docType string, key document.Key) string {
	b := make([]byte, 0, len(docType)+1+16)
	b = append(b, docType...)
	b = append(b, 0x00)
	return string(util.AppendKey(b, key))
}

func (maple *mapleImpl) shard(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key), maple.shards)
}

// --------------------------------------------------------------------------
// PartitionDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

func (maple *mapleImpl) Write(docType string, key document.Key, payload []byte) error {
	if maple.opts.ReadOnly {
		return db.ErrReadOnly
	}
	if key.Mode() != maple.opts.KeyMode {
		return fmt.Errorf("%w: %s key in %s database", db.ErrKeyMode, key.Mode(), maple.opts.KeyMode)
	}

	// Copy value to prevent memory corruption
	maple.pending = append(maple.pending, internal.Op{
		Key:     entryKey(docType, key),
		Payload: append([]byte(nil), payload...),
	})
	if _, ok := maple.types.Load(docType); !ok {
		maple.staged[docType] = struct{}{}
	}
	return nil
}

func (maple *mapleImpl) Commit() error {
	if len(maple.pending) == 0 {
		return nil
	}

	maple.mu.Lock()
	for _, op := range maple.pending {
		maple.shard(op.Key).Data.Compute(op.Key, func(old []byte, _ bool) ([]byte, bool) {
			return append(old, op.Payload...), false
		})
	}
	for t := range maple.staged {
		maple.types.Store(t, struct{}{})
	}
	maple.mu.Unlock()

	maple.dirty.Store(true)
	maple.Discard()
	return nil
}

func (maple *mapleImpl) Discard() {
	maple.pending = maple.pending[:0]
	clear(maple.staged)
}

func (maple *mapleImpl) Pending() int {
	return len(maple.pending)
}

// --------------------------------------------------------------------------
// PartitionDB Interface Methods - Query Operations
// --------------------------------------------------------------------------

func (maple *mapleImpl) DeclaredTypes() ([]string, error) {
	maple.mu.RLock()
	defer maple.mu.RUnlock()
	return maple.declaredTypes(), nil
}

func (maple *mapleImpl) declaredTypes() []string {
	types := make([]string, 0, maple.types.Size())
	maple.types.Range(func(t string, _ struct{}) bool {
		types = append(types, t)
		return true
	})
	sort.Strings(types)
	return types
}

func (maple *mapleImpl) Read(docType string, key document.Key) ([][]byte, error) {
	if key.Mode() != maple.opts.KeyMode {
		return nil, fmt.Errorf("%w: %s key in %s database", db.ErrKeyMode, key.Mode(), maple.opts.KeyMode)
	}

	maple.mu.RLock()
	defer maple.mu.RUnlock()
	return maple.read(entryKey(docType, key))
}

// read splits the value of k, the caller must hold the read lock
func (maple *mapleImpl) read(k string) ([][]byte, error) {
	raw, ok := maple.shard(k).Data.Load(k)
	if !ok {
		return nil, nil
	}
	// SplitConcatenated copies, the result stays valid after the lock is released
	return util.SplitConcatenated(raw)
}

func (maple *mapleImpl) ScanRange(min, max int64, fn db.ScanFunc) error {
	if maple.opts.KeyMode != document.KeyModeInt {
		return fmt.Errorf("%w: range scan on %s keys", db.ErrUnsupported, maple.opts.KeyMode)
	}
	if min > max {
		return nil
	}

	types, _ := maple.DeclaredTypes()
	for k := min; ; k++ {
		key := document.IntKey(k)
		for _, t := range types {
			maple.mu.RLock()
			payloads, err := maple.read(entryKey(t, key))
			maple.mu.RUnlock()
			if err != nil {
				return fmt.Errorf("key %d, type %s: %w", k, t, err)
			}
			if len(payloads) == 0 {
				continue
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
// Persistence Operations
// --------------------------------------------------------------------------

/*
 Snapshot layout (zstd compressed, integers little endian):

  magic (8 bytes) | version (uint8) | key mode (uint8)
  type count (uint32)  | { length (uint32) | name }
  entry count (uint64) | { key length (uint32) | key | value length (uint32) | value }
*/

// save writes the snapshot atomically (temporary file and rename)
func (maple *mapleImpl) save() error {
	maple.mu.RLock()
	defer maple.mu.RUnlock()

	path := filepath.Join(maple.dir, snapshotFile)
	tmp, err := os.CreateTemp(maple.dir, snapshotFile+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	zw, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	if err := maple.writeSnapshot(zw); err != nil {
		zw.Close()
		tmp.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (maple *mapleImpl) writeSnapshot(w io.Writer) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	writeBytes := func(b []byte) error {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(b))); err != nil {
			return err
		}
		_, err := bw.Write(b)
		return err
	}

	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, [2]uint8{mapleVersion, uint8(maple.opts.KeyMode)}); err != nil {
		return err
	}

	types := maple.declaredTypes()
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(types))); err != nil {
		return err
	}
	for _, t := range types {
		if err := writeBytes([]byte(t)); err != nil {
			return err
		}
	}

	var count uint64
	for _, shard := range maple.shards {
		count += uint64(shard.Data.Size())
	}
	if err := binary.Write(bw, binary.LittleEndian, count); err != nil {
		return err
	}

	var err error
	for _, shard := range maple.shards {
		shard.Data.Range(func(key string, value []byte) bool {
			if err = writeBytes([]byte(key)); err != nil {
				return false
			}
			err = writeBytes(value)
			return err == nil
		})
		if err != nil {
			return err
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// load reads the snapshot if there is one
func (maple *mapleImpl) load() error {
	f, err := os.Open(filepath.Join(maple.dir, snapshotFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	if err := maple.readSnapshot(zr); err != nil {
		return fmt.Errorf("%w: snapshot %s: %v", db.ErrCorrupt, f.Name(), err)
	}
	return nil
}

func (maple *mapleImpl) readSnapshot(r io.Reader) error {
	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	readBytes := func() ([]byte, error) {
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		b := make([]byte, n)
		_, err := io.ReadFull(br, b)
		return b, err
	}

	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	var header [2]uint8
	if err := binary.Read(br, binary.LittleEndian, &header); err != nil {
		return err
	}
	if header[0] != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", header[0], mapleVersion)
	}
	if document.KeyMode(header[1]) != maple.opts.KeyMode {
		return fmt.Errorf("snapshot has %s keys, expected %s", document.KeyMode(header[1]), maple.opts.KeyMode)
	}

	var typeCount uint32
	if err := binary.Read(br, binary.LittleEndian, &typeCount); err != nil {
		return err
	}
	for i := uint32(0); i < typeCount; i++ {
		t, err := readBytes()
		if err != nil {
			return err
		}
		maple.types.Store(string(t), struct{}{})
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		key, err := readBytes()
		if err != nil {
			return err
		}
		value, err := readBytes()
		if err != nil {
			return err
		}
		k := string(key)
		maple.shard(k).Data.Store(k, value)
	}
	return nil
}

// --------------------------------------------------------------------------
// PartitionDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	maple.mu.RLock()
	defer maple.mu.RUnlock()

	var (
		sizeBytes  int64
		entries    int
		shardSizes = make([]float64, len(maple.shards))
	)
	for i, shard := range maple.shards {
		shard.Data.Range(func(key string, value []byte) bool {
			sizeBytes += int64(len(key) + len(value))
			return true
		})
		entries += shard.Data.Size()
		shardSizes[i] = float64(shard.Data.Size())
	}

	// Metadata for this specific database implementation
	meta := &struct {
		Location          string                 `json:"location"`
		Snapshot          string                 `json:"snapshot"`
		Entries           int                    `json:"entries"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		Dirty             bool                   `json:"dirty"`
	}{
		Location:          maple.dir,
		Snapshot:          filepath.Join(maple.dir, snapshotFile),
		Entries:           entries,
		ShardCount:        len(maple.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		Dirty:             maple.dirty.Load(),
	}

	return db.DatabaseInfo{
		SizeBytes:     sizeBytes,
		DbType:        db.ImplMaple,
		Policy:        db.PolicyMergeAppend,
		DeclaredTypes: maple.declaredTypes(),
		SupportedFeatures: []db.Feature{
			db.FeatureWrite, db.FeatureRead,
			db.FeatureBatch, db.FeatureRangeScan,
			db.FeatureSnapshot,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureWrite |
		db.FeatureRead |
		db.FeatureBatch |
		db.FeatureRangeScan |
		db.FeatureSnapshot
	return supportedFeatures&feature == feature
}

// Close drops the pending batch, writes the snapshot if anything was committed
// and releases the writer lock
func (maple *mapleImpl) Close() error {
	if n := len(maple.pending); n > 0 {
		Logger.Warningf("closing maple database %s with %d uncommitted writes", maple.dir, n)
	}
	maple.Discard()
	defer maple.unlock()

	if maple.opts.ReadOnly || !maple.dirty.Load() {
		return nil
	}
	if err := maple.save(); err != nil {
		return fmt.Errorf("could not save maple snapshot: %w", err)
	}
	maple.dirty.Store(false)
	return nil
}
