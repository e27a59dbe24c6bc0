package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/dProof/lib/db/util"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum          = "MAPLEDB\x00"          // File format identifier
	mapleVersion      = 5                      // Database version
	defaultGCInterval = 100 * time.Millisecond // Default interval between GC runs
)

var log = logger.GetLogger("db")

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory database with sharded data and one lease for the whole region
type mapleImpl struct {
	numShards  int               // Number of shards
	seed       uint64            // Seed for hash function
	shards     []*internal.Shard // Array of shards
	currIndex  atomic.Uint64     // Current write index
	ledgerTime atomic.Uint64     // Current ledger clock
	liveUntil  atomic.Uint64     // Lease of the region (0 = no lease)

	// region guards the shard slice: batches and reclaims hold the write lock, reads the read lock
	region sync.RWMutex

	// garbage collection
	gcInterval  time.Duration
	gcIsRunning atomic.Bool
	gcStop      chan struct{}
	gcDone      chan struct{}
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	NumShards  int           // Number of shards (0 = auto)
	GCInterval time.Duration // Time between GC runs (0 = use default)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		NumShards:  runtime.NumCPU(),  // Auto-determine based on CPU count
		GCInterval: defaultGCInterval, // Default GC interval
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewMapleDB(opts *DBOptions) db.KVDB {

	// Generate default options if not provided
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.NumShards <= 0 {
		opts.NumShards = runtime.NumCPU()
	}
	if opts.GCInterval <= 0 {
		opts.GCInterval = defaultGCInterval
	}

	newDB := &mapleImpl{
		numShards:  opts.NumShards,
		seed:       util.GenerateSeed(),
		shards:     internal.NewShards(opts.NumShards),
		gcInterval: opts.GCInterval,
	}

	// start garbage collection
	newDB.startGC()

	return newDB
}

// shardFor returns the shard responsible for a key.
// The caller must hold the region lock.
func (maple *mapleImpl) shardFor(key string) *internal.Shard {
	return internal.GetShard(util.HashString(key, maple.seed), maple.shards)
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Apply writes all entries of the batch and applies the optional lease extension.
// The batch holds the region write lock for its whole duration, so readers observe all
// of its writes (and its ledger time) or none of them.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Apply(batch db.Batch, writeIndex uint64) error {
	maple.region.Lock()
	defer maple.region.Unlock()

	// update the current index and the ledger clock
	maple.SetWriteIdx(writeIndex)
	maple.SetLedgerTime(batch.LedgerTime)
	now := maple.ledgerTime.Load()

	// a lapsed region is reclaimed before it is written again
	maple.reclaimIfLapsed(now)

	for _, w := range batch.Writes {
		maple.compute(w.Key, w.Value, writeIndex)
	}

	if batch.Extend != nil {
		old := maple.liveUntil.Load()
		maple.liveUntil.Store(db.ExtendedLease(old, batch.Extend.Threshold, batch.Extend.ExtendTo, now))
	}
	return nil
}

// Set inserts or updates an entry with the given key, value, and writeIndex.
// If the key already exists, the old value is overwritten.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Set(key string, value []byte, writeIndex uint64) error {
	return maple.Apply(db.Batch{Writes: []db.Write{{Key: key, Value: value}}}, writeIndex)
}

// ExtendTTL extends the lease of the region if less than threshold remains at the current ledger time.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) ExtendTTL(threshold, extendTo uint64, writeIndex uint64) error {
	return maple.Apply(db.Batch{Extend: &db.TTLExtension{Threshold: threshold, ExtendTo: extendTo}}, writeIndex)
}

// compute stores a copy of value for key unless the stored entry carries a newer write index
// (stale writes are ignored). The caller must hold the region write lock.
func (maple *mapleImpl) compute(key string, value []byte, writeIndex uint64) {
	shard := maple.shardFor(key)

	// Copy value to prevent memory corruption
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	shard.Data.Compute(key, func(oldEntry internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded && writeIndex < oldEntry.Index {
			return oldEntry, false
		}
		return internal.Entry{Value: valueCopy, Index: writeIndex}, false
	})
}

// reclaimIfLapsed drops every entry if the lease of the region lapsed at ledger time now.
// The caller must hold the region write lock.
func (maple *mapleImpl) reclaimIfLapsed(now uint64) bool {
	liveUntil := maple.liveUntil.Load()
	if !db.LeaseLapsed(liveUntil, now) {
		return false
	}
	for _, shard := range maple.shards {
		shard.Data.Clear()
	}
	maple.liveUntil.Store(0)
	log.Infof("region lease lapsed at ledger time %d (live until %d), all entries reclaimed", now, liveUntil)
	return true
}

// --------------------------------------------------------------------------
// Core KVDB Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a value for a key.
// The boolean indicates whether a value for the key was found.
// The returned value is a copy of the stored data and therefore safe to use and modify.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Get(key string) ([]byte, bool, error) {
	maple.region.RLock()
	defer maple.region.RUnlock()

	if db.LeaseLapsed(maple.liveUntil.Load(), maple.ledgerTime.Load()) {
		return nil, false, nil
	}

	e, ok := maple.shardFor(key).Data.Load(key)
	if !ok {
		return nil, false, nil
	}

	data := make([]byte, len(e.Value))
	copy(data, e.Value)
	return data, true, nil
}

// Has checks if a key exists in the database.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) Has(key string) (bool, error) {
	maple.region.RLock()
	defer maple.region.RUnlock()

	if db.LeaseLapsed(maple.liveUntil.Load(), maple.ledgerTime.Load()) {
		return false, nil
	}
	_, ok := maple.shardFor(key).Data.Load(key)
	return ok, nil
}

// LiveUntil returns the ledger time until which the region is retained (0 = no lease)
func (maple *mapleImpl) LiveUntil() uint64 {
	return maple.liveUntil.Load()
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// startGC starts the garbage collector
// if the GC is already running, this function does nothing
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) startGC() {
	if maple.gcIsRunning.CompareAndSwap(false, true) {
		maple.gcStop = make(chan struct{})
		maple.gcDone = make(chan struct{})
		go maple.garbageCollector(maple.gcStop, maple.gcDone)
	}
}

// stopGC stops the garbage collector and waits for it to exit.
// if the GC is not running, this function does nothing.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) stopGC() {
	if maple.gcIsRunning.CompareAndSwap(true, false) {
		close(maple.gcStop)
		<-maple.gcDone
	}
}

// garbageCollector reclaims the region once its lease lapsed.
// WARNING: this method should never be called! to enable GC, use startGC() and stopGC()
func (maple *mapleImpl) garbageCollector(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(maple.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			/*
				Note: The check is done without the lock first so that an idle database
				never contends with readers. The reclaim re-checks under the write lock.
			*/
			if !db.LeaseLapsed(maple.liveUntil.Load(), maple.ledgerTime.Load()) {
				continue
			}
			maple.region.Lock()
			maple.reclaimIfLapsed(maple.ledgerTime.Load())
			maple.region.Unlock()
		}
	}
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the database to the writer.
// The region read lock is held during the save, so the snapshot is a consistent cut
// with respect to batches.
//
// Format:
//
//	magic | version (u8) | seed | write index | ledger time | live until | count |
//	count * (key len (u32) | key | index | value len (u32) | value)
func (maple *mapleImpl) Save(w io.Writer) error {
	maple.region.RLock()
	defer maple.region.RUnlock()

	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type entryToSave struct {
		key   string
		entry internal.Entry
	}

	writeIndex := maple.currIndex.Load()
	ledgerTime := maple.ledgerTime.Load()
	liveUntil := maple.liveUntil.Load()

	var dataEntries []entryToSave
	if !db.LeaseLapsed(liveUntil, ledgerTime) {
		for _, shard := range maple.shards {
			shard.Data.Range(func(key string, entry internal.Entry) bool {
				dataEntries = append(dataEntries, entryToSave{key, entry})
				return true
			})
		}
	} else {
		liveUntil = 0
	}

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}
	header := []any{
		uint8(mapleVersion),
		maple.seed,
		writeIndex,
		ledgerTime,
		liveUntil,
		uint64(len(dataEntries)),
	}
	for _, field := range header {
		if err := binary.Write(bw, binary.LittleEndian, field); err != nil {
			return err
		}
	}

	// Write data entries
	for _, item := range dataEntries {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(item.key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.Index); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.entry.Value))); err != nil {
			return err
		}
		if _, err := bw.Write(item.entry.Value); err != nil {
			return err
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load restores a database from the reader, replacing all current state.
//
// Thread-safety: This function blocks all other operations while it runs.
func (maple *mapleImpl) Load(r io.Reader) error {

	// stop gc during load
	maple.stopGC()
	defer maple.startGC()

	maple.region.Lock()
	defer maple.region.Unlock()

	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var seed, writeIndex, ledgerTime, liveUntil, dataCount uint64
	for _, field := range []*uint64{&seed, &writeIndex, &ledgerTime, &liveUntil, &dataCount} {
		if err := binary.Read(br, binary.LittleEndian, field); err != nil {
			return err
		}
	}

	// Recreate empty shards with the loaded seed
	shards := internal.NewShards(maple.numShards)

	for i := uint64(0); i < dataCount; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(br, key); err != nil {
			return err
		}

		var index uint64
		if err := binary.Read(br, binary.LittleEndian, &index); err != nil {
			return err
		}

		var valueLen uint32
		if err := binary.Read(br, binary.LittleEndian, &valueLen); err != nil {
			return err
		}
		value := make([]byte, valueLen)
		if _, err := io.ReadFull(br, value); err != nil {
			return err
		}

		shard := internal.GetShard(util.HashString(string(key), seed), shards)
		shard.Data.Store(string(key), internal.Entry{Value: value, Index: index})
	}

	// swap in the loaded state
	maple.shards = shards
	maple.seed = seed
	maple.currIndex.Store(writeIndex)
	maple.ledgerTime.Store(ledgerTime)
	maple.liveUntil.Store(liveUntil)

	return nil
}

// --------------------------------------------------------------------------
// KVDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {
	maple.region.RLock()
	defer maple.region.RUnlock()

	samplesPerShard := 100
	sizes := util.NewRecordSizes(samplesPerShard * len(maple.shards))
	shardSizes := make([]float64, len(maple.shards))
	entries := 0

	for i, shard := range maple.shards {
		count := 0
		shard.Data.Range(func(key string, entry internal.Entry) bool {
			sizes.Add(len(key) + len(entry.Value))
			count++
			return count < samplesPerShard
		})
		size := shard.Data.Size()
		shardSizes[i] = float64(size)
		entries += size
	}

	// 8 bytes write index per entry
	sizeBytes := sizes.EstimateBytes(entries, 8)

	meta := &struct {
		CurrentWriteIndex uint64                 `json:"current_write_index"`
		LedgerTime        uint64                 `json:"ledger_time"`
		LiveUntil         uint64                 `json:"live_until"`
		Entries           int                    `json:"entries"`
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
		Info              string                 `json:"info"`
	}{
		CurrentWriteIndex: maple.currIndex.Load(),
		LedgerTime:        maple.ledgerTime.Load(),
		LiveUntil:         maple.liveUntil.Load(),
		Entries:           entries,
		ShardCount:        len(maple.shards),
		ShardDistribution: util.NewDistributionStats(shardSizes),
		Info:              "SizeBytes is an estimate and may vary depending on the database state.",
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureApply,
			db.FeatureGet, db.FeatureHas,
			db.FeatureExtendTTL,
			db.FeatureSave, db.FeatureLoad,
			db.FeatureGarbageCollect,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific KVDB feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureSet |
		db.FeatureApply |
		db.FeatureGet |
		db.FeatureHas |
		db.FeatureExtendTTL |
		db.FeatureSave |
		db.FeatureLoad |
		db.FeatureGarbageCollect
	return supportedFeatures&feature == feature
}

// Close stops the garbage collector
func (maple *mapleImpl) Close() error {
	maple.stopGC()
	return nil
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

// SetWriteIdx safely updates the current index
// It only updates if the new index is greater than the current one
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetWriteIdx(newIdx uint64) {
	storeMax(&maple.currIndex, newIdx)
}

// WriteIdx returns the current index of the database
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.currIndex.Load()
}

// SetLedgerTime safely advances the ledger clock
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) SetLedgerTime(timestamp uint64) {
	storeMax(&maple.ledgerTime, timestamp)
}

// LedgerTime returns the current ledger clock of the database
func (maple *mapleImpl) LedgerTime() uint64 {
	return maple.ledgerTime.Load()
}

// storeMax stores v in a only if it is greater than the current value.
func storeMax(a *atomic.Uint64, v uint64) {
	for {
		curr := a.Load()
		if v <= curr {
			return
		}
		if a.CompareAndSwap(curr, v) {
			return
		}
	}
}
