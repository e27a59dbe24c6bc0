package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple  Implementation = "maple"
	ImplSQLite Implementation = "sqlite"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureSet            Feature = 1 << iota // Support for Set operations
	FeatureApply                              // Support for atomic batch writes
	FeatureGet                                // Support for Get operations
	FeatureHas                                // Support for Has operations
	FeatureExtendTTL                          // Support for region lease extension
	FeatureSave                               // Support for Save operations
	FeatureLoad                               // Support for Load operations
	FeatureGarbageCollect                     // Support for reclaiming lapsed regions
)

func (f Feature) String() string {
	switch f {
	case FeatureSet:
		return "Set"
	case FeatureApply:
		return "Apply"
	case FeatureGet:
		return "Get"
	case FeatureHas:
		return "Has"
	case FeatureExtendTTL:
		return "ExtendTTL"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	case FeatureGarbageCollect:
		return "GarbageCollect"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Batch Type
// --------------------------------------------------------------------------

// Write is a single staged key-value write.
type Write struct {
	Key   string
	Value []byte
}

// TTLExtension describes a lease extension of the whole storage region.
// Both values are durations on the ledger clock (seconds). If less than Threshold remains
// until the lease lapses, it is extended to ExtendTo past the ledger time of the batch.
type TTLExtension struct {
	Threshold uint64
	ExtendTo  uint64
}

// Batch is a set of writes (plus an optional region lease extension) that must become
// visible together or not at all.
// LedgerTime is the ledger clock the batch closes at. It is persisted with the writes and never
// moves the clock backwards, 0 keeps the current clock.
type Batch struct {
	Writes     []Write
	Extend     *TTLExtension
	LedgerTime uint64
}

// Empty reports whether the batch would change nothing.
func (b Batch) Empty() bool {
	return len(b.Writes) == 0 && b.Extend == nil && b.LedgerTime == 0
}

// LeaseLapsed reports whether a region with the given lease is reclaimable at ledger time now.
// A liveUntil of 0 means no lease was ever taken, such a region never lapses.
func LeaseLapsed(liveUntil, now uint64) bool {
	return liveUntil != 0 && now > liveUntil
}

// ExtendedLease computes the new lease of a region after an ExtendTTL(threshold, extendTo) call at ledger time now.
func ExtendedLease(liveUntil, threshold, extendTo, now uint64) uint64 {
	if liveUntil == 0 || liveUntil < now || liveUntil-now < threshold {
		if target := now + extendTo; target > liveUntil {
			return target
		}
	}
	return liveUntil
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for key-value database implementations.
// The database holds one storage region: all keys share a single lease (LiveUntil) that is measured
// on the ledger clock. The clock moves with committed batches (or SetLedgerTime), so invocations that never
// commit cannot age the region. Once the lease lapses the whole region is reclaimed.
// Implementations can vary in their feature support, which can be queried with SupportsFeature.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Apply writes all entries of the batch and applies the optional lease extension atomically.
	// Readers either observe the complete batch or nothing of it.
	// The writeIndex parameter orders writes to the same key, batch.LedgerTime advances the ledger clock
	// in the same atomic step. A region whose lease lapsed at the new ledger time is reclaimed first.
	Apply(batch Batch, writeIndex uint64) (err error)

	// Set inserts or updates an entry with the given key, value, and writeIndex.
	// If the key already exists, the old value is overwritten.
	Set(key string, value []byte, writeIndex uint64) (err error)

	// ExtendTTL extends the lease of the whole region to LedgerTime()+extendTo if the remaining
	// lease is below threshold (or no lease exists yet). No data is altered.
	ExtendTTL(threshold, extendTo uint64, writeIndex uint64) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// Absent keys (and keys of a lapsed region) are reported with loaded=false and no error.
	Get(key string) (value []byte, loaded bool, err error)

	// Has checks whether a key exists in the database.
	Has(key string) (loaded bool, err error)

	// LiveUntil returns the ledger time until which the region is guaranteed to be retained (0 = no lease).
	LiveUntil() (timestamp uint64)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// --------------------------------------------------------------------------
	// Write Index & Ledger Clock Operations
	// --------------------------------------------------------------------------

	// SetWriteIdx sets the current index of the database only if the provided index is greater than the current index.
	SetWriteIdx(index uint64)

	// WriteIdx returns the current index of the database.
	WriteIdx() (index uint64)

	// SetLedgerTime sets the ledger clock only if the provided time is greater than the current one.
	SetLedgerTime(timestamp uint64)

	// LedgerTime returns the last ledger time recorded by the database.
	LedgerTime() (timestamp uint64)

	// Close closes the database.
	Close() (err error)
}
