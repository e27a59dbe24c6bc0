package registry

import (
	"github.com/ValentinKolb/dProof/lib/db"
)

// Reader is the read side of the registry storage.
type Reader interface {
	// Get returns the stored value of key. Absent keys are reported with found=false and no error.
	Get(key Key) (value []byte, found bool, err error)
}

// Storage is the storage of one registry invocation.
// Writes are only staged. The host commits them all at once or drops them.
type Storage interface {
	Reader
	// Put stages a write of key.
	Put(key Key, value []byte)
	// ExtendTTL stages a lease extension of the whole storage region, both values in ledgers.
	ExtendTTL(threshold, extendTo uint64)
}

// --------------------------------------------------------------------------
// Read-only view
// --------------------------------------------------------------------------

type view struct {
	kv db.KVDB
}

// View returns a Reader on the committed state of kv.
func View(kv db.KVDB) Reader {
	return view{kv: kv}
}

func (v view) Get(key Key) ([]byte, bool, error) {
	return v.kv.Get(key.Encode())
}

// --------------------------------------------------------------------------
// Staging transaction
// --------------------------------------------------------------------------

// Tx stages the writes of one invocation on top of a db.KVDB.
// Reads see the staged writes first and the committed state second. The invocation runs at a
// fixed ledger time: a region whose lease lapsed by then reads as empty, the same state Commit
// will find after reclaiming it.
// Commit hands all staged writes to the database as one db.Batch.
//
// A Tx is not safe for concurrent use, the host serializes invocations.
type Tx struct {
	kv     db.KVDB
	now    uint64
	staged map[string][]byte
	order  []string
	extend *db.TTLExtension
	closed bool
}

// Begin starts a new transaction on kv at the ledger time read from the clock.
// The reading is clamped with LedgerNow.
func Begin(kv db.KVDB, reading uint64) *Tx {
	return &Tx{
		kv:     kv,
		now:    LedgerNow(kv, reading),
		staged: make(map[string][]byte),
	}
}

// LedgerTime returns the ledger time the transaction closes at.
func (tx *Tx) LedgerTime() uint64 {
	return tx.now
}

func (tx *Tx) Get(key Key) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, ErrTxClosed
	}
	if value, ok := tx.staged[key.Encode()]; ok {
		return value, true, nil
	}
	if db.LeaseLapsed(tx.kv.LiveUntil(), tx.now) {
		return nil, false, nil
	}
	return tx.kv.Get(key.Encode())
}

func (tx *Tx) Put(key Key, value []byte) {
	if tx.closed {
		return
	}
	k := key.Encode()
	if _, ok := tx.staged[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.staged[k] = value
}

func (tx *Tx) ExtendTTL(threshold, extendTo uint64) {
	if tx.closed {
		return
	}
	tx.extend = &db.TTLExtension{Threshold: threshold * LedgerSeconds, ExtendTo: extendTo * LedgerSeconds}
}

// Batch returns the staged writes in the order they were first staged.
func (tx *Tx) Batch() db.Batch {
	batch := db.Batch{Extend: tx.extend}
	for _, k := range tx.order {
		batch.Writes = append(batch.Writes, db.Write{Key: k, Value: tx.staged[k]})
	}
	return batch
}

// Commit applies all staged writes at ledger writeIdx. The database advances its ledger clock to
// the ledger time of the transaction in the same atomic step as the writes.
// An empty transaction only moves the write index. The Tx is closed afterward, even on error.
func (tx *Tx) Commit(writeIdx uint64) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true

	batch := tx.Batch()
	if batch.Empty() {
		tx.kv.SetWriteIdx(writeIdx)
		return nil
	}
	batch.LedgerTime = tx.now
	return tx.kv.Apply(batch, writeIdx)
}

// Discard drops every staged write.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.staged = nil
	tx.order = nil
	tx.extend = nil
}

// LedgerNow clamps a clock reading so that ledger time never goes backwards and is never 0.
func LedgerNow(kv db.KVDB, reading uint64) uint64 {
	return max(reading, kv.LedgerTime(), 1)
}
