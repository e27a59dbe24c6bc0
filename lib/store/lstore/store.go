package lstore

import (
	"github.com/ValentinKolb/dProof/lib/clock"
	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
	"sync/atomic"
)

var log = logger.GetLogger("store")

type storeImpl struct {
	db    db.KVDB
	reg   *registry.Registry
	clock clock.Clock

	// mu serializes registrations, reads go to the committed state of db directly
	mu    sync.Mutex
	index atomic.Uint64
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works on a single node.
// Registrations are serialized with a mutex and committed as one db batch each.
func NewLocalStore(factory store.DBFactory, reg *registry.Registry, clk clock.Clock) (store.IStore, error) {
	database, err := factory()
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = registry.New(registry.DefaultOptions())
	}
	if clk == nil {
		clk = clock.System()
	}

	s := &storeImpl{
		db:    database,
		reg:   reg,
		clock: clk,
	}
	// continue the ledger sequence of a persistent database
	s.index.Store(database.WriteIdx())
	return s, nil
}

// nextIndex returns the ledger the next successful registration closes.
// The index is only consumed by commitIndex, a rejected invocation leaves it untouched.
//
// Thread-safety: the caller must hold mu.
func (s *storeImpl) nextIndex() uint64 {
	return s.index.Load() + 1
}

// commitIndex records idx as the last closed ledger.
func (s *storeImpl) commitIndex(idx uint64) {
	s.index.Store(idx)
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Register(docHash, owner, description string) (registry.DocumentProof, error) {
	if !s.db.SupportsFeature(db.FeatureApply | db.FeatureGet | db.FeatureExtendTTL) {
		return registry.DocumentProof{}, store.NewError(store.RetCUnsupportedOperation, "Register operation is not supported")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.nextIndex()
	tx := registry.Begin(s.db, s.clock.Now())
	proof, err := s.reg.Register(tx, tx.LedgerTime(), docHash, owner, description)
	if err != nil {
		// nothing of a rejected invocation reaches the database
		tx.Discard()
		return registry.DocumentProof{}, store.FromRegistryError(err)
	}

	if err := tx.Commit(idx); err != nil {
		log.Errorf("failed to commit registration of %q at ledger %d: %v", docHash, idx, err)
		return registry.DocumentProof{}, store.NewError(store.RetCInternalError, err.Error())
	}
	s.commitIndex(idx)
	return proof, nil
}

func (s *storeImpl) Verify(docHash string) (registry.DocumentProof, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return registry.DocumentProof{}, store.NewError(store.RetCUnsupportedOperation, "Verify operation is not supported")
	}
	proof, err := s.reg.Verify(registry.View(s.db), docHash)
	if err != nil {
		return registry.DocumentProof{}, store.FromRegistryError(err)
	}
	return proof, nil
}

func (s *storeImpl) GetProof(docHash string) (registry.DocumentProof, bool, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return registry.DocumentProof{}, false, store.NewError(store.RetCUnsupportedOperation, "GetProof operation is not supported")
	}
	proof, found, err := s.reg.GetProof(registry.View(s.db), docHash)
	if err != nil {
		return registry.DocumentProof{}, false, store.FromRegistryError(err)
	}
	return proof, found, nil
}

func (s *storeImpl) GetStats() (registry.ProofStats, error) {
	if !s.db.SupportsFeature(db.FeatureGet) {
		return registry.ProofStats{}, store.NewError(store.RetCUnsupportedOperation, "GetStats operation is not supported")
	}
	stats, err := s.reg.GetStats(registry.View(s.db))
	if err != nil {
		return registry.ProofStats{}, store.FromRegistryError(err)
	}
	return stats, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.db.GetInfo(), nil
}
