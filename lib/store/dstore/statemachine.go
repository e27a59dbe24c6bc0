package dstore

import (
	"fmt"
	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"io"
	"time"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// RegistryStateMachine is a state machine implementation for Dragonboat RAFT.
// Every raft log entry is one registry invocation, applied in one registry.Tx at the entry index.
type RegistryStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.KVDB // the actual dataStorage
	reg       *registry.Registry
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable dbFactory
func CreateStateMachineFactory(dbFactory store.DBFactory, reg *registry.Registry) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	if reg == nil {
		reg = registry.New(registry.DefaultOptions())
	}
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		database, err := dbFactory()
		if err != nil {
			// dragonboat offers no error path for the factory
			log.Panicf("failed to create database for shard %d (replica %d): %v", shardID, replicaID, err)
		}
		return &RegistryStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  database,
			reg:       reg,
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding registry query.
func (fsm *RegistryStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	if q.Type != internal.QueryTGetDBInfo && !fsm.database.SupportsFeature(db.FeatureGet) {
		return nil, store.NewError(store.RetCUnsupportedOperation, fmt.Sprintf("%s operation is not supported", q.Type))
	}

	// Handle different Query types
	switch q.Type {
	case internal.QueryTGetProof:
		proof, found, err := fsm.reg.GetProof(registry.View(fsm.database), q.DocHash)
		if err != nil {
			return nil, store.FromRegistryError(err)
		}
		return internal.QueryResult{Found: found, Proof: proof}, nil
	case internal.QueryTGetStats:
		stats, err := fsm.reg.GetStats(registry.View(fsm.database))
		if err != nil {
			return nil, store.FromRegistryError(err)
		}
		return stats, nil
	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update handles write commands on the KVDB instance
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *RegistryStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	for idx, e := range entries {
		// the applied index follows the raft log, the lease is measured on the ledger clock
		// which only moves with committed registrations
		fsm.database.SetWriteIdx(e.Index)

		// Handle each entry
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}
		// Deserialize the command
		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}

		// Check if the db supports the operation
		feat, err := cmd.Type.ToDBFeature()
		if err != nil {
			entries[idx].Result = sm.Result{
				Value: uint64(store.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
			}
			continue
		}
		if !fsm.database.SupportsFeature(feat) {
			entries[idx].Result = sm.Result{
				Value: uint64(store.RetCUnsupportedOperation),
				Data:  []byte(fmt.Sprintf("%s operation is not supported", cmd.Type)),
			}
			continue
		}

		switch cmd.Type {
		case internal.CommandTRegister:
			entries[idx].Result = fsm.register(cmd, e.Index)
		default:
			entries[idx].Result = sm.Result{
				Value: uint64(store.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
			}
		}
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms:", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// register runs one registration at ledger index. On success the result data holds the encoded proof,
// on failure the error message.
func (fsm *RegistryStateMachine) register(cmd internal.Command, index uint64) sm.Result {
	// the clock is part of the replicated state, every replica stamps the same time
	tx := registry.Begin(fsm.database, cmd.Timestamp)

	proof, err := fsm.reg.Register(tx, tx.LedgerTime(), cmd.DocHash, cmd.Owner, cmd.Description)
	if err != nil {
		tx.Discard()
		storeErr := store.FromRegistryError(err)
		return sm.Result{Value: uint64(storeErr.Code), Data: []byte(storeErr.Msg)}
	}

	if err := tx.Commit(index); err != nil {
		log.Errorf("failed to commit registration of %q at index %d: %v", cmd.DocHash, index, err)
		return sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(err.Error())}
	}
	return sm.Result{Value: uint64(store.RetCSuccess), Data: registry.EncodeProof(proof)}
}

// PrepareSnapshot is not used. We don't need to prepare anything since the db saves a consistent cut
func (fsm *RegistryStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a db snapshot (entries, write index, ledger clock and lease) to the writer
func (fsm *RegistryStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used KVDB implementation does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot restores the db from a snapshot.
func (fsm *RegistryStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used KVDB implementation does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *RegistryStateMachine) Close() error {
	return fsm.database.Close()
}
