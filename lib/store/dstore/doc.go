// Package dstore implements a replicated host for the proof registry using the Dragonboat
// RAFT consensus library. It provides a strongly consistent implementation of the
// store.IStore interface that can operate across multiple nodes.
//
// Architecture:
//
//   - Store Client: Implements store.IStore. It serializes registrations into commands,
//     proposes them to the RAFT cluster and decodes the returned proof.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine that owns the db.KVDB instance.
//     Each log entry is one registry invocation: the state machine runs the registration in a
//     registry.Tx and commits it with the entry index as write index (ledger sequence).
//     Duplicates are reported with RetCDuplicateRegistration and leave the state untouched.
//
//   - Communication Protocol: Command and Query structures in the internal package.
//
// Determinism:
//
//	Raft totally orders all registrations, which is the serialization the registry needs.
//	Timestamps are read on the proposing node and clamped on apply with the ledger clock stored
//	in the database (registry.LedgerNow). The region lease is measured on this ledger clock,
//	not on raft indexes, so rejected entries never bring the lapse closer. The ledger clock
//	and the region lease are part of every snapshot, so recovering replicas continue with
//	identical state.
//
// Read Operations:
//
//	GetProof, Verify and GetStats use SyncRead and see the latest committed state.
//	GetDBInfo uses StaleRead.
//
// Error Handling and Retries:
//
//	When Dragonboat returns ErrSystemBusy the operation is retried after a short delay,
//	up to 5 attempts. All operations have a configurable timeout.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	dbFactory := func() (db.KVDB, error) { return maple.NewMapleDB(nil), nil }
//	reg := registry.New(registry.DefaultOptions())
//
//	err = nh.StartConcurrentReplica(
//	    clusterMembers,
//	    false,
//	    dstore.CreateStateMachineFactory(dbFactory, reg),
//	    shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second, clock.System())
//
// For single-node deployments use the lstore package instead.
package dstore
