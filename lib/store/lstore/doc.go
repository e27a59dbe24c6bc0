// Package lstore implements a single-node host for the proof registry based on the
// store.IStore interface. It wraps any db.KVDB implementation and plays the role of the
// transactional environment the registry expects.
//
// Implementation Details:
//
//   - Serialization: Registrations hold a mutex for their whole duration, so no two
//     registrations interleave and the counter never loses an update. Queries do not take
//     the mutex, they read the committed state of the database.
//
//   - Atomic Commit: Each registration stages its writes on a registry.Tx. On success the
//     transaction is committed with one db.Batch. On a duplicate the transaction is discarded
//     and the database is left untouched.
//
//   - Ledger Sequence: Every successful registration closes one ledger. The store keeps an
//     atomic counter that is initialized from the write index of the database, so a persistent
//     engine (sqlite) continues its sequence after a restart. Rejected registrations do not
//     consume a ledger.
//
//   - Ledger Clock: Timestamps come from a clock.Clock and are clamped with
//     registry.LedgerNow, so they never go backwards and are never 0. The region lease is
//     measured on this clock and only moves with committed registrations.
//
// Usage Example:
//
//	factory := func() (db.KVDB, error) { return maple.NewMapleDB(nil), nil }
//	s, err := lstore.NewLocalStore(factory, registry.New(registry.DefaultOptions()), clock.System())
//
//	proof, err := s.Register("abc123", "alice", "contract")
//	proof, err = s.Verify("abc123")
//
// For replicated deployments use the dstore package, which provides a RAFT-based
// implementation of the same interface.
package lstore
