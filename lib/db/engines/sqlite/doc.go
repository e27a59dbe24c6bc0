// Package sqlite implements the db.KVDB interface on top of SQLite (github.com/mattn/go-sqlite3).
//
// Unlike maple, the region survives process restarts without relying on snapshots: every
// batch is committed in a single SQL transaction together with the write index, the ledger
// clock and the lease, which are stored next to the entries in the region table. Lapsed regions are reclaimed
// lazily by the next write.
//
// The engine is meant for single-node (lstore) shards. Replicated shards keep their state
// in maple and rely on Raft snapshots instead.
package sqlite
