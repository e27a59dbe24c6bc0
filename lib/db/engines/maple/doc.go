// Package maple implements an in-memory key-value database (KVDB) that holds one storage
// region of a proof registry. It provides a complete implementation of the db.KVDB
// interface with a focus on thread safety, atomic batches and cheap reads.
//
// The package focuses on:
//   - Concurrent access through sharding and the lock-free xsync.MapOf
//   - Atomic batches: a registry invocation writes its proof record and the counter together
//   - One lease for the whole region, measured on the ledger clock
//   - Background reclamation of lapsed regions
//   - Persistent snapshots with a compact binary encoding
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It manages shards,
//     the region lease and the garbage collector. The mapleImpl does not generate write
//     indexes itself; the caller supplies them (a local counter for lstore, the Raft log
//     index for dstore).
//
//   - Shard: A partition of the key space backed by an xsync.MapOf. Keys are assigned to
//     shards by hashing them with a database specific seed (util.HashString). The original
//     string key is kept in the map so hash collisions never merge two records.
//
//   - Entry: The stored value plus the write index at which it was written.
//
// Internal Mechanisms:
//
//   - Region Lock: Batches (Apply, Set, ExtendTTL), reclamation and Load hold the write
//     lock of the region; Get, Has, Save and GetInfo hold the read lock. Writes inside one
//     batch are therefore never observed partially.
//
//   - Stale Write Prevention: A write is only applied if its write index is greater than
//     or equal to the stored index of the entry.
//
//   - Region Lease: ExtendTTL moves the lease to ledgerTime+extendTo whenever less than
//     threshold remains (see db.ExtendedLease). A lease of 0 means the region was never
//     leased and never lapses. Once the ledger clock passes the lease, Get and Has report
//     nothing and the next batch or GC cycle drops every entry. The ledger time of a batch
//     is applied under the same region lock as its writes.
//
//   - Persistence Format:
//     1. Magic number "MAPLEDB\x00" to identify the file format
//     2. Version number (currently 5)
//     3. Seed, write index, ledger time and lease of the region
//     4. Number of entries
//     5. For each entry: key length, key, write index, value length, value bytes
//     Save holds the region read lock, so a snapshot is a consistent cut with respect to
//     batches.
//
// Garbage Collection:
//
//   - A single goroutine wakes up every GCInterval and checks the lease against the current
//     ledger time. Only a lapsed region takes the write lock, an idle database never
//     contends with readers.
package maple
