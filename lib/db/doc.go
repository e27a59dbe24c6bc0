// Package db provides a standardized interface for the key-value databases that back a
// proof registry. It defines the KVDB interface that allows for consistent interaction
// with various database backends while abstracting implementation details.
//
// The package focuses on:
//   - A unified interface for key-value operations
//   - Atomic batch writes (the commit unit of one registry invocation)
//   - A single lease (time to live) for the whole storage region
//   - Feature discovery through capability flags
//   - Standardized persistence operations
//
// Key Components:
//
//   - KVDB Interface: The core interface that all database implementations must satisfy.
//     It provides methods for basic operations (Set, Get, Has), atomic batches (Apply),
//     lease management (ExtendTTL, LiveUntil), metadata retrieval (GetInfo)
//     and persistence operations (Save, Load).
//
//   - Batch: A set of writes plus an optional lease extension. Implementations must make
//     a batch visible to readers as a unit. A proof record and the registry counter are
//     always written in one batch, so no reader ever sees one without the other.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method.
//
//   - Implementation Identifiers: "maple" (in-memory) and "sqlite" (on-disk).
//
// Note on Ledgers and Leases:
//   - Write Index: All write operations require a write-index parameter that serves as the
//     ledger sequence number. Implementations keep the highest index seen (SetWriteIdx/WriteIdx)
//     and ignore attempts to move it backwards.
//   - Ledger Time: Next to the ledger sequence every database stores the ledger clock
//     (LedgerTime). A batch carries the ledger time it closes at and Apply advances the clock in
//     the same atomic step as the writes. It is persisted with snapshots so that a replicated
//     state machine resumes with the same clock on every replica.
//   - Region Lease: The lease is not tracked per key and it is measured on the ledger clock,
//     not on write indexes. ExtendTTL(threshold, extendTo) moves the lease of the entire region
//     to ledgerTime+extendTo whenever less than threshold remains. Once the ledger clock passes
//     the lease, the region is lapsed: Get and Has report nothing and the next write (or the
//     garbage collector) reclaims every entry.
//
// Related Packages:
//
// The engines/maple package provides a sharded in-memory implementation with a background
// garbage collector and a binary snapshot format. The engines/sqlite package stores the region
// in a SQLite database file and commits every batch in one SQL transaction.
//
// The testing package (github.com/ValentinKolb/dProof/lib/db/testing) provides
// standardized tests and benchmarks for implementations of the db.KVDB interface.
package db
