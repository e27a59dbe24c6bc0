// Package testing provides standardised tests and benchmarks for
// database implementations that satisfy the db.KVDB interface.
//
// The suite checks the contract the registry relies on: atomic batches, monotonic write
// index and ledger clock, stale write rejection, the whole-region lease and snapshots.
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.KVDB {
//		return NewMyDatabase()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunKVDBTests(t, "MyDatabase", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunKVDBBenchmarks(b, "MyDatabase", factory)
package testing
