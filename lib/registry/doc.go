// Package registry implements a content-addressed document registry on top of a db.KVDB.
//
// The registry knows exactly two records: one DocumentProof per registered hash (ProofKey)
// and a single ProofStats counter (StatsKey). Register records the first submission of a
// hash, increments the counter and extends the lease of the whole storage region. A second
// submission of the same hash fails with ErrDuplicateRegistration and leaves every record
// untouched.
//
// The registry does not commit anything itself. Every operation receives a Storage (or a
// Reader for queries) from the host:
//
//	tx := registry.Begin(kv, clock.Now())
//	proof, err := reg.Register(tx, tx.LedgerTime(), hash, owner, desc)
//	if err != nil {
//		tx.Discard()
//		return err
//	}
//	return tx.Commit(writeIdx)
//
// Commit hands the proof, the counter, the lease extension and the ledger time to the database
// as one db.Batch, so readers never observe a proof without the matching counter value.
//
// Lease policies are given in ledgers and converted to ledger clock seconds (LedgerSeconds per
// ledger). A rejected invocation commits nothing and therefore never moves the clock: only
// time that passes between successful registrations can let the region lapse.
// The hosts in this module are lstore (a mutex) and dstore (the Raft log), both found in
// github.com/ValentinKolb/dProof/lib/store.
//
// Absent proofs are reported by GetProof with found=false. Verify translates absence into
// the NotFound sentinel (DocHash "NOT_FOUND", timestamp 0) expected by clients.
package registry
