// Package store defines the host of a proof registry: the environment that serializes
// invocations, supplies the ledger clock and commits or drops the writes of each invocation.
//
// Key Components:
//
//   - IStore Interface: Register, Verify, GetProof, GetStats and GetDBInfo. All
//     implementations share this interface, so the rpc server can serve local and
//     replicated shards alike.
//
//   - Error System: *Error carries a RetCode and a message. RetCDuplicateRegistration marks
//     a rejected duplicate, IsDuplicate (or errors.Is with registry.ErrDuplicateRegistration)
//     recognizes it on both sides of the network.
//
//   - DBFactory: A function type that abstracts the creation of the underlying db.KVDB.
//
// Implementations:
//
//	- Local Store (lstore): a single node, registrations are serialized with a mutex.
//	  Available in the "github.com/ValentinKolb/dProof/lib/store/lstore" package.
//
//	- Distributed Store (dstore): built on the Dragonboat RAFT consensus library.
//	  Available in the "github.com/ValentinKolb/dProof/lib/store/dstore" package.
package store
