package store

import (
	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/registry"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() (db.KVDB, error)

// IStore is the host of one proof registry. Every method is one invocation: it runs in isolation
// and its writes are committed as a unit or not at all.
// All methods return a *Error (nil on success).
type IStore interface {
	// Register records the first submission of docHash and returns the stored proof.
	// A hash that is already registered fails with RetCDuplicateRegistration and changes nothing.
	Register(docHash, owner, description string) (proof registry.DocumentProof, err error)
	// Verify returns the proof of docHash or the registry.NotFound sentinel.
	Verify(docHash string) (proof registry.DocumentProof, err error)
	// GetProof returns the proof of docHash. The boolean return value indicates whether it was found.
	GetProof(docHash string) (proof registry.DocumentProof, found bool, err error)
	// GetStats returns the registry counters.
	GetStats() (stats registry.ProofStats, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)
}
