package internal

import "github.com/ValentinKolb/dProof/lib/registry"

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGetProof  QueryType = iota // Retrieve the proof of a document hash.
	QueryTGetStats                   // Retrieve the registry counters.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGetProof:
		return "GetProof"
	case QueryTGetStats:
		return "GetStats"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or ReadStale
type Query struct {
	Type    QueryType // The type of Query to perform.
	DocHash string    // The document hash (empty for some queries).
}

// QueryResult is the result of a QueryTGetProof operation.
// All other query results are predefined structs (registry.ProofStats, db.DatabaseInfo).
type QueryResult struct {
	Found bool
	Proof registry.DocumentProof
}
