// Package internal provides the raft log and query structures of the dstore package.
// It defines the wire format used between the store client and the replicated state machine.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
//   - Command: a write (currently only Register). Commands are serialized, proposed to the
//     RAFT cluster and applied by every replica. The proposer's clock reading travels with
//     the command so that every replica stamps the same timestamp.
//
//   - Query: a read (GetProof, GetStats, GetDBInfo). Queries are executed locally on the
//     state machine and therefore do not require serialization.
//
// Command Format:
//
//	- 1 byte: Command type
//	- 8 bytes: Timestamp (uint64, big endian)
//	- 4 bytes + N bytes: document hash
//	- 4 bytes + N bytes: owner
//	- 4 bytes + N bytes: description
//
// All lengths are uint32 big endian. Trailing bytes are rejected.
package internal
