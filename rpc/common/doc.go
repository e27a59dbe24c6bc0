// Package common provides the data structures shared by the rpc server, the rpc client
// and the transports of the proof registry.
//
// Key Components:
//
//   - Message: The single structure used for every request and response. Proof responses
//     carry the fields of registry.DocumentProof, failed operations carry a store.RetCode
//     next to the error message so the client can rebuild the *store.Error (most importantly
//     a duplicate registration).
//
//   - MessageType: Enumeration of the supported operations (register, verify, getProof,
//     getStats, dbInfo) and the control messages (success, error).
//
//   - ServerConfig: Configuration of a server node: the served shards (one registry per shard,
//     either local or replicated with RAFT, backed by maple or sqlite), Dragonboat parameters,
//     the transport, the metrics endpoint and the registry lease.
//
//   - ClientConfig: Endpoints, timeouts and retry behavior of a client.
//
//   - Logger: A Dragonboat logger.Factory that writes "LEVEL | name | message" lines.
//     InitLoggers installs it for the Dragonboat loggers and the loggers of this module.
package common
