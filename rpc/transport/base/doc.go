// Package base implements the parts of the tcp and unix transports that do not depend on
// the network protocol. Protocol specifics are injected through IClientConnector and
// IServerConnector.
//
// Frames have a 20 byte header followed by the payload:
//
//	8 bytes shard id | 8 bytes request id | 4 bytes payload length | payload
//
// The server answers a frame with a frame carrying the same shard and request id, so a
// client can have many requests in flight on one connection. Each connection on the server
// has a bounded pool of workers (Transport.WorkersPerConn) and reuses read buffers through
// a sync.Pool.
//
// The client keeps ConnectionsPerEndpoint connections to every endpoint and picks them
// round-robin. A failed attempt is retried with exponential backoff. Read errors fail all
// requests pending on the connection and trigger a reconnect.
package base
