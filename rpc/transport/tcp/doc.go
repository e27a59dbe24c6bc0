// Package tcp implements the TCP transport of the registry RPC system on top of the
// framing and connection handling of the base package.
//
// The client and the server apply the socket buffer sizes and the TCP options (no delay, keep alive,
// linger) from the transport configuration to every connection.
package tcp
