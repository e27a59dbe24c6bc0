// Package unix implements a transport layer for the registry RPC system using Unix
// domain sockets. It is meant for clients running on the same machine as the server.
//
// The server removes a stale socket file before it starts listening.
package unix
