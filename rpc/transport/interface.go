package transport

import (
	"github.com/ValentinKolb/dProof/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc answers one serialized registry request addressed to a shard.
// A transport calls it for every frame it receives and writes the returned bytes back unchanged.
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport carries registry frames from the network to a ServerHandleFunc
type IRPCServerTransport interface {
	// RegisterHandler sets the handler, it must be called before Listen
	RegisterHandler(handler ServerHandleFunc)
	// Listen blocks while serving and returns nil once Close was called
	Listen(config common.ServerConfig) error
	// Close stops accepting new requests
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport sends registry frames to one or more servers.
// Implementations are safe for concurrent use by the stores of several shards.
type IRPCClientTransport interface {
	// Connect opens the connections to the configured endpoints
	Connect(config common.ClientConfig) error
	// Send delivers a request to shardId and waits for the answer or the configured timeout
	Send(shardId uint64, req []byte) (resp []byte, err error)
	// Close closes every connection
	Close() error
}
