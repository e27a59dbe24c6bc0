// Package transport defines the interfaces for RPC communication between registry clients
// and servers. Every request is addressed to a shard, one shard hosts one proof registry.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to the registered handler.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
// Implementations live in the sub packages http, tcp and unix. The tcp and unix
// transports share the framing and connection handling of the base package.
package transport
