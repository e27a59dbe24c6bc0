// Package rpc makes proof registries reachable over the network.
//
// The package is organized into several subpackages:
//
//   - common: The Message protocol, configuration structures and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB).
//
//   - client: A store.IStore implementation that forwards every call to a server.
//
//   - server: Hosts local and replicated registries and answers requests for them.
package rpc
