// Package http implements an HTTP-based transport layer for the registry RPC system.
//
// Requests are sent as "POST /{shardId}" with the serialized message as body. The
// response body is the serialized response message. Transport level problems (an
// invalid shard id, an unreadable body) are reported with HTTP status codes, registry
// errors travel inside the response message.
//
// The client selects the server endpoints round-robin and retries requests that
// could not be delivered.
package http
