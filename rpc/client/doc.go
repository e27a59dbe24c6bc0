// Package client implements a store.IStore that forwards every call to an RPC server.
//
// Errors reported by the server are rebuilt as *store.Error with the server's return code,
// so callers can test a failed registration with store.IsDuplicate(err) no matter whether
// the registry is local or remote.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:  []string{"localhost:8080"},
//	    RetryCount: 3,
//	  },
//	}
//
//	registry, err := client.NewRPCStore(100, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//
//	proof, err := registry.Register(hash, "alice", "signed contract")
//	if store.IsDuplicate(err) {
//	  // already registered, Verify returns the original proof
//	}
//
// Note that a Register call retried by the transport after a lost response is answered
// with RetCDuplicateRegistration when the first attempt was committed.
//
// Thread Safety:
//
//	The client is safe for concurrent use.
package client
