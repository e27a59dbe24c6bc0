// Package server implements the RPC server that hosts proof registries. Every configured
// shard is an independent registry: its own documents, its own counter and its own lease.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a store.IStore.
//
//   - NewRegistryServerAdapter: Translates register, verify, getProof, getStats and dbInfo
//     messages into store.IStore calls. A failed call is answered with the store.RetCode of
//     the error, so a duplicate registration reaches the client as RetCDuplicateRegistration.
//
//   - NewRPCServer: Creates a server with the given transport and serializer. Serve creates
//     the shards, starts the metrics endpoint and blocks in the transport.
//
// Shards:
//
//   - ShardTypeLocalIStore: A registry on this node only (lstore). It can use the maple
//     engine (in memory) or the sqlite engine (file "registry-<shard>.sqlite" in DataDir).
//
//   - ShardTypeRemoteIStore: A registry replicated with Raft (dstore) on the maple engine.
//     RTTMillisecond, SnapshotEntries, CompactionOverhead, DataDir, ReplicaID and
//     ClusterMembers must be configured.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLocalIStore, Engine: db.ImplMaple},
//	    {ShardID: 300, Type: common.ShardTypeLocalIStore, Engine: db.ImplSQLite},
//	  },
//	  DataDir:         "data",
//	  Transport:       common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  MetricsEndpoint: "0.0.0.0:9090",
//	  TimeoutSecond:   5,
//	  LogLevel:        "info",
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Metrics (prometheus text format on MetricsEndpoint + "/metrics"):
//
//   - dproof_requests_total{shard,type,result}: handled requests, result is ok, duplicate or error
//   - dproof_request_duration_seconds{shard,type}: handling time histogram
//   - dproof_registered_documents{shard}: the registry counter
package server
