package common

import (
	"fmt"
	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/lni/dragonboat/v4/config"
	"math"
	"sort"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Transport configuration structs
// --------------------------------------------------------------------------

// SocketConf holds the socket buffer sizes (in bytes, 0 keeps the os default)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds the options applied to tcp connections
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// ServerTransportConfig configures the listening side of a transport
type ServerTransportConfig struct {
	// Endpoint is the address to listen on (host:port or socket path)
	Endpoint string
	// WorkersPerConn limits the concurrent requests handled per connection
	WorkersPerConn int
	// BufferSize is the size of the buffered reader and writer per connection
	BufferSize int
	SocketConf
	TCPConf
}

// ClientTransportConfig configures the dialing side of a transport
type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type ServerShardType string

const (
	ShardTypeLocalIStore  ServerShardType = "local registry"
	ShardTypeRemoteIStore ServerShardType = "replicated registry"
)

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type decides whether the registry is replicated or not
	Type ServerShardType
	// Engine is the database implementation backing the registry
	Engine db.Implementation
}

// ServerConfig holds all configuration parameters for the RAFT cluster.
type ServerConfig struct {
	// registries served by this node
	Shards []ServerShard

	// Dragonboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// remote store parameters
	TimeoutSecond int64

	// RPC api settings
	Transport ServerTransportConfig

	// MetricsEndpoint exposes the prometheus metrics, empty disables it
	MetricsEndpoint string

	// registry lease parameters (in ledgers)
	TTLThreshold uint64
	TTLExtendTo  uint64

	// Logging configuration
	LogLevel string
}

// HasRemoteShard checks if the configuration contains any remote shards
func (c *ServerConfig) HasRemoteShard() bool {
	for _, shard := range c.Shards {
		if shard.Type == ShardTypeRemoteIStore {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.MetricsEndpoint != "" {
		addField("Metrics", c.MetricsEndpoint)
	}

	// Registry lease
	addSection("Registry")
	addField("TTL Threshold", fmt.Sprintf("%d ledgers", c.TTLThreshold))
	addField("TTL Extend To", fmt.Sprintf("%d ledgers", c.TTLExtendTo))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), fmt.Sprintf("%s (%s)", shard.Type, shard.Engine))
	}

	if c.HasRemoteShard() {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)

		// Cluster configuration
		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
