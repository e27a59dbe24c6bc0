package serve

import (
	"fmt"
	cmdUtil "github.com/ValentinKolb/dProof/cmd/util"
	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/db/util"
	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/ValentinKolb/dProof/rpc/serializer"
	"github.com/ValentinKolb/dProof/rpc/server"
	"github.com/ValentinKolb/dProof/rpc/transport"
	"github.com/ValentinKolb/dProof/rpc/transport/http"
	"github.com/ValentinKolb/dProof/rpc/transport/tcp"
	"github.com/ValentinKolb/dProof/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dProof server",
		Long:    `Start the dProof server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DPROOF_<flag> (e.g. DPROOF_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=lstore", cmdUtil.WrapString("Comma-separated list of registries to serve. Format: ID=TYPE[(ENGINE)] where TYPE is one of: dstore, lstore and ENGINE is one of: maple, sqlite (e.g. 100=lstore,200=dstore,300=lstore(sqlite)). The sqlite engine is only available for lstore"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(Replicated Mode) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(Replicated Mode) SnapshotEntries defines how often the registry should be snapshotted automatically, in terms of applied Raft log entries. 0 disables automatic snapshots (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(Replicated Mode) CompactionOverhead defines the number of log entries kept after a snapshot. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("DataDir is the directory for raft snapshots and sqlite registries"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(Replicated Mode) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(Replicated Mode) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for raft proposals and transport reads"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/dproof.sock, ...)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the prometheus /metrics endpoint (e.g. localhost:9090). Empty disables metrics"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "ttl-threshold"
	ServeCmd.PersistentFlags().Uint64(key, registry.DefaultTTLLedgers, cmdUtil.WrapString("Remaining ledgers below which the registry lease is extended (5 seconds of ledger time each)"))

	key = "ttl-extend-to"
	ServeCmd.PersistentFlags().Uint64(key, registry.DefaultTTLLedgers, cmdUtil.WrapString("Number of ledgers the registry lease is extended to (5 seconds of ledger time each)"))

	key = "transport-workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Concurrent requests handled per connection (ignored for http)"))

	key = "transport-buffer-size"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Size of the per request read buffer (in KB, ignored for http)"))

	key = "transport-write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket write buffer (in KB, ignored for http)"))

	key = "transport-read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the socket read buffer (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The linger time (in seconds, only for tcp)"))
}

// parseShards parses the shard list in the format ID=TYPE[(ENGINE)]
func parseShards(shardsConfig string) ([]common.ServerShard, error) {
	shards := []common.ServerShard{}
	for _, shardConfig := range strings.Split(shardsConfig, ",") {
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE[(ENGINE)])", shardConfig)
		}

		// Parse shard ID
		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[0], err)
		}

		// Split off the optional engine
		shardType := strings.TrimSpace(parts[1])
		engine := db.ImplMaple
		if open := strings.Index(shardType, "("); open >= 0 {
			if !strings.HasSuffix(shardType, ")") {
				return nil, fmt.Errorf("invalid shard type: %s (missing closing parenthesis)", shardType)
			}
			engine = db.Implementation(strings.TrimSpace(shardType[open+1 : len(shardType)-1]))
			shardType = strings.TrimSpace(shardType[:open])
		}

		var serverShardType common.ServerShardType
		switch shardType {
		case "dstore":
			serverShardType = common.ShardTypeRemoteIStore
		case "lstore":
			serverShardType = common.ShardTypeLocalIStore
		default:
			return nil, fmt.Errorf("invalid shard type: %s (expected one of: dstore, lstore)", shardType)
		}

		switch engine {
		case db.ImplMaple:
		case db.ImplSQLite:
			if serverShardType == common.ShardTypeRemoteIStore {
				return nil, fmt.Errorf("shard %d: the sqlite engine is only available for lstore", shardID)
			}
		default:
			return nil, fmt.Errorf("invalid engine: %s (expected one of: maple, sqlite)", engine)
		}

		shards = append(shards, common.ServerShard{
			ShardID: shardID,
			Type:    serverShardType,
			Engine:  engine,
		})
	}
	return shards, nil
}

// parseClusterMembers parses 'node-1=host:port,...' into a map keyed by the hashed replica name
func parseClusterMembers(clusterMembers string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range strings.Split(clusterMembers, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		members[util.ReplicaID(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	return members, nil
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	shards, err := parseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.TTLThreshold = viper.GetUint64("ttl-threshold")
	serveCmdConfig.TTLExtendTo = viper.GetUint64("ttl-extend-to")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:       viper.GetString("endpoint"),
		WorkersPerConn: viper.GetInt("transport-workers-per-conn"),
		BufferSize:     viper.GetInt("transport-buffer-size") * 1024,
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
	}

	if serveCmdConfig.TTLExtendTo < serveCmdConfig.TTLThreshold {
		return fmt.Errorf("ttl-extend-to (%d) must not be smaller than ttl-threshold (%d)", serveCmdConfig.TTLExtendTo, serveCmdConfig.TTLThreshold)
	}

	// parse replica id
	if id := viper.GetString("replica-id"); id != "" {
		serveCmdConfig.ReplicaID = util.ReplicaID(id)
	} else if serveCmdConfig.HasRemoteShard() {
		// error only if cluster mode
		return fmt.Errorf("ReplicaId is required for remote shards")
	}

	// parse cluster members
	if clusterMembers := viper.GetString("cluster-members"); clusterMembers != "" {
		members, err := parseClusterMembers(clusterMembers)
		if err != nil {
			return err
		}
		serveCmdConfig.ClusterMembers = members
	} else if serveCmdConfig.HasRemoteShard() {
		// error only if cluster mode
		return fmt.Errorf("ClusterMembers is required for remote shards")
	}

	// test if the replica id is in the cluster members (only for cluster mode)
	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok && serveCmdConfig.HasRemoteShard() {
		return fmt.Errorf("no address found for replica ID %d in cluster members", serveCmdConfig.ReplicaID)
	}

	return nil
}

// run starts the dProof server and closes it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	s, err := serializer.ByName(viper.GetString("serializer"))
	if err != nil {
		return err
	}

	// Parse the transport
	var t transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "http":
		t = http.NewHttpServerTransport()
	case "tcp":
		t = tcp.NewTCPServerTransport()
	case "unix":
		t = unix.NewUnixServerTransport()
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() { errCh <- serv.Serve() }()

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		fmt.Printf("received %s, shutting down\n", sig)
		if err := serv.Close(); err != nil {
			return err
		}
		return <-errCh
	}
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dproof")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

}
