package server

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/db/engines/maple"
	"github.com/ValentinKolb/dProof/lib/db/engines/sqlite"
	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/lib/store/dstore"
	"github.com/ValentinKolb/dProof/lib/store/lstore"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/ValentinKolb/dProof/rpc/serializer"
	"github.com/ValentinKolb/dProof/rpc/transport"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the registry store it encapsulates and the adapter
// that handles requests for the store
type serverShard struct {
	Store   store.IStore
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]

	nodeHost *dragonboat.NodeHost

	// databases opened for local shards, closed with the server
	databases   []db.KVDB
	databasesMu sync.Mutex
}

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		if shard, ok := s.shards.Load(shardId); !ok {
			respMsg = common.NewErrorResponse(store.RetCInvalidOperation, fmt.Sprintf("shard %d not found", shardId))
		} else if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(store.RetCInvalidOperation, fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			respMsg = shard.Adapter.Handle(&msg, shard.Store)
		}

		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(store.RetCInternalError, fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

// dbFactory returns the factory of the database engine configured for a shard
func (s *rpcServer) dbFactory(shard common.ServerShard) (store.DBFactory, error) {
	var open store.DBFactory
	switch shard.Engine {
	case db.ImplMaple, "":
		open = func() (db.KVDB, error) {
			return maple.NewMapleDB(nil), nil
		}
	case db.ImplSQLite:
		if shard.Type == common.ShardTypeRemoteIStore {
			return nil, fmt.Errorf("shard %d: the sqlite engine is only supported for local shards", shard.ShardID)
		}
		if err := os.MkdirAll(s.config.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		path := filepath.Join(s.config.DataDir, fmt.Sprintf("registry-%d.sqlite", shard.ShardID))
		open = func() (db.KVDB, error) {
			return sqlite.NewSQLiteDB(path)
		}
	default:
		return nil, fmt.Errorf("shard %d: unknown engine %q", shard.ShardID, shard.Engine)
	}

	// state machines of remote shards are closed by the node host
	if shard.Type == common.ShardTypeRemoteIStore {
		return open, nil
	}
	return func() (db.KVDB, error) {
		return s.track(open())
	}, nil
}

// track remembers databases of local shards so they are closed with the server
func (s *rpcServer) track(database db.KVDB, err error) (db.KVDB, error) {
	if err != nil {
		return nil, err
	}
	s.databasesMu.Lock()
	s.databases = append(s.databases, database)
	s.databasesMu.Unlock()
	return database, nil
}

func (s *rpcServer) init() error {
	reg := registry.New(registry.Options{
		TTLThreshold: s.config.TTLThreshold,
		TTLExtendTo:  s.config.TTLExtendTo,
	})

	// Only create the NodeHost if we have remote shards
	if s.config.HasRemoteShard() {
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nodeHost
	}

	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	/*
		Note: A single RPC Server can host any number of remote and or local shards.
		Every shard is an independent registry with its own counter and lease.
	*/
	for _, shardConfig := range s.config.Shards {
		if _, exists := s.shards.Load(shardConfig.ShardID); exists {
			return fmt.Errorf("shard %d is configured twice", shardConfig.ShardID)
		}

		factory, err := s.dbFactory(shardConfig)
		if err != nil {
			return err
		}

		var shardStore store.IStore
		switch shardConfig.Type {
		case common.ShardTypeLocalIStore:
			shardStore, err = lstore.NewLocalStore(factory, reg, nil)
			if err != nil {
				return fmt.Errorf("failed to create local store for shard %d: %w", shardConfig.ShardID, err)
			}
		case common.ShardTypeRemoteIStore:
			if s.nodeHost == nil {
				return fmt.Errorf("node host is nil, cannot create remote store")
			}
			if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMachineFactory(factory, reg), s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				return fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
			}
			shardStore = dstore.NewDistributedStore(s.nodeHost, shardConfig.ShardID, timeout, nil)
		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}

		s.shards.Store(shardConfig.ShardID, serverShard{
			Store:   shardStore,
			Adapter: NewRegistryServerAdapter(shardConfig.ShardID),
		})
		registerStatsGauge(shardConfig.ShardID, shardStore)
		Logger.Infof("created %s for shard %d (engine %s)", shardConfig.Type, shardConfig.ShardID, shardConfig.Engine)
	}

	Logger.Infof("dProof setup completed successfully")

	s.registerTransportHandler()

	return nil
}

// Serve starts the RPC server
// This function will also initialize the server plus the shards and start the transport layer
func (s *rpcServer) Serve() error {
	if err := common.InitLoggers(s.config); err != nil {
		return err
	}
	Logger.Infof("%s", s.config.String())

	if err := s.init(); err != nil {
		return errors.Join(err, s.Close())
	}
	if s.config.MetricsEndpoint != "" {
		go serveMetrics(s.config.MetricsEndpoint)
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport, the raft node host and closes the databases of local shards
func (s *rpcServer) Close() error {
	var errs []error
	if err := s.transport.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.nodeHost != nil {
		s.nodeHost.Close()
		s.nodeHost = nil
	}

	s.databasesMu.Lock()
	defer s.databasesMu.Unlock()
	for _, database := range s.databases {
		if err := database.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.databases = nil
	return errors.Join(errs...)
}
