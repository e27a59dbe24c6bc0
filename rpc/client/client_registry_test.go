package client_test

import (
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/rpc/client"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/ValentinKolb/dProof/rpc/serializer"
	"github.com/ValentinKolb/dProof/rpc/server"
	"github.com/ValentinKolb/dProof/rpc/transport"
	"github.com/ValentinKolb/dProof/rpc/transport/http"
	"github.com/ValentinKolb/dProof/rpc/transport/tcp"
	"github.com/ValentinKolb/dProof/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shardID = 100

type transportCase struct {
	name      string
	server    func() transport.IRPCServerTransport
	client    func() transport.IRPCClientTransport
	endpoints func(t *testing.T) (listen, dial string)
}

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

var transportCases = []transportCase{
	{
		name:   "tcp",
		server: tcp.NewTCPServerTransport,
		client: tcp.NewTCPClientTransport,
		endpoints: func(t *testing.T) (string, string) {
			addr := freePort(t)
			return addr, addr
		},
	},
	{
		name:   "unix",
		server: unix.NewUnixServerTransport,
		client: unix.NewUnixClientTransport,
		endpoints: func(t *testing.T) (string, string) {
			path := filepath.Join(t.TempDir(), "dproof.sock")
			return path, path
		},
	},
	{
		name:   "http",
		server: http.NewHttpServerTransport,
		client: http.NewHttpClientTransport,
		endpoints: func(t *testing.T) (string, string) {
			addr := freePort(t)
			return addr, "http://" + addr
		},
	},
}

// startServer serves one local registry shard and returns a connected client
func startServer(t *testing.T, tc transportCase, s serializer.IRPCSerializer) store.IStore {
	c, _ := startServerWithConfig(t, tc, s)
	return c
}

func startServerWithConfig(t *testing.T, tc transportCase, s serializer.IRPCSerializer) (store.IStore, common.ClientConfig) {
	t.Helper()
	listen, dial := tc.endpoints(t)

	srv := server.NewRPCServer(common.ServerConfig{
		Shards:        []common.ServerShard{{ShardID: shardID, Type: common.ShardTypeLocalIStore, Engine: db.ImplMaple}},
		DataDir:       t.TempDir(),
		TimeoutSecond: 5,
		Transport:     common.ServerTransportConfig{Endpoint: listen, WorkersPerConn: 4},
		LogLevel:      "error",
	}, tc.server(), s)

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		require.NoError(t, srv.Close())
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	config := common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{dial},
			RetryCount:             3,
			ConnectionsPerEndpoint: 2,
			TCPConf:                common.TCPConf{TCPNoDelay: true},
		},
	}

	var c store.IStore
	require.Eventually(t, func() bool {
		var err error
		c, err = client.NewRPCStore(shardID, config, tc.client(), s)
		if err != nil {
			return false
		}
		// the http transport connects lazily, probe the server once
		_, err = c.GetStats()
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	return c, config
}

func TestRegistryOverRPC(t *testing.T) {
	for _, tc := range transportCases {
		t.Run(tc.name, func(t *testing.T) {
			c := startServer(t, tc, serializer.NewBinarySerializer())

			proof, err := c.Register("abc", "alice", "contract")
			require.NoError(t, err)
			assert.Equal(t, "abc", proof.DocHash)
			assert.Equal(t, "alice", proof.Owner)
			assert.NotZero(t, proof.Timestamp)

			_, err = c.Register("abc", "bob", "copy")
			require.Error(t, err)
			assert.True(t, store.IsDuplicate(err))
			var storeErr *store.Error
			require.ErrorAs(t, err, &storeErr)
			assert.Equal(t, store.RetCDuplicateRegistration, storeErr.Code)

			verified, err := c.Verify("abc")
			require.NoError(t, err)
			assert.Equal(t, proof, verified)

			missing, err := c.Verify("nope")
			require.NoError(t, err)
			assert.Equal(t, registry.NotFound(), missing)

			got, found, err := c.GetProof("abc")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, proof, got)

			_, found, err = c.GetProof("nope")
			require.NoError(t, err)
			assert.False(t, found)

			stats, err := c.GetStats()
			require.NoError(t, err)
			assert.Equal(t, uint64(1), stats.TotalDocuments)

			info, err := c.GetDBInfo()
			require.NoError(t, err)
			assert.Equal(t, db.ImplMaple, info.DbType)
		})
	}
}

func TestSerializersOverRPC(t *testing.T) {
	serializers := map[string]serializer.IRPCSerializer{
		"json":   serializer.NewJSONSerializer(),
		"gob":    serializer.NewGOBSerializer(),
		"binary": serializer.NewBinarySerializer(),
	}
	for name, s := range serializers {
		t.Run(name, func(t *testing.T) {
			c := startServer(t, transportCases[0], s)

			_, err := c.Register("h", "o", "d")
			require.NoError(t, err)
			_, err = c.Register("h", "o", "d")
			assert.True(t, store.IsDuplicate(err))

			proof, err := c.Verify("h")
			require.NoError(t, err)
			assert.True(t, proof.Exists())
		})
	}
}

func TestConcurrentClients(t *testing.T) {
	c := startServer(t, transportCases[0], serializer.NewBinarySerializer())

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	registered := 0
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// two workers race for every hash
				_, err := c.Register(fmt.Sprintf("doc-%d-%d", w%4, i), fmt.Sprintf("w%d", w), "")
				if err == nil {
					mu.Lock()
					registered++
					mu.Unlock()
				} else if !store.IsDuplicate(err) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	stats, err := c.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 4*perWorker, registered)
	assert.Equal(t, uint64(registered), stats.TotalDocuments)
}

func TestUnknownShard(t *testing.T) {
	tc := transportCases[0]
	s := serializer.NewBinarySerializer()
	_, config := startServerWithConfig(t, tc, s)

	c, err := client.NewRPCStore(999, config, tc.client(), s)
	require.NoError(t, err)

	_, err = c.Register("abc", "alice", "")
	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, store.RetCInvalidOperation, storeErr.Code)
	assert.Contains(t, storeErr.Msg, "shard 999 not found")
}
