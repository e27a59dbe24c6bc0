package common

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTypeJSON(t *testing.T) {
	types := []MessageType{MsgTUnknown, MsgTSuccess, MsgTError, MsgTRegister, MsgTVerify, MsgTGetProof, MsgTGetStats, MsgTDBInfo}
	for _, mt := range types {
		t.Run(mt.String(), func(t *testing.T) {
			data, err := json.Marshal(mt)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("%q", mt.String()), string(data))

			var decoded MessageType
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, mt, decoded)
		})
	}

	var mt MessageType
	assert.Error(t, json.Unmarshal([]byte(`"set"`), &mt))
}

func TestResponseErrors(t *testing.T) {
	proof := registry.DocumentProof{DocHash: "abc", Owner: "alice", Timestamp: 1000, Description: "contract"}

	t.Run("success", func(t *testing.T) {
		msg := NewRegisterResponse(proof, nil)
		assert.True(t, msg.Ok)
		assert.NoError(t, msg.AsError())
		assert.Equal(t, proof, msg.Proof())
	})

	t.Run("duplicate", func(t *testing.T) {
		err := &registry.DuplicateRegistrationError{DocHash: "abc", Timestamp: 1000}
		msg := NewRegisterResponse(registry.DocumentProof{}, err)
		assert.False(t, msg.Ok)
		assert.Equal(t, store.RetCDuplicateRegistration, msg.Code)
		assert.True(t, store.IsDuplicate(msg.AsError()))
		assert.Empty(t, msg.DocHash)
	})

	t.Run("store error keeps code", func(t *testing.T) {
		msg := NewGetStatsResponse(registry.ProofStats{}, store.NewError(store.RetCUnsupportedOperation, "nope"))
		var storeErr *store.Error
		require.ErrorAs(t, msg.AsError(), &storeErr)
		assert.Equal(t, store.RetCUnsupportedOperation, storeErr.Code)
		assert.Equal(t, "nope", storeErr.Msg)
	})

	t.Run("message without code is internal", func(t *testing.T) {
		msg := &Message{MsgType: MsgTError, Err: "boom"}
		var storeErr *store.Error
		require.ErrorAs(t, msg.AsError(), &storeErr)
		assert.Equal(t, store.RetCInternalError, storeErr.Code)
	})
}

func TestProofResponses(t *testing.T) {
	t.Run("verify absent is sentinel", func(t *testing.T) {
		msg := NewVerifyResponse(registry.NotFound(), nil)
		assert.False(t, msg.Ok)
		assert.Equal(t, registry.NotFound(), msg.Proof())
	})

	t.Run("get proof not found is sentinel", func(t *testing.T) {
		msg := NewGetProofResponse(registry.DocumentProof{}, false, nil)
		assert.False(t, msg.Ok)
		assert.Equal(t, registry.NotFound(), msg.Proof())
	})

	t.Run("stats", func(t *testing.T) {
		msg := NewGetStatsResponse(registry.ProofStats{TotalDocuments: 7}, nil)
		assert.Equal(t, uint64(7), msg.Total)
		assert.NoError(t, msg.AsError())
	})
}

func TestParseLogLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "warning", "ERROR"} {
		_, err := ParseLogLevel(lvl)
		assert.NoError(t, err, lvl)
	}
	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}

func TestServerConfigString(t *testing.T) {
	conf := ServerConfig{
		Shards: []ServerShard{
			{ShardID: 100, Type: ShardTypeLocalIStore, Engine: "maple"},
			{ShardID: 200, Type: ShardTypeRemoteIStore, Engine: "maple"},
		},
		ReplicaID:      1,
		ClusterMembers: map[uint64]string{1: "localhost:63001", 2: "localhost:63002"},
		Transport:      ServerTransportConfig{Endpoint: "localhost:8080"},
	}
	assert.True(t, conf.HasRemoteShard())
	out := conf.String()
	assert.Contains(t, out, "localhost:8080")
	assert.Contains(t, out, "Node 2: localhost:63002")

	conf.Shards = conf.Shards[:1]
	assert.False(t, conf.HasRemoteShard())
	assert.NotContains(t, conf.String(), "RAFT PARAMETERS")
}
