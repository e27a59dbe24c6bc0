package serve

import (
	"testing"

	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/db/util"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShards(t *testing.T) {
	shards, err := parseShards("100=lstore, 200=dstore,300=lstore(sqlite),400=dstore(maple)")
	require.NoError(t, err)
	assert.Equal(t, []common.ServerShard{
		{ShardID: 100, Type: common.ShardTypeLocalIStore, Engine: db.ImplMaple},
		{ShardID: 200, Type: common.ShardTypeRemoteIStore, Engine: db.ImplMaple},
		{ShardID: 300, Type: common.ShardTypeLocalIStore, Engine: db.ImplSQLite},
		{ShardID: 400, Type: common.ShardTypeRemoteIStore, Engine: db.ImplMaple},
	}, shards)
}

func TestParseShardsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing type", "100"},
		{"bad id", "abc=lstore"},
		{"unknown type", "100=lockmgr"},
		{"unknown engine", "100=lstore(redis)"},
		{"unclosed engine", "100=lstore(sqlite"},
		{"sqlite replicated", "100=dstore(sqlite)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseShards(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestParseClusterMembers(t *testing.T) {
	members, err := parseClusterMembers("node-1=localhost:63001, node-2=localhost:63002")
	require.NoError(t, err)
	assert.Len(t, members, 2)
	assert.Equal(t, "localhost:63002", members[util.ReplicaID("node-2")])

	_, err = parseClusterMembers("node-1")
	assert.Error(t, err)
}
