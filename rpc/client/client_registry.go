package client

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/ValentinKolb/dProof/rpc/serializer"
	"github.com/ValentinKolb/dProof/rpc/transport"
)

// NewRPCStore creates a registry client for one shard of a server.
// The transport is connected with the given config before the store is returned.
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IStore, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &rpcStore{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) Register(docHash, owner, description string) (registry.DocumentProof, error) {
	req := common.NewRegisterRequest(docHash, owner, description)
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return registry.DocumentProof{}, err
	}
	return resp.Proof(), nil
}

func (i *rpcStore) Verify(docHash string) (registry.DocumentProof, error) {
	req := common.NewVerifyRequest(docHash)
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return registry.DocumentProof{}, err
	}
	return resp.Proof(), nil
}

func (i *rpcStore) GetProof(docHash string) (registry.DocumentProof, bool, error) {
	req := common.NewGetProofRequest(docHash)
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return registry.DocumentProof{}, false, err
	}
	if !resp.Ok {
		return registry.DocumentProof{}, false, nil
	}
	return resp.Proof(), true, nil
}

func (i *rpcStore) GetStats() (registry.ProofStats, error) {
	req := common.NewGetStatsRequest()
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return registry.ProofStats{}, err
	}
	return registry.ProofStats{TotalDocuments: resp.Total}, nil
}

func (i *rpcStore) GetDBInfo() (db.DatabaseInfo, error) {
	req := common.NewDBInfoRequest()
	resp, err := invokeRPCRequest(i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return db.DatabaseInfo{}, err
	}
	var info db.DatabaseInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		return db.DatabaseInfo{}, fmt.Errorf("RPC RegistryClient - failed to decode db info: %w", err)
	}
	return info, nil
}
