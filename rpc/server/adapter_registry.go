package server

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/rpc/common"
	"time"
)

// IRPCServerAdapter maps one decoded request to the store of its shard.
// Failures are reported inside the returned message, never as a Go error.
type IRPCServerAdapter interface {
	Handle(req *common.Message, store store.IStore) (resp *common.Message)
}

// NewRegistryServerAdapter creates the adapter that maps messages to the operations of a registry store.
// Every handled request is recorded in the server metrics under the given shard id.
func NewRegistryServerAdapter(shardID uint64) IRPCServerAdapter {
	return &registryServerAdapterImpl{shardID: shardID}
}

type registryServerAdapterImpl struct {
	shardID uint64
}

func (adapter *registryServerAdapterImpl) Handle(req *common.Message, s store.IStore) (resp *common.Message) {
	if s == nil {
		return common.NewErrorResponse(store.RetCInternalError, "handler: store is nil")
	}

	start := time.Now()
	defer func() {
		observeRequest(adapter.shardID, req.MsgType, resp, start)
	}()

	switch req.MsgType {
	case common.MsgTRegister:
		proof, err := s.Register(req.DocHash, req.Owner, req.Description)
		return common.NewRegisterResponse(proof, err)
	case common.MsgTVerify:
		proof, err := s.Verify(req.DocHash)
		return common.NewVerifyResponse(proof, err)
	case common.MsgTGetProof:
		proof, found, err := s.GetProof(req.DocHash)
		return common.NewGetProofResponse(proof, found, err)
	case common.MsgTGetStats:
		stats, err := s.GetStats()
		return common.NewGetStatsResponse(stats, err)
	case common.MsgTDBInfo:
		info, err := s.GetDBInfo()
		if err != nil {
			return common.NewDBInfoResponse(nil, err)
		}
		meta, err := json.Marshal(info)
		if err != nil {
			return common.NewDBInfoResponse(nil, store.NewError(store.RetCInternalError, fmt.Sprintf("failed to encode db info: %v", err)))
		}
		return common.NewDBInfoResponse(meta, nil)
	default:
		return common.NewErrorResponse(
			store.RetCInvalidOperation,
			fmt.Sprintf("RPC RegistryAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
