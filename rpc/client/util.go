package client

import (
	"fmt"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/ValentinKolb/dProof/rpc/serializer"
	"github.com/ValentinKolb/dProof/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest sends a request and returns the response message.
// Errors reported by the server are returned as *store.Error with the code set by the server.
// The type of the response is checked against the type of the request.
func invokeRPCRequest(shardId uint64, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	respBytes, err := transport.Send(shardId, reqBytes)
	if err != nil {
		return nil, err
	}

	resp := &common.Message{}
	if err := serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("RPC RegistryClient - failed to decode response: %w", err)
	}

	if err := resp.AsError(); err != nil {
		return resp, err
	}
	if resp.MsgType == common.MsgTError {
		return nil, store.NewError(store.RetCInternalError, "RPC RegistryClient - error response without message")
	}

	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("RPC RegistryClient - Unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	return resp, nil
}
