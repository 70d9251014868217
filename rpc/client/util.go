package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dLV/lib/store"
	"github.com/ValentinKolb/dLV/rpc/common"
	"github.com/ValentinKolb/dLV/rpc/serializer"
	"github.com/ValentinKolb/dLV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
// Used by the RPC store, the RPC counter and the protocol network with composition pattern
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// RemoteError is returned if the server processed a request but reported an error
type RemoteError struct {
	MsgType common.MessageType
	Msg     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("RPC %s - remote error: %s", e.MsgType, e.Msg)
}

// invokeRPCRequest is a helper function used for all RPC Clients to send requests
// It takes a shard ID, a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs
// This method also checks if the response is an error response and if the type of the response is the expected type.
// Errors with a store return code are returned as *store.Error, other remote errors as *RemoteError.
func invokeRPCRequest(ctx context.Context, shardId uint64, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	// Send the request
	respBytes, err := transport.Send(ctx, shardId, reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("RPC %s - failed to deserialize response: %w", req.MsgType, err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError || resp.Err != "" {
		code := store.RetCode(resp.Code)
		if code != store.RetCSuccess && code != store.RetCInternalError {
			return nil, store.NewError(code, resp.Err)
		}
		return nil, &RemoteError{MsgType: req.MsgType, Msg: resp.Err}
	}

	// Check if the type of the response is the expected type
	if expected := req.MsgType.ResponseType(); resp.MsgType != expected {
		return nil, fmt.Errorf("RPC %s - unexpected message type: %s, expected %s", req.MsgType, resp.MsgType, expected)
	}

	// Return the response
	return resp, nil
}
