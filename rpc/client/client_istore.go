package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dLV/lib/store"
	"github.com/ValentinKolb/dLV/rpc/common"
	"github.com/ValentinKolb/dLV/rpc/serializer"
	"github.com/ValentinKolb/dLV/rpc/transport"
)

// NewRPCStore creates a new RPC store
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It connects the transport and returns a store.IStore and an error
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IStore, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC store
	s := rpcStore{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC store
	return &s, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) ReadState(key string) (value []byte, etag string, found bool, err error) {
	req := common.NewReadStateRequest(key)
	resp, err := invokeRPCRequest(context.Background(), i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return nil, "", false, err
	}
	return resp.Value, resp.ETag, resp.Ok, nil
}

func (i *rpcStore) WriteState(key string, value []byte, etag string) (newETag string, err error) {
	req := common.NewWriteStateRequest(key, value, etag)
	resp, err := invokeRPCRequest(context.Background(), i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return "", err
	}
	return resp.ETag, nil
}

func (i *rpcStore) ClearState(key string, etag string) (err error) {
	req := common.NewClearStateRequest(key, etag)
	_, err = invokeRPCRequest(context.Background(), i.shardId, req, i.transport, i.serializer)
	return err
}

func (i *rpcStore) GetInfo() (info store.Info, err error) {
	req := common.NewInfoRequest()
	resp, err := invokeRPCRequest(context.Background(), i.shardId, req, i.transport, i.serializer)
	if err != nil {
		return store.Info{}, err
	}
	if err := json.Unmarshal(resp.Value, &info); err != nil {
		return store.Info{}, fmt.Errorf("RPC %s - invalid info: %w", req.MsgType, err)
	}
	return info, nil
}
