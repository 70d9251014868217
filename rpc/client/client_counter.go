package client

import (
	"context"

	"github.com/ValentinKolb/dLV/rpc/common"
	"github.com/ValentinKolb/dLV/rpc/serializer"
	"github.com/ValentinKolb/dLV/rpc/transport"
)

// CounterState is the confirmed state of a counter entity
type CounterState struct {
	Value   int64
	Version int
}

// RPCCounter accesses the counter entities served by the protocol shard of a server
type RPCCounter struct {
	rpcClientAdapter
}

// NewRPCCounter creates a new client for counter entities
// The function takes a shard ID, a config, a transport and a serializer as parameters
func NewRPCCounter(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCCounter, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &RPCCounter{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

// Add adds amount to the counter and returns once the addition is confirmed
func (c *RPCCounter) Add(ctx context.Context, entity string, amount int64) (CounterState, error) {
	return c.invoke(ctx, common.NewCounterRequest(common.MsgTCounterAdd, entity, amount))
}

// Get returns the confirmed state known by the server
func (c *RPCCounter) Get(ctx context.Context, entity string) (CounterState, error) {
	return c.invoke(ctx, common.NewCounterRequest(common.MsgTCounterGet, entity, 0))
}

// Sync makes the server read the latest state from storage and returns it
func (c *RPCCounter) Sync(ctx context.Context, entity string) (CounterState, error) {
	return c.invoke(ctx, common.NewCounterRequest(common.MsgTCounterSync, entity, 0))
}

// Close closes the underlying transport
func (c *RPCCounter) Close() error {
	return c.transport.Close()
}

func (c *RPCCounter) invoke(ctx context.Context, req *common.Message) (CounterState, error) {
	resp, err := invokeRPCRequest(ctx, c.shardId, req, c.transport, c.serializer)
	if err != nil {
		return CounterState{}, err
	}
	return CounterState{Value: resp.Amount, Version: int(resp.Version)}, nil
}
