package server

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dLV/lib/counter"
	"github.com/ValentinKolb/dLV/rpc/common"
)

// NewProtocolServerAdapter creates an adapter that routes log-view protocol messages and
// counter requests to the counter entities of manager. Every request is bound by timeout.
func NewProtocolServerAdapter(manager *counter.Manager, timeout time.Duration) IRPCServerAdapter {
	return &protocolServerAdapterImpl{
		manager: manager,
		timeout: timeout,
	}
}

type protocolServerAdapterImpl struct {
	manager *counter.Manager
	timeout time.Duration
}

func (adapter *protocolServerAdapterImpl) Handle(req *common.Message) *common.Message {
	if req.Key == "" {
		return common.NewFailedResponse(req.MsgType.ResponseType(), fmt.Errorf("missing entity id"))
	}

	ctx := context.Background()
	if adapter.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, adapter.timeout)
		defer cancel()
	}

	// Log-view protocol messages of other clusters
	if req.MsgType.IsProtocolMessage() {
		msg, err := req.ToProtocolMessage()
		if err != nil {
			return common.NewFailedResponse(req.MsgType.ResponseType(), err)
		}
		resp, err := adapter.manager.HandleProtocolMessage(ctx, req.Key, msg)
		if err != nil {
			return common.NewFailedResponse(req.MsgType.ResponseType(), err)
		}
		wrapped, err := common.NewProtocolMessage(req.Key, resp)
		if err != nil {
			return common.NewFailedResponse(req.MsgType.ResponseType(), err)
		}
		return wrapped
	}

	// Counter requests of clients
	var state counter.State
	var err error
	switch req.MsgType {
	case common.MsgTCounterAdd:
		state, err = adapter.manager.Add(ctx, req.Key, req.Amount)
	case common.MsgTCounterGet:
		state, err = adapter.manager.Value(ctx, req.Key)
	case common.MsgTCounterSync:
		state, err = adapter.manager.Sync(ctx, req.Key)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC ProtocolAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
	return common.NewCounterResponse(req.MsgType, state.Value, state.Version, err)
}
