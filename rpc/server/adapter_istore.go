package server

import (
	"fmt"

	"github.com/ValentinKolb/dLV/lib/store"
	"github.com/ValentinKolb/dLV/rpc/common"
)

// NewIStoreServerAdapter creates an adapter that serves the requests of a shard from s
func NewIStoreServerAdapter(s store.IStore) IRPCServerAdapter {
	return &iStoreServerAdapterImpl{store: s}
}

type iStoreServerAdapterImpl struct {
	store store.IStore
}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Message) *common.Message {
	// Check for nil store
	if adapter.store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTStoreRead:
		value, etag, found, err := adapter.store.ReadState(req.Key)
		return common.NewReadStateResponse(value, etag, found, err)
	case common.MsgTStoreWrite:
		etag, err := adapter.store.WriteState(req.Key, req.Value, req.ETag)
		return common.NewWriteStateResponse(etag, err)
	case common.MsgTStoreClear:
		err := adapter.store.ClearState(req.Key, req.ETag)
		return common.NewClearStateResponse(err)
	case common.MsgTStoreInfo:
		info, err := adapter.store.GetInfo()
		return common.NewInfoResponse(info, err)
	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
