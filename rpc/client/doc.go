// Package client implements the RPC clients of dLV.
//
// Key Components:
//
//   - NewRPCStore: Creates a store.IStore that forwards all operations to a store shard of a
//     remote server. It is used by the CLI and as the shared record store of protocol shards
//     in different clusters.
//
//   - NewRPCCounter: Creates a client for the counter entities of a protocol shard.
//
//   - NewProtocolNetwork: Connects the protocol shard of one cluster with the protocol shards
//     of all other clusters. Its Services implement protocol.IServices, so adaptors can send
//     notifications and forward reads and writes to the primary cluster.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:  []string{"localhost:8080"},
//	    RetryCount: 3,
//	  },
//	}
//
//	counters, _ := client.NewRPCCounter(200, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	defer counters.Close()
//
//	state, err := counters.Add(ctx, "visits", 1)
//
// Errors:
//
//	Store errors returned by the server are converted back into *store.Error values, so
//	store.CodeOf works on both sides of the connection. All other failures of the server
//	are returned as *RemoteError.
//
// Thread Safety:
//
//	All clients can be used concurrently from multiple goroutines.
package client
