// Package server implements the RPC server of dLV.
// It routes incoming requests by shard id to adapters that translate RPC messages into calls
// of a record store or of the counter entities hosted by the log-view protocol.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface of all server adapters, with the Handle method that
//     processes a single request.
//
//   - NewIStoreServerAdapter: Adapter for record store operations, translating RPC requests
//     to store.IStore method calls (conditional writes with ETags included).
//
//   - NewProtocolServerAdapter: Adapter for the protocol shard. It delivers protocol messages
//     (notifications, forwarded reads and writes) of other clusters to the counter entities
//     and serves the counter operations of clients.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeLocalIStore},
//	    {ShardID: 200, Type: common.ShardTypeProtocol},
//	  },
//	  Transport:     common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	  TimeoutSecond: 5,
//	  LogView: common.LogViewConfig{
//	    ClusterID:  "eu",
//	    Clusters:   map[string]string{"eu": "10.0.0.1:8080", "us": "10.1.0.1:8080"},
//	    StoreShard: 100,
//	  },
//	  LogLevel: "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPDefaultServerTransport(),
//	  serializer.NewBinarySerializer(),
//	  tcp.NewTCPClientTransport,
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// The server supports three types of shards, which can be mixed within a single server:
//
//   - ShardTypeLocalIStore: An in-memory record store, suitable for single-node deployments
//     or development environments.
//
//   - ShardTypeRemoteIStore: A record store replicated with Raft. When using this type,
//     the RAFT configuration (RTTMillisecond, SnapshotEntries, CompactionOverhead,
//     DataDir, ReplicaID, and ClusterMembers) must be properly configured.
//
//   - ShardTypeProtocol: The counter entities of this cluster. At most one protocol shard
//     is allowed. Its records are kept in the store shard LogView.StoreShard, either served
//     by the same server or reached via LogView.StoreEndpoints.
//
// Thread Safety:
//
//	The server handles concurrent requests across multiple connections. Serve should be
//	called only once, Stop may be called from any goroutine.
package server
