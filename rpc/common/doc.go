// Package common provides the data structures shared by the rpc server, the rpc
// client and the command line tools.
//
// The package focuses on:
//   - Message definition for all rpc traffic (store access, log-view protocol, counters)
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat
//
// Key Components:
//
//   - Message: One flat structure for every request and response. Factory
//     functions build the store requests, the counter requests and the wrapped
//     log-view protocol messages (see NewProtocolMessage and ToProtocolMessage).
//
//   - MessageType: Enumeration of all supported operations, grouped into store
//     operations, log-view protocol messages and counter operations.
//
//   - ServerConfig: Shards, RAFT parameters, transport settings and the
//     multi-cluster log-view configuration of a server node.
//
//   - ClientConfig: Timeouts and transport settings of a client.
//
//   - Logger: Dragonboat compatible logger factory used by every package of this
//     module, so all output shares one format.
package common
