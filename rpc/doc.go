// Package rpc provides the remote procedure call layer of dLV. It connects clients with
// servers and the protocol shards of different clusters with each other.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB, msgpack)
//     for converting between Message objects and byte arrays.
//
//   - client: RPC clients for record stores and counters, and the protocol network that
//     carries log-view messages between clusters.
//
//   - server: RPC server components that route requests to store shards and the protocol shard.
package rpc
