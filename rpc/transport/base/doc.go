// Package base provides the foundation for the stream transports of the rpc layer
// (tcp and Unix sockets). It implements framing, connection handling and request
// correlation independent of the network protocol. Protocol specific behaviour is
// injected through connectors.
//
// Frame format (all integers big endian):
//
//	shardId (8 bytes) | requestID (8 bytes) | length (4 bytes) | payload
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     (dialing, listening and socket options).
//
//   - clientTransport: Manages multiple connections with round-robin load balancing.
//     Requests are bound by the caller's context, failed attempts are retried with
//     exponential backoff and broken connections are re-established in the background.
//
//   - serverTransport: Accepts connections and processes the requests of every
//     connection with a bounded number of workers. Close stops the listener and
//     closes all open connections.
//
// Performance Optimizations:
//
//   - Connection Pooling: Multiple connections per endpoint improve throughput for
//     large messages. For small messages a single connection is usually faster.
//
//   - Buffer Pooling: The server uses a sync.Pool to reuse read buffers.
//
//   - Asynchronous Processing: Responses are correlated by request id, so many
//     requests can be in flight on one connection.
//
//   - Frame Batching: Header and payload are written with net.Buffers in a single call.
//
// Thread Safety:
//
//	All public methods are thread-safe.
package base
