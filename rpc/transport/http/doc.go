// Package http implements an HTTP-based transport for the rpc layer. Every request
// is posted to {endpoint}/{shardId} with the serialized message as body.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. Requests are bound by the
//     caller's context and the configured timeout, endpoints are selected round-robin
//     and failed requests are retried.
//
//   - httpServerTransport: Implements IRPCServerTransport with a net/http server that
//     routes requests by the shard id in the path. Close shuts the server down gracefully.
//
// Thread Safety:
//
//	The client transport is safe for concurrent use, the round-robin counter is atomic.
//
// The http transport is easy to put behind existing HTTP infrastructure (proxies,
// load balancers) and is a good fit for the links between clusters.
package http
