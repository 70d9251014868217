// Package transport defines the interfaces for RPC communication between clients,
// servers and the servers of different clusters. All transport implementations
// fulfill the same contract, so the rpc layer is protocol-agnostic.
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
// Implementations: base (framing shared by tcp and unix), tcp, unix and http.
package transport
