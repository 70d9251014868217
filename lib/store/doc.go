// Package store provides a record store interface with optimistic concurrency control.
// It is the storage layer of the shared log-view backend: every entity keeps its view in a
// single record, and clusters that want to change the record have to present the ETag
// they last saw.
//
// The package focuses on:
//   - A unified interface (IStore) for ETag based record operations across different backends
//   - A Registry that resolves stores by name, so providers can be configured with a store name
//
// Key Components:
//
//   - IStore Interface: The core abstraction defining ReadState, WriteState and ClearState.
//     ETags are opaque strings. An empty ETag stands for "the record does not exist", which
//     allows creating records without a separate insert operation.
//
//   - Error System: A structured error reporting mechanism using typed error codes
//     and descriptive messages. Callers use IsETagMismatch to tell concurrency conflicts
//     apart from real failures.
//
//   - Registry: A concurrent name to store map.
//
// Implementations:
//
//	The package includes three implementations of the IStore interface:
//
//	- Local Store (lstore): A non-distributed implementation that keeps all records in
//	  memory. ETags are taken from an atomic counter. Suitable for single-node deployments
//	  and tests. Available in the "github.com/ValentinKolb/dLV/lib/store/lstore" package.
//
//	- Distributed Store (dstore): An implementation built on the Dragonboat RAFT consensus
//	  library. ETags are the RAFT log indexes of the writes and therefore identical on all
//	  replicas. Available in the "github.com/ValentinKolb/dLV/lib/store/dstore" package.
//
//	- Remote Store: A client that forwards all operations to a dLV server
//	  (see the "github.com/ValentinKolb/dLV/rpc/client" package). This is how clusters in
//	  different locations share one store.
package store
