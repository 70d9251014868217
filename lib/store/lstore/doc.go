// Package lstore implements a local, in-memory, single-node record store based on the
// store.IStore interface. Data is stored entirely in memory and is not persisted between
// process restarts.
//
// Key Features:
//   - Pure in-memory storage without persistence
//   - ETags from an atomic write index
//   - Atomic compare-and-set per record using xsync.MapOf.Compute
//   - Thread-safe operations for concurrent access
//
// Implementation Details:
//
//   - Write Index Management: The store maintains an atomic counter that increments with
//     each successful write. The new value, formatted as a decimal string, is the ETag of the
//     written record. ETags are therefore unique for the lifetime of the store.
//
//   - Compare-And-Set: The ETag check and the update of a record happen inside one
//     Compute call of the concurrent map, so concurrent writers presenting the same ETag
//     can never both succeed.
//
// Usage Example:
//
//	s := lstore.NewLocalStore()
//
//	// create the record
//	etag, err := s.WriteState("account:42", data, "")
//
//	// update it
//	etag, err = s.WriteState("account:42", newData, etag)
//
// For distributed scenarios requiring consensus across multiple nodes, consider
// using the dstore package instead, which provides a RAFT-based implementation
// of the same interface with strong consistency guarantees.
package lstore
