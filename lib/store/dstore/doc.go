// Package dstore implements a distributed, fault-tolerant record store using
// the Dragonboat RAFT consensus library. It provides a strongly consistent implementation
// of the store.IStore interface that can operate across multiple nodes while
// maintaining linearizable consistency.
//
// Architecture:
//
//   - Store Client: Implements the store.IStore interface. It serializes operations into
//     commands, proposes them to the consensus layer and maps the results to store errors.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine that holds the records and
//     performs the ETag comparison for every write and clear command.
//
//   - Communication Protocol: Defined in the internal package, this consists of Command
//     and Query structures with serialization logic for the RAFT log.
//
// ETags:
//
// The ETag of a record is the RAFT log index of the entry that last wrote it. Since every
// replica applies the same log, all replicas agree on the ETags without further coordination.
// A write whose ETag does not match the current one is rejected with RetCETagMismatch and
// leaves the record untouched. This makes the store usable as the backing storage of the
// shared log-view backend, where concurrent clusters race to append to the same record.
//
// Write Operations:
//
//	1. The operation is serialized into a Command structure
//	2. The Command is proposed to the RAFT cluster via SyncPropose
//	3. Once committed, the command is executed on the state machine on each node (Update in statemachine.go)
//	4. The new ETag (or the failure code) is returned to the client
//
// Read Operations:
//
//   - Linearizable Reads: ReadState uses SyncRead, so it always observes the latest
//     committed record, regardless of which node processes the read.
//
//   - Stale Reads: GetInfo uses StaleRead, which may return slightly outdated information
//     but with lower latency.
//
// Error Handling and Retries:
//
// When Dragonboat returns ErrSystemBusy, the operation is retried after a short delay, up
// to a fixed number of attempts. All operations have a configurable timeout. A write that
// times out may still be committed later; callers must treat it as ambiguous.
//
// Snapshotting:
//
// PrepareSnapshot copies the record map under a read lock. SaveSnapshot encodes the copy with
// msgpack while updates continue. RecoverFromSnapshot replaces the whole state.
//
// Example:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	err = nh.StartConcurrentReplica(
//	    clusterMembers,
//	    false,
//	    dstore.CreateStateMachineFactory(),
//	    shardConfig)
//	if err != nil { ... }
//
//	s := dstore.NewDistributedStore(nh, shardID, 5*time.Second)
//
// For scenarios where distributed consensus is not required, consider using the simpler
// and faster lstore package, which provides a single-node in-memory implementation of the
// same interface.
package dstore
