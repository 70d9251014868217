package dstore

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/dLV/lib/store"
	"github.com/ValentinKolb/dLV/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/vmihailenco/msgpack/v5"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

type record struct {
	Value []byte `msgpack:"v"`
	ETag  string `msgpack:"e"`
}

type snapshot struct {
	Records   map[string]record `msgpack:"records"`
	LastIndex uint64            `msgpack:"last_index"`
	Bytes     uint64            `msgpack:"bytes"`
}

// RecordStateMachine is a state machine implementation for Dragonboat RAFT.
// The ETag of a record is the index of the raft entry that wrote it, so all
// replicas hand out the same ETags.
type RecordStateMachine struct {
	replicaID uint64
	shardID   uint64

	mu        sync.RWMutex
	records   map[string]record
	lastIndex uint64
	bytes     uint64
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
func CreateStateMachineFactory() func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &RecordStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			records:   make(map[string]record),
		}
	}
}

// Lookup handles read-only queries.
func (fsm *RecordStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	fsm.mu.RLock()
	defer fsm.mu.RUnlock()

	switch q.Type {
	case internal.QueryTRead:
		r, ok := fsm.records[q.Key]
		return internal.QueryResult{
			Value: r.Value,
			ETag:  r.ETag,
			Ok:    ok,
		}, nil
	case internal.QueryTGetInfo:
		return store.Info{
			Type:     "dstore",
			Records:  uint64(len(fsm.records)),
			Bytes:    fsm.bytes,
			LastETag: strconv.FormatUint(fsm.lastIndex, 10),
		}, nil
	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update handles write commands.
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *RecordStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()

	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	for idx, e := range entries {
		fsm.lastIndex = e.Index

		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}

		old, exists := fsm.records[cmd.Key]
		if old.ETag != cmd.ETag {
			entries[idx].Result = sm.Result{
				Value: uint64(store.RetCETagMismatch),
				Data:  []byte(fmt.Sprintf("expected etag %q, current is %q", cmd.ETag, old.ETag)),
			}
			continue
		}

		switch cmd.Type {
		case internal.CommandTWrite:
			etag := strconv.FormatUint(e.Index, 10)
			fsm.records[cmd.Key] = record{Value: cmd.Value, ETag: etag}
			fsm.bytes += uint64(len(cmd.Value))
			fsm.bytes -= uint64(len(old.Value))
			entries[idx].Result = sm.Result{Value: uint64(store.RetCSuccess), Data: []byte(etag)}
		case internal.CommandTClear:
			if exists {
				delete(fsm.records, cmd.Key)
				fsm.bytes -= uint64(len(old.Value))
			}
			entries[idx].Result = sm.Result{Value: uint64(store.RetCSuccess)}
		default:
			entries[idx].Result = sm.Result{
				Value: uint64(store.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
			}
		}
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// PrepareSnapshot captures the current records. Values are never mutated in place,
// so a shallow copy of the map is a consistent point-in-time view.
func (fsm *RecordStateMachine) PrepareSnapshot() (interface{}, error) {
	fsm.mu.RLock()
	defer fsm.mu.RUnlock()

	records := make(map[string]record, len(fsm.records))
	for k, v := range fsm.records {
		records[k] = v
	}
	return &snapshot{Records: records, LastIndex: fsm.lastIndex, Bytes: fsm.bytes}, nil
}

// SaveSnapshot writes the snapshot captured by PrepareSnapshot to the writer
func (fsm *RecordStateMachine) SaveSnapshot(ctx interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	snap, ok := ctx.(*snapshot)
	if !ok {
		return fmt.Errorf("invalid snapshot context: %T", ctx)
	}
	return msgpack.NewEncoder(writer).Encode(snap)
}

// RecoverFromSnapshot replaces all records with the content of the snapshot.
func (fsm *RecordStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	var snap snapshot
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Records == nil {
		snap.Records = make(map[string]record)
	}

	fsm.mu.Lock()
	defer fsm.mu.Unlock()
	fsm.records = snap.Records
	fsm.lastIndex = snap.LastIndex
	fsm.bytes = snap.Bytes
	return nil
}

// Close performs any necessary cleanup.
func (fsm *RecordStateMachine) Close() error {
	return nil
}
