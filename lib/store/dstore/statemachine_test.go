package dstore

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/dLV/lib/store"
	"github.com/ValentinKolb/dLV/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine() *RecordStateMachine {
	return CreateStateMachineFactory()(1, 1).(*RecordStateMachine)
}

func propose(t *testing.T, fsm *RecordStateMachine, index uint64, cmd internal.Command) sm.Result {
	t.Helper()
	entries, err := fsm.Update([]sm.Entry{{Index: index, Cmd: cmd.Serialize()}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0].Result
}

func lookup(t *testing.T, fsm *RecordStateMachine, key string) internal.QueryResult {
	t.Helper()
	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTRead, Key: key})
	require.NoError(t, err)
	return res.(internal.QueryResult)
}

func TestStateMachineWriteUsesIndexAsETag(t *testing.T) {
	fsm := newTestMachine()

	res := propose(t, fsm, 7, internal.Command{Type: internal.CommandTWrite, Key: "a", Value: []byte("one")})
	assert.Equal(t, uint64(store.RetCSuccess), res.Value)
	assert.Equal(t, "7", string(res.Data))

	got := lookup(t, fsm, "a")
	assert.True(t, got.Ok)
	assert.Equal(t, "7", got.ETag)
	assert.Equal(t, []byte("one"), got.Value)

	res = propose(t, fsm, 9, internal.Command{Type: internal.CommandTWrite, Key: "a", ETag: "7", Value: []byte("two")})
	assert.Equal(t, uint64(store.RetCSuccess), res.Value)
	assert.Equal(t, "9", string(res.Data))
}

func TestStateMachineRejectsStaleETag(t *testing.T) {
	fsm := newTestMachine()
	propose(t, fsm, 1, internal.Command{Type: internal.CommandTWrite, Key: "a", Value: []byte("one")})

	// creating an existing record
	res := propose(t, fsm, 2, internal.Command{Type: internal.CommandTWrite, Key: "a", Value: []byte("x")})
	assert.Equal(t, uint64(store.RetCETagMismatch), res.Value)

	// stale etag
	res = propose(t, fsm, 3, internal.Command{Type: internal.CommandTWrite, Key: "a", ETag: "0", Value: []byte("x")})
	assert.Equal(t, uint64(store.RetCETagMismatch), res.Value)

	got := lookup(t, fsm, "a")
	assert.Equal(t, "1", got.ETag)
	assert.Equal(t, []byte("one"), got.Value)
}

func TestStateMachineClear(t *testing.T) {
	fsm := newTestMachine()
	propose(t, fsm, 1, internal.Command{Type: internal.CommandTWrite, Key: "a", Value: []byte("one")})

	res := propose(t, fsm, 2, internal.Command{Type: internal.CommandTClear, Key: "a", ETag: "5"})
	assert.Equal(t, uint64(store.RetCETagMismatch), res.Value)

	res = propose(t, fsm, 3, internal.Command{Type: internal.CommandTClear, Key: "a", ETag: "1"})
	assert.Equal(t, uint64(store.RetCSuccess), res.Value)
	assert.False(t, lookup(t, fsm, "a").Ok)

	// clearing a missing record without etag succeeds
	res = propose(t, fsm, 4, internal.Command{Type: internal.CommandTClear, Key: "a"})
	assert.Equal(t, uint64(store.RetCSuccess), res.Value)
}

func TestStateMachineInvalidEntries(t *testing.T) {
	fsm := newTestMachine()
	entries, err := fsm.Update([]sm.Entry{
		{Index: 1, Cmd: nil},
		{Index: 2, Cmd: []byte{1, 2}},
		{Index: 3, Cmd: (&internal.Command{Type: internal.CommandType(42), Key: "a"}).Serialize()},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(store.RetCInvalidOperation), entries[0].Result.Value)
	assert.Equal(t, uint64(store.RetCInternalError), entries[1].Result.Value)
	assert.Equal(t, uint64(store.RetCInvalidOperation), entries[2].Result.Value)

	_, err = fsm.Lookup("not a query")
	assert.Equal(t, store.RetCInternalError, store.CodeOf(err))
	_, err = fsm.Lookup(internal.Query{Type: internal.QueryType(42)})
	assert.Equal(t, store.RetCInvalidOperation, store.CodeOf(err))
}

func TestStateMachineSnapshotRoundTrip(t *testing.T) {
	fsm := newTestMachine()
	propose(t, fsm, 1, internal.Command{Type: internal.CommandTWrite, Key: "a", Value: []byte("one")})
	propose(t, fsm, 2, internal.Command{Type: internal.CommandTWrite, Key: "b", Value: []byte("two")})

	ctx, err := fsm.PrepareSnapshot()
	require.NoError(t, err)

	// updates after PrepareSnapshot are not part of the snapshot
	propose(t, fsm, 3, internal.Command{Type: internal.CommandTWrite, Key: "c", Value: []byte("three")})

	var buf bytes.Buffer
	require.NoError(t, fsm.SaveSnapshot(ctx, &buf, nil, nil))

	restored := newTestMachine()
	require.NoError(t, restored.RecoverFromSnapshot(&buf, nil, nil))

	assert.Equal(t, "1", lookup(t, restored, "a").ETag)
	assert.Equal(t, []byte("two"), lookup(t, restored, "b").Value)
	assert.False(t, lookup(t, restored, "c").Ok)

	info, err := restored.Lookup(internal.Query{Type: internal.QueryTGetInfo})
	require.NoError(t, err)
	assert.Equal(t, store.Info{Type: "dstore", Records: 2, Bytes: 6, LastETag: "2"}, info)
}
