package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/dLV/lib/store"
	"github.com/ValentinKolb/dLV/rpc/client"
	"github.com/ValentinKolb/dLV/rpc/common"
	"github.com/ValentinKolb/dLV/rpc/serializer"
	"github.com/ValentinKolb/dLV/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testStoreShard    = 100
	testProtocolShard = 200
)

// startServer serves the given shards on socket and stops the server when the test ends
func startServer(t *testing.T, socket string, shards []common.ServerShard, lv common.LogViewConfig) {
	s := NewRPCServer(common.ServerConfig{
		Shards:        shards,
		TimeoutSecond: 5,
		Transport:     common.ServerTransportConfig{Endpoint: socket},
		LogView:       lv,
		LogLevel:      "error",
	}, unix.NewUnixDefaultServerTransport(), serializer.NewBinarySerializer(), unix.NewUnixClientTransport)

	done := make(chan error, 1)
	go func() {
		done <- s.Serve()
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(socket)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, s.Stop(ctx))
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after Stop")
		}
	})
}

func clientConfig(socket string) common.ClientConfig {
	return common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:  []string{socket},
			RetryCount: 2,
		},
	}
}

func newCounterClient(t *testing.T, socket string) *client.RPCCounter {
	c, err := client.NewRPCCounter(testProtocolShard, clientConfig(socket), unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCountersAcrossClusters(t *testing.T) {
	dir := t.TempDir()
	socketA := filepath.Join(dir, "a.sock")
	socketB := filepath.Join(dir, "b.sock")
	clusters := map[string]string{"a": socketA, "b": socketB}

	// a serves the record store, b reaches it remotely
	startServer(t, socketA, []common.ServerShard{
		{ShardID: testStoreShard, Type: common.ShardTypeLocalIStore},
		{ShardID: testProtocolShard, Type: common.ShardTypeProtocol},
	}, common.LogViewConfig{ClusterID: "a", Clusters: clusters, StoreShard: testStoreShard})

	startServer(t, socketB, []common.ServerShard{
		{ShardID: testProtocolShard, Type: common.ShardTypeProtocol},
	}, common.LogViewConfig{ClusterID: "b", Clusters: clusters, StoreShard: testStoreShard, StoreEndpoints: []string{socketA}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counterA := newCounterClient(t, socketA)
	counterB := newCounterClient(t, socketB)

	state, err := counterA.Add(ctx, "visits", 5)
	require.NoError(t, err)
	assert.Equal(t, client.CounterState{Value: 5, Version: 1}, state)

	state, err = counterB.Add(ctx, "visits", 10)
	require.NoError(t, err)
	assert.Equal(t, client.CounterState{Value: 15, Version: 2}, state)

	state, err = counterA.Sync(ctx, "visits")
	require.NoError(t, err)
	assert.Equal(t, client.CounterState{Value: 15, Version: 2}, state)

	// the record of the counter is visible in the store shard
	rpcStore, err := client.NewRPCStore(testStoreShard, clientConfig(socketA), unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)
	_, etag, found, err := rpcStore.ReadState(CounterKeyPrefix + "visits")
	require.NoError(t, err)
	assert.True(t, found)
	assert.NotEmpty(t, etag)

	// a stale ETag is rejected with the store error code
	err = rpcStore.ClearState(CounterKeyPrefix+"visits", "stale")
	require.Error(t, err)
	assert.Equal(t, store.RetCETagMismatch, store.CodeOf(err))

	info, err := rpcStore.GetInfo()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Records)
}

func TestUnknownShard(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "store.sock")
	startServer(t, socket, []common.ServerShard{
		{ShardID: testStoreShard, Type: common.ShardTypeLocalIStore},
	}, common.LogViewConfig{})

	rpcStore, err := client.NewRPCStore(testStoreShard+1, clientConfig(socket), unix.NewUnixClientTransport(), serializer.NewBinarySerializer())
	require.NoError(t, err)

	_, _, _, err = rpcStore.ReadState("key")
	require.Error(t, err)
	var remoteErr *client.RemoteError
	assert.ErrorAs(t, err, &remoteErr)
}

func TestProtocolShardNeedsRecordStore(t *testing.T) {
	s := NewRPCServer(common.ServerConfig{
		Shards:        []common.ServerShard{{ShardID: testProtocolShard, Type: common.ShardTypeProtocol}},
		TimeoutSecond: 5,
		Transport:     common.ServerTransportConfig{Endpoint: filepath.Join(t.TempDir(), "p.sock")},
		LogView:       common.LogViewConfig{ClusterID: "a", Clusters: map[string]string{"a": "unused"}, StoreShard: testStoreShard},
		LogLevel:      "error",
	}, unix.NewUnixDefaultServerTransport(), serializer.NewBinarySerializer(), unix.NewUnixClientTransport)

	require.Error(t, s.Serve())
	require.NoError(t, s.Stop(context.Background()))
}
