package unix

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dLV/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEchoServer starts a server that prefixes every request with its shard id
func startEchoServer(t *testing.T) (string, chan error, func() error) {
	socket := filepath.Join(t.TempDir(), "rpc.sock")

	server := NewUnixDefaultServerTransport()
	server.RegisterHandler(func(shardId uint64, req []byte) []byte {
		return append([]byte{byte(shardId)}, req...)
	})

	done := make(chan error, 1)
	go func() {
		done <- server.Listen(common.ServerConfig{
			TimeoutSecond: 5,
			Transport:     common.ServerTransportConfig{Endpoint: socket, WorkersPerConn: 4},
		})
	}()
	return socket, done, server.Close
}

func clientConfig(socket string) common.ClientConfig {
	return common.ClientConfig{
		TimeoutSecond: 5,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{socket},
			RetryCount:             2,
			ConnectionsPerEndpoint: 2,
		},
	}
}

func TestSendReceive(t *testing.T) {
	socket, done, closeServer := startEchoServer(t)

	client := NewUnixClientTransport()
	require.Eventually(t, func() bool {
		return client.Connect(clientConfig(socket)) == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer client.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Send(context.Background(), uint64(i), []byte("ping"))
			assert.NoError(t, err)
			assert.Equal(t, append([]byte{byte(i)}, "ping"...), resp)
		}(i)
	}
	wg.Wait()

	require.NoError(t, closeServer())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after Close")
	}
}

func TestSendCanceled(t *testing.T) {
	socket, _, closeServer := startEchoServer(t)
	defer closeServer()

	client := NewUnixClientTransport()
	require.Eventually(t, func() bool {
		return client.Connect(clientConfig(socket)) == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Send(ctx, 1, []byte("ping"))
	require.Error(t, err)
}

func TestConnectWithoutServer(t *testing.T) {
	client := NewUnixClientTransport()
	err := client.Connect(common.ClientConfig{
		Transport: common.ClientTransportConfig{Endpoints: []string{filepath.Join(t.TempDir(), "missing.sock")}},
	})
	require.Error(t, err)
}
