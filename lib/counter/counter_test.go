package counter

import (
	"context"
	"testing"
	"time"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/ValentinKolb/dLV/lib/logview/memory"
	"github.com/ValentinKolb/dLV/lib/logview/primary"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/ValentinKolb/dLV/lib/logview/protocol/loopback"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// newManagers creates one manager per cluster, all counters share one memory storage
func newManagers(t *testing.T, clusters ...string) map[string]*Manager {
	network := loopback.NewNetwork(clusters...)
	storage := memory.NewStorage()

	managers := make(map[string]*Manager, len(clusters))
	for _, cluster := range clusters {
		cluster := cluster
		managers[cluster] = NewManager(func(entity string) (*primary.Adaptor[int64, int64], error) {
			a, err := memory.NewAdaptor[int64, int64](Host{}, network.Services(cluster, entity), storage, memory.Config{ProviderID: "counter"})
			if err != nil {
				return nil, err
			}
			network.Register(cluster, entity, a)
			return a, nil
		})
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, m := range managers {
			_ = m.Close(ctx)
		}
	})
	return managers
}

func TestHost(t *testing.T) {
	var h Host
	v := h.NewView()
	require.Equal(t, int64(0), v)

	v, err := h.ApplyEntry(v, 5)
	require.NoError(t, err)
	v, err = h.ApplyEntry(v, -2)
	require.NoError(t, err)
	require.Equal(t, int64(3), v)
	require.Equal(t, v, h.CopyView(v))
}

func TestAddAcrossClusters(t *testing.T) {
	managers := newManagers(t, "a", "b")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state, err := managers["a"].Add(ctx, "visits", 5)
	require.NoError(t, err)
	require.Equal(t, State{Value: 5, Version: 1}, state)

	// b reads the stored state on activation
	state, err = managers["b"].Value(ctx, "visits")
	require.NoError(t, err)
	require.Equal(t, State{Value: 5, Version: 1}, state)

	state, err = managers["b"].Add(ctx, "visits", 10)
	require.NoError(t, err)
	require.Equal(t, State{Value: 15, Version: 2}, state)

	state, err = managers["a"].Sync(ctx, "visits")
	require.NoError(t, err)
	require.Equal(t, State{Value: 15, Version: 2}, state)

	require.Equal(t, []string{"visits"}, managers["a"].Entities())

	stats, ok := managers["a"].Stats("visits")
	require.True(t, ok)
	require.Positive(t, stats.EventCounters[primary.EventSubmit])
}

func TestConcurrentActivation(t *testing.T) {
	managers := newManagers(t, "a")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_, err := managers["a"].Add(ctx, "visits", 1)
			errs <- err
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-errs)
	}

	state, err := managers["a"].Sync(ctx, "visits")
	require.NoError(t, err)
	require.Equal(t, int64(10), state.Value)
	require.Equal(t, 10, state.Version)
}

func TestNotificationForInactiveCounter(t *testing.T) {
	managers := newManagers(t, "a", "b")
	ctx := context.Background()

	resp, err := managers["a"].HandleProtocolMessage(ctx, "unknown", &protocol.Message{
		Type:    protocol.MsgTNotification,
		Origin:  "b",
		Version: 3,
	})
	require.NoError(t, err)
	require.Equal(t, protocol.MsgTNotificationAck, resp.Type)
	require.True(t, resp.Ok)

	// the notification does not activate the counter
	require.Empty(t, managers["a"].Entities())
}

func TestFactoryError(t *testing.T) {
	m := NewManager(func(entity string) (*primary.Adaptor[int64, int64], error) {
		return nil, logview.ConfigurationError("no provider for %s", entity)
	})

	_, err := m.Add(context.Background(), "visits", 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, logview.ErrConfiguration))
	require.Empty(t, m.Entities())
}

func TestClose(t *testing.T) {
	managers := newManagers(t, "a")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := managers["a"].Add(ctx, "visits", 1)
	require.NoError(t, err)

	require.NoError(t, managers["a"].Close(ctx))
	require.Empty(t, managers["a"].Entities())

	_, err = managers["a"].Add(ctx, "visits", 1)
	require.ErrorIs(t, err, logview.ErrInactive)
}
