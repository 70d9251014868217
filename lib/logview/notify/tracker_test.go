package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/ValentinKolb/dLV/lib/logview/protocol/loopback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// receiver records the updates of all notifications it receives
type receiver struct {
	mu       sync.Mutex
	version  int
	updates  [][]byte
	messages int
}

func (r *receiver) OnProtocolMessageReceived(_ context.Context, msg *protocol.Message) (*protocol.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages++
	if start := msg.Version - len(msg.Updates); start == r.version {
		r.updates = append(r.updates, msg.Updates...)
		r.version = msg.Version
	}
	return &protocol.Message{Type: protocol.MsgTNotificationAck}, nil
}

func (r *receiver) state() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version, len(r.updates)
}

func notification(version int, updates ...string) *protocol.Message {
	msg := &protocol.Message{Type: protocol.MsgTNotification, Origin: "a", Version: version}
	for _, u := range updates {
		msg.Updates = append(msg.Updates, []byte(u))
	}
	return msg
}

func TestTrackerBroadcast(t *testing.T) {
	network := loopback.NewNetwork("a", "b", "c")
	b, c := &receiver{}, &receiver{}
	network.Register("b", "entity", b)
	network.Register("c", "entity", c)

	tracker := NewTracker(network.Services("a", "entity"), nil)
	tracker.Broadcast(notification(1, "x"))
	tracker.Broadcast(notification(3, "y", "z"))
	tracker.Broadcast(notification(4, "w"), "c")

	require.Eventually(t, func() bool {
		vb, _ := b.state()
		vc, _ := c.state()
		return vb == 4 && vc == 3
	}, 2*time.Second, 5*time.Millisecond)

	_, nb := b.state()
	assert.Equal(t, 4, nb)
	require.NoError(t, tracker.Close(context.Background()))
	assert.Empty(t, tracker.Issues())
}

func TestTrackerRetriesAfterPartition(t *testing.T) {
	network := loopback.NewNetwork("a", "b")
	b := &receiver{}
	network.Register("b", "entity", b)
	network.SetPartitioned("b", true)

	tracker := NewTracker(network.Services("a", "entity"), nil)
	defer tracker.Close(context.Background())

	tracker.Broadcast(notification(1, "x"))
	require.Eventually(t, func() bool {
		return len(tracker.Issues()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	issue := tracker.Issues()[0]
	assert.Equal(t, "b", issue.Cluster)
	assert.GreaterOrEqual(t, issue.NumberOfConsecutiveFailures, 1)

	// queued while partitioned, merged with the first one
	tracker.Broadcast(notification(2, "y"))
	network.SetPartitioned("b", false)

	require.Eventually(t, func() bool {
		version, _ := b.state()
		return version == 2
	}, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(tracker.Issues()) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTrackerConfigurationChange(t *testing.T) {
	network := loopback.NewNetwork("a", "b")
	network.SetPartitioned("b", true)
	tracker := NewTracker(network.Services("a", "entity"), nil)

	tracker.Broadcast(notification(1, "x"))
	require.Eventually(t, func() bool {
		return len(tracker.Issues()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	tracker.UpdateConfiguration(protocol.MultiClusterConfiguration{Clusters: []string{"a"}})
	assert.Empty(t, tracker.Issues())
	assert.Equal(t, 0, tracker.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tracker.Close(ctx))
}

func TestMerge(t *testing.T) {
	first := notification(2, "a", "b")
	assert.True(t, merge(first, notification(3, "c")))
	assert.Equal(t, 3, first.Version)
	assert.Len(t, first.Updates, 3)
	assert.False(t, merge(first, notification(5, "e")))
}
