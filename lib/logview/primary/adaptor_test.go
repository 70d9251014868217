package primary

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/ValentinKolb/dLV/lib/logview/notify"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/ValentinKolb/dLV/lib/logview/protocol/loopback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------
// Test Host & Backend
// --------------------------------------------------------------------------

const (
	poison     = -1000
	explosive  = -2000
	testEntity = "counter"
)

// counterHost sums up entries. poison fails, explosive panics.
type counterHost struct{}

func (counterHost) NewView() int { return 0 }

func (counterHost) ApplyEntry(view int, entry int) (int, error) {
	switch entry {
	case poison:
		return view, errors.New("poisoned entry")
	case explosive:
		panic("boom")
	}
	return view + entry, nil
}

// stringHost concatenates entries
type stringHost struct{}

func (stringHost) NewView() string { return "" }

func (stringHost) ApplyEntry(view string, entry string) (string, error) { return view + entry, nil }

// tallyHost counts entries in place
type tallyHost struct{}

func (tallyHost) NewView() map[string]int { return map[string]int{} }

func (tallyHost) ApplyEntry(view map[string]int, entry string) (map[string]int, error) {
	view[entry]++
	return view, nil
}

func (tallyHost) CopyView(view map[string]int) map[string]int { return maps.Clone(view) }

// fakeStorage is shared by the fake backends of several adaptors
type fakeStorage[V, E any] struct {
	mu      sync.Mutex
	view    V
	version int
	apply   func(V, []E) V

	failReads  int
	failWrites int
	// landOnFail applies failing writes anyway
	landOnFail bool
	landed     bool
	writes     int
	// gate blocks writes until it is closed
	gate chan struct{}
	// readGate holds the next read until it is closed, readEntered is closed once the read waits
	readGate    chan struct{}
	readEntered chan struct{}
}

func (s *fakeStorage[V, E]) state() (V, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view, s.version
}

type fakeBackend[V, E any] struct {
	s *fakeStorage[V, E]
}

func (b *fakeBackend[V, E]) Name() string { return "fake" }

func (b *fakeBackend[V, E]) Read(_ context.Context, known int) ReadOutcome[V] {
	b.s.mu.Lock()
	gate, entered := b.s.readGate, b.s.readEntered
	b.s.readGate, b.s.readEntered = nil, nil
	b.s.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}

	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.s.failReads > 0 {
		b.s.failReads--
		return ReadError[V](logview.TransportError(errors.New("unreachable"), "read"))
	}
	landed := b.s.landed
	b.s.landed = false
	if b.s.version == 0 {
		return Empty[V]()
	}
	if known >= 0 && b.s.version <= known && !landed {
		return NotNewer[V]()
	}
	out := Found(b.s.view, b.s.version)
	out.WriteLanded = landed
	return out
}

func (b *fakeBackend[V, E]) Write(_ context.Context, confirmed Snapshot[V], entries []E) WriteOutcome[V] {
	b.s.mu.Lock()
	gate := b.s.gate
	b.s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	if b.s.failWrites > 0 {
		b.s.failWrites--
		if b.s.landOnFail && b.s.version == confirmed.Version {
			b.s.view = b.s.apply(b.s.view, entries)
			b.s.version += len(entries)
			b.s.writes++
			b.s.landed = true
		}
		return WriteError[V](logview.TransportError(errors.New("timeout"), "write"))
	}
	if b.s.version != confirmed.Version {
		return Conflict[V](nil)
	}
	b.s.view = b.s.apply(b.s.view, entries)
	b.s.version += len(entries)
	b.s.writes++
	return Written[V]()
}

func (b *fakeBackend[V, E]) Decorate(*notify.Notification[E])           {}
func (b *fakeBackend[V, E]) NotificationApplied(notify.Notification[E]) {}
func (b *fakeBackend[V, E]) HandleRequest(context.Context, *protocol.Message, IRequestContext[V, E]) (*protocol.Message, error) {
	return nil, errors.New("unsupported")
}
func (b *fakeBackend[V, E]) ConfigurationChanged(protocol.MultiClusterConfiguration) error {
	return nil
}

func newStringStorage() *fakeStorage[string, string] {
	return &fakeStorage[string, string]{apply: func(v string, entries []string) string {
		for _, e := range entries {
			v += e
		}
		return v
	}}
}

// newLog creates and activates a string adaptor in cluster on storage
func newLog(t *testing.T, network *loopback.Network, cluster string, storage *fakeStorage[string, string]) *Adaptor[string, string] {
	t.Helper()
	services := network.Services(cluster, "log")
	a := NewAdaptor[string, string](NewViewOps[string, string](stringHost{}, nil, services), &fakeBackend[string, string]{s: storage}, Options{ProviderID: "test"})
	network.Register(cluster, "log", a)
	a.EnableStatsCollection()
	require.NoError(t, a.Activate(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Deactivate(ctx)
	})
	return a
}

func newCounterStorage() *fakeStorage[int, int] {
	return &fakeStorage[int, int]{apply: func(v int, entries []int) int {
		for _, e := range entries {
			if e != poison && e != explosive {
				v += e
			}
		}
		return v
	}}
}

// newCounter creates and activates a counter adaptor in cluster on storage
func newCounter(t *testing.T, network *loopback.Network, cluster string, storage *fakeStorage[int, int]) *Adaptor[int, int] {
	t.Helper()
	services := network.Services(cluster, testEntity)
	a := NewAdaptor[int, int](NewViewOps[int, int](counterHost{}, nil, services), &fakeBackend[int, int]{s: storage}, Options{ProviderID: "test"})
	network.Register(cluster, testEntity, a)
	a.EnableStatsCollection()
	require.NoError(t, a.Activate(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Deactivate(ctx)
	})
	return a
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestSubmitAndConfirm(t *testing.T) {
	network := loopback.NewNetwork("a")
	storage := newCounterStorage()
	a := newCounter(t, network, "a", storage)

	assert.Equal(t, 0, a.ConfirmedVersion())
	a.Submit(5)
	assert.Equal(t, 5, a.TentativeView())

	require.NoError(t, a.ConfirmSubmittedEntries(testContext(t)))
	assert.Equal(t, 5, a.ConfirmedView())
	assert.Equal(t, 1, a.ConfirmedVersion())
	assert.Empty(t, a.UnconfirmedSuffix())

	view, version := storage.state()
	assert.Equal(t, 5, view)
	assert.Equal(t, 1, version)

	stats := a.GetStats()
	assert.Equal(t, int64(1), stats.EventCounters[EventSubmit])
	assert.GreaterOrEqual(t, stats.EventCounters[EventWrite], int64(1))
	assert.Len(t, stats.StabilizationLatenciesMs, 1)
}

func TestSubmissionOrdering(t *testing.T) {
	network := loopback.NewNetwork("a")
	storage := &fakeStorage[string, string]{apply: func(v string, entries []string) string {
		for _, e := range entries {
			v += e
		}
		return v
	}}
	services := network.Services("a", "log")
	a := NewAdaptor[string, string](NewViewOps[string, string](stringHost{}, nil, services), &fakeBackend[string, string]{s: storage}, Options{ProviderID: "test"})
	require.NoError(t, a.Activate(testContext(t)))
	defer a.Deactivate(context.Background())

	a.Submit("a")
	a.SubmitRange([]string{"b", "c"})
	a.Submit("d")
	assert.Equal(t, "abcd", a.TentativeView())

	require.NoError(t, a.ConfirmSubmittedEntries(testContext(t)))
	assert.Equal(t, "abcd", a.ConfirmedView())
	assert.Equal(t, 4, a.ConfirmedVersion())
}

func TestViewsAreSnapshots(t *testing.T) {
	network := loopback.NewNetwork("a")
	storage := &fakeStorage[map[string]int, string]{apply: func(v map[string]int, entries []string) map[string]int {
		v = maps.Clone(v)
		if v == nil {
			v = map[string]int{}
		}
		for _, e := range entries {
			v[e]++
		}
		return v
	}}
	services := network.Services("a", "tally")
	a := NewAdaptor[map[string]int, string](NewViewOps[map[string]int, string](tallyHost{}, nil, services), &fakeBackend[map[string]int, string]{s: storage}, Options{ProviderID: "test"})
	require.NoError(t, a.Activate(testContext(t)))
	defer a.Deactivate(context.Background())

	a.Submit("x")
	tentative := a.TentativeView()
	require.NoError(t, a.ConfirmSubmittedEntries(testContext(t)))
	confirmed := a.ConfirmedView()
	assert.Equal(t, map[string]int{"x": 1}, confirmed)

	a.SubmitRange([]string{"x", "y"})
	assert.Equal(t, map[string]int{"x": 2, "y": 1}, a.TentativeView())
	require.NoError(t, a.ConfirmSubmittedEntries(testContext(t)))
	assert.Equal(t, map[string]int{"x": 2, "y": 1}, a.ConfirmedView())

	// views returned earlier are unchanged
	assert.Equal(t, map[string]int{"x": 1}, tentative)
	assert.Equal(t, map[string]int{"x": 1}, confirmed)
}

func TestTryAppendSingleWinner(t *testing.T) {
	network := loopback.NewNetwork("a", "b")
	storage := newCounterStorage()
	a := newCounter(t, network, "a", storage)
	b := newCounter(t, network, "b", storage)

	a.Submit(5)
	require.NoError(t, a.ConfirmSubmittedEntries(testContext(t)))
	require.NoError(t, b.SynchronizeNow(testContext(t)))
	require.Equal(t, 5, b.ConfirmedView())

	// both appends are queued before either of them is written
	gate := make(chan struct{})
	storage.mu.Lock()
	storage.gate = gate
	storage.mu.Unlock()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, adaptor := range []*Adaptor[int, int]{a, b} {
		wg.Add(1)
		go func(adaptor *Adaptor[int, int]) {
			defer wg.Done()
			ok, err := adaptor.TryAppend(testContext(t), 10)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(adaptor)
	}
	require.Eventually(t, func() bool {
		return len(a.UnconfirmedSuffix()) == 1 && len(b.UnconfirmedSuffix()) == 1
	}, 2*time.Second, time.Millisecond)
	close(gate)
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	require.NoError(t, a.SynchronizeNow(testContext(t)))
	require.NoError(t, b.SynchronizeNow(testContext(t)))
	assert.Equal(t, 15, a.ConfirmedView())
	assert.Equal(t, 15, b.ConfirmedView())
	assert.Equal(t, 2, a.ConfirmedVersion())
	assert.Equal(t, 2, b.ConfirmedVersion())
}

func TestTryAppendAfterSubmit(t *testing.T) {
	network := loopback.NewNetwork("a")
	a := newCounter(t, network, "a", newCounterStorage())

	a.Submit(1)
	ok, err := a.TryAppendRange(testContext(t), []int{2, 3})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6, a.ConfirmedView())
	assert.Equal(t, 3, a.ConfirmedVersion())
}

func TestTryAppendInactive(t *testing.T) {
	network := loopback.NewNetwork("a")
	services := network.Services("a", testEntity)
	a := NewAdaptor[int, int](NewViewOps[int, int](counterHost{}, nil, services), &fakeBackend[int, int]{s: newCounterStorage()}, Options{ProviderID: "test"})

	ok, err := a.TryAppend(testContext(t), 1)
	assert.False(t, ok)
	assert.ErrorIs(t, err, logview.ErrInactive)
}

func TestWriteFailureIsRetried(t *testing.T) {
	network := loopback.NewNetwork("a")
	storage := newCounterStorage()
	storage.failWrites = 2
	a := newCounter(t, network, "a", storage)

	a.Submit(3)
	require.NoError(t, a.ConfirmSubmittedEntries(testContext(t)))
	assert.Equal(t, 3, a.ConfirmedView())
	assert.Empty(t, a.UnresolvedConnectionIssues())

	stats := a.GetStats()
	assert.Equal(t, int64(2), stats.EventCounters[EventWriteFailed])
	_, version := storage.state()
	assert.Equal(t, 1, version)
}

func TestWriteLandedDespiteFailure(t *testing.T) {
	network := loopback.NewNetwork("a")
	storage := newCounterStorage()
	storage.failWrites = 1
	storage.landOnFail = true
	a := newCounter(t, network, "a", storage)

	ok, err := a.TryAppend(testContext(t), 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, a.ConfirmedView())
	assert.Equal(t, 1, a.ConfirmedVersion())

	storage.mu.Lock()
	defer storage.mu.Unlock()
	assert.Equal(t, 1, storage.writes, "the landed write must not be repeated")
}

func TestReadFailureOnActivation(t *testing.T) {
	network := loopback.NewNetwork("a")
	storage := newCounterStorage()
	storage.view, storage.version = 42, 3
	storage.failReads = 3
	a := newCounter(t, network, "a", storage)

	assert.Equal(t, 42, a.ConfirmedView())
	assert.Equal(t, 3, a.ConfirmedVersion())
	assert.Empty(t, a.UnresolvedConnectionIssues())
	assert.Equal(t, int64(4), a.GetStats().EventCounters[EventRead])
}

func TestTransitionFailuresAreIsolated(t *testing.T) {
	network := loopback.NewNetwork("a")
	storage := newCounterStorage()
	a := newCounter(t, network, "a", storage)

	a.SubmitRange([]int{1, poison, 2, explosive, 3})
	assert.Equal(t, 6, a.TentativeView())
	require.NoError(t, a.ConfirmSubmittedEntries(testContext(t)))
	require.NoError(t, a.SynchronizeNow(testContext(t)))

	assert.Equal(t, 6, a.ConfirmedView())
	assert.Equal(t, 5, a.ConfirmedVersion())
	assert.GreaterOrEqual(t, a.GetStats().EventCounters[EventViewTransitionFailed], int64(2))
}

func TestSynchronizeNowReadsBackend(t *testing.T) {
	network := loopback.NewNetwork("a")
	storage := newCounterStorage()
	a := newCounter(t, network, "a", storage)

	storage.mu.Lock()
	storage.view, storage.version = 9, 2
	storage.mu.Unlock()

	require.NoError(t, a.SynchronizeNow(testContext(t)))
	assert.Equal(t, 9, a.ConfirmedView())
	assert.Equal(t, 2, a.ConfirmedVersion())
}

func TestNotificationsAreBufferedUntilContiguous(t *testing.T) {
	network := loopback.NewNetwork("a", "b")
	storage := newCounterStorage()
	a := newCounter(t, network, "a", storage)

	// the backend holds what the notifications announce
	storage.mu.Lock()
	storage.view, storage.version = 6, 3
	storage.mu.Unlock()

	second := &protocol.Message{Type: protocol.MsgTNotification, Origin: "b", Version: 3}
	first := &protocol.Message{Type: protocol.MsgTNotification, Origin: "b", Version: 1}
	for _, e := range []int{2, 3} {
		data, err := a.ops.Codec.Marshal(e)
		require.NoError(t, err)
		second.Updates = append(second.Updates, data)
	}
	data, err := a.ops.Codec.Marshal(1)
	require.NoError(t, err)
	first.Updates = [][]byte{data}

	resp, err := a.OnProtocolMessageReceived(testContext(t), second)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgTNotificationAck, resp.Type)
	_, err = a.OnProtocolMessageReceived(testContext(t), first)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return a.ConfirmedVersion() == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 6, a.ConfirmedView())

	// duplicates are ignored
	_, err = a.OnProtocolMessageReceived(testContext(t), first)
	require.NoError(t, err)
	require.NoError(t, a.ConfirmSubmittedEntries(testContext(t)))
	assert.Equal(t, 6, a.ConfirmedView())
	assert.Equal(t, 3, a.ConfirmedVersion())
}

func TestBufferedNotificationsMatchFullRead(t *testing.T) {
	network := loopback.NewNetwork("a", "b", "c")
	storage := newStringStorage()
	a := newLog(t, network, "a", storage)

	notification := func(version int, entries ...string) *protocol.Message {
		msg := &protocol.Message{Type: protocol.MsgTNotification, Origin: "b", Version: version}
		for _, e := range entries {
			data, err := a.ops.Codec.Marshal(e)
			require.NoError(t, err)
			msg.Updates = append(msg.Updates, data)
		}
		return msg
	}

	// the worker is held in a read of the still empty backend while both notifications arrive
	gate, entered := make(chan struct{}), make(chan struct{})
	storage.mu.Lock()
	storage.readGate, storage.readEntered = gate, entered
	storage.mu.Unlock()
	synced := make(chan error, 1)
	go func() { synced <- a.SynchronizeNow(testContext(t)) }()
	<-entered

	_, err := a.OnProtocolMessageReceived(testContext(t), notification(4, "c", "d"))
	require.NoError(t, err)
	_, err = a.OnProtocolMessageReceived(testContext(t), notification(2, "a", "b"))
	require.NoError(t, err)
	close(gate)
	require.NoError(t, <-synced)

	require.Eventually(t, func() bool {
		return a.ConfirmedVersion() == 4
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "abcd", a.ConfirmedView())
	assert.Equal(t, int64(0), a.GetStats().EventCounters[EventGapRefresh])

	// a cluster that reads the full view ends up with the same view
	storage.mu.Lock()
	storage.view, storage.version = storage.apply("", []string{"a", "b", "c", "d"}), 4
	storage.mu.Unlock()
	c := newLog(t, network, "c", storage)
	require.NoError(t, c.SynchronizeNow(testContext(t)))
	assert.Equal(t, a.ConfirmedView(), c.ConfirmedView())
	assert.Equal(t, a.ConfirmedVersion(), c.ConfirmedVersion())
}

func TestNotificationGapTriggersRead(t *testing.T) {
	network := loopback.NewNetwork("a", "b")
	storage := newCounterStorage()
	a := newCounter(t, network, "a", storage)

	storage.mu.Lock()
	storage.view, storage.version = 10, 4
	storage.mu.Unlock()

	data, err := a.ops.Codec.Marshal(4)
	require.NoError(t, err)
	_, err = a.OnProtocolMessageReceived(testContext(t), &protocol.Message{
		Type: protocol.MsgTNotification, Origin: "b", Version: 4, Updates: [][]byte{data},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return a.ConfirmedVersion() == 4
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 10, a.ConfirmedView())
	assert.GreaterOrEqual(t, a.GetStats().EventCounters[EventGapRefresh], int64(1))
}

func TestNotificationsReachOtherClusters(t *testing.T) {
	network := loopback.NewNetwork("a", "b")
	storage := newCounterStorage()
	a := newCounter(t, network, "a", storage)
	b := newCounter(t, network, "b", storage)

	a.SubmitRange([]int{1, 2})
	a.Submit(3)
	require.NoError(t, a.ConfirmSubmittedEntries(testContext(t)))

	require.Eventually(t, func() bool {
		return b.ConfirmedVersion() == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 6, b.ConfirmedView())
}

func TestConfirmedVersionIsMonotonic(t *testing.T) {
	network := loopback.NewNetwork("a", "b")
	storage := newCounterStorage()
	a := newCounter(t, network, "a", storage)
	b := newCounter(t, network, "b", storage)

	stop := make(chan struct{})
	violations := atomic.Int32{}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		last := 0
		for {
			select {
			case <-stop:
				return
			default:
			}
			v := b.ConfirmedVersion()
			if v < last {
				violations.Add(1)
			}
			last = v
		}
	}()

	for i := 0; i < 20; i++ {
		a.Submit(1)
		b.Submit(1)
		if i%5 == 0 {
			require.NoError(t, b.SynchronizeNow(testContext(t)))
		}
	}
	require.NoError(t, a.ConfirmSubmittedEntries(testContext(t)))
	require.NoError(t, b.ConfirmSubmittedEntries(testContext(t)))
	close(stop)
	wg.Wait()

	require.NoError(t, a.SynchronizeNow(testContext(t)))
	require.NoError(t, b.SynchronizeNow(testContext(t)))
	assert.Equal(t, int32(0), violations.Load())
	assert.Equal(t, 40, a.ConfirmedView())
	assert.Equal(t, 40, b.ConfirmedView())
}

func TestDeactivateDrainsQueue(t *testing.T) {
	network := loopback.NewNetwork("a")
	storage := newCounterStorage()
	services := network.Services("a", testEntity)
	a := NewAdaptor[int, int](NewViewOps[int, int](counterHost{}, nil, services), &fakeBackend[int, int]{s: storage}, Options{ProviderID: "test"})
	require.NoError(t, a.Activate(testContext(t)))

	a.SubmitRange([]int{1, 2, 3})
	require.NoError(t, a.Deactivate(testContext(t)))

	view, version := storage.state()
	assert.Equal(t, 6, view)
	assert.Equal(t, 3, version)
	assert.ErrorIs(t, a.SynchronizeNow(testContext(t)), logview.ErrInactive)
}

func TestStatsCollection(t *testing.T) {
	network := loopback.NewNetwork("a")
	a := newCounter(t, network, "a", newCounterStorage())

	a.DisableStatsCollection()
	a.Submit(1)
	require.NoError(t, a.ConfirmSubmittedEntries(testContext(t)))
	assert.Empty(t, a.GetStats().EventCounters)

	a.EnableStatsCollection()
	a.Submit(1)
	require.NoError(t, a.ConfirmSubmittedEntries(testContext(t)))
	stats := a.GetStats()
	assert.Equal(t, int64(1), stats.EventCounters[EventSubmit])
	assert.Equal(t, int64(1), stats.EventCounters[EventConfirmSubmittedEntries])
}
