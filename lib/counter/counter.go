package counter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/ValentinKolb/dLV/lib/logview/primary"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("counter")

// stopTimeout bounds the deactivation of an adaptor whose activation failed
const stopTimeout = 5 * time.Second

// --------------------------------------------------------------------------
// Host
// --------------------------------------------------------------------------

// Host is the view host of a counter. The view is the sum of all entries.
type Host struct{}

// NewView (docu see logview.IViewHost)
func (Host) NewView() int64 {
	return 0
}

// ApplyEntry (docu see logview.IViewHost)
func (Host) ApplyEntry(view int64, entry int64) (int64, error) {
	return view + entry, nil
}

// CopyView (docu see logview.IViewCopier)
func (Host) CopyView(view int64) int64 {
	return view
}

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// AdaptorFactory creates the (inactive) adaptor of a counter entity
type AdaptorFactory func(entity string) (*primary.Adaptor[int64, int64], error)

// State is the confirmed state of a counter
type State struct {
	Value   int64
	Version int
}

// Manager hosts the counter entities of one cluster. Entities are activated on first use
// and stay active until Deactivate or Close.
type Manager struct {
	factory  AdaptorFactory
	entities *xsync.MapOf[string, *entity]

	mu     sync.RWMutex
	closed bool
}

// entity is a counter that is being activated (ready not closed) or active
type entity struct {
	ready   chan struct{}
	adaptor *primary.Adaptor[int64, int64]
	err     error
}

// NewManager creates a manager that creates adaptors with factory
func NewManager(factory AdaptorFactory) *Manager {
	return &Manager{
		factory:  factory,
		entities: xsync.NewMapOf[string, *entity](),
	}
}

// Add adds amount to the counter and returns once the addition is confirmed
func (m *Manager) Add(ctx context.Context, name string, amount int64) (State, error) {
	a, err := m.activate(ctx, name)
	if err != nil {
		return State{}, err
	}
	a.Submit(amount)
	if err := a.ConfirmSubmittedEntries(ctx); err != nil {
		return State{}, err
	}
	return stateOf(a), nil
}

// Value returns the confirmed state of the counter without waiting for storage
func (m *Manager) Value(ctx context.Context, name string) (State, error) {
	a, err := m.activate(ctx, name)
	if err != nil {
		return State{}, err
	}
	return stateOf(a), nil
}

// Sync reads the latest state from storage and returns it
func (m *Manager) Sync(ctx context.Context, name string) (State, error) {
	a, err := m.activate(ctx, name)
	if err != nil {
		return State{}, err
	}
	if err := a.SynchronizeNow(ctx); err != nil {
		return State{}, err
	}
	return stateOf(a), nil
}

// HandleProtocolMessage delivers a message of another cluster to the adaptor of the counter.
// Notifications for counters that are not active are acknowledged without activating them,
// such a counter reads the current state once it is activated.
func (m *Manager) HandleProtocolMessage(ctx context.Context, name string, msg *protocol.Message) (*protocol.Message, error) {
	if msg.Type == protocol.MsgTNotification {
		e, ok := m.entities.Load(name)
		if !ok || !e.isReady() || e.err != nil {
			return &protocol.Message{Type: protocol.MsgTNotificationAck, Ok: true, Version: msg.Version}, nil
		}
		return e.adaptor.OnProtocolMessageReceived(ctx, msg)
	}

	a, err := m.activate(ctx, name)
	if err != nil {
		return nil, err
	}
	return a.OnProtocolMessageReceived(ctx, msg)
}

// Entities returns the sorted names of all active counters
func (m *Manager) Entities() []string {
	var names []string
	m.entities.Range(func(name string, e *entity) bool {
		if e.isReady() && e.err == nil {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names
}

// Stats returns the statistics of an active counter
func (m *Manager) Stats(name string) (logview.Stats, bool) {
	e, ok := m.entities.Load(name)
	if !ok || !e.isReady() || e.err != nil {
		return logview.Stats{}, false
	}
	return e.adaptor.GetStats(), true
}

// Deactivate writes the pending additions of a counter (bounded by ctx) and deactivates it
func (m *Manager) Deactivate(ctx context.Context, name string) error {
	e, ok := m.entities.LoadAndDelete(name)
	if !ok {
		return nil
	}
	select {
	case <-e.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if e.err != nil {
		return nil
	}
	return e.adaptor.Deactivate(ctx)
}

// Close deactivates all counters. The manager can not be used afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	var names []string
	m.entities.Range(func(name string, _ *entity) bool {
		names = append(names, name)
		return true
	})

	var firstErr error
	for _, name := range names {
		if err := m.Deactivate(ctx, name); err != nil {
			log.Warningf("Failed to deactivate counter %s: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// activate returns the active adaptor of a counter, creating and activating it if necessary.
// Concurrent callers wait for the same activation.
func (m *Manager) activate(ctx context.Context, name string) (*primary.Adaptor[int64, int64], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, logview.ErrInactive
	}

	created := false
	e, _ := m.entities.LoadOrCompute(name, func() *entity {
		created = true
		return &entity{ready: make(chan struct{})}
	})

	if created {
		e.adaptor, e.err = m.factory(name)
		if e.err == nil {
			e.adaptor.EnableStatsCollection()
			e.err = e.adaptor.Activate(ctx)
		}
		if e.err != nil {
			if e.adaptor != nil {
				// the activation may have started the worker before ctx was done
				stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
				_ = e.adaptor.Deactivate(stopCtx)
				cancel()
			}
			e.err = fmt.Errorf("activate counter %s: %w", name, e.err)
			m.entities.Delete(name)
		} else {
			log.Debugf("Activated counter %s", name)
		}
		close(e.ready)
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.adaptor, nil
}

func (e *entity) isReady() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

func stateOf(a *primary.Adaptor[int64, int64]) State {
	s := a.ConfirmedSnapshot()
	return State{Value: s.View, Version: s.Version}
}
