package primary

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/ValentinKolb/dLV/lib/logview/issues"
	"github.com/ValentinKolb/dLV/lib/logview/notify"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("logview/primary")

// Options configure an adaptor
type Options struct {
	// ProviderID identifies the provider that created the adaptor (used for logging).
	ProviderID string
}

// submission is an entry (or a range of entries) waiting to be confirmed
type submission[E any] struct {
	seq       uint64
	entries   []E
	submitted time.Time

	// conditional submissions (TryAppend) must be appended at position
	conditional bool
	position    int
	result      chan submissionResult
}

type submissionResult struct {
	ok  bool
	err error
}

// Adaptor is the log-view adaptor of one entity in one cluster (docu see logview.IAdaptor).
type Adaptor[V, E any] struct {
	ops      *ViewOps[V, E]
	backend  IBackend[V, E]
	services protocol.IServices
	listener issues.IListener
	name     string

	// primaryIssue tracks failures of reads and writes against the backend
	primaryIssue *issues.Recorder
	// configIssue tracks configurations the backend can not serve
	configIssue *issues.Recorder

	stats atomic.Pointer[statsCollector]

	mu             sync.Mutex
	confirmed      V
	version        int
	tentative      V
	tentativeValid bool
	pending        []*submission[E]
	nextSeq        uint64
	buffer         *notify.Buffer[E]
	// needRead forces a read of the backend in the next work cycle
	needRead bool
	// viewStale is set if a transition of the confirmed view failed; the next read fetches the
	// full state regardless of the version
	viewStale       bool
	cyclesStarted   uint64
	cyclesCompleted uint64
	// changed is closed and replaced every time waiters should re-check their condition
	changed chan struct{}
	active  bool
	cancel  context.CancelFunc
	done    chan struct{}
	tracker *notify.Tracker

	wake chan struct{}
}

// Ensure Adaptor implements the interfaces
var (
	_ logview.IAdaptor[int, int] = (*Adaptor[int, int])(nil)
	_ protocol.IHandler          = (*Adaptor[int, int])(nil)
)

// NewAdaptor creates an inactive adaptor. Call Activate before using it.
func NewAdaptor[V, E any](ops *ViewOps[V, E], backend IBackend[V, E], opts Options) *Adaptor[V, E] {
	a := &Adaptor[V, E]{
		ops:       ops,
		backend:   backend,
		services:  ops.Services,
		name:      fmt.Sprintf("[%s/%s/%s@%s]", backend.Name(), opts.ProviderID, ops.Services.EntityID(), ops.Services.MyClusterID()),
		confirmed: ops.NewView(),
		buffer:    notify.NewBuffer[E](),
		needRead:  true,
		changed:   make(chan struct{}),
		wake:      make(chan struct{}, 1),
	}
	if listener, ok := ops.Host.(issues.IListener); ok {
		a.listener = listener
	}
	a.primaryIssue = issues.NewRecorder(issues.KindReadFromPrimaryFailed, "", a.listener)
	a.configIssue = issues.NewRecorder(issues.KindConfiguration, "", a.listener)
	ops.onTransitionFailure = func() { a.countEvent(EventViewTransitionFailed) }
	return a
}

// --------------------------------------------------------------------------
// Interface Methods (docu see logview.IAdaptor)
// --------------------------------------------------------------------------

func (a *Adaptor[V, E]) TentativeView() V {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.tentativeValid {
		a.tentative, _ = a.ops.Apply(a.ops.Copy(a.confirmed), a.pendingEntriesLocked(), "tentative view")
		a.tentativeValid = true
	}
	return a.tentative
}

func (a *Adaptor[V, E]) ConfirmedView() V {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.confirmed
}

func (a *Adaptor[V, E]) ConfirmedVersion() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

func (a *Adaptor[V, E]) UnconfirmedSuffix() []E {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pendingEntriesLocked()
}

func (a *Adaptor[V, E]) Submit(entry E) {
	a.SubmitRange([]E{entry})
}

func (a *Adaptor[V, E]) SubmitRange(entries []E) {
	if len(entries) == 0 {
		return
	}
	a.mu.Lock()
	a.enqueueLocked(entries, false)
	a.mu.Unlock()
	a.countEvent(EventSubmit)
	a.notifyWorker()
}

func (a *Adaptor[V, E]) TryAppend(ctx context.Context, entry E) (bool, error) {
	return a.TryAppendRange(ctx, []E{entry})
}

func (a *Adaptor[V, E]) TryAppendRange(ctx context.Context, entries []E) (bool, error) {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return false, logview.ErrInactive
	}
	s := a.enqueueLocked(entries, true)
	a.mu.Unlock()
	a.countEvent(EventTryAppend)
	a.notifyWorker()

	select {
	case res := <-s.result:
		return res.ok, res.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (a *Adaptor[V, E]) ConfirmSubmittedEntries(ctx context.Context) error {
	a.mu.Lock()
	target := a.nextSeq
	a.mu.Unlock()
	a.countEvent(EventConfirmSubmittedEntries)
	a.notifyWorker()

	return a.waitFor(ctx, func() bool {
		return a.confirmedUpToLocked(target)
	})
}

func (a *Adaptor[V, E]) SynchronizeNow(ctx context.Context) error {
	a.mu.Lock()
	a.needRead = true
	target := a.nextSeq
	cycle := a.cyclesStarted + 1
	a.mu.Unlock()
	a.countEvent(EventSynchronizeNow)
	a.notifyWorker()

	return a.waitFor(ctx, func() bool {
		return a.cyclesCompleted >= cycle && a.confirmedUpToLocked(target)
	})
}

func (a *Adaptor[V, E]) Activate(ctx context.Context) error {
	a.mu.Lock()
	if a.active {
		a.mu.Unlock()
		return nil
	}
	workerCtx, cancel := context.WithCancel(context.Background())
	a.active = true
	a.cancel = cancel
	a.done = make(chan struct{})
	a.tracker = notify.NewTracker(a.services, a.listener)
	a.needRead = true
	cycle := a.cyclesStarted + 1
	done := a.done
	a.mu.Unlock()

	if err := a.backend.ConfigurationChanged(a.services.MultiClusterConfiguration()); err != nil {
		issue := a.configIssue.Record(issues.KindConfiguration, err)
		log.Warningf("%s configuration can not be served: %s", a.name, issue)
	}

	go a.run(workerCtx, done)
	a.notifyWorker()
	activeAdaptors(a.backend.Name()).Inc()
	log.Debugf("%s activating", a.name)

	if err := a.waitFor(ctx, func() bool { return a.cyclesCompleted >= cycle }); err != nil {
		return err
	}
	log.Infof("%s active at version %d", a.name, a.ConfirmedVersion())
	return nil
}

func (a *Adaptor[V, E]) Deactivate(ctx context.Context) error {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return nil
	}
	target := a.nextSeq
	a.mu.Unlock()
	a.notifyWorker()

	// drain, bounded by ctx
	drainErr := a.waitFor(ctx, func() bool { return a.confirmedUpToLocked(target) })

	a.mu.Lock()
	a.active = false
	cancel, done, tracker := a.cancel, a.done, a.tracker
	a.tracker = nil
	a.signalLocked()
	a.mu.Unlock()

	cancel()
	<-done

	a.mu.Lock()
	dropped := 0
	for _, s := range a.pending {
		dropped += len(s.entries)
		if s.conditional {
			s.result <- submissionResult{ok: false, err: logview.ErrInactive}
		}
	}
	a.pending = nil
	a.tentativeValid = false
	a.needRead = true
	a.signalLocked()
	a.mu.Unlock()

	if dropped > 0 {
		log.Warningf("%s deactivated with %d unconfirmed entries", a.name, dropped)
	}
	trackerErr := tracker.Close(ctx)
	activeAdaptors(a.backend.Name()).Dec()
	log.Infof("%s deactivated", a.name)

	if drainErr != nil {
		return drainErr
	}
	return trackerErr
}

func (a *Adaptor[V, E]) OnProtocolMessageReceived(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	if msg.Type != protocol.MsgTNotification {
		return a.backend.HandleRequest(ctx, msg, a)
	}
	updates, err := a.ops.DecodeEntries(msg.Updates)
	if err != nil {
		return nil, a.services.ProtocolError("invalid notification from %s: %v", msg.Origin, err)
	}
	a.countEvent(EventNotificationReceived)
	version := a.enqueueNotification(notify.Notification[E]{
		Version: msg.Version,
		Updates: updates,
		Origin:  msg.Origin,
		ETag:    msg.ETag,
	})
	return &protocol.Message{Type: protocol.MsgTNotificationAck, Ok: true, Version: version}, nil
}

func (a *Adaptor[V, E]) OnMultiClusterConfigurationChange(cfg protocol.MultiClusterConfiguration) {
	a.mu.Lock()
	tracker := a.tracker
	a.mu.Unlock()
	if tracker != nil {
		tracker.UpdateConfiguration(cfg)
	}

	if err := a.backend.ConfigurationChanged(cfg); err != nil {
		issue := a.configIssue.Record(issues.KindConfiguration, err)
		log.Warningf("%s configuration can not be served: %s", a.name, issue)
		return
	}
	if a.configIssue.Resolve() {
		log.Infof("%s configuration issue resolved", a.name)
	}
}

func (a *Adaptor[V, E]) EnableStatsCollection() {
	a.stats.CompareAndSwap(nil, newStatsCollector())
}

func (a *Adaptor[V, E]) DisableStatsCollection() {
	a.stats.Store(nil)
}

func (a *Adaptor[V, E]) GetStats() logview.Stats {
	if s := a.stats.Load(); s != nil {
		return s.snapshot()
	}
	return logview.Stats{EventCounters: map[string]int64{}}
}

func (a *Adaptor[V, E]) UnresolvedConnectionIssues() []issues.ConnectionIssue {
	var result []issues.ConnectionIssue
	if issue, ok := a.primaryIssue.Issue(); ok {
		result = append(result, issue)
	}
	if issue, ok := a.configIssue.Issue(); ok {
		result = append(result, issue)
	}
	a.mu.Lock()
	tracker := a.tracker
	a.mu.Unlock()
	if tracker != nil {
		result = append(result, tracker.Issues()...)
	}
	return result
}

// --------------------------------------------------------------------------
// Request Context (docu see IRequestContext)
// --------------------------------------------------------------------------

func (a *Adaptor[V, E]) ConfirmedSnapshot() Snapshot[V] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot[V]{View: a.ops.Copy(a.confirmed), Version: a.version}
}

func (a *Adaptor[V, E]) AcceptRemoteWrite(n notify.Notification[E]) {
	a.enqueueNotification(n)
	a.broadcast(n, n.Origin)
}

// --------------------------------------------------------------------------
// Internal Helper
// --------------------------------------------------------------------------

// enqueueLocked queues entries and invalidates the tentative view
func (a *Adaptor[V, E]) enqueueLocked(entries []E, conditional bool) *submission[E] {
	a.nextSeq++
	s := &submission[E]{
		seq:         a.nextSeq,
		entries:     slices.Clone(entries),
		submitted:   time.Now(),
		conditional: conditional,
	}
	if conditional {
		s.position = a.version + a.pendingCountLocked()
		s.result = make(chan submissionResult, 1)
	}
	a.pending = append(a.pending, s)
	// views handed out are never modified, the next TentativeView builds a new one
	a.tentativeValid = false
	return s
}

// enqueueNotification buffers a received notification and returns the confirmed version
func (a *Adaptor[V, E]) enqueueNotification(n notify.Notification[E]) int {
	a.mu.Lock()
	accepted := a.buffer.Add(n, a.version)
	version := a.version
	a.mu.Unlock()
	if accepted {
		a.notifyWorker()
	} else {
		log.Debugf("%s dropped stale notification for version %d (confirmed %d)", a.name, n.Version, version)
	}
	return version
}

// broadcast sends a notification for confirmed entries to all other clusters except the excluded ones
func (a *Adaptor[V, E]) broadcast(n notify.Notification[E], exclude ...string) {
	a.mu.Lock()
	tracker := a.tracker
	a.mu.Unlock()
	if tracker == nil {
		return
	}
	updates, err := a.ops.EncodeEntries(n.Updates)
	if err != nil {
		a.services.CaughtException("encode notification", err)
		return
	}
	tracker.Broadcast(&protocol.Message{
		Type:    protocol.MsgTNotification,
		Origin:  n.Origin,
		Version: n.Version,
		ETag:    n.ETag,
		Updates: updates,
	}, exclude...)
}

// waitFor blocks until cond (evaluated with the lock held) is true, ctx is done or the adaptor
// is deactivated
func (a *Adaptor[V, E]) waitFor(ctx context.Context, cond func() bool) error {
	for {
		a.mu.Lock()
		if cond() {
			a.mu.Unlock()
			return nil
		}
		if !a.active {
			a.mu.Unlock()
			return logview.ErrInactive
		}
		changed := a.changed
		a.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// signalLocked wakes up all waiters
func (a *Adaptor[V, E]) signalLocked() {
	close(a.changed)
	a.changed = make(chan struct{})
}

// notifyWorker schedules a work cycle
func (a *Adaptor[V, E]) notifyWorker() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// confirmedUpToLocked returns whether all submissions up to seq left the queue
func (a *Adaptor[V, E]) confirmedUpToLocked(seq uint64) bool {
	return len(a.pending) == 0 || a.pending[0].seq > seq
}

func (a *Adaptor[V, E]) pendingEntriesLocked() []E {
	entries := make([]E, 0, a.pendingCountLocked())
	for _, s := range a.pending {
		entries = append(entries, s.entries...)
	}
	return entries
}

func (a *Adaptor[V, E]) pendingCountLocked() int {
	count := 0
	for _, s := range a.pending {
		count += len(s.entries)
	}
	return count
}

func (a *Adaptor[V, E]) countEvent(event string) {
	eventCounter(a.backend.Name(), event).Inc()
	if s := a.stats.Load(); s != nil {
		s.count(event)
	}
}
