package notify

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ValentinKolb/dLV/lib/logview/issues"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("logview/notify")

// Tracker delivers notification messages to all other clusters.
type Tracker struct {
	services protocol.IServices
	listener issues.IListener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	destinations map[string]*destination
	closed       bool
}

// destination is the queue of one remote cluster
type destination struct {
	cluster  string
	recorder *issues.Recorder
	wake     chan struct{}
	cancel   context.CancelFunc

	mu       sync.Mutex
	queue    []*protocol.Message
	inFlight int
}

// NewTracker creates a tracker that sends via services. listener may be nil.
func NewTracker(services protocol.IServices, listener issues.IListener) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		services:     services,
		listener:     listener,
		ctx:          ctx,
		cancel:       cancel,
		destinations: make(map[string]*destination),
	}
}

// --------------------------------------------------------------------------
// Public Methods
// --------------------------------------------------------------------------

// Broadcast queues msg for every active cluster except the local one and the excluded ones.
func (t *Tracker) Broadcast(msg *protocol.Message, exclude ...string) {
	me := t.services.MyClusterID()
	for _, cluster := range t.services.ActiveClusters() {
		if cluster == me || slices.Contains(exclude, cluster) {
			continue
		}
		d := t.destination(cluster)
		if d == nil {
			return
		}
		d.enqueue(msg)
	}
}

// UpdateConfiguration stops delivery to clusters that are no longer part of cfg.
// Queued notifications for those clusters are dropped.
func (t *Tracker) UpdateConfiguration(cfg protocol.MultiClusterConfiguration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for cluster, d := range t.destinations {
		if cfg.Contains(cluster) {
			continue
		}
		log.Infof("[%s] stop sending notifications to %s (removed from configuration)", t.services.EntityID(), cluster)
		d.cancel()
		d.recorder.Resolve()
		delete(t.destinations, cluster)
	}
}

// Issues returns the unresolved delivery issues of all destinations
func (t *Tracker) Issues() []issues.ConnectionIssue {
	t.mu.Lock()
	defer t.mu.Unlock()
	var result []issues.ConnectionIssue
	for _, d := range t.destinations {
		if issue, ok := d.recorder.Issue(); ok {
			result = append(result, issue)
		}
	}
	return result
}

// Pending returns the number of queued or in-flight messages over all destinations
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := 0
	for _, d := range t.destinations {
		d.mu.Lock()
		pending += len(d.queue) + d.inFlight
		d.mu.Unlock()
	}
	return pending
}

// Close waits until all queued messages are delivered or ctx is done and then stops all
// delivery goroutines. Messages still queued at that point are dropped.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	var err error
	for t.Pending() > 0 && err == nil {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			log.Warningf("[%s] dropping %d undelivered notifications", t.services.EntityID(), t.Pending())
		case <-ticker.C:
		}
	}
	t.cancel()
	t.wg.Wait()
	return err
}

// --------------------------------------------------------------------------
// Destinations
// --------------------------------------------------------------------------

// destination returns the queue of a cluster and starts its goroutine if needed.
// It returns nil if the tracker is closed.
func (t *Tracker) destination(cluster string) *destination {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.destinations[cluster]; ok {
		return d
	}
	if t.ctx.Err() != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(t.ctx)
	d := &destination{
		cluster:  cluster,
		recorder: issues.NewRecorder(issues.KindNotificationFailed, cluster, t.listener),
		wake:     make(chan struct{}, 1),
		cancel:   cancel,
	}
	t.destinations[cluster] = d
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(ctx, d)
	}()
	return d
}

// enqueue appends msg to the queue, merging it into the last queued message if it continues it
func (d *destination) enqueue(msg *protocol.Message) {
	d.mu.Lock()
	if n := len(d.queue); n > 0 && merge(d.queue[n-1], msg) {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, cloneMessage(msg))
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// run delivers the queued messages of d until ctx is done
func (t *Tracker) run(ctx context.Context, d *destination) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		}

		for {
			d.mu.Lock()
			batch := d.queue
			d.queue = nil
			d.inFlight = len(batch)
			d.mu.Unlock()
			if len(batch) == 0 {
				break
			}

			sent := t.deliver(ctx, d, batch)

			d.mu.Lock()
			if sent < len(batch) {
				// put the remaining messages in front of everything queued in the meantime
				remaining := append(batch[sent:], d.queue...)
				d.queue = compact(remaining)
			}
			d.inFlight = 0
			d.mu.Unlock()

			if ctx.Err() != nil {
				return
			}
		}
	}
}

// deliver sends the messages of batch in order and returns how many were sent
func (t *Tracker) deliver(ctx context.Context, d *destination, batch []*protocol.Message) int {
	for i, msg := range batch {
		if err := d.recorder.DelayBeforeRetry(ctx); err != nil {
			return i
		}
		if _, err := t.services.SendMessage(ctx, msg, d.cluster); err != nil {
			if ctx.Err() != nil {
				return i
			}
			issue := d.recorder.Record(issues.KindNotificationFailed, err)
			log.Warningf("[%s] notification to %s failed: %s", t.services.EntityID(), d.cluster, issue)
			return i
		}
		if d.recorder.Resolve() {
			log.Infof("[%s] notifications to %s delivered again", t.services.EntityID(), d.cluster)
		}
	}
	return len(batch)
}

// --------------------------------------------------------------------------
// Util
// --------------------------------------------------------------------------

// merge appends next to last if next starts where last ends
func merge(last, next *protocol.Message) bool {
	if last.Type != protocol.MsgTNotification || next.Type != protocol.MsgTNotification {
		return false
	}
	if last.Origin != next.Origin || next.Version-len(next.Updates) != last.Version {
		return false
	}
	last.Updates = append(last.Updates, next.Updates...)
	last.Version = next.Version
	last.ETag = next.ETag
	return true
}

// compact merges contiguous messages of the queue
func compact(queue []*protocol.Message) []*protocol.Message {
	result := make([]*protocol.Message, 0, len(queue))
	for _, msg := range queue {
		if n := len(result); n > 0 && merge(result[n-1], msg) {
			continue
		}
		result = append(result, msg)
	}
	return result
}

func cloneMessage(msg *protocol.Message) *protocol.Message {
	c := *msg
	c.Updates = slices.Clone(msg.Updates)
	return &c
}
