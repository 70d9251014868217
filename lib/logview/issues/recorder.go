package issues

import (
	"context"
	"sync"
	"time"
)

// Recorder tracks the connection issue of a single operation (e.g. writing to the primary).
// It is safe for concurrent use.
type Recorder struct {
	kind     Kind
	cluster  string
	listener IListener

	mu    sync.Mutex
	issue *ConnectionIssue

	// now is replaced in tests
	now func() time.Time
}

// NewRecorder creates a recorder for issues of the given kind with the given remote cluster
// (empty for the backend). listener may be nil.
func NewRecorder(kind Kind, cluster string, listener IListener) *Recorder {
	return &Recorder{
		kind:     kind,
		cluster:  cluster,
		listener: listener,
		now:      time.Now,
	}
}

// Record records a failure. If there is no current issue a new one is created, otherwise
// the current issue is updated. The kind of the issue is updated to kind (a recorder can track
// several operations of the same loop, e.g. a write followed by a read).
func (r *Recorder) Record(kind Kind, err error) ConnectionIssue {
	r.mu.Lock()
	now := r.now()
	if r.issue == nil {
		r.issue = &ConnectionIssue{
			Cluster:            r.cluster,
			TimeOfFirstFailure: now,
		}
	}
	if kind == KindUnknown {
		kind = r.kind
	}
	r.issue.Kind = kind
	r.issue.Err = err
	r.issue.TimeStamp = now
	r.issue.NumberOfConsecutiveFailures++
	r.issue.RetryDelay = ComputeRetryDelay(r.issue.NumberOfConsecutiveFailures, r.issue.RetryDelay)
	issue := *r.issue
	r.mu.Unlock()

	if r.listener != nil {
		r.listener.OnConnectionIssue(issue)
	}
	return issue
}

// Resolve resolves the current issue. It returns false if there was no issue.
func (r *Recorder) Resolve() bool {
	r.mu.Lock()
	if r.issue == nil {
		r.mu.Unlock()
		return false
	}
	issue := *r.issue
	r.issue = nil
	r.mu.Unlock()

	if r.listener != nil {
		r.listener.OnConnectionIssueResolved(issue)
	}
	return true
}

// Issue returns the current issue, if any.
func (r *Recorder) Issue() (ConnectionIssue, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.issue == nil {
		return ConnectionIssue{}, false
	}
	return *r.issue, true
}

// DelayBeforeRetry waits for the retry delay of the current issue. It returns immediately if there
// is no issue and returns the context error if ctx is done before the delay elapsed.
func (r *Recorder) DelayBeforeRetry(ctx context.Context) error {
	r.mu.Lock()
	var delay time.Duration
	if r.issue != nil {
		delay = r.issue.RetryDelay
	}
	r.mu.Unlock()

	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
