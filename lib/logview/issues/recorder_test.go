package issues

import (
	"context"
	"errors"
	"testing"
	"time"
)

type listener struct {
	recorded []ConnectionIssue
	resolved []ConnectionIssue
}

func (l *listener) OnConnectionIssue(issue ConnectionIssue)         { l.recorded = append(l.recorded, issue) }
func (l *listener) OnConnectionIssueResolved(issue ConnectionIssue) { l.resolved = append(l.resolved, issue) }

func TestRecorder(t *testing.T) {
	l := &listener{}
	r := NewRecorder(KindUpdatePrimaryFailed, "eu", l)

	if _, ok := r.Issue(); ok {
		t.Fatal("expected no issue")
	}
	if r.Resolve() {
		t.Fatal("resolve without issue should return false")
	}

	errFirst := errors.New("first")
	issue := r.Record(KindUnknown, errFirst)
	if issue.Kind != KindUpdatePrimaryFailed || issue.Cluster != "eu" || issue.NumberOfConsecutiveFailures != 1 {
		t.Fatalf("unexpected issue %v", issue)
	}
	if issue.RetryDelay != 0 {
		t.Fatalf("first retry should be immediate, got %s", issue.RetryDelay)
	}

	issue = r.Record(KindReadFromPrimaryFailed, errors.New("second"))
	if issue.Kind != KindReadFromPrimaryFailed || issue.NumberOfConsecutiveFailures != 2 || issue.RetryDelay <= 0 {
		t.Fatalf("unexpected issue %v", issue)
	}
	if issue.TimeOfFirstFailure.After(issue.TimeStamp) {
		t.Fatal("first failure after latest failure")
	}

	if len(l.recorded) != 2 {
		t.Fatalf("expected 2 recorded callbacks, got %d", len(l.recorded))
	}
	if !r.Resolve() {
		t.Fatal("expected resolve to return true")
	}
	if len(l.resolved) != 1 || l.resolved[0].NumberOfConsecutiveFailures != 2 {
		t.Fatalf("unexpected resolved callbacks %v", l.resolved)
	}
	if _, ok := r.Issue(); ok {
		t.Fatal("expected no issue after resolve")
	}

	// a new issue starts from scratch
	issue = r.Record(KindUnknown, errFirst)
	if issue.NumberOfConsecutiveFailures != 1 || issue.RetryDelay != 0 {
		t.Fatalf("unexpected issue after resolve %v", issue)
	}
}

func TestRecorderDelayBeforeRetry(t *testing.T) {
	r := NewRecorder(KindReadFromPrimaryFailed, "", nil)

	if err := r.DelayBeforeRetry(context.Background()); err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	r.Record(KindUnknown, errors.New("a"))
	r.Record(KindUnknown, errors.New("b"))

	start := time.Now()
	if err := r.DelayBeforeRetry(context.Background()); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Fatal("expected to wait for the retry delay")
	}

	for i := 0; i < 30; i++ {
		r.Record(KindUnknown, errors.New("c"))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := r.DelayBeforeRetry(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
