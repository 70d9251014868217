package issues

import (
	"fmt"
	"time"
)

// Kind identifies the operation that caused a connection issue
type Kind uint8

const (
	// KindUnknown should never be used
	KindUnknown Kind = iota
	// KindReadFromPrimaryFailed means the authoritative state could not be read
	KindReadFromPrimaryFailed
	// KindUpdatePrimaryFailed means a batch could not be written (including version conflicts)
	KindUpdatePrimaryFailed
	// KindNotificationFailed means a notification could not be delivered to another cluster
	KindNotificationFailed
	// KindConfiguration means the current multi-cluster configuration can not be served
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindReadFromPrimaryFailed:
		return "ReadFromPrimaryFailed"
	case KindUpdatePrimaryFailed:
		return "UpdatePrimaryFailed"
	case KindNotificationFailed:
		return "NotificationFailed"
	case KindConfiguration:
		return "Configuration"
	default:
		return "Unknown"
	}
}

// ConnectionIssue describes a failing operation of an adaptor.
type ConnectionIssue struct {
	Kind Kind
	// Cluster is the remote cluster involved, empty if the backend itself failed.
	Cluster string
	// Err is the error of the latest failure.
	Err error
	// TimeStamp is the time of the latest failure.
	TimeStamp time.Time
	// TimeOfFirstFailure is the time the issue was created.
	TimeOfFirstFailure time.Time
	// NumberOfConsecutiveFailures counts the failures since the issue was created.
	NumberOfConsecutiveFailures int
	// RetryDelay is the delay before the next retry.
	RetryDelay time.Duration
}

// String implements fmt.Stringer
func (c ConnectionIssue) String() string {
	target := c.Cluster
	if target == "" {
		target = "backend"
	}
	return fmt.Sprintf("%s(%s) failures=%d since=%s retry_in=%s err=%v",
		c.Kind, target, c.NumberOfConsecutiveFailures, c.TimeOfFirstFailure.Format(time.RFC3339), c.RetryDelay, c.Err)
}

// IListener is informed about connection issues.
type IListener interface {
	// OnConnectionIssue is called every time a failure is recorded.
	OnConnectionIssue(issue ConnectionIssue)
	// OnConnectionIssueResolved is called once an issue is resolved.
	OnConnectionIssueResolved(issue ConnectionIssue)
}
