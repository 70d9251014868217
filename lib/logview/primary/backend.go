package primary

import (
	"context"

	"github.com/ValentinKolb/dLV/lib/logview/notify"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
)

// --------------------------------------------------------------------------
// Backend Interface
// --------------------------------------------------------------------------

// IBackend is the storage specific part of an adaptor.
// Read, Write, Decorate and NotificationApplied are only called from the worker goroutine of the
// adaptor. HandleRequest and ConfigurationChanged can be called concurrently.
type IBackend[V, E any] interface {
	// Name returns the name of the backend (e.g. "custom"), used for logging and metrics.
	Name() string
	// Read returns the authoritative state. knownVersion is the confirmed version of the adaptor,
	// or -1 if the adaptor needs the full state regardless of the version.
	Read(ctx context.Context, knownVersion int) ReadOutcome[V]
	// Write appends entries on top of the confirmed snapshot. The view of the snapshot must not
	// be modified.
	Write(ctx context.Context, confirmed Snapshot[V], entries []E) WriteOutcome[V]
	// Decorate sets the backend specific fields (ETag) of the notification for a successful write.
	Decorate(n *notify.Notification[E])
	// NotificationApplied is called after a notification was applied to the confirmed view.
	NotificationApplied(n notify.Notification[E])
	// HandleRequest answers a request sent by the adaptor of another cluster.
	HandleRequest(ctx context.Context, msg *protocol.Message, rc IRequestContext[V, E]) (*protocol.Message, error)
	// ConfigurationChanged validates a new multi-cluster configuration.
	ConfigurationChanged(cfg protocol.MultiClusterConfiguration) error
}

// IRequestContext gives backends access to the adaptor while handling requests.
type IRequestContext[V, E any] interface {
	// ConfirmedSnapshot returns a copy of the confirmed view and its version.
	ConfirmedSnapshot() Snapshot[V]
	// AcceptRemoteWrite is called by a primary after it wrote entries on behalf of another
	// cluster. The entries are applied to the local confirmed view and broadcast to all clusters
	// except the origin.
	AcceptRemoteWrite(n notify.Notification[E])
}

// Snapshot is a view together with its version
type Snapshot[V any] struct {
	View    V
	Version int
}

// --------------------------------------------------------------------------
// Outcomes
// --------------------------------------------------------------------------

// ReadStatus is the result type of a read
type ReadStatus uint8

const (
	// ReadFailed means the backend could not be read, Err is set
	ReadFailed ReadStatus = iota
	// ReadFound means View and Version hold the authoritative state
	ReadFound
	// ReadEmpty means the backend holds no state for the entity
	ReadEmpty
	// ReadNotNewer means the backend holds no state newer than the known version
	ReadNotNewer
)

func (s ReadStatus) String() string {
	switch s {
	case ReadFound:
		return "Found"
	case ReadEmpty:
		return "Empty"
	case ReadNotNewer:
		return "NotNewer"
	default:
		return "Failed"
	}
}

// ReadOutcome is the result of IBackend.Read
type ReadOutcome[V any] struct {
	Status  ReadStatus
	View    V
	Version int
	Err     error
	// WriteLanded is set if the read revealed that the last write, which was reported as failed,
	// was actually applied by the backend.
	WriteLanded bool
}

// Found returns a ReadFound outcome
func Found[V any](view V, version int) ReadOutcome[V] {
	return ReadOutcome[V]{Status: ReadFound, View: view, Version: version}
}

// Empty returns a ReadEmpty outcome
func Empty[V any]() ReadOutcome[V] {
	return ReadOutcome[V]{Status: ReadEmpty}
}

// NotNewer returns a ReadNotNewer outcome
func NotNewer[V any]() ReadOutcome[V] {
	return ReadOutcome[V]{Status: ReadNotNewer}
}

// ReadError returns a ReadFailed outcome
func ReadError[V any](err error) ReadOutcome[V] {
	return ReadOutcome[V]{Status: ReadFailed, Err: err}
}

// WriteStatus is the result type of a write
type WriteStatus uint8

const (
	// WriteFailed means the outcome of the write is unknown (e.g. transport failure), Err is set
	WriteFailed WriteStatus = iota
	// WriteOK means the entries were appended
	WriteOK
	// WriteConflict means the backend holds a different version, nothing was written
	WriteConflict
)

func (s WriteStatus) String() string {
	switch s {
	case WriteOK:
		return "OK"
	case WriteConflict:
		return "Conflict"
	default:
		return "Failed"
	}
}

// WriteOutcome is the result of IBackend.Write
type WriteOutcome[V any] struct {
	Status WriteStatus
	Err    error
	// View is the new confirmed view if HasView is set. Otherwise the adaptor applies the
	// written entries to its confirmed view itself.
	View    V
	HasView bool
}

// Written returns a WriteOK outcome
func Written[V any]() WriteOutcome[V] {
	return WriteOutcome[V]{Status: WriteOK}
}

// WrittenView returns a WriteOK outcome carrying the new confirmed view
func WrittenView[V any](view V) WriteOutcome[V] {
	return WriteOutcome[V]{Status: WriteOK, View: view, HasView: true}
}

// Conflict returns a WriteConflict outcome
func Conflict[V any](err error) WriteOutcome[V] {
	return WriteOutcome[V]{Status: WriteConflict, Err: err}
}

// WriteError returns a WriteFailed outcome
func WriteError[V any](err error) WriteOutcome[V] {
	return WriteOutcome[V]{Status: WriteFailed, Err: err}
}
