package logview

import (
	"context"

	"github.com/ValentinKolb/dLV/lib/logview/issues"
	"github.com/ValentinKolb/dLV/lib/logview/protocol"
)

// --------------------------------------------------------------------------
// Host Contract
// --------------------------------------------------------------------------

// IViewHost is implemented by the entity that owns a log view. V is the type of the view and E the
// type of the log entries.
type IViewHost[V, E any] interface {
	// NewView returns the view of an empty log.
	NewView() V
	// ApplyEntry applies a single entry to the view and returns the resulting view.
	// Implementations may modify the given view in place and return it.
	// A returned error (or a panic) is treated as a failed transition: the entry is skipped for
	// the affected view and the failure is reported, the adaptor keeps running.
	ApplyEntry(view V, entry E) (V, error)
}

// IViewCopier can optionally be implemented by an IViewHost. If it is not implemented, views are
// copied by encoding and decoding them with the codec of the adaptor.
type IViewCopier[V any] interface {
	// CopyView returns a deep copy of the view.
	CopyView(view V) V
}

// IConnectionIssueListener can optionally be implemented by an IViewHost to be informed about
// connection issues of its adaptor.
type IConnectionIssueListener = issues.IListener

// --------------------------------------------------------------------------
// Adaptor Contract
// --------------------------------------------------------------------------

// IAdaptor is the interface of a log-view adaptor as used by its entity.
type IAdaptor[V, E any] interface {
	// TentativeView returns the confirmed view with all unconfirmed entries applied.
	// Returned views are snapshots: later updates never modify them and callers must not either.
	TentativeView() V
	// ConfirmedView returns the view containing only confirmed entries (a snapshot as above).
	ConfirmedView() V
	// ConfirmedVersion returns the number of confirmed entries.
	ConfirmedVersion() int
	// UnconfirmedSuffix returns the entries that were submitted but are not yet confirmed,
	// in submission order.
	UnconfirmedSuffix() []E

	// Submit queues an entry for writing. The next TentativeView includes the entry.
	Submit(entry E)
	// SubmitRange queues multiple entries in the given order.
	SubmitRange(entries []E)
	// TryAppend queues an entry that is only written if no other entry is appended before it.
	// It returns once the entry was either written (true) or rejected (false).
	// An error is only returned if ctx is done or the adaptor is not active.
	TryAppend(ctx context.Context, entry E) (bool, error)
	// TryAppendRange is like TryAppend for multiple entries. The entries are written all or none.
	TryAppendRange(ctx context.Context, entries []E) (bool, error)

	// ConfirmSubmittedEntries returns once all entries submitted before the call are confirmed
	// (or, for conditional entries, rejected).
	ConfirmSubmittedEntries(ctx context.Context) error
	// SynchronizeNow is like ConfirmSubmittedEntries but additionally waits for a read of the
	// backend that started after the call.
	SynchronizeNow(ctx context.Context) error

	// Activate starts the write loop and waits for the initial read of the backend.
	Activate(ctx context.Context) error
	// Deactivate waits until all pending entries are written (bounded by ctx) and stops the
	// write loop and notification delivery.
	Deactivate(ctx context.Context) error

	// OnProtocolMessageReceived handles a message sent by the adaptor of the same entity
	// in another cluster and returns the response.
	OnProtocolMessageReceived(ctx context.Context, msg *protocol.Message) (*protocol.Message, error)
	// OnMultiClusterConfigurationChange is called when the set of clusters changes.
	OnMultiClusterConfigurationChange(cfg protocol.MultiClusterConfiguration)

	// EnableStatsCollection starts collecting statistics (see GetStats).
	EnableStatsCollection()
	// DisableStatsCollection stops collecting statistics and discards collected data.
	DisableStatsCollection()
	// GetStats returns the collected statistics. The result is empty if collection is disabled.
	GetStats() Stats
	// UnresolvedConnectionIssues returns all connection issues that have not been resolved yet.
	UnresolvedConnectionIssues() []issues.ConnectionIssue
}

// Stats contains the statistics collected by an adaptor.
type Stats struct {
	// EventCounters maps event names (e.g. "Submit", "WriteConflict") to their number of occurrences.
	EventCounters map[string]int64
	// StabilizationLatenciesMs holds samples of the time between submitting an entry and its
	// confirmation, in milliseconds.
	StabilizationLatenciesMs []int64
}
