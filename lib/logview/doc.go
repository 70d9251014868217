// Package logview defines the contracts of the primary-based log-view replication protocol.
//
// Every entity (virtual actor) owns an append-only log of updates. The entity never reads the log
// directly. Instead it works with a view of the log that is computed by folding the log entries
// into a state object using a host supplied transition function. An adaptor keeps two such views:
//
//   - The confirmed view contains all entries acknowledged by the durable backend. Its version is
//     the number of confirmed entries and never decreases.
//   - The tentative view is the confirmed view plus every entry that has been submitted locally but
//     is not yet confirmed. Reads of the tentative view never block.
//
// Submitted entries are queued and written to the backend in batches by a write loop running in the
// background. Writes use optimistic concurrency: a batch is only accepted if the backend still holds
// the version the batch was built on. Failed writes are never retried blindly. The adaptor backs off,
// re-reads the authoritative state and then tries again with whatever entries are still pending.
// Confirmed batches are broadcast as notifications to every other cluster so their cached views can
// advance without a full read.
//
// Key Components:
//
//   - IViewHost: The contract implemented by the entity. It creates the initial view and applies
//     single log entries to a view.
//
//   - IAdaptor: The contract of a log-view adaptor as seen by the entity. It is implemented by
//     primary.Adaptor for all backends.
//
//   - Errors: A small sentinel taxonomy (ErrVersionConflict, ErrTransport, ErrViewTransition,
//     ErrConfiguration). Errors returned or reported by the adaptors are marked with one of them
//     and can be checked with errors.Is.
//
// Backends:
//
//	The following packages provide adaptors for different kinds of storage:
//
//	- custom: The entity persists the log itself (ICustomStorage). A designated primary cluster
//	  reads and writes the storage, all other clusters forward their requests to it.
//
//	- shared: The view is stored as a single record in a shared record store (store.IStore) that
//	  is reachable from every cluster. Conflicts are detected via ETags.
//
//	- memory: An in-process storage for tests and local development.
//
// Supporting packages are issues (connection issues and retry backoff), notify (notification
// buffering and delivery), protocol (inter-cluster messages) and codec (view and entry encoding).
package logview
