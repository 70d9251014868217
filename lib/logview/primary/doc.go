// Package primary implements the replication engine shared by all log-view backends.
//
// An Adaptor owns the confirmed and tentative view of one entity in one cluster, the queue of
// submitted entries and the buffer of received notifications. All backend I/O happens on a single
// worker goroutine per adaptor. The adaptor state is guarded by a mutex that is never held while
// talking to the backend or to other clusters.
//
// A work cycle of the worker looks like this:
//
//  1. If a read is required (activation, SynchronizeNow, a failed transition), read the backend
//     until the read succeeds, delaying retries with the backoff of the issues package.
//  2. Apply buffered notifications that continue the confirmed version. If a notification
//     announced a version beyond the confirmed one, read the backend.
//  3. Drop conditional entries (TryAppend) whose position is no longer available.
//  4. Write all pending entries as one batch on top of the confirmed version.
//     On success the confirmed view advances and a notification is broadcast. On failure the
//     issue is recorded and the backend is read (after the retry delay) before the next attempt.
//
// Backends only implement the storage specific part (IBackend): reading the authoritative state,
// writing a batch and answering requests of other clusters.
package primary
