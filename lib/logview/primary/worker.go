package primary

import (
	"context"
	"time"

	"github.com/ValentinKolb/dLV/lib/logview"
	"github.com/ValentinKolb/dLV/lib/logview/issues"
	"github.com/ValentinKolb/dLV/lib/logview/notify"
	"github.com/cockroachdb/errors"
)

// run executes work cycles until ctx is done
func (a *Adaptor[V, E]) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.wake:
		}
		a.work(ctx)
	}
}

// work executes a single work cycle (see package documentation)
func (a *Adaptor[V, E]) work(ctx context.Context) {
	a.mu.Lock()
	a.cyclesStarted++
	needRead := a.needRead
	a.needRead = false
	a.mu.Unlock()

	if needRead {
		if _, err := a.readUntilSuccess(ctx, false); err != nil {
			a.abortCycle()
			return
		}
	}

	if a.applyNotifications() {
		a.countEvent(EventGapRefresh)
		if _, err := a.readUntilSuccess(ctx, false); err != nil {
			a.abortCycle()
			return
		}
		a.applyNotifications()
	}

	// a write must never be built on a view that failed to apply a notification
	if err := a.refreshStaleView(ctx); err != nil {
		a.abortCycle()
		return
	}

	a.dropStaleConditionalEntries()

	a.mu.Lock()
	batch := append([]*submission[E](nil), a.pending...)
	a.mu.Unlock()

	if len(batch) > 0 {
		if err := a.writeBatch(ctx, batch); err != nil {
			a.abortCycle()
			return
		}
	} else if a.primaryIssue.Resolve() {
		log.Infof("%s backend consistent again", a.name)
	}

	a.mu.Lock()
	a.cyclesCompleted++
	more := len(a.pending) > 0 || a.needRead
	a.signalLocked()
	a.mu.Unlock()

	if more {
		a.notifyWorker()
	}
}

// abortCycle is called if a cycle was interrupted by the cancellation of the worker
func (a *Adaptor[V, E]) abortCycle() {
	a.mu.Lock()
	a.needRead = true
	a.mu.Unlock()
}

// --------------------------------------------------------------------------
// Reading
// --------------------------------------------------------------------------

// readUntilSuccess reads the backend until the read succeeds, retrying with the backoff of
// the primary issue. If afterFailedWrite is set the issue is not resolved by a successful read,
// so the delay keeps growing while writes keep failing.
func (a *Adaptor[V, E]) readUntilSuccess(ctx context.Context, afterFailedWrite bool) (ReadOutcome[V], error) {
	for {
		if err := a.primaryIssue.DelayBeforeRetry(ctx); err != nil {
			return ReadOutcome[V]{}, err
		}

		a.mu.Lock()
		known := a.version
		if a.viewStale {
			known = -1
		}
		a.mu.Unlock()

		a.countEvent(EventRead)
		out := a.backend.Read(ctx, known)
		if out.Status == ReadFailed {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			issue := a.primaryIssue.Record(issues.KindReadFromPrimaryFailed, out.Err)
			log.Warningf("%s read failed: %s", a.name, issue)
			continue
		}

		a.adopt(out)
		if !afterFailedWrite && a.primaryIssue.Resolve() {
			log.Infof("%s backend reachable again", a.name)
		}
		return out, nil
	}
}

// refreshStaleView rereads the full view until it is no longer stale. Notifications that
// arrived in the meantime are applied on top of the read.
func (a *Adaptor[V, E]) refreshStaleView(ctx context.Context) error {
	for {
		a.mu.Lock()
		stale := a.viewStale
		if stale {
			a.needRead = false
		}
		a.mu.Unlock()
		if !stale {
			return nil
		}

		// the issue of a previous round is resolved by the write that follows
		if _, err := a.readUntilSuccess(ctx, true); err != nil {
			return err
		}
		a.applyNotifications()

		a.mu.Lock()
		stale = a.viewStale
		a.mu.Unlock()
		if stale {
			// the backend keeps returning a view older than the confirmed one
			a.primaryIssue.Record(issues.KindReadFromPrimaryFailed, errors.Mark(errors.Newf("confirmed view of %s is stale", a.name), logview.ErrViewTransition))
		}
	}
}

// adopt takes over the state returned by a successful read
func (a *Adaptor[V, E]) adopt(out ReadOutcome[V]) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch out.Status {
	case ReadFound:
		if out.Version < a.version {
			_ = a.services.ProtocolError("backend returned version %d older than confirmed version %d", out.Version, a.version)
			return
		}
		log.Debugf("%s read version %d (confirmed %d)", a.name, out.Version, a.version)
		a.confirmed = out.View
		a.version = out.Version
		a.viewStale = false
		a.tentativeValid = false
	case ReadEmpty:
		if a.version > 0 {
			_ = a.services.ProtocolError("backend is empty but confirmed version is %d", a.version)
			return
		}
		a.viewStale = false
	case ReadNotNewer:
		log.Debugf("%s read: no newer state than version %d", a.name, a.version)
	}
	a.signalLocked()
}

// --------------------------------------------------------------------------
// Notifications
// --------------------------------------------------------------------------

// applyNotifications applies buffered notifications that continue the confirmed version.
// It returns whether a received notification is ahead of the confirmed version afterward.
func (a *Adaptor[V, E]) applyNotifications() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	applied := 0
	for {
		n, ok := a.buffer.Next(a.version)
		if !ok {
			break
		}
		view, failed := a.ops.Apply(a.ops.Copy(a.confirmed), n.Updates, "notification")
		a.confirmed = view
		a.version = n.Version
		if failed > 0 {
			a.viewStale = true
			a.needRead = true
		}
		a.backend.NotificationApplied(n)
		applied++
	}
	if applied > 0 {
		a.tentativeValid = false
		a.signalLocked()
		for i := 0; i < applied; i++ {
			a.countEvent(EventNotificationApplied)
		}
	}
	return a.buffer.LastVersionNotified() > a.version
}

// dropStaleConditionalEntries rejects conditional submissions whose position can no longer be
// reached because other entries were confirmed in the meantime
func (a *Adaptor[V, E]) dropStaleConditionalEntries() {
	a.mu.Lock()
	defer a.mu.Unlock()

	position := a.version
	kept := a.pending[:0]
	removed := 0
	for _, s := range a.pending {
		if s.conditional && s.position != position {
			s.result <- submissionResult{ok: false}
			removed++
			continue
		}
		kept = append(kept, s)
		position += len(s.entries)
	}
	clear(a.pending[len(kept):])
	a.pending = kept
	if removed > 0 {
		log.Debugf("%s rejected %d conditional submissions", a.name, removed)
		a.tentativeValid = false
		a.signalLocked()
	}
}

// --------------------------------------------------------------------------
// Writing
// --------------------------------------------------------------------------

// writeBatch writes the given prefix of the queue. It only returns an error if ctx is done.
func (a *Adaptor[V, E]) writeBatch(ctx context.Context, batch []*submission[E]) error {
	a.mu.Lock()
	snapshot := Snapshot[V]{View: a.confirmed, Version: a.version}
	a.mu.Unlock()

	var entries []E
	for _, s := range batch {
		entries = append(entries, s.entries...)
	}

	a.countEvent(EventWrite)
	start := time.Now()
	out := a.backend.Write(ctx, snapshot, entries)
	observeWriteDuration(a.backend.Name(), start)

	if out.Status == WriteOK {
		if a.primaryIssue.Resolve() {
			log.Infof("%s write succeeded again", a.name)
		}
		observeBatchSize(a.backend.Name(), len(entries))
		a.commit(batch, entries, snapshot.Version, out)
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := out.Err
	if out.Status == WriteConflict {
		a.countEvent(EventWriteConflict)
		if err == nil {
			err = logview.ConflictError("write at version %d rejected", snapshot.Version)
		}
	} else {
		a.countEvent(EventWriteFailed)
	}
	issue := a.primaryIssue.Record(issues.KindUpdatePrimaryFailed, err)
	log.Warningf("%s write of %d entries at version %d failed: %s", a.name, len(entries), snapshot.Version, issue)

	// never retry the write directly, find out what the backend holds first
	read, err := a.readUntilSuccess(ctx, true)
	if err != nil {
		return err
	}
	if read.WriteLanded {
		log.Infof("%s write at version %d landed despite the reported failure", a.name, snapshot.Version)
		a.primaryIssue.Resolve()
		a.retire(batch, entries, snapshot.Version, read.Version)
	}
	return nil
}

// commit advances the confirmed view after a successful write and broadcasts the entries
func (a *Adaptor[V, E]) commit(batch []*submission[E], entries []E, base int, out WriteOutcome[V]) {
	a.mu.Lock()
	if out.HasView {
		a.confirmed = out.View
	} else {
		view, failed := a.ops.Apply(a.ops.Copy(a.confirmed), entries, "confirmed view")
		a.confirmed = view
		if failed > 0 {
			// the cached view no longer matches the backend
			a.viewStale = true
			a.needRead = true
		}
	}
	a.version = base + len(entries)
	version := a.version
	a.removeBatchLocked(batch)
	a.mu.Unlock()

	log.Debugf("%s confirmed %d entries, version %d", a.name, len(entries), version)
	a.broadcastWrite(version, entries)
}

// retire removes a batch that was found in the backend by a read after a failed write.
// The notification is only sent if no other write happened after it.
func (a *Adaptor[V, E]) retire(batch []*submission[E], entries []E, base, readVersion int) {
	a.mu.Lock()
	a.removeBatchLocked(batch)
	a.mu.Unlock()

	if readVersion == base+len(entries) {
		a.broadcastWrite(readVersion, entries)
	}
}

// removeBatchLocked removes the confirmed batch from the front of the queue and resolves it
func (a *Adaptor[V, E]) removeBatchLocked(batch []*submission[E]) {
	stats := a.stats.Load()
	for _, s := range batch {
		if s.conditional {
			s.result <- submissionResult{ok: true}
		}
		if stats != nil {
			stats.stabilized(s.submitted)
		}
	}
	clear(a.pending[:len(batch)])
	a.pending = a.pending[len(batch):]
	a.tentativeValid = false
	a.signalLocked()
}

// broadcastWrite notifies all other clusters about entries written by this cluster
func (a *Adaptor[V, E]) broadcastWrite(version int, entries []E) {
	n := notify.Notification[E]{
		Version: version,
		Updates: entries,
		Origin:  a.services.MyClusterID(),
	}
	a.backend.Decorate(&n)
	a.broadcast(n)
}
