package notify

import (
	"sort"
)

// Notification announces the confirmed entries [Version-len(Updates), Version).
type Notification[E any] struct {
	Version int
	Updates []E
	// Origin is the cluster that wrote the entries.
	Origin string
	// ETag is the concurrency token of the backend after the write (may be empty).
	ETag string
}

// StartVersion returns the version the notification continues
func (n Notification[E]) StartVersion() int {
	return n.Version - len(n.Updates)
}

// Buffer holds received notifications until they can be applied. It is not safe for concurrent
// use, the adaptor guards it with its own mutex.
type Buffer[E any] struct {
	byStart             map[int]Notification[E]
	lastVersionNotified int
}

// NewBuffer creates an empty buffer
func NewBuffer[E any]() *Buffer[E] {
	return &Buffer[E]{byStart: make(map[int]Notification[E])}
}

// Add buffers n. Notifications that do not go beyond confirmed are stale and dropped, in this
// case false is returned. If a notification with the same start version is already buffered,
// the one covering more entries is kept.
func (b *Buffer[E]) Add(n Notification[E], confirmed int) bool {
	if n.Version <= confirmed {
		return false
	}
	if n.Version > b.lastVersionNotified {
		b.lastVersionNotified = n.Version
	}
	start := n.StartVersion()
	if existing, ok := b.byStart[start]; ok && existing.Version >= n.Version {
		return true
	}
	b.byStart[start] = n
	return true
}

// Next removes and returns the notification that continues confirmed. Stale notifications are
// dropped on the way. A notification that overlaps confirmed is trimmed to the entries after
// confirmed.
func (b *Buffer[E]) Next(confirmed int) (Notification[E], bool) {
	if len(b.byStart) == 0 {
		return Notification[E]{}, false
	}
	starts := make([]int, 0, len(b.byStart))
	for start := range b.byStart {
		starts = append(starts, start)
	}
	sort.Ints(starts)

	var best Notification[E]
	found := false
	for _, start := range starts {
		if start > confirmed {
			break
		}
		n := b.byStart[start]
		delete(b.byStart, start)
		if n.Version <= confirmed {
			continue
		}
		if !found || n.Version > best.Version {
			best, found = n, true
		}
	}
	if !found {
		return Notification[E]{}, false
	}
	if skip := confirmed - best.StartVersion(); skip > 0 {
		best.Updates = best.Updates[skip:]
	}
	return best, true
}

// Len returns the number of buffered notifications
func (b *Buffer[E]) Len() int {
	return len(b.byStart)
}

// LastVersionNotified returns the highest version seen in any notification
func (b *Buffer[E]) LastVersionNotified() int {
	return b.lastVersionNotified
}

// Clear drops all buffered notifications
func (b *Buffer[E]) Clear() {
	clear(b.byStart)
}
