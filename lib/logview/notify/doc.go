// Package notify handles the notifications that announce confirmed entries to other clusters.
//
// Buffer is used on the receiving side. Notifications may arrive out of order or more than once;
// they are kept by start version until they continue the local confirmed version and discarded
// once they are stale.
//
// Tracker is used on the sending side. It keeps a queue per destination cluster, merges
// contiguous notifications into one message and delivers them from one goroutine per
// destination. Failed deliveries are retried with the backoff of the issues package and
// reported as NotificationFailed connection issues.
package notify
