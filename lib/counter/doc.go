// Package counter implements a counter entity on top of a log-view adaptor. The entries
// of the log are the added amounts and the view is their sum.
//
// The Manager hosts all counters of one cluster. It activates the adaptor of a counter
// on first use, routes protocol messages of other clusters to it and deactivates all
// counters on Close. The adaptors are created by an AdaptorFactory, so the same manager
// works with every storage provider (dlv serve uses the shared provider).
package counter
