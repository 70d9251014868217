// Package loopback implements an in-process network for protocol messages. All clusters live in
// the same process, messages are delivered by calling the registered handler directly.
//
// The network supports fault injection: clusters can be partitioned (every message from or to
// them fails) and a drop function can reject individual messages. It is used by tests and by
// single process deployments that host several clusters.
package loopback
