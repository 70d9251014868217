// Package counter implements the counter commands of the dLV cli.
//
// A counter is a virtual actor replicated with the log-view protocol: add waits until the
// update is confirmed by the primary cluster, get prints the confirmed value known to the
// contacted cluster and sync refreshes it from the primary first. perf measures the
// throughput of these operations.
//
// See dlv counter --help for all commands.
package counter
