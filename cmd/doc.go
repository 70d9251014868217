// Package cmd implements the command-line interface of dLV. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a server with store shards and the protocol shard of a cluster
//   - counter: Commands for the replicated counters (add, get, sync, perf)
//   - store: Commands to inspect the records of a store shard (get, clear, info)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dlv --help for a list of all commands.
package cmd
