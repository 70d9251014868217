// Package custom provides a log-view backend for entities that persist their log themselves.
//
// The entity implements ICustomStorage: reading the latest state with its version and applying
// a batch of entries on top of an expected version (optimistic concurrency). Only the primary
// cluster talks to the storage. Every other cluster forwards its reads (ReadRequest) and writes
// (UpdateRequest) to the adaptor of the entity in the primary cluster, which executes them and
// broadcasts accepted writes to all clusters.
//
// If Config.PrimaryCluster is empty, every cluster accesses the storage directly. This is only
// allowed for single-cluster configurations.
package custom
