// Package shared provides a log-view backend that keeps the state of every entity in one record
// of a store.IStore shared by all clusters.
//
// There is no primary: every cluster reads and writes the record directly. A write presents the
// ETag of the record the adaptor has last seen, so concurrent writes of two clusters cannot both
// succeed. The loser gets a version conflict and reads the record again.
//
// The record holds the encoded view, its version and a write vector. A cluster flips its own bit
// in the vector with every write. If a write fails with an unknown outcome (e.g. a timeout of a
// remote store), the next read compares the bit and reports whether the write was applied.
//
// Notifications carry the ETag and write vector of the record after the write. A cluster that
// applies a notification therefore knows the current ETag and can write next without reading.
package shared
