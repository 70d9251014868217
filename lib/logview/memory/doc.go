// Package memory provides a log-view backend that keeps the state of every entity in process
// memory. All adaptors created with the same Storage observe the same record, regardless of the
// cluster they belong to. Reads and writes can be delayed by a configurable latency.
//
// Reads and writes only fail if the context is done or the view can not be encoded. A write is rejected as a version
// conflict (ErrVersionConflict) if the stored version differs from the confirmed version of the
// writer, which only happens if several adaptors of the same entity share a Storage.
package memory
