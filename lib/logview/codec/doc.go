// Package codec encodes views and log entries for storage and for transfer between clusters.
//
// Two codecs are available: msgpack (default, github.com/vmihailenco/msgpack/v5) and JSON.
// Views and entries must be encodable by the chosen codec. The codec is also used to deep copy
// views when the host does not implement logview.IViewCopier.
package codec
