// Package protocol contains the messages exchanged between the adaptors of one entity that live
// in different clusters, and the services an adaptor needs from the runtime (IServices).
//
// Messages are not generic. Views and entries travel as opaque byte slices encoded with the codec
// of the adaptor, so the same message type can be carried by any transport (see the loopback
// package for an in-process network and rpc/client for the network transports).
package protocol
