// Package serializer provides message serialization for the rpc layer. It defines
// a common interface and multiple implementations for turning common.Message values
// into bytes and back.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format optimized for speed and space.
//     A flag word marks the present fields so only those are encoded.
//
//   - msgpackSerializerImpl: msgpack encoding with short field names. Nearly as
//     compact as the binary format and readable by other languages.
//
//   - gobSerializerImpl: Go's gob encoding, larger payloads and the slowest option.
//
//   - jsonSerializerImpl: JSON encoding, useful for debugging and for the http transport.
//
// Performance Characteristics (see benchmark_test.go):
//
//   - Binary: Smallest payloads and the fastest (de)serialization. Recommended for production.
//
//   - Msgpack: Close to binary, a good choice when other tools must read the traffic.
//
//   - JSON: Human-readable, moderate payload sizes.
//
//   - GOB: Consistently larger payloads, no advantages for this message structure.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use.
//
// Usage:
//
//	serializer := serializer.NewBinarySerializer()
//	data, err := serializer.Serialize(message)
//	// ... send data ...
//	var receivedMsg common.Message
//	err = serializer.Deserialize(receivedData, &receivedMsg)
package serializer
