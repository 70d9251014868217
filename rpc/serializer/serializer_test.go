package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/ValentinKolb/dLV/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":    NewJSONSerializer,
	"GOB":     NewGOBSerializer,
	"Binary":  NewBinarySerializer,
	"Msgpack": NewMsgpackSerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Conditional write request
		{
			MsgType: common.MsgTStoreWrite,
			Key:     "logview/counter/a",
			Value:   []byte("test-value"),
			ETag:    "17",
		},

		// Read response
		{
			MsgType: common.MsgTStoreRead,
			Value:   []byte("test-value"),
			ETag:    "17",
			Ok:      true,
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Code:    4,
			Err:     "test error message",
		},

		// Counter response with a negative amount
		{
			MsgType: common.MsgTCounterAdd,
			Key:     "visits",
			Amount:  -42,
			Version: 3,
		},

		// Update request with all log-view fields filled
		{
			MsgType: common.MsgTLVUpdateRequest,
			Key:     "visits",
			Origin:  "cluster-b",
			Version: 7,
			ETag:    "9;a,b",
			Value:   []byte("view"),
			Entries: [][]byte{[]byte("e1"), []byte("entry-2")},
			Ok:      true,
		},

		// Read request with unknown version
		{
			MsgType: common.MsgTLVReadRequest,
			Key:     "visits",
			Origin:  "cluster-a",
			Version: -1,
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestReusedMessage tests that deserializing into a used message leaves no stale fields behind
func TestReusedMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			messages := testMessages()

			var result common.Message
			for i, msg := range []common.Message{messages[5], messages[0]} {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Fatalf("Failed to serialize message %d: %v", i, err)
				}
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Fatalf("Failed to deserialize message %d: %v", i, err)
				}
			}

			if !reflect.DeepEqual(messages[0], result) {
				t.Errorf("Reused message has stale fields: %+v", result)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTSuccess; msgType <= common.MsgTCounterSync; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestProtocolMessageRoundTrip tests that a wrapped log-view message survives every serializer
func TestProtocolMessageRoundTrip(t *testing.T) {
	original := &protocol.Message{
		Type:    protocol.MsgTUpdateResponse,
		Origin:  "cluster-a",
		Version: 12,
		Ok:      true,
		View:    []byte("view"),
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			wrapped, err := common.NewProtocolMessage("visits", original)
			if err != nil {
				t.Fatalf("Failed to wrap message: %v", err)
			}
			data, err := serializer.Serialize(*wrapped)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if result.Key != "visits" {
				t.Errorf("Entity mismatch: expected 'visits', got '%s'", result.Key)
			}
			unwrapped, err := result.ToProtocolMessage()
			if err != nil {
				t.Fatalf("Failed to unwrap message: %v", err)
			}
			if !reflect.DeepEqual(original, unwrapped) {
				t.Errorf("Protocol message doesn't match:\nOriginal: %+v\nResult: %+v", original, unwrapped)
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	// Test cases for empty or zero values
	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Message with empty value slice but not nil",
			msg: common.Message{
				MsgType: common.MsgTStoreWrite,
				Key:     "test",
				Value:   []byte{},
			},
		},
		{
			name: "Message with empty entry list but not nil",
			msg: common.Message{
				MsgType: common.MsgTLVUpdateRequest,
				Entries: [][]byte{},
			},
		},
		{
			name: "Message with empty entries",
			msg: common.Message{
				MsgType: common.MsgTLVUpdateRequest,
				Entries: [][]byte{{}, []byte("x"), {}},
			},
		},
		{
			name: "Message with extreme integers",
			msg: common.Message{
				MsgType: common.MsgTCounterGet,
				Version: -1 << 63,
				Amount:  1<<63 - 1,
				Code:    1<<64 - 1,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize
			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			// nil and empty slices are distinguished, so DeepEqual is exact here
			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %+v\nResult: %+v", tc.msg, result)
			}
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // Message type and half of the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 32, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Truncated version",
			data:        []byte{1, 0, 8, 0, 0, 0}, // Version needs 8 bytes
			expectError: true,
		},
		{
			name:        "Too many entries",
			data:        []byte{1, 0, 64, 0xff, 0xff, 0xff, 0xff}, // Claims 2^32-1 entries
			expectError: true,
		},
		{
			name:        "Missing Ok byte",
			data:        []byte{1, 0, 128},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
