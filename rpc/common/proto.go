package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dLV/lib/logview/protocol"
	"github.com/ValentinKolb/dLV/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type" msgpack:"t"`

	// General fields
	Key     string   `json:"key,omitempty" msgpack:"k,omitempty"`     // Record key (store ops) or entity id (log-view and counter ops)
	ETag    string   `json:"etag,omitempty" msgpack:"e,omitempty"`    // Used for: WriteState, ClearState, ReadState (response), notifications
	Origin  string   `json:"origin,omitempty" msgpack:"o,omitempty"`  // Cluster that sent a log-view message
	Version int64    `json:"version,omitempty" msgpack:"v,omitempty"` // Log-view version (may be negative)
	Amount  int64    `json:"amount,omitempty" msgpack:"a,omitempty"`  // Counter amount (request) or value (response)
	Value   []byte   `json:"value,omitempty" msgpack:"d,omitempty"`   // Record value or encoded view
	Entries [][]byte `json:"entries,omitempty" msgpack:"u,omitempty"` // Encoded log entries

	// Response only fields
	Ok   bool   `json:"ok,omitempty" msgpack:"ok,omitempty"`   // Used for: ReadState (found), log-view update responses
	Code uint64 `json:"code,omitempty" msgpack:"c,omitempty"`  // store.RetCode of Err
	Err  string `json:"err,omitempty" msgpack:"err,omitempty"` // Empty if no error, otherwise contains the error message
}

// withError sets the error fields of msg. Store errors are sent without their prefix,
// the client rebuilds them from Code and Err.
func withError(msg *Message, err error) *Message {
	if err == nil {
		return msg
	}
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		msg.Err = storeErr.Msg
	} else {
		msg.Err = err.Error()
	}
	msg.Code = uint64(store.CodeOf(err))
	return msg
}

// --------------------------------------------------------------------------
// Store Message Factory Functions
// --------------------------------------------------------------------------

// NewReadStateRequest creates a new ReadState request
func NewReadStateRequest(key string) *Message {
	return &Message{
		MsgType: MsgTStoreRead,
		Key:     key,
	}
}

// NewReadStateResponse creates a new ReadState response
func NewReadStateResponse(value []byte, etag string, found bool, err error) *Message {
	return withError(&Message{
		MsgType: MsgTStoreRead,
		Value:   value,
		ETag:    etag,
		Ok:      found,
	}, err)
}

// NewWriteStateRequest creates a new WriteState request
func NewWriteStateRequest(key string, value []byte, etag string) *Message {
	return &Message{
		MsgType: MsgTStoreWrite,
		Key:     key,
		Value:   value,
		ETag:    etag,
	}
}

// NewWriteStateResponse creates a new WriteState response
func NewWriteStateResponse(etag string, err error) *Message {
	return withError(&Message{
		MsgType: MsgTStoreWrite,
		ETag:    etag,
	}, err)
}

// NewClearStateRequest creates a new ClearState request
func NewClearStateRequest(key string, etag string) *Message {
	return &Message{
		MsgType: MsgTStoreClear,
		Key:     key,
		ETag:    etag,
	}
}

// NewClearStateResponse creates a new ClearState response
func NewClearStateResponse(err error) *Message {
	return withError(&Message{MsgType: MsgTStoreClear}, err)
}

// NewInfoRequest creates a new GetInfo request
func NewInfoRequest() *Message {
	return &Message{MsgType: MsgTStoreInfo}
}

// NewInfoResponse creates a new GetInfo response, the info is JSON encoded in Value
func NewInfoResponse(info store.Info, err error) *Message {
	msg := &Message{MsgType: MsgTStoreInfo}
	if err != nil {
		return withError(msg, err)
	}
	data, err := json.Marshal(info)
	if err != nil {
		return withError(msg, err)
	}
	msg.Value = data
	return msg
}

// --------------------------------------------------------------------------
// Counter Message Factory Functions
// --------------------------------------------------------------------------

// NewCounterRequest creates a request for a counter entity. amount is only used by MsgTCounterAdd.
func NewCounterRequest(msgType MessageType, entity string, amount int64) *Message {
	return &Message{
		MsgType: msgType,
		Key:     entity,
		Amount:  amount,
	}
}

// NewCounterResponse creates a response carrying the confirmed value and version of a counter
func NewCounterResponse(msgType MessageType, value int64, version int, err error) *Message {
	return withError(&Message{
		MsgType: msgType,
		Amount:  value,
		Version: int64(version),
	}, err)
}

// --------------------------------------------------------------------------
// Log-View Protocol Messages
// --------------------------------------------------------------------------

var (
	toProtocolType = map[MessageType]protocol.MessageType{
		MsgTLVNotification:    protocol.MsgTNotification,
		MsgTLVNotificationAck: protocol.MsgTNotificationAck,
		MsgTLVReadRequest:     protocol.MsgTReadRequest,
		MsgTLVReadResponse:    protocol.MsgTReadResponse,
		MsgTLVUpdateRequest:   protocol.MsgTUpdateRequest,
		MsgTLVUpdateResponse:  protocol.MsgTUpdateResponse,
	}
	fromProtocolType = func() map[protocol.MessageType]MessageType {
		m := make(map[protocol.MessageType]MessageType, len(toProtocolType))
		for k, v := range toProtocolType {
			m[v] = k
		}
		return m
	}()
)

// ResponseType returns the message type of the response to a request of type t
func (t MessageType) ResponseType() MessageType {
	switch t {
	case MsgTLVNotification:
		return MsgTLVNotificationAck
	case MsgTLVReadRequest:
		return MsgTLVReadResponse
	case MsgTLVUpdateRequest:
		return MsgTLVUpdateResponse
	default:
		return t
	}
}

// IsProtocolMessage returns whether t carries a log-view protocol message
func (t MessageType) IsProtocolMessage() bool {
	_, ok := toProtocolType[t]
	return ok
}

// NewProtocolMessage wraps a log-view protocol message addressed to the adaptor of entity
func NewProtocolMessage(entity string, msg *protocol.Message) (*Message, error) {
	t, ok := fromProtocolType[msg.Type]
	if !ok {
		return nil, fmt.Errorf("protocol message type %s can not be sent", msg.Type)
	}
	return &Message{
		MsgType: t,
		Key:     entity,
		Origin:  msg.Origin,
		Version: int64(msg.Version),
		ETag:    msg.ETag,
		Ok:      msg.Ok,
		Value:   msg.View,
		Entries: msg.Updates,
	}, nil
}

// ToProtocolMessage unwraps the log-view protocol message carried by m
func (m *Message) ToProtocolMessage() (*protocol.Message, error) {
	t, ok := toProtocolType[m.MsgType]
	if !ok {
		return nil, fmt.Errorf("message type %s is not a protocol message", m.MsgType)
	}
	return &protocol.Message{
		Type:    t,
		Origin:  m.Origin,
		Version: int(m.Version),
		ETag:    m.ETag,
		Ok:      m.Ok,
		View:    m.Value,
		Updates: m.Entries,
	}, nil
}

// NewFailedResponse creates a response of the given type that only reports err
func NewFailedResponse(msgType MessageType, err error) *Message {
	return withError(&Message{MsgType: msgType}, err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    uint64(store.RetCInternalError),
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTUnknown:           "unknown",
	MsgTSuccess:           "success",
	MsgTError:             "error",
	MsgTStoreRead:         "read",
	MsgTStoreWrite:        "write",
	MsgTStoreClear:        "clear",
	MsgTStoreInfo:         "info",
	MsgTLVNotification:    "lv_notification",
	MsgTLVNotificationAck: "lv_notification_ack",
	MsgTLVReadRequest:     "lv_read_request",
	MsgTLVReadResponse:    "lv_read_response",
	MsgTLVUpdateRequest:   "lv_update_request",
	MsgTLVUpdateResponse:  "lv_update_response",
	MsgTCounterAdd:        "counter_add",
	MsgTCounterGet:        "counter_get",
	MsgTCounterSync:       "counter_sync",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, name := range messageTypeNames {
		if name == s {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTStoreRead  // Read a record
	MsgTStoreWrite // Write a record if the ETag matches
	MsgTStoreClear // Delete a record if the ETag matches
	MsgTStoreInfo  // Get metadata about the store

	// Log-view protocol (between the adaptors of one entity in different clusters)

	MsgTLVNotification
	MsgTLVNotificationAck
	MsgTLVReadRequest
	MsgTLVReadResponse
	MsgTLVUpdateRequest
	MsgTLVUpdateResponse

	// Counter entity operations

	MsgTCounterAdd  // Add an amount and wait for the confirmation
	MsgTCounterGet  // Get the confirmed value
	MsgTCounterSync // Synchronize with the shared storage and get the value
)
