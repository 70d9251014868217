package protocol

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// --------------------------------------------------------------------------
// Message Types
// --------------------------------------------------------------------------

// MessageType is the type of a protocol message
type MessageType uint8

const (
	// MsgTUnknown is the zero value and never sent
	MsgTUnknown MessageType = iota
	// MsgTNotification announces confirmed entries [Version-len(Updates), Version)
	MsgTNotification
	// MsgTNotificationAck acknowledges a notification
	MsgTNotificationAck
	// MsgTReadRequest asks the primary for its state if it is newer than Version
	MsgTReadRequest
	// MsgTReadResponse carries the state of the primary (View is empty if not newer)
	MsgTReadResponse
	// MsgTUpdateRequest asks the primary to append Updates at Version
	MsgTUpdateRequest
	// MsgTUpdateResponse reports whether the update was applied
	MsgTUpdateResponse
)

var messageTypeNames = map[MessageType]string{
	MsgTUnknown:         "unknown",
	MsgTNotification:    "notification",
	MsgTNotificationAck: "notification_ack",
	MsgTReadRequest:     "read_request",
	MsgTReadResponse:    "read_response",
	MsgTUpdateRequest:   "update_request",
	MsgTUpdateResponse:  "update_response",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// MarshalJSON encodes the type as its name
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes the type from its name
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for k, v := range messageTypeNames {
		if v == name {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown message type %q", name)
}

// --------------------------------------------------------------------------
// Message
// --------------------------------------------------------------------------

// Message is exchanged between the adaptors of one entity in different clusters.
// Not all fields are used by all types:
//
//   - MsgTNotification: Origin, Version, ETag, Updates
//   - MsgTReadRequest: Version (the version known by the sender)
//   - MsgTReadResponse: Version, View (only if newer than the requested version)
//   - MsgTUpdateRequest: Origin, Version (expected version), Updates
//   - MsgTUpdateResponse: Ok, Version (version after the update if Ok)
type Message struct {
	Type    MessageType `json:"type" msgpack:"t"`
	Origin  string      `json:"origin,omitempty" msgpack:"o,omitempty"`
	Version int         `json:"version" msgpack:"v"`
	ETag    string      `json:"etag,omitempty" msgpack:"e,omitempty"`
	Ok      bool        `json:"ok,omitempty" msgpack:"k,omitempty"`
	View    []byte      `json:"view,omitempty" msgpack:"s,omitempty"`
	Updates [][]byte    `json:"updates,omitempty" msgpack:"u,omitempty"`
}

// String returns a short description of the message for logging
func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(origin=%q version=%d updates=%d ok=%t)", m.Type, m.Origin, m.Version, len(m.Updates), m.Ok)
}

// --------------------------------------------------------------------------
// Multi-Cluster Configuration
// --------------------------------------------------------------------------

// MultiClusterConfiguration is the set of clusters an entity is replicated to.
type MultiClusterConfiguration struct {
	Clusters       []string  `json:"clusters"`
	AdminTimestamp time.Time `json:"admin_timestamp"`
	Comment        string    `json:"comment,omitempty"`
}

// Contains returns whether the cluster is part of the configuration
func (c MultiClusterConfiguration) Contains(cluster string) bool {
	return slices.Contains(c.Clusters, cluster)
}

// Others returns all clusters of the configuration except the given one
func (c MultiClusterConfiguration) Others(cluster string) []string {
	others := make([]string, 0, len(c.Clusters))
	for _, id := range c.Clusters {
		if id != cluster {
			others = append(others, id)
		}
	}
	return others
}
