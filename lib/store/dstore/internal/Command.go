package internal

import (
	"encoding/binary"
	"fmt"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTWrite CommandType = iota // Write a record if the ETag matches.
	CommandTClear                    // Delete a record if the ETag matches.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTWrite:
		return "Write"
	case CommandTClear:
		return "Clear"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type  CommandType
	Key   string
	ETag  string // the ETag the client expects the record to have ("" = record must not exist)
	Value []byte
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return 1 + 4 + len(command.Key) + 4 + len(command.ETag) + len(command.Value) // Type + KeyLen + Key + ETagLen + ETag + Value
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for key length (big endian),
// N bytes for key data,
// 4 bytes for etag length (big endian),
// N bytes for etag data,
// N bytes for value data (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	offset := 1

	binary.BigEndian.PutUint32(result[offset:offset+4], uint32(len(command.Key)))
	offset += 4
	offset += copy(result[offset:], command.Key)

	binary.BigEndian.PutUint32(result[offset:offset+4], uint32(len(command.ETag)))
	offset += 4
	offset += copy(result[offset:], command.ETag)

	copy(result[offset:], command.Value)
	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	// Minimum size: 1 (Type) + 4 (KeyLen) + 4 (ETagLen) = 9 bytes
	if len(data) < 9 {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	offset := 1

	keyLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data) < offset+keyLen+4 {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	command.Key = string(data[offset : offset+keyLen])
	offset += keyLen

	etagLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4
	if len(data) < offset+etagLen {
		return fmt.Errorf("data too short for etag of length %d", etagLen)
	}
	command.ETag = string(data[offset : offset+etagLen])
	offset += etagLen

	// Extract value if present
	if len(data) > offset {
		valueLen := len(data) - offset
		// Reuse existing buffer if possible to reduce allocations
		if command.Value == nil || cap(command.Value) < valueLen {
			command.Value = make([]byte, valueLen)
		} else {
			command.Value = command.Value[:valueLen]
		}
		copy(command.Value, data[offset:])
	} else {
		command.Value = nil
	}

	return nil
}
