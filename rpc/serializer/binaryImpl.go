package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dLV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: MsgType (1 byte), flags (2 bytes, big endian), followed by the fields
// whose flag is set in the order of the flag bits. Strings and byte slices are
// prefixed with their length (uint32), integers use 8 bytes.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey     uint16 = 1 << 0
	hasETag    uint16 = 1 << 1
	hasOrigin  uint16 = 1 << 2
	hasVersion uint16 = 1 << 3
	hasAmount  uint16 = 1 << 4
	hasValue   uint16 = 1 << 5
	hasEntries uint16 = 1 << 6
	hasOk      uint16 = 1 << 7
	hasCode    uint16 = 1 << 8
	hasErr     uint16 = 1 << 9
)

// headerSize is the size of MsgType + flags
const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	result := make([]byte, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	var flags uint16
	pos := headerSize

	if msg.Key != "" {
		flags |= hasKey
		pos = putBytes(result, pos, []byte(msg.Key))
	}
	if msg.ETag != "" {
		flags |= hasETag
		pos = putBytes(result, pos, []byte(msg.ETag))
	}
	if msg.Origin != "" {
		flags |= hasOrigin
		pos = putBytes(result, pos, []byte(msg.Origin))
	}
	if msg.Version != 0 {
		flags |= hasVersion
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(msg.Version))
		pos += 8
	}
	if msg.Amount != 0 {
		flags |= hasAmount
		binary.BigEndian.PutUint64(result[pos:pos+8], uint64(msg.Amount))
		pos += 8
	}
	if msg.Value != nil {
		flags |= hasValue
		pos = putBytes(result, pos, msg.Value)
	}
	if msg.Entries != nil {
		flags |= hasEntries
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Entries)))
		pos += 4
		for _, entry := range msg.Entries {
			pos = putBytes(result, pos, entry)
		}
	}
	if msg.Ok {
		flags |= hasOk
		result[pos] = 1
		pos++
	}
	if msg.Code != 0 {
		flags |= hasCode
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.Code)
		pos += 8
	}
	if msg.Err != "" {
		flags |= hasErr
		pos = putBytes(result, pos, []byte(msg.Err))
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result[:pos], nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])
	r := &reader{data: data, pos: headerSize}

	msg.Key = ""
	if flags&hasKey != 0 {
		msg.Key = string(r.bytes("key"))
	}
	msg.ETag = ""
	if flags&hasETag != 0 {
		msg.ETag = string(r.bytes("etag"))
	}
	msg.Origin = ""
	if flags&hasOrigin != 0 {
		msg.Origin = string(r.bytes("origin"))
	}
	msg.Version = 0
	if flags&hasVersion != 0 {
		msg.Version = int64(r.uint64("version"))
	}
	msg.Amount = 0
	if flags&hasAmount != 0 {
		msg.Amount = int64(r.uint64("amount"))
	}

	if flags&hasValue != 0 {
		value := r.bytes("value")
		// Allocate only if needed, an empty value stays non nil
		if msg.Value == nil || cap(msg.Value) < len(value) {
			msg.Value = make([]byte, len(value))
		} else {
			msg.Value = msg.Value[:len(value)]
		}
		copy(msg.Value, value)
	} else {
		msg.Value = nil
	}

	msg.Entries = nil
	if flags&hasEntries != 0 {
		count := int(r.uint32("entry count"))
		if r.err == nil && count > len(data)-r.pos {
			// every entry needs at least its length prefix
			r.err = fmt.Errorf("data too short for %d entries", count)
		}
		if r.err == nil {
			msg.Entries = make([][]byte, count)
			for i := 0; i < count && r.err == nil; i++ {
				msg.Entries[i] = append([]byte{}, r.bytes("entry")...)
			}
		}
	}

	msg.Ok = false
	if flags&hasOk != 0 {
		if r.err == nil && r.pos+1 > len(data) {
			r.err = fmt.Errorf("data too short for Ok flag")
		}
		if r.err == nil {
			msg.Ok = data[r.pos] != 0
			r.pos++
		}
	}

	msg.Code = 0
	if flags&hasCode != 0 {
		msg.Code = r.uint64("code")
	}
	msg.Err = ""
	if flags&hasErr != 0 {
		msg.Err = string(r.bytes("error"))
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the maximal size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.ETag != "" {
		size += 4 + len(msg.ETag)
	}
	if msg.Origin != "" {
		size += 4 + len(msg.Origin)
	}
	if msg.Version != 0 {
		size += 8
	}
	if msg.Amount != 0 {
		size += 8
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Entries != nil {
		size += 4
		for _, entry := range msg.Entries {
			size += 4 + len(entry)
		}
	}
	if msg.Ok {
		size++
	}
	if msg.Code != 0 {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}

	return size
}

// putBytes writes data with its length prefix at pos and returns the new position
func putBytes(buf []byte, pos int, data []byte) int {
	binary.BigEndian.PutUint32(buf[pos:pos+4], uint32(len(data)))
	pos += 4
	copy(buf[pos:pos+len(data)], data)
	return pos + len(data)
}

// reader reads length prefixed fields. After the first error all reads are no-ops.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) uint32(field string) uint32 {
	if r.err != nil {
		return 0
	}
	if r.pos+4 > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", field)
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v
}

func (r *reader) uint64(field string) uint64 {
	if r.err != nil {
		return 0
	}
	if r.pos+8 > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", field)
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v
}

// bytes returns a slice of the underlying data, callers must copy it if they keep it
func (r *reader) bytes(field string) []byte {
	n := int(r.uint32(field + " length"))
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s data", field)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}
