package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
//
// Layout: 1 byte MsgType | 2 bytes flags | present fields in flag order.
// Strings and byte slices are prefixed with a 4 byte length, numbers use 8 bytes.
// The Ok field is stored in the flags only.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasDocHash     uint16 = 1 << 0
	hasOwner       uint16 = 1 << 1
	hasDescription uint16 = 1 << 2
	hasTimestamp   uint16 = 1 << 3
	hasTotal       uint16 = 1 << 4
	isOk           uint16 = 1 << 5
	hasCode        uint16 = 1 << 6
	hasErr         uint16 = 1 << 7
	hasMeta        uint16 = 1 << 8
)

const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, b.sizeBytes(msg))

	// Write message type
	result[0] = byte(msg.MsgType)

	var flags uint16
	pos := headerSize

	putString := func(flag uint16, s string) {
		flags |= flag
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(s)))
		pos += 4
		copy(result[pos:pos+len(s)], s)
		pos += len(s)
	}
	putUint64 := func(flag uint16, v uint64) {
		flags |= flag
		binary.BigEndian.PutUint64(result[pos:pos+8], v)
		pos += 8
	}

	if msg.DocHash != "" {
		putString(hasDocHash, msg.DocHash)
	}
	if msg.Owner != "" {
		putString(hasOwner, msg.Owner)
	}
	if msg.Description != "" {
		putString(hasDescription, msg.Description)
	}
	if msg.Timestamp > 0 {
		putUint64(hasTimestamp, msg.Timestamp)
	}
	if msg.Total > 0 {
		putUint64(hasTotal, msg.Total)
	}
	if msg.Ok {
		flags |= isOk
	}
	if msg.Code != store.RetCSuccess {
		putUint64(hasCode, uint64(msg.Code))
	}
	if msg.Err != "" {
		putString(hasErr, msg.Err)
	}
	if msg.Meta != nil {
		// an empty (non nil) meta slice is kept as such
		putString(hasMeta, string(msg.Meta))
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])
	pos := headerSize

	readString := func(name string) (string, error) {
		if pos+4 > len(data) {
			return "", fmt.Errorf("data too short for %s length", name)
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if n < 0 || pos+n > len(data) {
			return "", fmt.Errorf("data too short for %s data", name)
		}
		s := string(data[pos : pos+n])
		pos += n
		return s, nil
	}
	readUint64 := func(name string) (uint64, error) {
		if pos+8 > len(data) {
			return 0, fmt.Errorf("data too short for %s", name)
		}
		v := binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
		return v, nil
	}

	var err error

	// reset all optional fields, msg may be reused
	msg.DocHash, msg.Owner, msg.Description, msg.Err = "", "", "", ""
	msg.Timestamp, msg.Total, msg.Code = 0, 0, store.RetCSuccess
	msg.Meta = nil

	if flags&hasDocHash != 0 {
		if msg.DocHash, err = readString("doc hash"); err != nil {
			return err
		}
	}
	if flags&hasOwner != 0 {
		if msg.Owner, err = readString("owner"); err != nil {
			return err
		}
	}
	if flags&hasDescription != 0 {
		if msg.Description, err = readString("description"); err != nil {
			return err
		}
	}
	if flags&hasTimestamp != 0 {
		if msg.Timestamp, err = readUint64("timestamp"); err != nil {
			return err
		}
	}
	if flags&hasTotal != 0 {
		if msg.Total, err = readUint64("total"); err != nil {
			return err
		}
	}
	msg.Ok = flags&isOk != 0
	if flags&hasCode != 0 {
		code, err := readUint64("code")
		if err != nil {
			return err
		}
		msg.Code = store.RetCode(code)
	}
	if flags&hasErr != 0 {
		if msg.Err, err = readString("error"); err != nil {
			return err
		}
	}
	if flags&hasMeta != 0 {
		meta, err := readString("meta")
		if err != nil {
			return err
		}
		msg.Meta = []byte(meta)
	}

	if pos != len(data) {
		return fmt.Errorf("unexpected %d trailing bytes", len(data)-pos)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	if msg.DocHash != "" {
		size += 4 + len(msg.DocHash)
	}
	if msg.Owner != "" {
		size += 4 + len(msg.Owner)
	}
	if msg.Description != "" {
		size += 4 + len(msg.Description)
	}
	if msg.Timestamp > 0 {
		size += 8
	}
	if msg.Total > 0 {
		size += 8
	}
	if msg.Code != store.RetCSuccess {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}
