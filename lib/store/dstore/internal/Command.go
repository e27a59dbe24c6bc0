package internal

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dProof/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTRegister CommandType = iota // Register a document hash.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTRegister:
		return "Register"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the db.Feature set it needs.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTRegister:
		return db.FeatureApply | db.FeatureGet | db.FeatureExtendTTL, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// commandHeaderSize is the size of the fixed fields: type + timestamp + 3 length fields
const commandHeaderSize = 1 + 8 + 4 + 4 + 4

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type        CommandType
	Timestamp   uint64 // clock reading of the proposer, clamped by the state machine
	DocHash     string
	Owner       string
	Description string
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return commandHeaderSize + len(command.DocHash) + len(command.Owner) + len(command.Description)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for the timestamp (big endian),
// 4 bytes hash length + hash,
// 4 bytes owner length + owner,
// 4 bytes description length + description
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], command.Timestamp)

	offset := 9
	for _, field := range []string{command.DocHash, command.Owner, command.Description} {
		binary.BigEndian.PutUint32(result[offset:offset+4], uint32(len(field)))
		offset += 4
		offset += copy(result[offset:], field)
	}

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < commandHeaderSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Timestamp = binary.BigEndian.Uint64(data[1:9])

	offset := 9
	for _, field := range []*string{&command.DocHash, &command.Owner, &command.Description} {
		if len(data) < offset+4 {
			return fmt.Errorf("data too short for field length at offset %d", offset)
		}
		n := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if len(data) < offset+n {
			return fmt.Errorf("data too short for field of length %d", n)
		}
		*field = string(data[offset : offset+n])
		offset += n
	}

	if offset != len(data) {
		return fmt.Errorf("%d unexpected trailing bytes in command", len(data)-offset)
	}
	return nil
}
