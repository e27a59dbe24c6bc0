package internal

import (
	"encoding/binary"
	"testing"

	"github.com/ValentinKolb/dProof/lib/db"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Command with all fields",
			command: Command{
				Type:        CommandTRegister,
				Timestamp:   100,
				DocHash:     "abc123",
				Owner:       "alice",
				Description: "contract",
			},
			expected: 1 + 8 + 4 + 6 + 4 + 5 + 4 + 8, // Type + Timestamp + 3x (len + data)
		},
		{
			name: "Command with empty fields",
			command: Command{
				Type: CommandTRegister,
			},
			expected: 1 + 8 + 4 + 4 + 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
			if got := len(tt.command.Serialize()); got != tt.expected {
				t.Errorf("len(Serialize()) = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Standard command",
			command: Command{
				Type:        CommandTRegister,
				Timestamp:   1_700_000_000,
				DocHash:     "abc123",
				Owner:       "alice",
				Description: "contract",
			},
		},
		{
			name: "Command with empty strings",
			command: Command{
				Type:      CommandTRegister,
				Timestamp: 1,
			},
		},
		{
			name: "Command with binary and unicode data",
			command: Command{
				Type:        CommandTRegister,
				Timestamp:   42,
				DocHash:     "\x00\x01\xff",
				Owner:       "jürgen",
				Description: "vertrag über 100€",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			if data[0] != byte(tt.command.Type) {
				t.Errorf("Type byte = %d, want %d", data[0], tt.command.Type)
			}
			if ts := binary.BigEndian.Uint64(data[1:9]); ts != tt.command.Timestamp {
				t.Errorf("Timestamp = %d, want %d", ts, tt.command.Timestamp)
			}

			var got Command
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}
			if got != tt.command {
				t.Errorf("Deserialize() = %+v, want %+v", got, tt.command)
			}
		})
	}
}

// TestDeserializeErrors tests error handling in Deserialize
func TestDeserializeErrors(t *testing.T) {
	valid := (&Command{Type: CommandTRegister, Timestamp: 1, DocHash: "abc", Owner: "o", Description: "d"}).Serialize()

	tests := []struct {
		name string
		data []byte
	}{
		{"Empty data", []byte{}},
		{"Too short for header", valid[:commandHeaderSize-1]},
		{"Truncated hash", valid[:9+4+2]},
		{"Truncated description", valid[:len(valid)-1]},
		{"Trailing bytes", append(append([]byte{}, valid...), 0xff)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			if err := cmd.Deserialize(tt.data); err == nil {
				t.Errorf("Deserialize() expected error for %q", tt.name)
			}
		})
	}
}

// TestCommandType tests the string and feature mapping of command types
func TestCommandType(t *testing.T) {
	if CommandTRegister.String() != "Register" {
		t.Errorf("String() = %s, want Register", CommandTRegister)
	}
	if CommandType(99).String() != "Unknown(99)" {
		t.Errorf("String() = %s, want Unknown(99)", CommandType(99))
	}

	feat, err := CommandTRegister.ToDBFeature()
	if err != nil {
		t.Fatalf("ToDBFeature() error = %v", err)
	}
	if feat&db.FeatureApply == 0 || feat&db.FeatureGet == 0 || feat&db.FeatureExtendTTL == 0 {
		t.Errorf("ToDBFeature() = %b, missing required features", feat)
	}

	if _, err := CommandType(99).ToDBFeature(); err == nil {
		t.Errorf("ToDBFeature() expected error for unknown type")
	}
}
