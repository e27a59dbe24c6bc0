package serializer

import (
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/rpc/common"
	"strings"
	"testing"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	sha256Hex := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTSuccess,
		},
		"VerifyRequest": {
			MsgType: common.MsgTVerify,
			DocHash: sha256Hex,
		},
		"RegisterRequest": {
			MsgType:     common.MsgTRegister,
			DocHash:     sha256Hex,
			Owner:       "GDQP2KPQGKIHYJGXNUIYOMHARUARCA7DJT5FO2FFOOKY3B2WSQHG4W37",
			Description: "quarterly report",
		},
		"ProofResponse": {
			MsgType:     common.MsgTGetProof,
			DocHash:     sha256Hex,
			Owner:       "GDQP2KPQGKIHYJGXNUIYOMHARUARCA7DJT5FO2FFOOKY3B2WSQHG4W37",
			Description: "quarterly report",
			Timestamp:   1700000000,
			Ok:          true,
		},
		"LargeDescription": {
			MsgType:     common.MsgTRegister,
			DocHash:     sha256Hex,
			Owner:       "owner",
			Description: strings.Repeat("d", 16*1024), // 16KB of text
		},
		"StatsResponse": {
			MsgType: common.MsgTGetStats,
			Total:   1 << 20,
		},
		"ErrorMessage": {
			MsgType: common.MsgTError,
			Code:    store.RetCDuplicateRegistration,
			Err:     "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
		},
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					_, err := serializer.Serialize(msg)
					if err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	messages := benchmarkMessages()
	serializedData := make(map[string]map[string][]byte)

	// Pre-serialize all messages with all serializers
	for name, factory := range testSerializers {
		serializer := factory()
		serializedData[name] = make(map[string][]byte)

		for msgName, msg := range messages {
			data, err := serializer.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", msgName, name, err)
			}
			serializedData[name][msgName] = data
		}
	}

	for name, factory := range testSerializers {
		for msgName := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				data := serializedData[name][msgName]
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var msg common.Message
					if err := serializer.Deserialize(data, &msg); err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSize measures and reports the serialized size for each message type
func BenchmarkSize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		serializer := factory()

		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}

				b.ReportMetric(float64(len(data)), "bytes")

				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
