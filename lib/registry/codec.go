package registry

import (
	"encoding/binary"
	"fmt"
)

// proofHeaderSize is the size of the fixed part of an encoded proof: 8 bytes timestamp + 3 length fields
const proofHeaderSize = 8 + 4 + 4 + 4

// EncodeProof serializes a proof into a byte array with the format:
// 8 bytes for the timestamp (big endian),
// 4 bytes hash length + hash,
// 4 bytes owner length + owner,
// 4 bytes description length + description
func EncodeProof(p DocumentProof) []byte {
	result := make([]byte, proofHeaderSize+len(p.DocHash)+len(p.Owner)+len(p.Description))

	binary.BigEndian.PutUint64(result[0:8], p.Timestamp)
	offset := 8
	for _, field := range []string{p.DocHash, p.Owner, p.Description} {
		binary.BigEndian.PutUint32(result[offset:offset+4], uint32(len(field)))
		offset += 4
		offset += copy(result[offset:], field)
	}
	return result
}

// DecodeProof is the inverse of EncodeProof.
func DecodeProof(data []byte) (DocumentProof, error) {
	if len(data) < proofHeaderSize {
		return DocumentProof{}, fmt.Errorf("%w: proof too short (%d bytes)", ErrMalformedRecord, len(data))
	}

	var p DocumentProof
	p.Timestamp = binary.BigEndian.Uint64(data[0:8])

	offset := 8
	fields := []*string{&p.DocHash, &p.Owner, &p.Description}
	for i, field := range fields {
		if len(data) < offset+4 {
			return DocumentProof{}, fmt.Errorf("%w: missing length of field %d", ErrMalformedRecord, i)
		}
		n := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		offset += 4
		if len(data) < offset+n {
			return DocumentProof{}, fmt.Errorf("%w: field %d truncated", ErrMalformedRecord, i)
		}
		*field = string(data[offset : offset+n])
		offset += n
	}

	if offset != len(data) {
		return DocumentProof{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedRecord, len(data)-offset)
	}
	return p, nil
}

// EncodeStats serializes the stats as 8 bytes total documents (big endian).
func EncodeStats(s ProofStats) []byte {
	result := make([]byte, 8)
	binary.BigEndian.PutUint64(result, s.TotalDocuments)
	return result
}

// DecodeStats is the inverse of EncodeStats.
func DecodeStats(data []byte) (ProofStats, error) {
	if len(data) != 8 {
		return ProofStats{}, fmt.Errorf("%w: stats must be 8 bytes, got %d", ErrMalformedRecord, len(data))
	}
	return ProofStats{TotalDocuments: binary.BigEndian.Uint64(data)}, nil
}
