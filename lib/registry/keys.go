package registry

import (
	"fmt"
)

// KeyKind tags the two disjoint key shapes of the registry.
type KeyKind byte

const (
	KindProof KeyKind = 0x01 // Proof(docHash) -> DocumentProof
	KindStats KeyKind = 0x02 // STATS -> ProofStats
)

func (k KeyKind) String() string {
	switch k {
	case KindProof:
		return "Proof"
	case KindStats:
		return "Stats"
	default:
		return "Unknown"
	}
}

// Key addresses a record of the registry. The zero value is invalid,
// keys are only created with ProofKey or StatsKey.
type Key struct {
	kind    KeyKind
	docHash string
}

// StatsKey addresses the single ProofStats record.
var StatsKey = Key{kind: KindStats}

// ProofKey addresses the DocumentProof of docHash.
func ProofKey(docHash string) Key {
	return Key{kind: KindProof, docHash: docHash}
}

func (k Key) Kind() KeyKind {
	return k.kind
}

// DocHash returns the hash of a proof key and "" for the stats key.
func (k Key) DocHash() string {
	return k.docHash
}

// Encode returns the storage string of the key: the kind byte followed by the hash.
// The kind byte keeps proof keys and the stats key apart for every possible hash.
func (k Key) Encode() string {
	switch k.kind {
	case KindProof:
		return string([]byte{byte(KindProof)}) + k.docHash
	case KindStats:
		return string([]byte{byte(KindStats)}) + "STATS"
	default:
		panic(fmt.Sprintf("registry: encode of invalid key kind %d", k.kind))
	}
}

func (k Key) String() string {
	if k.kind == KindProof {
		return fmt.Sprintf("Proof(%s)", k.docHash)
	}
	return k.kind.String()
}

// ParseKey is the inverse of Key.Encode.
func ParseKey(s string) (Key, error) {
	if len(s) == 0 {
		return Key{}, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	switch KeyKind(s[0]) {
	case KindProof:
		return ProofKey(s[1:]), nil
	case KindStats:
		if s[1:] != "STATS" {
			return Key{}, fmt.Errorf("%w: malformed stats key %q", ErrInvalidKey, s)
		}
		return StatsKey, nil
	default:
		return Key{}, fmt.Errorf("%w: unknown key kind 0x%02x", ErrInvalidKey, s[0])
	}
}
