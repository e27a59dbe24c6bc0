package registry

import "fmt"

// NotFoundMarker is the DocHash of the sentinel returned by Verify for unknown hashes.
const NotFoundMarker = "NOT_FOUND"

// DocumentProof is the immutable record written on the first registration of a hash.
type DocumentProof struct {
	DocHash     string `json:"doc_hash"`
	Owner       string `json:"owner"`
	Timestamp   uint64 `json:"timestamp"`
	Description string `json:"description"`
}

// NotFound returns the sentinel proof. Its timestamp is 0, which no registered proof can carry.
func NotFound() DocumentProof {
	return DocumentProof{DocHash: NotFoundMarker}
}

// Exists reports whether p describes a registered document (i.e. is not the sentinel).
func (p DocumentProof) Exists() bool {
	return p.Timestamp != 0
}

func (p DocumentProof) String() string {
	if !p.Exists() {
		return NotFoundMarker
	}
	return fmt.Sprintf("%s (owner=%q, timestamp=%d, description=%q)", p.DocHash, p.Owner, p.Timestamp, p.Description)
}

// ProofStats holds the aggregate counters of the registry.
type ProofStats struct {
	TotalDocuments uint64 `json:"total_documents"`
}
