package registry

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("registry")

// DefaultTTLLedgers is the default lease policy: one day of ledgers at LedgerSeconds per ledger.
const DefaultTTLLedgers uint64 = 17280

// LedgerSeconds is the nominal close time of one ledger. Lease policies are given in ledgers
// and measured on the ledger clock, which counts seconds.
const LedgerSeconds uint64 = 5

// Options configures the lease policy applied on every successful registration.
type Options struct {
	// TTLThreshold is the minimum number of remaining ledgers before the region lease is extended.
	TTLThreshold uint64
	// TTLExtendTo is the number of ledgers the lease is extended to.
	TTLExtendTo uint64
}

// DefaultOptions returns the default lease policy (17280 / 17280 ledgers).
func DefaultOptions() Options {
	return Options{
		TTLThreshold: DefaultTTLLedgers,
		TTLExtendTo:  DefaultTTLLedgers,
	}
}

// Registry implements the registration protocol and the queries on top of a Storage.
// It holds no state of its own: every operation re-reads the storage it is given.
type Registry struct {
	opts Options
}

// New creates a registry. Zero fields of opts fall back to the defaults.
func New(opts Options) *Registry {
	def := DefaultOptions()
	if opts.TTLThreshold == 0 {
		opts.TTLThreshold = def.TTLThreshold
	}
	if opts.TTLExtendTo == 0 {
		opts.TTLExtendTo = def.TTLExtendTo
	}
	return &Registry{opts: opts}
}

func (r *Registry) Options() Options {
	return r.opts
}

// --------------------------------------------------------------------------
// Registration
// --------------------------------------------------------------------------

// Register records the first submission of docHash at ledger time now.
//
// The proof, the incremented counter and the region lease extension are staged on st.
// The caller commits them together. On error nothing is staged and the caller must drop st:
//   - *DuplicateRegistrationError (errors.Is ErrDuplicateRegistration) if docHash already has a proof
//   - ErrZeroTimestamp if now is 0
//   - a storage or decoding error
func (r *Registry) Register(st Storage, now uint64, docHash, owner, description string) (DocumentProof, error) {
	existing, found, err := r.GetProof(st, docHash)
	if err != nil {
		return DocumentProof{}, err
	}
	if found {
		log.Infof("document %q already registered at timestamp %d", docHash, existing.Timestamp)
		return DocumentProof{}, &DuplicateRegistrationError{DocHash: docHash, Timestamp: existing.Timestamp}
	}

	if now == 0 {
		return DocumentProof{}, ErrZeroTimestamp
	}

	proof := DocumentProof{
		DocHash:     docHash,
		Owner:       owner,
		Timestamp:   now,
		Description: description,
	}

	stats, err := r.GetStats(st)
	if err != nil {
		return DocumentProof{}, err
	}
	stats.TotalDocuments++

	st.Put(ProofKey(docHash), EncodeProof(proof))
	st.Put(StatsKey, EncodeStats(stats))
	st.ExtendTTL(r.opts.TTLThreshold, r.opts.TTLExtendTo)

	log.Infof("document %q registered by %q at timestamp %d", docHash, owner, now)
	return proof, nil
}

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

// GetProof returns the proof of docHash. found is false if the hash was never registered.
// A stored record with timestamp 0 is treated as absent.
func (r *Registry) GetProof(rd Reader, docHash string) (DocumentProof, bool, error) {
	raw, ok, err := rd.Get(ProofKey(docHash))
	if err != nil {
		return DocumentProof{}, false, fmt.Errorf("failed to read proof of %q: %w", docHash, err)
	}
	if !ok {
		return DocumentProof{}, false, nil
	}

	proof, err := DecodeProof(raw)
	if err != nil {
		return DocumentProof{}, false, fmt.Errorf("failed to decode proof of %q: %w", docHash, err)
	}
	if !proof.Exists() {
		return DocumentProof{}, false, nil
	}
	return proof, true, nil
}

// Verify returns the proof of docHash, or the NotFound sentinel if the hash was never registered.
func (r *Registry) Verify(rd Reader, docHash string) (DocumentProof, error) {
	proof, found, err := r.GetProof(rd, docHash)
	if err != nil {
		return DocumentProof{}, err
	}
	if !found {
		log.Debugf("verify %q: not found", docHash)
		return NotFound(), nil
	}
	log.Debugf("verify %q: registered at timestamp %d", docHash, proof.Timestamp)
	return proof, nil
}

// GetStats returns the registry counters, zero if nothing was registered yet.
func (r *Registry) GetStats(rd Reader) (ProofStats, error) {
	raw, ok, err := rd.Get(StatsKey)
	if err != nil {
		return ProofStats{}, fmt.Errorf("failed to read stats: %w", err)
	}
	if !ok {
		return ProofStats{}, nil
	}

	stats, err := DecodeStats(raw)
	if err != nil {
		return ProofStats{}, fmt.Errorf("failed to decode stats: %w", err)
	}
	return stats, nil
}
