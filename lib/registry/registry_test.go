package registry_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/db/engines/maple"
	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// host is a minimal serialized host: every invocation runs in its own Tx, successful ones close the next ledger.
type host struct {
	kv  db.KVDB
	reg *registry.Registry
	idx uint64
	now uint64
}

func newHost(t *testing.T) *host {
	kv := maple.NewMapleDB(nil)
	t.Cleanup(func() { _ = kv.Close() })
	return &host{kv: kv, reg: registry.New(registry.DefaultOptions()), now: 1_700_000_000}
}

func (h *host) register(docHash, owner, description string) (registry.DocumentProof, error) {
	h.now++
	tx := registry.Begin(h.kv, h.now)
	proof, err := h.reg.Register(tx, tx.LedgerTime(), docHash, owner, description)
	if err != nil {
		tx.Discard()
		return registry.DocumentProof{}, err
	}
	h.idx++
	return proof, tx.Commit(h.idx)
}

func (h *host) verify(t *testing.T, docHash string) registry.DocumentProof {
	proof, err := h.reg.Verify(registry.View(h.kv), docHash)
	require.NoError(t, err)
	return proof
}

func (h *host) stats(t *testing.T) registry.ProofStats {
	stats, err := h.reg.GetStats(registry.View(h.kv))
	require.NoError(t, err)
	return stats
}

func TestScenarios(t *testing.T) {
	t.Run("RegisterIncrementsStats", func(t *testing.T) {
		h := newHost(t)
		_, err := h.register("abc123", "alice", "contract")
		require.NoError(t, err)
		assert.Equal(t, registry.ProofStats{TotalDocuments: 1}, h.stats(t))
	})

	t.Run("VerifyReturnsRecord", func(t *testing.T) {
		h := newHost(t)
		_, err := h.register("abc123", "alice", "contract")
		require.NoError(t, err)

		proof := h.verify(t, "abc123")
		assert.Equal(t, "abc123", proof.DocHash)
		assert.Equal(t, "alice", proof.Owner)
		assert.Equal(t, "contract", proof.Description)
		assert.NotZero(t, proof.Timestamp)
	})

	t.Run("DuplicateLeavesStateUntouched", func(t *testing.T) {
		h := newHost(t)
		_, err := h.register("abc123", "alice", "contract")
		require.NoError(t, err)
		original := h.verify(t, "abc123")

		_, err = h.register("abc123", "bob", "other")
		require.Error(t, err)
		assert.ErrorIs(t, err, registry.ErrDuplicateRegistration)

		var dupErr *registry.DuplicateRegistrationError
		require.True(t, errors.As(err, &dupErr))
		assert.Equal(t, original.Timestamp, dupErr.Timestamp)

		assert.Equal(t, registry.ProofStats{TotalDocuments: 1}, h.stats(t))
		assert.Equal(t, original, h.verify(t, "abc123"))
	})

	t.Run("FreshRegistry", func(t *testing.T) {
		h := newHost(t)
		assert.Equal(t, registry.ProofStats{TotalDocuments: 0}, h.stats(t))

		proof := h.verify(t, "nonexistent")
		assert.Equal(t, registry.NotFound(), proof)
		assert.Equal(t, registry.NotFoundMarker, proof.DocHash)
		assert.Zero(t, proof.Timestamp)
		assert.False(t, proof.Exists())
	})

	t.Run("TwoDistinctHashes", func(t *testing.T) {
		h := newHost(t)
		_, err := h.register("h1", "alice", "first")
		require.NoError(t, err)
		_, err = h.register("h2", "bob", "second")
		require.NoError(t, err)

		assert.Equal(t, uint64(2), h.stats(t).TotalDocuments)
		p1, p2 := h.verify(t, "h1"), h.verify(t, "h2")
		assert.Equal(t, "alice", p1.Owner)
		assert.Equal(t, "first", p1.Description)
		assert.Equal(t, "bob", p2.Owner)
		assert.Equal(t, "second", p2.Description)
	})
}

func TestCounterConsistency(t *testing.T) {
	h := newHost(t)
	hashes := []string{"a", "b", "a", "c", "b", "d", "", "d"}

	registered := map[string]bool{}
	for _, hash := range hashes {
		_, err := h.register(hash, "owner", "desc")
		if registered[hash] {
			assert.ErrorIs(t, err, registry.ErrDuplicateRegistration)
		} else {
			require.NoError(t, err)
			registered[hash] = true
		}

		count := uint64(0)
		for candidate := range registered {
			if h.verify(t, candidate).Exists() {
				count++
			}
		}
		assert.Equal(t, count, h.stats(t).TotalDocuments)
	}
	assert.Equal(t, uint64(5), h.stats(t).TotalDocuments)
}

func TestMonotonicTimestamps(t *testing.T) {
	h := newHost(t)

	var prev uint64
	for i := 0; i < 50; i++ {
		// clock moves backwards every other call
		if i%2 == 1 {
			h.now -= 5
		}
		proof, err := h.register(fmt.Sprintf("doc-%d", i), "owner", "")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, proof.Timestamp, prev)
		prev = proof.Timestamp
	}
}

func TestIdempotentReads(t *testing.T) {
	h := newHost(t)
	_, err := h.register("doc", "owner", "desc")
	require.NoError(t, err)

	first, firstStats := h.verify(t, "doc"), h.stats(t)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, h.verify(t, "doc"))
		assert.Equal(t, firstStats, h.stats(t))
		proof, found, err := h.reg.GetProof(registry.View(h.kv), "doc")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, first, proof)
	}
	assert.Equal(t, uint64(1), h.kv.WriteIdx())
}

func TestRegisterZeroTimestamp(t *testing.T) {
	kv := maple.NewMapleDB(nil)
	defer kv.Close()
	reg := registry.New(registry.Options{})

	tx := registry.Begin(kv, 0)
	_, err := reg.Register(tx, 0, "doc", "owner", "")
	assert.ErrorIs(t, err, registry.ErrZeroTimestamp)
	assert.True(t, tx.Batch().Empty())
}

func TestRegisterStagesOneBatch(t *testing.T) {
	kv := maple.NewMapleDB(nil)
	defer kv.Close()
	reg := registry.New(registry.Options{TTLThreshold: 10, TTLExtendTo: 20})

	tx := registry.Begin(kv, 42)
	proof, err := reg.Register(tx, tx.LedgerTime(), "doc", "owner", "desc")
	require.NoError(t, err)

	// nothing is visible before the commit
	_, found, err := reg.GetProof(registry.View(kv), "doc")
	require.NoError(t, err)
	assert.False(t, found)

	// but the transaction sees its own writes
	staged, found, err := reg.GetProof(tx, "doc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, proof, staged)

	batch := tx.Batch()
	require.Len(t, batch.Writes, 2)
	assert.Equal(t, registry.ProofKey("doc").Encode(), batch.Writes[0].Key)
	assert.Equal(t, registry.StatsKey.Encode(), batch.Writes[1].Key)
	require.NotNil(t, batch.Extend)
	assert.Equal(t, db.TTLExtension{Threshold: 10 * registry.LedgerSeconds, ExtendTo: 20 * registry.LedgerSeconds}, *batch.Extend)

	require.NoError(t, tx.Commit(5))
	assert.Equal(t, uint64(42+20*registry.LedgerSeconds), kv.LiveUntil())
	assert.Equal(t, uint64(42), kv.LedgerTime())
	assert.Equal(t, uint64(5), kv.WriteIdx())
	assert.ErrorIs(t, tx.Commit(6), registry.ErrTxClosed)
}

func TestBeginClampsLedgerTime(t *testing.T) {
	kv := maple.NewMapleDB(nil)
	defer kv.Close()

	assert.Equal(t, uint64(1), registry.Begin(kv, 0).LedgerTime())

	kv.SetLedgerTime(100)
	assert.Equal(t, uint64(100), registry.Begin(kv, 50).LedgerTime())
	assert.Equal(t, uint64(150), registry.Begin(kv, 150).LedgerTime())
}

func TestLeaseExtension(t *testing.T) {
	h := newHost(t)
	h.reg = registry.New(registry.Options{TTLThreshold: 10, TTLExtendTo: 100})
	start := h.now
	threshold, extendTo := 10*registry.LedgerSeconds, 100*registry.LedgerSeconds

	_, err := h.register("a", "owner", "")
	require.NoError(t, err)
	assert.Equal(t, start+1+extendTo, h.kv.LiveUntil())

	// plenty of lease left, nothing changes
	_, err = h.register("b", "owner", "")
	require.NoError(t, err)
	assert.Equal(t, start+1+extendTo, h.kv.LiveUntil())

	// below the threshold the whole region is extended
	h.now = start + 1 + extendTo - threshold
	_, err = h.register("c", "owner", "")
	require.NoError(t, err)
	liveUntil := h.now + extendTo
	assert.Equal(t, liveUntil, h.kv.LiveUntil())

	// the extension covers the counter and every earlier document
	assert.True(t, h.verify(t, "a").Exists())
	assert.Equal(t, uint64(3), h.stats(t).TotalDocuments)
	assert.Equal(t, h.now, h.kv.LedgerTime())
}

func TestLeaseLapse(t *testing.T) {
	h := newHost(t)
	h.reg = registry.New(registry.Options{TTLThreshold: 1, TTLExtendTo: 2})

	_, err := h.register("a", "alice", "")
	require.NoError(t, err)
	_, err = h.register("b", "alice", "")
	require.NoError(t, err)

	// the next registration comes long after the lease ran out
	h.now = h.kv.LiveUntil() + 1
	proof, err := h.register("a", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, "bob", proof.Owner)

	// the counter was reclaimed together with the documents
	assert.Equal(t, registry.ProofStats{TotalDocuments: 1}, h.stats(t))
	assert.False(t, h.verify(t, "b").Exists())
	assert.Equal(t, "bob", h.verify(t, "a").Owner)
}

func TestRejectedRegistrationsDoNotAgeLease(t *testing.T) {
	h := newHost(t)
	h.reg = registry.New(registry.Options{TTLThreshold: 3, TTLExtendTo: 3})

	original, err := h.register("abc123", "alice", "contract")
	require.NoError(t, err)
	liveUntil, ledgerTime, writeIdx := h.kv.LiveUntil(), h.kv.LedgerTime(), h.kv.WriteIdx()

	// many more rejected attempts than the lease has ledgers, all at the same clock reading
	for i := 0; i < 100; i++ {
		h.now = original.Timestamp - 1
		_, err := h.register("abc123", "bob", "takeover")
		require.ErrorIs(t, err, registry.ErrDuplicateRegistration)
	}

	assert.Equal(t, original, h.verify(t, "abc123"))
	assert.Equal(t, registry.ProofStats{TotalDocuments: 1}, h.stats(t))
	assert.Equal(t, liveUntil, h.kv.LiveUntil())
	assert.Equal(t, ledgerTime, h.kv.LedgerTime())
	assert.Equal(t, writeIdx, h.kv.WriteIdx())
}

func TestDefaultOptions(t *testing.T) {
	opts := registry.New(registry.Options{}).Options()
	assert.Equal(t, uint64(17280), opts.TTLThreshold)
	assert.Equal(t, uint64(17280), opts.TTLExtendTo)
}
