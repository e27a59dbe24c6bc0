package lstore

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ValentinKolb/dProof/lib/clock"
	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/db/engines/maple"
	"github.com/ValentinKolb/dProof/lib/db/engines/sqlite"
	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapleFactory() (db.KVDB, error) {
	return maple.NewMapleDB(nil), nil
}

func newStore(t *testing.T, clk clock.Clock) store.IStore {
	s, err := NewLocalStore(mapleFactory, registry.New(registry.DefaultOptions()), clk)
	require.NoError(t, err)
	return s
}

func TestRegisterAndVerify(t *testing.T) {
	clk := clock.NewManual(1000)
	s := newStore(t, clk)

	proof, err := s.Register("abc123", "alice", "contract")
	require.NoError(t, err)
	assert.Equal(t, registry.DocumentProof{DocHash: "abc123", Owner: "alice", Timestamp: 1000, Description: "contract"}, proof)

	verified, err := s.Verify("abc123")
	require.NoError(t, err)
	assert.Equal(t, proof, verified)

	got, found, err := s.GetProof("abc123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, proof, got)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalDocuments)
}

func TestDuplicate(t *testing.T) {
	s := newStore(t, clock.NewManual(1000))

	original, err := s.Register("abc123", "alice", "contract")
	require.NoError(t, err)

	_, err = s.Register("abc123", "bob", "other")
	require.Error(t, err)
	assert.True(t, store.IsDuplicate(err))

	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, store.RetCDuplicateRegistration, storeErr.Code)

	verified, err := s.Verify("abc123")
	require.NoError(t, err)
	assert.Equal(t, original, verified)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalDocuments)
}

func TestNotFound(t *testing.T) {
	s := newStore(t, nil)

	proof, err := s.Verify("nonexistent")
	require.NoError(t, err)
	assert.Equal(t, registry.NotFound(), proof)

	_, found, err := s.GetProof("nonexistent")
	require.NoError(t, err)
	assert.False(t, found)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalDocuments)
}

func TestDuplicatesDoNotAgeLease(t *testing.T) {
	clk := clock.NewManual(1000)
	s, err := NewLocalStore(mapleFactory, registry.New(registry.Options{TTLThreshold: 3, TTLExtendTo: 3}), clk)
	require.NoError(t, err)
	kv := s.(*storeImpl).db

	original, err := s.Register("abc123", "alice", "contract")
	require.NoError(t, err)
	liveUntil, writeIdx := kv.LiveUntil(), kv.WriteIdx()

	// far more rejected attempts than the lease has ledgers
	for i := 0; i < 50; i++ {
		_, err := s.Register("abc123", "bob", "takeover")
		require.True(t, store.IsDuplicate(err))
	}

	verified, err := s.Verify("abc123")
	require.NoError(t, err)
	assert.Equal(t, original, verified)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalDocuments)

	assert.Equal(t, liveUntil, kv.LiveUntil())
	assert.Equal(t, writeIdx, kv.WriteIdx())
	assert.Equal(t, writeIdx, s.(*storeImpl).index.Load())

	// the next successful registration closes the next ledger
	_, err = s.Register("def456", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, writeIdx+1, kv.WriteIdx())
}

func TestLeaseLapsesAfterIdleTime(t *testing.T) {
	clk := clock.NewManual(1000)
	s, err := NewLocalStore(mapleFactory, registry.New(registry.Options{TTLThreshold: 3, TTLExtendTo: 3}), clk)
	require.NoError(t, err)

	_, err = s.Register("abc123", "alice", "contract")
	require.NoError(t, err)
	liveUntil := s.(*storeImpl).db.LiveUntil()
	assert.Equal(t, uint64(1000+3*registry.LedgerSeconds), liveUntil)

	// within the lease the duplicate is still rejected
	clk.Set(liveUntil)
	_, err = s.Register("abc123", "bob", "")
	assert.True(t, store.IsDuplicate(err))

	// once the ledger clock passes the lease, the region is reclaimed as a whole
	clk.Set(liveUntil + 1)
	proof, err := s.Register("abc123", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, "bob", proof.Owner)

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.TotalDocuments)
}

func TestClockClamping(t *testing.T) {
	clk := clock.NewManual(0)
	s := newStore(t, clk)

	// a zero clock is never stored
	first, err := s.Register("a", "owner", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Timestamp)

	clk.Set(500)
	second, err := s.Register("b", "owner", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), second.Timestamp)

	// the clock moving backwards does not move the ledger backwards
	clk.Set(100)
	third, err := s.Register("c", "owner", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), third.Timestamp)
}

func TestConcurrentRegistrations(t *testing.T) {
	s := newStore(t, clock.System())

	const numWorkers = 16
	const numHashes = 100

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := map[string]int{}

	// every worker tries to register every hash, exactly one must win per hash
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < numHashes; i++ {
				hash := fmt.Sprintf("doc-%d", i)
				_, err := s.Register(hash, fmt.Sprintf("worker-%d", worker), "")
				if err == nil {
					mu.Lock()
					successes[hash]++
					mu.Unlock()
				} else if !store.IsDuplicate(err) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	for i := 0; i < numHashes; i++ {
		assert.Equal(t, 1, successes[fmt.Sprintf("doc-%d", i)])
	}

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(numHashes), stats.TotalDocuments)
}

func TestSQLiteSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.sqlite")
	factory := func() (db.KVDB, error) { return sqlite.NewSQLiteDB(path) }
	reg := registry.New(registry.DefaultOptions())

	s, err := NewLocalStore(factory, reg, clock.NewManual(1000))
	require.NoError(t, err)
	proof, err := s.Register("abc123", "alice", "contract")
	require.NoError(t, err)
	info, err := s.GetDBInfo()
	require.NoError(t, err)
	assert.Equal(t, db.ImplSQLite, info.DbType)
	require.NoError(t, s.(*storeImpl).db.Close())

	restarted, err := NewLocalStore(factory, reg, clock.NewManual(10))
	require.NoError(t, err)
	defer restarted.(*storeImpl).db.Close()

	verified, err := restarted.Verify("abc123")
	require.NoError(t, err)
	assert.Equal(t, proof, verified)

	_, err = restarted.Register("abc123", "bob", "")
	assert.True(t, store.IsDuplicate(err))

	// the persisted ledger clock keeps timestamps monotonic across the restart
	next, err := restarted.Register("def456", "bob", "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, next.Timestamp, proof.Timestamp)
}

func TestFactoryError(t *testing.T) {
	_, err := NewLocalStore(func() (db.KVDB, error) {
		return nil, fmt.Errorf("boom")
	}, nil, nil)
	assert.EqualError(t, err, "boom")
}
