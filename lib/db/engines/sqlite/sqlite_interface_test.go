package sqlite

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dProof/lib/db"
	dbtesting "github.com/ValentinKolb/dProof/lib/db/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFactory returns a factory creating a fresh database file per call
func newFactory(tb testing.TB) dbtesting.DBFactory {
	dir := tb.TempDir()
	var n atomic.Int64
	return func() db.KVDB {
		database, err := NewSQLiteDB(filepath.Join(dir, fmt.Sprintf("db-%d.sqlite", n.Add(1))))
		if err != nil {
			tb.Fatalf("failed to open database: %v", err)
		}
		return database
	}
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "SQLiteDB", newFactory(t))
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "SQLiteDB", newFactory(b))
}

func TestReopenKeepsRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.sqlite")

	database, err := NewSQLiteDB(path)
	require.NoError(t, err)
	require.NoError(t, database.Apply(db.Batch{
		Writes:     []db.Write{{Key: "\x01doc", Value: []byte("proof")}},
		Extend:     &db.TTLExtension{Threshold: 10, ExtendTo: 100},
		LedgerTime: 1_700_000_000,
	}, 5))
	require.NoError(t, database.Close())

	reopened, err := NewSQLiteDB(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.Get("\x01doc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("proof"), value)
	assert.Equal(t, uint64(5), reopened.WriteIdx())
	assert.Equal(t, uint64(1_700_000_100), reopened.LiveUntil())
	assert.Equal(t, uint64(1_700_000_000), reopened.LedgerTime())
}

func TestLedgerTimeCommitsWithBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "region.sqlite")

	database, err := NewSQLiteDB(path)
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, database.Apply(db.Batch{
		Writes:     []db.Write{{Key: "\x01doc", Value: []byte("proof")}},
		LedgerTime: 1_700_000_000,
	}, 1))

	// the region row is part of the batch transaction, no separate write is needed
	impl := database.(*sqliteImpl)
	var stored int64
	require.NoError(t, impl.db.QueryRow(`SELECT value FROM region WHERE name = ?`, metaLedgerTime).Scan(&stored))
	assert.Equal(t, int64(1_700_000_000), stored)

	// a failing batch leaves the stored ledger time untouched
	_, err = impl.db.Exec(`CREATE TRIGGER reject_doc BEFORE INSERT ON entries
		WHEN NEW.key = 'reject' BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)
	err = database.Apply(db.Batch{
		Writes:     []db.Write{{Key: "reject", Value: []byte("x")}},
		LedgerTime: 1_800_000_000,
	}, 2)
	require.Error(t, err)

	require.NoError(t, impl.db.QueryRow(`SELECT value FROM region WHERE name = ?`, metaLedgerTime).Scan(&stored))
	assert.Equal(t, int64(1_700_000_000), stored)
	assert.Equal(t, uint64(1_700_000_000), database.LedgerTime())
	assert.Equal(t, uint64(1), database.WriteIdx())
}

func TestInfo(t *testing.T) {
	database := newFactory(t)()
	defer database.Close()

	require.NoError(t, database.Set("key", []byte("value"), 1))

	info := database.GetInfo()
	assert.Equal(t, db.ImplSQLite, info.DbType)
	assert.Positive(t, info.SizeBytes)
	assert.False(t, database.SupportsFeature(db.FeatureGarbageCollect))
	assert.True(t, database.SupportsFeature(db.FeatureApply|db.FeatureExtendTTL))
}
