package dstore

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/dProof/lib/db"
	"github.com/ValentinKolb/dProof/lib/db/engines/maple"
	"github.com/ValentinKolb/dProof/lib/registry"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStateMachine(t *testing.T) *RegistryStateMachine {
	return newStateMachineWithOptions(t, registry.Options{TTLThreshold: 10, TTLExtendTo: 100})
}

func newStateMachineWithOptions(t *testing.T, opts registry.Options) *RegistryStateMachine {
	factory := CreateStateMachineFactory(func() (db.KVDB, error) {
		return maple.NewMapleDB(nil), nil
	}, registry.New(opts))

	fsm := factory(1, 1).(*RegistryStateMachine)
	t.Cleanup(func() { _ = fsm.Close() })
	return fsm
}

func registerEntry(index, timestamp uint64, docHash, owner string) sm.Entry {
	cmd := internal.Command{
		Type:      internal.CommandTRegister,
		Timestamp: timestamp,
		DocHash:   docHash,
		Owner:     owner,
	}
	return sm.Entry{Index: index, Cmd: cmd.Serialize()}
}

func lookupProof(t *testing.T, fsm *RegistryStateMachine, docHash string) internal.QueryResult {
	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTGetProof, DocHash: docHash})
	require.NoError(t, err)
	return res.(internal.QueryResult)
}

func lookupStats(t *testing.T, fsm *RegistryStateMachine) registry.ProofStats {
	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTGetStats})
	require.NoError(t, err)
	return res.(registry.ProofStats)
}

func TestUpdateRegister(t *testing.T) {
	fsm := newStateMachine(t)

	entries, err := fsm.Update([]sm.Entry{
		registerEntry(1, 1000, "abc123", "alice"),
		registerEntry(2, 1001, "abc123", "bob"),
		registerEntry(3, 1002, "def456", "carol"),
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, uint64(store.RetCSuccess), entries[0].Result.Value)
	proof, err := registry.DecodeProof(entries[0].Result.Data)
	require.NoError(t, err)
	assert.Equal(t, registry.DocumentProof{DocHash: "abc123", Owner: "alice", Timestamp: 1000}, proof)

	assert.Equal(t, uint64(store.RetCDuplicateRegistration), entries[1].Result.Value)
	assert.Contains(t, string(entries[1].Result.Data), "already registered")

	assert.Equal(t, uint64(store.RetCSuccess), entries[2].Result.Value)

	res := lookupProof(t, fsm, "abc123")
	assert.True(t, res.Found)
	assert.Equal(t, "alice", res.Proof.Owner)

	assert.Equal(t, uint64(2), lookupStats(t, fsm).TotalDocuments)
	assert.Equal(t, uint64(3), fsm.database.WriteIdx())
	assert.Equal(t, 1000+100*registry.LedgerSeconds, fsm.database.LiveUntil())
	assert.Equal(t, uint64(1002), fsm.database.LedgerTime())
}

func TestUpdateDuplicatesDoNotAgeLease(t *testing.T) {
	fsm := newStateMachineWithOptions(t, registry.Options{TTLThreshold: 3, TTLExtendTo: 3})

	_, err := fsm.Update([]sm.Entry{registerEntry(1, 1000, "abc123", "alice")})
	require.NoError(t, err)
	original := lookupProof(t, fsm, "abc123")
	liveUntil := fsm.database.LiveUntil()

	// raft indexes run far past the lease, the ledger clock does not move
	var spam []sm.Entry
	for i := uint64(2); i <= 50; i++ {
		spam = append(spam, registerEntry(i, 1000, "abc123", "bob"))
	}
	entries, err := fsm.Update(spam)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, uint64(store.RetCDuplicateRegistration), e.Result.Value)
	}

	assert.Equal(t, original, lookupProof(t, fsm, "abc123"))
	assert.Equal(t, uint64(1), lookupStats(t, fsm).TotalDocuments)
	assert.Equal(t, liveUntil, fsm.database.LiveUntil())
	assert.Equal(t, uint64(1000), fsm.database.LedgerTime())
	assert.Equal(t, uint64(50), fsm.database.WriteIdx())

	// a takeover is only possible once the ledger clock passes the lease
	entries, err = fsm.Update([]sm.Entry{registerEntry(51, liveUntil+1, "abc123", "bob")})
	require.NoError(t, err)
	assert.Equal(t, uint64(store.RetCSuccess), entries[0].Result.Value)
	assert.Equal(t, uint64(1), lookupStats(t, fsm).TotalDocuments)
}

func TestUpdateClampsTimestamps(t *testing.T) {
	fsm := newStateMachine(t)

	// the proposer clocks disagree, the replicated ledger clock never goes backwards
	entries, err := fsm.Update([]sm.Entry{
		registerEntry(1, 2000, "a", "n1"),
		registerEntry(2, 1500, "b", "n2"),
		registerEntry(3, 0, "c", "n3"),
	})
	require.NoError(t, err)
	for _, e := range entries {
		require.Equal(t, uint64(store.RetCSuccess), e.Result.Value, string(e.Result.Data))
	}

	assert.Equal(t, uint64(2000), lookupProof(t, fsm, "a").Proof.Timestamp)
	assert.Equal(t, uint64(2000), lookupProof(t, fsm, "b").Proof.Timestamp)
	assert.Equal(t, uint64(2000), lookupProof(t, fsm, "c").Proof.Timestamp)
}

func TestUpdateInvalidEntries(t *testing.T) {
	fsm := newStateMachine(t)

	unknown := (&internal.Command{Type: internal.CommandType(42), DocHash: "x"}).Serialize()

	entries, err := fsm.Update([]sm.Entry{
		{Index: 1, Cmd: nil},
		{Index: 2, Cmd: []byte{0, 1, 2}},
		{Index: 3, Cmd: unknown},
		registerEntry(4, 1000, "ok", "alice"),
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(store.RetCInvalidOperation), entries[0].Result.Value)
	assert.Equal(t, uint64(store.RetCInternalError), entries[1].Result.Value)
	assert.Equal(t, uint64(store.RetCInvalidOperation), entries[2].Result.Value)
	assert.Equal(t, uint64(store.RetCSuccess), entries[3].Result.Value)

	// invalid entries change nothing
	assert.Equal(t, uint64(1), lookupStats(t, fsm).TotalDocuments)
}

func TestLookup(t *testing.T) {
	fsm := newStateMachine(t)

	res := lookupProof(t, fsm, "missing")
	assert.False(t, res.Found)
	assert.Zero(t, lookupStats(t, fsm).TotalDocuments)

	info, err := fsm.Lookup(internal.Query{Type: internal.QueryTGetDBInfo})
	require.NoError(t, err)
	assert.Equal(t, db.ImplMaple, info.(db.DatabaseInfo).DbType)

	_, err = fsm.Lookup("not a query")
	var storeErr *store.Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, store.RetCInternalError, storeErr.Code)

	_, err = fsm.Lookup(internal.Query{Type: internal.QueryType(42)})
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, store.RetCInvalidOperation, storeErr.Code)
}

func TestSnapshot(t *testing.T) {
	fsm := newStateMachine(t)
	_, err := fsm.Update([]sm.Entry{
		registerEntry(1, 1000, "a", "alice"),
		registerEntry(2, 1001, "b", "bob"),
	})
	require.NoError(t, err)

	ctx, err := fsm.PrepareSnapshot()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, fsm.SaveSnapshot(ctx, &buf, nil, nil))

	replica := newStateMachine(t)
	require.NoError(t, replica.RecoverFromSnapshot(&buf, nil, nil))

	assert.Equal(t, lookupProof(t, fsm, "a"), lookupProof(t, replica, "a"))
	assert.Equal(t, lookupProof(t, fsm, "b"), lookupProof(t, replica, "b"))
	assert.Equal(t, lookupStats(t, fsm), lookupStats(t, replica))

	// both replicas apply the next entry identically
	next := []sm.Entry{registerEntry(3, 5, "c", "carol")}
	r1, err := fsm.Update([]sm.Entry{next[0]})
	require.NoError(t, err)
	r2, err := replica.Update([]sm.Entry{next[0]})
	require.NoError(t, err)
	assert.Equal(t, r1[0].Result, r2[0].Result)
	assert.Equal(t, uint64(1001), lookupProof(t, replica, "c").Proof.Timestamp)
}
