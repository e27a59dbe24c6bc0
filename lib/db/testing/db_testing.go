package testing

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dProof/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, factory())
		})

		t.Run("WriteIdx&LedgerTime", func(t *testing.T) {
			testWriteIdxAndLedgerTime(t, factory())
		})

		t.Run("ApplyBatch", func(t *testing.T) {
			testApplyBatch(t, factory())
		})

		t.Run("ApplyAtomicVisibility", func(t *testing.T) {
			testApplyAtomicVisibility(t, factory())
		})

		t.Run("RegionLease", func(t *testing.T) {
			testRegionLease(t, factory())
		})

		t.Run("RegionReclaim", func(t *testing.T) {
			testRegionReclaim(t, factory())
		})

		t.Run("LedgerTimeInBatch", func(t *testing.T) {
			testLedgerTimeInBatch(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("SaveLoadLapsed", func(t *testing.T) {
			testSaveLoadLapsed(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("ConcurrentBatches", func(t *testing.T) {
			testConcurrentBatches(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// mustGet reads key and fails the test on error
func mustGet(t testing.TB, database db.KVDB, key string) ([]byte, bool) {
	t.Helper()
	value, ok, err := database.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return value, ok
}

// mustHas checks key and fails the test on error
func mustHas(t testing.TB, database db.KVDB, key string) bool {
	t.Helper()
	ok, err := database.Has(key)
	if err != nil {
		t.Fatalf("Has(%q) failed: %v", key, err)
	}
	return ok
}

// mustApply applies a batch and fails the test on error
func mustApply(t testing.TB, database db.KVDB, batch db.Batch, idx uint64) {
	t.Helper()
	if err := database.Apply(batch, idx); err != nil {
		t.Fatalf("Apply at index %d failed: %v", idx, err)
	}
}

func u64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if err := database.Set(testKey, testValue1, 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, exists := mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	if err := database.Set(testKey, testValue2, 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, exists = mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = mustGet(t, database, "nonexistent-key"); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := mustGet(t, database, testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := mustGet(t, database, testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// modifying the slice passed to Set must not alter the stored value
	input := []byte("input-value")
	if err := database.Set("input-key", input, 3); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	input[0] = 'X'
	stored, _ := mustGet(t, database, "input-key")
	if !bytes.Equal(stored, []byte("input-value")) {
		t.Errorf("Set should store a copy of the value, got %s", stored)
	}
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureHas)

	if mustHas(t, database, "key") {
		t.Errorf("Has should return false for a key that was never written")
	}

	if err := database.Set("key", []byte("value"), 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if !mustHas(t, database, "key") {
		t.Errorf("Has should return true for a key that was written")
	}
	if mustHas(t, database, "key2") {
		t.Errorf("Has should return false for a different key")
	}
}

func testStaleWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	if err := database.Set("key", []byte("new"), 10); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	// a write with an older index must not overwrite a newer one
	if err := database.Set("key", []byte("old"), 5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, _ := mustGet(t, database, "key")
	if !bytes.Equal(result, []byte("new")) {
		t.Errorf("Stale write overwrote newer value, got %s", result)
	}
	if database.WriteIdx() != 10 {
		t.Errorf("Write index moved backwards: expected 10, got %d", database.WriteIdx())
	}

	// equal index is not stale
	if err := database.Set("key", []byte("same"), 10); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	result, _ = mustGet(t, database, "key")
	if !bytes.Equal(result, []byte("same")) {
		t.Errorf("Write with equal index should succeed, got %s", result)
	}
}

func testWriteIdxAndLedgerTime(t *testing.T, database db.KVDB) {
	defer database.Close()

	if database.WriteIdx() != 0 || database.LedgerTime() != 0 {
		t.Fatalf("Fresh database should start at index 0 and ledger time 0")
	}

	database.SetWriteIdx(100)
	database.SetWriteIdx(50)
	if database.WriteIdx() != 100 {
		t.Errorf("Expected write index 100, got %d", database.WriteIdx())
	}

	database.SetLedgerTime(1_700_000_000)
	database.SetLedgerTime(1_600_000_000)
	if database.LedgerTime() != 1_700_000_000 {
		t.Errorf("Expected ledger time 1700000000, got %d", database.LedgerTime())
	}
}

func testApplyBatch(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureGet)

	batch := db.Batch{}
	for i := 0; i < 10; i++ {
		batch.Writes = append(batch.Writes, db.Write{
			Key:   fmt.Sprintf("batch-key-%d", i),
			Value: []byte(fmt.Sprintf("batch-value-%d", i)),
		})
	}
	mustApply(t, database, batch, 7)

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("batch-key-%d", i)
		result, exists := mustGet(t, database, key)
		if !exists {
			t.Errorf("Expected key %s to exist after Apply", key)
			continue
		}
		if expected := []byte(fmt.Sprintf("batch-value-%d", i)); !bytes.Equal(result, expected) {
			t.Errorf("Expected value %s, got %s", expected, result)
		}
	}

	if database.WriteIdx() != 7 {
		t.Errorf("Expected write index 7 after Apply, got %d", database.WriteIdx())
	}
	if database.LiveUntil() != 0 {
		t.Errorf("Batch without extension should not take a lease, got %d", database.LiveUntil())
	}
}

// testApplyAtomicVisibility writes a document and a counter in each batch while readers check
// that the counter never runs ahead of the documents.
func testApplyAtomicVisibility(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureGet)

	const numBatches = 300
	const numReaders = 4

	var done atomic.Bool
	var violations atomic.Int64
	var wg sync.WaitGroup

	for r := 0; r < numReaders; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				raw, ok, err := database.Get("counter")
				if err != nil || !ok {
					continue
				}
				count := binary.BigEndian.Uint64(raw)
				if ok, _ := database.Has(fmt.Sprintf("doc-%d", count-1)); !ok {
					violations.Add(1)
				}
			}
		}()
	}

	for i := uint64(0); i < numBatches; i++ {
		mustApply(t, database, db.Batch{Writes: []db.Write{
			{Key: fmt.Sprintf("doc-%d", i), Value: []byte("proof")},
			{Key: "counter", Value: u64(i + 1)},
		}}, i+1)
	}
	done.Store(true)
	wg.Wait()

	if v := violations.Load(); v > 0 {
		t.Errorf("Readers observed the counter without its document %d times", v)
	}
}

func testRegionLease(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureExtendTTL|db.FeatureApply)

	extend := func(threshold, extendTo, ledgerTime, idx uint64) {
		t.Helper()
		mustApply(t, database, db.Batch{
			Extend:     &db.TTLExtension{Threshold: threshold, ExtendTo: extendTo},
			LedgerTime: ledgerTime,
		}, idx)
	}

	// first extension always takes a lease
	extend(10, 100, 1000, 1)
	if database.LiveUntil() != 1100 {
		t.Errorf("Expected lease 1100, got %d", database.LiveUntil())
	}

	// enough lease left, nothing happens
	extend(10, 100, 1050, 2)
	if database.LiveUntil() != 1100 {
		t.Errorf("Lease should not change above the threshold, got %d", database.LiveUntil())
	}

	// below the threshold the lease is extended
	extend(10, 100, 1095, 3)
	if database.LiveUntil() != 1195 {
		t.Errorf("Expected lease 1195, got %d", database.LiveUntil())
	}

	// ExtendTTL measures against the current ledger time
	if err := database.ExtendTTL(200, 300, 4); err != nil {
		t.Fatalf("ExtendTTL failed: %v", err)
	}
	if database.LiveUntil() != 1395 {
		t.Errorf("Expected lease 1395, got %d", database.LiveUntil())
	}

	// write indexes do not age the lease, only the ledger clock does
	mustApply(t, database, db.Batch{Writes: []db.Write{{Key: "key", Value: []byte("value")}}}, 1_000_000)
	database.SetWriteIdx(2_000_000)
	if _, ok := mustGet(t, database, "key"); !ok {
		t.Errorf("Key should be retained until the ledger clock passes the lease")
	}
	if database.LiveUntil() != 1395 {
		t.Errorf("Write indexes should not change the lease, got %d", database.LiveUntil())
	}
}

func testRegionReclaim(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureExtendTTL|db.FeatureApply|db.FeatureGet|db.FeatureHas)

	mustApply(t, database, db.Batch{
		Writes:     []db.Write{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}},
		Extend:     &db.TTLExtension{Threshold: 10, ExtendTo: 10},
		LedgerTime: 100,
	}, 1)

	database.SetLedgerTime(110)
	if _, ok := mustGet(t, database, "a"); !ok {
		t.Errorf("Key should exist at the last second of the lease")
	}

	database.SetLedgerTime(111)
	if _, ok := mustGet(t, database, "a"); ok {
		t.Errorf("Key should not be readable after the lease lapsed (get)")
	}
	if mustHas(t, database, "b") {
		t.Errorf("Key should not be readable after the lease lapsed (has)")
	}

	// the next write starts a fresh region
	mustApply(t, database, db.Batch{Writes: []db.Write{{Key: "c", Value: []byte("3")}}, LedgerTime: 112}, 2)

	if _, ok := mustGet(t, database, "a"); ok {
		t.Errorf("Lapsed key a should have been reclaimed")
	}
	if _, ok := mustGet(t, database, "c"); !ok {
		t.Errorf("Key c written after the reclaim should exist")
	}
	if database.LiveUntil() != 0 {
		t.Errorf("Reclaimed region should have no lease, got %d", database.LiveUntil())
	}
}

// testLedgerTimeInBatch checks that the ledger clock is advanced by the batch itself and never
// moves backwards.
func testLedgerTimeInBatch(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureGet)

	mustApply(t, database, db.Batch{Writes: []db.Write{{Key: "a", Value: []byte("1")}}, LedgerTime: 500}, 1)
	if database.LedgerTime() != 500 {
		t.Errorf("Expected ledger time 500 after Apply, got %d", database.LedgerTime())
	}

	// an older clock reading keeps the ledger time
	mustApply(t, database, db.Batch{Writes: []db.Write{{Key: "b", Value: []byte("2")}}, LedgerTime: 400}, 2)
	if database.LedgerTime() != 500 {
		t.Errorf("Ledger time should never move backwards, got %d", database.LedgerTime())
	}

	// 0 keeps the current clock
	mustApply(t, database, db.Batch{Writes: []db.Write{{Key: "c", Value: []byte("3")}}}, 3)
	if database.LedgerTime() != 500 {
		t.Errorf("Batch without a ledger time should keep the clock, got %d", database.LedgerTime())
	}

	// a batch that only carries a ledger time is not empty
	if (db.Batch{LedgerTime: 1}).Empty() {
		t.Errorf("Batch with a ledger time should not be empty")
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	defer database.Close()

	requireFeature(t, database, db.FeatureSave|db.FeatureLoad|db.FeatureApply|db.FeatureGet)

	testData := make(map[string][]byte)
	batch := db.Batch{Extend: &db.TTLExtension{Threshold: 50, ExtendTo: 500}, LedgerTime: 1_700_000_123}
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("save-key-%d", i)
		value := []byte(fmt.Sprintf("save-value-%d", i))
		testData[key] = value
		batch.Writes = append(batch.Writes, db.Write{Key: key, Value: value})
	}
	mustApply(t, database, batch, 42)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Failed to save database: %v", err)
	}

	newDB := factory()
	defer newDB.Close()

	if err := newDB.Load(&buf); err != nil {
		t.Fatalf("Failed to load database: %v", err)
	}

	for key, expectedValue := range testData {
		value, exists := mustGet(t, newDB, key)
		if !exists {
			t.Errorf("Key %s missing after load", key)
			continue
		}
		if !bytes.Equal(value, expectedValue) {
			t.Errorf("Value mismatch for key %s after load", key)
		}
	}

	if newDB.WriteIdx() != 42 {
		t.Errorf("Expected write index 42 after load, got %d", newDB.WriteIdx())
	}
	if newDB.LedgerTime() != 1_700_000_123 {
		t.Errorf("Expected ledger time 1700000123 after load, got %d", newDB.LedgerTime())
	}
	if newDB.LiveUntil() != 1_700_000_623 {
		t.Errorf("Expected lease 1700000623 after load, got %d", newDB.LiveUntil())
	}

	// loading garbage must fail
	garbageDB := factory()
	defer garbageDB.Close()
	if err := garbageDB.Load(bytes.NewReader([]byte("not a snapshot"))); err == nil {
		t.Errorf("Loading an invalid snapshot should fail")
	}
}

func testSaveLoadLapsed(t *testing.T, factory DBFactory) {
	database := factory()
	defer database.Close()

	requireFeature(t, database, db.FeatureSave|db.FeatureLoad|db.FeatureApply|db.FeatureGet)

	mustApply(t, database, db.Batch{
		Writes:     []db.Write{{Key: "key", Value: []byte("value")}},
		Extend:     &db.TTLExtension{Threshold: 5, ExtendTo: 5},
		LedgerTime: 10,
	}, 1)
	database.SetWriteIdx(100)
	database.SetLedgerTime(100)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Failed to save database: %v", err)
	}

	newDB := factory()
	defer newDB.Close()
	if err := newDB.Load(&buf); err != nil {
		t.Fatalf("Failed to load database: %v", err)
	}

	if _, ok := mustGet(t, newDB, "key"); ok {
		t.Errorf("Snapshot of a lapsed region should not contain entries")
	}
	if newDB.WriteIdx() != 100 {
		t.Errorf("Expected write index 100 after load, got %d", newDB.WriteIdx())
	}
	if newDB.LiveUntil() != 0 {
		t.Errorf("Snapshot of a lapsed region should carry no lease, got %d", newDB.LiveUntil())
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	// empty key
	if err := database.Set("", []byte("empty-key-value"), 1); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, exists := mustGet(t, database, "")
	if !exists || !bytes.Equal(value, []byte("empty-key-value")) {
		t.Errorf("Empty key should be stored like any other key")
	}

	// empty value
	if err := database.Set("empty-value", []byte{}, 2); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, exists = mustGet(t, database, "empty-value")
	if !exists {
		t.Errorf("Key with empty value should exist")
	}
	if len(value) != 0 {
		t.Errorf("Expected empty value, got %v", value)
	}

	// binary keys, including the kind prefixes used by the registry
	binaryKeys := []string{"\x00", "\x01abc", "\x02STATS", "\x01\x00\xff"}
	for i, key := range binaryKeys {
		if err := database.Set(key, []byte{byte(i)}, uint64(3+i)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	for i, key := range binaryKeys {
		value, exists := mustGet(t, database, key)
		if !exists || !bytes.Equal(value, []byte{byte(i)}) {
			t.Errorf("Binary key %q not stored correctly", key)
		}
	}

	// large value
	large := bytes.Repeat([]byte("x"), 1024*1024)
	if err := database.Set("large", large, 10); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, _ = mustGet(t, database, "large")
	if !bytes.Equal(value, large) {
		t.Errorf("Large value not stored correctly")
	}

	// empty batch changes nothing but the index
	mustApply(t, database, db.Batch{}, 11)
	if database.WriteIdx() != 11 {
		t.Errorf("Expected write index 11, got %d", database.WriteIdx())
	}
}

func testConcurrentBatches(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureGet)

	const numWorkers = 8
	const perWorker = 50

	var idx atomic.Uint64
	var wg sync.WaitGroup
	errs := make(chan error, numWorkers*perWorker)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", worker, i)
				err := database.Apply(db.Batch{Writes: []db.Write{{Key: key, Value: []byte(key)}}}, idx.Add(1))
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent Apply failed: %v", err)
	}

	for w := 0; w < numWorkers; w++ {
		for i := 0; i < perWorker; i++ {
			key := fmt.Sprintf("worker-%d-key-%d", w, i)
			if value, ok := mustGet(t, database, key); !ok || string(value) != key {
				t.Errorf("Key %s missing after concurrent writes", key)
			}
		}
	}
	if database.WriteIdx() != numWorkers*perWorker {
		t.Errorf("Expected write index %d, got %d", numWorkers*perWorker, database.WriteIdx())
	}
}

// testRealisticUsage mimics the registry: each ledger writes one record plus a counter and
// extends the lease, some ledgers only read. Ledgers close every 5 seconds.
func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureApply|db.FeatureGet|db.FeatureExtendTTL)

	const threshold, extendTo = 100, 250
	const start = 1_700_000_000

	var total uint64
	for idx := uint64(1); idx <= 500; idx++ {
		now := start + 5*idx
		if idx%3 == 0 {
			// read-only ledger
			database.SetWriteIdx(idx)
			continue
		}
		total++
		mustApply(t, database, db.Batch{
			Writes: []db.Write{
				{Key: fmt.Sprintf("\x01doc-%d", idx), Value: u64(idx)},
				{Key: "\x02STATS", Value: u64(total)},
			},
			Extend:     &db.TTLExtension{Threshold: threshold, ExtendTo: extendTo},
			LedgerTime: now,
		}, idx)

		if remaining := database.LiveUntil() - now; remaining < threshold {
			t.Fatalf("Lease should never drop below the threshold after an extension, %d left at %d", remaining, now)
		}
	}

	raw, ok := mustGet(t, database, "\x02STATS")
	if !ok || binary.BigEndian.Uint64(raw) != total {
		t.Errorf("Expected counter %d", total)
	}
	for idx := uint64(1); idx <= 500; idx++ {
		_, ok := mustGet(t, database, fmt.Sprintf("\x01doc-%d", idx))
		if ok != (idx%3 != 0) {
			t.Errorf("Unexpected presence %v of doc-%d", ok, idx)
		}
	}
}
