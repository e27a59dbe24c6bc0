package testing

import (
	"bytes"
	"fmt"
	"github.com/ValentinKolb/dProof/lib/db"
	"math/rand"
	"sync/atomic"
	"testing"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run("ApplyRegistration", func(b *testing.B) {
		benchmarkApplyRegistration(b, factory())
	})

	b.Run("SetLargeValue", func(b *testing.B) {
		benchmarkSetLargeValue(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Has(not)", func(b *testing.B) {
		benchmarkHasNot(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Set operation
func benchmarkSet(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	var idx atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := fmt.Sprintf("key-%d-%d", counter, rand.Int())
			_ = database.Set(key, []byte("value"), idx.Add(1))
			counter++
		}
	})
}

// Benchmark for the batch written by one registration: proof + counter + lease extension
func benchmarkApplyRegistration(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureApply|db.FeatureExtendTTL)

	proof := bytes.Repeat([]byte("p"), 128)
	extend := &db.TTLExtension{Threshold: 86400, ExtendTo: 86400}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = database.Apply(db.Batch{
			Writes: []db.Write{
				{Key: fmt.Sprintf("\x01doc-%d", i), Value: proof},
				{Key: "\x02STATS", Value: u64(uint64(i + 1))},
			},
			Extend:     extend,
			LedgerTime: uint64(1_700_000_000 + i),
		}, uint64(i+1))
	}
}

// Benchmark for Set with large values
func benchmarkSetLargeValue(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	largeValue := bytes.Repeat([]byte("x"), 100*1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = database.Set(fmt.Sprintf("large-%d", i), largeValue, uint64(i+1))
	}
}

// Benchmark for Get operation
func benchmarkGet(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureApply|db.FeatureGet)

	const numKeys = 1000
	batch := db.Batch{}
	for i := 0; i < numKeys; i++ {
		batch.Writes = append(batch.Writes, db.Write{Key: fmt.Sprintf("key-%d", i), Value: []byte("value")})
	}
	_ = database.Apply(batch, 1)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _, _ = database.Get(fmt.Sprintf("key-%d", i%numKeys))
			i++
		}
	})
}

// Benchmark for Has operation on missing keys
func benchmarkHasNot(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureHas)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = database.Has(fmt.Sprintf("missing-%d", i))
			i++
		}
	})
}

// Benchmark for Save and Load operations
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSave|db.FeatureLoad|db.FeatureApply)

	batch := db.Batch{}
	for i := 0; i < 10000; i++ {
		batch.Writes = append(batch.Writes, db.Write{Key: fmt.Sprintf("key-%d", i), Value: bytes.Repeat([]byte("v"), 100)})
	}
	_ = database.Apply(batch, 1)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		b.Fatalf("Failed to save: %v", err)
	}
	snapshot := buf.Bytes()

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var out bytes.Buffer
			_ = database.Save(&out)
		}
	})

	b.Run("Load", func(b *testing.B) {
		target := factory()
		defer target.Close()
		for i := 0; i < b.N; i++ {
			_ = target.Load(bytes.NewReader(snapshot))
		}
	})
}

// Benchmark for mixed usage: 90% reads, 10% registrations
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureApply|db.FeatureGet)

	var idx atomic.Uint64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			n := r.Intn(1000)
			if r.Intn(10) == 0 {
				_ = database.Apply(db.Batch{
					Writes: []db.Write{{Key: fmt.Sprintf("\x01doc-%d", n), Value: []byte("proof")}},
					Extend: &db.TTLExtension{Threshold: 100, ExtendTo: 1000},
				}, idx.Add(1))
			} else {
				_, _, _ = database.Get(fmt.Sprintf("\x01doc-%d", n))
			}
		}
	})
}
