package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/sKV/lib/db"
)

// RunStoreBenchmarks runs all benchmarks for a Store implementation
func RunStoreBenchmarks(b *testing.B, name string, factory StoreFactory) {

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run("SetExisting", func(b *testing.B) {
		benchmarkSetExisting(b, factory())
	})

	b.Run("SetLargeValue", func(b *testing.B) {
		benchmarkSetLargeValue(b, factory())
	})

	b.Run("SetWithExpiry", func(b *testing.B) {
		benchmarkSetWithExpiry(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run("Has", func(b *testing.B) {
		benchmarkHas(b, factory())
	})

	b.Run("ListPushPop", func(b *testing.B) {
		benchmarkListPushPop(b, factory())
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

func benchmarkSet(b *testing.B, store db.Store) {
	defer store.Close()
	requireFeature(b, store, db.FeatureSet)

	value := []byte("benchmark-value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Set(fmt.Sprintf("bench-key-%d", i), value, uint64(i))
	}
}

func benchmarkSetExisting(b *testing.B, store db.Store) {
	defer store.Close()
	requireFeature(b, store, db.FeatureSet)

	key := "bench-existing-key"
	value := []byte("benchmark-value")
	store.Set(key, value, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Set(key, value, uint64(i+1))
	}
}

func benchmarkSetLargeValue(b *testing.B, store db.Store) {
	defer store.Close()
	requireFeature(b, store, db.FeatureSet)

	value := make([]byte, 1<<20) // 1 MB
	rand.Read(value)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Set(fmt.Sprintf("bench-large-%d", i%100), value, uint64(i))
	}
}

func benchmarkSetWithExpiry(b *testing.B, store db.Store) {
	defer store.Close()
	requireFeature(b, store, db.FeatureSetE)

	value := []byte("benchmark-value")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.SetE(fmt.Sprintf("bench-exp-%d", i), value, uint64(i), 100, 200)
	}
}

func benchmarkGet(b *testing.B, store db.Store) {
	defer store.Close()
	requireFeature(b, store, db.FeatureSet)
	requireFeature(b, store, db.FeatureGet)

	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		store.Set(fmt.Sprintf("bench-key-%d", i), []byte("benchmark-value"), uint64(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Get(fmt.Sprintf("bench-key-%d", i%numKeys))
	}
}

func benchmarkDelete(b *testing.B, store db.Store) {
	defer store.Close()
	requireFeature(b, store, db.FeatureSet)
	requireFeature(b, store, db.FeatureDelete)

	for i := 0; i < b.N; i++ {
		store.Set(fmt.Sprintf("bench-key-%d", i), []byte("v"), uint64(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Delete(fmt.Sprintf("bench-key-%d", i), uint64(b.N+i))
	}
}

func benchmarkHas(b *testing.B, store db.Store) {
	defer store.Close()
	requireFeature(b, store, db.FeatureSet)
	requireFeature(b, store, db.FeatureHas)

	numKeys := 10000
	for i := 0; i < numKeys; i++ {
		store.Set(fmt.Sprintf("bench-key-%d", i), []byte("v"), uint64(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Has(fmt.Sprintf("bench-key-%d", i%(numKeys*2)))
	}
}

func benchmarkListPushPop(b *testing.B, store db.Store) {
	defer store.Close()
	requireFeature(b, store, db.FeatureLists)

	elem := [][]byte{[]byte("benchmark-element")}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("bench-list-%d", i%100)
		store.ListPush(key, elem, false, uint64(i))
		store.ListPop(key, true, uint64(i))
	}
}

func benchmarkSaveLoad(b *testing.B, factory StoreFactory) {
	store := factory()
	defer store.Close()
	requireFeature(b, store, db.FeatureSave)
	requireFeature(b, store, db.FeatureLoad)

	numEntries := 10000
	for i := 0; i < numEntries; i++ {
		store.Set(fmt.Sprintf("bench-key-%d", i), []byte(fmt.Sprintf("bench-value-%d", i)), uint64(i))
	}

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			if err := store.Save(&buf); err != nil {
				b.Fatalf("Save failed: %v", err)
			}
		}
	})

	var buf bytes.Buffer
	if err := store.Save(&buf); err != nil {
		b.Fatalf("Save failed: %v", err)
	}
	data := buf.Bytes()

	b.Run("Load", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			target := factory()
			if err := target.Load(bytes.NewReader(data)); err != nil {
				b.Fatalf("Load failed: %v", err)
			}
			target.Close()
		}
	})
}

func benchmarkMixedUsage(b *testing.B, store db.Store) {
	defer store.Close()
	requireFeature(b, store, db.FeatureSet)
	requireFeature(b, store, db.FeatureGet)
	requireFeature(b, store, db.FeatureDelete)

	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		store.Set(fmt.Sprintf("bench-key-%d", i), []byte("initial"), uint64(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("bench-key-%d", i%numKeys)
		switch i % 10 {
		case 0:
			store.Set(key, []byte("updated"), uint64(numKeys+i))
		case 1:
			store.Delete(key, uint64(numKeys+i))
		case 2:
			store.Has(key)
		default:
			store.Get(key)
		}
	}
}
