package testing

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ValentinKolb/sKV/lib/db"
)

// StoreFactory is a function that creates a new instance of a Store implementation
type StoreFactory func() db.Store

// RunStoreTests runs a comprehensive test suite for a Store implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Expire", func(t *testing.T) {
			testExpire(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("Rename", func(t *testing.T) {
			testRename(t, factory())
		})

		t.Run("Lists", func(t *testing.T) {
			testLists(t, factory())
		})

		t.Run("KeyExpiry", func(t *testing.T) {
			testKeyExpiry(t, factory())
		})

		t.Run("ManyExpiringKeys", func(t *testing.T) {
			testManyExpiringKeys(t, factory())
		})

		t.Run("GarbageCollect", func(t *testing.T) {
			testGarbageCollect(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the store supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, store db.Store, feature db.Feature) {
	if !store.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, store db.Store) {
	defer store.Close()

	requireFeature(t, store, db.FeatureSet)
	requireFeature(t, store, db.FeatureGet)

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	store.Set(testKey, testValue1, 0)

	result, exists := store.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	store.Set(testKey, testValue2, 0)

	result, exists = store.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected updated value %s, got %s", testValue2, result)
	}

	_, exists = store.Get("nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	// Get must return a copy, not a reference to the stored value
	retrievedValue, _ := store.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := store.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testExpire(t *testing.T, store db.Store) {
	defer store.Close()

	requireFeature(t, store, db.FeatureSet)
	requireFeature(t, store, db.FeatureGet)
	requireFeature(t, store, db.FeatureExpire)

	testKey := "expire-test-key"
	testValue := []byte("expire-test-value")

	store.Set(testKey, testValue, 0)

	_, exists := store.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	store.Expire(testKey, 10)

	_, exists = store.Get(testKey)
	if exists {
		t.Errorf("Expected key %s to not be readable after Expire", testKey)
	}

	if !store.Has(testKey) {
		t.Errorf("Expected key %s to still be findable after Expire", testKey)
	}

	// Expiring a nonexistent key is a no-op
	store.Expire("nonexistent-key", 0)
}

func testDelete(t *testing.T, store db.Store) {
	defer store.Close()

	requireFeature(t, store, db.FeatureSet)
	requireFeature(t, store, db.FeatureGet)
	requireFeature(t, store, db.FeatureDelete)

	testKey := "delete-test-key"
	testValue := []byte("delete-test-value")

	store.Set(testKey, testValue, 0)

	_, exists := store.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !store.Delete(testKey, 10) {
		t.Errorf("Delete should report true for an existing key")
	}

	_, exists = store.Get(testKey)
	if exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	if store.Has(testKey) {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	if store.Delete("nonexistent-key", 0) {
		t.Errorf("Delete should report false for a nonexistent key")
	}
}

func testHas(t *testing.T, store db.Store) {
	defer store.Close()

	requireFeature(t, store, db.FeatureSet)
	requireFeature(t, store, db.FeatureDelete)
	requireFeature(t, store, db.FeatureHas)

	testKey := "has-exists-test-key"
	testValue := []byte("has-exists-test-value")

	if store.Has(testKey) {
		t.Errorf("Expected Has to return false for nonexistent key")
	}

	store.Set(testKey, testValue, 0)

	if !store.Has(testKey) {
		t.Errorf("Expected Has to return true after Set")
	}

	store.Expire(testKey, 0)

	if !store.Has(testKey) {
		t.Errorf("Expected Has to return true after Expire")
	}
}

func testRename(t *testing.T, store db.Store) {
	defer store.Close()

	requireFeature(t, store, db.FeatureSet)
	requireFeature(t, store, db.FeatureGet)
	requireFeature(t, store, db.FeatureRename)

	store.Set("src", []byte("payload"), 0)
	store.Set("dst", []byte("old"), 0)

	if !store.Rename("src", "dst", 1) {
		t.Fatal("Rename should succeed for an existing source key")
	}

	if store.Has("src") {
		t.Errorf("Source key should not exist after Rename")
	}

	result, exists := store.Get("dst")
	if !exists || !bytes.Equal(result, []byte("payload")) {
		t.Errorf("Destination should hold the renamed value, got %s (exists=%v)", result, exists)
	}

	if store.Rename("nonexistent", "dst2", 2) {
		t.Errorf("Rename should fail for a nonexistent source key")
	}
}

func testLists(t *testing.T, store db.Store) {
	defer store.Close()

	requireFeature(t, store, db.FeatureLists)

	key := "list-key"

	// Push to the back: a, b; then to the front: c -> [c, a, b]
	if n, ok := store.ListPush(key, [][]byte{[]byte("a"), []byte("b")}, false, 0); !ok || n != 2 {
		t.Fatalf("ListPush back failed: n=%d ok=%v", n, ok)
	}
	if n, ok := store.ListPush(key, [][]byte{[]byte("c")}, true, 1); !ok || n != 3 {
		t.Fatalf("ListPush front failed: n=%d ok=%v", n, ok)
	}

	if n := store.ListLen(key); n != 3 {
		t.Errorf("Expected list length 3, got %d", n)
	}

	// Pop front -> c, pop back -> b
	if val, ok := store.ListPop(key, true, 2); !ok || !bytes.Equal(val, []byte("c")) {
		t.Errorf("Expected front pop to return c, got %s (ok=%v)", val, ok)
	}
	if val, ok := store.ListPop(key, false, 3); !ok || !bytes.Equal(val, []byte("b")) {
		t.Errorf("Expected back pop to return b, got %s (ok=%v)", val, ok)
	}

	// Popping the last element removes the key
	if _, ok := store.ListPop(key, true, 4); !ok {
		t.Fatal("Expected pop of last element to succeed")
	}
	if store.Has(key) {
		t.Errorf("Emptied list should be removed")
	}
	if _, ok := store.ListPop(key, true, 5); ok {
		t.Errorf("Pop on a removed list should fail")
	}

	// Type mismatch: list ops on a string key fail, string reads on a list fail
	store.Set("str-key", []byte("value"), 6)
	if _, ok := store.ListPush("str-key", [][]byte{[]byte("x")}, false, 7); ok {
		t.Errorf("ListPush on a string key should fail")
	}
	store.ListPush("list-key-2", [][]byte{[]byte("x")}, false, 8)
	if _, exists := store.Get("list-key-2"); exists {
		t.Errorf("Get on a list key should report not found")
	}
}

func testKeyExpiry(t *testing.T, store db.Store) {
	defer store.Close()

	requireFeature(t, store, db.FeatureSetE)
	requireFeature(t, store, db.FeatureGet)
	requireFeature(t, store, db.FeatureHas)

	testKey := "expiring-key"
	testValue := []byte("expiring-value")

	// Expires at 110, deleted at 120
	store.SetE(testKey, testValue, 100, 10, 20)

	store.SetWriteIdx(109)

	result, exists := store.Get(testKey)
	if !exists {
		t.Errorf("Key should still exist at index 109 (get)")
	}
	if !bytes.Equal(result, testValue) {
		t.Errorf("Expected value %s, got %s", testValue, result)
	}
	if !store.Has(testKey) {
		t.Errorf("Key should still exist at index 109 (has)")
	}

	store.SetWriteIdx(110)

	if _, exists = store.Get(testKey); exists {
		t.Errorf("Key should have expired at index 110 (get)")
	}
	if !store.Has(testKey) {
		t.Errorf("Key should still be findable at index 110 (has)")
	}

	store.SetWriteIdx(120)

	if _, exists = store.Get(testKey); exists {
		t.Errorf("Key should have been deleted at index 120 (get)")
	}
	if store.Has(testKey) {
		t.Errorf("Key should not exist at index 120 (has)")
	}

	// deleteIn without expireIn implies both
	testKey2 := "test-key2"
	store.SetE(testKey2, []byte("test-value2"), 200, 0, 10)

	store.SetWriteIdx(209)
	if _, exists = store.Get(testKey2); !exists {
		t.Errorf("Key should still exist at index 209")
	}

	store.SetWriteIdx(210)
	if _, exists = store.Get(testKey2); exists {
		t.Errorf("Key should have been deleted at index 210")
	}
	if store.Has(testKey2) {
		t.Errorf("Key should not exist at index 210")
	}

	// TTL of zero never expires
	testKey3 := "not-expiring-key"
	store.SetE(testKey3, []byte("not-expiring-value"), 300, 0, 0)

	store.SetWriteIdx(1000)
	if _, exists = store.Get(testKey3); !exists {
		t.Errorf("Key with TTL=0 should never expire")
	}
}

func testManyExpiringKeys(t *testing.T, store db.Store) {
	defer store.Close()

	requireFeature(t, store, db.FeatureSetE)
	requireFeature(t, store, db.FeatureGet)

	numKeys := 1000
	baseIndex := uint64(1000)

	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("expire-key-%d", i)
		value := []byte(fmt.Sprintf("expire-value-%d", i))
		ttl := uint64(i % 100)
		store.SetE(key, value, baseIndex, ttl, 0)

		if !store.Has(key) {
			t.Errorf("Key %s not found after Set", key)
		}
	}

	for offset := uint64(0); offset <= 100; offset += 10 {
		currentIndex := baseIndex + offset

		for i := 0; i < numKeys; i++ {
			key := fmt.Sprintf("expire-key-%d", i)
			ttl := uint64(i % 100)

			if ttl > 0 && ttl <= offset {
				store.SetWriteIdx(currentIndex)
				if _, exists := store.Get(key); exists {
					t.Errorf("Key %s should have expired at index %d (TTL=%d)",
						key, currentIndex, ttl)
				}
			}
		}
	}
}

func testGarbageCollect(t *testing.T, store db.Store) {
	defer store.Close()

	requireFeature(t, store, db.FeatureSetE)
	requireFeature(t, store, db.FeatureGarbageCollect)

	numKeys := 100
	for i := 0; i < numKeys; i++ {
		key := fmt.Sprintf("gc-key-%d", i)
		store.SetE(key, []byte("v"), 0, 0, uint64(i+1))
	}

	// Nothing is due yet
	if removed := store.CollectGarbage(); removed != 0 {
		t.Errorf("CollectGarbage removed %d entries before any deadline", removed)
	}

	// Advance past half the deadlines
	store.SetWriteIdx(50)
	removed := store.CollectGarbage()
	if removed != 50 {
		t.Errorf("CollectGarbage should remove 50 entries, removed %d", removed)
	}

	// The swept keys are gone, the rest remain
	if store.Has("gc-key-0") {
		t.Errorf("Swept key should not be findable")
	}
	if !store.Has("gc-key-99") {
		t.Errorf("Key with future deadline should still exist")
	}

	// A second sweep at the same index is a no-op
	if removed := store.CollectGarbage(); removed != 0 {
		t.Errorf("Second CollectGarbage removed %d entries", removed)
	}
}

func testSaveLoad(t *testing.T, factory StoreFactory) {
	store := factory()
	store2 := factory()

	// close the stores after the test
	defer store.Close()
	defer store2.Close()

	requireFeature(t, store, db.FeatureSet)
	requireFeature(t, store, db.FeatureGet)
	requireFeature(t, store, db.FeatureSave)
	requireFeature(t, store, db.FeatureLoad)

	numEntries := 1000
	originalKeys := make([]string, numEntries)
	originalValues := make([][]byte, numEntries)

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-test-key-%d", i)
		value := []byte(fmt.Sprintf("save-load-test-value-%d", i))
		originalKeys[i] = key
		originalValues[i] = value

		store.Set(key, value, 0)
	}

	// Lists survive the round trip too
	if store.SupportsFeature(db.FeatureLists) {
		store.ListPush("save-load-list", [][]byte{[]byte("one"), []byte("two")}, false, 0)
	}

	var buf bytes.Buffer
	if err := store.Save(&buf); err != nil {
		t.Errorf("Unexpected error during Save: %v", err)
	}

	if err := store2.Load(&buf); err != nil {
		t.Errorf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := originalKeys[i]
		expectedValue := originalValues[i]

		actualValue, exists := store2.Get(key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}

		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	if store.SupportsFeature(db.FeatureLists) {
		if n := store2.ListLen("save-load-list"); n != 2 {
			t.Errorf("Expected restored list of length 2, got %d", n)
		}
	}

	// The original store is untouched by Save
	for i := 0; i < numEntries; i++ {
		if _, exists := store.Get(originalKeys[i]); !exists {
			t.Errorf("Key %s not found in original store", originalKeys[i])
		}
	}
}

func testEdgeCases(t *testing.T, store db.Store) {
	defer store.Close()

	requireFeature(t, store, db.FeatureSet)
	requireFeature(t, store, db.FeatureGet)

	// Empty key and empty value are legal
	store.Set("", []byte("empty-key-value"), 0)
	if result, exists := store.Get(""); !exists || !bytes.Equal(result, []byte("empty-key-value")) {
		t.Errorf("Empty key should be storable, got %s (exists=%v)", result, exists)
	}

	store.Set("empty-value-key", []byte{}, 0)
	if result, exists := store.Get("empty-value-key"); !exists || len(result) != 0 {
		t.Errorf("Empty value should be storable, got %s (exists=%v)", result, exists)
	}

	// Stale writes are ignored
	store.Set("stale-key", []byte("new"), 100)
	store.Set("stale-key", []byte("old"), 50)
	if result, _ := store.Get("stale-key"); !bytes.Equal(result, []byte("new")) {
		t.Errorf("Stale write should be ignored, got %s", result)
	}

	// Large value round trip
	largeValue := make([]byte, 1<<20)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	store.Set("large-key", largeValue, 200)
	if result, exists := store.Get("large-key"); !exists || !bytes.Equal(result, largeValue) {
		t.Errorf("Large value mismatch (exists=%v)", exists)
	}

	// Flush removes everything
	if store.SupportsFeature(db.FeatureFlush) {
		store.Flush()
		if store.Len() != 0 {
			t.Errorf("Store should be empty after Flush, has %d entries", store.Len())
		}
	}
}
