package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/store"
)

// StoreFactory creates a fresh IStore instance for one test.
type StoreFactory func() store.IStore

// RunStoreTests runs the shared conformance suite for an IStore
// implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Rename", func(t *testing.T) {
			testRename(t, factory())
		})

		t.Run("MSet&MGet", func(t *testing.T) {
			testMSetMGet(t, factory())
		})

		t.Run("Lists", func(t *testing.T) {
			testLists(t, factory())
		})

		t.Run("BLPop", func(t *testing.T) {
			testBLPop(t, factory())
		})

		t.Run("Flush", func(t *testing.T) {
			testFlush(t, factory())
		})

		t.Run("ConcurrentWriters", func(t *testing.T) {
			testConcurrentWriters(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.IStore) {
	defer s.Close()

	if err := s.Set("key", []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, loaded, err := s.Get("key")
	if err != nil || !loaded {
		t.Fatalf("Get failed: %v (loaded=%v)", err, loaded)
	}
	if !bytes.Equal(value, []byte("value")) {
		t.Errorf("Expected value, got %s", value)
	}

	if _, loaded, _ := s.Get("missing"); loaded {
		t.Error("Missing key should not be loaded")
	}
}

func testDelete(t *testing.T, s store.IStore) {
	defer s.Close()

	s.Set("key", []byte("value"))
	if err := s.Delete("key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if loaded, _ := s.Has("key"); loaded {
		t.Error("Deleted key should not exist")
	}
}

func testRename(t *testing.T, s store.IStore) {
	defer s.Close()

	s.Set("src", []byte("payload"))
	if err := s.Rename("src", "dst"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	if loaded, _ := s.Has("src"); loaded {
		t.Error("Source should not exist after rename")
	}
	value, loaded, _ := s.Get("dst")
	if !loaded || !bytes.Equal(value, []byte("payload")) {
		t.Errorf("Destination should hold the payload, got %s (loaded=%v)", value, loaded)
	}

	err := s.Rename("missing", "dst2")
	var serr *store.Error
	if err == nil {
		t.Error("Renaming a missing key should fail")
	} else if ok := asStoreError(err, &serr); !ok || serr.Code != store.RetCNotFound {
		t.Errorf("Expected NotFound error, got %v", err)
	}
}

func testMSetMGet(t *testing.T, s store.IStore) {
	defer s.Close()

	if err := s.MSet("a", "1", "b", "2", "c", "3"); err != nil {
		t.Fatalf("MSet failed: %v", err)
	}

	values, err := s.MGet("a", "b", "missing", "c")
	if err != nil {
		t.Fatalf("MGet failed: %v", err)
	}
	if len(values) != 4 {
		t.Fatalf("Expected 4 slots, got %d", len(values))
	}
	for i, want := range []string{"1", "2", "", "3"} {
		if want == "" {
			if values[i] != nil {
				t.Errorf("Slot %d should be nil, got %s", i, values[i])
			}
			continue
		}
		if !bytes.Equal(values[i], []byte(want)) {
			t.Errorf("Slot %d mismatch: got %s, want %s", i, values[i], want)
		}
	}

	if err := s.MSet("odd"); err == nil {
		t.Error("MSet with an odd argument count should fail")
	}
}

func testLists(t *testing.T, s store.IStore) {
	defer s.Close()

	if n, err := s.RPush("list", []byte("a"), []byte("b")); err != nil || n != 2 {
		t.Fatalf("RPush failed: n=%d err=%v", n, err)
	}
	if n, err := s.LPush("list", []byte("c")); err != nil || n != 3 {
		t.Fatalf("LPush failed: n=%d err=%v", n, err)
	}

	value, loaded, err := s.LPop("list")
	if err != nil || !loaded || !bytes.Equal(value, []byte("c")) {
		t.Errorf("LPop mismatch: %s (loaded=%v err=%v)", value, loaded, err)
	}

	// Wrong type errors
	s.Set("str", []byte("v"))
	if _, err := s.LPush("str", []byte("x")); err == nil {
		t.Error("LPush on a string key should fail")
	}
}

func testBLPop(t *testing.T, s store.IStore) {
	defer s.Close()

	// Immediate pop when the value is present
	s.RPush("bl", []byte("ready"))
	value, loaded, err := s.BLPop("bl", time.Second)
	if err != nil || !loaded || !bytes.Equal(value, []byte("ready")) {
		t.Fatalf("Immediate BLPop failed: %s (loaded=%v err=%v)", value, loaded, err)
	}

	// Timeout on an empty key
	start := time.Now()
	_, loaded, err = s.BLPop("bl-empty", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("BLPop errored: %v", err)
	}
	if loaded {
		t.Error("BLPop on an empty key should time out")
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("BLPop returned before the timeout")
	}

	// Wakeup by a concurrent pusher
	done := make(chan struct{})
	go func() {
		defer close(done)
		value, loaded, err := s.BLPop("bl-wake", 5*time.Second)
		if err != nil || !loaded || !bytes.Equal(value, []byte("pushed")) {
			t.Errorf("BLPop wakeup failed: %s (loaded=%v err=%v)", value, loaded, err)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	if _, err := s.LPush("bl-wake", []byte("pushed")); err != nil {
		t.Fatalf("LPush failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("BLPop did not wake up")
	}
}

func testFlush(t *testing.T, s store.IStore) {
	defer s.Close()

	for i := 0; i < 16; i++ {
		s.Set(fmt.Sprintf("flush-%d", i), []byte("v"))
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	for i := 0; i < 16; i++ {
		if loaded, _ := s.Has(fmt.Sprintf("flush-%d", i)); loaded {
			t.Errorf("Key flush-%d survived the flush", i)
		}
	}
}

func testConcurrentWriters(t *testing.T, s store.IStore) {
	defer s.Close()

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				if err := s.Set(key, []byte("v")); err != nil {
					t.Errorf("Set failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			key := fmt.Sprintf("w%d-k%d", w, i)
			if loaded, _ := s.Has(key); !loaded {
				t.Errorf("Key %s lost", key)
			}
		}
	}
}

// asStoreError extracts the typed store error.
func asStoreError(err error, target **store.Error) bool {
	serr, ok := err.(*store.Error)
	if ok {
		*target = serr
	}
	return ok
}
