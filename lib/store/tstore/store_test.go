package tstore

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/command"
	"github.com/ValentinKolb/sKV/lib/db/engines/grove"
	"github.com/ValentinKolb/sKV/lib/shard"
	"github.com/ValentinKolb/sKV/lib/store"
	storetesting "github.com/ValentinKolb/sKV/lib/store/testing"
)

func newSet(t *testing.T) *shard.ShardSet {
	t.Helper()
	ss := shard.NewShardSet(shard.Options{
		NumShards:    4,
		StoreFactory: grove.NewStore,
	})
	t.Cleanup(ss.Close)
	return ss
}

func Test(t *testing.T) {
	storetesting.RunStoreTests(t, "TransactionalStore", func() store.IStore {
		return NewTransactionalStore(newSet(t), command.DefaultRegistry(), 0)
	})
}

// TestBlockingPopWakeOrder verifies the full blocking path across
// goroutines: a popper suspends on an empty key, a pusher wakes it, the
// popper receives the pushed value, and no locks leak.
func TestBlockingPopWakeOrder(t *testing.T) {
	ss := newSet(t)
	s := NewTransactionalStore(ss, command.DefaultRegistry(), 0)

	const key = "wake-key"

	results := make(chan []byte, 1)
	go func() {
		value, loaded, err := s.BLPop(key, 10*time.Second)
		if err != nil || !loaded {
			t.Errorf("BLPop failed: loaded=%v err=%v", loaded, err)
			results <- nil
			return
		}
		results <- value
	}()

	// Give the popper time to suspend, then push.
	time.Sleep(50 * time.Millisecond)
	if _, err := s.LPush(key, []byte("hello")); err != nil {
		t.Fatalf("LPush failed: %v", err)
	}

	select {
	case value := <-results:
		if !bytes.Equal(value, []byte("hello")) {
			t.Errorf("Popper received %q, expected hello", value)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Popper did not wake up")
	}

	// The suspended transaction's key locks must be fully released.
	assertNoLocks(t, ss)
}

// TestManyBlockedPoppers checks FIFO-ish delivery: every pushed value goes
// to exactly one popper and none is lost.
func TestManyBlockedPoppers(t *testing.T) {
	ss := newSet(t)
	s := NewTransactionalStore(ss, command.DefaultRegistry(), 0)

	const key = "mp-key"
	const n = 4

	var wg sync.WaitGroup
	received := make(chan string, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			value, loaded, err := s.BLPop(key, 10*time.Second)
			if err != nil || !loaded {
				t.Errorf("BLPop failed: loaded=%v err=%v", loaded, err)
				return
			}
			received <- string(value)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	for i := 0; i < n; i++ {
		if _, err := s.LPush(key, []byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("LPush failed: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	wg.Wait()
	close(received)

	seen := make(map[string]bool)
	for v := range received {
		if seen[v] {
			t.Errorf("Value %s delivered twice", v)
		}
		seen[v] = true
	}
	if len(seen) != n {
		t.Errorf("Expected %d distinct values, got %d", n, len(seen))
	}

	assertNoLocks(t, ss)
}

// TestAtomicMSetVisibility hammers MSet/MGet over the same key pair from
// concurrent goroutines; every MGet must observe a consistent pair.
func TestAtomicMSetVisibility(t *testing.T) {
	ss := newSet(t)
	s := NewTransactionalStore(ss, command.DefaultRegistry(), 0)

	// Two keys on different shards make the consistency check meaningful.
	keyA, keyB := "", ""
	for i := 0; keyB == ""; i++ {
		key := fmt.Sprintf("pair-%d", i)
		switch {
		case keyA == "":
			keyA = key
		case shard.ShardOf(key, ss.Size()) != shard.ShardOf(keyA, ss.Size()):
			keyB = key
		}
	}

	if err := s.MSet(keyA, "0", keyB, "0"); err != nil {
		t.Fatalf("MSet failed: %v", err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := fmt.Sprintf("%d", i)
			if err := s.MSet(keyA, v, keyB, v); err != nil {
				t.Errorf("MSet failed: %v", err)
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			values, err := s.MGet(keyA, keyB)
			if err != nil {
				t.Errorf("MGet failed: %v", err)
				return
			}
			if !bytes.Equal(values[0], values[1]) {
				t.Errorf("Torn read: %s != %s", values[0], values[1])
				return
			}
		}
	}()

	time.Sleep(100 * time.Millisecond)
	close(stop)
	wg.Wait()

	assertNoLocks(t, ss)
}

func assertNoLocks(t *testing.T, ss *shard.ShardSet) {
	t.Helper()
	var locked int32
	var mu sync.Mutex
	ss.RunBriefInParallel(func(es *shard.EngineShard) {
		mu.Lock()
		locked += int32(es.KeyLocks().NumLocked())
		mu.Unlock()
	}, nil)
	if locked != 0 {
		t.Errorf("%d keys still locked", locked)
	}
}
