package txn

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/sKV/lib/command"
	"github.com/ValentinKolb/sKV/lib/db/engines/grove"
	"github.com/ValentinKolb/sKV/lib/journal"
	"github.com/ValentinKolb/sKV/lib/shard"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func newTestSet(t *testing.T, numShards int, jrnl journal.Journal) (*shard.ShardSet, *command.Registry) {
	t.Helper()
	ss := shard.NewShardSet(shard.Options{
		NumShards:    numShards,
		StoreFactory: grove.NewStore,
		Journal:      jrnl,
	})
	t.Cleanup(ss.Close)
	return ss, command.DefaultRegistry()
}

func mustGet(t *testing.T, reg *command.Registry, name string) *command.CommandId {
	t.Helper()
	cid, ok := reg.Get(name)
	if !ok {
		t.Fatalf("command %s not registered", name)
	}
	return cid
}

// keysOnDistinctShards generates keys that map to pairwise distinct shards.
func keysOnDistinctShards(t *testing.T, ss *shard.ShardSet, n int) []string {
	t.Helper()
	found := make(map[shard.ShardId]string)
	for i := 0; len(found) < n && i < 100000; i++ {
		key := fmt.Sprintf("key-%d", i)
		sid := shard.ShardOf(key, ss.Size())
		if _, ok := found[sid]; !ok {
			found[sid] = key
		}
	}
	if len(found) < n {
		t.Fatalf("could not find %d distinct shards", n)
	}
	keys := make([]string, 0, n)
	for sid := shard.ShardId(0); sid < ss.Size() && len(keys) < n; sid++ {
		if key, ok := found[sid]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// setCb writes a single key/value pair on the owning shard. Single-key
// commands carry only the key in their shard args, so the value comes from
// the full argument vector.
func setCb(t *Transaction, es *shard.EngineShard) OpStatus {
	args := t.FullArgs()
	store := es.Store(t.DbIndex())
	store.Set(args[1], []byte(args[2]), store.WriteIdx()+1)
	return OpOK
}

// msetCb writes every key/value pair of this shard's argument slice.
func msetCb(t *Transaction, es *shard.EngineShard) OpStatus {
	args := t.ShardArgs(es.ShardId())
	store := es.Store(t.DbIndex())
	for i := 0; i+1 < len(args); i += 2 {
		store.Set(args[i], []byte(args[i+1]), store.WriteIdx()+1)
	}
	return OpOK
}

// assertNoLocks verifies the lock-pairing invariant: once all transactions
// concluded, every shard's lock table is empty and its intent lock free.
func assertNoLocks(t *testing.T, ss *shard.ShardSet) {
	t.Helper()
	var lockedKeys atomic.Int32
	var busyShards atomic.Int32
	ss.RunBriefInParallel(func(es *shard.EngineShard) {
		lockedKeys.Add(int32(es.KeyLocks().NumLocked()))
		if !es.ShardLock().IsFree() {
			busyShards.Add(1)
		}
	}, nil)

	if n := lockedKeys.Load(); n != 0 {
		t.Errorf("lock pairing violated: %d keys still locked", n)
	}
	if n := busyShards.Load(); n != 0 {
		t.Errorf("%d shard intent locks still held", n)
	}
}

func getValue(ss *shard.ShardSet, key string) ([]byte, bool) {
	var val []byte
	var ok bool
	sid := shard.ShardOf(key, ss.Size())
	ss.RunBriefInParallel(func(es *shard.EngineShard) {
		val, ok = es.Store(0).Get(key)
	}, func(s shard.ShardId) bool { return s == sid })
	return val, ok
}

// --------------------------------------------------------------------------
// Single-shard fast path
// --------------------------------------------------------------------------

// TestQuickieSet covers the uncontested single-key path: the callback runs
// inline on the owning shard, bypassing the queue, and no txid is assigned.
func TestQuickieSet(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)

	tx := New(mustGet(t, reg, "SET"), ss)
	if status := tx.InitByArgs(0, []string{"SET", "k1", "v"}); status != OpOK {
		t.Fatalf("InitByArgs failed: %s", status)
	}

	if tx.UniqueShardCnt() != 1 {
		t.Errorf("expected unique shard count 1, got %d", tx.UniqueShardCnt())
	}
	wantSid := shard.ShardOf("k1", ss.Size())
	if tx.UniqueShardID() != wantSid {
		t.Errorf("expected shard %d, got %d", wantSid, tx.UniqueShardID())
	}

	var runs atomic.Int32
	var ranOn atomic.Uint32
	status := tx.ScheduleSingleHop(func(tx *Transaction, es *shard.EngineShard) OpStatus {
		runs.Add(1)
		ranOn.Store(es.ShardId())
		return setCb(tx, es)
	})

	if status != OpOK {
		t.Errorf("expected OK, got %s", status)
	}
	if runs.Load() != 1 {
		t.Errorf("callback should run exactly once, ran %d times", runs.Load())
	}
	if ranOn.Load() != wantSid {
		t.Errorf("callback ran on shard %d, expected %d", ranOn.Load(), wantSid)
	}
	if tx.Txid() != 0 {
		t.Errorf("quickie must not allocate a txid, got %d", tx.Txid())
	}

	if val, ok := getValue(ss, "k1"); !ok || string(val) != "v" {
		t.Errorf("value not written: %q (ok=%v)", val, ok)
	}
	assertNoLocks(t, ss)
}

// TestFastPathEquivalence verifies that a single-key command produces the
// same result whether it takes the quickie path or is forced through the
// queue by a contending lock holder.
func TestFastPathEquivalence(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)

	run := func(key, value string) (OpStatus, shard.TxId) {
		tx := New(mustGet(t, reg, "SET"), ss)
		if status := tx.InitByArgs(0, []string{"SET", key, value}); status != OpOK {
			t.Fatalf("InitByArgs failed: %s", status)
		}
		status := tx.ScheduleSingleHop(setCb)
		return status, tx.Txid()
	}

	// Quickie path
	statusFast, txidFast := run("eq-key", "first")
	if txidFast != 0 {
		t.Errorf("uncontested run should be a quickie, got txid %d", txidFast)
	}

	// Force the queue path by holding the key lock from outside
	sid := shard.ShardOf("eq-key", ss.Size())
	largs := shard.KeyLockArgs{DbIndex: 0, KeyStep: 1, Args: []string{"eq-key"}}
	ss.RunBriefInParallel(func(es *shard.EngineShard) {
		es.KeyLocks().Acquire(shard.LockExclusive, largs)
	}, func(s shard.ShardId) bool { return s == sid })

	statusSlow, txidSlow := run("eq-key", "second")
	if txidSlow == 0 {
		t.Error("contended run should have been scheduled into the queue")
	}

	ss.RunBriefInParallel(func(es *shard.EngineShard) {
		es.KeyLocks().Release(shard.LockExclusive, largs)
	}, func(s shard.ShardId) bool { return s == sid })

	if statusFast != statusSlow {
		t.Errorf("path results differ: quickie=%s queued=%s", statusFast, statusSlow)
	}
	if val, _ := getValue(ss, "eq-key"); string(val) != "second" {
		t.Errorf("unexpected final value %q", val)
	}
	assertNoLocks(t, ss)
}

// --------------------------------------------------------------------------
// Multi-shard scheduling
// --------------------------------------------------------------------------

// TestMSetAcrossShards covers the general scheduling path: arguments are
// bucketed per shard, a txid is assigned, and the uncontested grant enables
// out-of-order execution on every shard.
func TestMSetAcrossShards(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)

	keys := keysOnDistinctShards(t, ss, 3)
	args := []string{"MSET"}
	want := make(map[shard.ShardId][]string)
	for i, key := range keys {
		val := fmt.Sprintf("%d", i+1)
		args = append(args, key, val)
		want[shard.ShardOf(key, ss.Size())] = []string{key, val}
	}

	tx := New(mustGet(t, reg, "MSET"), ss)
	if status := tx.InitByArgs(0, args); status != OpOK {
		t.Fatalf("InitByArgs failed: %s", status)
	}
	if tx.UniqueShardCnt() != 3 {
		t.Fatalf("expected 3 unique shards, got %d", tx.UniqueShardCnt())
	}

	var mu sync.Mutex
	seen := make(map[shard.ShardId][]string)

	status := tx.ScheduleSingleHop(func(tx *Transaction, es *shard.EngineShard) OpStatus {
		mu.Lock()
		seen[es.ShardId()] = append([]string(nil), tx.ShardArgs(es.ShardId())...)
		mu.Unlock()
		return msetCb(tx, es)
	})

	if status != OpOK {
		t.Fatalf("expected OK, got %s", status)
	}
	if tx.Txid() == 0 {
		t.Error("multi-shard transaction must carry a txid")
	}
	if !tx.IsOOO() {
		t.Error("uncontested schedule should grant out-of-order execution")
	}

	for sid, wantArgs := range want {
		gotArgs, ok := seen[sid]
		if !ok {
			t.Errorf("shard %d did not run the callback", sid)
			continue
		}
		if len(gotArgs) != len(wantArgs) || gotArgs[0] != wantArgs[0] || gotArgs[1] != wantArgs[1] {
			t.Errorf("shard %d args mismatch: got %v, want %v", sid, gotArgs, wantArgs)
		}
	}

	for i, key := range keys {
		if val, ok := getValue(ss, key); !ok || string(val) != fmt.Sprintf("%d", i+1) {
			t.Errorf("key %s not written correctly: %q (ok=%v)", key, val, ok)
		}
	}
	assertNoLocks(t, ss)
}

// TestMonotoneTxids verifies that transactions scheduled in order on one
// coordinator receive strictly increasing ids.
func TestMonotoneTxids(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)
	keys := keysOnDistinctShards(t, ss, 2)

	var last shard.TxId
	for i := 0; i < 5; i++ {
		tx := New(mustGet(t, reg, "MSET"), ss)
		args := []string{"MSET", keys[0], "x", keys[1], "y"}
		if status := tx.InitByArgs(0, args); status != OpOK {
			t.Fatalf("InitByArgs failed: %s", status)
		}
		if status := tx.ScheduleSingleHop(msetCb); status != OpOK {
			t.Fatalf("hop failed: %s", status)
		}
		if tx.Txid() <= last {
			t.Errorf("txid not monotone: %d after %d", tx.Txid(), last)
		}
		last = tx.Txid()
	}
	assertNoLocks(t, ss)
}

// TestReverseMapping checks the argument round trip: every distributed
// argument maps back to its original position.
func TestReverseMapping(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)
	keys := keysOnDistinctShards(t, ss, 3)

	args := append([]string{"MGET"}, keys...)

	tx := New(mustGet(t, reg, "MGET"), ss)
	if status := tx.InitByArgs(0, args); status != OpOK {
		t.Fatalf("InitByArgs failed: %s", status)
	}

	var mu sync.Mutex
	violations := 0

	status := tx.ScheduleSingleHop(func(tx *Transaction, es *shard.EngineShard) OpStatus {
		shardArgs := tx.ShardArgs(es.ShardId())
		mu.Lock()
		for i := range shardArgs {
			orig := tx.ReverseArgIndex(es.ShardId(), i)
			if args[1+orig] != shardArgs[i] {
				violations++
			}
		}
		mu.Unlock()
		return OpOK
	})

	if status != OpOK {
		t.Fatalf("hop failed: %s", status)
	}
	if violations != 0 {
		t.Errorf("%d reverse index violations", violations)
	}
	assertNoLocks(t, ss)
}

// --------------------------------------------------------------------------
// Ordering
// --------------------------------------------------------------------------

// TestPerShardOrdering verifies that two conflicting transactions run in
// txid order on every shared shard.
func TestPerShardOrdering(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)
	keys := keysOnDistinctShards(t, ss, 2)

	makeTx := func(val string) *Transaction {
		tx := New(mustGet(t, reg, "MSET"), ss)
		args := []string{"MSET", keys[0], val, keys[1], val}
		if status := tx.InitByArgs(0, args); status != OpOK {
			t.Fatalf("InitByArgs failed: %s", status)
		}
		return tx
	}

	txA := makeTx("a")
	txB := makeTx("b")

	// Schedule in order: A gets the smaller txid, B sees contended locks
	// (A holds them) and therefore no out-of-order grant.
	txA.Schedule()
	txB.Schedule()

	if txA.Txid() >= txB.Txid() {
		t.Fatalf("txids not ordered: %d vs %d", txA.Txid(), txB.Txid())
	}
	if txB.IsOOO() {
		t.Error("contended transaction must not be out-of-order")
	}

	var mu sync.Mutex
	order := make(map[shard.ShardId][]shard.TxId)
	record := func(tx *Transaction, es *shard.EngineShard) OpStatus {
		mu.Lock()
		order[es.ShardId()] = append(order[es.ShardId()], tx.Txid())
		mu.Unlock()
		return msetCb(tx, es)
	}

	// Arm B first: it must still wait for A on every shared shard.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		txB.Execute(record, true)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(50 * time.Millisecond)
		txA.Execute(record, true)
	}()
	wg.Wait()

	for sid, ids := range order {
		if len(ids) != 2 || ids[0] != txA.Txid() || ids[1] != txB.Txid() {
			t.Errorf("shard %d ran out of order: %v", sid, ids)
		}
	}

	// B ran last everywhere, so its values win.
	for _, key := range keys {
		if val, _ := getValue(ss, key); string(val) != "b" {
			t.Errorf("key %s holds %q, expected b", key, val)
		}
	}
	assertNoLocks(t, ss)
}

// TestContendedConcurrency hammers one key and one key pair from many
// goroutines; the scheduling retry loop and the queue must serialize
// everything without losing locks.
func TestContendedConcurrency(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)
	keys := keysOnDistinctShards(t, ss, 2)

	const goroutines = 8
	const opsEach = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < opsEach; i++ {
				if i%2 == 0 {
					tx := New(mustGet(t, reg, "SET"), ss)
					if status := tx.InitByArgs(0, []string{"SET", keys[0], fmt.Sprintf("%d-%d", g, i)}); status != OpOK {
						t.Errorf("InitByArgs failed: %s", status)
						return
					}
					if status := tx.ScheduleSingleHop(setCb); status != OpOK {
						t.Errorf("hop failed: %s", status)
						return
					}
				} else {
					tx := New(mustGet(t, reg, "MSET"), ss)
					args := []string{"MSET", keys[0], "m", keys[1], "m"}
					if status := tx.InitByArgs(0, args); status != OpOK {
						t.Errorf("InitByArgs failed: %s", status)
						return
					}
					if status := tx.ScheduleSingleHop(msetCb); status != OpOK {
						t.Errorf("hop failed: %s", status)
						return
					}
				}
			}
		}(g)
	}
	wg.Wait()

	if _, ok := getValue(ss, keys[0]); !ok {
		t.Error("contended key lost its value")
	}
	assertNoLocks(t, ss)
}

// --------------------------------------------------------------------------
// Multi-command transactions
// --------------------------------------------------------------------------

// TestMultiLockAhead covers the MULTI/EXEC lock-ahead lifecycle: one
// schedule for all keys, sub-commands re-bound via MultiSwitchCmd, and
// per-shard EXEC journal records only for shards that wrote.
func TestMultiLockAhead(t *testing.T) {
	jrnl := journal.NewMemoryJournal()
	ss, reg := newTestSet(t, 4, jrnl)
	keys := keysOnDistinctShards(t, ss, 2)

	tx := New(mustGet(t, reg, "EXEC"), ss)
	tx.StartMultiLockedAhead(0, keys)

	if tx.Txid() == 0 {
		t.Fatal("lock-ahead multi must be scheduled")
	}

	setCid := mustGet(t, reg, "SET")
	for i, key := range keys {
		tx.MultiSwitchCmd(setCid)
		if status := tx.InitByArgs(0, []string{"SET", key, fmt.Sprintf("%d", i+1)}); status != OpOK {
			t.Fatalf("InitByArgs failed: %s", status)
		}
		// Each sub-command is its own concluding operation; the keys stay
		// locked until UnlockMulti.
		if status := tx.ScheduleSingleHop(setCb); status != OpOK {
			t.Fatalf("sub-command failed: %s", status)
		}
	}

	tx.UnlockMulti()

	for i, key := range keys {
		if val, ok := getValue(ss, key); !ok || string(val) != fmt.Sprintf("%d", i+1) {
			t.Errorf("key %s holds %q (ok=%v)", key, val, ok)
		}
	}

	// Both written shards closed their journal with an EXEC record carrying
	// the number of writing shards; untouched shards wrote nothing.
	execs := jrnl.EntriesFor(journal.OpExec)
	if len(execs) != 2 {
		t.Fatalf("expected 2 EXEC journal records, got %d", len(execs))
	}
	for _, e := range execs {
		if e.ShardCnt != 2 {
			t.Errorf("EXEC record should carry shard count 2, got %d", e.ShardCnt)
		}
		if e.Txid != tx.Txid() {
			t.Errorf("EXEC record txid mismatch: %d != %d", e.Txid, tx.Txid())
		}
	}

	// Sub-commands journal as multi commands.
	if n := len(jrnl.EntriesFor(journal.OpMultiCommand)); n != 2 {
		t.Errorf("expected 2 MULTI_COMMAND records, got %d", n)
	}

	assertNoLocks(t, ss)
}

// TestMultiNonAtomic verifies that non-atomic sub-commands schedule
// independently (fresh txid per sub-command).
func TestMultiNonAtomic(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)

	tx := New(mustGet(t, reg, "EXEC"), ss)
	tx.StartMultiNonAtomic()

	setCid := mustGet(t, reg, "SET")

	var txids []shard.TxId
	for i := 0; i < 3; i++ {
		tx.MultiSwitchCmd(setCid)
		key := fmt.Sprintf("na-key-%d", i)
		if status := tx.InitByArgs(0, []string{"SET", key, "v"}); status != OpOK {
			t.Fatalf("InitByArgs failed: %s", status)
		}
		if status := tx.ScheduleSingleHop(setCb); status != OpOK {
			t.Fatalf("sub-command failed: %s", status)
		}
		txids = append(txids, tx.Txid())
	}

	tx.UnlockMulti() // non-atomic: a no-op

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("na-key-%d", i)
		if _, ok := getValue(ss, key); !ok {
			t.Errorf("key %s not written", key)
		}
	}
	assertNoLocks(t, ss)

	// Uncontested single-key sub-commands run as quickies (txid 0); the
	// point is that no id leaks from one sub-command to the next.
	for _, id := range txids {
		if id != 0 {
			t.Errorf("uncontested non-atomic sub-command should be a quickie, got txid %d", id)
		}
	}
}

// TestMultiLockIncremental covers the incremental locking mode: keys are
// accumulated per sub-command, locked inside the sub-command's hop and
// drained by UnlockMulti.
func TestMultiLockIncremental(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)
	keys := keysOnDistinctShards(t, ss, 2)

	shards := make([]bool, ss.Size())
	for _, key := range keys {
		shards[shard.ShardOf(key, ss.Size())] = true
	}

	tx := New(mustGet(t, reg, "EXEC"), ss)
	tx.StartMultiLockedIncr(0, shards)

	if tx.Txid() == 0 {
		t.Fatal("incremental multi must be scheduled")
	}
	if tx.IsOOO() {
		t.Error("incremental multis must not run out of order")
	}

	setCid := mustGet(t, reg, "SET")
	for i, key := range keys {
		tx.MultiSwitchCmd(setCid)
		if status := tx.InitByArgs(0, []string{"SET", key, fmt.Sprintf("%d", i+1)}); status != OpOK {
			t.Fatalf("InitByArgs failed: %s", status)
		}
		if status := tx.ScheduleSingleHop(setCb); status != OpOK {
			t.Fatalf("sub-command failed: %s", status)
		}
	}

	// The sub-commands' keys are locked until the multi is unlocked.
	var locked atomic.Int32
	ss.RunBriefInParallel(func(es *shard.EngineShard) {
		locked.Add(int32(es.KeyLocks().NumLocked()))
	}, nil)
	if locked.Load() != 2 {
		t.Errorf("expected 2 locked keys before UnlockMulti, got %d", locked.Load())
	}

	tx.UnlockMulti()

	for i, key := range keys {
		if val, ok := getValue(ss, key); !ok || string(val) != fmt.Sprintf("%d", i+1) {
			t.Errorf("key %s holds %q (ok=%v)", key, val, ok)
		}
	}
	assertNoLocks(t, ss)
}

// TestMultiGlobal covers the global multi mode: intent locks on every
// shard, released by UnlockMulti.
func TestMultiGlobal(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)

	tx := New(mustGet(t, reg, "EXEC"), ss)
	tx.StartMultiGlobal(0)

	// Every shard must hold an exclusive intent now.
	var free atomic.Int32
	ss.RunBriefInParallel(func(es *shard.EngineShard) {
		if es.ShardLock().IsFree() {
			free.Add(1)
		}
	}, nil)
	if free.Load() != 0 {
		t.Errorf("%d shards unlocked during a global multi", free.Load())
	}

	setCid := mustGet(t, reg, "SET")
	tx.MultiSwitchCmd(setCid)
	if status := tx.InitByArgs(0, []string{"SET", "gm-key", "v"}); status != OpOK {
		t.Fatalf("InitByArgs failed: %s", status)
	}
	if status := tx.ScheduleSingleHop(setCb); status != OpOK {
		t.Fatalf("sub-command failed: %s", status)
	}

	tx.UnlockMulti()

	if _, ok := getValue(ss, "gm-key"); !ok {
		t.Error("global multi write lost")
	}
	assertNoLocks(t, ss)
}

// --------------------------------------------------------------------------
// Global transactions
// --------------------------------------------------------------------------

// TestGlobalFlush covers a GLOBAL_TRANS command under load: exclusive
// intent on every shard, all stores mutated, everything released.
func TestGlobalFlush(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)

	// Populate all shards
	for i := 0; i < 32; i++ {
		tx := New(mustGet(t, reg, "SET"), ss)
		key := fmt.Sprintf("flush-key-%d", i)
		if status := tx.InitByArgs(0, []string{"SET", key, "v"}); status != OpOK {
			t.Fatalf("InitByArgs failed: %s", status)
		}
		if status := tx.ScheduleSingleHop(setCb); status != OpOK {
			t.Fatalf("hop failed: %s", status)
		}
	}

	tx := New(mustGet(t, reg, "FLUSHDB"), ss)
	if status := tx.InitByArgs(0, []string{"FLUSHDB"}); status != OpOK {
		t.Fatalf("InitByArgs failed: %s", status)
	}
	if !tx.IsGlobal() {
		t.Fatal("FLUSHDB should take the global path")
	}

	var runs atomic.Int32
	status := tx.ScheduleSingleHop(func(tx *Transaction, es *shard.EngineShard) OpStatus {
		runs.Add(1)
		es.Store(tx.DbIndex()).Flush()
		return OpOK
	})
	if status != OpOK {
		t.Fatalf("global hop failed: %s", status)
	}
	if runs.Load() != int32(ss.Size()) {
		t.Errorf("global callback ran on %d shards, expected %d", runs.Load(), ss.Size())
	}

	var entries atomic.Int32
	ss.RunBriefInParallel(func(es *shard.EngineShard) {
		entries.Add(int32(es.Store(0).Len()))
	}, nil)
	if entries.Load() != 0 {
		t.Errorf("%d entries survived the flush", entries.Load())
	}
	assertNoLocks(t, ss)
}

// --------------------------------------------------------------------------
// Error handling
// --------------------------------------------------------------------------

// TestOutOfMemoryCapture verifies that an allocation failure inside a
// callback is captured per shard and surfaced after the barrier instead of
// aborting the hop.
func TestOutOfMemoryCapture(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)
	keys := keysOnDistinctShards(t, ss, 2)
	failOn := shard.ShardOf(keys[0], ss.Size())

	tx := New(mustGet(t, reg, "MSET"), ss)
	args := []string{"MSET", keys[0], "x", keys[1], "y"}
	if status := tx.InitByArgs(0, args); status != OpOK {
		t.Fatalf("InitByArgs failed: %s", status)
	}

	status := tx.ScheduleSingleHop(func(tx *Transaction, es *shard.EngineShard) OpStatus {
		if es.ShardId() == failOn {
			return OpOutOfMemory
		}
		return msetCb(tx, es)
	})

	if status != OpOutOfMemory {
		t.Errorf("expected OUT_OF_MEMORY, got %s", status)
	}
	assertNoLocks(t, ss)
}

// TestOutOfMemoryPanicMapped verifies the sentinel panic is mapped to a
// status instead of unwinding across the shard boundary.
func TestOutOfMemoryPanicMapped(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)

	tx := New(mustGet(t, reg, "SET"), ss)
	if status := tx.InitByArgs(0, []string{"SET", "oom-key", "v"}); status != OpOK {
		t.Fatalf("InitByArgs failed: %s", status)
	}

	status := tx.ScheduleSingleHop(func(*Transaction, *shard.EngineShard) OpStatus {
		panic(OutOfMemoryError{})
	})

	if status != OpOutOfMemory {
		t.Errorf("expected OUT_OF_MEMORY, got %s", status)
	}
	assertNoLocks(t, ss)
}

// TestInitByArgsErrors verifies init failures surface before scheduling.
func TestInitByArgsErrors(t *testing.T) {
	ss, reg := newTestSet(t, 4, nil)

	tx := New(mustGet(t, reg, "ZUNIONSTORE"), ss)
	if status := tx.InitByArgs(0, []string{"ZUNIONSTORE", "dest", "x", "a"}); status != OpInvalidInt {
		t.Errorf("expected INVALID_INT, got %s", status)
	}

	tx = New(mustGet(t, reg, "ZUNIONSTORE"), ss)
	if status := tx.InitByArgs(0, []string{"ZUNIONSTORE", "dest"}); status != OpSyntaxErr {
		t.Errorf("expected SYNTAX_ERR, got %s", status)
	}

	if tx.Txid() != 0 {
		t.Error("failed init must not schedule")
	}
}
