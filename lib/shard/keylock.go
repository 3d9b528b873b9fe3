package shard

// KeyLockTable tracks per-key shared/exclusive intent counters for one
// shard. Acquisition never blocks; it records the intent and reports whether
// it was uncontested, which is what the scheduler uses to grant out-of-order
// execution. Entries whose counters drop to zero are removed, so an idle
// shard has an empty table (the lock-pairing invariant).
//
// Duplicate keys inside one argument slice are counted once per call, so
// Acquire and Release stay symmetric for commands like "MSET k 1 k 2".
//
// Thread-safety: not safe for concurrent use; owned by one engine shard.
type KeyLockTable struct {
	locks map[DbIndex]map[string]*IntentLock
}

// NewKeyLockTable creates an empty key-lock table.
func NewKeyLockTable() *KeyLockTable {
	return &KeyLockTable{
		locks: make(map[DbIndex]map[string]*IntentLock),
	}
}

// table returns the per-database lock map, creating it on demand.
func (kt *KeyLockTable) table(db DbIndex) map[string]*IntentLock {
	t, ok := kt.locks[db]
	if !ok {
		t = make(map[string]*IntentLock)
		kt.locks[db] = t
	}
	return t
}

// uniqueKeys invokes fn once per distinct key of the argument slice.
func uniqueKeys(args KeyLockArgs, fn func(key string)) {
	step := args.KeyStep
	if step < 1 {
		step = 1
	}

	// Single key: no dedup bookkeeping needed
	if len(args.Args) <= step {
		if len(args.Args) > 0 {
			fn(args.Args[0])
		}
		return
	}

	seen := make(map[string]struct{}, len(args.Args)/step)
	args.EachKey(func(key string) {
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		fn(key)
	})
}

// Acquire records intent for every key of the argument slice. It returns
// true when all keys were uncontested before this acquisition.
func (kt *KeyLockTable) Acquire(mode LockMode, args KeyLockArgs) bool {
	t := kt.table(args.DbIndex)

	granted := true
	uniqueKeys(args, func(key string) {
		lock, ok := t[key]
		if !ok {
			lock = &IntentLock{}
			t[key] = lock
		}
		if !lock.Acquire(mode) {
			granted = false
		}
	})
	return granted
}

// Check reports whether every key of the argument slice could be locked in
// the given mode without contention. No intent is recorded.
func (kt *KeyLockTable) Check(mode LockMode, args KeyLockArgs) bool {
	t, ok := kt.locks[args.DbIndex]
	if !ok {
		return true
	}

	free := true
	uniqueKeys(args, func(key string) {
		if lock, exists := t[key]; exists && !lock.Check(mode) {
			free = false
		}
	})
	return free
}

// Release drops one intent holder per distinct key of the argument slice.
func (kt *KeyLockTable) Release(mode LockMode, args KeyLockArgs) {
	uniqueKeys(args, func(key string) {
		kt.ReleaseCount(mode, args.DbIndex, key, 1)
	})
}

// ReleaseCount drops count intent holders of one key, removing the entry
// when it becomes free.
func (kt *KeyLockTable) ReleaseCount(mode LockMode, db DbIndex, key string, count uint32) {
	if count == 0 {
		return
	}

	t, ok := kt.locks[db]
	if !ok {
		panic("key lock release without matching acquire: no table for db index")
	}
	lock, ok := t[key]
	if !ok {
		panic("key lock release without matching acquire: " + key)
	}

	lock.ReleaseCount(mode, count)
	if lock.IsFree() {
		delete(t, key)
	}
}

// IsLocked reports whether any intent is recorded for the key.
func (kt *KeyLockTable) IsLocked(db DbIndex, key string) bool {
	t, ok := kt.locks[db]
	if !ok {
		return false
	}
	_, locked := t[key]
	return locked
}

// NumLocked returns the number of keys with recorded intent across all
// databases. Used by tests to verify the lock-pairing invariant.
func (kt *KeyLockTable) NumLocked() int {
	n := 0
	for _, t := range kt.locks {
		n += len(t)
	}
	return n
}
