package shard

import "testing"

func TestIntentLockSharedSharing(t *testing.T) {
	var l IntentLock

	// Multiple shared holders don't contend with each other
	if !l.Acquire(LockShared) {
		t.Error("First shared acquire should be uncontested")
	}
	if !l.Acquire(LockShared) {
		t.Error("Second shared acquire should be uncontested")
	}

	// Exclusive is blocked by shared holders
	if l.Check(LockExclusive) {
		t.Error("Exclusive check should fail with shared holders")
	}
	if l.Acquire(LockExclusive) {
		t.Error("Exclusive acquire should report contention")
	}

	// Shared is now blocked by the exclusive holder
	if l.Check(LockShared) {
		t.Error("Shared check should fail with an exclusive holder")
	}

	l.Release(LockExclusive)
	l.Release(LockShared)
	l.Release(LockShared)

	if !l.IsFree() {
		t.Error("Lock should be free after all releases")
	}
}

func TestIntentLockExclusive(t *testing.T) {
	var l IntentLock

	if !l.Acquire(LockExclusive) {
		t.Error("First exclusive acquire should be uncontested")
	}
	if l.Acquire(LockExclusive) {
		t.Error("Second exclusive acquire should report contention")
	}

	l.ReleaseCount(LockExclusive, 2)
	if !l.IsFree() {
		t.Error("Lock should be free after ReleaseCount")
	}
}

func TestIntentLockUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Releasing an unheld lock should panic")
		}
	}()

	var l IntentLock
	l.Release(LockShared)
}

func TestKeyLockTableAcquireRelease(t *testing.T) {
	kt := NewKeyLockTable()
	args := KeyLockArgs{DbIndex: 0, KeyStep: 1, Args: []string{"a", "b"}}

	if !kt.Acquire(LockExclusive, args) {
		t.Error("First acquire should be uncontested")
	}
	if kt.NumLocked() != 2 {
		t.Errorf("Expected 2 locked keys, got %d", kt.NumLocked())
	}

	// A second exclusive intent on the same keys is contended but recorded
	if kt.Acquire(LockExclusive, args) {
		t.Error("Second acquire should report contention")
	}

	kt.Release(LockExclusive, args)
	if kt.NumLocked() != 2 {
		t.Errorf("Keys should stay locked while one holder remains, got %d", kt.NumLocked())
	}

	kt.Release(LockExclusive, args)
	if kt.NumLocked() != 0 {
		t.Errorf("Table should be empty after final release, got %d", kt.NumLocked())
	}
}

func TestKeyLockTableStep2(t *testing.T) {
	kt := NewKeyLockTable()

	// MSET-style args: keys at positions 0 and 2
	args := KeyLockArgs{DbIndex: 0, KeyStep: 2, Args: []string{"k1", "v1", "k2", "v2"}}

	kt.Acquire(LockExclusive, args)
	if !kt.IsLocked(0, "k1") || !kt.IsLocked(0, "k2") {
		t.Error("Both keys should be locked")
	}
	if kt.IsLocked(0, "v1") {
		t.Error("Values must not be locked")
	}

	kt.Release(LockExclusive, args)
	if kt.NumLocked() != 0 {
		t.Errorf("Table should be empty, got %d locked keys", kt.NumLocked())
	}
}

func TestKeyLockTableDuplicateKeys(t *testing.T) {
	kt := NewKeyLockTable()

	// Duplicate key in one argument slice is counted once
	args := KeyLockArgs{DbIndex: 0, KeyStep: 2, Args: []string{"k", "1", "k", "2"}}
	kt.Acquire(LockExclusive, args)
	kt.Release(LockExclusive, args)

	if kt.NumLocked() != 0 {
		t.Errorf("Acquire/Release with duplicate keys should be symmetric, %d keys left", kt.NumLocked())
	}
}

func TestKeyLockTableCheck(t *testing.T) {
	kt := NewKeyLockTable()
	argsA := KeyLockArgs{DbIndex: 0, KeyStep: 1, Args: []string{"a"}}
	argsB := KeyLockArgs{DbIndex: 0, KeyStep: 1, Args: []string{"b"}}

	// An empty table is free for everything
	if !kt.Check(LockExclusive, argsA) {
		t.Error("Check on empty table should succeed")
	}

	kt.Acquire(LockShared, argsA)

	if kt.Check(LockExclusive, argsA) {
		t.Error("Exclusive check should fail on a shared-held key")
	}
	if !kt.Check(LockShared, argsA) {
		t.Error("Shared check should succeed on a shared-held key")
	}
	if !kt.Check(LockExclusive, argsB) {
		t.Error("Check on an unrelated key should succeed")
	}

	// Separate db indices have separate lock spaces
	argsOtherDb := KeyLockArgs{DbIndex: 1, KeyStep: 1, Args: []string{"a"}}
	if !kt.Check(LockExclusive, argsOtherDb) {
		t.Error("Check on another db index should succeed")
	}

	kt.Release(LockShared, argsA)
}
