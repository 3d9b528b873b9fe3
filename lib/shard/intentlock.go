package shard

import "fmt"

// --------------------------------------------------------------------------
// Lock Modes
// --------------------------------------------------------------------------

// LockMode selects shared or exclusive intent.
type LockMode int

const (
	LockShared    LockMode = 0
	LockExclusive LockMode = 1
)

func (m LockMode) String() string {
	if m == LockShared {
		return "shared"
	}
	return "exclusive"
}

// --------------------------------------------------------------------------
// IntentLock
// --------------------------------------------------------------------------

// IntentLock is a counter pair guarding either a whole shard (the shard
// intent lock taken by global transactions) or a single key inside the
// key-lock table. Acquire never blocks: it bumps a counter and reports
// whether the lock was free of conflicting intents at that moment. Ordering
// is enforced one layer up by the TxQueue, not by the lock itself.
//
// Thread-safety: not safe for concurrent use; every IntentLock is owned by
// one shard and touched only from that shard's goroutine.
type IntentLock struct {
	cnt [2]uint32
}

// Check reports whether the given mode could be granted without contention:
// shared intent is blocked only by exclusive holders, exclusive intent by any
// holder.
func (l *IntentLock) Check(mode LockMode) bool {
	if l.cnt[LockExclusive] > 0 {
		return false
	}
	if mode == LockExclusive && l.cnt[LockShared] > 0 {
		return false
	}
	return true
}

// Acquire bumps the holder count for the mode. It returns true when the lock
// was uncontested before this acquisition.
func (l *IntentLock) Acquire(mode LockMode) bool {
	granted := l.Check(mode)
	l.cnt[mode]++
	return granted
}

// Release drops one holder of the mode.
func (l *IntentLock) Release(mode LockMode) {
	l.ReleaseCount(mode, 1)
}

// ReleaseCount drops count holders of the mode. Releasing more holders than
// acquired is a bug in the caller and panics.
func (l *IntentLock) ReleaseCount(mode LockMode, count uint32) {
	if l.cnt[mode] < count {
		panic(fmt.Sprintf("intent lock underflow: mode=%s have=%d release=%d", mode, l.cnt[mode], count))
	}
	l.cnt[mode] -= count
}

// IsFree reports whether no holder of either mode remains.
func (l *IntentLock) IsFree() bool {
	return l.cnt[LockShared] == 0 && l.cnt[LockExclusive] == 0
}
