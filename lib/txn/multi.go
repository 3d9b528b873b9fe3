package txn

import (
	"github.com/ValentinKolb/sKV/lib/shard"
)

// multiMode selects how a multi-command transaction acquires its locks.
type multiMode uint8

const (
	// multiNotDetermined is the mode before Start-time resolution.
	multiNotDetermined multiMode = iota
	// multiGlobal locks every shard exclusively up front; no per-key locks.
	multiGlobal
	// multiLockAhead locks all keys once, at MULTI/EVAL time.
	multiLockAhead
	// multiLockIncremental accumulates key locks across sub-commands.
	multiLockIncremental
	// multiNonAtomic runs every sub-command as if standalone.
	multiNonAtomic
)

// lockCounts tracks outstanding holds per lock mode for one key.
type lockCounts [2]uint32

// KeyLockList is the per-shard drain list built by UnlockMulti: every locked
// key together with its outstanding hold counts.
type KeyLockList []struct {
	Key    string
	Counts lockCounts
}

// multiData carries the state of a MULTI/EXEC or EVAL transaction.
type multiData struct {
	mode multiMode

	// keys accumulates locked keys of the currently scheduled sub-command
	// (incremental mode only); addLocks folds them into lockCounts.
	keys []string

	// lockCounts is the outstanding hold count per key per lock mode.
	lockCounts map[string]lockCounts

	// locksRecorded is set once keys were collected, so EVAL sub-commands do
	// not re-record what the EVAL call itself already locked.
	locksRecorded bool

	// shardJournalWrite marks the shards that journaled a write during this
	// multi; UnlockMulti closes only those with an EXEC record.
	shardJournalWrite []bool
}

func (m *multiData) isIncrLocks() bool {
	return m.mode == multiLockIncremental
}

// addLocks folds the accumulated keys into the outstanding lock counts.
func (m *multiData) addLocks(mode shard.LockMode) {
	if m.lockCounts == nil {
		m.lockCounts = make(map[string]lockCounts)
	}
	for _, key := range m.keys {
		counts := m.lockCounts[key]
		counts[mode]++
		m.lockCounts[key] = counts
	}
	m.keys = m.keys[:0]
}
