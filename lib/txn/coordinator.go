package txn

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/sKV/lib/command"
	"github.com/ValentinKolb/sKV/lib/journal"
	"github.com/ValentinKolb/sKV/lib/shard"
	"github.com/VictoriaMetrics/metrics"
)

var (
	scheduleRetries = metrics.GetOrCreateCounter(`skv_txn_schedule_retries_total`)
	oooScheduled    = metrics.GetOrCreateCounter(`skv_txn_ooo_scheduled_total`)
	blockingWakeups = metrics.GetOrCreateCounter(`skv_txn_blocking_wakeups_total`)
)

// --------------------------------------------------------------------------
// Scheduling
// --------------------------------------------------------------------------

// Schedule registers the transaction in the queue of every active shard.
// Atomic multi transactions scheduled in advance (by StartMulti*) skip the
// scheduling dance; incremental-lock multis record their fresh keys first.
func (t *Transaction) Schedule() {
	if t.multi != nil && t.multi.isIncrLocks() {
		t.multi.addLocks(t.Mode())
	}

	if !t.IsAtomicMulti() {
		t.scheduleInternal()
	}
}

// scheduleInternal loops until the transaction is registered on every active
// shard. Each round draws a fresh, larger txid; since the new id is strictly
// greater than any committed head, some round eventually succeeds on every
// shard, which rules out livelock.
func (t *Transaction) scheduleInternal() {
	if len(t.shardData) == 0 || t.txid != 0 {
		log.Panicf("%s: invalid scheduling state", t.DebugId())
	}

	spanAll := t.IsGlobal()
	mode := t.Mode()

	var numShards uint32
	var isActive func(sid shard.ShardId) bool

	if spanAll {
		numShards = t.ss.Size()
		isActive = func(shard.ShardId) bool { return true }

		// Global transactions take the intent lock of every shard up front.
		t.ss.RunBriefInParallel(func(es *shard.EngineShard) {
			es.ShardLock().Acquire(mode)
		}, nil)
	} else {
		numShards = t.uniqueShardCnt
		isActive = t.IsActive
	}

	for {
		t.txid = opSeq.Add(1)

		var successCnt, lockGrantedCnt atomic.Uint32

		t.ss.RunBriefInParallel(func(es *shard.EngineShard) {
			success, granted := t.scheduleInShard(es)
			if success {
				successCnt.Add(1)
			}
			if granted {
				lockGrantedCnt.Add(1)
			}
		}, isActive)

		oooDisabled := t.IsGlobal() || (t.IsAtomicMulti() && t.multi.mode != multiLockAhead)

		if successCnt.Load() == numShards {
			t.setCoordFlag(coordSched)

			// All locks granted uncontested: the shards may run this
			// transaction ahead of its queue position.
			if !oooDisabled && lockGrantedCnt.Load() == numShards {
				t.setCoordFlag(coordOOO)
				oooScheduled.Inc()
			}

			log.Debugf("scheduled %s ooo=%v shards=%d", t.DebugId(), t.IsOOO(), numShards)
			break
		}

		log.Debugf("cancelling %s", t.DebugId())
		scheduleRetries.Inc()

		var shouldPoll atomic.Bool
		t.ss.RunBriefInParallel(func(es *shard.EngineShard) {
			if t.cancelShardCb(es) {
				shouldPoll.Store(true)
			}
		}, isActive)

		// A removed queue head may unblock a successor that is already
		// armed and would otherwise never be polled again. The poll runs
		// via the shard queue because PollExecution may run transactions.
		if shouldPoll.Load() {
			for i := uint32(0); i < t.ss.Size(); i++ {
				if !isActive(i) {
					continue
				}
				t.ss.Add(i, func(es *shard.EngineShard) {
					es.PollExecution("cancel-cleanup", nil)
				})
			}
		}

		t.txid = 0
	}

	if t.IsOOO() {
		t.iterateActiveShards(func(sd *perShardData, _ shard.ShardId) {
			sd.localMask |= maskOutOfOrder
		})
	}
}

// scheduleInShard registers the transaction on one shard. Runs on the shard
// goroutine via RunBriefInParallel and must not block. Returns (success,
// lock granted).
func (t *Transaction) scheduleInShard(es *shard.EngineShard) (bool, bool) {
	// A later scheduling generation has already committed on this shard;
	// this round must retry with a fresh id.
	if es.CommittedTxid() >= t.txid {
		return false, false
	}

	sd := &t.shardData[t.sidToIdx(es.ShardId())]
	mode := t.Mode()
	lockGranted := false

	if !t.IsGlobal() {
		shardUnlocked := es.ShardLock().Check(mode)
		largs := t.lockArgs(es.ShardId())

		// The key locks are acquired regardless of the shard lock state:
		// every transaction in the queue must hold its key intents.
		acquired := es.KeyLocks().Acquire(mode, largs)
		sd.localMask |= maskKeylockAcquired
		lockGranted = acquired && shardUnlocked

		log.Debugf("lock granted %v for %s", lockGranted, t.DebugId())
	}

	txq := es.Txq()
	if !txq.Empty() {
		// Reordering the queue (inserting before its tail) is only safe when
		// our locks are free: a queued transaction with conflicting keys may
		// already have run out of order. The tail check is intentionally
		// conservative; see the design notes.
		toProceed := lockGranted || txq.TailScore() < t.txid
		if !toProceed {
			if sd.localMask&maskKeylockAcquired != 0 { // roll back the lock
				es.KeyLocks().Release(mode, t.lockArgs(es.ShardId()))
				sd.localMask &^= maskKeylockAcquired
			}
			return false, false
		}
	}

	sd.pqPos = txq.Insert(t)

	log.Debugf("insert into txq sid=%d %s qlen=%d", es.ShardId(), t.DebugId(), txq.Len())

	return true, lockGranted
}

// cancelShardCb rolls one shard's registration back after a failed
// scheduling round. Returns true when the removed entry was the queue head
// and a successor remains (the caller must nudge PollExecution).
func (t *Transaction) cancelShardCb(es *shard.EngineShard) bool {
	sd := &t.shardData[t.sidToIdx(es.ShardId())]

	pos := sd.pqPos
	if pos == shard.TxQueueEnd {
		return false
	}
	sd.pqPos = shard.TxQueueEnd

	txq := es.Txq()
	wasHead := txq.HeadScore() == pos
	if trans, ok := txq.At(pos); !ok || trans != shard.TxHandle(t) {
		log.Panicf("%s: queue position %d does not hold this transaction", t.DebugId(), pos)
	}
	txq.Remove(pos)

	if sd.localMask&maskKeylockAcquired != 0 {
		es.KeyLocks().Release(t.Mode(), t.lockArgs(es.ShardId()))
		sd.localMask &^= maskKeylockAcquired
	}

	return wasHead && !txq.Empty()
}

// --------------------------------------------------------------------------
// Execution
// --------------------------------------------------------------------------

// waitForShardCallbacks blocks the coordinator until every armed shard
// finished the hop.
func (t *Transaction) waitForShardCallbacks() {
	t.runEC.Await(func() bool {
		return t.runCount.Load() == 0
	})
}

// ScheduleSingleHop is the optimized schedule-and-execute path for the
// common case of single-hop transactions (set/mset/mget style). Single-shard
// transactions outside an atomic multi skip the scheduling dance entirely
// and try the uncontended quickie path on their target shard.
func (t *Transaction) ScheduleSingleHop(cb RunnableFunc) OpStatus {
	if t.cb != nil {
		log.Panicf("%s: callback already set", t.DebugId())
	}
	t.cb = cb

	t.setCoordFlag(coordExec | coordExecConcluding) // single hop concludes

	wasOOO := false

	scheduleFast := t.uniqueShardCnt == 1 && !t.IsGlobal() && !t.IsAtomicMulti()
	if scheduleFast {
		// Arm before dispatch; the run-count store publishes it.
		t.shardData[t.sidToIdx(t.uniqueShardID)].isArmed.Store(true)
		t.runCount.Store(1)

		// wasOOO is written before decreaseRunCnt and read after the
		// barrier, so the coordinator observes it safely.
		t.ss.Add(t.uniqueShardID, func(es *shard.EngineShard) {
			if t.scheduleUniqueShard(es) {
				wasOOO = true
				t.decreaseRunCnt()
			}
		})
	} else {
		// Spans multiple shards and/or is a multi: full scheduling.
		if !t.IsAtomicMulti() { // multi scheduled in advance
			t.scheduleInternal()
		}
		if t.multi != nil && t.multi.isIncrLocks() {
			t.multi.addLocks(t.Mode())
		}
		t.executeAsync()
	}

	log.Debugf("ScheduleSingleHop before wait %s", t.DebugId())
	t.waitForShardCallbacks()
	log.Debugf("ScheduleSingleHop after wait %s", t.DebugId())

	if wasOOO {
		t.setCoordFlag(coordOOO)
	}

	t.cb = nil
	return t.localResult
}

// scheduleUniqueShard runs on the target shard goroutine and tries the
// uncontended fast path. Returns true if the transaction executed eagerly
// (quickie), false if it was scheduled into the queue.
func (t *Transaction) scheduleUniqueShard(es *shard.EngineShard) bool {
	if t.IsAtomicMulti() || t.txid != 0 {
		log.Panicf("%s: invalid state for unique-shard scheduling", t.DebugId())
	}

	mode := t.Mode()
	largs := t.lockArgs(es.ShardId())
	sd := &t.shardData[t.sidToIdx(t.uniqueShardID)]

	// Fast path: uncontested keys on an unlocked shard run inline.
	if es.KeyLocks().Check(mode, largs) && es.ShardLock().Check(mode) {
		t.runQuickie(es)
		return true
	}

	// Contended: allocate an id, lock the keys and line up in the queue.
	t.txid = opSeq.Add(1)
	sd.pqPos = es.Txq().Insert(t)

	es.KeyLocks().Acquire(mode, largs)
	sd.localMask |= maskKeylockAcquired

	log.Debugf("rescheduling into txq %s", t.DebugId())

	es.PollExecution("schedule-unique", nil)

	return false
}

// Execute runs one hop on every active shard and waits for the barrier.
// conclude marks the hop as the transaction's last: locks are released and
// the journal written when it finishes.
func (t *Transaction) Execute(cb RunnableFunc, conclude bool) OpStatus {
	if !t.hasCoordFlag(coordSched) {
		log.Panicf("%s: Execute before Schedule", t.DebugId())
	}

	t.cb = cb
	t.setCoordFlag(coordExec)
	if conclude {
		t.setCoordFlag(coordExecConcluding)
	} else {
		t.clearCoordFlag(coordExecConcluding)
	}

	t.executeAsync()

	log.Debugf("wait on exec %s", t.DebugId())
	t.waitForShardCallbacks()
	log.Debugf("wait on exec %s completed", t.DebugId())

	t.cb = nil
	return t.localResult
}

// executeAsync arms every active shard and dispatches the poll callback.
// This is the arm half of the arm-barrier-drain pattern.
func (t *Transaction) executeAsync() {
	if t.uniqueShardCnt == 0 {
		log.Panicf("%s: executeAsync without active shards", t.DebugId())
	}

	// Shards may outlive this hop's barrier with their callbacks still
	// queued; each callback owns one reference.
	t.useCount.Add(int32(t.uniqueShardCnt))

	t.iterateActiveShards(func(sd *perShardData, _ shard.ShardId) {
		sd.isArmed.Store(true)
	})

	// Bump the generation before publishing: a straggler callback of the
	// previous hop observes a changed seqlock and skips its work. This
	// protects hops against the compressed single-slot layout of the next
	// sub-command (the slot may mean a different shard by then).
	seq := t.seqlock.Add(1)

	// The store below publishes is_armed, the seqlock and every preceding
	// write to the shard goroutines (the release half of the barrier).
	t.runCount.Store(t.uniqueShardCnt)

	cb := func(es *shard.EngineShard) {
		// is_armed must be checked first: only a true result guarantees the
		// coordinator crossed the run-count store and our seqlock read below
		// is meaningful.
		if t.IsArmedInShard(es.ShardId()) {
			if t.seqlock.Load() == seq {
				// PollExecution does not necessarily run this transaction;
				// everything tied to the callback execution itself lives in
				// RunInShard.
				es.PollExecution("exec-cb", t)
			} else {
				log.Debugf("skipping stale exec callback %s sid=%d", t.DebugId(), es.ShardId())
			}
		}
		t.DecRef() // against the useCount bump above
	}

	t.iterateActiveShards(func(_ *perShardData, sid shard.ShardId) {
		t.ss.Add(sid, cb)
	})
}

// --------------------------------------------------------------------------
// Blocking Waits
// --------------------------------------------------------------------------

// WaitOnWatch suspends the transaction until a writer touches one of the
// watched keys, the deadline elapses or the coordinator shuts down. The
// watch hop concludes the current operation but keeps the key locks, so
// successors on those keys order through the TxQueue. Returns true when
// woken by a writer, false on timeout or cancellation.
func (t *Transaction) WaitOnWatch(deadline time.Time, provider WaitKeysProvider) bool {
	log.Debugf("WaitOnWatch %s", t.DebugId())

	t.Execute(func(t *Transaction, es *shard.EngineShard) OpStatus {
		return t.watchInShard(provider(t, es), es)
	}, true)

	t.setCoordFlag(coordBlocked)

	wakeCond := func() bool {
		return t.hasCoordFlag(coordCancelled) ||
			t.notifyTxid.Load() != math.MaxUint64
	}

	timedOut := !t.blockingEC.AwaitUntil(wakeCond, deadline)

	isExpired := t.hasCoordFlag(coordCancelled) || timedOut
	t.unwatchBlocking(isExpired, provider)
	t.clearCoordFlag(coordBlocked)

	if !isExpired {
		blockingWakeups.Inc()
	}
	return !isExpired
}

// watchInShard registers the transaction with the shard's blocking
// controller. Runs in the shard goroutine.
func (t *Transaction) watchInShard(keys []string, es *shard.EngineShard) OpStatus {
	sd := &t.shardData[t.sidToIdx(es.ShardId())]
	if sd.localMask&maskSuspendedQ != 0 {
		log.Panicf("%s: double watch on shard %d", t.DebugId(), es.ShardId())
	}

	bc := es.EnsureBlockingController()
	bc.AddWatched(keys, t.dbIndex, t)

	sd.localMask |= maskSuspendedQ
	log.Debugf("AddWatched %s mask=%d first_key=%s", t.DebugId(), sd.localMask, keys[0])

	return OpOK
}

// unwatchBlocking removes the transaction from the watch queues of every
// active shard. With shouldExpire it also releases the kept key locks (the
// timeout/cancel path); after a wakeup the locks stay until the concluding
// hop.
func (t *Transaction) unwatchBlocking(shouldExpire bool, provider WaitKeysProvider) {
	log.Debugf("UnwatchBlocking %s expire=%v", t.DebugId(), shouldExpire)
	if t.IsGlobal() {
		log.Panicf("%s: global transactions cannot block", t.DebugId())
	}

	t.runCount.Store(t.uniqueShardCnt)

	expireCb := func(es *shard.EngineShard) {
		wkeys := provider(t, es)
		t.unwatchShardCb(wkeys, shouldExpire, es)
	}

	t.iterateActiveShards(func(_ *perShardData, sid shard.ShardId) {
		t.ss.Add(sid, expireCb)
	})

	// Wait for all callbacks to conclude.
	t.waitForShardCallbacks()
	log.Debugf("UnwatchBlocking finished %s", t.DebugId())
}

// unwatchShardCb finalizes one shard's watch state. Runs in the shard
// goroutine.
func (t *Transaction) unwatchShardCb(wkeys []string, shouldExpire bool, es *shard.EngineShard) {
	if shouldExpire {
		sd := &t.shardData[t.sidToIdx(es.ShardId())]

		if sd.localMask&maskKeylockAcquired != 0 {
			es.KeyLocks().Release(t.Mode(), t.lockArgs(es.ShardId()))
			sd.localMask &^= maskKeylockAcquired
		}
		sd.localMask |= maskExpiredQ
		sd.localMask &^= maskSuspendedQ | maskAwakedQ

		bc := es.EnsureBlockingController()
		bc.FinalizeWatched(wkeys, t.dbIndex, t)
		bc.NotifyPending()
	}

	// Trigger stalled transactions: this shard may have awakened us and
	// halted its queue while doing so.
	es.PollExecution("unwatch-cb", nil)

	t.decreaseRunCnt()
}

// NotifySuspended transitions the transaction from suspended to awaked on
// the given shard, at most once. The CAS loop lowers notifyTxid so the
// earliest wakeup wins; the event count provides the release edge. Runs only
// in the shard goroutine.
func (t *Transaction) NotifySuspended(committedTxid shard.TxId, sid shard.ShardId) bool {
	sd := &t.shardData[t.sidToIdx(sid)]
	mask := sd.localMask

	if mask&maskExpiredQ != 0 {
		return false
	}

	log.Debugf("NotifySuspended %s mask=%d by committed id %d", t.DebugId(), mask, committedTxid)

	// Not suspended anymore means the transaction was already awakened, by
	// another key or by the same key multiple times.
	if mask&maskSuspendedQ != 0 {
		sd.localMask &^= maskSuspendedQ
		sd.localMask |= maskAwakedQ

		notifyId := t.notifyTxid.Load()
		for committedTxid < notifyId {
			if t.notifyTxid.CompareAndSwap(notifyId, committedTxid) {
				t.blockingEC.Notify()
				break
			}
			notifyId = t.notifyTxid.Load()
		}
		return true
	}

	if mask&maskAwakedQ == 0 {
		log.Panicf("%s: notify on shard %d without watch state", t.DebugId(), sid)
	}
	return false
}

// BreakOnShutdown cancels a blocked transaction. Safe to call from any
// goroutine.
func (t *Transaction) BreakOnShutdown() {
	if t.hasCoordFlag(coordBlocked) {
		t.setCoordFlag(coordCancelled)
		t.blockingEC.Notify()
	}
}

// --------------------------------------------------------------------------
// Multi-Command Lifecycle
// --------------------------------------------------------------------------

// StartMultiGlobal starts a multi that locks every shard exclusively.
func (t *Transaction) StartMultiGlobal(dbIndex shard.DbIndex) {
	t.checkMultiStart()

	t.multi.mode = multiGlobal
	t.initBase(dbIndex, nil)
	t.initGlobal()
	t.multi.locksRecorded = true

	t.scheduleInternal()
}

// StartMultiLockedAhead starts a multi whose full key set is known up
// front; it goes through the normal key-based initialization and schedules
// once.
func (t *Transaction) StartMultiLockedAhead(dbIndex shard.DbIndex, keys []string) {
	t.checkMultiStart()

	t.multi.mode = multiLockAhead
	t.initBase(dbIndex, keys)
	t.initByKeys(KeyIndexRange(0, len(keys)))

	t.scheduleInternal()
}

// StartMultiLockedIncr starts a multi that accumulates key locks across
// sub-commands. shards marks the shards that will participate.
func (t *Transaction) StartMultiLockedIncr(dbIndex shard.DbIndex, shards []bool) {
	t.checkMultiStart()

	anyActive := false
	for _, s := range shards {
		anyActive = anyActive || s
	}
	if !anyActive {
		log.Panicf("%s: incremental multi without shards", t.DebugId())
	}

	t.multi.mode = multiLockIncremental
	t.initBase(dbIndex, nil)

	ts := borrowTmpSpace()
	defer returnTmpSpace(ts)

	shardIndex := ts.getShardIndex(int(t.ss.Size()))
	for i := range shards {
		shardIndex[i].requestedActive = shards[i]
	}

	t.shardData = make([]perShardData, len(shardIndex))
	for i := range t.shardData {
		t.shardData[i] = newPerShardData()
	}
	t.initShardData(shardIndex, 0, false)

	t.scheduleInternal()
}

// StartMultiNonAtomic starts a multi without cross-command isolation.
func (t *Transaction) StartMultiNonAtomic() {
	if t.multi == nil {
		log.Panicf("%s: not a multi transaction", t.DebugId())
	}
	t.multi.mode = multiNonAtomic
}

func (t *Transaction) checkMultiStart() {
	if t.multi == nil {
		log.Panicf("%s: not a multi transaction", t.DebugId())
	}
	if len(t.shardData) != 0 {
		log.Panicf("%s: multi started after initialization", t.DebugId())
	}
}

// MultiSwitchCmd rebinds the transaction to the next sub-command of the
// batch, clearing the argument state of the previous one. Non-atomic multis
// also reset the txid so the next sub-command schedules independently.
func (t *Transaction) MultiSwitchCmd(cid *command.CommandId) {
	if t.multi == nil {
		log.Panicf("%s: not a multi transaction", t.DebugId())
	}
	if t.cb != nil {
		log.Panicf("%s: switch while a hop is in flight", t.DebugId())
	}

	t.uniqueShardID = 0
	t.uniqueShardCnt = 0
	t.args = nil
	t.reverseIndex = nil
	t.cid = cid

	if t.multi.mode == multiNonAtomic {
		for i := range t.shardData {
			sd := &t.shardData[i]
			sd.localMask = 0
			sd.view = argsView{}
			sd.pqPos = shard.TxQueueEnd
			if sd.isArmed.Load() {
				log.Panicf("%s: armed shard during command switch", t.DebugId())
			}
		}
		t.txid = 0
		t.coordState.Store(0)
	}
}

// UnlockMulti releases every lock an atomic multi accumulated. It arms all
// shards, not only previously active ones: a lock-ahead or incremental multi
// may have touched any shard. Shards that journaled writes close their
// journal with an EXEC record.
func (t *Transaction) UnlockMulti() {
	log.Debugf("UnlockMulti %s", t.DebugId())
	if t.multi == nil {
		log.Panicf("%s: not a multi transaction", t.DebugId())
	}

	if t.multi.mode == multiNonAtomic {
		return
	}

	// Drain the lock ledger into per-shard key lists.
	shardedKeys := make([]KeyLockList, t.ss.Size())
	for key, counts := range t.multi.lockCounts {
		sid := shard.ShardOf(key, t.ss.Size())
		shardedKeys[sid] = append(shardedKeys[sid], struct {
			Key    string
			Counts lockCounts
		}{key, counts})
	}
	t.multi.lockCounts = nil

	shardJournalCnt := t.calcMultiNumOfShardJournals()

	if prev := t.runCount.Swap(uint32(len(t.shardData))); prev != 0 {
		log.Panicf("%s: UnlockMulti with pending hop", t.DebugId())
	}
	t.useCount.Add(int32(len(t.shardData)))

	for i := range t.shardData {
		sid := shard.ShardId(i)
		t.ss.Add(sid, func(es *shard.EngineShard) {
			t.unlockMultiShardCb(shardedKeys, es, shardJournalCnt)
			t.DecRef()
		})
	}

	t.waitForShardCallbacks()
	log.Debugf("UnlockMultiEnd %s", t.DebugId())
}

// calcMultiNumOfShardJournals counts the shards that journaled a write
// during the multi.
func (t *Transaction) calcMultiNumOfShardJournals() uint32 {
	var cnt uint32
	for _, wasWrite := range t.multi.shardJournalWrite {
		if wasWrite {
			cnt++
		}
	}
	return cnt
}

// unlockMultiShardCb releases one shard's accumulated locks. Runs in the
// shard goroutine.
func (t *Transaction) unlockMultiShardCb(shardedKeys []KeyLockList, es *shard.EngineShard, shardJournalCnt uint32) {
	sid := es.ShardId()

	// A shard that journaled writes during the multi closes the batch.
	if t.multi.shardJournalWrite[sid] {
		es.Journal().RecordEntry(t.txid, journal.OpExec, t.dbIndex, shardJournalCnt, nil, true)
	}

	if t.multi.mode == multiGlobal {
		es.ShardLock().Release(shard.LockExclusive)
	} else {
		for _, kc := range shardedKeys[sid] {
			if kc.Counts[shard.LockShared] > 0 {
				es.KeyLocks().ReleaseCount(shard.LockShared, t.dbIndex, kc.Key, kc.Counts[shard.LockShared])
			}
			if kc.Counts[shard.LockExclusive] > 0 {
				es.KeyLocks().ReleaseCount(shard.LockExclusive, t.dbIndex, kc.Key, kc.Counts[shard.LockExclusive])
			}
		}
	}

	// Not every shard of a multi executes a hop, so the transaction may
	// still sit in the queue (not necessarily at the front). Clean it up.
	sd := &t.shardData[t.sidToIdx(sid)]
	if sd.pqPos != shard.TxQueueEnd {
		log.Debugf("unlockmulti: removing %s from txq", t.DebugId())
		es.Txq().Remove(sd.pqPos)
		sd.pqPos = shard.TxQueueEnd
	}

	es.RemoveContinuation(t)

	if bc := es.BlockingController(); bc != nil {
		bc.NotifyPending()
	}
	es.PollExecution("unlockmulti", nil)

	t.decreaseRunCnt()
}
