package txn

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/ValentinKolb/sKV/lib/command"
	"github.com/ValentinKolb/sKV/lib/db/util"
	"github.com/ValentinKolb/sKV/lib/journal"
	"github.com/ValentinKolb/sKV/lib/shard"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("txn")

// opSeq is the process-wide transaction id source. Ids are handed out at
// scheduling time and only ever grow, which is what makes the scheduling
// retry loop live-lock free and the whole design deadlock free.
var opSeq atomic.Uint64

// RunnableFunc is the per-hop callback of a transaction. It runs on the
// shard's own goroutine and must not block; recoverable errors are returned
// as OpStatus.
type RunnableFunc func(t *Transaction, es *shard.EngineShard) OpStatus

// WaitKeysProvider yields the keys a blocking transaction watches on the
// given shard.
type WaitKeysProvider func(t *Transaction, es *shard.EngineShard) []string

// --------------------------------------------------------------------------
// Coordinator State
// --------------------------------------------------------------------------

type coordFlag = uint32

const (
	coordSched coordFlag = 1 << iota
	coordExec
	coordExecConcluding
	coordBlocked
	coordCancelled
	coordOOO
)

// --------------------------------------------------------------------------
// Per-Shard Data
// --------------------------------------------------------------------------

// localMask holds the per-shard flags of a transaction. The mask is only
// touched by the owning shard's goroutine or by the coordinator while no
// shard is armed (the arm barrier orders the two).
type localMask = uint16

const (
	// maskActive marks the shard as a participant of the current hop.
	maskActive localMask = 1 << iota
	// maskKeylockAcquired is set exactly while the transaction's keys are
	// held in the shard's key-lock table.
	maskKeylockAcquired
	// maskSuspendedQ marks registration in the shard's blocking controller.
	maskSuspendedQ
	// maskAwakedQ marks a delivered wakeup (mutually exclusive with
	// maskSuspendedQ).
	maskAwakedQ
	// maskExpiredQ marks a timed-out or cancelled blocking transaction;
	// further wakeups are no-ops.
	maskExpiredQ
	// maskOutOfOrder allows execution ahead of the queue position on this
	// shard (all locks were granted uncontested).
	maskOutOfOrder
)

// argsView locates a shard's argument slice inside the transaction's
// flat argument vector. The whole variant is used after single-shard
// compression, where the vector holds exactly this shard's arguments.
type argsView struct {
	whole bool
	start int
	count int
}

// perShardData is the per-transaction-per-shard scratch.
type perShardData struct {
	localMask localMask
	view      argsView

	// pqPos is the TxQueue position on this shard, TxQueueEnd when absent.
	pqPos shard.TxId

	// isArmed is published by the run-count barrier: the coordinator sets it
	// before storing run_count, shards read it afterwards.
	isArmed atomic.Bool
}

func newPerShardData() perShardData {
	return perShardData{pqPos: shard.TxQueueEnd}
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// Transaction carries one command (or one multi-command batch) across the
// shards it touches. The coordinator goroutine builds, schedules and arms
// it; the shard goroutines execute its hops. See the package documentation
// for the synchronization contract.
type Transaction struct {
	cid *command.CommandId
	ss  *shard.ShardSet

	dbIndex  shard.DbIndex
	fullArgs []string // full argument vector including the command name

	// args is the flat, shard-grouped argument vector built by InitByKeys.
	args []string
	// reverseIndex maps args positions back to original positions (minus the
	// command name); only built for commands with OptReverseMapping.
	reverseIndex []int

	shardData      []perShardData
	uniqueShardCnt uint32
	uniqueShardID  shard.ShardId

	txid   shard.TxId
	global bool

	multi *multiData

	cb          RunnableFunc
	localResult OpStatus

	coordState atomic.Uint32

	// runCount is the coordinator<->shards rendezvous barrier of one hop.
	runCount atomic.Uint32
	// useCount is the reference count: one for the coordinator, one per
	// armed shard callback.
	useCount atomic.Int32
	// seqlock disambiguates stale shard callbacks across hops.
	seqlock atomic.Uint32
	// notifyTxid carries the id of the earliest writer that woke this
	// blocking transaction; MaxUint64 while no wakeup happened.
	notifyTxid atomic.Uint64

	runEC      *util.EventCount
	blockingEC *util.EventCount
}

// New creates a transaction for the given command. EXEC/EVAL commands get
// their multi state allocated here; the concrete mode is fixed by one of the
// StartMulti variants.
func New(cid *command.CommandId, ss *shard.ShardSet) *Transaction {
	t := &Transaction{
		cid:        cid,
		ss:         ss,
		runEC:      util.NewEventCount(),
		blockingEC: util.NewEventCount(),
	}
	t.notifyTxid.Store(math.MaxUint64)
	t.useCount.Store(1) // the coordinator's reference

	switch cid.Name() {
	case "EXEC", "EVAL", "EVALSHA":
		t.multi = &multiData{
			mode:              multiNotDetermined,
			shardJournalWrite: make([]bool, ss.Size()),
		}
	}
	return t
}

// --------------------------------------------------------------------------
// Small Accessors
// --------------------------------------------------------------------------

// Name returns the command name.
func (t *Transaction) Name() string { return t.cid.Name() }

// FullArgs returns the full argument vector of the current command,
// including the command name at position 0. Shard callbacks of single-shard
// commands read their non-key arguments from here; multi-shard callbacks use
// ShardArgs for their own slice.
func (t *Transaction) FullArgs() []string { return t.fullArgs }

// Txid returns the transaction id (0 = unscheduled).
func (t *Transaction) Txid() shard.TxId { return t.txid }

// DbIndex returns the logical database selector.
func (t *Transaction) DbIndex() shard.DbIndex { return t.dbIndex }

// IsGlobal reports whether the transaction spans all shards via intent
// locks.
func (t *Transaction) IsGlobal() bool { return t.global }

// IsMulti reports whether this is a multi-command transaction.
func (t *Transaction) IsMulti() bool { return t.multi != nil }

// IsAtomicMulti reports whether this multi provides cross-command isolation.
func (t *Transaction) IsAtomicMulti() bool {
	return t.multi != nil &&
		(t.multi.mode == multiGlobal || t.multi.mode == multiLockAhead || t.multi.mode == multiLockIncremental)
}

// IsOOO reports whether the last scheduling round granted every lock
// uncontested.
func (t *Transaction) IsOOO() bool { return t.hasCoordFlag(coordOOO) }

// UniqueShardCnt returns the number of shards this transaction touches.
func (t *Transaction) UniqueShardCnt() uint32 { return t.uniqueShardCnt }

// UniqueShardID returns the single target shard of a single-shard
// transaction.
func (t *Transaction) UniqueShardID() shard.ShardId { return t.uniqueShardID }

// Mode returns the intent-lock mode of this transaction: shared for
// read-only commands, exclusive otherwise.
func (t *Transaction) Mode() shard.LockMode {
	if t.cid.IsReadOnly() {
		return shard.LockShared
	}
	return shard.LockExclusive
}

// DebugId renders a compact identifier for logging.
func (t *Transaction) DebugId() string {
	return fmt.Sprintf("%s@%d/%d (%p)", t.Name(), t.txid, t.uniqueShardCnt, t)
}

func (t *Transaction) setCoordFlag(f coordFlag)   { t.coordState.Or(f) }
func (t *Transaction) clearCoordFlag(f coordFlag) { t.coordState.And(^f) }
func (t *Transaction) hasCoordFlag(f coordFlag) bool {
	return t.coordState.Load()&f != 0
}

// IncRef adds a reference; every armed shard callback holds one.
func (t *Transaction) IncRef() { t.useCount.Add(1) }

// DecRef drops a reference. Underflow is a bug in the hop bookkeeping.
func (t *Transaction) DecRef() {
	if t.useCount.Add(-1) < 0 {
		log.Panicf("%s: reference count underflow", t.DebugId())
	}
}

// UseCount returns the current reference count (diagnostics).
func (t *Transaction) UseCount() int32 { return t.useCount.Load() }

// LocalResult returns the status captured by the last hop.
func (t *Transaction) LocalResult() OpStatus { return t.localResult }

// sidToIdx maps a shard id to its shardData slot. Single-shard transactions
// compress shardData to one slot.
func (t *Transaction) sidToIdx(sid shard.ShardId) int {
	if len(t.shardData) == 1 {
		return 0
	}
	return int(sid)
}

// IsActive reports whether the shard participates in the current hop.
func (t *Transaction) IsActive(sid shard.ShardId) bool {
	if t.global {
		return true
	}
	if t.uniqueShardCnt == 1 {
		return sid == t.uniqueShardID
	}
	return t.shardData[sid].localMask&maskActive != 0
}

// IsArmedInShard reports whether this shard should run the current hop. The
// run-count check synchronizes with the arm barrier; only afterwards may the
// shard read any non-atomic transaction state.
func (t *Transaction) IsArmedInShard(sid shard.ShardId) bool {
	if t.runCount.Load() == 0 {
		return false
	}
	return t.shardData[t.sidToIdx(sid)].isArmed.Load()
}

// IsQueuedInShard reports whether the transaction occupies a TxQueue slot on
// the shard. Only meaningful on the shard's own goroutine.
func (t *Transaction) IsQueuedInShard(sid shard.ShardId) bool {
	return t.shardData[t.sidToIdx(sid)].pqPos != shard.TxQueueEnd
}

// IsOOOInShard reports whether this shard granted the out-of-order
// privilege.
func (t *Transaction) IsOOOInShard(sid shard.ShardId) bool {
	return t.shardData[t.sidToIdx(sid)].localMask&maskOutOfOrder != 0
}

// iterateActiveShards invokes fn for every shard participating in the
// current hop.
func (t *Transaction) iterateActiveShards(fn func(sd *perShardData, sid shard.ShardId)) {
	if len(t.shardData) == 1 {
		fn(&t.shardData[0], t.uniqueShardID)
		return
	}
	for i := range t.shardData {
		sd := &t.shardData[i]
		if sd.localMask&maskActive != 0 {
			fn(sd, shard.ShardId(i))
		}
	}
}

// --------------------------------------------------------------------------
// Argument Access
// --------------------------------------------------------------------------

// ShardArgs returns the argument slice of the given shard. Shards may only
// call this after the arm barrier.
func (t *Transaction) ShardArgs(sid shard.ShardId) []string {
	if t.uniqueShardCnt == 1 {
		return t.args
	}
	sd := &t.shardData[sid]
	if sd.view.whole {
		return t.args
	}
	return t.args[sd.view.start : sd.view.start+sd.view.count]
}

// ReverseArgIndex maps a shard-local argument index back to the caller's
// original argument position (skipping the command name, i.e. first key
// position minus one or bigger). Only valid for commands registered with
// OptReverseMapping.
func (t *Transaction) ReverseArgIndex(sid shard.ShardId, argIndex int) int {
	if t.uniqueShardCnt == 1 {
		return t.reverseIndex[argIndex]
	}
	sd := &t.shardData[sid]
	if sd.view.whole {
		return t.reverseIndex[argIndex]
	}
	return t.reverseIndex[sd.view.start+argIndex]
}

// lockArgs builds the key-lock arguments for one shard.
func (t *Transaction) lockArgs(sid shard.ShardId) shard.KeyLockArgs {
	return shard.KeyLockArgs{
		DbIndex: t.dbIndex,
		KeyStep: t.cid.KeyArgStep(),
		Args:    t.ShardArgs(sid),
	}
}

// lockKeys collects the distinct keys of one shard's lock arguments.
func (t *Transaction) lockKeys(sid shard.ShardId) []string {
	var keys []string
	t.lockArgs(sid).EachKey(func(key string) {
		keys = append(keys, key)
	})
	return keys
}

// --------------------------------------------------------------------------
// Initialization
// --------------------------------------------------------------------------

// InitByArgs distributes the argument vector across shards. args must hold
// the command name at position 0. On a non-OK return the transaction must
// not be scheduled.
func (t *Transaction) InitByArgs(dbIndex shard.DbIndex, args []string) OpStatus {
	t.initBase(dbIndex, args)

	if t.cid.IsGlobal() {
		t.initGlobal()
		return OpOK
	}

	if len(args) < 2 {
		return OpSyntaxErr
	}

	keyIndex, status := DetermineKeys(t.cid, args)
	if status != OpOK {
		return status
	}

	t.initByKeys(keyIndex)
	return OpOK
}

func (t *Transaction) initBase(dbIndex shard.DbIndex, args []string) {
	t.global = false
	t.dbIndex = dbIndex
	t.fullArgs = args
	t.localResult = OpOK
}

func (t *Transaction) initGlobal() {
	t.global = true
	t.uniqueShardCnt = t.ss.Size()
	t.shardData = make([]perShardData, t.uniqueShardCnt)
	for i := range t.shardData {
		t.shardData[i] = newPerShardData()
		t.shardData[i].localMask |= maskActive
	}
}

// initByKeys implements the two argument distribution regimes: the
// single-shard fast path that stores keys verbatim, and the general path
// that buckets arguments per shard through the pooled scratch.
func (t *Transaction) initByKeys(keyIndex KeyIndex) {
	args := t.fullArgs

	if keyIndex.Start == len(args) { // eval with 0 keys
		return
	}

	needsReverseMapping := t.cid.HasFlag(command.OptReverseMapping)

	if keyIndex.HasSingleKey() && !t.IsAtomicMulti() {
		// Single-shard fast path: no argument splitting needed
		t.storeKeysInArgs(keyIndex, needsReverseMapping)

		numSlots := 1
		if t.IsMulti() {
			numSlots = int(t.ss.Size())
		}
		t.shardData = make([]perShardData, numSlots)
		for i := range t.shardData {
			t.shardData[i] = newPerShardData()
		}

		t.uniqueShardCnt = 1
		t.uniqueShardID = shard.ShardOf(t.args[0], t.ss.Size())
		t.shardData[t.sidToIdx(t.uniqueShardID)].localMask |= maskActive
		return
	}

	// General path: one slot per shard (shardData is not sparse)
	if len(t.shardData) != int(t.ss.Size()) {
		t.shardData = make([]perShardData, t.ss.Size())
		for i := range t.shardData {
			t.shardData[i] = newPerShardData()
		}
	}

	ts := borrowTmpSpace()
	defer returnTmpSpace(ts)

	shardIndex := ts.getShardIndex(len(t.shardData))

	// Distribute all the arguments by shards
	t.buildShardIndex(keyIndex, needsReverseMapping, shardIndex)

	// Initialize shard data based on distributed arguments
	t.initShardData(shardIndex, keyIndex.NumArgs(), needsReverseMapping)

	if t.multi != nil {
		t.initMultiData(keyIndex, ts)
	}

	log.Debugf("InitByKeys %s %s", t.DebugId(), t.args[0])

	// Compress shard data if only one shard is occupied
	if t.uniqueShardCnt == 1 {
		var sd *perShardData
		if t.IsMulti() {
			sd = &t.shardData[t.uniqueShardID]
		} else {
			t.shardData = t.shardData[:1]
			sd = &t.shardData[0]
		}
		sd.localMask |= maskActive
		sd.view = argsView{whole: true}
	}

	// Validation: check the reverse mapping was built correctly
	if needsReverseMapping {
		for i := range t.args {
			if t.args[i] != args[1+t.reverseIndex[i]] {
				log.Panicf("%s: reverse index mismatch at %d", t.DebugId(), i)
			}
		}
	}
}

// minStep keeps NumArgs correct for step-2 indices, where every key drags
// its value along.
func minStep(step int) int {
	if step < 1 {
		return 1
	}
	return step
}

// buildShardIndex buckets the key (and value) arguments by owning shard.
func (t *Transaction) buildShardIndex(keyIndex KeyIndex, revMapping bool, shardIndex []perShardCache) {
	args := t.fullArgs

	add := func(sid shard.ShardId, i int) {
		shardIndex[sid].args = append(shardIndex[sid].args, args[i])
		if revMapping {
			shardIndex[sid].originalIndex = append(shardIndex[sid].originalIndex, i-1)
		}
	}

	if keyIndex.Bonus > 0 {
		sid := shard.ShardOf(args[keyIndex.Bonus], uint32(len(shardIndex)))
		add(sid, keyIndex.Bonus)
	}

	for i := keyIndex.Start; i < keyIndex.End; i++ {
		sid := shard.ShardOf(args[i], uint32(len(shardIndex)))
		add(sid, i)

		if keyIndex.Step == 2 { // handle the value associated with the preceding key
			i++
			add(sid, i)
		}
	}
}

// initShardData copies the bucketed arguments into the flat args vector and
// points every shard slot at its own sub-range.
func (t *Transaction) initShardData(shardIndex []perShardCache, numArgs int, revMapping bool) {
	t.args = make([]string, 0, numArgs)
	if revMapping {
		t.reverseIndex = t.reverseIndex[:0]
	}

	for i := range t.shardData {
		sd := &t.shardData[i]
		si := &shardIndex[i]

		sd.view = argsView{start: len(t.args), count: len(si.args)}

		if t.multi != nil {
			// Multi transactions re-initialize on different shards, so clear
			// the previous hop's ACTIVE flag.
			sd.localMask &^= maskActive

			// If locks are accumulated incrementally, new keys need locking.
			if t.multi.isIncrLocks() {
				sd.localMask &^= maskKeylockAcquired
			}
		}

		if len(si.args) == 0 && !si.requestedActive {
			continue
		}

		sd.localMask |= maskActive
		t.uniqueShardCnt++
		t.uniqueShardID = shard.ShardId(i)

		t.args = append(t.args, si.args...)
		if revMapping {
			t.reverseIndex = append(t.reverseIndex, si.originalIndex...)
		}
	}

	if len(t.args) != numArgs {
		log.Panicf("%s: argument distribution mismatch: %d != %d", t.DebugId(), len(t.args), numArgs)
	}
}

// initMultiData records the locked keys of an atomic multi.
func (t *Transaction) initMultiData(keyIndex KeyIndex, ts *tmpSpace) {
	if t.multi.mode == multiNonAtomic {
		return
	}

	mode := t.Mode()
	uniq := ts.getUniqKeys()

	lockKey := func(key string) {
		if _, dup := uniq[key]; dup {
			return
		}
		uniq[key] = struct{}{}

		if t.multi.isIncrLocks() {
			t.multi.keys = append(t.multi.keys, key)
		} else {
			if t.multi.lockCounts == nil {
				t.multi.lockCounts = make(map[string]lockCounts)
			}
			counts := t.multi.lockCounts[key]
			counts[mode]++
			t.multi.lockCounts[key] = counts
		}
	}

	// For EVAL this runs once for the EVAL call itself; the sub-commands
	// reuse the locks recorded here.
	if t.multi.isIncrLocks() || !t.multi.locksRecorded {
		for i := keyIndex.Start; i < keyIndex.End; i += minStep(keyIndex.Step) {
			lockKey(t.fullArgs[i])
		}
		if keyIndex.Bonus > 0 {
			lockKey(t.fullArgs[keyIndex.Bonus])
		}
	}

	t.multi.locksRecorded = true
}

// storeKeysInArgs copies the single key (with its values for step-2
// commands) directly, skipping the bucketing machinery.
func (t *Transaction) storeKeysInArgs(keyIndex KeyIndex, revMapping bool) {
	for j := keyIndex.Start; j < keyIndex.Start+minStep(keyIndex.Step); j++ {
		t.args = append(t.args, t.fullArgs[j])
	}

	if revMapping {
		t.reverseIndex = make([]int, len(t.args))
		for j := range t.reverseIndex {
			t.reverseIndex[j] = j + keyIndex.Start - 1
		}
	}
}

// --------------------------------------------------------------------------
// Shard Execution
// --------------------------------------------------------------------------

// invokeCb runs the hop callback, mapping the out-of-memory sentinel panic
// to a status. Any other panic escapes and takes the process down: callbacks
// own the translation of their recoverable errors.
func (t *Transaction) invokeCb(es *shard.EngineShard) (status OpStatus) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(OutOfMemoryError); ok {
				log.Errorf("%s: out of memory in shard %d", t.DebugId(), es.ShardId())
				status = OpOutOfMemory
				return
			}
			panic(r)
		}
	}()
	return t.cb(t, es)
}

// RunInShard executes the armed hop on the calling shard goroutine. It
// returns true if the transaction must stay as the shard's continuation.
func (t *Transaction) RunInShard(es *shard.EngineShard) bool {
	if t.txid == 0 {
		log.Panicf("%s: RunInShard without txid", t.DebugId())
	}

	idx := t.sidToIdx(es.ShardId())
	sd := &t.shardData[idx]
	sd.isArmed.Store(false)

	log.Debugf("RunInShard %s sid=%d mask=%d", t.DebugId(), es.ShardId(), sd.localMask)

	wasSuspended := sd.localMask&maskSuspendedQ != 0
	awakedPrerun := sd.localMask&maskAwakedQ != 0
	incrementalLock := t.multi != nil && t.multi.isIncrLocks()

	// Multi transactions unlock their keys in UnlockMulti, not per hop. We
	// therefore distinguish concluding (this runnable concludes the current
	// operation) from should-release (the keys get unlocked now).
	isConcluding := t.hasCoordFlag(coordExecConcluding)
	shouldRelease := isConcluding && !t.IsAtomicMulti()
	mode := t.Mode()

	// Incremental-lock transactions lock right before the execution of each
	// sub-command, exactly once per (multi-hop) sub-command.
	if !t.global && incrementalLock && sd.localMask&maskKeylockAcquired == 0 {
		sd.localMask |= maskKeylockAcquired
		es.KeyLocks().Acquire(mode, t.lockArgs(es.ShardId()))
	}

	// A suspended transaction still runs its hops: the brpoplpush family
	// needs the push half to run on the suspended shard.
	status := t.invokeCb(es)

	if t.uniqueShardCnt == 1 {
		t.cb = nil // only a single goroutine runs the callback
		t.localResult = status
	} else {
		switch status {
		case OpOK:
		case OpOutOfMemory:
			t.localResult = status
		default:
			log.Panicf("%s: unexpected status %s from multi-shard callback", t.DebugId(), status)
		}
	}

	if isConcluding { // the last hop journals the write
		t.logAutoJournalOnShard(es)
	}

	// The queue entry is removed on the first invocation; later hops run via
	// the shard's continuation slot.
	if sd.pqPos != shard.TxQueueEnd {
		es.Txq().Remove(sd.pqPos)
		sd.pqPos = shard.TxQueueEnd
	}

	if shouldRelease {
		becameSuspended := sd.localMask&maskSuspendedQ != 0
		var watchedKeys []string

		if t.global {
			es.ShardLock().Release(mode)
		} else {
			if sd.localMask&maskKeylockAcquired == 0 {
				log.Panicf("%s: concluding without key locks", t.DebugId())
			}
			watchedKeys = t.lockKeys(es.ShardId())

			// A freshly suspended transaction keeps its key locks so that
			// future transactions on those keys order through the TxQueue;
			// this preserves the atomicity of awakened transactions.
			if wasSuspended || !becameSuspended {
				es.KeyLocks().Release(mode, t.lockArgs(es.ShardId()))
				sd.localMask &^= maskKeylockAcquired
			}
			sd.localMask &^= maskOutOfOrder
		}

		if bc := es.BlockingController(); bc != nil {
			// Finalize this transaction's watch entries if it went through a
			// blocking phase, then hand wakeups to the next waiters.
			if awakedPrerun || wasSuspended {
				bc.FinalizeWatched(watchedKeys, t.dbIndex, t)
			}
			bc.NotifyPending()
		}
	}

	t.decreaseRunCnt()
	// From this point on the coordinator may already be past the barrier;
	// the transaction must not be touched anymore.

	return !shouldRelease
}

// runQuickie executes an uncontested single-shard transaction inline,
// bypassing the queue. No txid is assigned.
func (t *Transaction) runQuickie(es *shard.EngineShard) {
	es.IncQuickRun()

	sd := &t.shardData[t.sidToIdx(t.uniqueShardID)]
	if sd.localMask&(maskKeylockAcquired|maskOutOfOrder) != 0 {
		log.Panicf("%s: quickie with lock state %d", t.DebugId(), sd.localMask)
	}

	log.Debugf("RunQuickie %s sid=%d", t.DebugId(), es.ShardId())

	t.localResult = t.invokeCb(es)

	t.logAutoJournalOnShard(es)

	sd.isArmed.Store(false)
	t.cb = nil // only a single shard runs the callback
}

// decreaseRunCnt drops this shard's slot of the hop barrier and wakes the
// coordinator when the hop is complete.
func (t *Transaction) decreaseRunCnt() {
	// The store below must be the last access: once the counter hits zero
	// the coordinator may proceed and conclude the transaction.
	if res := t.runCount.Add(^uint32(0)); res == 0 {
		t.runEC.Notify()
	} else if res > math.MaxUint32/2 {
		log.Panicf("%s: run count underflow", t.DebugId())
	}
}

// --------------------------------------------------------------------------
// Journal Hooks
// --------------------------------------------------------------------------

// logAutoJournalOnShard records the concluded write hop of this shard. Reads
// and commands with disabled autojournal are skipped; absent journals make
// this a no-op.
func (t *Transaction) logAutoJournalOnShard(es *shard.EngineShard) {
	if !t.cid.IsWrite() || t.cid.HasFlag(command.OptNoAutoJournal) {
		return
	}

	var payload []string
	if t.uniqueShardCnt == 1 || len(t.args) == 0 {
		payload = t.fullArgs
	} else {
		payload = append([]string{t.fullArgs[0]}, t.ShardArgs(es.ShardId())...)
	}

	t.logJournalOnShard(es, payload, t.uniqueShardCnt, false)
}

// logJournalOnShard writes one journal record and tracks which shards of a
// multi performed writes (their EXEC close-records are written by
// UnlockMulti).
func (t *Transaction) logJournalOnShard(es *shard.EngineShard, payload []string, shardCnt uint32, multiCommands bool) {
	if t.multi != nil {
		t.multi.shardJournalWrite[es.ShardId()] = true
	}

	opcode := journal.OpCommand
	if multiCommands || t.IsAtomicMulti() {
		opcode = journal.OpMultiCommand
	}

	es.Journal().RecordEntry(t.txid, opcode, t.dbIndex, shardCnt, payload, false)
}
