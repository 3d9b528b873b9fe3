package shard

import (
	"fmt"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/journal"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("shard")

// EngineShard owns one partition of the keyspace: its stores (one per
// logical database), the transaction queue, the shard intent lock, the
// key-lock table and the blocking controller. All of this state is touched
// only from the shard's own goroutine; the coordinator reaches it by
// enqueueing closures on the shard's runloop.
type EngineShard struct {
	id ShardId

	txq       *TxQueue
	shardLock *IntentLock
	keyLocks  *KeyLockTable

	stores       map[DbIndex]db.Store
	storeFactory db.Factory

	blocking *BlockingController
	jrnl     journal.Journal

	// committedTxid is the id of the last queue-ordered transaction that
	// started running on this shard. Scheduling rejects older ids.
	committedTxid TxId

	// continuation is a multi-hop transaction that ran its first hop here and
	// blocks the queue until its concluding hop.
	continuation TxHandle

	quickRuns *metrics.Counter
	pollRuns  *metrics.Counter
	txRuns    *metrics.Counter
}

// newEngineShard creates a shard. Shards are only created by NewShardSet.
func newEngineShard(id ShardId, factory db.Factory, jrnl journal.Journal) *EngineShard {
	if jrnl == nil {
		jrnl = journal.NewNopJournal()
	}
	return &EngineShard{
		id:           id,
		txq:          NewTxQueue(),
		shardLock:    &IntentLock{},
		keyLocks:     NewKeyLockTable(),
		stores:       make(map[DbIndex]db.Store),
		storeFactory: factory,
		jrnl:         jrnl,
		quickRuns:    metrics.GetOrCreateCounter(fmt.Sprintf(`skv_shard_quick_runs_total{shard="%d"}`, id)),
		pollRuns:     metrics.GetOrCreateCounter(fmt.Sprintf(`skv_shard_polls_total{shard="%d"}`, id)),
		txRuns:       metrics.GetOrCreateCounter(fmt.Sprintf(`skv_shard_tx_runs_total{shard="%d"}`, id)),
	}
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// ShardId returns the shard's id.
func (es *EngineShard) ShardId() ShardId { return es.id }

// Txq returns the shard's transaction queue.
func (es *EngineShard) Txq() *TxQueue { return es.txq }

// ShardLock returns the shard intent lock taken by global transactions.
func (es *EngineShard) ShardLock() *IntentLock { return es.shardLock }

// KeyLocks returns the shard's key-lock table.
func (es *EngineShard) KeyLocks() *KeyLockTable { return es.keyLocks }

// Journal returns the shard's journal (never nil; a no-op journal backs
// shards without journaling).
func (es *EngineShard) Journal() journal.Journal { return es.jrnl }

// CommittedTxid returns the id of the last queue-ordered transaction that
// started running here.
func (es *EngineShard) CommittedTxid() TxId { return es.committedTxid }

// Continuation returns the in-flight multi-hop transaction, if any.
func (es *EngineShard) Continuation() TxHandle { return es.continuation }

// Store returns the store of one logical database, creating it on first use.
func (es *EngineShard) Store(dbIndex DbIndex) db.Store {
	s, ok := es.stores[dbIndex]
	if !ok {
		s = es.storeFactory()
		es.stores[dbIndex] = s
	}
	return s
}

// BlockingController returns the controller or nil if no transaction ever
// blocked on this shard.
func (es *EngineShard) BlockingController() *BlockingController {
	return es.blocking
}

// EnsureBlockingController returns the controller, creating it on first use.
func (es *EngineShard) EnsureBlockingController() *BlockingController {
	if es.blocking == nil {
		es.blocking = newBlockingController(es)
	}
	return es.blocking
}

// IncQuickRun counts a quickie execution (stats only).
func (es *EngineShard) IncQuickRun() {
	es.quickRuns.Inc()
}

// RemoveContinuation drops the continuation if it is the given transaction.
// Called when a multi transaction is unlocked without a concluding hop on
// this shard.
func (es *EngineShard) RemoveContinuation(t TxHandle) {
	if es.continuation == t {
		es.continuation = nil
	}
}

// --------------------------------------------------------------------------
// Execution
// --------------------------------------------------------------------------

// PollExecution drains ready transactions. trans, when non-nil, is the
// transaction whose arming triggered this poll; it may be run detached from
// the queue if it is an out-of-order grantee or a blocking transaction
// continuing with its next hop.
//
// The rules, in order:
//  1. A pending continuation runs first when armed; while it is pending the
//     queue does not advance.
//  2. The queue head runs when armed. While an awakened blocking transaction
//     is in flight the queue is halted: the awakened transaction still holds
//     its key locks and must finish first to preserve its atomicity.
//  3. trans runs detached when armed and either not queued here (a blocking
//     transaction past its watch hop) or queued with an out-of-order grant
//     behind a later head.
func (es *EngineShard) PollExecution(tag string, trans TxHandle) {
	es.pollRuns.Inc()
	log.Debugf("PollExecution sid=%d tag=%s trans=%v", es.id, tag, trans != nil)

	es.runContinuation()
	es.drainQueue()

	if trans == nil || trans == es.continuation || !trans.IsArmedInShard(es.id) {
		return
	}

	if !trans.IsQueuedInShard(es.id) {
		// A blocking transaction continuing after its watch hop. It kept its
		// key locks while suspended, so running it out of the queue cannot
		// violate isolation.
		es.txRuns.Inc()
		if keep := trans.RunInShard(es); keep {
			es.continuation = trans
		}
		es.drainQueue()
		return
	}

	if trans.IsOOOInShard(es.id) && !trans.IsGlobal() {
		// Out-of-order execution: allowed only behind a later head, never
		// ahead of an earlier transaction.
		if head, ok := es.txq.Head(); ok && head != trans && head.Txid() > trans.Txid() {
			es.txRuns.Inc()
			if keep := trans.RunInShard(es); keep {
				es.continuation = trans
			}
			es.drainQueue()
		}
	}
}

// runContinuation runs the pending continuation if it is armed.
func (es *EngineShard) runContinuation() {
	if es.continuation == nil || !es.continuation.IsArmedInShard(es.id) {
		return
	}

	es.txRuns.Inc()
	if keep := es.continuation.RunInShard(es); !keep {
		es.continuation = nil
	}
}

// drainQueue runs armed transactions from the queue head until the head is
// unarmed, the queue is empty, a continuation installs itself, or an
// awakened blocking transaction halts the queue.
func (es *EngineShard) drainQueue() {
	for es.continuation == nil {
		if es.blocking != nil && es.blocking.HasAwakedTransaction() {
			return
		}

		head, ok := es.txq.Head()
		if !ok || !head.IsArmedInShard(es.id) {
			return
		}

		// The head becomes the committed transaction of this shard before it
		// runs; a scheduling attempt with an older id must fail from here on.
		es.committedTxid = head.Txid()

		es.txRuns.Inc()
		if keep := head.RunInShard(es); keep {
			es.continuation = head
		}
	}
}
