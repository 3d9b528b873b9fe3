package shard

// watchKey addresses one watched key inside one logical database.
type watchKey struct {
	db  DbIndex
	key string
}

// watchQueue holds the transactions watching one key, in registration order.
// The first suspended watcher is the one a wakeup goes to (FIFO fairness).
type watchQueue struct {
	items []TxHandle
}

func (wq *watchQueue) remove(t TxHandle) {
	for i, item := range wq.items {
		if item == t {
			wq.items = append(wq.items[:i], wq.items[i+1:]...)
			return
		}
	}
}

// BlockingController is the per-shard registry of suspended transactions
// watching keys. Writers report touched keys with AwakeWatched; the actual
// wakeup transitions happen in NotifyPending, which runs at the conclusion
// of the writing hop so watchers only observe fully applied writes.
//
// Thread-safety: not safe for concurrent use; owned by one engine shard.
type BlockingController struct {
	owner *EngineShard

	watched  map[watchKey]*watchQueue
	awakened map[TxHandle]struct{}
	pending  map[watchKey]struct{}
}

// newBlockingController creates a controller bound to its owning shard.
func newBlockingController(owner *EngineShard) *BlockingController {
	return &BlockingController{
		owner:    owner,
		watched:  make(map[watchKey]*watchQueue),
		awakened: make(map[TxHandle]struct{}),
		pending:  make(map[watchKey]struct{}),
	}
}

// AddWatched registers the transaction as a watcher of every key.
func (bc *BlockingController) AddWatched(keys []string, db DbIndex, t TxHandle) {
	for _, key := range keys {
		wk := watchKey{db, key}
		wq, ok := bc.watched[wk]
		if !ok {
			wq = &watchQueue{}
			bc.watched[wk] = wq
		}
		wq.items = append(wq.items, t)
	}
}

// AwakeWatched marks a key as touched by a writer. The wakeup itself is
// deferred to NotifyPending. Keys without watchers are ignored.
func (bc *BlockingController) AwakeWatched(db DbIndex, key string) {
	wk := watchKey{db, key}
	if _, ok := bc.watched[wk]; ok {
		bc.pending[wk] = struct{}{}
	}
}

// NotifyPending goes over the keys touched since the last call and wakes the
// first suspended watcher of each. A transaction that transitions to awaked
// stalls the shard's TxQueue until its coordinator finishes the blocking
// operation (it still holds its key locks).
func (bc *BlockingController) NotifyPending() {
	for wk := range bc.pending {
		delete(bc.pending, wk)

		wq, ok := bc.watched[wk]
		if !ok {
			continue
		}
		for _, t := range wq.items {
			if t.NotifySuspended(bc.owner.CommittedTxid(), bc.owner.ShardId()) {
				bc.awakened[t] = struct{}{}
				break
			}
		}
	}
}

// FinalizeWatched removes the transaction from the watch queues of the given
// keys and from the awakened set. Called when the blocking operation
// concludes, times out or is cancelled.
func (bc *BlockingController) FinalizeWatched(keys []string, db DbIndex, t TxHandle) {
	for _, key := range keys {
		wk := watchKey{db, key}
		wq, ok := bc.watched[wk]
		if !ok {
			continue
		}
		wq.remove(t)
		if len(wq.items) == 0 {
			delete(bc.watched, wk)
			delete(bc.pending, wk)
		}
	}
	delete(bc.awakened, t)
}

// HasAwakedTransaction reports whether an awakened transaction is still in
// flight. While true, the shard must not advance its TxQueue head.
func (bc *BlockingController) HasAwakedTransaction() bool {
	return len(bc.awakened) > 0
}

// AwakenedTransactions returns the in-flight awakened transactions.
func (bc *BlockingController) AwakenedTransactions() map[TxHandle]struct{} {
	return bc.awakened
}

// NumWatched returns the number of watched keys, for diagnostics and tests.
func (bc *BlockingController) NumWatched() int {
	return len(bc.watched)
}
