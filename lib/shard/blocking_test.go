package shard

import (
	"testing"
)

// watchTx is a TxHandle fake with watch state for controller tests.
type watchTx struct {
	fakeTx
	suspended bool
	awaked    bool
	expired   bool
	notifyId  TxId
}

func (w *watchTx) NotifySuspended(committed TxId, _ ShardId) bool {
	if w.expired {
		return false
	}
	if w.suspended {
		w.suspended = false
		w.awaked = true
		w.notifyId = committed
		return true
	}
	return false
}

func TestBlockingControllerWakeFirstSuspended(t *testing.T) {
	es := &EngineShard{id: 0}
	bc := newBlockingController(es)
	es.committedTxid = 42

	w1 := &watchTx{fakeTx: fakeTx{txid: 1}, suspended: true}
	w2 := &watchTx{fakeTx: fakeTx{txid: 2}, suspended: true}

	bc.AddWatched([]string{"k"}, 0, w1)
	bc.AddWatched([]string{"k"}, 0, w2)

	// No watchers on other keys: AwakeWatched ignores them
	bc.AwakeWatched(0, "other")
	bc.NotifyPending()
	if bc.HasAwakedTransaction() {
		t.Fatal("No transaction should be awakened")
	}

	// A write on the watched key wakes exactly the first suspended watcher
	bc.AwakeWatched(0, "k")
	bc.NotifyPending()

	if !w1.awaked || w1.notifyId != 42 {
		t.Errorf("First watcher should be awakened by txid 42, got awaked=%v id=%d", w1.awaked, w1.notifyId)
	}
	if w2.awaked {
		t.Error("Second watcher should stay suspended")
	}
	if !bc.HasAwakedTransaction() {
		t.Error("Controller should report an awakened transaction")
	}

	// Finalizing the first watcher removes it; the next write wakes the second
	bc.FinalizeWatched([]string{"k"}, 0, w1)
	if bc.HasAwakedTransaction() {
		t.Error("No awakened transaction should remain after finalize")
	}

	bc.AwakeWatched(0, "k")
	bc.NotifyPending()
	if !w2.awaked {
		t.Error("Second watcher should be awakened now")
	}

	bc.FinalizeWatched([]string{"k"}, 0, w2)
	if bc.NumWatched() != 0 {
		t.Errorf("Watch table should be empty, has %d keys", bc.NumWatched())
	}
}

func TestBlockingControllerExpiredWatcher(t *testing.T) {
	es := &EngineShard{id: 0}
	bc := newBlockingController(es)

	w1 := &watchTx{fakeTx: fakeTx{txid: 1}, suspended: true, expired: true}
	w2 := &watchTx{fakeTx: fakeTx{txid: 2}, suspended: true}

	bc.AddWatched([]string{"k"}, 0, w1)
	bc.AddWatched([]string{"k"}, 0, w2)

	// The expired watcher is skipped, the wakeup falls through to the next
	bc.AwakeWatched(0, "k")
	bc.NotifyPending()

	if w1.awaked {
		t.Error("Expired watcher must not be awakened")
	}
	if !w2.awaked {
		t.Error("Wakeup should fall through to the live watcher")
	}
}
