package shard

import (
	"container/heap"
)

// TxQueueEnd marks "not in the queue". It doubles as an impossible queue
// position since positions are transaction ids and this value is reserved.
const TxQueueEnd = ^uint64(0)

// txqItem is one queue slot.
type txqItem struct {
	score TxId
	trans TxHandle
	index int // heap position, maintained by the heap package
}

// TxQueue is the per-shard transaction queue, ordered by transaction id. The
// head is the earliest scheduled, not-yet-concluded transaction on the shard.
// Entries are addressed by their score (the txid at insertion time), which
// supports positional removal for cancellation and conclusion.
//
// Thread-safety: not safe for concurrent use. The queue is owned by one
// engine shard and only touched from that shard's goroutine.
type TxQueue struct {
	items   []*txqItem
	byScore map[TxId]*txqItem
}

// NewTxQueue creates an empty transaction queue.
func NewTxQueue() *TxQueue {
	q := &TxQueue{
		byScore: make(map[TxId]*txqItem),
	}
	heap.Init(q)
	return q
}

// --------------------------------------------------------------------------
// heap.Interface
// --------------------------------------------------------------------------

func (q *TxQueue) Len() int { return len(q.items) }

func (q *TxQueue) Less(i, j int) bool {
	return q.items[i].score < q.items[j].score
}

func (q *TxQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *TxQueue) Push(x interface{}) {
	item := x.(*txqItem)
	item.index = len(q.items)
	q.items = append(q.items, item)
	q.byScore[item.score] = item
}

func (q *TxQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	q.items = old[:n-1]
	delete(q.byScore, item.score)
	return item
}

// --------------------------------------------------------------------------
// Queue Operations
// --------------------------------------------------------------------------

// Insert adds the transaction under its current txid and returns the queue
// position. The txid must be unique within the queue.
func (q *TxQueue) Insert(t TxHandle) TxId {
	score := t.Txid()
	heap.Push(q, &txqItem{score: score, trans: t})
	return score
}

// Remove deletes the entry at the given position. Removing TxQueueEnd or an
// absent position is a no-op.
func (q *TxQueue) Remove(pos TxId) {
	item, ok := q.byScore[pos]
	if !ok {
		return
	}
	heap.Remove(q, item.index)
}

// At returns the transaction stored at the given position.
func (q *TxQueue) At(pos TxId) (TxHandle, bool) {
	item, ok := q.byScore[pos]
	if !ok {
		return nil, false
	}
	return item.trans, true
}

// Head returns the transaction with the smallest txid.
func (q *TxQueue) Head() (TxHandle, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0].trans, true
}

// HeadScore returns the smallest txid in the queue.
func (q *TxQueue) HeadScore() TxId {
	if len(q.items) == 0 {
		return TxQueueEnd
	}
	return q.items[0].score
}

// TailScore returns the largest txid in the queue, 0 when empty. Queues are
// short (bounded by in-flight transactions per shard), so a linear scan is
// fine here.
func (q *TxQueue) TailScore() TxId {
	var max TxId
	for _, item := range q.items {
		if item.score > max {
			max = item.score
		}
	}
	return max
}

// Empty reports whether the queue holds no transactions.
func (q *TxQueue) Empty() bool {
	return len(q.items) == 0
}
