// Package shard provides the engine shards of sKV and everything a shard
// owns: its per-database stores, the transaction queue, the shard intent
// lock, the per-key lock table and the blocking controller.
//
// The concurrency model is shared-nothing: every shard is driven by exactly
// one goroutine (its runloop) and all shard-local state is touched only from
// that goroutine. The only way into a shard is its task queue; coordinators
// enqueue closures with ShardSet.Add or fan out and join non-suspending
// closures with ShardSet.RunBriefInParallel. Because a closure runs alone on
// its shard, the shard sees a consistent view of its local data without any
// locking on the data path.
//
// Locks in this package are intent counters, not mutexes: Acquire never
// blocks, it records the intent and reports whether it was uncontested.
// Mutual exclusion between transactions is enforced by the TxQueue ordering
// (by transaction id) and the eligibility rules of PollExecution; the
// counters exist so the scheduler can detect contention and grant
// out-of-order execution when there is none.
//
// The transaction type itself lives in lib/txn and reaches this package only
// through the TxHandle interface, keeping the dependency one-directional.
package shard
