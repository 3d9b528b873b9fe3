// Package txn implements the transaction coordination core of sKV: the unit
// that carries one command (or a multi-command batch) across the engine
// shards it touches, enforcing isolation, ordering and atomicity across
// shard boundaries without any cross-shard lock manager.
//
// # Model
//
// A Transaction is created per command on a coordinator goroutine. InitByArgs
// derives the key set from the command metadata and distributes the
// arguments to the owning shards. Schedule registers the transaction in the
// TxQueue of every active shard under a fresh, process-wide monotonic id;
// the retry loop of the scheduling protocol guarantees progress because each
// retry draws a strictly larger id. Execute then runs hops: the coordinator
// arms the active shards, publishes the hop through the run-count barrier,
// and every shard executes the callback from its own goroutine before the
// coordinator is released.
//
// Three fast paths keep the common cases cheap:
//
//   - Quickie: a single-shard, single-hop transaction whose keys and shard
//     are uncontested runs inline on the shard, bypassing the queue. No txid
//     is allocated.
//   - Out-of-order: when every shard granted the key locks uncontested at
//     scheduling time, the shards may run the transaction ahead of its queue
//     position (never ahead of an earlier conflicting transaction, which is
//     exactly what the uncontested grant rules out).
//   - Single-slot compression: a non-multi transaction that lands on one
//     shard keeps a single per-shard slot regardless of the shard count;
//     multi transactions keep one slot per shard.
//
// # Synchronization
//
// The only cross-thread state is a handful of atomics: the id source, the
// run-count barrier, the reference count, the seqlock generation, the armed
// flags and the wakeup id of blocking transactions. Everything else is
// owned: shard-local state by the shard goroutine, coordinator state by the
// coordinator goroutine, with the run-count store/load pair providing the
// happens-before edge between them for each hop. The seqlock generation,
// bumped on every arm, lets straggler callbacks of a previous hop detect
// that their captured state is stale and skip.
//
// Blocking transactions (WaitOnWatch) conclude a watch hop that registers
// them with the shard's blocking controller and keeps their key locks, then
// park on an event count until a writer's conclusion notifies them, the
// deadline elapses or BreakOnShutdown cancels the wait.
package txn
