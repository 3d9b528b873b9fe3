// Package tstore implements the store.IStore interface on top of the
// transaction coordination core. Every operation builds a transaction over
// the shard set, distributes its keys to the owning shards and runs the
// operation callback on each shard's own goroutine.
//
// What the transactional layer buys over a plain locked map:
//
//   - Parallelism: operations on different keys run concurrently on their
//     shards; uncontested single-key operations take the quickie path and
//     bypass the queue entirely.
//   - Cross-shard atomicity: MSet/MGet lock all their keys at scheduling
//     time, so concurrent readers never observe a torn multi-key write.
//   - Blocking reads: BLPop registers with the owning shard's blocking
//     controller and suspends until a pusher's transaction concludes, with
//     deadline and shutdown handling.
//   - Global operations: Flush takes the intent lock of every shard and
//     runs exclusively.
//
// The store is a thin command layer: all isolation and ordering guarantees
// come from lib/txn and lib/shard.
package tstore
