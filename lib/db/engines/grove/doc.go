// Package grove provides the per-shard storage engine of sKV.
//
// A grove store is deliberately single-threaded: each engine shard owns one
// store per logical database index and is the only goroutine that ever
// touches it. All synchronization happens one layer up, in the transaction
// coordination core, which guarantees that a shard callback runs alone on its
// shard. This keeps the data path free of locks and atomic operations.
//
// Features:
//   - String and list values under a shared keyspace
//   - Logical-time TTL: expiration keeps the key findable (Has), deletion
//     removes it; deadlines are offsets against the store's write index
//   - Deadline tracking via min-heaps with key-based removal, swept
//     on demand by the owning shard's runloop (CollectGarbage)
//   - Binary snapshot persistence (Save/Load)
//
// The engine ignores stale writes: a write carrying a lower write index than
// the entry's current one leaves the entry untouched. The transaction core
// assigns indices monotonically per shard, so this only matters for replayed
// snapshots and manual index manipulation.
package grove
