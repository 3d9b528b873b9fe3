// Package lstore implements a local, in-memory, single-partition key-value
// store based on the store.IStore interface. It provides a thin wrapper
// around any db.Store implementation with automatic write index management.
// Data is stored entirely in memory and is not persisted between process
// restarts.
//
// Key Features:
//   - Pure in-memory storage without persistence
//   - Direct integration with db.Store implementations
//   - Automatic write index progression
//   - Feature detection to handle unsupported operations gracefully
//   - Thread-safe operations through a single store-wide mutex
//
// Implementation Details:
//
//   - Write Index Management: The store maintains a counter that increments
//     with each write operation, providing the monotonically increasing
//     logical timestamp that time-based features (expiration, deletion)
//     build on.
//
//   - Feature Detection: Before executing operations, the store checks if
//     the underlying db.Store implementation supports the requested feature
//     through SupportsFeature. Unsupported operations return appropriate
//     error codes rather than failing silently.
//
//   - Blocking Pops: BLPop waits on a condition variable signalled by
//     pushers, with a timer bounding the wait.
//
// Unlike the transactional store (lib/store/tstore), lstore offers no
// sharding and no parallelism: every operation takes the store mutex. It is
// the baseline implementation for tools and comparison benchmarks.
package lstore
