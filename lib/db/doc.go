// Package db provides a standardized interface for the per-shard storage
// partitions of the engine. It defines a Store interface that allows for
// consistent interaction with various storage backends while abstracting
// implementation details.
//
// The package focuses on:
//   - A unified interface for key-value and list operations
//   - Feature discovery through capability flags
//   - Standardized persistence operations
//   - Metadata reporting
//
// Key Components:
//
//   - Store Interface: The core interface that all storage implementations
//     must satisfy. It provides methods for basic operations (Set, Get, Has,
//     Delete, Rename, Flush), list operations (ListPush, ListPop, ListLen),
//     time-based operations (SetE, Expire, CollectGarbage), metadata
//     retrieval (GetInfo), and persistence operations (Save, Load).
//
//   - Feature Flags: The Feature type defines capability flags that
//     implementations can advertise through the SupportsFeature method. This
//     allows clients to discover supported operations at runtime.
//
//   - Implementation Identifiers: The Implementation type provides string
//     constants for different storage backends (currently "grove").
//
//   - Database Information: The DatabaseInfo structure provides standardized
//     reporting on store state, including size statistics, implementation
//     type, and implementation-specific metadata. Note: for most
//     implementations all size statistics are estimates since a precise
//     calculation can be expensive.
//
// Note on Concurrency:
//   - A Store is deliberately single-threaded: each engine shard owns one
//     store per logical database index and touches it only from its own
//     goroutine. All cross-thread coordination happens one layer up, in the
//     transaction coordination core. Implementations therefore need no
//     internal synchronization.
//
// Note on Time-Based Operations:
//   - Write Operations and Time-Tracking: All write operations require a write-index parameter
//     that serves as a logical timestamp. This write-index is used to:
//     1. Record when an entry was created or modified
//     2. Calculate expiration and deletion times (by adding offsets to the current write-index)
//     3. Update the store's logical clock
//   - Read Operations: Read methods do not accept a time-index parameter as they always operate
//     against the most recently set write-index.
//   - Manual Time Advancement: If the caller needs to advance the logical time without performing
//     a write operation, the SetWriteIdx() method should be used.
//   - Monotonicity Guarantee: All implementations must ensure that the write-index only increases
//     monotonically. Attempts to set a write-index lower than the current one must be ignored
//     to maintain temporal consistency.
//
// Note on Garbage Collection:
//   - External Consistency: Implementations must maintain strong external consistency
//     regardless of their internal garbage collection state:
//   - Get() must never return an entry that has logically expired, even if the entry
//     still exists internally pending collection.
//   - Has() must never return true for an entry that has been logically deleted, even if
//     the entry still exists internally pending collection.
//   - This separation between logical state (expired/deleted) and physical state (still present
//     in memory) allows the owning shard to sweep on its own schedule without compromising
//     the consistency guarantees of the interface.
//
// Related Packages:
//
// The engines/grove package (github.com/ValentinKolb/sKV/lib/db/engines/grove) provides the
// default implementation of the Store interface: string and list values, logical-time TTL
// with heap-tracked deadlines, on-demand garbage collection and binary persistence.
//
// The util package (github.com/ValentinKolb/sKV/lib/db/util) provides complementary tools:
//   - SizeHistogram: Utilities for analyzing data size distributions
//   - MapHeap: A priority queue implementation for deadline tracking
//   - LockFreeMPSC: A lock-free multi-producer single-consumer queue (the shard runloop inbox)
//   - EventCount: The coordinator<->shard rendezvous primitive
//
// The testing package (github.com/ValentinKolb/sKV/lib/db/testing) provides
// standardized tests and benchmarks for implementations of the db.Store interface.
//   - RunStoreTests: Runs a standardized test suite to validate implementations
//   - RunStoreBenchmarks: Provides performance benchmarks for comparing implementations
package db
