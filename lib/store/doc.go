// Package store provides a high-level interface for key-value storage
// operations with expiration, list values, blocking reads and unified error
// handling. It serves as an abstraction layer over the engine, adding write
// index management and standardized error reporting.
//
// The package focuses on:
//   - A unified interface (IStore) for key-value operations across different backends
//   - Pluggable storage through the db.Factory pattern
//
// Key Components:
//
//   - IStore Interface: The core abstraction defining operations for
//     interacting with a key-value store. All implementations share this
//     common interface, allowing applications to switch between backends
//     without code changes. The interface methods return custom Error types
//     that provide detailed information about operation results.
//
//   - Error System: A structured error reporting mechanism using typed error
//     codes and descriptive messages. This system allows applications to make
//     informed decisions based on specific error conditions rather than
//     generic errors.
//
// Implementations:
//
//	The package includes two implementations of the IStore interface:
//
//	- Transactional Store (tstore): runs every operation as a transaction
//	  over the sharded engine. Multi-key operations are atomic across
//	  shards, blocking pops suspend on the shard's blocking controller, and
//	  concurrent callers scale across the shard runloops.
//
//	- Local Store (lstore): a mutex-guarded wrapper around a single storage
//	  partition. Sequential but simple; the baseline implementation for
//	  tools and tests.
package store
