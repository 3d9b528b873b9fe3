// Package testing provides standardised tests and benchmarks for
// storage implementations that satisfy the db.Store interface.
//
// The package contains:
//   - testing: A comprehensive test suite for validating conformance to the Store interface contract
//   - benchmark: Performance tests for measuring throughput of common store operations
//
// This package is particularly useful for:
//   - Engine developers implementing the per-shard db.Store interface
//   - Comparing storage backends before wiring them into the engine
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.Store {
//		return NewMyStore()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunStoreTests(t, "MyStore", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunStoreBenchmarks(b, "MyStore", factory)
package testing
