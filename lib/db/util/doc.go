// Package util provides utility components for the storage engine and the
// transaction coordination core.
//
// The package contains:
//   - statistics: Utility tools for analyzing store characteristics and a SizeHistogram for tracking data size distribution
//   - functions: Hash functions and other utility functions
//   - mapheap: A priority queue with key-based access, used for TTL deadline sweeps
//   - lockfreempsc: A lock-free Multi-Producer Single-Consumer (MPSC) queue implementation built for high throughput and low latency
//   - eventcount: A condition-variable-like primitive with deadline support, the coordinator<->shard rendezvous
//
// This package is particularly useful for:
//   - Engine developers implementing the db.Store interface
//   - Implementation of garbage collection or other priority queue systems
//   - Monitoring systems that need to track store size and distribution metrics
package util
