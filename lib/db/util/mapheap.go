// Package util
//
// This file provides a specialized priority queue for expiry sweeps.
//
// This implementation combines a binary heap with a hash map to provide both
// efficient priority-based operations and key-based access. It is used by the
// storage engine to track entry expiration and deletion deadlines: entries are
// prioritized by their logical deadline while still allowing direct removal
// when a key is overwritten or deleted explicitly.
//
// Key properties:
//
//  1. Time Complexity:
//     - O(log n) for priority operations (push, pop, update)
//     - O(1) for key-based lookups and existence checks
//     - O(log n) for key-based removal
//
//  2. Concurrency:
//     - Not thread-safe. The engine owns one heap per shard and touches it
//       only from the shard's own goroutine.
package util

import (
	"container/heap"
	"fmt"
)

// heapItem represents a single entry in the sweep queue with a comparable key
// and a uint64 priority (a logical deadline).
type heapItem[K comparable] struct {
	Key      K
	Priority uint64
	index    int // Index in the heap, maintained by the heap package
}

func (i *heapItem[K]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.Key, i.Priority)
}

// MapHeap implements a min-priority queue with key-based access.
type MapHeap[K comparable] struct {
	items    []*heapItem[K]
	itemsMap map[K]*heapItem[K]
}

// NewMapHeap creates a new empty sweep queue.
func NewMapHeap[K comparable]() *MapHeap[K] {
	return &MapHeap[K]{
		items:    make([]*heapItem[K], 0),
		itemsMap: make(map[K]*heapItem[K]),
	}
}

// Len returns the number of items in the queue (part of heap.Interface).
func (mh *MapHeap[K]) Len() int { return len(mh.items) }

// Less compares items by priority (part of heap.Interface).
// Lowest deadline first (min-heap).
func (mh *MapHeap[K]) Less(i, j int) bool {
	return mh.items[i].Priority < mh.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface).
func (mh *MapHeap[K]) Swap(i, j int) {
	mh.items[i], mh.items[j] = mh.items[j], mh.items[i]
	mh.items[i].index = i
	mh.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface).
func (mh *MapHeap[K]) Push(x interface{}) {
	n := len(mh.items)
	item := x.(*heapItem[K])
	item.index = n
	mh.items = append(mh.items, item)
	mh.itemsMap[item.Key] = item
}

// Pop removes and returns the minimum item (part of heap.Interface).
func (mh *MapHeap[K]) Pop() interface{} {
	old := mh.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	mh.items = old[:n-1]
	delete(mh.itemsMap, item.Key)
	return item
}

// AddItem adds a new item to the queue or updates the priority of an
// existing one.
func (mh *MapHeap[K]) AddItem(key K, priority uint64) {
	if item, exists := mh.itemsMap[key]; exists {
		item.Priority = priority
		heap.Fix(mh, item.index)
		return
	}

	heap.Push(mh, &heapItem[K]{
		Key:      key,
		Priority: priority,
	})
}

// RemoveByKey removes an item by its key, returning its priority.
func (mh *MapHeap[K]) RemoveByKey(key K) (uint64, bool) {
	item, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}

	heap.Remove(mh, item.index)
	return item.Priority, true
}

// Peek returns the minimum-priority key without removing it.
func (mh *MapHeap[K]) Peek() (K, uint64, bool) {
	if len(mh.items) == 0 {
		var zero K
		return zero, 0, false
	}
	return mh.items[0].Key, mh.items[0].Priority, true
}

// PopBelow removes all items whose priority is strictly below the given
// threshold and invokes fn for each removed key. It returns the number of
// removed items. This is the sweep primitive: the engine passes its current
// write index plus one to collect every entry whose deadline has been reached.
func (mh *MapHeap[K]) PopBelow(threshold uint64, fn func(key K)) int {
	removed := 0
	for len(mh.items) > 0 && mh.items[0].Priority < threshold {
		item := heap.Pop(mh).(*heapItem[K])
		removed++
		if fn != nil {
			fn(item.Key)
		}
	}
	return removed
}

// Contains checks if a key exists in the queue.
func (mh *MapHeap[K]) Contains(key K) bool {
	_, exists := mh.itemsMap[key]
	return exists
}

// GetByKey retrieves the priority for a key without removing it.
func (mh *MapHeap[K]) GetByKey(key K) (uint64, bool) {
	item, exists := mh.itemsMap[key]
	if !exists {
		return 0, false
	}
	return item.Priority, true
}
