package util

import (
	"container/heap"
	"fmt"
	"sort"
	"testing"
)

// TestNewMapHeap tests the creation of a new MapHeap
func TestNewMapHeap(t *testing.T) {
	mh := NewMapHeap[string]()

	if mh == nil {
		t.Fatal("NewMapHeap() returned nil")
	}

	if mh.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", mh.Len())
	}

	if len(mh.itemsMap) != 0 {
		t.Errorf("New heap's map should be empty, but has %d items", len(mh.itemsMap))
	}
}

// TestAddItem tests adding items to the heap
func TestAddItem(t *testing.T) {
	mh := NewMapHeap[string]()
	heap.Init(mh)

	// Add a few items
	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 50)

	if mh.Len() != 3 {
		t.Errorf("Heap should have 3 items, but has %d", mh.Len())
	}

	// Check if items exist
	for _, key := range []string{"a", "b", "c"} {
		if !mh.Contains(key) {
			t.Errorf("Heap should contain key %s", key)
		}
	}

	// Check the order (min heap, so the lowest deadline should be first)
	key, prio, exists := mh.Peek()
	if !exists {
		t.Fatal("Peek() should return an item")
	}

	if key != "c" || prio != 50 {
		t.Errorf("Expected min item to be (c,50), got (%s,%d)", key, prio)
	}
}

// TestUpdateItem tests updating existing items
func TestUpdateItem(t *testing.T) {
	mh := NewMapHeap[string]()
	heap.Init(mh)

	// Add items
	mh.AddItem("a", 100)
	mh.AddItem("b", 200)

	// Update an item
	mh.AddItem("a", 300) // Push the deadline of item "a" back

	// Check if update worked
	prio, exists := mh.GetByKey("a")
	if !exists {
		t.Fatal("Item with key a should exist")
	}

	if prio != 300 {
		t.Errorf("Item with key a should have priority 300, got %d", prio)
	}

	// Check if heap property is maintained
	minKey, _, _ := mh.Peek()
	if minKey != "b" {
		t.Errorf("Min item should now be key b, got %s", minKey)
	}

	// Update to lower value
	mh.AddItem("b", 50)

	minKey, minPrio, _ := mh.Peek()
	if minKey != "b" || minPrio != 50 {
		t.Errorf("Min item should now be (b,50), got (%s,%d)", minKey, minPrio)
	}
}

// TestRemoveByKey tests removing items by key
func TestRemoveByKey(t *testing.T) {
	mh := NewMapHeap[string]()
	heap.Init(mh)

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)
	mh.AddItem("c", 300)

	// Remove item with key "b"
	value, exists := mh.RemoveByKey("b")

	if !exists {
		t.Fatal("RemoveByKey should return true for existing key")
	}

	if value != 200 {
		t.Errorf("RemoveByKey should return priority 200, got %d", value)
	}

	if mh.Len() != 2 {
		t.Errorf("Heap should have 2 items after removal, has %d", mh.Len())
	}

	if mh.Contains("b") {
		t.Error("Heap should not contain key b after removal")
	}

	// Try to remove non-existent key
	_, exists = mh.RemoveByKey("zz")
	if exists {
		t.Error("RemoveByKey should return false for non-existent key")
	}
}

// TestPopOrder tests if items are popped in correct order
func TestPopOrder(t *testing.T) {
	mh := NewMapHeap[string]()
	heap.Init(mh)

	// Add items in random order
	items := []struct {
		key   string
		value uint64
	}{
		{"e", 50},
		{"c", 30},
		{"a", 10},
		{"d", 40},
		{"b", 20},
	}

	for _, item := range items {
		mh.AddItem(item.key, item.value)
	}

	// Sort the items for comparison
	sort.Slice(items, func(i, j int) bool {
		return items[i].value < items[j].value
	})

	// Pop all items and verify order
	for i, expected := range items {
		if mh.Len() == 0 {
			t.Fatalf("Heap empty after %d items, expected %d items", i, len(items))
		}

		item := heap.Pop(mh).(*heapItem[string])
		if item.Key != expected.key || item.Priority != expected.value {
			t.Errorf("Pop %d: expected (%s,%d), got (%s,%d)",
				i, expected.key, expected.value, item.Key, item.Priority)
		}
	}

	if mh.Len() != 0 {
		t.Errorf("Heap should be empty after popping all items, has %d items", mh.Len())
	}
}

// TestPopBelow tests the sweep primitive
func TestPopBelow(t *testing.T) {
	mh := NewMapHeap[string]()
	heap.Init(mh)

	for i := 0; i < 10; i++ {
		mh.AddItem(fmt.Sprintf("key-%d", i), uint64(i*10))
	}

	var swept []string
	removed := mh.PopBelow(35, func(key string) {
		swept = append(swept, key)
	})

	// Deadlines 0, 10, 20, 30 are below the threshold
	if removed != 4 {
		t.Errorf("PopBelow(35) should remove 4 items, removed %d", removed)
	}

	if len(swept) != 4 {
		t.Errorf("Expected 4 swept keys, got %d", len(swept))
	}

	if mh.Len() != 6 {
		t.Errorf("Heap should have 6 items left, has %d", mh.Len())
	}

	// The remaining minimum must be at or above the threshold
	_, prio, _ := mh.Peek()
	if prio < 35 {
		t.Errorf("Remaining min priority should be >= 35, got %d", prio)
	}

	// Sweeping again with the same threshold is a no-op
	if n := mh.PopBelow(35, nil); n != 0 {
		t.Errorf("Second PopBelow(35) should remove nothing, removed %d", n)
	}
}

// TestPeekEmptyHeap tests behavior when peeking an empty heap
func TestPeekEmptyHeap(t *testing.T) {
	mh := NewMapHeap[string]()
	heap.Init(mh)

	_, _, exists := mh.Peek()
	if exists {
		t.Error("Peek on empty heap should return exists=false")
	}
}

// TestGetByKey tests retrieving items by key
func TestGetByKey(t *testing.T) {
	mh := NewMapHeap[string]()
	heap.Init(mh)

	mh.AddItem("a", 100)
	mh.AddItem("b", 200)

	// Get existing item
	prio, exists := mh.GetByKey("a")
	if !exists {
		t.Fatal("GetByKey should find existing key")
	}

	if prio != 100 {
		t.Errorf("GetByKey returned incorrect priority: expected 100, got %d", prio)
	}

	// Get non-existent item
	_, exists = mh.GetByKey("zz")
	if exists {
		t.Error("GetByKey should return exists=false for non-existent key")
	}
}
