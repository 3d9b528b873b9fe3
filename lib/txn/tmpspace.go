package txn

import "sync"

// perShardCache is the per-shard bucket of the argument distribution
// scratch: the shard's argument slice and, when reverse mapping is needed,
// the original position of each argument.
type perShardCache struct {
	args            []string
	originalIndex   []int
	requestedActive bool
}

func (c *perShardCache) clear() {
	c.args = c.args[:0]
	c.originalIndex = c.originalIndex[:0]
	c.requestedActive = false
}

// tmpSpace is the reusable scratch borrowed by InitByKeys: the shard index
// for argument bucketing and a set for key deduplication. It replaces a
// per-thread static with an explicit pool; a borrowed tmpSpace must never be
// held across a suspension point.
type tmpSpace struct {
	shardCache []perShardCache
	uniqKeys   map[string]struct{}
}

// getShardIndex returns the cleared shard index resized to size buckets.
func (ts *tmpSpace) getShardIndex(size int) []perShardCache {
	if cap(ts.shardCache) < size {
		ts.shardCache = make([]perShardCache, size)
	}
	ts.shardCache = ts.shardCache[:size]
	for i := range ts.shardCache {
		ts.shardCache[i].clear()
	}
	return ts.shardCache
}

// getUniqKeys returns the cleared key deduplication set.
func (ts *tmpSpace) getUniqKeys() map[string]struct{} {
	clear(ts.uniqKeys)
	return ts.uniqKeys
}

var tmpSpacePool = sync.Pool{
	New: func() interface{} {
		return &tmpSpace{uniqKeys: make(map[string]struct{})}
	},
}

// borrowTmpSpace takes a scratch buffer from the pool.
func borrowTmpSpace() *tmpSpace {
	return tmpSpacePool.Get().(*tmpSpace)
}

// returnTmpSpace hands the scratch buffer back.
func returnTmpSpace(ts *tmpSpace) {
	tmpSpacePool.Put(ts)
}
