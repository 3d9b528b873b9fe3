package shard

import (
	"runtime"
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/db/util"
	"github.com/ValentinKolb/sKV/lib/journal"
)

// Task is a closure executed on a shard's own goroutine.
type Task func(es *EngineShard)

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a ShardSet.
type Options struct {
	// NumShards is the number of engine shards (0 = number of CPUs). Fixed
	// for the lifetime of the set; the key->shard mapping depends on it.
	NumShards int

	// StoreFactory creates the per-(shard, database) stores.
	StoreFactory db.Factory

	// Journal receives the write journal of every shard. Nil disables
	// journaling (all journal hooks become no-ops).
	Journal journal.Journal

	// GCInterval is the idle interval between garbage collection sweeps on
	// each shard (0 = default).
	GCInterval time.Duration
}

const defaultGCInterval = 100 * time.Millisecond

// --------------------------------------------------------------------------
// ShardSet
// --------------------------------------------------------------------------

// ShardSet owns the engine shards and their runloops. Each shard runs one
// goroutine that consumes a multi-producer single-consumer task queue; this
// queue is the only way into a shard. Coordinators submit work with Add and
// join non-suspending fan-outs with RunBriefInParallel.
type ShardSet struct {
	shards []*EngineShard
	queues []*util.LockFreeMPSC[Task]
	wg     sync.WaitGroup
}

// NewShardSet creates the shards and starts their runloops.
func NewShardSet(opts Options) *ShardSet {
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}
	if opts.StoreFactory == nil {
		panic("shard: Options.StoreFactory is required")
	}
	gcInterval := opts.GCInterval
	if gcInterval <= 0 {
		gcInterval = defaultGCInterval
	}

	ss := &ShardSet{
		shards: make([]*EngineShard, numShards),
		queues: make([]*util.LockFreeMPSC[Task], numShards),
	}

	for i := 0; i < numShards; i++ {
		ss.shards[i] = newEngineShard(ShardId(i), opts.StoreFactory, opts.Journal)
		ss.queues[i] = util.NewLockFreeMPSC[Task]()
	}

	ss.wg.Add(numShards)
	for i := 0; i < numShards; i++ {
		go ss.runLoop(ss.shards[i], ss.queues[i], gcInterval)
	}

	log.Infof("started shard set with %d shards", numShards)
	return ss
}

// runLoop is the single-threaded executor of one shard. All shard-local
// state is touched exclusively from here.
func (ss *ShardSet) runLoop(es *EngineShard, q *util.LockFreeMPSC[Task], gcInterval time.Duration) {
	defer ss.wg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case task, ok := <-q.Recv():
			if !ok {
				// Queue closed: shut the shard down
				for _, store := range es.stores {
					_ = store.Close()
				}
				return
			}
			(*task)(es)

		case <-ticker.C:
			for _, store := range es.stores {
				store.CollectGarbage()
			}
		}
	}
}

// --------------------------------------------------------------------------
// Public API
// --------------------------------------------------------------------------

// Size returns the number of shards.
func (ss *ShardSet) Size() uint32 {
	return uint32(len(ss.shards))
}

// Shard returns the shard object itself. Callers must only touch its state
// from the shard's own goroutine (i.e. inside a Task); the accessor exists
// for tests and diagnostics.
func (ss *ShardSet) Shard(sid ShardId) *EngineShard {
	return ss.shards[sid]
}

// Add enqueues a task on the given shard's runloop. Returns false when the
// set is already closed.
func (ss *ShardSet) Add(sid ShardId, task Task) bool {
	return ss.queues[sid].Push(&task)
}

// RunBriefInParallel submits the task to every shard selected by pred (nil
// selects all) and blocks until every submission has run. The task must not
// block: it runs inline on the shard runloops.
func (ss *ShardSet) RunBriefInParallel(task Task, pred func(sid ShardId) bool) {
	var wg sync.WaitGroup

	for i := range ss.shards {
		sid := ShardId(i)
		if pred != nil && !pred(sid) {
			continue
		}

		wg.Add(1)
		ok := ss.Add(sid, func(es *EngineShard) {
			defer wg.Done()
			task(es)
		})
		if !ok {
			wg.Done()
		}
	}

	wg.Wait()
}

// Close shuts down all runloops and waits for them to finish. Pending tasks
// are still executed before the shards stop.
func (ss *ShardSet) Close() {
	for _, q := range ss.queues {
		q.Close()
	}
	ss.wg.Wait()
	log.Infof("shard set stopped")
}
