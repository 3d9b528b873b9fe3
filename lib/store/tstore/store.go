package tstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ValentinKolb/sKV/lib/command"
	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/db/util"
	"github.com/ValentinKolb/sKV/lib/shard"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/txn"
)

// storeImpl implements store.IStore on top of the transaction coordination
// core: every call builds a transaction, schedules it and runs the operation
// callback on the owning shard(s).
type storeImpl struct {
	ss  *shard.ShardSet
	reg *command.Registry
	db  shard.DbIndex
}

// NewTransactionalStore creates a store over the given shard set. All
// operations of the returned store go through the transaction layer, so
// concurrent callers observe per-key serializability and MSet/MGet are
// atomic across shards.
func NewTransactionalStore(ss *shard.ShardSet, reg *command.Registry, dbIndex shard.DbIndex) store.IStore {
	return &storeImpl{
		ss:  ss,
		reg: reg,
		db:  dbIndex,
	}
}

// newTx builds a transaction for the named command over the given argument
// vector.
func (s *storeImpl) newTx(name string, args []string) (*txn.Transaction, error) {
	cid, ok := s.reg.Get(name)
	if !ok {
		return nil, store.NewError(store.RetCUnsupportedOperation, fmt.Sprintf("command %s not registered", name))
	}

	t := txn.New(cid, s.ss)
	if status := t.InitByArgs(s.db, args); status != txn.OpOK {
		return nil, store.NewError(store.RetCInvalidOperation, status.String())
	}
	return t, nil
}

// statusErr converts a hop status into the store error convention.
func statusErr(status txn.OpStatus) error {
	if status == txn.OpOK {
		return nil
	}
	return store.NewError(store.RetCInternalError, status.String())
}

// nextIdx returns the next write index of this shard's store.
func nextIdx(st db.Store) uint64 {
	return st.WriteIdx() + 1
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	t, err := s.newTx("SET", []string{"SET", key, string(value)})
	if err != nil {
		return err
	}

	status := t.ScheduleSingleHop(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		st := es.Store(t.DbIndex())
		st.Set(key, value, nextIdx(st))
		return txn.OpOK
	})
	return statusErr(status)
}

func (s *storeImpl) SetE(key string, value []byte, expireIn, deleteIn uint64) error {
	args := []string{"SETEX", key, string(value),
		strconv.FormatUint(expireIn, 10), strconv.FormatUint(deleteIn, 10)}
	t, err := s.newTx("SETEX", args)
	if err != nil {
		return err
	}

	status := t.ScheduleSingleHop(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		st := es.Store(t.DbIndex())
		st.SetE(key, value, nextIdx(st), expireIn, deleteIn)
		return txn.OpOK
	})
	return statusErr(status)
}

func (s *storeImpl) Expire(key string) error {
	t, err := s.newTx("EXPIRE", []string{"EXPIRE", key, "0"})
	if err != nil {
		return err
	}

	status := t.ScheduleSingleHop(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		st := es.Store(t.DbIndex())
		st.Expire(key, nextIdx(st))
		return txn.OpOK
	})
	return statusErr(status)
}

func (s *storeImpl) Delete(key string) error {
	t, err := s.newTx("DEL", []string{"DEL", key})
	if err != nil {
		return err
	}

	status := t.ScheduleSingleHop(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		st := es.Store(t.DbIndex())
		st.Delete(key, nextIdx(st))
		return txn.OpOK
	})
	return statusErr(status)
}

func (s *storeImpl) Rename(src, dst string) error {
	t, err := s.newTx("RENAME", []string{"RENAME", src, dst})
	if err != nil {
		return err
	}
	t.Schedule()

	srcSid := shard.ShardOf(src, s.ss.Size())
	dstSid := shard.ShardOf(dst, s.ss.Size())

	// Hop 1: read and remove the source value on its shard. found/value are
	// written by the source shard only and read by the coordinator after the
	// hop barrier.
	var value []byte
	var found bool
	status := t.Execute(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		if es.ShardId() != srcSid {
			return txn.OpOK
		}
		st := es.Store(t.DbIndex())
		if v, ok := st.Get(src); ok {
			value = v
			found = true
			st.Delete(src, nextIdx(st))
		}
		return txn.OpOK
	}, false)
	if status != txn.OpOK {
		t.Execute(func(*txn.Transaction, *shard.EngineShard) txn.OpStatus { return txn.OpOK }, true)
		return statusErr(status)
	}

	// Hop 2: write the destination (or just conclude if the source was
	// missing).
	status = t.Execute(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		if found && es.ShardId() == dstSid {
			st := es.Store(t.DbIndex())
			st.Set(dst, value, nextIdx(st))
		}
		return txn.OpOK
	}, true)
	if err := statusErr(status); err != nil {
		return err
	}

	if !found {
		return store.NewError(store.RetCNotFound, fmt.Sprintf("no such key: %s", src))
	}
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	t, err := s.newTx("GET", []string{"GET", key})
	if err != nil {
		return nil, false, err
	}

	var value []byte
	var loaded bool
	status := t.ScheduleSingleHop(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		value, loaded = es.Store(t.DbIndex()).Get(key)
		return txn.OpOK
	})
	return value, loaded, statusErr(status)
}

func (s *storeImpl) Has(key string) (bool, error) {
	t, err := s.newTx("EXISTS", []string{"EXISTS", key})
	if err != nil {
		return false, err
	}

	var loaded bool
	status := t.ScheduleSingleHop(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		loaded = es.Store(t.DbIndex()).Has(key)
		return txn.OpOK
	})
	return loaded, statusErr(status)
}

func (s *storeImpl) MSet(keysAndValues ...string) error {
	if len(keysAndValues) == 0 || len(keysAndValues)%2 != 0 {
		return store.NewError(store.RetCInvalidOperation, "MSet requires an even number of arguments")
	}

	t, err := s.newTx("MSET", append([]string{"MSET"}, keysAndValues...))
	if err != nil {
		return err
	}

	status := t.ScheduleSingleHop(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		args := t.ShardArgs(es.ShardId())
		st := es.Store(t.DbIndex())
		for i := 0; i+1 < len(args); i += 2 {
			st.Set(args[i], []byte(args[i+1]), nextIdx(st))
		}
		return txn.OpOK
	})
	return statusErr(status)
}

func (s *storeImpl) MGet(keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, store.NewError(store.RetCInvalidOperation, "MGet requires at least one key")
	}

	t, err := s.newTx("MGET", append([]string{"MGET"}, keys...))
	if err != nil {
		return nil, err
	}

	// Each shard fills the slots of its own keys; the reverse index maps a
	// shard-local argument back to the caller's position.
	results := make([][]byte, len(keys))
	status := t.ScheduleSingleHop(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		sid := es.ShardId()
		args := t.ShardArgs(sid)
		st := es.Store(t.DbIndex())
		for i, key := range args {
			if value, ok := st.Get(key); ok {
				results[t.ReverseArgIndex(sid, i)] = value
			}
		}
		return txn.OpOK
	})
	if err := statusErr(status); err != nil {
		return nil, err
	}
	return results, nil
}

// --------------------------------------------------------------------------
// List Operations
// --------------------------------------------------------------------------

// push implements LPush/RPush. After the write it reports the touched key to
// the blocking controller so pending BLPop waiters get notified when the hop
// concludes.
func (s *storeImpl) push(cmd, key string, values [][]byte, front bool) (int, error) {
	args := []string{cmd, key}
	for _, v := range values {
		args = append(args, string(v))
	}
	t, err := s.newTx(cmd, args)
	if err != nil {
		return 0, err
	}

	var length int
	var wrongType bool
	status := t.ScheduleSingleHop(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		st := es.Store(t.DbIndex())
		n, ok := st.ListPush(key, values, front, nextIdx(st))
		if !ok {
			wrongType = true
			return txn.OpOK
		}
		length = n

		if bc := es.BlockingController(); bc != nil {
			bc.AwakeWatched(t.DbIndex(), key)
		}
		return txn.OpOK
	})
	if err := statusErr(status); err != nil {
		return 0, err
	}
	if wrongType {
		return 0, store.NewError(store.RetCWrongType, fmt.Sprintf("key %s holds a non-list value", key))
	}
	return length, nil
}

func (s *storeImpl) LPush(key string, values ...[]byte) (int, error) {
	return s.push("LPUSH", key, values, true)
}

func (s *storeImpl) RPush(key string, values ...[]byte) (int, error) {
	return s.push("RPUSH", key, values, false)
}

func (s *storeImpl) LPop(key string) ([]byte, bool, error) {
	t, err := s.newTx("LPOP", []string{"LPOP", key})
	if err != nil {
		return nil, false, err
	}

	var value []byte
	var loaded bool
	status := t.ScheduleSingleHop(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		st := es.Store(t.DbIndex())
		value, loaded = st.ListPop(key, true, nextIdx(st))
		return txn.OpOK
	})
	return value, loaded, statusErr(status)
}

func (s *storeImpl) BLPop(key string, timeout time.Duration) ([]byte, bool, error) {
	t, err := s.newTx("BLPOP", []string{"BLPOP", key, timeout.String()})
	if err != nil {
		return nil, false, err
	}
	t.Schedule()

	var value []byte
	var loaded bool
	popCb := func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		st := es.Store(t.DbIndex())
		if v, ok := st.ListPop(key, true, nextIdx(st)); ok {
			value = v
			loaded = true
		}
		return txn.OpOK
	}

	// First hop: try to pop without concluding; keys stay locked so the
	// watch registration below cannot race a writer.
	if status := t.Execute(popCb, false); status != txn.OpOK {
		t.Execute(func(*txn.Transaction, *shard.EngineShard) txn.OpStatus { return txn.OpOK }, true)
		return nil, false, statusErr(status)
	}
	if loaded {
		// Conclude and release.
		t.Execute(func(*txn.Transaction, *shard.EngineShard) txn.OpStatus { return txn.OpOK }, true)
		return value, true, nil
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	provider := func(t *txn.Transaction, es *shard.EngineShard) []string {
		return t.ShardArgs(es.ShardId())
	}

	if !t.WaitOnWatch(deadline, provider) {
		// Timed out or cancelled; the watch hop has been rolled back.
		return nil, false, nil
	}

	// Woken by a writer: pop on the concluding hop.
	if status := t.Execute(popCb, true); status != txn.OpOK {
		return nil, false, statusErr(status)
	}
	return value, loaded, nil
}

// --------------------------------------------------------------------------
// Maintenance Operations
// --------------------------------------------------------------------------

func (s *storeImpl) Flush() error {
	t, err := s.newTx("FLUSHDB", []string{"FLUSHDB"})
	if err != nil {
		return err
	}

	status := t.ScheduleSingleHop(func(t *txn.Transaction, es *shard.EngineShard) txn.OpStatus {
		es.Store(t.DbIndex()).Flush()
		return txn.OpOK
	})
	return statusErr(status)
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	infos := make([]db.DatabaseInfo, s.ss.Size())
	s.ss.RunBriefInParallel(func(es *shard.EngineShard) {
		infos[es.ShardId()] = es.Store(s.db).GetInfo()
	}, nil)

	var total db.DatabaseInfo
	total.DbType = db.ImplGrove
	shardSizes := make([]float64, len(infos))
	for i, info := range infos {
		total.NumEntries += info.NumEntries
		total.SizeBytes += info.SizeBytes * info.NumEntries
		shardSizes[i] = float64(info.NumEntries)
	}
	if len(infos) > 0 {
		total.SupportedFeatures = infos[0].SupportedFeatures
	}

	total.Metadata = &struct {
		ShardCount        int                    `json:"shard_count"`
		ShardDistribution util.DistributionStats `json:"shard_distribution"`
	}{
		ShardCount:        len(infos),
		ShardDistribution: util.NewDistributionStats(shardSizes),
	}
	return total, nil
}

func (s *storeImpl) Close() error {
	// The shard set is shared infrastructure; its owner closes it.
	return nil
}
