package lstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/store"
)

// storeImpl implements store.IStore over a single storage partition guarded
// by a mutex. It provides no sharding and no transactional cross-key
// atomicity beyond the mutex itself; it exists as the trivial baseline
// implementation and for embedding in tools that don't need the engine.
type storeImpl struct {
	mu    sync.Mutex
	cond  *sync.Cond
	db    db.Store
	index uint64
}

// NewLocalStore creates a new local store instance. This store
// implementation wraps a single db.Store with a lock; all operations are
// linearizable but sequential.
func NewLocalStore(factory db.Factory) store.IStore {
	s := &storeImpl{db: factory()}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// incAndGetIndex increments the write index and returns the new value.
// Callers must hold the mutex.
func (s *storeImpl) incAndGetIndex() uint64 {
	s.index++
	return s.index
}

// requireFeature returns an error when the underlying storage does not
// support the feature.
func (s *storeImpl) requireFeature(f db.Feature, op string) error {
	if !s.db.SupportsFeature(f) {
		return store.NewError(store.RetCUnsupportedOperation, op+" operation is not supported")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if err := s.requireFeature(db.FeatureSet, "Set"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Set(key, value, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) SetE(key string, value []byte, expireIn, deleteIn uint64) error {
	if err := s.requireFeature(db.FeatureSetE, "SetE"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.SetE(key, value, s.incAndGetIndex(), expireIn, deleteIn)
	return nil
}

func (s *storeImpl) Expire(key string) error {
	if err := s.requireFeature(db.FeatureExpire, "Expire"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Expire(key, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) Delete(key string) error {
	if err := s.requireFeature(db.FeatureDelete, "Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Delete(key, s.incAndGetIndex())
	return nil
}

func (s *storeImpl) Rename(src, dst string) error {
	if err := s.requireFeature(db.FeatureRename, "Rename"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.db.Rename(src, dst, s.incAndGetIndex()) {
		return store.NewError(store.RetCNotFound, fmt.Sprintf("no such key: %s", src))
	}
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if err := s.requireFeature(db.FeatureGet, "Get"); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	value, loaded := s.db.Get(key)
	return value, loaded, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	if err := s.requireFeature(db.FeatureHas, "Has"); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Has(key), nil
}

func (s *storeImpl) MSet(keysAndValues ...string) error {
	if err := s.requireFeature(db.FeatureSet, "MSet"); err != nil {
		return err
	}
	if len(keysAndValues) == 0 || len(keysAndValues)%2 != 0 {
		return store.NewError(store.RetCInvalidOperation, "MSet requires an even number of arguments")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		s.db.Set(keysAndValues[i], []byte(keysAndValues[i+1]), s.incAndGetIndex())
	}
	return nil
}

func (s *storeImpl) MGet(keys ...string) ([][]byte, error) {
	if err := s.requireFeature(db.FeatureGet, "MGet"); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, store.NewError(store.RetCInvalidOperation, "MGet requires at least one key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([][]byte, len(keys))
	for i, key := range keys {
		if value, ok := s.db.Get(key); ok {
			results[i] = value
		}
	}
	return results, nil
}

// --------------------------------------------------------------------------
// List Operations
// --------------------------------------------------------------------------

func (s *storeImpl) push(key string, values [][]byte, front bool) (int, error) {
	if err := s.requireFeature(db.FeatureLists, "Push"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.db.ListPush(key, values, front, s.incAndGetIndex())
	if !ok {
		return 0, store.NewError(store.RetCWrongType, fmt.Sprintf("key %s holds a non-list value", key))
	}
	// Wake blocked poppers
	s.cond.Broadcast()
	return n, nil
}

func (s *storeImpl) LPush(key string, values ...[]byte) (int, error) {
	return s.push(key, values, true)
}

func (s *storeImpl) RPush(key string, values ...[]byte) (int, error) {
	return s.push(key, values, false)
}

func (s *storeImpl) LPop(key string) ([]byte, bool, error) {
	if err := s.requireFeature(db.FeatureLists, "LPop"); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	value, loaded := s.db.ListPop(key, true, s.incAndGetIndex())
	return value, loaded, nil
}

func (s *storeImpl) BLPop(key string, timeout time.Duration) ([]byte, bool, error) {
	if err := s.requireFeature(db.FeatureLists, "BLPop"); err != nil {
		return nil, false, err
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)

		// A condition variable has no timed wait, so a timer broadcast
		// bounds the waiting below.
		timer := time.AfterFunc(timeout, func() {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		defer timer.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if value, loaded := s.db.ListPop(key, true, s.incAndGetIndex()); loaded {
			return value, true, nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, false, nil
		}
		s.cond.Wait()
	}
}

// --------------------------------------------------------------------------
// Maintenance Operations
// --------------------------------------------------------------------------

func (s *storeImpl) Flush() error {
	if err := s.requireFeature(db.FeatureFlush, "Flush"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Flush()
	return nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.GetInfo(), nil
}

func (s *storeImpl) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
