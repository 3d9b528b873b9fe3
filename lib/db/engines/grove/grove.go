package grove

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/db/util"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum     = "GROVEDB\x00" // File format identifier
	groveVersion = 1             // Database version
)

// Value kinds stored in an entry. A key holds either a string value or a
// list, never both.
const (
	kindString uint8 = iota
	kindList
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with metadata)
// --------------------------------------------------------------------------

// entry stores a value (string or list) with TTL metadata.
type entry struct {
	Kind     uint8    // kindString or kindList
	Value    []byte   // String payload (Kind == kindString)
	List     [][]byte // List payload (Kind == kindList)
	ExpireAt uint64   // Expiration timestamp (0 = none)
	DeleteAt uint64   // Deletion timestamp (0 = none)
	Index    uint64   // Write index when this entry was created/updated
}

// ttlInfo returns whether the entry is expired and whether it is deleted at
// the given write index.
func (e entry) ttlInfo(writeIdx uint64) (bool, bool) {
	var (
		isExpired = e.ExpireAt != 0 && writeIdx >= e.ExpireAt
		isDeleted = e.DeleteAt != 0 && writeIdx >= e.DeleteAt
	)

	return isExpired, isDeleted
}

// --------------------------------------------------------------------------
// Core Grove store structure
// --------------------------------------------------------------------------

// groveImpl implements a per-shard store. Unlike a process-wide database it
// is single-threaded by contract: the owning engine shard is the only
// goroutine that ever touches it, so no internal synchronization is needed.
type groveImpl struct {
	data       map[string]entry
	expireHeap *util.MapHeap[string] // entries with an expiration deadline
	deleteHeap *util.MapHeap[string] // entries with a deletion deadline
	currIndex  uint64                // current logical timestamp
}

// NewStore creates a new grove store instance.
//
// Thread-safety: the returned store is NOT safe for concurrent use. It is
// designed to be owned by a single engine shard goroutine.
func NewStore() db.Store {
	g := &groveImpl{
		data:       make(map[string]entry),
		expireHeap: util.NewMapHeap[string](),
		deleteHeap: util.NewMapHeap[string](),
	}
	heap.Init(g.expireHeap)
	heap.Init(g.deleteHeap)
	return g
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// load returns the live entry for a key, hiding logically deleted entries.
// The second return value is false for absent or deleted keys.
func (g *groveImpl) load(key string) (entry, bool) {
	e, ok := g.data[key]
	if !ok {
		return entry{}, false
	}
	if _, isDeleted := e.ttlInfo(g.currIndex); isDeleted {
		return entry{}, false
	}
	return e, true
}

// register tracks the TTL deadlines of a freshly written entry in the sweep
// heaps, or untracks them when the deadlines were cleared.
func (g *groveImpl) register(key string, e entry) {
	if e.ExpireAt != 0 {
		g.expireHeap.AddItem(key, e.ExpireAt)
	} else {
		g.expireHeap.RemoveByKey(key)
	}
	if e.DeleteAt != 0 {
		g.deleteHeap.AddItem(key, e.DeleteAt)
	} else {
		g.deleteHeap.RemoveByKey(key)
	}
}

// --------------------------------------------------------------------------
// Store Interface Methods - Write Operations
// --------------------------------------------------------------------------

// Set inserts or updates a string entry (docu see db.Store).
func (g *groveImpl) Set(key string, value []byte, writeIndex uint64) {
	g.SetE(key, value, writeIndex, 0, 0)
}

// SetE inserts or updates a string entry with TTL offsets (docu see db.Store).
func (g *groveImpl) SetE(key string, value []byte, writeIndex uint64, expireIn, deleteIn uint64) {
	g.SetWriteIdx(writeIndex)

	// Stale writes are ignored
	if old, ok := g.data[key]; ok && writeIndex < old.Index {
		return
	}

	// Copy value to prevent aliasing with caller memory
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	var expireAt, deleteAt uint64
	if expireIn > 0 {
		expireAt = writeIndex + expireIn
	}
	if deleteIn > 0 {
		deleteAt = writeIndex + deleteIn
	}

	e := entry{
		Kind:     kindString,
		Value:    valueCopy,
		ExpireAt: expireAt,
		DeleteAt: deleteAt,
		Index:    writeIndex,
	}
	g.data[key] = e
	g.register(key, e)
}

// Expire marks the entry as expired (docu see db.Store).
func (g *groveImpl) Expire(key string, writeIndex uint64) {
	g.SetWriteIdx(writeIndex)

	e, ok := g.load(key)
	if !ok {
		return
	}

	e.Value = nil
	e.List = nil
	e.ExpireAt = writeIndex
	e.Index = writeIndex
	g.data[key] = e
	g.register(key, e)
}

// Delete removes an entry (docu see db.Store).
func (g *groveImpl) Delete(key string, writeIndex uint64) bool {
	g.SetWriteIdx(writeIndex)

	_, ok := g.load(key)
	delete(g.data, key)
	g.expireHeap.RemoveByKey(key)
	g.deleteHeap.RemoveByKey(key)
	return ok
}

// Rename moves src to dst (docu see db.Store).
func (g *groveImpl) Rename(src, dst string, writeIndex uint64) bool {
	g.SetWriteIdx(writeIndex)

	e, ok := g.load(src)
	if !ok {
		return false
	}

	g.Delete(src, writeIndex)
	e.Index = writeIndex
	g.data[dst] = e
	g.register(dst, e)
	return true
}

// Flush removes every entry (docu see db.Store).
func (g *groveImpl) Flush() {
	g.data = make(map[string]entry)
	g.expireHeap = util.NewMapHeap[string]()
	g.deleteHeap = util.NewMapHeap[string]()
	heap.Init(g.expireHeap)
	heap.Init(g.deleteHeap)
}

// --------------------------------------------------------------------------
// Store Interface Methods - List Operations
// --------------------------------------------------------------------------

// ListPush appends elements to the list under key (docu see db.Store).
func (g *groveImpl) ListPush(key string, elems [][]byte, front bool, writeIndex uint64) (int, bool) {
	g.SetWriteIdx(writeIndex)

	e, ok := g.load(key)
	if ok && e.Kind != kindList {
		return 0, false
	}
	if !ok {
		e = entry{Kind: kindList}
	}

	for _, elem := range elems {
		elemCopy := make([]byte, len(elem))
		copy(elemCopy, elem)

		if front {
			e.List = append([][]byte{elemCopy}, e.List...)
		} else {
			e.List = append(e.List, elemCopy)
		}
	}

	e.Index = writeIndex
	g.data[key] = e
	g.register(key, e)
	return len(e.List), true
}

// ListPop removes one element of the list under key (docu see db.Store).
func (g *groveImpl) ListPop(key string, front bool, writeIndex uint64) ([]byte, bool) {
	g.SetWriteIdx(writeIndex)

	e, ok := g.load(key)
	if !ok || e.Kind != kindList || len(e.List) == 0 {
		return nil, false
	}

	var val []byte
	if front {
		val = e.List[0]
		e.List = e.List[1:]
	} else {
		val = e.List[len(e.List)-1]
		e.List = e.List[:len(e.List)-1]
	}

	if len(e.List) == 0 {
		// An emptied list is removed, like a deleted key
		g.Delete(key, writeIndex)
	} else {
		e.Index = writeIndex
		g.data[key] = e
	}

	return val, true
}

// ListLen returns the list length for key (docu see db.Store).
func (g *groveImpl) ListLen(key string) int {
	e, ok := g.load(key)
	if !ok || e.Kind != kindList {
		return 0
	}
	return len(e.List)
}

// --------------------------------------------------------------------------
// Store Interface Methods - Read Operations
// --------------------------------------------------------------------------

// Get retrieves a string value for a key (docu see db.Store).
// The returned value is a copy of the stored data and safe to modify.
func (g *groveImpl) Get(key string) ([]byte, bool) {
	e, ok := g.load(key)
	if !ok || e.Kind != kindString {
		return nil, false
	}

	// An expired entry is still present but reads as absent
	if isExpired, _ := e.ttlInfo(g.currIndex); isExpired {
		return nil, false
	}

	data := make([]byte, len(e.Value))
	copy(data, e.Value)
	return data, true
}

// Has checks if a key exists (docu see db.Store).
// Expired (but not deleted) keys are still findable.
func (g *groveImpl) Has(key string) bool {
	_, ok := g.load(key)
	return ok
}

// Len returns the number of logically present entries (docu see db.Store).
func (g *groveImpl) Len() int {
	count := 0
	for _, e := range g.data {
		if _, isDeleted := e.ttlInfo(g.currIndex); !isDeleted {
			count++
		}
	}
	return count
}

// --------------------------------------------------------------------------
// Garbage Collection
// --------------------------------------------------------------------------

// CollectGarbage sweeps both deadline heaps up to the current write index.
// Expired entries drop their payload but stay findable; deleted entries are
// physically removed. The owning shard calls this from its runloop, so no
// background goroutine is needed.
func (g *groveImpl) CollectGarbage() int {
	writeIndex := g.currIndex

	// PopBelow takes a strict threshold, deadlines are inclusive
	threshold := writeIndex + 1

	g.expireHeap.PopBelow(threshold, func(key string) {
		e, ok := g.data[key]
		if !ok {
			return
		}

		// Re-check: the entry may have been refreshed since it was tracked
		if isExpired, _ := e.ttlInfo(writeIndex); !isExpired {
			return
		}

		e.Value = nil
		e.List = nil
		g.data[key] = e
	})

	removed := 0
	g.deleteHeap.PopBelow(threshold, func(key string) {
		e, ok := g.data[key]
		if !ok {
			return
		}

		if _, isDeleted := e.ttlInfo(writeIndex); !isDeleted {
			return
		}

		delete(g.data, key)
		g.expireHeap.RemoveByKey(key)
		removed++
	})

	return removed
}

// --------------------------------------------------------------------------
// Persistence Operations
// --------------------------------------------------------------------------

// Save persists the store to the writer in a binary format.
func (g *groveImpl) Save(w io.Writer) error {
	// Use a buffered writer for better performance
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}

	// Write grove version
	if err := binary.Write(bw, binary.LittleEndian, uint8(groveVersion)); err != nil {
		return err
	}

	// Write current write index
	if err := binary.Write(bw, binary.LittleEndian, g.currIndex); err != nil {
		return err
	}

	// Collect live entries (deleted entries are not persisted)
	type entryToSave struct {
		key   string
		entry entry
	}
	var entries []entryToSave
	for key, e := range g.data {
		if _, isDeleted := e.ttlInfo(g.currIndex); isDeleted {
			continue
		}
		entries = append(entries, entryToSave{key, e})
	}

	// Write total entry count
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(entries))); err != nil {
		return err
	}

	writeBlob := func(b []byte) error {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(b))); err != nil {
			return err
		}
		_, err := bw.Write(b)
		return err
	}

	for _, item := range entries {
		// Write key
		if err := writeBlob([]byte(item.key)); err != nil {
			return err
		}

		// Write kind, timestamps and index
		if err := binary.Write(bw, binary.LittleEndian, item.entry.Kind); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.ExpireAt); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.DeleteAt); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, item.entry.Index); err != nil {
			return err
		}

		// Write payload
		switch item.entry.Kind {
		case kindString:
			if err := writeBlob(item.entry.Value); err != nil {
				return err
			}
		case kindList:
			if err := binary.Write(bw, binary.LittleEndian, uint32(len(item.entry.List))); err != nil {
				return err
			}
			for _, elem := range item.entry.List {
				if err := writeBlob(elem); err != nil {
					return err
				}
			}
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load restores the store from the reader, replacing the current content.
func (g *groveImpl) Load(r io.Reader) error {
	// Use a buffered reader for better performance
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != groveVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, groveVersion)
	}

	// Read write index
	var writeIndex uint64
	if err := binary.Read(br, binary.LittleEndian, &writeIndex); err != nil {
		return err
	}

	// Reset state
	g.Flush()
	g.currIndex = 0

	readBlob := func() ([]byte, error) {
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(br, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	// Read entry count
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	for i := uint64(0); i < count; i++ {
		keyBytes, err := readBlob()
		if err != nil {
			return err
		}
		key := string(keyBytes)

		var e entry
		if err := binary.Read(br, binary.LittleEndian, &e.Kind); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &e.ExpireAt); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &e.DeleteAt); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &e.Index); err != nil {
			return err
		}

		switch e.Kind {
		case kindString:
			if e.Value, err = readBlob(); err != nil {
				return err
			}
		case kindList:
			var elems uint32
			if err := binary.Read(br, binary.LittleEndian, &elems); err != nil {
				return err
			}
			for j := uint32(0); j < elems; j++ {
				elem, err := readBlob()
				if err != nil {
					return err
				}
				e.List = append(e.List, elem)
			}
		default:
			return fmt.Errorf("unknown value kind: %d", e.Kind)
		}

		g.data[key] = e
		g.register(key, e)
	}

	g.SetWriteIdx(writeIndex)
	return nil
}

// --------------------------------------------------------------------------
// Store Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

const supportedFeatures = db.FeatureSet |
	db.FeatureSetE |
	db.FeatureGet |
	db.FeatureExpire |
	db.FeatureDelete |
	db.FeatureHas |
	db.FeatureLists |
	db.FeatureRename |
	db.FeatureFlush |
	db.FeatureSave |
	db.FeatureLoad |
	db.FeatureGarbageCollect

// GetInfo returns statistics about the store
func (g *groveImpl) GetInfo() db.DatabaseInfo {
	// create a size histogram for the info
	histogram := util.NewSizeHistogram()

	expiredBacklog := 0
	for _, e := range g.data {
		size := len(e.Value)
		for _, elem := range e.List {
			size += len(elem)
		}
		histogram.AddSample(size)

		if isExpired, _ := e.ttlInfo(g.currIndex); isExpired && (e.Value != nil || e.List != nil) {
			expiredBacklog++
		}
	}

	// calculate size estimate
	entryOverhead := 32 // kind + expireAt + deleteAt + index
	medianSize := histogram.MedianEstimate() + entryOverhead
	avgSize := histogram.AverageSize() + entryOverhead

	// weighted estimate (60% median, 40% average)
	sizeBytes := (medianSize*60 + avgSize*40) / 100

	meta := &struct {
		CurrentWriteIndex uint64 `json:"current_write_index"`
		ExpiredBacklog    int    `json:"expired_backlog"`
		PendingDeadlines  int    `json:"pending_deadlines"`
		Info              string `json:"info"`
	}{
		CurrentWriteIndex: g.currIndex,
		ExpiredBacklog:    expiredBacklog,
		PendingDeadlines:  g.expireHeap.Len() + g.deleteHeap.Len(),
		Info:              "All values (including SizeBytes) are estimates and may vary depending on the store state.",
	}

	return db.DatabaseInfo{
		SizeBytes:  sizeBytes,
		NumEntries: g.Len(),
		DbType:     db.ImplGrove,
		SupportedFeatures: []db.Feature{
			db.FeatureSet, db.FeatureSetE, db.FeatureGet,
			db.FeatureExpire, db.FeatureDelete, db.FeatureHas,
			db.FeatureLists, db.FeatureRename, db.FeatureFlush,
			db.FeatureSave, db.FeatureLoad, db.FeatureGarbageCollect,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific feature
func (g *groveImpl) SupportsFeature(feature db.Feature) bool {
	return supportedFeatures&feature == feature
}

// Close releases the store. Grove holds no external resources.
func (g *groveImpl) Close() error {
	return nil
}

// --------------------------------------------------------------------------
// Index and Timestamp Management
// --------------------------------------------------------------------------

// SetWriteIdx updates the current index.
// It only updates if the new index is greater than the current one.
func (g *groveImpl) SetWriteIdx(newIdx uint64) {
	if newIdx > g.currIndex {
		g.currIndex = newIdx
	}
}

// WriteIdx returns the current index of the store
func (g *groveImpl) WriteIdx() uint64 {
	return g.currIndex
}
