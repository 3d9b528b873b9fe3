package journal

import (
	"sync"
)

// --------------------------------------------------------------------------
// Journal Entry Types
// --------------------------------------------------------------------------

// Op is the opcode of a journal entry.
type Op uint8

const (
	// OpCommand records a standalone command execution on a shard.
	OpCommand Op = iota + 1
	// OpMultiCommand records one sub-command of an atomic multi batch.
	OpMultiCommand
	// OpExec closes an atomic multi batch on a shard.
	OpExec
)

func (op Op) String() string {
	switch op {
	case OpCommand:
		return "COMMAND"
	case OpMultiCommand:
		return "MULTI_COMMAND"
	case OpExec:
		return "EXEC"
	default:
		return "UNKNOWN"
	}
}

// Entry is a single journal record. ShardCnt carries the number of shards
// that participated in the recorded transaction so a replayer can match up
// the per-shard slices of a multi-shard operation.
type Entry struct {
	Txid     uint64
	Opcode   Op
	DbIndex  uint16
	ShardCnt uint32
	Payload  []string
}

// --------------------------------------------------------------------------
// Journal Interface
// --------------------------------------------------------------------------

// Journal is the write-ahead journal surface consumed by the transaction
// core. Implementations must be safe for concurrent use: every shard
// goroutine records entries independently.
//
// The await flag asks the journal to only return once the entry is durable;
// implementations without a durability story may ignore it.
type Journal interface {
	RecordEntry(txid uint64, opcode Op, dbIndex uint16, shardCnt uint32, payload []string, await bool)
}

// --------------------------------------------------------------------------
// Nop Journal
// --------------------------------------------------------------------------

// nopJournal drops every entry. It backs shards that run without journaling,
// so the transaction core can call journal hooks unconditionally.
type nopJournal struct{}

// NewNopJournal returns a journal that drops every entry.
func NewNopJournal() Journal {
	return nopJournal{}
}

func (nopJournal) RecordEntry(uint64, Op, uint16, uint32, []string, bool) {}

// --------------------------------------------------------------------------
// Memory Journal
// --------------------------------------------------------------------------

// MemoryJournal retains entries in memory. It exists for tests and for
// inspecting journaling behavior; durability is out of its scope.
type MemoryJournal struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryJournal creates an empty in-memory journal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// RecordEntry appends the entry (docu see Journal interface).
func (j *MemoryJournal) RecordEntry(txid uint64, opcode Op, dbIndex uint16, shardCnt uint32, payload []string, _ bool) {
	payloadCopy := make([]string, len(payload))
	copy(payloadCopy, payload)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, Entry{
		Txid:     txid,
		Opcode:   opcode,
		DbIndex:  dbIndex,
		ShardCnt: shardCnt,
		Payload:  payloadCopy,
	})
}

// Entries returns a snapshot of all recorded entries.
func (j *MemoryJournal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// EntriesFor returns all recorded entries with the given opcode.
func (j *MemoryJournal) EntriesFor(opcode Op) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Entry
	for _, e := range j.entries {
		if e.Opcode == opcode {
			out = append(out, e)
		}
	}
	return out
}
