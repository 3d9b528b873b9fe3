package journal

import (
	"sync"
	"testing"
)

func TestMemoryJournal(t *testing.T) {
	j := NewMemoryJournal()

	j.RecordEntry(1, OpCommand, 0, 1, []string{"SET", "k", "v"}, false)
	j.RecordEntry(2, OpMultiCommand, 0, 2, []string{"MSET", "a", "1"}, false)
	j.RecordEntry(2, OpExec, 0, 2, nil, true)

	entries := j.Entries()
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}

	if entries[0].Txid != 1 || entries[0].Opcode != OpCommand {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}

	execs := j.EntriesFor(OpExec)
	if len(execs) != 1 || execs[0].Txid != 2 {
		t.Errorf("Unexpected exec entries: %+v", execs)
	}

	// The journal must copy the payload
	payload := []string{"SET", "k2", "v2"}
	j.RecordEntry(3, OpCommand, 0, 1, payload, false)
	payload[2] = "mutated"
	entries = j.Entries()
	if entries[3].Payload[2] != "v2" {
		t.Errorf("Journal should store a copy of the payload, got %s", entries[3].Payload[2])
	}
}

func TestMemoryJournalConcurrent(t *testing.T) {
	j := NewMemoryJournal()

	const writers = 8
	const perWriter = 200

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				j.RecordEntry(uint64(w), OpCommand, 0, 1, []string{"SET"}, false)
			}
		}(w)
	}
	wg.Wait()

	if got := len(j.Entries()); got != writers*perWriter {
		t.Errorf("Expected %d entries, got %d", writers*perWriter, got)
	}
}

func TestNopJournal(t *testing.T) {
	// The nop journal must accept entries without observable effect
	j := NewNopJournal()
	j.RecordEntry(1, OpCommand, 0, 1, []string{"SET", "k", "v"}, true)
}

func TestOpString(t *testing.T) {
	if OpCommand.String() != "COMMAND" || OpMultiCommand.String() != "MULTI_COMMAND" || OpExec.String() != "EXEC" {
		t.Error("Unexpected opcode rendering")
	}
	if Op(99).String() != "UNKNOWN" {
		t.Error("Unknown opcode should render as UNKNOWN")
	}
}
