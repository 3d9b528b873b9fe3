// Package fjournal provides a stream-backed journal implementation. Entries
// are encoded with a pluggable serializer and written length-prefixed to an
// io.Writer (typically an append-only file). A matching reader restores the
// entry sequence for replay.
package fjournal

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"

	"github.com/ValentinKolb/sKV/lib/journal"
	"github.com/ValentinKolb/sKV/lib/serializer"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("journal")

// StreamJournal writes serialized entries to a stream. It implements the
// journal.Journal interface.
//
// Thread-safety: RecordEntry may be called from every shard goroutine
// concurrently; writes are serialized by an internal mutex.
type StreamJournal struct {
	mu  sync.Mutex
	w   *bufio.Writer
	ser serializer.IEntrySerializer
}

// NewStreamJournal creates a journal writing to w using the given serializer.
func NewStreamJournal(w io.Writer, ser serializer.IEntrySerializer) *StreamJournal {
	return &StreamJournal{
		w:   bufio.NewWriterSize(w, 64*1024),
		ser: ser,
	}
}

// RecordEntry encodes and appends the entry (docu see journal.Journal).
// When await is set the buffer is flushed before returning.
func (j *StreamJournal) RecordEntry(txid uint64, opcode journal.Op, dbIndex uint16, shardCnt uint32, payload []string, await bool) {
	data, err := j.ser.Serialize(journal.Entry{
		Txid:     txid,
		Opcode:   opcode,
		DbIndex:  dbIndex,
		ShardCnt: shardCnt,
		Payload:  payload,
	})
	if err != nil {
		log.Errorf("failed to serialize journal entry txid=%d: %v", txid, err)
		return
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.w.Write(lenBuf[:]); err != nil {
		log.Errorf("failed to write journal entry txid=%d: %v", txid, err)
		return
	}
	if _, err := j.w.Write(data); err != nil {
		log.Errorf("failed to write journal entry txid=%d: %v", txid, err)
		return
	}
	if await {
		if err := j.w.Flush(); err != nil {
			log.Errorf("failed to flush journal: %v", err)
		}
	}
}

// Flush forces out all buffered entries.
func (j *StreamJournal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.w.Flush()
}

// ReadAll decodes every entry from r using the given serializer. It stops at
// EOF and returns the decoded sequence.
func ReadAll(r io.Reader, ser serializer.IEntrySerializer) ([]journal.Entry, error) {
	br := bufio.NewReader(r)

	var entries []journal.Entry
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			if err == io.EOF {
				return entries, nil
			}
			return entries, err
		}

		data := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(br, data); err != nil {
			return entries, err
		}

		var e journal.Entry
		if err := ser.Deserialize(data, &e); err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
}
