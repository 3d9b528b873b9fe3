package serializer

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/sKV/lib/journal"
)

// benchmarkEntries returns a set of entries for targeted benchmarking
func benchmarkEntries() map[string]journal.Entry {
	return map[string]journal.Entry{
		"Empty": {
			Opcode: journal.OpExec,
		},
		"SmallCommand": {
			Txid:     1,
			Opcode:   journal.OpCommand,
			ShardCnt: 1,
			Payload:  []string{"GET", "k"},
		},
		"MediumCommand": {
			Txid:     123456,
			Opcode:   journal.OpCommand,
			ShardCnt: 1,
			Payload:  []string{"SET", "medium-length-key-for-testing", "medium length value for testing serialization"},
		},
		"LargeValue": {
			Txid:     123456,
			Opcode:   journal.OpCommand,
			ShardCnt: 1,
			Payload:  []string{"SET", "key", strings.Repeat("x", 1024)},
		},
		"VeryLargeValue": {
			Txid:     123456,
			Opcode:   journal.OpCommand,
			ShardCnt: 1,
			Payload:  []string{"SET", "key", strings.Repeat("x", 1024*16)},
		},
		"ManyArguments": {
			Txid:     999999,
			Opcode:   journal.OpMultiCommand,
			DbIndex:  2,
			ShardCnt: 8,
			Payload: []string{
				"MSET", "a", "1", "b", "2", "c", "3", "d", "4",
				"e", "5", "f", "6", "g", "7", "h", "8",
			},
		},
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various entry shapes
func BenchmarkSerialize(b *testing.B) {
	entries := benchmarkEntries()

	for name, factory := range testSerializers {
		for entryName, e := range entries {
			b.Run(name+"_"+entryName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := serializer.Serialize(e); err != nil {
						b.Fatalf("Serialize failed: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations
func BenchmarkDeserialize(b *testing.B) {
	entries := benchmarkEntries()

	for name, factory := range testSerializers {
		for entryName, e := range entries {
			serializer := factory()
			data, err := serializer.Serialize(e)
			if err != nil {
				b.Fatalf("Serialize failed: %v", err)
			}

			b.Run(name+"_"+entryName, func(b *testing.B) {
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					var result journal.Entry
					if err := serializer.Deserialize(data, &result); err != nil {
						b.Fatalf("Deserialize failed: %v", err)
					}
				}
			})
		}
	}
}
