package command

import (
	"testing"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(NewCommandId("set", OptWrite, 1, 1, 1))

	cid, ok := r.Get("SET")
	if !ok {
		t.Fatal("Expected SET to be registered")
	}
	if cid.Name() != "SET" {
		t.Errorf("Expected canonical name SET, got %s", cid.Name())
	}

	// Lookup is case-insensitive
	if _, ok := r.Get("sEt"); !ok {
		t.Error("Expected case-insensitive lookup to succeed")
	}

	if _, ok := r.Get("UNKNOWN"); ok {
		t.Error("Expected unknown command to be absent")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name     string
		first    int
		last     int
		step     int
		flags    OptMask
	}{
		{"GET", 1, 1, 1, OptReadOnly},
		{"SET", 1, 1, 1, OptWrite},
		{"MSET", 1, -1, 2, OptWrite},
		{"MGET", 1, -1, 1, OptReadOnly | OptReverseMapping},
		{"BLPOP", 1, -2, 1, OptWrite | OptBlocking},
		{"ZUNIONSTORE", 3, 3, 1, OptWrite | OptVariadicKeys},
		{"EVAL", 3, 3, 1, OptWrite | OptVariadicKeys},
		{"FLUSHDB", 0, 0, 0, OptWrite | OptGlobalTrans},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cid, ok := r.Get(tc.name)
			if !ok {
				t.Fatalf("Command %s not registered", tc.name)
			}
			if cid.FirstKeyPos() != tc.first || cid.LastKeyPos() != tc.last || cid.KeyArgStep() != tc.step {
				t.Errorf("Key positions mismatch: got (%d,%d,%d), want (%d,%d,%d)",
					cid.FirstKeyPos(), cid.LastKeyPos(), cid.KeyArgStep(), tc.first, tc.last, tc.step)
			}
			if !cid.HasFlag(tc.flags) {
				t.Errorf("Expected flags %s to be set, mask is %s", tc.flags, cid.OptMask())
			}
		})
	}
}

func TestOptMaskString(t *testing.T) {
	m := OptWrite | OptGlobalTrans
	s := m.String()
	if s != "write|global-trans" {
		t.Errorf("Unexpected mask rendering: %s", s)
	}
}
