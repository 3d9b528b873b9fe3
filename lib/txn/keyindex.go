package txn

import (
	"strconv"
	"strings"

	"github.com/ValentinKolb/sKV/lib/command"
)

// KeyIndex describes where the keys of one command invocation live inside
// its argument vector: the half-open range [Start, End) with the given Step
// (2 for key/value interleaved commands), plus an optional Bonus position
// for a destination key that is routed but not part of the input range
// (Z<...>STORE commands).
type KeyIndex struct {
	Start int
	End   int
	Step  int
	Bonus int // 0 = no bonus key
}

// HasSingleKey reports whether the range covers exactly one key (one step).
func (k KeyIndex) HasSingleKey() bool {
	return k.Bonus == 0 && k.Start+k.Step >= k.End
}

// NumArgs returns the number of arguments covered by the index.
func (k KeyIndex) NumArgs() int {
	n := k.End - k.Start
	if k.Bonus > 0 {
		n++
	}
	return n
}

// KeyIndexRange builds an index over [start, end) with step 1.
func KeyIndexRange(start, end int) KeyIndex {
	return KeyIndex{Start: start, End: end, Step: 1}
}

// DetermineKeys derives the key index of a concrete invocation from the
// command metadata. args is the full argument vector including the command
// name at position 0.
//
// Global commands take the global path and return an empty index. Variadic
// commands declare their key count inside the argument vector: at position 2
// for EVAL-style commands, right after the bonus key otherwise. A
// non-numeric or negative count yields OpInvalidInt; an argument vector too
// short to hold the count, or too short for the declared count, yields
// OpSyntaxErr.
func DetermineKeys(cid *command.CommandId, args []string) (KeyIndex, OpStatus) {
	if cid.IsGlobal() {
		return KeyIndex{}, OpOK
	}

	var keyIndex KeyIndex

	numCustomKeys := -1

	if cid.HasFlag(command.OptVariadicKeys) {
		// ZUNIONSTORE <dest> <num_keys> <key1> [<key2> ...]
		// EVAL <script> <num_keys> [<key1> ...]
		if len(args) < 3 {
			return keyIndex, OpSyntaxErr
		}

		name := cid.Name()

		if strings.HasSuffix(name, "STORE") {
			keyIndex.Bonus = 1 // Z<xxx>STORE commands
		}

		numKeysIndex := keyIndex.Bonus + 1
		if strings.HasPrefix(name, "EVAL") {
			numKeysIndex = 2
		}

		parsed, err := strconv.Atoi(args[numKeysIndex])
		if err != nil || parsed < 0 {
			return keyIndex, OpInvalidInt
		}
		numCustomKeys = parsed

		if len(args) < numCustomKeys+numKeysIndex+1 {
			return keyIndex, OpSyntaxErr
		}
	}

	if cid.FirstKeyPos() > 0 {
		keyIndex.Start = cid.FirstKeyPos()
		last := cid.LastKeyPos()
		if numCustomKeys >= 0 {
			keyIndex.End = keyIndex.Start + numCustomKeys
		} else if last > 0 {
			keyIndex.End = last + 1
		} else {
			// Negative last counts from the end of the argument vector
			keyIndex.End = len(args) + 1 + last
		}
		keyIndex.Step = cid.KeyArgStep()

		if keyIndex.End > len(args) || keyIndex.Start > keyIndex.End {
			return keyIndex, OpSyntaxErr
		}

		// Key/value interleaved commands need complete pairs
		if keyIndex.Step == 2 && (keyIndex.End-keyIndex.Start)%2 != 0 {
			return keyIndex, OpSyntaxErr
		}

		return keyIndex, OpOK
	}

	// Commands without keys (MULTI, EXEC) never reach key derivation
	return keyIndex, OpSyntaxErr
}
