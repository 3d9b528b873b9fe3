package shard

import (
	"github.com/ValentinKolb/sKV/lib/db/util"
)

// --------------------------------------------------------------------------
// Identifier Types
// --------------------------------------------------------------------------

// ShardId identifies one engine shard. Shards are numbered 0..N-1 with N
// fixed at startup.
type ShardId = uint32

// TxId is a globally-unique, monotonically increasing transaction id.
// A zero TxId means "not scheduled yet".
type TxId = uint64

// DbIndex selects one logical database inside a shard.
type DbIndex = uint16

// InvalidSid marks an unset shard id.
const InvalidSid = ShardId(0xFFFFFFFF)

// --------------------------------------------------------------------------
// Key Routing
// --------------------------------------------------------------------------

// routingSeed is fixed so that the key->shard mapping is stable for the
// lifetime of the process. Every coordinator and every shard must agree on
// the mapping.
const routingSeed = 0

// ShardOf maps a key to its owning shard.
func ShardOf(key string, numShards uint32) ShardId {
	return ShardId(uint64(util.HashString(key, routingSeed)) % uint64(numShards))
}

// --------------------------------------------------------------------------
// Lock Arguments
// --------------------------------------------------------------------------

// KeyLockArgs describes the keys a transaction locks on one shard. Args is
// the shard-local argument slice; keys sit at positions 0, KeyStep,
// 2*KeyStep, ... (KeyStep is 2 for key/value interleaved commands like MSET).
type KeyLockArgs struct {
	DbIndex DbIndex
	KeyStep int
	Args    []string
}

// EachKey invokes fn for every key position of the argument slice.
func (a KeyLockArgs) EachKey(fn func(key string)) {
	step := a.KeyStep
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(a.Args); i += step {
		fn(a.Args[i])
	}
}

// --------------------------------------------------------------------------
// Transaction Handle
// --------------------------------------------------------------------------

// TxHandle is the shard-side view of a transaction. The shard layer never
// sees the concrete transaction type; the coordinator hands transactions to
// shards through this interface, which keeps the dependency one-directional.
type TxHandle interface {
	// Txid returns the scheduled transaction id (0 if unscheduled).
	Txid() TxId

	// Name returns the command name for diagnostics.
	Name() string

	// DebugId renders a compact identifier for logging.
	DebugId() string

	// IsGlobal reports whether the transaction locks whole shards instead of
	// keys.
	IsGlobal() bool

	// IsArmedInShard reports whether the coordinator armed this transaction
	// for execution on the given shard. It synchronizes with the arm barrier:
	// a true return guarantees visibility of all writes the coordinator made
	// before arming.
	IsArmedInShard(sid ShardId) bool

	// IsQueuedInShard reports whether the transaction currently occupies a
	// TxQueue position on the given shard.
	IsQueuedInShard(sid ShardId) bool

	// IsOOOInShard reports whether the shard granted all locks uncontested so
	// the transaction may run ahead of its queue position.
	IsOOOInShard(sid ShardId) bool

	// RunInShard executes the armed hop on the calling shard. It returns true
	// if the transaction must be kept as the shard's continuation (more hops
	// follow), false when the shard is done with it.
	RunInShard(es *EngineShard) bool

	// NotifySuspended transitions a suspended blocking transaction to awaked
	// at-most-once. committedTxid is the id of the writer that triggered the
	// wakeup. Returns true if the transition happened.
	NotifySuspended(committedTxid TxId, sid ShardId) bool
}
