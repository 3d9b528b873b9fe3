package command

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Option Mask
// --------------------------------------------------------------------------

// OptMask describes command behavior as bit flags. The transaction core uses
// these to pick lock modes, routing regimes and journaling behavior.
type OptMask uint32

const (
	OptReadOnly       OptMask = 1 << iota // Command only reads keys
	OptWrite                              // Command mutates keys
	OptGlobalTrans                        // Command locks every shard (e.g. FLUSHDB)
	OptVariadicKeys                       // Key count is declared inside the argument vector
	OptReverseMapping                     // Callbacks need the original argument positions
	OptNoAutoJournal                      // Suppress automatic journaling for this command
	OptBlocking                           // Command may suspend on missing keys (e.g. BLPOP)
)

func (m OptMask) String() string {
	var parts []string
	for _, f := range []struct {
		mask OptMask
		name string
	}{
		{OptReadOnly, "readonly"},
		{OptWrite, "write"},
		{OptGlobalTrans, "global-trans"},
		{OptVariadicKeys, "variadic-keys"},
		{OptReverseMapping, "reverse-mapping"},
		{OptNoAutoJournal, "no-autojournal"},
		{OptBlocking, "blocking"},
	} {
		if m&f.mask != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// --------------------------------------------------------------------------
// CommandId
// --------------------------------------------------------------------------

// CommandId holds the static metadata of one command: its name, option mask
// and where its keys live inside the argument vector.
//
//   - FirstKeyPos is the 0-based position of the first key argument.
//     Position 0 is the command name itself, so keys start at 1.
//   - LastKeyPos is the position of the last key; a negative value counts
//     from the end of the argument vector (-1 = last argument).
//   - KeyArgStep is 1 for plain key lists and 2 for key/value pairs (MSET).
type CommandId struct {
	name        string
	optMask     OptMask
	firstKeyPos int
	lastKeyPos  int
	keyArgStep  int
}

// NewCommandId creates command metadata. The name is canonicalized to upper
// case.
func NewCommandId(name string, optMask OptMask, firstKey, lastKey, step int) *CommandId {
	return &CommandId{
		name:        strings.ToUpper(name),
		optMask:     optMask,
		firstKeyPos: firstKey,
		lastKeyPos:  lastKey,
		keyArgStep:  step,
	}
}

func (c *CommandId) Name() string      { return c.name }
func (c *CommandId) OptMask() OptMask  { return c.optMask }
func (c *CommandId) FirstKeyPos() int  { return c.firstKeyPos }
func (c *CommandId) LastKeyPos() int   { return c.lastKeyPos }
func (c *CommandId) KeyArgStep() int   { return c.keyArgStep }
func (c *CommandId) IsReadOnly() bool  { return c.optMask&OptReadOnly != 0 }
func (c *CommandId) IsWrite() bool     { return c.optMask&OptWrite != 0 }
func (c *CommandId) IsGlobal() bool    { return c.optMask&OptGlobalTrans != 0 }
func (c *CommandId) IsBlocking() bool  { return c.optMask&OptBlocking != 0 }
func (c *CommandId) HasFlag(m OptMask) bool { return c.optMask&m == m }

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry is a concurrent name -> CommandId lookup table. Commands are
// registered once at startup but looked up from every coordinator goroutine,
// so the map must be safe for concurrent reads and writes.
type Registry struct {
	cmds *xsync.MapOf[string, *CommandId]
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{
		cmds: xsync.NewMapOf[string, *CommandId](),
	}
}

// Register adds a command to the registry, replacing a previous registration
// under the same name. It returns the registry for chaining.
func (r *Registry) Register(cid *CommandId) *Registry {
	r.cmds.Store(cid.Name(), cid)
	return r
}

// Get looks up a command by name (case-insensitive).
func (r *Registry) Get(name string) (*CommandId, bool) {
	return r.cmds.Load(strings.ToUpper(name))
}

// Size returns the number of registered commands.
func (r *Registry) Size() int {
	return r.cmds.Size()
}
