package command

// DefaultRegistry builds a registry with the built-in command table.
//
// The metadata follows the usual key-value command conventions:
//   - GET/SET style commands carry a single key at position 1.
//   - MSET interleaves keys and values (step 2), MGET and DEL take a trailing
//     key list (last position -1).
//   - STORE-style aggregation commands route their destination key in
//     addition to the declared source keys.
//   - EVAL declares its key count at position 2.
//   - FLUSHDB spans all shards and carries no keys at all.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// Plain string commands
	r.Register(NewCommandId("GET", OptReadOnly, 1, 1, 1))
	r.Register(NewCommandId("EXISTS", OptReadOnly, 1, -1, 1))
	r.Register(NewCommandId("SET", OptWrite, 1, 1, 1))
	r.Register(NewCommandId("SETEX", OptWrite, 1, 1, 1))
	r.Register(NewCommandId("DEL", OptWrite, 1, -1, 1))
	r.Register(NewCommandId("EXPIRE", OptWrite, 1, 1, 1))

	// Multi-key string commands
	r.Register(NewCommandId("MGET", OptReadOnly|OptReverseMapping, 1, -1, 1))
	r.Register(NewCommandId("MSET", OptWrite, 1, -1, 2))
	r.Register(NewCommandId("RENAME", OptWrite, 1, 2, 1))

	// List commands
	r.Register(NewCommandId("LPUSH", OptWrite, 1, 1, 1))
	r.Register(NewCommandId("RPUSH", OptWrite, 1, 1, 1))
	r.Register(NewCommandId("LPOP", OptWrite, 1, 1, 1))
	r.Register(NewCommandId("RPOP", OptWrite, 1, 1, 1))
	r.Register(NewCommandId("LLEN", OptReadOnly, 1, 1, 1))
	r.Register(NewCommandId("BLPOP", OptWrite|OptBlocking|OptNoAutoJournal, 1, -2, 1))

	// Variadic-key commands
	r.Register(NewCommandId("ZUNIONSTORE", OptWrite|OptVariadicKeys, 3, 3, 1))
	r.Register(NewCommandId("EVAL", OptWrite|OptVariadicKeys, 3, 3, 1))

	// Transaction control
	r.Register(NewCommandId("MULTI", OptReadOnly, 0, 0, 0))
	r.Register(NewCommandId("EXEC", OptNoAutoJournal, 0, 0, 0))

	// Global commands
	r.Register(NewCommandId("FLUSHDB", OptWrite|OptGlobalTrans, 0, 0, 0))

	return r
}
