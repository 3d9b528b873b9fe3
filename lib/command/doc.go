// Package command provides the command registry of sKV.
//
// The registry maps command names to their static metadata (CommandId): the
// option mask, the positions of the key arguments inside the argument vector
// and the key step. The transaction core consumes this metadata to derive the
// key range of a concrete invocation, pick the intent-lock mode (shared for
// read-only commands, exclusive otherwise) and route arguments to shards.
//
// The registry itself carries no execution logic: callbacks are supplied per
// transaction hop by the caller (see lib/store/tstore for the built-in
// operation callbacks).
package command
