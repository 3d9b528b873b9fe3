package store

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/sKV/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the generic interface for interacting with a key-value store.
// All write operations return only an error (nil on success), while read
// operations return the requested data along with an error (nil on success).
//
// Implementations differ in their concurrency story: the transactional store
// (tstore) runs every call as a transaction over the sharded engine, the
// local store (lstore) serializes calls over a single storage partition.
type IStore interface {
	// Set inserts or updates a key-value pair.
	Set(key string, value []byte) (err error)
	// SetE inserts or updates a key-value pair with expiration and or deletion offsets.
	// A zero value for expireIn and deleteIn means no expiration or deletion.
	SetE(key string, value []byte, expireIn, deleteIn uint64) (err error)
	// Expire expires the value for a key. The key is still findable with the Has() method.
	Expire(key string) (err error)
	// Delete deletes a key-value pair. The key is removed from the store.
	Delete(key string) (err error)
	// Rename moves the value stored under src to dst, overwriting dst.
	// Returns an error with RetCNotFound if src does not exist.
	Rename(src, dst string) (err error)
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(key string) (value []byte, loaded bool, err error)
	// Has returns whether a key exists in the store. The method returns true even if the value for the key is expired.
	Has(key string) (loaded bool, err error)

	// MSet atomically inserts or updates multiple key-value pairs.
	// The variadic arguments alternate keys and values.
	MSet(keysAndValues ...string) (err error)
	// MGet returns the values for multiple keys. A nil slot marks a missing key.
	MGet(keys ...string) (values [][]byte, err error)

	// LPush pushes values to the front of the list stored under key and
	// returns the new list length.
	LPush(key string, values ...[]byte) (length int, err error)
	// RPush pushes values to the back of the list stored under key and
	// returns the new list length.
	RPush(key string, values ...[]byte) (length int, err error)
	// LPop pops one value from the front of the list stored under key.
	LPop(key string) (value []byte, loaded bool, err error)
	// BLPop pops one value from the front of the list stored under key,
	// blocking for up to timeout until a value is pushed. A non-positive
	// timeout blocks indefinitely. The boolean return value is false when
	// the wait timed out.
	BLPop(key string, timeout time.Duration) (value []byte, loaded bool, err error)

	// Flush removes every entry of the store.
	Flush() (err error)

	// GetDBInfo returns metadata about the storage underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo() (info db.DatabaseInfo, err error)

	// Close releases the store's resources.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	errorCode := "Unknown"
	switch e.Code {
	case RetCInternalError:
		errorCode = "InternalError"
	case RetCUnsupportedOperation:
		errorCode = "UnsupportedOperation"
	case RetCInvalidOperation:
		errorCode = "InvalidOperation"
	case RetCWrongType:
		errorCode = "WrongType"
	case RetCNotFound:
		errorCode = "NotFound"
	case RetCCancelled:
		errorCode = "Cancelled"
	}

	return fmt.Sprintf("KVStoreError (code %s): %s", errorCode, e.Msg)
}

// NewError creates a new KVStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the underlying storage.
	RetCInvalidOperation                    // 3: Invalid operation (malformed arguments).
	RetCWrongType                           // 4: Operation against a key holding the wrong kind of value.
	RetCNotFound                            // 5: Key not found.
	RetCCancelled                           // 6: Operation cancelled by shutdown.
)
