package serializer

import "github.com/ValentinKolb/sKV/lib/journal"

// IEntrySerializer is the interface for all journal entry serializers
type IEntrySerializer interface {
	// Serialize serializes a journal entry into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(e journal.Entry) ([]byte, error)
	// Deserialize deserializes a byte array into a journal entry
	// It takes a byte array and a pointer to an entry as parameters
	// It returns an error if any
	Deserialize(b []byte, e *journal.Entry) error
}
