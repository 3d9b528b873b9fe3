package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/sKV/lib/journal"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IEntrySerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IEntrySerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasTxid     byte = 1 << 0
	hasDbIndex  byte = 1 << 1
	hasShardCnt byte = 1 << 2
	hasPayload  byte = 1 << 3
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IEntrySerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(e journal.Entry) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(e)
	result := make([]byte, totalSize)

	// Write opcode
	result[0] = byte(e.Opcode)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 2 // Start after Opcode and flags

	// Handle Txid
	if e.Txid > 0 {
		flags |= hasTxid
		binary.BigEndian.PutUint64(result[pos:pos+8], e.Txid)
		pos += 8
	}

	// Handle DbIndex
	if e.DbIndex > 0 {
		flags |= hasDbIndex
		binary.BigEndian.PutUint16(result[pos:pos+2], e.DbIndex)
		pos += 2
	}

	// Handle ShardCnt
	if e.ShardCnt > 0 {
		flags |= hasShardCnt
		binary.BigEndian.PutUint32(result[pos:pos+4], e.ShardCnt)
		pos += 4
	}

	// Handle Payload
	if len(e.Payload) > 0 {
		flags |= hasPayload

		// Write argument count
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(e.Payload)))
		pos += 4

		// Write each argument length-prefixed
		for _, arg := range e.Payload {
			argBytes := []byte(arg)
			binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(argBytes)))
			pos += 4
			copy(result[pos:pos+len(argBytes)], argBytes)
			pos += len(argBytes)
		}
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, e *journal.Entry) error {
	// Check minimum size (Opcode + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for entry header")
	}

	// Read opcode
	e.Opcode = journal.Op(data[0])

	// Read flags
	flags := data[1]

	// Initialize read position
	pos := 2

	// Read Txid if present
	if flags&hasTxid != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for txid")
		}
		e.Txid = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	} else {
		e.Txid = 0
	}

	// Read DbIndex if present
	if flags&hasDbIndex != 0 {
		if pos+2 > len(data) {
			return fmt.Errorf("data too short for db index")
		}
		e.DbIndex = binary.BigEndian.Uint16(data[pos : pos+2])
		pos += 2
	} else {
		e.DbIndex = 0
	}

	// Read ShardCnt if present
	if flags&hasShardCnt != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for shard count")
		}
		e.ShardCnt = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	} else {
		e.ShardCnt = 0
	}

	// Read Payload if present
	if flags&hasPayload != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for payload count")
		}
		count := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		payload := make([]string, 0, count)
		for i := uint32(0); i < count; i++ {
			if pos+4 > len(data) {
				return fmt.Errorf("data too short for argument length")
			}
			argLen := binary.BigEndian.Uint32(data[pos : pos+4])
			pos += 4

			if pos+int(argLen) > len(data) {
				return fmt.Errorf("data too short for argument data")
			}
			payload = append(payload, string(data[pos:pos+int(argLen)]))
			pos += int(argLen)
		}
		e.Payload = payload
	} else {
		e.Payload = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the exact number of bytes needed for the serialized entry
func (b binarySerializerImpl) sizeBytes(e journal.Entry) int {
	size := 2 // Opcode + flags

	if e.Txid > 0 {
		size += 8
	}
	if e.DbIndex > 0 {
		size += 2
	}
	if e.ShardCnt > 0 {
		size += 4
	}
	if len(e.Payload) > 0 {
		size += 4 // argument count
		for _, arg := range e.Payload {
			size += 4 + len(arg)
		}
	}

	return size
}
