package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/sKV/lib/journal"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IEntrySerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IEntrySerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IEntrySerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(e journal.Entry) ([]byte, error) {
	return json.Marshal(e)
}

func (j jsonSerializerImpl) Deserialize(b []byte, e *journal.Entry) error {
	return json.Unmarshal(b, e)
}
