package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// CodecName is the name the JSON codec registers under. Connect derives the
// content types application/json and application/connect+json from it.
const CodecName = "json"

// Codec marshals the plain message structs of this package as JSON.
type Codec struct{}

// Name implements connect.Codec.
func (Codec) Name() string {
	return CodecName
}

// Marshal implements connect.Codec.
func (Codec) Marshal(message any) ([]byte, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}
	return data, nil
}

// Unmarshal implements connect.Codec. An empty body leaves message unchanged.
func (Codec) Unmarshal(data []byte, message any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, message); err != nil {
		return errors.Wrap(err, "failed to unmarshal message")
	}
	return nil
}
