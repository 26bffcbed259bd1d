package typeregistry

import (
	"encoding/json"
	"fmt"
)

// TypeBlobEntry is one element of a serialized dependency blob: an ordered
// collection of type descriptions, dependencies first, the described type
// last.
type TypeBlobEntry struct {
	TypeName        string `json:"type_name"`
	IDL             string `json:"idl"`
	DataPlaceholder string `json:"data_placeholder"`
}

// EncodeTypeBlob serializes a dependency collection.
func EncodeTypeBlob(entries []TypeBlobEntry) []byte {
	out, _ := json.Marshal(entries)
	return out
}

// DecodeTypeBlob deserializes a dependency collection.
func DecodeTypeBlob(blob []byte) ([]TypeBlobEntry, error) {
	var entries []TypeBlobEntry
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, fmt.Errorf("malformed type blob: %w", err)
	}
	return entries, nil
}
