package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
)

// TypeIdentifier identifies a registered type. A zero value means the type
// was never resolved.
type TypeIdentifier struct {
	Hash string
}

// IsZero reports whether the identifier is unset.
func (t TypeIdentifier) IsZero() bool {
	return t.Hash == ""
}

// DynamicType is the host-provided type capability: it names a type, renders
// its IDL and data placeholder, and converts between JSON text and the wire
// encoding of the type.
type DynamicType interface {
	Name() string
	IDL() string
	DataPlaceholder() string

	// Serialize encodes a JSON document into the wire representation.
	Serialize(json string) ([]byte, error)
	// Deserialize decodes a wire representation back into JSON text.
	Deserialize(data []byte) (string, error)
}

// IdentifierFor derives the type identifier of a dynamic type.
func IdentifierFor(dt DynamicType) TypeIdentifier {
	h := fnv.New64a()
	h.Write([]byte(dt.Name()))
	h.Write([]byte{0})
	h.Write([]byte(dt.IDL()))
	return TypeIdentifier{Hash: fmt.Sprintf("%016x", h.Sum64())}
}

// =============================================================================
// JSON-BACKED DYNAMIC TYPE
// =============================================================================

// JSONDynamicType is a DynamicType whose wire encoding is compact JSON.
// It stands in for the host's CDR codec in tests and the example CLIs.
type JSONDynamicType struct {
	name        string
	idl         string
	placeholder string
}

// NewJSONDynamicType creates a JSON-backed dynamic type.
func NewJSONDynamicType(name, idl, placeholder string) *JSONDynamicType {
	if placeholder == "" {
		placeholder = "{}"
	}
	return &JSONDynamicType{name: name, idl: idl, placeholder: placeholder}
}

func (t *JSONDynamicType) Name() string            { return t.name }
func (t *JSONDynamicType) IDL() string             { return t.idl }
func (t *JSONDynamicType) DataPlaceholder() string { return t.placeholder }

// Serialize validates and compacts the JSON document.
func (t *JSONDynamicType) Serialize(doc string) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(doc)); err != nil {
		return nil, fmt.Errorf("invalid JSON for type %s: %w", t.name, err)
	}
	return buf.Bytes(), nil
}

// Deserialize validates the wire bytes and returns them as JSON text.
func (t *JSONDynamicType) Deserialize(data []byte) (string, error) {
	if !json.Valid(data) {
		return "", fmt.Errorf("payload of type %s is not valid JSON", t.name)
	}
	return string(data), nil
}

// =============================================================================
// TYPE-OBJECT REGISTRY
// =============================================================================

// TypeObjectRegistry is the transport-side registry of types known to the
// bus, searchable by name or identifier.
type TypeObjectRegistry struct {
	mu     sync.RWMutex
	byName map[string]registeredType
	byID   map[TypeIdentifier]DynamicType
}

type registeredType struct {
	id TypeIdentifier
	dt DynamicType
}

// NewTypeObjectRegistry creates an empty registry.
func NewTypeObjectRegistry() *TypeObjectRegistry {
	return &TypeObjectRegistry{
		byName: make(map[string]registeredType),
		byID:   make(map[TypeIdentifier]DynamicType),
	}
}

// RegisterType registers a type under its identifier. Re-registration of the
// same name is allowed and keeps the first entry.
func (r *TypeObjectRegistry) RegisterType(dt DynamicType, id TypeIdentifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[dt.Name()]; exists {
		return
	}
	r.byName[dt.Name()] = registeredType{id: id, dt: dt}
	r.byID[id] = dt
}

// TypeIdentifiers looks up the identifier registered for a type name.
func (r *TypeObjectRegistry) TypeIdentifiers(name string) (TypeIdentifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byName[name]
	return entry.id, ok
}

// TypeObject looks up the dynamic type registered under an identifier.
func (r *TypeObjectRegistry) TypeObject(id TypeIdentifier) (DynamicType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dt, ok := r.byID[id]
	return dt, ok
}
