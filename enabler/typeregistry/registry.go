// Package typeregistry maps type names to their identifiers and dynamic
// types, resolving unknown types lazily through the transport's type-object
// registry or the application's type query callback, and converts between
// JSON documents and wire payloads.
package typeregistry

import (
	"sync"

	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// SchemaNotifier observes newly registered schemas that must be reported to
// the application.
type SchemaNotifier func(dt transport.DynamicType, id transport.TypeIdentifier)

type schemaEntry struct {
	id transport.TypeIdentifier
	dt transport.DynamicType
}

// Registry is the type registry. It is write-rare, read-frequent; a single
// mutex guards the schema map.
type Registry struct {
	logger            rpcbus.Logger
	transportRegistry *transport.TypeObjectRegistry

	mu        sync.Mutex
	schemas   map[string]schemaEntry
	typeQuery rpcbus.TypeQuery
	notifier  SchemaNotifier
}

// New creates a registry backed by the given transport type-object registry.
func New(logger rpcbus.Logger, transportRegistry *transport.TypeObjectRegistry) *Registry {
	if logger == nil {
		logger = rpcbus.NoopLogger()
	}
	return &Registry{
		logger:            logger,
		transportRegistry: transportRegistry,
		schemas:           make(map[string]schemaEntry),
	}
}

// SetTypeQuery installs the application's type query callback.
func (r *Registry) SetTypeQuery(q rpcbus.TypeQuery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typeQuery = q
}

// SetSchemaNotifier installs the hook invoked for schemas that must be
// reported to the application. The hook runs while the registry lock is
// held and must not call back into the registry.
func (r *Registry) SetSchemaNotifier(n SchemaNotifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

// AddSchema registers a dynamic type under its name. It is idempotent on
// the type name. When writeToApp is set, the schema notifier is triggered
// for newly registered types.
func (r *Registry) AddSchema(dt transport.DynamicType, id transport.TypeIdentifier, writeToApp bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addSchemaLocked(dt, id, writeToApp)
}

func (r *Registry) addSchemaLocked(dt transport.DynamicType, id transport.TypeIdentifier, writeToApp bool) {
	name := dt.Name()
	if _, exists := r.schemas[name]; exists {
		return
	}
	r.schemas[name] = schemaEntry{id: id, dt: dt}
	r.logger.Debug("schema_added", "type_name", name)

	if writeToApp && r.notifier != nil {
		r.notifier(dt, id)
	}
}

// Lookup returns the dynamic type registered under a name.
func (r *Registry) Lookup(typeName string) (transport.DynamicType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.schemas[typeName]
	return entry.dt, ok
}

// TypeIdentifier resolves a type name to its identifier.
//
// Search order: (a) the in-memory schema map, (b) the transport's
// type-object registry, (c) the application's type query callback. Path (b)
// reports the schema back to the application; path (c) registers every
// dependency of the returned blob before the leaf, silently.
func (r *Registry) TypeIdentifier(typeName string) (transport.TypeIdentifier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.schemas[typeName]; ok {
		return entry.id, nil
	}

	if r.transportRegistry != nil {
		if id, ok := r.transportRegistry.TypeIdentifiers(typeName); ok {
			if dt, ok := r.transportRegistry.TypeObject(id); ok {
				// Found in the shared registry: adopt it and report the
				// schema to the application, which may not have it yet.
				r.addSchemaLocked(dt, id, true)
				return id, nil
			}
		}
	}

	if r.typeQuery == nil {
		r.logger.Error("type_query_callback_not_set", "type_name", typeName)
		return transport.TypeIdentifier{}, rpcbus.NewTypeNotFoundError(typeName)
	}

	blob, ok := r.typeQuery(typeName)
	if !ok {
		r.logger.Error("type_query_failed", "type_name", typeName)
		return transport.TypeIdentifier{}, rpcbus.NewTypeNotFoundError(typeName)
	}

	id, err := r.registerBlobLocked(typeName, blob)
	if err != nil {
		return transport.TypeIdentifier{}, err
	}
	return id, nil
}

// registerBlobLocked registers every type of a dependency blob bottom-up.
// The last element must declare the requested type name.
func (r *Registry) registerBlobLocked(typeName string, blob []byte) (transport.TypeIdentifier, error) {
	entries, err := DecodeTypeBlob(blob)
	if err != nil {
		r.logger.Error("type_blob_decode_failed", "type_name", typeName, "error", err.Error())
		return transport.TypeIdentifier{}, rpcbus.NewSerializationError(typeName, err)
	}
	if len(entries) == 0 {
		return transport.TypeIdentifier{}, rpcbus.NewInconsistentTypeBlobError(typeName, "")
	}
	if last := entries[len(entries)-1].TypeName; last != typeName {
		r.logger.Error("type_blob_mismatch", "expected", typeName, "found", last)
		return transport.TypeIdentifier{}, rpcbus.NewInconsistentTypeBlobError(typeName, last)
	}

	var lastID transport.TypeIdentifier
	for _, e := range entries {
		dt := transport.NewJSONDynamicType(e.TypeName, e.IDL, e.DataPlaceholder)
		id := transport.IdentifierFor(dt)
		if r.transportRegistry != nil {
			r.transportRegistry.RegisterType(dt, id)
		}
		// Obtained from the application, so not reported back to it.
		r.addSchemaLocked(dt, id, false)
		lastID = id
	}
	return lastID, nil
}

// SerializedData converts a JSON document into a pooled wire payload of the
// given type.
func (r *Registry) SerializedData(typeName, doc string, pool *transport.PayloadPool) (transport.Payload, error) {
	r.mu.Lock()
	entry, ok := r.schemas[typeName]
	r.mu.Unlock()
	if !ok {
		return transport.Payload{}, rpcbus.NewTypeNotFoundError(typeName)
	}

	wire, err := entry.dt.Serialize(doc)
	if err != nil {
		r.logger.Error("data_serialization_failed", "type_name", typeName, "error", err.Error())
		return transport.Payload{}, rpcbus.NewSerializationError(typeName, err)
	}
	return pool.GetPayload(wire), nil
}
