package typeregistry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

func newTestRegistry() (*Registry, *transport.TypeObjectRegistry) {
	typeObjects := transport.NewTypeObjectRegistry()
	return New(rpcbus.NoopLogger(), typeObjects), typeObjects
}

func TestAddSchema_IdempotentAndNotifying(t *testing.T) {
	reg, _ := newTestRegistry()

	var notified []string
	reg.SetSchemaNotifier(func(dt transport.DynamicType, id transport.TypeIdentifier) {
		notified = append(notified, dt.Name())
	})

	dt := transport.NewJSONDynamicType("Point", "struct Point {};", "{}")
	id := transport.IdentifierFor(dt)

	reg.AddSchema(dt, id, true)
	reg.AddSchema(dt, id, true) // idempotent on the type name

	assert.Equal(t, []string{"Point"}, notified)

	got, ok := reg.Lookup("Point")
	require.True(t, ok)
	assert.Equal(t, "Point", got.Name())
}

func TestAddSchema_SilentWhenNotWritingToApp(t *testing.T) {
	reg, _ := newTestRegistry()

	notified := 0
	reg.SetSchemaNotifier(func(transport.DynamicType, transport.TypeIdentifier) { notified++ })

	dt := transport.NewJSONDynamicType("Quiet", "", "{}")
	reg.AddSchema(dt, transport.IdentifierFor(dt), false)

	assert.Zero(t, notified)
}

func TestTypeIdentifier_FromSchemas(t *testing.T) {
	reg, _ := newTestRegistry()
	dt := transport.NewJSONDynamicType("Point", "", "{}")
	id := transport.IdentifierFor(dt)
	reg.AddSchema(dt, id, false)

	got, err := reg.TypeIdentifier("Point")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestTypeIdentifier_FromTransportRegistry(t *testing.T) {
	reg, typeObjects := newTestRegistry()

	dt := transport.NewJSONDynamicType("Shared", "", "{}")
	id := transport.IdentifierFor(dt)
	typeObjects.RegisterType(dt, id)

	var notified []string
	reg.SetSchemaNotifier(func(dt transport.DynamicType, _ transport.TypeIdentifier) {
		notified = append(notified, dt.Name())
	})

	got, err := reg.TypeIdentifier("Shared")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	// A type adopted from the shared registry is reported to the app.
	assert.Equal(t, []string{"Shared"}, notified)

	// Now cached in the schema map.
	_, ok := reg.Lookup("Shared")
	assert.True(t, ok)
}

func TestTypeIdentifier_FromTypeQuery_RegistersDependenciesBottomUp(t *testing.T) {
	reg, typeObjects := newTestRegistry()

	blob := EncodeTypeBlob([]TypeBlobEntry{
		{TypeName: "Dep1", IDL: "struct Dep1 {};", DataPlaceholder: "{}"},
		{TypeName: "Dep2", IDL: "struct Dep2 {};", DataPlaceholder: "{}"},
		{TypeName: "Leaf", IDL: "struct Leaf {};", DataPlaceholder: "{}"},
	})
	reg.SetTypeQuery(func(typeName string) ([]byte, bool) {
		if typeName == "Leaf" {
			return blob, true
		}
		return nil, false
	})

	_, err := reg.TypeIdentifier("Leaf")
	require.NoError(t, err)

	// Every dependency is registered before the leaf.
	for _, name := range []string{"Dep1", "Dep2", "Leaf"} {
		_, ok := reg.Lookup(name)
		assert.True(t, ok, "expected %s to be registered", name)
		_, ok = typeObjects.TypeIdentifiers(name)
		assert.True(t, ok, "expected %s in the transport registry", name)
	}
}

func TestTypeIdentifier_InconsistentBlob(t *testing.T) {
	reg, _ := newTestRegistry()

	blob := EncodeTypeBlob([]TypeBlobEntry{
		{TypeName: "Wrong", IDL: "", DataPlaceholder: "{}"},
	})
	reg.SetTypeQuery(func(string) ([]byte, bool) { return blob, true })

	_, err := reg.TypeIdentifier("Leaf")
	var blobErr *rpcbus.InconsistentTypeBlobError
	require.True(t, errors.As(err, &blobErr))
	assert.Equal(t, "Leaf", blobErr.Expected)
	assert.Equal(t, "Wrong", blobErr.Found)
}

func TestTypeIdentifier_NotFound(t *testing.T) {
	reg, _ := newTestRegistry()

	_, err := reg.TypeIdentifier("Missing")
	var notFound *rpcbus.TypeNotFoundError
	require.True(t, errors.As(err, &notFound))

	reg.SetTypeQuery(func(string) ([]byte, bool) { return nil, false })
	_, err = reg.TypeIdentifier("Missing")
	require.True(t, errors.As(err, &notFound))
}

func TestSerializedData(t *testing.T) {
	reg, _ := newTestRegistry()
	pool := transport.NewPayloadPool()

	dt := transport.NewJSONDynamicType("Point", "", "{}")
	reg.AddSchema(dt, transport.IdentifierFor(dt), false)

	payload, err := reg.SerializedData("Point", `{"x": 1}`, pool)
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, string(payload.Bytes()))
	payload.Release()
	assert.Zero(t, pool.InUse())

	_, err = reg.SerializedData("Point", "nope", pool)
	var serErr *rpcbus.SerializationError
	require.True(t, errors.As(err, &serErr))

	_, err = reg.SerializedData("Missing", "{}", pool)
	var notFound *rpcbus.TypeNotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestDecodeTypeBlob_Malformed(t *testing.T) {
	_, err := DecodeTypeBlob([]byte("not json"))
	require.Error(t, err)
}
