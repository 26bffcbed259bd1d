package transport

import (
	"testing"
	"time"
)

func TestPayloadPool_RefCounting(t *testing.T) {
	pool := NewPayloadPool()

	p := pool.GetPayload([]byte(`{"a":1}`))
	if pool.InUse() != 1 {
		t.Fatalf("expected one live cell, got %d", pool.InUse())
	}

	shared := pool.Share(p)
	if string(shared.Bytes()) != `{"a":1}` {
		t.Errorf("unexpected content %s", shared.Bytes())
	}

	p.Release()
	if pool.InUse() != 1 {
		t.Errorf("cell must survive while a reference remains, in use: %d", pool.InUse())
	}

	shared.Release()
	if pool.InUse() != 0 {
		t.Errorf("cell must be reclaimed after last release, in use: %d", pool.InUse())
	}
}

func TestPayloadPool_ReleaseIsIdempotentOnEmpty(t *testing.T) {
	var p Payload
	p.Release() // must not panic
}

func TestInternalReader_QueueAndSink(t *testing.T) {
	topic := DdsTopic{Name: "chatter", TypeName: "String"}
	reader := NewInternalReader(topic)
	pool := NewPayloadPool()

	first := &RpcPayloadData{Payload: pool.GetPayload([]byte(`{}`)), SourceTimestamp: time.Now()}
	reader.SimulateDataReception(first)

	if got := len(reader.Take()); got != 1 {
		t.Fatalf("expected one queued sample, got %d", got)
	}

	var delivered []*RpcPayloadData
	reader.SimulateDataReception(first)
	reader.SetSink(func(topic DdsTopic, data *RpcPayloadData) {
		delivered = append(delivered, data)
	})
	if len(delivered) != 1 {
		t.Fatalf("pending samples must flush to a new sink, got %d", len(delivered))
	}

	second := &RpcPayloadData{Payload: pool.GetPayload([]byte(`{}`))}
	reader.SimulateDataReception(second)
	if len(delivered) != 2 {
		t.Fatalf("sink must receive injected samples, got %d", len(delivered))
	}
}

func TestDiscoveryDatabase_EndpointLifecycle(t *testing.T) {
	db := NewDiscoveryDatabase()

	seen := make(chan Endpoint, 1)
	db.OnEndpoint(func(ep Endpoint) { seen <- ep })

	handle := db.AddEndpoint(DdsTopic{Name: "rq/calcRequest", TypeName: "Calc_Request"}, "tester")
	select {
	case ep := <-seen:
		if ep.Topic.Name != "rq/calcRequest" || ep.Handle != handle {
			t.Errorf("unexpected endpoint %+v", ep)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not notified")
	}

	if !db.RemoveEndpoint(handle) {
		t.Error("expected removal to succeed")
	}
	if db.RemoveEndpoint(handle) {
		t.Error("expected second removal to fail")
	}
	if len(db.Endpoints()) != 0 {
		t.Errorf("expected no endpoints, got %d", len(db.Endpoints()))
	}
}

func TestJSONDynamicType_Codec(t *testing.T) {
	dt := NewJSONDynamicType("Point", "struct Point { long x; long y; };", `{"x":0,"y":0}`)

	wire, err := dt.Serialize(`{ "x": 1, "y": 2 }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(wire) != `{"x":1,"y":2}` {
		t.Errorf("expected compact encoding, got %s", wire)
	}

	doc, err := dt.Deserialize(wire)
	if err != nil || doc != `{"x":1,"y":2}` {
		t.Errorf("unexpected decode %q %v", doc, err)
	}

	if _, err := dt.Serialize("nope"); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := dt.Deserialize([]byte("nope")); err == nil {
		t.Error("expected error for invalid wire bytes")
	}
}

func TestTypeObjectRegistry(t *testing.T) {
	reg := NewTypeObjectRegistry()
	dt := NewJSONDynamicType("Point", "", "{}")
	id := IdentifierFor(dt)

	reg.RegisterType(dt, id)

	gotID, ok := reg.TypeIdentifiers("Point")
	if !ok || gotID != id {
		t.Fatalf("identifier lookup failed: %v %v", gotID, ok)
	}
	gotType, ok := reg.TypeObject(id)
	if !ok || gotType.Name() != "Point" {
		t.Fatalf("type lookup failed")
	}

	// Re-registration keeps the first entry.
	other := NewJSONDynamicType("Point", "struct Point {};", "{}")
	reg.RegisterType(other, IdentifierFor(other))
	gotID, _ = reg.TypeIdentifiers("Point")
	if gotID != id {
		t.Error("re-registration must not replace the first entry")
	}
}

func TestIsTypeObjectTopic(t *testing.T) {
	if !IsTypeObjectTopic("__type_object") {
		t.Error("expected type-object topic to be recognised")
	}
	if IsTypeObjectTopic("chatter") {
		t.Error("regular topics must not match")
	}
}
