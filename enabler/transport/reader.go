package transport

import (
	"sync"
)

// DataSink consumes samples leaving an internal reader.
type DataSink func(topic DdsTopic, data *RpcPayloadData)

// InternalReader is an in-process queue that receives samples injected by
// the participant façade. It is distinct from a real subscriber on the bus:
// the transport drains it (or a sink consumes it synchronously) and forwards
// the samples onto the wire.
type InternalReader struct {
	topic DdsTopic

	mu    sync.Mutex
	queue []*RpcPayloadData
	sink  DataSink
}

// NewInternalReader creates a reader for a topic.
func NewInternalReader(topic DdsTopic) *InternalReader {
	return &InternalReader{topic: topic}
}

// Topic returns the topic the reader was created for.
func (r *InternalReader) Topic() DdsTopic {
	return r.topic
}

// SetSink installs a consumer invoked synchronously for every injected
// sample. Samples queued before the sink was installed are flushed to it.
func (r *InternalReader) SetSink(sink DataSink) {
	r.mu.Lock()
	pending := r.queue
	r.queue = nil
	r.sink = sink
	r.mu.Unlock()

	if sink == nil {
		return
	}
	for _, data := range pending {
		sink(r.topic, data)
	}
}

// SimulateDataReception injects a sample into the reader.
func (r *InternalReader) SimulateDataReception(data *RpcPayloadData) {
	r.mu.Lock()
	sink := r.sink
	if sink == nil {
		r.queue = append(r.queue, data)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	sink(r.topic, data)
}

// Take drains and returns the queued samples.
func (r *InternalReader) Take() []*RpcPayloadData {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.queue
	r.queue = nil
	return out
}
