// Package participant implements the public API façade and bus-side manager
// of the bridge: reader lifecycle, publishing, service and action
// announcement, and the goal lifecycle operations.
package participant

import (
	"sync"
	"time"

	"github.com/edgelink-robotics/busbridge/enabler/config"
	"github.com/edgelink-robotics/busbridge/enabler/discovery"
	"github.com/edgelink-robotics/busbridge/enabler/handler"
	"github.com/edgelink-robotics/busbridge/enabler/observability"
	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// Participant owns the internal readers, the discovered service and action
// records, and the application query callbacks. All public methods are
// thread-safe.
//
// Lock order: Participant before Handler, never the reverse. Application
// callbacks are dispatched with the participant lock released.
type Participant struct {
	logger      rpcbus.Logger
	cfg         *config.EnablerConfig
	pool        *transport.PayloadPool
	discoveryDB *transport.DiscoveryDatabase
	handler     *handler.Handler

	mu             sync.Mutex
	readers        map[string]*transport.InternalReader
	readersChanged chan struct{}
	agg            *discovery.Aggregator
	readerSink     transport.DataSink

	topicQuery   rpcbus.TopicQuery
	serviceQuery rpcbus.ServiceQuery
	actionQuery  rpcbus.ActionQuery
}

// New creates a participant.
func New(
	cfg *config.EnablerConfig,
	logger rpcbus.Logger,
	pool *transport.PayloadPool,
	discoveryDB *transport.DiscoveryDatabase,
	h *handler.Handler,
) *Participant {
	if cfg == nil {
		cfg = config.DefaultEnablerConfig()
	}
	if logger == nil {
		logger = rpcbus.NoopLogger()
	}
	return &Participant{
		logger:         logger,
		cfg:            cfg,
		pool:           pool,
		discoveryDB:    discoveryDB,
		handler:        h,
		readers:        make(map[string]*transport.InternalReader),
		readersChanged: make(chan struct{}),
		agg:            discovery.NewAggregator(logger),
	}
}

// ID returns the participant identity used on published samples.
func (p *Participant) ID() string {
	return p.cfg.ParticipantID
}

// Handler returns the coordination engine backing this participant.
func (p *Participant) Handler() *handler.Handler {
	return p.handler
}

// SetTopicQuery installs the application's topic metadata lookup.
func (p *Participant) SetTopicQuery(q rpcbus.TopicQuery) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topicQuery = q
}

// SetServiceQuery installs the application's service metadata lookup.
func (p *Participant) SetServiceQuery(q rpcbus.ServiceQuery) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.serviceQuery = q
}

// SetActionQuery installs the application's action metadata lookup.
func (p *Participant) SetActionQuery(q rpcbus.ActionQuery) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actionQuery = q
}

// SetReaderSink installs a consumer for samples leaving the internal
// readers; it also applies to readers created later.
func (p *Participant) SetReaderSink(sink transport.DataSink) {
	p.mu.Lock()
	p.readerSink = sink
	existing := make([]*transport.InternalReader, 0, len(p.readers))
	for _, r := range p.readers {
		existing = append(existing, r)
	}
	p.mu.Unlock()
	for _, r := range existing {
		r.SetSink(sink)
	}
}

// =============================================================================
// READER LIFECYCLE
// =============================================================================

// CreateReader builds the internal reader for a discovered topic. It is
// invoked from the transport's discovery thread; the internal type-object
// topic gets no reader. Waiters blocked on the reader's creation are woken.
func (p *Participant) CreateReader(topic transport.DdsTopic) *transport.InternalReader {
	if transport.IsTypeObjectTopic(topic.Name) {
		return nil
	}

	p.mu.Lock()
	if existing, ok := p.readers[topic.Name]; ok {
		p.mu.Unlock()
		return existing
	}
	reader := transport.NewInternalReader(topic)
	if p.readerSink != nil {
		reader.SetSink(p.readerSink)
	}
	p.readers[topic.Name] = reader

	events := p.agg.AddTopic(rpcbus.ParseTopic(topic.Name), topic)
	notify := p.materializeLocked(events)

	// Wake anyone waiting for this reader.
	close(p.readersChanged)
	p.readersChanged = make(chan struct{})
	p.mu.Unlock()

	p.handler.AddTopic(topic)
	notify()
	return reader
}

// materializeLocked converts completion events into notifications that can
// be dispatched after the lock is released.
func (p *Participant) materializeLocked(events discovery.Events) func() {
	var service *transport.RpcTopic
	var action *transport.RpcAction

	if events.Service != nil {
		if rpcT, err := events.Service.RpcTopic(); err == nil {
			service = &rpcT
		}
	}
	if events.Action != nil {
		if rpcA, err := events.Action.RpcAction(); err == nil {
			action = &rpcA
		}
	}
	return func() {
		if service != nil {
			p.handler.AddService(*service)
		}
		if action != nil {
			p.handler.AddAction(*action)
		}
	}
}

// lookupReaderLocked finds a reader by topic name.
func (p *Participant) lookupReaderLocked(topicName string) (*transport.InternalReader, bool) {
	r, ok := p.readers[topicName]
	return r, ok
}

// waitForReader blocks until the discovery thread has constructed the
// reader for a topic, bounded by the configured timeout.
func (p *Participant) waitForReader(topicName string) (*transport.InternalReader, error) {
	deadline := time.Now().Add(p.cfg.ReaderWaitTimeout())
	for {
		p.mu.Lock()
		if r, ok := p.lookupReaderLocked(topicName); ok {
			p.mu.Unlock()
			return r, nil
		}
		changed := p.readersChanged
		p.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			observability.RecordReaderWaitTimeout()
			return nil, rpcbus.NewReaderCreationError(topicName, p.cfg.ReaderWaitTimeout())
		}
		select {
		case <-changed:
		case <-time.After(remaining):
			observability.RecordReaderWaitTimeout()
			return nil, rpcbus.NewReaderCreationError(topicName, p.cfg.ReaderWaitTimeout())
		}
	}
}

// =============================================================================
// PUBLISHING
// =============================================================================

// Publish serializes a JSON document and injects it on a topic, resolving
// unknown topics through the topic query callback.
func (p *Participant) Publish(topicName, doc string) error {
	return p.publishJSON(topicName, nil, doc, 0, false)
}

// PublishRPC publishes a request or reply sample, stamping the sample's
// related identity with the request identifier so the peer can correlate.
func (p *Participant) PublishRPC(topicName, doc string, requestID uint64) error {
	return p.publishJSON(topicName, nil, doc, requestID, true)
}

// publishJSON is the shared publish path. A non-nil fallback topic supplies
// the metadata of a topic the participant already knows from a service or
// action record, bypassing the topic query callback.
func (p *Participant) publishJSON(topicName string, fallback *transport.DdsTopic, doc string, requestID uint64, rpc bool) error {
	start := time.Now()

	p.mu.Lock()
	reader, ok := p.lookupReaderLocked(topicName)
	p.mu.Unlock()

	created := false
	if !ok {
		topic, err := p.resolveTopic(topicName, fallback)
		if err != nil {
			return err
		}
		p.discoveryDB.AddEndpoint(topic, p.cfg.ParticipantID)
		reader, err = p.waitForReader(topicName)
		if err != nil {
			p.logger.Error("publish_reader_wait_failed", "topic", topicName, "error", err.Error())
			return err
		}
		created = true
	}

	payload, err := p.handler.SerializedData(reader.Topic().TypeName, doc)
	if err != nil {
		p.logger.Error("publish_serialization_failed", "topic", topicName, "error", err.Error())
		return err
	}

	data := &transport.RpcPayloadData{
		Payload:          payload,
		SourceTimestamp:  time.Now(),
		SourceGUIDPrefix: p.cfg.ParticipantID,
		RelatedRequestID: requestID,
	}

	if created && p.cfg.InitialPublishWait() > 0 {
		// Let remote readers match before the first sample goes out.
		time.Sleep(p.cfg.InitialPublishWait())
	}

	reader.SimulateDataReception(data)

	kind := "data"
	if rpc {
		kind = "rpc"
	}
	observability.RecordPublish(kind, int(time.Since(start).Milliseconds()))
	return nil
}

// resolveTopic builds the full topic metadata for a name, preferring the
// caller-supplied fallback over the topic query callback.
func (p *Participant) resolveTopic(topicName string, fallback *transport.DdsTopic) (transport.DdsTopic, error) {
	if fallback != nil && fallback.TypeName != "" {
		return *fallback, nil
	}

	p.mu.Lock()
	query := p.topicQuery
	p.mu.Unlock()
	if query == nil {
		return transport.DdsTopic{}, rpcbus.NewUnknownTopicError(topicName)
	}
	info, ok := query(topicName)
	if !ok {
		return transport.DdsTopic{}, rpcbus.NewUnknownTopicError(topicName)
	}

	typeID, err := p.handler.TypeIdentifier(info.TypeName)
	if err != nil {
		return transport.DdsTopic{}, err
	}
	return transport.DdsTopic{
		Name:          topicName,
		TypeName:      info.TypeName,
		SerializedQoS: info.SerializedQoS,
		TypeID:        typeID,
	}, nil
}
