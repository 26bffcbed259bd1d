package enabler

import (
	"sync"

	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// Link is an in-memory wire between two bridge instances: samples injected
// into one instance's internal readers are delivered to the other
// instance's coordination engine.
//
// The link performs the related-identity translation the DDS-RPC mapping
// performs on a real bus: the requester stamps its own request identifier
// on an outgoing request, the serving side mints a fresh identifier on
// reception, and replies travelling back are rewritten so the requester
// sees its original identifier.
type Link struct {
	a *Enabler
	b *Enabler

	mu sync.Mutex
	// Minted identifier on the serving side -> original requester identifier,
	// keyed per reply direction.
	repliesToA map[uint64]uint64
	repliesToB map[uint64]uint64
}

// NewLink wires two instances together and starts forwarding.
func NewLink(a, b *Enabler) *Link {
	l := &Link{
		a:          a,
		b:          b,
		repliesToA: make(map[uint64]uint64),
		repliesToB: make(map[uint64]uint64),
	}

	// When a request lands, record (minted identity -> requester identity)
	// the instant it is stamped, so a reply published from within the
	// request notification still translates correctly.
	a.Handler().SetRequestStampObserver(func(data *transport.RpcPayloadData) {
		l.remember(l.repliesToB, data)
	})
	b.Handler().SetRequestStampObserver(func(data *transport.RpcPayloadData) {
		l.remember(l.repliesToA, data)
	})

	a.Participant().SetReaderSink(func(topic transport.DdsTopic, data *transport.RpcPayloadData) {
		l.forward(topic, data, b, l.repliesToB)
	})
	b.Participant().SetReaderSink(func(topic transport.DdsTopic, data *transport.RpcPayloadData) {
		l.forward(topic, data, a, l.repliesToA)
	})
	return l
}

// remember records the identity mapping of a freshly stamped request.
func (l *Link) remember(replies map[uint64]uint64, data *transport.RpcPayloadData) {
	if data.SentSequenceNumber == 0 || data.RelatedRequestID == 0 {
		return
	}
	l.mu.Lock()
	replies[data.SentSequenceNumber] = data.RelatedRequestID
	l.mu.Unlock()
}

// forward delivers one sample to the destination instance. Replies are
// rewritten so the destination sees the identifier it originally minted;
// replies maps the sender's minted identifiers back to the destination's.
func (l *Link) forward(topic transport.DdsTopic, data *transport.RpcPayloadData, dst *Enabler, replies map[uint64]uint64) {
	info := rpcbus.ParseTopic(topic.Name)

	// Type discovery: make sure the destination can resolve the sample's
	// type before the sample lands, as the bus would have done.
	if _, err := dst.Handler().TypeIdentifier(topic.TypeName); err != nil {
		dst.logger.Warn("link_type_resolution_failed", "type_name", topic.TypeName, "error", err.Error())
	}

	if info.Side == rpcbus.SideReply {
		l.mu.Lock()
		if original, ok := replies[data.RelatedRequestID]; ok {
			delete(replies, data.RelatedRequestID)
			data.RelatedRequestID = original
		}
		l.mu.Unlock()
	}

	dst.AddData(topic, data)
	data.Payload.Release()
}

// MirrorDiscovery propagates endpoint discoveries between the two
// instances, so each builds readers (and discovery records) for the topics
// the other announces or publishes on.
func (l *Link) MirrorDiscovery() {
	l.a.DiscoveryDatabase().OnEndpoint(func(ep transport.Endpoint) {
		l.b.Participant().CreateReader(ep.Topic)
	})
	l.b.DiscoveryDatabase().OnEndpoint(func(ep transport.Endpoint) {
		l.a.Participant().CreateReader(ep.Topic)
	})
}
