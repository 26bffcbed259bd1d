package participant

import (
	"fmt"

	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// =============================================================================
// SERVICE ANNOUNCEMENT
// =============================================================================

// AnnounceService declares this participant the server of a service. The
// request and reply metadata comes from the service query callback; the
// request-side endpoint handle is kept for a later revoke. At most one
// enabler-side server may exist per service.
func (p *Participant) AnnounceService(serviceName string, protocol rpcbus.Protocol) error {
	p.mu.Lock()
	if svc := p.agg.Service(serviceName); svc != nil && svc.EnablerAsServer {
		p.mu.Unlock()
		return rpcbus.NewAlreadyAnnouncedError(serviceName)
	}
	query := p.serviceQuery
	p.mu.Unlock()

	if query == nil {
		return fmt.Errorf("cannot announce %s: service query callback not set", serviceName)
	}
	info, ok := query(serviceName)
	if !ok {
		return fmt.Errorf("cannot announce %s: service query returned no metadata", serviceName)
	}

	requestTopic, err := p.buildTopic(rpcbus.ServiceRequestTopic(serviceName, protocol), info.Request)
	if err != nil {
		return err
	}
	replyTopic, err := p.buildTopic(rpcbus.ServiceReplyTopic(serviceName, protocol), info.Reply)
	if err != nil {
		return err
	}

	p.mu.Lock()
	svc := p.agg.EnsureService(serviceName, protocol)
	completed := svc.AddTopic(requestTopic, rpcbus.SideRequest)
	completed = svc.AddTopic(replyTopic, rpcbus.SideReply) || completed
	svc.EnablerAsServer = true
	var notify func()
	if completed {
		if rpcT, rpcErr := svc.RpcTopic(); rpcErr == nil {
			notify = func() { p.handler.AddService(rpcT) }
		}
	}
	p.mu.Unlock()

	if notify != nil {
		notify()
	}

	// The request writer: synthesize the endpoint and wait for the
	// discovery thread to build the matching reader.
	handle, err := p.createRequestWriter(requestTopic)
	if err != nil {
		p.mu.Lock()
		svc.EnablerAsServer = false
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	svc.EndpointRequest = handle
	p.mu.Unlock()

	p.logger.Info("service_announced", "service_name", serviceName, "protocol", string(protocol))
	return nil
}

// createRequestWriter synthesizes a dynamic endpoint for a request topic
// and waits for its reader. The endpoint is removed again if the reader
// never materializes.
func (p *Participant) createRequestWriter(topic transport.DdsTopic) (transport.EndpointHandle, error) {
	handle := p.discoveryDB.AddEndpoint(topic, p.cfg.ParticipantID)
	if _, err := p.waitForReader(topic.Name); err != nil {
		p.discoveryDB.RemoveEndpoint(handle)
		return 0, err
	}
	return handle, nil
}

// RevokeService withdraws this participant as the server of a service. The
// discovered record survives if an external server remains.
func (p *Participant) RevokeService(serviceName string) error {
	p.mu.Lock()
	svc := p.agg.Service(serviceName)
	if svc == nil || !svc.EnablerAsServer {
		p.mu.Unlock()
		return rpcbus.NewNotAnnouncedError(serviceName)
	}
	handle := svc.EndpointRequest
	svc.EndpointRequest = 0
	svc.EnablerAsServer = false
	if topic, ok := svc.Topic(rpcbus.SideRequest); ok {
		delete(p.readers, topic.Name)
	}
	if !svc.ExternalServer {
		p.agg.RemoveService(serviceName)
	}
	p.mu.Unlock()

	if handle != 0 {
		p.discoveryDB.RemoveEndpoint(handle)
	}
	p.logger.Info("service_revoked", "service_name", serviceName)
	return nil
}

// MarkExternalServer records that a remote server serves this service,
// creating the record on first sight. The discovery path does not call it;
// the flag is set only when a caller invokes this method.
func (p *Participant) MarkExternalServer(serviceName string, protocol rpcbus.Protocol) {
	p.mu.Lock()
	defer p.mu.Unlock()
	svc := p.agg.EnsureService(serviceName, protocol)
	svc.ExternalServer = true
}

// ServiceProtocol returns the wire convention recorded for a service, or
// ProtocolUnknown when no record exists.
func (p *Participant) ServiceProtocol(serviceName string) rpcbus.Protocol {
	p.mu.Lock()
	defer p.mu.Unlock()
	if svc := p.agg.Service(serviceName); svc != nil {
		return svc.Protocol
	}
	return rpcbus.ProtocolUnknown
}

// =============================================================================
// SERVICE REQUEST / REPLY
// =============================================================================

// SendServiceRequest issues a request under the ROS 2 convention and
// returns the minted request identifier.
func (p *Participant) SendServiceRequest(serviceName, doc string) (uint64, error) {
	return p.SendServiceRequestWithProtocol(serviceName, doc, rpcbus.ProtocolROS2)
}

// SendServiceRequestWithProtocol issues a request under an explicit wire
// convention.
func (p *Participant) SendServiceRequestWithProtocol(serviceName, doc string, protocol rpcbus.Protocol) (uint64, error) {
	topicName := rpcbus.ServiceRequestTopic(serviceName, protocol)
	if topicName == "" {
		return 0, rpcbus.NewUnsupportedProtocolError(protocol)
	}

	requestID := p.handler.NewRequestID()
	fallback := p.serviceTopicFallback(serviceName, rpcbus.SideRequest)
	if err := p.publishJSON(topicName, fallback, doc, requestID, true); err != nil {
		return 0, err
	}
	return requestID, nil
}

// SendServiceReply answers a previously notified request. The service's
// wire convention must have been determined by a discovery or announce.
func (p *Participant) SendServiceReply(serviceName, doc string, requestID uint64) error {
	p.mu.Lock()
	svc := p.agg.Service(serviceName)
	protocol := rpcbus.ProtocolUnknown
	var fallback *transport.DdsTopic
	if svc != nil {
		protocol = svc.Protocol
		if topic, ok := svc.Topic(rpcbus.SideReply); ok {
			fallback = &topic
		}
	}
	p.mu.Unlock()

	if protocol == rpcbus.ProtocolUnknown {
		return rpcbus.NewUnknownRpcProtocolError(serviceName)
	}
	return p.publishJSON(rpcbus.ServiceReplyTopic(serviceName, protocol), fallback, doc, requestID, true)
}

// =============================================================================
// HELPERS
// =============================================================================

// buildTopic assembles topic metadata, resolving the type identifier
// through the handler's registry sources.
func (p *Participant) buildTopic(topicName string, info rpcbus.TopicInfo) (transport.DdsTopic, error) {
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

// serviceTopicFallback returns a copy of a known service topic for the
// publish path, or nil when none is recorded.
func (p *Participant) serviceTopicFallback(serviceName string, side rpcbus.ServiceSide) *transport.DdsTopic {
	p.mu.Lock()
	defer p.mu.Unlock()
	svc := p.agg.Service(serviceName)
	if svc == nil {
		return nil
	}
	if topic, ok := svc.Topic(side); ok {
		return &topic
	}
	return nil
}
