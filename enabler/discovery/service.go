// Package discovery assembles partial topic discoveries into coherent
// service and action records, emitting a single completion event per entity.
package discovery

import (
	"fmt"

	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// ServiceDiscovered accumulates the two topics of a service and tracks who
// serves it.
type ServiceDiscovered struct {
	ServiceName string
	Protocol    rpcbus.Protocol

	RequestTopic transport.DdsTopic
	ReplyTopic   transport.DdsTopic

	requestDiscovered bool
	replyDiscovered   bool

	// FullyDiscovered holds iff both topics are present and the name is
	// non-empty.
	FullyDiscovered bool

	// EnablerAsServer and ExternalServer are independent; either may be
	// true without contradicting the other.
	EnablerAsServer bool
	ExternalServer  bool

	// EndpointRequest is the handle of the dynamic request endpoint created
	// on announce; zero when none exists.
	EndpointRequest transport.EndpointHandle
}

// NewServiceDiscovered creates an empty record for a service identity.
func NewServiceDiscovered(serviceName string, protocol rpcbus.Protocol) *ServiceDiscovered {
	return &ServiceDiscovered{ServiceName: serviceName, Protocol: protocol}
}

// AddTopic records one side of the service. It returns true exactly when
// the record transitions to fully discovered; duplicate side discoveries
// return false without changes.
func (s *ServiceDiscovered) AddTopic(topic transport.DdsTopic, side rpcbus.ServiceSide) bool {
	switch side {
	case rpcbus.SideRequest:
		if s.requestDiscovered {
			return false
		}
		s.RequestTopic = topic
		s.requestDiscovered = true
	case rpcbus.SideReply:
		if s.replyDiscovered {
			return false
		}
		s.ReplyTopic = topic
		s.replyDiscovered = true
	default:
		return false
	}

	if s.requestDiscovered && s.replyDiscovered && s.ServiceName != "" {
		s.FullyDiscovered = true
		return true
	}
	return false
}

// RemoveTopic forgets one side of the service, demoting it to partial.
func (s *ServiceDiscovered) RemoveTopic(side rpcbus.ServiceSide) {
	switch side {
	case rpcbus.SideRequest:
		s.requestDiscovered = false
		s.RequestTopic = transport.DdsTopic{}
	case rpcbus.SideReply:
		s.replyDiscovered = false
		s.ReplyTopic = transport.DdsTopic{}
	}
	s.FullyDiscovered = false
}

// Topic returns the topic of one side, if discovered.
func (s *ServiceDiscovered) Topic(side rpcbus.ServiceSide) (transport.DdsTopic, bool) {
	switch side {
	case rpcbus.SideRequest:
		return s.RequestTopic, s.requestDiscovered
	case rpcbus.SideReply:
		return s.ReplyTopic, s.replyDiscovered
	}
	return transport.DdsTopic{}, false
}

// RpcTopic returns the assembled service pair.
func (s *ServiceDiscovered) RpcTopic() (transport.RpcTopic, error) {
	if !s.FullyDiscovered {
		return transport.RpcTopic{}, fmt.Errorf("service %s not fully discovered", s.ServiceName)
	}
	return transport.RpcTopic{
		ServiceName: s.ServiceName,
		Request:     s.RequestTopic,
		Reply:       s.ReplyTopic,
	}, nil
}
