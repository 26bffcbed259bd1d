// Package testutil provides shared test utilities and mocks for the bridge
// packages: a thread-safe callback recorder and a static metadata store
// answering the application query callbacks.
package testutil

import (
	"sync"

	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/enabler/typeregistry"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// =============================================================================
// STATIC TYPE STORE
// =============================================================================

// StaticTypeStore answers the type, topic, service and action queries from
// declared metadata. Safe for concurrent use.
type StaticTypeStore struct {
	mu       sync.Mutex
	types    map[string]*transport.JSONDynamicType
	topics   map[string]rpcbus.TopicInfo
	services map[string]rpcbus.ServiceInfo
	actions  map[string]rpcbus.ActionInfo
}

// NewStaticTypeStore creates an empty store.
func NewStaticTypeStore() *StaticTypeStore {
	return &StaticTypeStore{
		types:    make(map[string]*transport.JSONDynamicType),
		topics:   make(map[string]rpcbus.TopicInfo),
		services: make(map[string]rpcbus.ServiceInfo),
		actions:  make(map[string]rpcbus.ActionInfo),
	}
}

// WithType declares a JSON-backed type.
func (s *StaticTypeStore) WithType(name, idl, placeholder string) *StaticTypeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[name] = transport.NewJSONDynamicType(name, idl, placeholder)
	return s
}

// WithTopic declares a plain topic.
func (s *StaticTypeStore) WithTopic(topicName, typeName string) *StaticTypeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[topicName] = rpcbus.TopicInfo{TypeName: typeName}
	return s
}

// WithService declares a service with request and reply types, declaring
// the types as well.
func (s *StaticTypeStore) WithService(serviceName, requestType, replyType string) *StaticTypeStore {
	s.WithType(requestType, "", "{}")
	s.WithType(replyType, "", "{}")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[serviceName] = rpcbus.ServiceInfo{
		Request: rpcbus.TopicInfo{TypeName: requestType},
		Reply:   rpcbus.TopicInfo{TypeName: replyType},
	}
	return s
}

// WithAction declares an action with the conventional ROS 2 type names
// derived from the action name, declaring every type as well.
func (s *StaticTypeStore) WithAction(actionName string) *StaticTypeStore {
	info := rpcbus.ActionInfo{
		Goal: rpcbus.ServiceInfo{
			Request: rpcbus.TopicInfo{TypeName: actionName + "SendGoal_Request"},
			Reply:   rpcbus.TopicInfo{TypeName: actionName + "SendGoal_Response"},
		},
		Result: rpcbus.ServiceInfo{
			Request: rpcbus.TopicInfo{TypeName: actionName + "GetResult_Request"},
			Reply:   rpcbus.TopicInfo{TypeName: actionName + "GetResult_Response"},
		},
		Cancel: rpcbus.ServiceInfo{
			Request: rpcbus.TopicInfo{TypeName: actionName + "CancelGoal_Request"},
			Reply:   rpcbus.TopicInfo{TypeName: actionName + "CancelGoal_Response"},
		},
		Feedback: rpcbus.TopicInfo{TypeName: actionName + "FeedbackMessage"},
		Status:   rpcbus.TopicInfo{TypeName: actionName + "GoalStatusArray"},
	}
	for _, t := range []string{
		info.Goal.Request.TypeName, info.Goal.Reply.TypeName,
		info.Result.Request.TypeName, info.Result.Reply.TypeName,
		info.Cancel.Request.TypeName, info.Cancel.Reply.TypeName,
		info.Feedback.TypeName, info.Status.TypeName,
	} {
		s.WithType(t, "", "{}")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[actionName] = info
	return s
}

// WithServiceTopics additionally declares the service's request and reply
// topic names under a wire convention, so clients can resolve them through
// the topic query.
func (s *StaticTypeStore) WithServiceTopics(serviceName string, protocol rpcbus.Protocol) *StaticTypeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.services[serviceName]
	if !ok {
		return s
	}
	s.topics[rpcbus.ServiceRequestTopic(serviceName, protocol)] = info.Request
	s.topics[rpcbus.ServiceReplyTopic(serviceName, protocol)] = info.Reply
	return s
}

// WithActionTopics additionally declares every topic name of an action
// under the ROS 2 convention.
func (s *StaticTypeStore) WithActionTopics(actionName string) *StaticTypeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.actions[actionName]
	if !ok {
		return s
	}
	subs := map[rpcbus.ActionSubtopic]rpcbus.ServiceInfo{
		rpcbus.SubtopicGoal:   info.Goal,
		rpcbus.SubtopicResult: info.Result,
		rpcbus.SubtopicCancel: info.Cancel,
	}
	for sub, svcInfo := range subs {
		s.topics[rpcbus.ActionTopic(actionName, sub, rpcbus.SideRequest, rpcbus.ProtocolROS2)] = svcInfo.Request
		s.topics[rpcbus.ActionTopic(actionName, sub, rpcbus.SideReply, rpcbus.ProtocolROS2)] = svcInfo.Reply
	}
	s.topics[rpcbus.ActionTopic(actionName, rpcbus.SubtopicFeedback, rpcbus.SideNone, rpcbus.ProtocolROS2)] = info.Feedback
	s.topics[rpcbus.ActionTopic(actionName, rpcbus.SubtopicStatus, rpcbus.SideNone, rpcbus.ProtocolROS2)] = info.Status
	return s
}

// Types returns a snapshot of the declared dynamic types.
func (s *StaticTypeStore) Types() []transport.DynamicType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transport.DynamicType, 0, len(s.types))
	for _, dt := range s.types {
		out = append(out, dt)
	}
	return out
}

// TypeQuery answers the type dependency blob query.
func (s *StaticTypeStore) TypeQuery(typeName string) ([]byte, bool) {
	s.mu.Lock()
	dt, ok := s.types[typeName]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return typeregistry.EncodeTypeBlob([]typeregistry.TypeBlobEntry{{
		TypeName:        dt.Name(),
		IDL:             dt.IDL(),
		DataPlaceholder: dt.DataPlaceholder(),
	}}), true
}

// TopicQuery answers the topic metadata query.
func (s *StaticTypeStore) TopicQuery(topicName string) (rpcbus.TopicInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.topics[topicName]
	return info, ok
}

// ServiceQuery answers the service metadata query.
func (s *StaticTypeStore) ServiceQuery(serviceName string) (rpcbus.ServiceInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.services[serviceName]
	return info, ok
}

// ActionQuery answers the action metadata query.
func (s *StaticTypeStore) ActionQuery(actionName string) (rpcbus.ActionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.actions[actionName]
	return info, ok
}

// ActionInfoOf returns the declared metadata of an action.
func (s *StaticTypeStore) ActionInfoOf(actionName string) (rpcbus.ActionInfo, bool) {
	return s.ActionQuery(actionName)
}
