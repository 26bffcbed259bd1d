package testutil

import (
	"sync"

	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// =============================================================================
// CALLBACK RECORDER
// =============================================================================

// TypeEvent is a captured type notification.
type TypeEvent struct {
	TypeName    string
	IDL         string
	Blob        []byte
	Placeholder string
}

// TopicEvent is a captured topic notification.
type TopicEvent struct {
	TopicName string
	Info      rpcbus.TopicInfo
}

// DataEvent is a captured data notification.
type DataEvent struct {
	TopicName   string
	JSON        string
	PublishTime int64
}

// ServiceEvent is a captured service discovery notification.
type ServiceEvent struct {
	ServiceName string
	Info        rpcbus.ServiceInfo
}

// RequestEvent is a captured service request or reply notification.
type RequestEvent struct {
	ServiceName string
	JSON        string
	RequestID   uint64
	PublishTime int64
}

// ActionEvent is a captured action discovery notification.
type ActionEvent struct {
	ActionName string
	Info       rpcbus.ActionInfo
}

// GoalEvent is a captured goal-scoped notification (goal request/reply,
// feedback, result).
type GoalEvent struct {
	ActionName  string
	JSON        string
	GoalID      rpcbus.GoalID
	PublishTime int64
}

// CancelRequestEvent is a captured cancel request notification.
type CancelRequestEvent struct {
	ActionName  string
	GoalID      rpcbus.GoalID
	Timestamp   int64
	RequestID   uint64
	PublishTime int64
}

// CancelReplyEvent is a captured cancel reply notification.
type CancelReplyEvent struct {
	ActionName  string
	JSON        string
	RequestID   uint64
	PublishTime int64
}

// StatusEvent is a captured status notification.
type StatusEvent struct {
	ActionName  string
	GoalID      rpcbus.GoalID
	Status      rpcbus.StatusCode
	Message     string
	PublishTime int64
}

// Recorder captures every notification for assertion. All accessors are
// thread-safe and return copies.
type Recorder struct {
	mu sync.Mutex

	Types           []TypeEvent
	Topics          []TopicEvent
	Data            []DataEvent
	Services        []ServiceEvent
	ServiceRequests []RequestEvent
	ServiceReplies  []RequestEvent
	Actions         []ActionEvent
	GoalRequests    []GoalEvent
	GoalReplies     []GoalEvent
	CancelRequests  []CancelRequestEvent
	CancelReplies   []CancelReplyEvent
	Feedback        []GoalEvent
	Statuses        []StatusEvent
	Results         []GoalEvent

	// AcceptGoal decides inbound goal requests; nil accepts everything.
	AcceptGoal func(actionName, goalJSON string, goalID rpcbus.GoalID) bool

	// OnGoalRequest, OnServiceRequest and OnCancelRequest run after
	// recording, outside the recorder lock, to drive server behavior.
	OnGoalRequest    func(actionName, goalJSON string, goalID rpcbus.GoalID)
	OnServiceRequest func(serviceName, json string, requestID uint64)
	OnCancelRequest  func(actionName string, goalID rpcbus.GoalID, timestamp int64, requestID uint64)
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Callbacks assembles a callback set that records every notification and
// answers queries from the store (which may be nil).
func (r *Recorder) Callbacks(store *StaticTypeStore) rpcbus.CallbackSet {
	cbs := rpcbus.CallbackSet{
		Dds: rpcbus.DdsCallbacks{
			TypeNotification: func(typeName, idl string, blob []byte, placeholder string) {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.Types = append(r.Types, TypeEvent{TypeName: typeName, IDL: idl, Blob: blob, Placeholder: placeholder})
			},
			TopicNotification: func(topicName string, info rpcbus.TopicInfo) {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.Topics = append(r.Topics, TopicEvent{TopicName: topicName, Info: info})
			},
			DataNotification: func(topicName, json string, publishTime int64) {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.Data = append(r.Data, DataEvent{TopicName: topicName, JSON: json, PublishTime: publishTime})
			},
		},
		Service: rpcbus.ServiceCallbacks{
			ServiceNotification: func(serviceName string, info rpcbus.ServiceInfo) {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.Services = append(r.Services, ServiceEvent{ServiceName: serviceName, Info: info})
			},
			ServiceRequestNotification: func(serviceName, json string, requestID uint64, publishTime int64) {
				r.mu.Lock()
				r.ServiceRequests = append(r.ServiceRequests, RequestEvent{ServiceName: serviceName, JSON: json, RequestID: requestID, PublishTime: publishTime})
				hook := r.OnServiceRequest
				r.mu.Unlock()
				if hook != nil {
					hook(serviceName, json, requestID)
				}
			},
			ServiceReplyNotification: func(serviceName, json string, requestID uint64, publishTime int64) {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.ServiceReplies = append(r.ServiceReplies, RequestEvent{ServiceName: serviceName, JSON: json, RequestID: requestID, PublishTime: publishTime})
			},
		},
		Action: rpcbus.ActionCallbacks{
			ActionNotification: func(actionName string, info rpcbus.ActionInfo) {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.Actions = append(r.Actions, ActionEvent{ActionName: actionName, Info: info})
			},
			ActionGoalRequestNotification: func(actionName, goalJSON string, goalID rpcbus.GoalID, publishTime int64) bool {
				r.mu.Lock()
				r.GoalRequests = append(r.GoalRequests, GoalEvent{ActionName: actionName, JSON: goalJSON, GoalID: goalID, PublishTime: publishTime})
				accept := r.AcceptGoal
				hook := r.OnGoalRequest
				r.mu.Unlock()
				accepted := true
				if accept != nil {
					accepted = accept(actionName, goalJSON, goalID)
				}
				if hook != nil {
					hook(actionName, goalJSON, goalID)
				}
				return accepted
			},
			ActionGoalReplyNotification: func(actionName, json string, goalID rpcbus.GoalID, publishTime int64) {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.GoalReplies = append(r.GoalReplies, GoalEvent{ActionName: actionName, JSON: json, GoalID: goalID, PublishTime: publishTime})
			},
			ActionCancelRequestNotification: func(actionName string, goalID rpcbus.GoalID, timestamp int64, requestID uint64, publishTime int64) {
				r.mu.Lock()
				r.CancelRequests = append(r.CancelRequests, CancelRequestEvent{ActionName: actionName, GoalID: goalID, Timestamp: timestamp, RequestID: requestID, PublishTime: publishTime})
				hook := r.OnCancelRequest
				r.mu.Unlock()
				if hook != nil {
					hook(actionName, goalID, timestamp, requestID)
				}
			},
			ActionCancelReplyNotification: func(actionName, json string, requestID uint64, publishTime int64) {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.CancelReplies = append(r.CancelReplies, CancelReplyEvent{ActionName: actionName, JSON: json, RequestID: requestID, PublishTime: publishTime})
			},
			ActionFeedbackNotification: func(actionName, json string, goalID rpcbus.GoalID, publishTime int64) {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.Feedback = append(r.Feedback, GoalEvent{ActionName: actionName, JSON: json, GoalID: goalID, PublishTime: publishTime})
			},
			ActionStatusNotification: func(actionName string, goalID rpcbus.GoalID, status rpcbus.StatusCode, message string, publishTime int64) {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.Statuses = append(r.Statuses, StatusEvent{ActionName: actionName, GoalID: goalID, Status: status, Message: message, PublishTime: publishTime})
			},
			ActionResultNotification: func(actionName, json string, goalID rpcbus.GoalID, publishTime int64) {
				r.mu.Lock()
				defer r.mu.Unlock()
				r.Results = append(r.Results, GoalEvent{ActionName: actionName, JSON: json, GoalID: goalID, PublishTime: publishTime})
			},
		},
	}

	if store != nil {
		cbs.Dds.TypeQuery = store.TypeQuery
		cbs.Dds.TopicQuery = store.TopicQuery
		cbs.Service.ServiceQuery = store.ServiceQuery
		cbs.Action.ActionQuery = store.ActionQuery
	}
	return cbs
}

// =============================================================================
// ACCESSORS
// =============================================================================

// GetServiceRequests returns a copy of the captured service requests.
func (r *Recorder) GetServiceRequests() []RequestEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RequestEvent(nil), r.ServiceRequests...)
}

// GetServiceReplies returns a copy of the captured service replies.
func (r *Recorder) GetServiceReplies() []RequestEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RequestEvent(nil), r.ServiceReplies...)
}

// GetGoalRequests returns a copy of the captured goal requests.
func (r *Recorder) GetGoalRequests() []GoalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]GoalEvent(nil), r.GoalRequests...)
}

// GetGoalReplies returns a copy of the captured goal replies.
func (r *Recorder) GetGoalReplies() []GoalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]GoalEvent(nil), r.GoalReplies...)
}

// GetCancelRequests returns a copy of the captured cancel requests.
func (r *Recorder) GetCancelRequests() []CancelRequestEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CancelRequestEvent(nil), r.CancelRequests...)
}

// GetCancelReplies returns a copy of the captured cancel replies.
func (r *Recorder) GetCancelReplies() []CancelReplyEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CancelReplyEvent(nil), r.CancelReplies...)
}

// GetFeedback returns a copy of the captured feedback events.
func (r *Recorder) GetFeedback() []GoalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]GoalEvent(nil), r.Feedback...)
}

// GetStatuses returns a copy of the captured status events.
func (r *Recorder) GetStatuses() []StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatusEvent(nil), r.Statuses...)
}

// GetResults returns a copy of the captured result events.
func (r *Recorder) GetResults() []GoalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]GoalEvent(nil), r.Results...)
}

// GetServices returns a copy of the captured service discoveries.
func (r *Recorder) GetServices() []ServiceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceEvent(nil), r.Services...)
}

// GetActions returns a copy of the captured action discoveries.
func (r *Recorder) GetActions() []ActionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ActionEvent(nil), r.Actions...)
}

// GetTypes returns a copy of the captured type notifications.
func (r *Recorder) GetTypes() []TypeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TypeEvent(nil), r.Types...)
}

// GetData returns a copy of the captured data notifications.
func (r *Recorder) GetData() []DataEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DataEvent(nil), r.Data...)
}

// Clear removes all captured events.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Types = nil
	r.Topics = nil
	r.Data = nil
	r.Services = nil
	r.ServiceRequests = nil
	r.ServiceReplies = nil
	r.Actions = nil
	r.GoalRequests = nil
	r.GoalReplies = nil
	r.CancelRequests = nil
	r.CancelReplies = nil
	r.Feedback = nil
	r.Statuses = nil
	r.Results = nil
}
