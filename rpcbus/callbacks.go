package rpcbus

// Application callbacks. Every callback is optional; dispatch sites check
// presence and a missing callback is a silent skip.
//
// Query callbacks are synchronous lookups supplied by the application and
// must not call back into the bridge.

// =============================================================================
// LOGGING
// =============================================================================

// LogFunc consumes a log record emitted by the bridge.
type LogFunc func(file string, line int, function string, category string, msg string)

// =============================================================================
// DDS CALLBACKS
// =============================================================================

// TypeNotification notifies the reception of a type: its IDL text, the
// binary serialization of the complete type with its dependencies, and a
// data-placeholder JSON.
type TypeNotification func(typeName string, idl string, typeBlob []byte, dataPlaceholder string)

// TopicNotification notifies the discovery of a topic.
type TopicNotification func(topicName string, info TopicInfo)

// DataNotification notifies the reception of a data sample. The publish
// time is nanoseconds since the epoch.
type DataNotification func(topicName string, json string, publishTime int64)

// TypeQuery requests the binary dependency blob of a type from the
// application.
type TypeQuery func(typeName string) ([]byte, bool)

// TopicQuery requests the metadata of a topic from the application.
type TopicQuery func(topicName string) (TopicInfo, bool)

// DdsCallbacks groups the plain pub/sub callbacks.
type DdsCallbacks struct {
	TypeNotification  TypeNotification
	TopicNotification TopicNotification
	DataNotification  DataNotification
	TypeQuery         TypeQuery
	TopicQuery        TopicQuery
}

// =============================================================================
// SERVICE CALLBACKS
// =============================================================================

// ServiceNotification notifies that a service has been fully discovered.
type ServiceNotification func(serviceName string, info ServiceInfo)

// ServiceRequestNotification notifies the reception of a service request.
// The request identifier must be echoed when replying.
type ServiceRequestNotification func(serviceName string, json string, requestID uint64, publishTime int64)

// ServiceReplyNotification notifies the reception of a service reply,
// correlated to its request by the request identifier.
type ServiceReplyNotification func(serviceName string, json string, requestID uint64, publishTime int64)

// ServiceQuery requests the request/reply metadata of a service from the
// application.
type ServiceQuery func(serviceName string) (ServiceInfo, bool)

// ServiceCallbacks groups the service callbacks.
type ServiceCallbacks struct {
	ServiceNotification        ServiceNotification
	ServiceRequestNotification ServiceRequestNotification
	ServiceReplyNotification   ServiceReplyNotification
	ServiceQuery               ServiceQuery
}

// =============================================================================
// ACTION CALLBACKS
// =============================================================================

// ActionNotification notifies that an action has been fully discovered.
type ActionNotification func(actionName string, info ActionInfo)

// ActionGoalRequestNotification notifies an inbound goal request and returns
// whether the goal is accepted; the bridge replies on the caller's behalf.
type ActionGoalRequestNotification func(actionName string, goalJSON string, goalID GoalID, publishTime int64) bool

// ActionGoalReplyNotification notifies the reply to a previously sent goal.
type ActionGoalReplyNotification func(actionName string, json string, goalID GoalID, publishTime int64)

// ActionCancelRequestNotification notifies an inbound cancel request.
//
// The (goalID, timestamp) pair selects the goals to cancel:
//   - zero id, zero timestamp: cancel all goals
//   - zero id, non-zero timestamp: cancel goals accepted at or before it
//   - non-zero id, zero timestamp: cancel that goal
//   - both non-zero: both filters
type ActionCancelRequestNotification func(actionName string, goalID GoalID, timestamp int64, requestID uint64, publishTime int64)

// ActionCancelReplyNotification notifies the reply to a cancel request.
type ActionCancelReplyNotification func(actionName string, json string, requestID uint64, publishTime int64)

// ActionFeedbackNotification notifies feedback for an active goal.
type ActionFeedbackNotification func(actionName string, json string, goalID GoalID, publishTime int64)

// ActionStatusNotification notifies a status update for an active goal.
type ActionStatusNotification func(actionName string, goalID GoalID, status StatusCode, statusMessage string, publishTime int64)

// ActionResultNotification notifies the result of a goal.
type ActionResultNotification func(actionName string, json string, goalID GoalID, publishTime int64)

// ActionQuery requests the full topic metadata of an action from the
// application.
type ActionQuery func(actionName string) (ActionInfo, bool)

// ActionCallbacks groups the action callbacks.
type ActionCallbacks struct {
	ActionNotification              ActionNotification
	ActionGoalRequestNotification   ActionGoalRequestNotification
	ActionGoalReplyNotification     ActionGoalReplyNotification
	ActionCancelRequestNotification ActionCancelRequestNotification
	ActionCancelReplyNotification   ActionCancelReplyNotification
	ActionFeedbackNotification      ActionFeedbackNotification
	ActionStatusNotification        ActionStatusNotification
	ActionResultNotification        ActionResultNotification
	ActionQuery                     ActionQuery
}

// =============================================================================
// CALLBACK SET
// =============================================================================

// CallbackSet encapsulates all callbacks used by the bridge.
type CallbackSet struct {
	// Log is executed when consuming log messages.
	Log LogFunc

	Dds     DdsCallbacks
	Service ServiceCallbacks
	Action  ActionCallbacks
}
