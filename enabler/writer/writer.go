// Package writer projects internal events onto the application callbacks:
// it renders schemas, topics and samples into their notification payloads,
// builds the JSON envelope for data samples, and unpacks the ROS 2 action
// messages before dispatch.
package writer

import (
	"encoding/json"

	"github.com/edgelink-robotics/busbridge/enabler/observability"
	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/enabler/typeregistry"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// IsUUIDActiveFunc checks whether a goal identity is live for an action.
type IsUUIDActiveFunc func(actionName string, goalID rpcbus.GoalID) bool

// EraseUUIDFunc removes a goal identity from the correlation table.
type EraseUUIDFunc func(goalID rpcbus.GoalID, reason rpcbus.EraseReason)

// SendGoalReplyFunc publishes the goal reply after the application has
// accepted or rejected an inbound goal request.
type SendGoalReplyFunc func(actionName string, requestID uint64, accepted bool)

// Writer is purely projective: beyond its wiring it holds no state. Every
// dispatch site checks callback presence; a missing callback is a silent
// skip.
type Writer struct {
	logger    rpcbus.Logger
	callbacks rpcbus.CallbackSet

	isUUIDActive  IsUUIDActiveFunc
	eraseUUID     EraseUUIDFunc
	sendGoalReply SendGoalReplyFunc
}

// New creates a writer dispatching to the given callback set.
func New(logger rpcbus.Logger, callbacks rpcbus.CallbackSet) *Writer {
	if logger == nil {
		logger = rpcbus.NoopLogger()
	}
	return &Writer{logger: logger, callbacks: callbacks}
}

// SetUUIDHooks wires the correlation-table hooks. The hooks acquire the
// coordination engine's lock and must only be invoked while it is free.
func (w *Writer) SetUUIDHooks(isActive IsUUIDActiveFunc, erase EraseUUIDFunc) {
	w.isUUIDActive = isActive
	w.eraseUUID = erase
}

// SetSendGoalReply wires the goal auto-reply hook.
func (w *Writer) SetSendGoalReply(f SendGoalReplyFunc) {
	w.sendGoalReply = f
}

// =============================================================================
// SCHEMA / TOPIC / DATA
// =============================================================================

// WriteSchema notifies a newly registered type: IDL text, the serialized
// type-with-dependencies blob, and a data placeholder.
func (w *Writer) WriteSchema(dt transport.DynamicType, id transport.TypeIdentifier) {
	if w.callbacks.Dds.TypeNotification == nil {
		return
	}
	blob := typeregistry.EncodeTypeBlob([]typeregistry.TypeBlobEntry{{
		TypeName:        dt.Name(),
		IDL:             dt.IDL(),
		DataPlaceholder: dt.DataPlaceholder(),
	}})
	w.callbacks.Dds.TypeNotification(dt.Name(), dt.IDL(), blob, dt.DataPlaceholder())
}

// WriteTopic notifies a discovered topic.
func (w *Writer) WriteTopic(topic transport.DdsTopic) {
	if w.callbacks.Dds.TopicNotification == nil {
		return
	}
	w.callbacks.Dds.TopicNotification(topic.Name, rpcbus.TopicInfo{
		TypeName:      topic.TypeName,
		SerializedQoS: topic.SerializedQoS,
	})
}

// WriteData notifies a regular pub/sub sample wrapped in the data envelope.
func (w *Writer) WriteData(msg *transport.Message, dt transport.DynamicType) {
	if w.callbacks.Dds.DataNotification == nil {
		return
	}
	doc, err := w.decode(msg, dt)
	if err != nil {
		return
	}

	envelope := map[string]any{
		"id":   msg.SourceGUIDPrefix,
		"type": "fastdds",
		msg.Topic.Name: map[string]any{
			"type": msg.Topic.TypeName,
			"data": map[string]any{
				msg.InstanceHandle: json.RawMessage(doc),
			},
		},
	}
	out, err := json.Marshal(envelope)
	if err != nil {
		w.logger.Error("data_envelope_marshal_failed", "topic", msg.Topic.Name, "error", err.Error())
		return
	}
	w.callbacks.Dds.DataNotification(msg.Topic.Name, string(out), msg.PublishTime.UnixNano())
}

// =============================================================================
// SERVICES
// =============================================================================

// WriteServiceNotification notifies a fully discovered service.
func (w *Writer) WriteServiceNotification(service transport.RpcTopic) {
	if w.callbacks.Service.ServiceNotification == nil {
		return
	}
	w.callbacks.Service.ServiceNotification(service.ServiceName, rpcbus.ServiceInfo{
		Request: rpcbus.TopicInfo{TypeName: service.Request.TypeName, SerializedQoS: service.Request.SerializedQoS},
		Reply:   rpcbus.TopicInfo{TypeName: service.Reply.TypeName, SerializedQoS: service.Reply.SerializedQoS},
	})
}

// WriteServiceRequest notifies an inbound service request.
func (w *Writer) WriteServiceRequest(msg *transport.Message, dt transport.DynamicType, requestID uint64, serviceName string) {
	if w.callbacks.Service.ServiceRequestNotification == nil {
		return
	}
	doc, err := w.decode(msg, dt)
	if err != nil {
		return
	}
	w.callbacks.Service.ServiceRequestNotification(serviceName, doc, requestID, msg.PublishTime.UnixNano())
}

// WriteServiceReply notifies an inbound service reply.
func (w *Writer) WriteServiceReply(msg *transport.Message, dt transport.DynamicType, requestID uint64, serviceName string) {
	if w.callbacks.Service.ServiceReplyNotification == nil {
		return
	}
	doc, err := w.decode(msg, dt)
	if err != nil {
		return
	}
	w.callbacks.Service.ServiceReplyNotification(serviceName, doc, requestID, msg.PublishTime.UnixNano())
}

// =============================================================================
// ACTIONS
// =============================================================================

// WriteActionNotification notifies a fully discovered action.
func (w *Writer) WriteActionNotification(action transport.RpcAction) {
	if w.callbacks.Action.ActionNotification == nil {
		return
	}
	w.callbacks.Action.ActionNotification(action.ActionName, rpcbus.ActionInfo{
		Goal:     serviceInfoOf(action.Goal),
		Result:   serviceInfoOf(action.Result),
		Cancel:   serviceInfoOf(action.Cancel),
		Feedback: rpcbus.TopicInfo{TypeName: action.Feedback.TypeName, SerializedQoS: action.Feedback.SerializedQoS},
		Status:   rpcbus.TopicInfo{TypeName: action.Status.TypeName, SerializedQoS: action.Status.SerializedQoS},
	})
}

func serviceInfoOf(s transport.RpcTopic) rpcbus.ServiceInfo {
	return rpcbus.ServiceInfo{
		Request: rpcbus.TopicInfo{TypeName: s.Request.TypeName, SerializedQoS: s.Request.SerializedQoS},
		Reply:   rpcbus.TopicInfo{TypeName: s.Reply.TypeName, SerializedQoS: s.Reply.SerializedQoS},
	}
}

// WriteActionGoalRequest notifies an inbound goal request and, once the
// application has decided, sends the goal reply on its behalf.
func (w *Writer) WriteActionGoalRequest(msg *transport.Message, dt transport.DynamicType, requestID uint64, actionName string) {
	doc, err := w.decode(msg, dt)
	if err != nil {
		return
	}
	goalID, goalJSON, err := rpcbus.ParseGoalRequest(doc)
	if err != nil {
		w.logger.Error("goal_request_parse_failed", "action", actionName, "error", err.Error())
		observability.RecordSampleDropped("malformed_payload")
		return
	}

	accepted := false
	if w.callbacks.Action.ActionGoalRequestNotification != nil {
		accepted = w.callbacks.Action.ActionGoalRequestNotification(actionName, goalJSON, goalID, msg.PublishTime.UnixNano())
	}
	if !accepted && w.eraseUUID != nil {
		w.eraseUUID(goalID, rpcbus.EraseForced)
	}
	if w.sendGoalReply != nil {
		w.sendGoalReply(actionName, requestID, accepted)
	}
}

// WriteActionGoalReply notifies the reply to a goal this participant sent.
// Rejected goals are force-erased before notifying.
func (w *Writer) WriteActionGoalReply(msg *transport.Message, dt transport.DynamicType, goalID rpcbus.GoalID, actionName string) {
	doc, err := w.decode(msg, dt)
	if err != nil {
		return
	}
	accepted, _, err := rpcbus.ParseGoalReply(doc)
	if err != nil {
		w.logger.Error("goal_reply_parse_failed", "action", actionName, "error", err.Error())
		observability.RecordSampleDropped("malformed_payload")
		return
	}
	if !accepted && w.eraseUUID != nil {
		w.eraseUUID(goalID, rpcbus.EraseForced)
	}
	if w.callbacks.Action.ActionGoalReplyNotification != nil {
		w.callbacks.Action.ActionGoalReplyNotification(actionName, doc, goalID, msg.PublishTime.UnixNano())
	}
}

// WriteActionCancelRequest notifies an inbound cancel request.
func (w *Writer) WriteActionCancelRequest(msg *transport.Message, dt transport.DynamicType, requestID uint64, actionName string) {
	if w.callbacks.Action.ActionCancelRequestNotification == nil {
		return
	}
	doc, err := w.decode(msg, dt)
	if err != nil {
		return
	}
	goalID, timestamp, err := rpcbus.ParseCancelRequest(doc)
	if err != nil {
		w.logger.Error("cancel_request_parse_failed", "action", actionName, "error", err.Error())
		observability.RecordSampleDropped("malformed_payload")
		return
	}
	w.callbacks.Action.ActionCancelRequestNotification(actionName, goalID, timestamp, requestID, msg.PublishTime.UnixNano())
}

// WriteActionCancelReply notifies the reply to a cancel request.
func (w *Writer) WriteActionCancelReply(msg *transport.Message, dt transport.DynamicType, requestID uint64, actionName string) {
	if w.callbacks.Action.ActionCancelReplyNotification == nil {
		return
	}
	doc, err := w.decode(msg, dt)
	if err != nil {
		return
	}
	w.callbacks.Action.ActionCancelReplyNotification(actionName, doc, requestID, msg.PublishTime.UnixNano())
}

// WriteActionResult notifies the result of a goal, unwrapped from the
// result reply envelope.
func (w *Writer) WriteActionResult(msg *transport.Message, dt transport.DynamicType, goalID rpcbus.GoalID, actionName string) {
	if w.callbacks.Action.ActionResultNotification == nil {
		return
	}
	doc, err := w.decode(msg, dt)
	if err != nil {
		return
	}
	_, resultJSON, err := rpcbus.ParseResultReply(doc)
	if err != nil {
		w.logger.Error("result_reply_parse_failed", "action", actionName, "error", err.Error())
		observability.RecordSampleDropped("malformed_payload")
		return
	}
	w.callbacks.Action.ActionResultNotification(actionName, resultJSON, goalID, msg.PublishTime.UnixNano())
}

// WriteActionFeedback notifies feedback for an active goal. Feedback for
// goals no longer in the correlation table is dropped with a warning.
func (w *Writer) WriteActionFeedback(msg *transport.Message, dt transport.DynamicType, actionName string) {
	doc, err := w.decode(msg, dt)
	if err != nil {
		return
	}
	goalID, feedbackJSON, err := rpcbus.ParseFeedback(doc)
	if err != nil {
		w.logger.Error("feedback_parse_failed", "action", actionName, "error", err.Error())
		observability.RecordSampleDropped("malformed_payload")
		return
	}
	if w.isUUIDActive != nil && !w.isUUIDActive(actionName, goalID) {
		w.logger.Warn("feedback_for_unknown_goal", "action", actionName, "goal_id", goalID.String())
		observability.RecordSampleDropped("orphaned_reply")
		return
	}
	if w.callbacks.Action.ActionFeedbackNotification != nil {
		w.callbacks.Action.ActionFeedbackNotification(actionName, feedbackJSON, goalID, msg.PublishTime.UnixNano())
	}
}

// WriteActionStatus notifies every entry of a status message for active
// goals, and triggers the final-status erase for terminal codes.
func (w *Writer) WriteActionStatus(msg *transport.Message, dt transport.DynamicType, actionName string) {
	doc, err := w.decode(msg, dt)
	if err != nil {
		return
	}
	entries, err := rpcbus.ParseStatusMessage(doc)
	if err != nil {
		w.logger.Error("status_parse_failed", "action", actionName, "error", err.Error())
		observability.RecordSampleDropped("malformed_payload")
		return
	}
	for _, entry := range entries {
		if w.isUUIDActive != nil && !w.isUUIDActive(actionName, entry.ID) {
			w.logger.Warn("status_for_unknown_goal", "action", actionName, "goal_id", entry.ID.String())
			observability.RecordSampleDropped("orphaned_reply")
			continue
		}
		if w.callbacks.Action.ActionStatusNotification != nil {
			w.callbacks.Action.ActionStatusNotification(actionName, entry.ID, entry.Status, entry.Status.String(), msg.PublishTime.UnixNano())
		}
		if entry.Status.IsTerminal() && w.eraseUUID != nil {
			w.eraseUUID(entry.ID, rpcbus.EraseFinalStatus)
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// GoalIDFromRequest extracts the goal identity from a request-shaped sample.
func (w *Writer) GoalIDFromRequest(msg *transport.Message, dt transport.DynamicType) (rpcbus.GoalID, error) {
	doc, err := w.decode(msg, dt)
	if err != nil {
		return rpcbus.GoalID{}, err
	}
	return rpcbus.GoalIDFromRequest(doc)
}

func (w *Writer) decode(msg *transport.Message, dt transport.DynamicType) (string, error) {
	doc, err := dt.Deserialize(msg.Payload.Bytes())
	if err != nil {
		w.logger.Error("payload_decode_failed", "topic", msg.Topic.Name, "error", err.Error())
		observability.RecordSampleDropped("malformed_payload")
		return "", err
	}
	return doc, nil
}
