// Package handler is the coordination engine of the bridge: it owns the
// type registry access, the monotonic request-identifier source and the
// action correlation table, and dispatches inbound samples to the correct
// application callback.
package handler

import (
	"fmt"
	"sync"
	"time"

	"github.com/edgelink-robotics/busbridge/enabler/observability"
	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/enabler/typeregistry"
	"github.com/edgelink-robotics/busbridge/enabler/writer"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// SendGetResultReplyFunc publishes a result reply for a pending get-result
// request. Wired to the participant by the façade.
type SendGetResultReplyFunc func(actionName string, goalID rpcbus.GoalID, replyJSON string, requestID uint64) bool

// GoalActivation identifies an active goal and the time it was accepted.
type GoalActivation struct {
	ID         rpcbus.GoalID
	AcceptedAt time.Time
}

// Handler is the single writer to the type registry, the request-identifier
// counter and the action correlation table. One mutex guards all of them.
//
// Application callbacks are emitted with the mutex released; the internal
// hooks handed to the Writer re-enter through the public locking methods.
type Handler struct {
	logger   rpcbus.Logger
	registry *typeregistry.Registry
	writer   *writer.Writer
	pool     *transport.PayloadPool

	mu                   sync.Mutex
	uniqueSequenceNumber uint64
	requestsID           uint64
	actionRequests       map[rpcbus.GoalID]*actionRequestInfo
	sendGetResultReply   SendGetResultReplyFunc
	requestStamped       func(data *transport.RpcPayloadData)
}

// New creates a handler and wires the writer's correlation hooks to it.
func New(logger rpcbus.Logger, registry *typeregistry.Registry, w *writer.Writer, pool *transport.PayloadPool) *Handler {
	if logger == nil {
		logger = rpcbus.NoopLogger()
	}
	h := &Handler{
		logger:         logger,
		registry:       registry,
		writer:         w,
		pool:           pool,
		actionRequests: make(map[rpcbus.GoalID]*actionRequestInfo),
	}
	w.SetUUIDHooks(
		func(actionName string, goalID rpcbus.GoalID) bool {
			active, _ := h.IsGoalActive(actionName, goalID)
			return active
		},
		h.EraseActionUUID,
	)
	return h
}

// Registry returns the type registry owned by this handler.
func (h *Handler) Registry() *typeregistry.Registry {
	return h.registry
}

// SetSendGetResultReply wires the result auto-reply path.
func (h *Handler) SetSendGetResultReply(f SendGetResultReplyFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendGetResultReply = f
}

// SetRequestStampObserver installs a hook invoked right after an inbound
// request sample has been stamped with its minted identifier and before the
// notification is dispatched. The transport's RPC bridge uses it to map the
// forwarded identity back to the requester's. The hook runs under the
// handler lock and must not call back into the handler.
func (h *Handler) SetRequestStampObserver(f func(data *transport.RpcPayloadData)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requestStamped = f
}

// =============================================================================
// DISCOVERY INGRESS
// =============================================================================

// AddSchema registers a discovered type and reports it to the application.
func (h *Handler) AddSchema(dt transport.DynamicType, id transport.TypeIdentifier) {
	h.registry.AddSchema(dt, id, true)
}

// AddTopic reports a discovered topic to the application.
func (h *Handler) AddTopic(topic transport.DdsTopic) {
	h.logger.Info("adding_topic", "topic", topic.Name)
	h.writer.WriteTopic(topic)
}

// AddService reports a fully discovered service to the application.
func (h *Handler) AddService(service transport.RpcTopic) {
	h.logger.Info("adding_service", "service_name", service.ServiceName)
	h.writer.WriteServiceNotification(service)
}

// AddAction reports a fully discovered action to the application.
func (h *Handler) AddAction(action transport.RpcAction) {
	h.logger.Info("adding_action", "action_name", action.ActionName)
	h.writer.WriteActionNotification(action)
}

// =============================================================================
// TYPE ACCESS
// =============================================================================

// TypeIdentifier resolves a type name through the registry's sources.
func (h *Handler) TypeIdentifier(typeName string) (transport.TypeIdentifier, error) {
	return h.registry.TypeIdentifier(typeName)
}

// SerializedData converts a JSON document into a pooled payload.
func (h *Handler) SerializedData(typeName, doc string) (transport.Payload, error) {
	return h.registry.SerializedData(typeName, doc, h.pool)
}

// NewRequestID mints the next request identifier. Identifiers are strictly
// increasing for the lifetime of the process and never reused.
func (h *Handler) NewRequestID() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requestsID++
	observability.RecordRequestIssued()
	return h.requestsID
}

// =============================================================================
// INBOUND DISPATCH
// =============================================================================

// dispatch is a deferred notification computed under the lock and emitted
// after it is released.
type dispatch func()

// AddData routes one inbound sample: it resolves the sample's type,
// classifies the topic name, updates the correlation state, and notifies
// the application.
func (h *Handler) AddData(topic transport.DdsTopic, data *transport.RpcPayloadData) {
	h.mu.Lock()
	emit := h.routeLocked(topic, data)
	h.mu.Unlock()

	if emit != nil {
		emit()
	}
}

func (h *Handler) routeLocked(topic transport.DdsTopic, data *transport.RpcPayloadData) dispatch {
	dt, ok := h.registry.Lookup(topic.TypeName)
	if !ok {
		h.logger.Warn("schema_not_available", "type_name", topic.TypeName, "topic", topic.Name)
		observability.RecordSampleDropped("missing_type")
		return nil
	}

	if data.Payload.Len() == 0 {
		h.logger.Warn("sample_without_payload", "topic", topic.Name)
		observability.RecordSampleDropped("malformed_payload")
		return nil
	}

	h.uniqueSequenceNumber++
	msg := &transport.Message{
		SequenceNumber:   h.uniqueSequenceNumber,
		PublishTime:      data.SourceTimestamp,
		Topic:            topic,
		InstanceHandle:   data.InstanceHandle,
		SourceGUIDPrefix: data.SourceGUIDPrefix,
		Payload:          h.pool.Share(data.Payload),
	}

	info := rpcbus.ParseTopic(topic.Name)
	switch {
	case info.Kind == rpcbus.KindNone:
		observability.RecordSampleDispatched("data")
		return func() {
			defer msg.Release()
			h.writer.WriteData(msg, dt)
		}

	case info.Kind == rpcbus.KindService:
		return h.routeServiceLocked(info, msg, dt, data)

	case info.Kind == rpcbus.KindAction:
		return h.routeActionLocked(info, msg, dt, data)
	}
	msg.Release()
	return nil
}

func (h *Handler) routeServiceLocked(info rpcbus.RpcInfo, msg *transport.Message, dt transport.DynamicType, data *transport.RpcPayloadData) dispatch {
	if info.Side == rpcbus.SideRequest {
		h.requestsID++
		requestID := h.requestsID
		observability.RecordRequestIssued()
		data.SentSequenceNumber = requestID
		if h.requestStamped != nil {
			h.requestStamped(data)
		}
		observability.RecordSampleDispatched("service_request")
		return func() {
			defer msg.Release()
			h.writer.WriteServiceRequest(msg, dt, requestID, info.ServiceName)
		}
	}

	requestID := data.RelatedRequestID
	observability.RecordSampleDispatched("service_reply")
	return func() {
		defer msg.Release()
		h.writer.WriteServiceReply(msg, dt, requestID, info.ServiceName)
	}
}

func (h *Handler) routeActionLocked(info rpcbus.RpcInfo, msg *transport.Message, dt transport.DynamicType, data *transport.RpcPayloadData) dispatch {
	switch info.Side {
	case rpcbus.SideReply:
		return h.routeActionReplyLocked(info, msg, dt, data)
	case rpcbus.SideRequest:
		return h.routeActionRequestLocked(info, msg, dt, data)
	default:
		switch info.Subtopic {
		case rpcbus.SubtopicFeedback:
			observability.RecordSampleDispatched("action_feedback")
			return func() {
				defer msg.Release()
				h.writer.WriteActionFeedback(msg, dt, info.ActionName)
			}
		case rpcbus.SubtopicStatus:
			observability.RecordSampleDispatched("action_status")
			return func() {
				defer msg.Release()
				h.writer.WriteActionStatus(msg, dt, info.ActionName)
			}
		}
		h.logger.Error("unknown_action_subtopic", "topic", msg.Topic.Name)
		msg.Release()
		return nil
	}
}

// routeActionReplyLocked handles replies arriving at the requesting side.
func (h *Handler) routeActionReplyLocked(info rpcbus.RpcInfo, msg *transport.Message, dt transport.DynamicType, data *transport.RpcPayloadData) dispatch {
	switch info.Subtopic {
	case rpcbus.SubtopicGoal:
		goalID, ok := h.goalByRequestIDLocked(data.RelatedRequestID, rpcbus.SubtopicGoal)
		if !ok {
			h.logger.Warn("goal_reply_for_unknown_request", "topic", msg.Topic.Name, "request_id", data.RelatedRequestID)
			observability.RecordSampleDropped("orphaned_reply")
			msg.Release()
			return nil
		}
		observability.RecordSampleDispatched("action_goal_reply")
		return func() {
			defer msg.Release()
			h.writer.WriteActionGoalReply(msg, dt, goalID, info.ActionName)
		}

	case rpcbus.SubtopicResult:
		goalID, ok := h.goalByRequestIDLocked(data.RelatedRequestID, rpcbus.SubtopicResult)
		if !ok {
			h.logger.Warn("result_reply_for_unknown_request", "topic", msg.Topic.Name, "request_id", data.RelatedRequestID)
			observability.RecordSampleDropped("orphaned_reply")
			msg.Release()
			return nil
		}
		observability.RecordSampleDispatched("action_result")
		return func() {
			defer msg.Release()
			h.writer.WriteActionResult(msg, dt, goalID, info.ActionName)
			h.EraseActionUUID(goalID, rpcbus.EraseResult)
		}

	case rpcbus.SubtopicCancel:
		requestID := data.RelatedRequestID
		observability.RecordSampleDispatched("action_cancel_reply")
		return func() {
			defer msg.Release()
			h.writer.WriteActionCancelReply(msg, dt, requestID, info.ActionName)
		}
	}
	msg.Release()
	return nil
}

// routeActionRequestLocked handles requests arriving at the serving side.
func (h *Handler) routeActionRequestLocked(info rpcbus.RpcInfo, msg *transport.Message, dt transport.DynamicType, data *transport.RpcPayloadData) dispatch {
	goalID, err := h.writer.GoalIDFromRequest(msg, dt)
	if err != nil {
		h.logger.Error("goal_id_extraction_failed", "topic", msg.Topic.Name, "error", err.Error())
		msg.Release()
		return nil
	}

	h.requestsID++
	requestID := h.requestsID
	observability.RecordRequestIssued()
	data.SentSequenceNumber = requestID
	if h.requestStamped != nil {
		h.requestStamped(data)
	}

	switch info.Subtopic {
	case rpcbus.SubtopicGoal:
		if err := h.storeActionRequestLocked(info.ActionName, goalID, requestID, rpcbus.SubtopicGoal, info.Protocol); err != nil {
			h.logger.Error("goal_request_store_failed", "action", info.ActionName, "error", err.Error())
			msg.Release()
			return nil
		}
		observability.RecordSampleDispatched("action_goal_request")
		return func() {
			defer msg.Release()
			h.writer.WriteActionGoalRequest(msg, dt, requestID, info.ActionName)
		}

	case rpcbus.SubtopicCancel:
		// Cancel requests never touch the correlation table: the zero
		// identity selects by timestamp and maps to no single record.
		observability.RecordSampleDispatched("action_cancel_request")
		return func() {
			defer msg.Release()
			h.writer.WriteActionCancelRequest(msg, dt, requestID, info.ActionName)
		}

	case rpcbus.SubtopicResult:
		if err := h.storeActionRequestLocked(info.ActionName, goalID, requestID, rpcbus.SubtopicResult, info.Protocol); err != nil {
			h.logger.Error("result_request_store_failed", "action", info.ActionName, "error", err.Error())
			msg.Release()
			return nil
		}
		cached := ""
		if entry, ok := h.actionRequests[goalID]; ok {
			cached = entry.cachedResult
		}
		reply := h.sendGetResultReply
		msg.Release()
		if cached == "" || reply == nil {
			return nil
		}
		// A result published before the request: serve it from the cache
		// with the identifier just assigned.
		observability.RecordGoalEvent("result_delivered")
		actionName := info.ActionName
		return func() {
			reply(actionName, goalID, cached, requestID)
		}
	}
	msg.Release()
	return nil
}

// goalByRequestIDLocked finds the goal identity whose stored goal or result
// request identifier matches.
func (h *Handler) goalByRequestIDLocked(requestID uint64, sub rpcbus.ActionSubtopic) (rpcbus.GoalID, bool) {
	if requestID == 0 {
		return rpcbus.GoalID{}, false
	}
	for id, entry := range h.actionRequests {
		stored, ok := entry.request(sub)
		if ok && stored == requestID {
			return id, true
		}
	}
	return rpcbus.GoalID{}, false
}

// =============================================================================
// CORRELATION TABLE
// =============================================================================

// StoreActionRequest records a request identifier for a goal. A goal
// identity enters the table only through a goal request; a result store for
// an unknown identity fails with NoSuchGoal.
func (h *Handler) StoreActionRequest(actionName string, goalID rpcbus.GoalID, requestID uint64, sub rpcbus.ActionSubtopic, protocol rpcbus.Protocol) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.storeActionRequestLocked(actionName, goalID, requestID, sub, protocol)
}

func (h *Handler) storeActionRequestLocked(actionName string, goalID rpcbus.GoalID, requestID uint64, sub rpcbus.ActionSubtopic, protocol rpcbus.Protocol) error {
	if entry, ok := h.actionRequests[goalID]; ok {
		if entry.actionName != actionName {
			h.logger.Error("action_name_mismatch", "expected", entry.actionName, "got", actionName)
			return rpcbus.NewNoSuchGoalError(actionName, goalID)
		}
		if sub == rpcbus.SubtopicGoal {
			h.logger.Error("goal_id_already_exists", "action", actionName, "goal_id", goalID.String())
			return fmt.Errorf("goal %s already stored for action %s", goalID, actionName)
		}
		entry.setRequest(requestID, sub)
		return nil
	}

	if sub != rpcbus.SubtopicGoal {
		h.logger.Error("request_for_unknown_goal", "action", actionName, "goal_id", goalID.String())
		return rpcbus.NewNoSuchGoalError(actionName, goalID)
	}
	h.actionRequests[goalID] = newActionRequestInfo(actionName, sub, requestID, protocol)
	observability.RecordGoalEvent("stored")
	return nil
}

// HandleActionResult delivers a result for a goal: replied immediately when
// a get-result request is pending, cached otherwise.
func (h *Handler) HandleActionResult(actionName string, goalID rpcbus.GoalID, replyJSON string) error {
	h.mu.Lock()
	entry, ok := h.actionRequests[goalID]
	if !ok {
		h.mu.Unlock()
		h.logger.Error("result_for_unknown_goal", "action", actionName, "goal_id", goalID.String())
		return rpcbus.NewNoSuchGoalError(actionName, goalID)
	}
	if entry.actionName != actionName {
		h.mu.Unlock()
		h.logger.Error("action_name_mismatch", "expected", entry.actionName, "got", actionName)
		return rpcbus.NewNoSuchGoalError(actionName, goalID)
	}

	if entry.resultRequestID != 0 {
		requestID := entry.resultRequestID
		reply := h.sendGetResultReply
		h.mu.Unlock()
		if reply == nil {
			return rpcbus.NewNoSuchGoalError(actionName, goalID)
		}
		observability.RecordGoalEvent("result_delivered")
		if !reply(actionName, goalID, replyJSON, requestID) {
			return rpcbus.NewSerializationError(actionName, nil)
		}
		return nil
	}

	stored := entry.setResult(replyJSON)
	h.mu.Unlock()
	if !stored {
		h.logger.Error("result_already_set", "action", actionName, "goal_id", goalID.String())
		return rpcbus.NewNoSuchGoalError(actionName, goalID)
	}
	observability.RecordGoalEvent("result_cached")
	return nil
}

// EraseActionUUID records an erase reason for a goal and removes the record
// once both the result and the final status were observed, or immediately
// on a forced erase.
func (h *Handler) EraseActionUUID(goalID rpcbus.GoalID, reason rpcbus.EraseReason) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.actionRequests[goalID]
	if !ok {
		return
	}
	if entry.erase(reason) {
		delete(h.actionRequests, goalID)
		observability.RecordGoalEvent("erased")
	}
}

// IsGoalActive reports whether a goal identity is live for an action, and
// the time it was accepted.
func (h *Handler) IsGoalActive(actionName string, goalID rpcbus.GoalID) (bool, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.actionRequests[goalID]
	if !ok || entry.actionName != actionName {
		return false, time.Time{}
	}
	return true, entry.goalAcceptedStamp
}

// ActionProtocol returns the wire convention recorded for a live goal.
func (h *Handler) ActionProtocol(actionName string, goalID rpcbus.GoalID) rpcbus.Protocol {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.actionRequests[goalID]
	if !ok || entry.actionName != actionName {
		return rpcbus.ProtocolUnknown
	}
	return entry.protocol
}

// CachedResult returns the cached result reply for a goal, if any.
func (h *Handler) CachedResult(goalID rpcbus.GoalID) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.actionRequests[goalID]
	if !ok || entry.cachedResult == "" {
		return "", false
	}
	return entry.cachedResult, true
}

// ActiveGoals lists the live goals of an action with their accepted stamps.
func (h *Handler) ActiveGoals(actionName string) []GoalActivation {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []GoalActivation
	for id, entry := range h.actionRequests {
		if entry.actionName != actionName {
			continue
		}
		out = append(out, GoalActivation{ID: id, AcceptedAt: entry.goalAcceptedStamp})
	}
	return out
}
