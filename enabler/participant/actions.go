package participant

import (
	"fmt"
	"time"

	"github.com/edgelink-robotics/busbridge/enabler/discovery"
	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// =============================================================================
// ACTION ANNOUNCEMENT
// =============================================================================

// AnnounceAction declares this participant the server of an action. Only
// the ROS 2 convention defines actions; announcing acquires all three
// underlying services plus the feedback and status writers. Re-announcing
// replaces any prior incomplete record.
func (p *Participant) AnnounceAction(actionName string, protocol rpcbus.Protocol) error {
	if protocol != rpcbus.ProtocolROS2 {
		return rpcbus.NewUnsupportedProtocolError(protocol)
	}

	p.mu.Lock()
	if act := p.agg.Action(actionName); act != nil && actionAnnouncedLocked(act) {
		p.mu.Unlock()
		return rpcbus.NewAlreadyAnnouncedError(actionName)
	}
	query := p.actionQuery
	p.mu.Unlock()

	if query == nil {
		return fmt.Errorf("cannot announce %s: action query callback not set", actionName)
	}
	info, ok := query(actionName)
	if !ok {
		return fmt.Errorf("cannot announce %s: action query returned no metadata", actionName)
	}

	subInfos := map[rpcbus.ActionSubtopic]rpcbus.ServiceInfo{
		rpcbus.SubtopicGoal:   info.Goal,
		rpcbus.SubtopicResult: info.Result,
		rpcbus.SubtopicCancel: info.Cancel,
	}
	subs := []rpcbus.ActionSubtopic{rpcbus.SubtopicGoal, rpcbus.SubtopicResult, rpcbus.SubtopicCancel}

	// Resolve every topic's type before mutating any state.
	requestTopics := make(map[rpcbus.ActionSubtopic]transport.DdsTopic, len(subs))
	replyTopics := make(map[rpcbus.ActionSubtopic]transport.DdsTopic, len(subs))
	for _, sub := range subs {
		reqTopic, err := p.buildTopic(rpcbus.ActionTopic(actionName, sub, rpcbus.SideRequest, protocol), subInfos[sub].Request)
		if err != nil {
			return err
		}
		repTopic, err := p.buildTopic(rpcbus.ActionTopic(actionName, sub, rpcbus.SideReply, protocol), subInfos[sub].Reply)
		if err != nil {
			return err
		}
		requestTopics[sub] = reqTopic
		replyTopics[sub] = repTopic
	}
	feedbackTopic, err := p.buildTopic(rpcbus.ActionTopic(actionName, rpcbus.SubtopicFeedback, rpcbus.SideNone, protocol), info.Feedback)
	if err != nil {
		return err
	}
	statusTopic, err := p.buildTopic(rpcbus.ActionTopic(actionName, rpcbus.SubtopicStatus, rpcbus.SideNone, protocol), info.Status)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.agg.RemoveAction(actionName)
	act := p.agg.EnsureAction(actionName, protocol)

	var completions []func()
	for _, sub := range subs {
		svc := p.agg.EnsureService(rpcbus.ActionServiceName(actionName, sub), protocol)
		completed := svc.AddTopic(requestTopics[sub], rpcbus.SideRequest)
		completed = svc.AddTopic(replyTopics[sub], rpcbus.SideReply) || completed
		svc.EnablerAsServer = true
		act.AddService(svc, sub)
		if completed {
			if rpcT, rpcErr := svc.RpcTopic(); rpcErr == nil {
				completions = append(completions, func() { p.handler.AddService(rpcT) })
			}
		}
	}
	act.AddTopic(feedbackTopic, rpcbus.SubtopicFeedback)
	act.AddTopic(statusTopic, rpcbus.SubtopicStatus)
	if act.CheckFullyDiscovered() {
		if rpcA, rpcErr := act.RpcAction(); rpcErr == nil {
			completions = append(completions, func() { p.handler.AddAction(rpcA) })
		}
	}
	p.mu.Unlock()

	for _, notify := range completions {
		notify()
	}

	// Request writers for the three services, then the feedback and status
	// writers. Any failure rolls the announce back.
	for _, sub := range subs {
		handle, err := p.createRequestWriter(requestTopics[sub])
		if err != nil {
			p.rollbackAnnounceAction(actionName)
			return err
		}
		p.mu.Lock()
		if svc := p.agg.Service(rpcbus.ActionServiceName(actionName, sub)); svc != nil {
			svc.EndpointRequest = handle
		}
		p.mu.Unlock()
	}

	feedbackHandle, err := p.createRequestWriter(feedbackTopic)
	if err != nil {
		p.rollbackAnnounceAction(actionName)
		return err
	}
	statusHandle, err := p.createRequestWriter(statusTopic)
	if err != nil {
		p.rollbackAnnounceAction(actionName)
		return err
	}

	p.mu.Lock()
	act.FeedbackEndpoint = feedbackHandle
	act.StatusEndpoint = statusHandle
	p.mu.Unlock()

	p.logger.Info("action_announced", "action_name", actionName)
	return nil
}

// actionAnnouncedLocked reports whether the action's three services are all
// served by this participant.
func actionAnnouncedLocked(act *discovery.ActionDiscovered) bool {
	return act.Goal != nil && act.Goal.EnablerAsServer &&
		act.Result != nil && act.Result.EnablerAsServer &&
		act.Cancel != nil && act.Cancel.EnablerAsServer
}

func (p *Participant) rollbackAnnounceAction(actionName string) {
	if err := p.RevokeAction(actionName); err != nil {
		p.logger.Warn("action_announce_rollback_failed", "action_name", actionName, "error", err.Error())
	}
}

// RevokeAction withdraws this participant as the server of an action,
// releasing the three services and the feedback/status writers.
func (p *Participant) RevokeAction(actionName string) error {
	p.mu.Lock()
	act := p.agg.Action(actionName)
	if act == nil || (act.Goal == nil || !act.Goal.EnablerAsServer) {
		p.mu.Unlock()
		return rpcbus.NewNotAnnouncedError(actionName)
	}

	var handles []transport.EndpointHandle
	for _, svc := range []*discovery.ServiceDiscovered{act.Goal, act.Result, act.Cancel} {
		if svc == nil {
			continue
		}
		if svc.EndpointRequest != 0 {
			handles = append(handles, svc.EndpointRequest)
			svc.EndpointRequest = 0
		}
		svc.EnablerAsServer = false
		if topic, ok := svc.Topic(rpcbus.SideRequest); ok {
			delete(p.readers, topic.Name)
		}
		if !svc.ExternalServer {
			p.agg.RemoveService(svc.ServiceName)
		}
	}
	if act.FeedbackEndpoint != 0 {
		handles = append(handles, act.FeedbackEndpoint)
		act.FeedbackEndpoint = 0
	}
	if act.StatusEndpoint != 0 {
		handles = append(handles, act.StatusEndpoint)
		act.StatusEndpoint = 0
	}
	delete(p.readers, act.Feedback.Name)
	delete(p.readers, act.Status.Name)
	p.agg.RemoveAction(actionName)
	p.mu.Unlock()

	for _, h := range handles {
		p.discoveryDB.RemoveEndpoint(h)
	}
	p.logger.Info("action_revoked", "action_name", actionName)
	return nil
}

// =============================================================================
// GOAL LIFECYCLE (CLIENT SIDE)
// =============================================================================

// SendActionGoal mints a goal identity, wraps the goal payload into the
// goal request envelope and issues it. Any failure purges the identity.
func (p *Participant) SendActionGoal(actionName, goalJSON string, protocol rpcbus.Protocol) (rpcbus.GoalID, error) {
	msg, goalID, err := rpcbus.NewGoalRequestMessage(goalJSON)
	if err != nil {
		return rpcbus.GoalID{}, rpcbus.NewSerializationError(actionName, err)
	}

	requestID := p.handler.NewRequestID()
	if err := p.handler.StoreActionRequest(actionName, goalID, requestID, rpcbus.SubtopicGoal, protocol); err != nil {
		return rpcbus.GoalID{}, err
	}

	topicName := rpcbus.ActionTopic(actionName, rpcbus.SubtopicGoal, rpcbus.SideRequest, protocol)
	fallback := p.actionTopicFallback(actionName, rpcbus.SubtopicGoal, rpcbus.SideRequest)
	if err := p.publishJSON(topicName, fallback, msg, requestID, true); err != nil {
		p.handler.EraseActionUUID(goalID, rpcbus.EraseForced)
		return rpcbus.GoalID{}, err
	}
	return goalID, nil
}

// SendActionGetResultRequest asks the server for the result of a goal. If
// the correlation store fails the goal is cancelled automatically.
func (p *Participant) SendActionGetResultRequest(actionName string, goalID rpcbus.GoalID) error {
	protocol := p.handler.ActionProtocol(actionName, goalID)
	if protocol == rpcbus.ProtocolUnknown {
		return rpcbus.NewNoSuchGoalError(actionName, goalID)
	}

	requestID := p.handler.NewRequestID()
	if err := p.handler.StoreActionRequest(actionName, goalID, requestID, rpcbus.SubtopicResult, protocol); err != nil {
		if cancelErr := p.CancelActionGoal(actionName, goalID, 0); cancelErr != nil {
			p.logger.Warn("auto_cancel_failed", "action_name", actionName, "goal_id", goalID.String(), "error", cancelErr.Error())
		}
		return err
	}

	topicName := rpcbus.ActionTopic(actionName, rpcbus.SubtopicResult, rpcbus.SideRequest, protocol)
	fallback := p.actionTopicFallback(actionName, rpcbus.SubtopicResult, rpcbus.SideRequest)
	return p.publishJSON(topicName, fallback, rpcbus.NewResultRequestMessage(goalID), requestID, true)
}

// CancelActionGoal publishes a cancel request. The (goalID, timestamp)
// pair carries the ROS 2 cancel semantics: a zero identity and/or zero
// timestamp widens the selection.
func (p *Participant) CancelActionGoal(actionName string, goalID rpcbus.GoalID, timestampNanos int64) error {
	protocol := rpcbus.ProtocolROS2
	if !goalID.IsZero() {
		protocol = p.handler.ActionProtocol(actionName, goalID)
		if protocol == rpcbus.ProtocolUnknown {
			return rpcbus.NewNoSuchGoalError(actionName, goalID)
		}
	}

	requestID := p.handler.NewRequestID()
	topicName := rpcbus.ActionTopic(actionName, rpcbus.SubtopicCancel, rpcbus.SideRequest, protocol)
	fallback := p.actionTopicFallback(actionName, rpcbus.SubtopicCancel, rpcbus.SideRequest)
	return p.publishJSON(topicName, fallback, rpcbus.NewCancelRequestMessage(goalID, timestampNanos), requestID, true)
}

// =============================================================================
// GOAL LIFECYCLE (SERVER SIDE)
// =============================================================================

// SendActionSendGoalReply answers an inbound goal request once the
// application has accepted or rejected it.
func (p *Participant) SendActionSendGoalReply(actionName string, requestID uint64, accepted bool) error {
	protocol := p.announcedActionProtocol(actionName)
	topicName := rpcbus.ActionTopic(actionName, rpcbus.SubtopicGoal, rpcbus.SideReply, protocol)
	fallback := p.actionTopicFallback(actionName, rpcbus.SubtopicGoal, rpcbus.SideReply)
	return p.publishJSON(topicName, fallback, rpcbus.NewGoalReplyMessage(accepted, time.Now()), requestID, true)
}

// SendActionCancelGoalReply answers a cancel request. Only goals that are
// currently active are included in the reply.
func (p *Participant) SendActionCancelGoalReply(actionName string, goalIDs []rpcbus.GoalID, code rpcbus.CancelCode, requestID uint64) error {
	var goals []rpcbus.CancelingGoal
	for _, id := range goalIDs {
		if active, acceptedAt := p.handler.IsGoalActive(actionName, id); active {
			goals = append(goals, rpcbus.CancelingGoal{ID: id, AcceptedAt: acceptedAt})
		}
	}

	protocol := p.announcedActionProtocol(actionName)
	topicName := rpcbus.ActionTopic(actionName, rpcbus.SubtopicCancel, rpcbus.SideReply, protocol)
	fallback := p.actionTopicFallback(actionName, rpcbus.SubtopicCancel, rpcbus.SideReply)
	return p.publishJSON(topicName, fallback, rpcbus.NewCancelReplyMessage(goals, code), requestID, true)
}

// SendActionResult delivers the result of a goal: replied immediately when
// the client already asked for it, cached otherwise.
func (p *Participant) SendActionResult(actionName string, goalID rpcbus.GoalID, status rpcbus.StatusCode, resultJSON string) error {
	if active, _ := p.handler.IsGoalActive(actionName, goalID); !active {
		return rpcbus.NewNoSuchGoalError(actionName, goalID)
	}
	reply, err := rpcbus.NewResultReplyMessage(status, resultJSON)
	if err != nil {
		return rpcbus.NewSerializationError(actionName, err)
	}
	return p.handler.HandleActionResult(actionName, goalID, reply)
}

// SendActionGetResultReply publishes a result reply for a pending
// get-result request and releases the result half of the goal record.
func (p *Participant) SendActionGetResultReply(actionName string, goalID rpcbus.GoalID, replyJSON string, requestID uint64) bool {
	protocol := p.handler.ActionProtocol(actionName, goalID)
	if protocol == rpcbus.ProtocolUnknown {
		protocol = p.announcedActionProtocol(actionName)
	}
	topicName := rpcbus.ActionTopic(actionName, rpcbus.SubtopicResult, rpcbus.SideReply, protocol)
	fallback := p.actionTopicFallback(actionName, rpcbus.SubtopicResult, rpcbus.SideReply)
	if err := p.publishJSON(topicName, fallback, replyJSON, requestID, true); err != nil {
		p.logger.Error("result_reply_publish_failed", "action_name", actionName, "error", err.Error())
		return false
	}
	p.handler.EraseActionUUID(goalID, rpcbus.EraseResult)
	return true
}

// SendActionFeedback publishes feedback for an active goal.
func (p *Participant) SendActionFeedback(actionName, feedbackJSON string, goalID rpcbus.GoalID) error {
	if active, _ := p.handler.IsGoalActive(actionName, goalID); !active {
		return rpcbus.NewNoSuchGoalError(actionName, goalID)
	}
	msg, err := rpcbus.NewFeedbackMessage(feedbackJSON, goalID)
	if err != nil {
		return rpcbus.NewSerializationError(actionName, err)
	}

	protocol := p.announcedActionProtocol(actionName)
	topicName := rpcbus.ActionTopic(actionName, rpcbus.SubtopicFeedback, rpcbus.SideNone, protocol)
	fallback := p.actionTopicFallback(actionName, rpcbus.SubtopicFeedback, rpcbus.SideNone)
	return p.publishJSON(topicName, fallback, msg, 0, false)
}

// UpdateActionStatus publishes a status update stamped with the goal's
// accepted time. Terminal codes release the status half of the record.
func (p *Participant) UpdateActionStatus(actionName string, goalID rpcbus.GoalID, status rpcbus.StatusCode) error {
	active, acceptedAt := p.handler.IsGoalActive(actionName, goalID)
	if !active {
		return rpcbus.NewNoSuchGoalError(actionName, goalID)
	}

	protocol := p.announcedActionProtocol(actionName)
	topicName := rpcbus.ActionTopic(actionName, rpcbus.SubtopicStatus, rpcbus.SideNone, protocol)
	fallback := p.actionTopicFallback(actionName, rpcbus.SubtopicStatus, rpcbus.SideNone)
	if err := p.publishJSON(topicName, fallback, rpcbus.NewStatusMessage(goalID, status, acceptedAt), 0, false); err != nil {
		return err
	}
	if status.IsTerminal() {
		p.handler.EraseActionUUID(goalID, rpcbus.EraseFinalStatus)
	}
	return nil
}

// CancelCandidates selects the active goals matched by a cancel request's
// (goalID, timestamp) pair, per the ROS 2 cancel semantics.
func (p *Participant) CancelCandidates(actionName string, goalID rpcbus.GoalID, timestampNanos int64) []rpcbus.GoalID {
	goals := p.handler.ActiveGoals(actionName)
	var out []rpcbus.GoalID
	for _, g := range goals {
		switch {
		case goalID.IsZero() && timestampNanos == 0:
			out = append(out, g.ID)
		case goalID.IsZero():
			if g.AcceptedAt.UnixNano() <= timestampNanos {
				out = append(out, g.ID)
			}
		case timestampNanos == 0:
			if g.ID == goalID {
				out = append(out, g.ID)
			}
		default:
			if g.ID == goalID || g.AcceptedAt.UnixNano() <= timestampNanos {
				out = append(out, g.ID)
			}
		}
	}
	return out
}

// =============================================================================
// HELPERS
// =============================================================================

// announcedActionProtocol returns the convention of a discovered action
// record, defaulting to ROS 2, the only convention actions are defined for.
func (p *Participant) announcedActionProtocol(actionName string) rpcbus.Protocol {
	p.mu.Lock()
	defer p.mu.Unlock()
	if act := p.agg.Action(actionName); act != nil {
		return act.Protocol
	}
	return rpcbus.ProtocolROS2
}

// actionTopicFallback returns a copy of a known action topic for the
// publish path, or nil when none is recorded.
func (p *Participant) actionTopicFallback(actionName string, sub rpcbus.ActionSubtopic, side rpcbus.ServiceSide) *transport.DdsTopic {
	p.mu.Lock()
	defer p.mu.Unlock()
	act := p.agg.Action(actionName)
	if act == nil {
		return nil
	}
	switch sub {
	case rpcbus.SubtopicFeedback:
		if act.Feedback.TypeName != "" {
			topic := act.Feedback
			return &topic
		}
		return nil
	case rpcbus.SubtopicStatus:
		if act.Status.TypeName != "" {
			topic := act.Status
			return &topic
		}
		return nil
	}

	var svc *discovery.ServiceDiscovered
	switch sub {
	case rpcbus.SubtopicGoal:
		svc = act.Goal
	case rpcbus.SubtopicResult:
		svc = act.Result
	case rpcbus.SubtopicCancel:
		svc = act.Cancel
	}
	if svc == nil {
		return nil
	}
	if topic, ok := svc.Topic(side); ok {
		return &topic
	}
	return nil
}
