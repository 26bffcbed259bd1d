package discovery

import (
	"fmt"

	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// ActionDiscovered accumulates the topics of an action: references to its
// three constituent services plus its own feedback and status topics.
//
// The service pointers are weak by convention: the aggregator's service map
// owns the records, and an action slot never extends a service's lifetime
// past an explicit revoke. Slots may be cleared, leaving the action
// incomplete.
type ActionDiscovered struct {
	ActionName string
	Protocol   rpcbus.Protocol

	Goal   *ServiceDiscovered
	Result *ServiceDiscovered
	Cancel *ServiceDiscovered

	Feedback transport.DdsTopic
	Status   transport.DdsTopic

	feedbackDiscovered bool
	statusDiscovered   bool

	FullyDiscovered bool

	// Endpoint handles of the feedback/status writers created on announce.
	FeedbackEndpoint transport.EndpointHandle
	StatusEndpoint   transport.EndpointHandle
}

// NewActionDiscovered creates an empty record for an action identity.
func NewActionDiscovered(actionName string, protocol rpcbus.Protocol) *ActionDiscovered {
	return &ActionDiscovered{ActionName: actionName, Protocol: protocol}
}

// CheckFullyDiscovered recomputes and returns the completion flag: all
// three services fully discovered and both plain topics present.
func (a *ActionDiscovered) CheckFullyDiscovered() bool {
	a.FullyDiscovered = a.Goal != nil && a.Result != nil && a.Cancel != nil &&
		a.Goal.FullyDiscovered && a.Result.FullyDiscovered && a.Cancel.FullyDiscovered &&
		a.feedbackDiscovered && a.statusDiscovered
	return a.FullyDiscovered
}

// AddService attaches a constituent service to its slot.
func (a *ActionDiscovered) AddService(service *ServiceDiscovered, sub rpcbus.ActionSubtopic) bool {
	switch sub {
	case rpcbus.SubtopicGoal:
		a.Goal = service
	case rpcbus.SubtopicResult:
		a.Result = service
	case rpcbus.SubtopicCancel:
		a.Cancel = service
	default:
		return false
	}
	return true
}

// ClearService detaches a constituent service from its slot.
func (a *ActionDiscovered) ClearService(service *ServiceDiscovered) {
	if a.Goal == service {
		a.Goal = nil
	}
	if a.Result == service {
		a.Result = nil
	}
	if a.Cancel == service {
		a.Cancel = nil
	}
	a.FullyDiscovered = false
}

// AddTopic records the feedback or status topic.
func (a *ActionDiscovered) AddTopic(topic transport.DdsTopic, sub rpcbus.ActionSubtopic) bool {
	switch sub {
	case rpcbus.SubtopicFeedback:
		a.Feedback = topic
		a.feedbackDiscovered = true
	case rpcbus.SubtopicStatus:
		a.Status = topic
		a.statusDiscovered = true
	default:
		return false
	}
	return true
}

// RpcAction returns the assembled action.
func (a *ActionDiscovered) RpcAction() (transport.RpcAction, error) {
	if !a.FullyDiscovered || a.Goal == nil || a.Result == nil || a.Cancel == nil {
		return transport.RpcAction{}, fmt.Errorf("action %s not fully discovered", a.ActionName)
	}
	goal, err := a.Goal.RpcTopic()
	if err != nil {
		return transport.RpcAction{}, fmt.Errorf("failed to assemble action %s: %w", a.ActionName, err)
	}
	result, err := a.Result.RpcTopic()
	if err != nil {
		return transport.RpcAction{}, fmt.Errorf("failed to assemble action %s: %w", a.ActionName, err)
	}
	cancel, err := a.Cancel.RpcTopic()
	if err != nil {
		return transport.RpcAction{}, fmt.Errorf("failed to assemble action %s: %w", a.ActionName, err)
	}
	return transport.RpcAction{
		ActionName: a.ActionName,
		Goal:       goal,
		Result:     result,
		Cancel:     cancel,
		Feedback:   a.Feedback,
		Status:     a.Status,
	}, nil
}
