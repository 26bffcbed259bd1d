package discovery

import (
	"github.com/edgelink-robotics/busbridge/enabler/observability"
	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// Events collects the completion transitions produced by one discovery.
// The caller dispatches them once its own lock is released.
type Events struct {
	Service *ServiceDiscovered
	Action  *ActionDiscovered
}

// Aggregator accumulates partial discoveries into complete service and
// action records.
//
// It is not self-locking: the owning participant serializes access under
// its own mutex, since announce and revoke manipulate the same maps.
type Aggregator struct {
	logger   rpcbus.Logger
	services map[string]*ServiceDiscovered
	actions  map[string]*ActionDiscovered
}

// NewAggregator creates an empty aggregator.
func NewAggregator(logger rpcbus.Logger) *Aggregator {
	if logger == nil {
		logger = rpcbus.NoopLogger()
	}
	return &Aggregator{
		logger:   logger,
		services: make(map[string]*ServiceDiscovered),
		actions:  make(map[string]*ActionDiscovered),
	}
}

// Service returns the record for a service name, or nil.
func (ag *Aggregator) Service(name string) *ServiceDiscovered {
	return ag.services[name]
}

// Action returns the record for an action name, or nil.
func (ag *Aggregator) Action(name string) *ActionDiscovered {
	return ag.actions[name]
}

// EnsureService returns the record for a service, creating it on first use.
func (ag *Aggregator) EnsureService(name string, protocol rpcbus.Protocol) *ServiceDiscovered {
	if svc, ok := ag.services[name]; ok {
		return svc
	}
	svc := NewServiceDiscovered(name, protocol)
	ag.services[name] = svc
	return svc
}

// EnsureAction returns the record for an action, creating it on first use.
func (ag *Aggregator) EnsureAction(name string, protocol rpcbus.Protocol) *ActionDiscovered {
	if act, ok := ag.actions[name]; ok {
		return act
	}
	act := NewActionDiscovered(name, protocol)
	ag.actions[name] = act
	return act
}

// RemoveService drops a service record and demotes any action referencing
// it to incomplete.
func (ag *Aggregator) RemoveService(name string) {
	svc, ok := ag.services[name]
	if !ok {
		return
	}
	delete(ag.services, name)
	for _, act := range ag.actions {
		act.ClearService(svc)
	}
}

// RemoveAction drops an action record, leaving its services in place.
func (ag *Aggregator) RemoveAction(name string) {
	delete(ag.actions, name)
}

// AddTopic feeds one topic discovery into the aggregator and returns the
// completion transitions it caused. Discoveries with no RPC shape, and the
// internal type-object topic, produce no events.
func (ag *Aggregator) AddTopic(info rpcbus.RpcInfo, topic transport.DdsTopic) Events {
	var events Events
	if transport.IsTypeObjectTopic(topic.Name) {
		return events
	}

	switch {
	case info.IsAction():
		events = ag.addActionTopic(info, topic)
	case info.IsService():
		events.Service = ag.addServiceTopic(info, topic)
	}
	return events
}

// addServiceTopic upserts one side of a service. It returns the record
// exactly when it transitioned to fully discovered.
func (ag *Aggregator) addServiceTopic(info rpcbus.RpcInfo, topic transport.DdsTopic) *ServiceDiscovered {
	svc := ag.EnsureService(info.ServiceName, info.Protocol)
	if !svc.AddTopic(topic, info.Side) {
		return nil
	}
	ag.logger.Info("service_fully_discovered", "service_name", svc.ServiceName, "protocol", string(svc.Protocol))
	observability.RecordDiscoveryCompleted("service")
	return svc
}

// addActionTopic routes a discovery belonging to an action: the service-
// shaped subtopics go through service assembly and are attached to their
// slot; feedback and status set the action's own topics.
func (ag *Aggregator) addActionTopic(info rpcbus.RpcInfo, topic transport.DdsTopic) Events {
	var events Events
	act := ag.EnsureAction(info.ActionName, info.Protocol)

	switch info.Subtopic {
	case rpcbus.SubtopicGoal, rpcbus.SubtopicResult, rpcbus.SubtopicCancel:
		events.Service = ag.addServiceTopic(info, topic)
		act.AddService(ag.services[info.ServiceName], info.Subtopic)
	case rpcbus.SubtopicFeedback, rpcbus.SubtopicStatus:
		act.AddTopic(topic, info.Subtopic)
	default:
		return events
	}

	wasComplete := act.FullyDiscovered
	if act.CheckFullyDiscovered() && !wasComplete {
		ag.logger.Info("action_fully_discovered", "action_name", act.ActionName, "protocol", string(act.Protocol))
		observability.RecordDiscoveryCompleted("action")
		events.Action = act
	}
	return events
}
