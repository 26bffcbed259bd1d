// Package enabler wires the bridge together: type registry, projection
// writer, coordination engine, participant façade and transport
// collaborators, driven by a single application callback set.
package enabler

import (
	"github.com/edgelink-robotics/busbridge/enabler/config"
	"github.com/edgelink-robotics/busbridge/enabler/handler"
	"github.com/edgelink-robotics/busbridge/enabler/participant"
	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/enabler/typeregistry"
	"github.com/edgelink-robotics/busbridge/enabler/writer"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// Enabler is the application-facing bridge instance.
type Enabler struct {
	logger rpcbus.Logger
	cfg    *config.EnablerConfig

	pool        *transport.PayloadPool
	typeObjects *transport.TypeObjectRegistry
	discoveryDB *transport.DiscoveryDatabase

	registry    *typeregistry.Registry
	writer      *writer.Writer
	handler     *handler.Handler
	participant *participant.Participant
}

// Options tunes construction beyond the configuration file.
type Options struct {
	// Logger overrides the logger derived from the callback set.
	Logger rpcbus.Logger

	// DiscoveryDB substitutes a shared discovery database, letting several
	// in-process instances observe each other's endpoints.
	DiscoveryDB *transport.DiscoveryDatabase

	// TypeObjects substitutes a shared transport type registry.
	TypeObjects *transport.TypeObjectRegistry

	// ManualReaderCreation disables the automatic construction of readers
	// from discovery events; the embedder drives CreateReader itself.
	ManualReaderCreation bool
}

// New creates a bridge instance with default transport collaborators.
func New(cfg *config.EnablerConfig, callbacks rpcbus.CallbackSet) *Enabler {
	return NewWithOptions(cfg, callbacks, Options{})
}

// NewWithOptions creates a bridge instance with explicit collaborators.
func NewWithOptions(cfg *config.EnablerConfig, callbacks rpcbus.CallbackSet, opts Options) *Enabler {
	if cfg == nil {
		cfg = config.DefaultEnablerConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = rpcbus.NewCallbackLogger(callbacks.Log, rpcbus.NoopLogger())
	}

	pool := transport.NewPayloadPool()
	typeObjects := opts.TypeObjects
	if typeObjects == nil {
		typeObjects = transport.NewTypeObjectRegistry()
	}
	discoveryDB := opts.DiscoveryDB
	if discoveryDB == nil {
		discoveryDB = transport.NewDiscoveryDatabase()
	}

	registry := typeregistry.New(logger, typeObjects)
	registry.SetTypeQuery(callbacks.Dds.TypeQuery)

	w := writer.New(logger, callbacks)
	registry.SetSchemaNotifier(func(dt transport.DynamicType, id transport.TypeIdentifier) {
		w.WriteSchema(dt, id)
	})

	h := handler.New(logger, registry, w, pool)

	p := participant.New(cfg, logger, pool, discoveryDB, h)
	p.SetTopicQuery(callbacks.Dds.TopicQuery)
	p.SetServiceQuery(callbacks.Service.ServiceQuery)
	p.SetActionQuery(callbacks.Action.ActionQuery)

	// Internal cross-wiring: the writer replies to goal requests through
	// the participant, and the handler serves cached results the same way.
	w.SetSendGoalReply(func(actionName string, requestID uint64, accepted bool) {
		if err := p.SendActionSendGoalReply(actionName, requestID, accepted); err != nil {
			logger.Error("goal_reply_send_failed", "action_name", actionName, "error", err.Error())
		}
	})
	h.SetSendGetResultReply(p.SendActionGetResultReply)

	if !opts.ManualReaderCreation {
		discoveryDB.OnEndpoint(func(ep transport.Endpoint) {
			p.CreateReader(ep.Topic)
		})
	}

	return &Enabler{
		logger:      logger,
		cfg:         cfg,
		pool:        pool,
		typeObjects: typeObjects,
		discoveryDB: discoveryDB,
		registry:    registry,
		writer:      w,
		handler:     h,
		participant: p,
	}
}

// =============================================================================
// COLLABORATOR ACCESS
// =============================================================================

// Participant returns the participant façade.
func (e *Enabler) Participant() *participant.Participant {
	return e.participant
}

// Handler returns the coordination engine.
func (e *Enabler) Handler() *handler.Handler {
	return e.handler
}

// Registry returns the type registry.
func (e *Enabler) Registry() *typeregistry.Registry {
	return e.registry
}

// DiscoveryDatabase returns the discovery database.
func (e *Enabler) DiscoveryDatabase() *transport.DiscoveryDatabase {
	return e.discoveryDB
}

// PayloadPool returns the shared payload pool.
func (e *Enabler) PayloadPool() *transport.PayloadPool {
	return e.pool
}

// =============================================================================
// INGRESS
// =============================================================================

// AddData feeds one inbound sample from the transport into the bridge.
func (e *Enabler) AddData(topic transport.DdsTopic, data *transport.RpcPayloadData) {
	e.handler.AddData(topic, data)
}

// LoadType registers a type ahead of time, reporting it to the application.
func (e *Enabler) LoadType(dt transport.DynamicType) {
	id := transport.IdentifierFor(dt)
	e.typeObjects.RegisterType(dt, id)
	e.handler.AddSchema(dt, id)
}

// =============================================================================
// PUBLIC API DELEGATION
// =============================================================================

// Publish publishes a JSON document on a topic.
func (e *Enabler) Publish(topicName, doc string) error {
	return e.participant.Publish(topicName, doc)
}

// AnnounceService declares this instance the server of a service.
func (e *Enabler) AnnounceService(serviceName string, protocol rpcbus.Protocol) error {
	return e.participant.AnnounceService(serviceName, protocol)
}

// RevokeService withdraws this instance as the server of a service.
func (e *Enabler) RevokeService(serviceName string) error {
	return e.participant.RevokeService(serviceName)
}

// SendServiceRequest issues a request under the ROS 2 convention.
func (e *Enabler) SendServiceRequest(serviceName, doc string) (uint64, error) {
	return e.participant.SendServiceRequest(serviceName, doc)
}

// SendServiceRequestWithProtocol issues a request under an explicit
// convention.
func (e *Enabler) SendServiceRequestWithProtocol(serviceName, doc string, protocol rpcbus.Protocol) (uint64, error) {
	return e.participant.SendServiceRequestWithProtocol(serviceName, doc, protocol)
}

// SendServiceReply answers a previously notified request.
func (e *Enabler) SendServiceReply(serviceName, doc string, requestID uint64) error {
	return e.participant.SendServiceReply(serviceName, doc, requestID)
}

// AnnounceAction declares this instance the server of an action.
func (e *Enabler) AnnounceAction(actionName string, protocol rpcbus.Protocol) error {
	return e.participant.AnnounceAction(actionName, protocol)
}

// RevokeAction withdraws this instance as the server of an action.
func (e *Enabler) RevokeAction(actionName string) error {
	return e.participant.RevokeAction(actionName)
}

// SendActionGoal issues a new goal and returns its identity.
func (e *Enabler) SendActionGoal(actionName, goalJSON string, protocol rpcbus.Protocol) (rpcbus.GoalID, error) {
	return e.participant.SendActionGoal(actionName, goalJSON, protocol)
}

// SendActionGetResultRequest asks the server for a goal's result.
func (e *Enabler) SendActionGetResultRequest(actionName string, goalID rpcbus.GoalID) error {
	return e.participant.SendActionGetResultRequest(actionName, goalID)
}

// CancelActionGoal publishes a cancel request.
func (e *Enabler) CancelActionGoal(actionName string, goalID rpcbus.GoalID, timestampNanos int64) error {
	return e.participant.CancelActionGoal(actionName, goalID, timestampNanos)
}

// SendActionSendGoalReply answers an inbound goal request.
func (e *Enabler) SendActionSendGoalReply(actionName string, requestID uint64, accepted bool) error {
	return e.participant.SendActionSendGoalReply(actionName, requestID, accepted)
}

// SendActionCancelGoalReply answers an inbound cancel request.
func (e *Enabler) SendActionCancelGoalReply(actionName string, goalIDs []rpcbus.GoalID, code rpcbus.CancelCode, requestID uint64) error {
	return e.participant.SendActionCancelGoalReply(actionName, goalIDs, code, requestID)
}

// SendActionResult delivers the result of a goal.
func (e *Enabler) SendActionResult(actionName string, goalID rpcbus.GoalID, status rpcbus.StatusCode, resultJSON string) error {
	return e.participant.SendActionResult(actionName, goalID, status, resultJSON)
}

// SendActionFeedback publishes feedback for an active goal.
func (e *Enabler) SendActionFeedback(actionName, feedbackJSON string, goalID rpcbus.GoalID) error {
	return e.participant.SendActionFeedback(actionName, feedbackJSON, goalID)
}

// UpdateActionStatus publishes a status update for an active goal.
func (e *Enabler) UpdateActionStatus(actionName string, goalID rpcbus.GoalID, status rpcbus.StatusCode) error {
	return e.participant.UpdateActionStatus(actionName, goalID, status)
}

// CancelCandidates selects the active goals matched by a cancel request.
func (e *Enabler) CancelCandidates(actionName string, goalID rpcbus.GoalID, timestampNanos int64) []rpcbus.GoalID {
	return e.participant.CancelCandidates(actionName, goalID, timestampNanos)
}
