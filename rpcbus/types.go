// Package rpcbus defines the canonical protocol vocabulary for the bridge.
//
// This module is the CANONICAL protocol layer for the entire busbridge system.
// All components depend on these types, not on each other's internals.
//
// It contains:
//   - Wire-naming conventions (Protocol, topic prefix/suffix tables)
//   - The topic-name classifier and composer (RpcInfo)
//   - ROS 2 action message envelopes (goal, status, feedback, cancel, result)
//   - The application callback set and logging protocol
//   - Typed errors surfaced at component boundaries
package rpcbus

import (
	"github.com/google/uuid"
)

// =============================================================================
// CANONICAL ENUMS
// =============================================================================

// Protocol represents the wire-naming convention of an RPC entity.
type Protocol string

const (
	// ProtocolROS2 uses the ROS 2 mangling (rt/, rq/...Request, rr/...Reply).
	ProtocolROS2 Protocol = "ros2"
	// ProtocolDDS uses the plain DDS mangling (no prefix, _Request/_Reply).
	ProtocolDDS Protocol = "dds"
	// ProtocolUnknown is used for entities whose convention was never determined.
	ProtocolUnknown Protocol = "unknown"
)

// RpcKind represents the RPC classification of a topic.
type RpcKind string

const (
	// KindNone marks a regular pub/sub topic with no RPC role.
	KindNone RpcKind = "none"
	// KindService marks a request or reply topic of a plain service.
	KindService RpcKind = "service"
	// KindAction marks any of the topics backing an action.
	KindAction RpcKind = "action"
)

// ServiceSide represents the request/reply side of a service-shaped topic.
type ServiceSide string

const (
	SideNone    ServiceSide = "none"
	SideRequest ServiceSide = "request"
	SideReply   ServiceSide = "reply"
)

// ActionSubtopic represents which of an action's topics a name maps to.
type ActionSubtopic string

const (
	SubtopicNone     ActionSubtopic = "none"
	SubtopicGoal     ActionSubtopic = "goal"
	SubtopicResult   ActionSubtopic = "result"
	SubtopicCancel   ActionSubtopic = "cancel"
	SubtopicFeedback ActionSubtopic = "feedback"
	SubtopicStatus   ActionSubtopic = "status"
)

// Suffix returns the topic-name suffix for a service-backed subtopic,
// or the empty string for subtopics that are not service-backed.
func (s ActionSubtopic) Suffix() string {
	switch s {
	case SubtopicGoal:
		return ActionGoalSuffix
	case SubtopicResult:
		return ActionResultSuffix
	case SubtopicCancel:
		return ActionCancelSuffix
	default:
		return ""
	}
}

// =============================================================================
// ACTION STATUS AND CANCEL CODES
// =============================================================================

// StatusCode represents the lifecycle status of an action goal.
type StatusCode int

const (
	StatusUnknown StatusCode = iota
	StatusAccepted
	StatusExecuting
	StatusCanceling
	StatusSucceeded
	StatusCanceled
	StatusAborted
	StatusRejected
	StatusTimeout
	StatusFailed
	StatusCancelRequestFailed
)

// IsTerminal reports whether the status ends the goal lifecycle.
func (s StatusCode) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusCanceled, StatusAborted, StatusRejected, StatusTimeout, StatusFailed:
		return true
	}
	return false
}

// String returns a human-readable status name.
func (s StatusCode) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusAccepted:
		return "accepted"
	case StatusExecuting:
		return "executing"
	case StatusCanceling:
		return "canceling"
	case StatusSucceeded:
		return "succeeded"
	case StatusCanceled:
		return "canceled"
	case StatusAborted:
		return "aborted"
	case StatusRejected:
		return "rejected"
	case StatusTimeout:
		return "timeout"
	case StatusFailed:
		return "failed"
	case StatusCancelRequestFailed:
		return "cancel_request_failed"
	default:
		return "invalid"
	}
}

// CancelCode represents the outcome of a cancel request.
type CancelCode int

const (
	CancelNone CancelCode = iota
	CancelRejected
	CancelUnknownGoalID
	CancelGoalTerminated
)

// EraseReason represents why an action goal is being removed from the
// correlation table. A goal is fully removed only once both the result
// and the final status have been observed, or when the erase is forced.
type EraseReason int

const (
	EraseResult EraseReason = iota
	EraseFinalStatus
	EraseForced
)

// =============================================================================
// GOAL IDENTITY
// =============================================================================

// GoalID is the fixed 16-byte identity of an action goal.
type GoalID [16]byte

// NewGoalID mints a random goal identity.
func NewGoalID() GoalID {
	return GoalID(uuid.New())
}

// IsZero reports whether the goal identity is all zeroes.
func (g GoalID) IsZero() bool {
	return g == GoalID{}
}

// String renders the goal identity in canonical UUID form.
func (g GoalID) String() string {
	return uuid.UUID(g).String()
}

// =============================================================================
// DISCOVERY METADATA
// =============================================================================

// TopicInfo carries the application-visible metadata of a topic.
// An empty SerializedQoS means transport defaults.
type TopicInfo struct {
	TypeName      string `json:"type_name"`
	SerializedQoS string `json:"serialized_qos"`
}

// ServiceInfo carries the metadata of a service's two topics.
type ServiceInfo struct {
	Request TopicInfo `json:"request"`
	Reply   TopicInfo `json:"reply"`
}

// ActionInfo carries the metadata of an action's three services plus its
// feedback and status topics.
type ActionInfo struct {
	Goal     ServiceInfo `json:"goal"`
	Result   ServiceInfo `json:"result"`
	Cancel   ServiceInfo `json:"cancel"`
	Feedback TopicInfo   `json:"feedback"`
	Status   TopicInfo   `json:"status"`
}
