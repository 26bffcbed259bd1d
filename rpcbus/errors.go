package rpcbus

import (
	"fmt"
	"time"
)

// =============================================================================
// TYPED FAILURES
// =============================================================================

// UnknownTopicError is returned when publishing on a topic that was never
// discovered and cannot be resolved through the topic query callback.
type UnknownTopicError struct {
	TopicName string
}

func (e *UnknownTopicError) Error() string {
	return fmt.Sprintf("unknown topic %s", e.TopicName)
}

// NewUnknownTopicError creates a new UnknownTopicError.
func NewUnknownTopicError(topicName string) *UnknownTopicError {
	return &UnknownTopicError{TopicName: topicName}
}

// TypeNotFoundError is returned when no resolution source produces a valid
// type identifier for a type name.
type TypeNotFoundError struct {
	TypeName string
}

func (e *TypeNotFoundError) Error() string {
	return fmt.Sprintf("type %s not found in any resolution source", e.TypeName)
}

// NewTypeNotFoundError creates a new TypeNotFoundError.
func NewTypeNotFoundError(typeName string) *TypeNotFoundError {
	return &TypeNotFoundError{TypeName: typeName}
}

// InconsistentTypeBlobError is returned when a dependency blob's last element
// does not declare the requested type name.
type InconsistentTypeBlobError struct {
	Expected string
	Found    string
}

func (e *InconsistentTypeBlobError) Error() string {
	return fmt.Sprintf("inconsistent type blob: expected %s as last element, found %s", e.Expected, e.Found)
}

// NewInconsistentTypeBlobError creates a new InconsistentTypeBlobError.
func NewInconsistentTypeBlobError(expected, found string) *InconsistentTypeBlobError {
	return &InconsistentTypeBlobError{Expected: expected, Found: found}
}

// SerializationError is returned when a JSON/payload conversion fails.
type SerializationError struct {
	TypeName string
	Cause    error
}

func (e *SerializationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("serialization failed for type %s: %v", e.TypeName, e.Cause)
	}
	return fmt.Sprintf("serialization failed for type %s", e.TypeName)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// NewSerializationError creates a new SerializationError.
func NewSerializationError(typeName string, cause error) *SerializationError {
	return &SerializationError{TypeName: typeName, Cause: cause}
}

// ReaderCreationError is returned when the bounded wait for a reader to be
// constructed by the discovery thread times out.
type ReaderCreationError struct {
	TopicName string
	Timeout   time.Duration
}

func (e *ReaderCreationError) Error() string {
	return fmt.Sprintf("reader for topic %s not created within %s", e.TopicName, e.Timeout)
}

// NewReaderCreationError creates a new ReaderCreationError.
func NewReaderCreationError(topicName string, timeout time.Duration) *ReaderCreationError {
	return &ReaderCreationError{TopicName: topicName, Timeout: timeout}
}

// AlreadyAnnouncedError is returned when announcing a service or action the
// participant already serves.
type AlreadyAnnouncedError struct {
	Name string
}

func (e *AlreadyAnnouncedError) Error() string {
	return fmt.Sprintf("%s already announced by this participant", e.Name)
}

// NewAlreadyAnnouncedError creates a new AlreadyAnnouncedError.
func NewAlreadyAnnouncedError(name string) *AlreadyAnnouncedError {
	return &AlreadyAnnouncedError{Name: name}
}

// NotAnnouncedError is returned when revoking a service or action that was
// never announced locally.
type NotAnnouncedError struct {
	Name string
}

func (e *NotAnnouncedError) Error() string {
	return fmt.Sprintf("%s not announced by this participant", e.Name)
}

// NewNotAnnouncedError creates a new NotAnnouncedError.
func NewNotAnnouncedError(name string) *NotAnnouncedError {
	return &NotAnnouncedError{Name: name}
}

// UnsupportedProtocolError is returned when an operation is requested under a
// wire convention it is not defined for.
type UnsupportedProtocolError struct {
	Protocol Protocol
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("operation not supported under protocol %s", e.Protocol)
}

// NewUnsupportedProtocolError creates a new UnsupportedProtocolError.
func NewUnsupportedProtocolError(p Protocol) *UnsupportedProtocolError {
	return &UnsupportedProtocolError{Protocol: p}
}

// NoSuchGoalError is returned for operations on a goal identity that is not
// in the correlation table.
type NoSuchGoalError struct {
	ActionName string
	GoalID     GoalID
}

func (e *NoSuchGoalError) Error() string {
	return fmt.Sprintf("no such goal %s for action %s", e.GoalID, e.ActionName)
}

// NewNoSuchGoalError creates a new NoSuchGoalError.
func NewNoSuchGoalError(actionName string, goalID GoalID) *NoSuchGoalError {
	return &NoSuchGoalError{ActionName: actionName, GoalID: goalID}
}

// UnknownRpcProtocolError is returned when replying on a service whose wire
// convention was never determined.
type UnknownRpcProtocolError struct {
	ServiceName string
}

func (e *UnknownRpcProtocolError) Error() string {
	return fmt.Sprintf("rpc protocol for service %s never determined", e.ServiceName)
}

// NewUnknownRpcProtocolError creates a new UnknownRpcProtocolError.
func NewUnknownRpcProtocolError(serviceName string) *UnknownRpcProtocolError {
	return &UnknownRpcProtocolError{ServiceName: serviceName}
}
