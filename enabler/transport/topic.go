// Package transport provides the in-process collaborators the bridge core
// expects from the underlying data bus: topics, reference-counted payloads,
// injected-sample readers, the discovery database, and the dynamic-type
// capability.
//
// These are deliberately small, deterministic implementations; a production
// deployment substitutes the real bus behind the same shapes.
package transport

import (
	"strings"
)

// typeObjectTopicSuffix marks the internal type-object distribution topic,
// which must never surface to the application.
const typeObjectTopicSuffix = "__type_object"

// DdsTopic identifies a topic together with its type and QoS metadata.
type DdsTopic struct {
	Name          string
	TypeName      string
	SerializedQoS string
	TypeID        TypeIdentifier
}

// IsTypeObjectTopic reports whether a topic name is the internal
// type-object topic.
func IsTypeObjectTopic(name string) bool {
	return strings.HasSuffix(name, typeObjectTopicSuffix)
}

// RpcTopic pairs the request and reply topics backing a service.
type RpcTopic struct {
	ServiceName string
	Request     DdsTopic
	Reply       DdsTopic
}

// RpcAction groups the topics backing a fully assembled action.
type RpcAction struct {
	ActionName string
	Goal       RpcTopic
	Result     RpcTopic
	Cancel     RpcTopic
	Feedback   DdsTopic
	Status     DdsTopic
}
