package transport

import (
	"time"
)

// RpcPayloadData is an in-flight sample together with its wire metadata.
//
// RelatedRequestID mirrors the related-sample-identity sequence number of
// the DDS-RPC mapping: on a request it carries the sender's request
// identifier, on a reply the identifier of the request it answers.
// SentSequenceNumber is stamped by the coordination engine on inbound
// requests so the transport can rewrite the forwarded sample's identity.
type RpcPayloadData struct {
	Payload          Payload
	SourceTimestamp  time.Time
	SourceGUIDPrefix string
	InstanceHandle   string

	RelatedRequestID   uint64
	SentSequenceNumber uint64
}

// Message is a sample as handed to the projection layer: the sample payload
// plus the envelope metadata the application-facing JSON needs.
type Message struct {
	SequenceNumber   uint64
	PublishTime      time.Time
	Topic            DdsTopic
	InstanceHandle   string
	SourceGUIDPrefix string
	Payload          Payload
}

// Release drops the message's payload reference.
func (m *Message) Release() {
	m.Payload.Release()
}
