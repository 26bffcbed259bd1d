package rpcbus

// QoS serialization keys. The QoS text handed to the application is an
// opaque serialized form; these are the keys used by the default encoding.
const (
	QoSKeyReliability = "reliability"
	QoSKeyDurability  = "durability"
	QoSKeyOwnership   = "ownership"
	QoSKeyKeyed       = "keyed"
)

// Topic mangling.
const (
	ROSTopicPrefix = "rt/"
	DDSTopicPrefix = ""
)

// Service mangling.
const (
	ROSRequestPrefix = "rq/"
	ROSRequestSuffix = "Request"
	ROSReplyPrefix   = "rr/"
	ROSReplySuffix   = "Reply"

	DDSRequestPrefix = ""
	DDSRequestSuffix = "_Request"
	DDSReplyPrefix   = ""
	DDSReplySuffix   = "_Reply"
)

// Action mangling.
const (
	ActionGoalSuffix     = "send_goal"
	ActionResultSuffix   = "get_result"
	ActionCancelSuffix   = "cancel_goal"
	ActionFeedbackSuffix = "feedback"
	ActionStatusSuffix   = "status"
)
