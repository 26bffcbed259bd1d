package rpcbus

import (
	"strings"
)

// =============================================================================
// CLASSIFIER OUTPUT
// =============================================================================

// RpcInfo is the result of classifying a topic name.
// A name that matches no RPC shape has Kind == KindNone; classification
// is total and never fails.
type RpcInfo struct {
	TopicName   string
	Protocol    Protocol
	Kind        RpcKind
	Side        ServiceSide
	Subtopic    ActionSubtopic
	ServiceName string
	ActionName  string
}

// IsService reports whether the topic belongs to a plain service.
func (i RpcInfo) IsService() bool {
	return i.Kind == KindService
}

// IsAction reports whether the topic belongs to an action.
func (i RpcInfo) IsAction() bool {
	return i.Kind == KindAction
}

// IsServiceSide reports whether the topic is request- or reply-shaped,
// regardless of whether it backs a plain service or an action.
func (i RpcInfo) IsServiceSide() bool {
	return i.Side == SideRequest || i.Side == SideReply
}

// manglingRules is the per-protocol prefix/suffix tuple.
type manglingRules struct {
	requestPrefix string
	requestSuffix string
	replyPrefix   string
	replySuffix   string
	topicPrefix   string
}

func rulesFor(p Protocol) (manglingRules, bool) {
	switch p {
	case ProtocolROS2:
		return manglingRules{
			requestPrefix: ROSRequestPrefix,
			requestSuffix: ROSRequestSuffix,
			replyPrefix:   ROSReplyPrefix,
			replySuffix:   ROSReplySuffix,
			topicPrefix:   ROSTopicPrefix,
		}, true
	case ProtocolDDS:
		return manglingRules{
			requestPrefix: DDSRequestPrefix,
			requestSuffix: DDSRequestSuffix,
			replyPrefix:   DDSReplyPrefix,
			replySuffix:   DDSReplySuffix,
			topicPrefix:   DDSTopicPrefix,
		}, true
	}
	return manglingRules{}, false
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// ParseTopic classifies a topic name into its RPC role. It is pure, total
// and deterministic; names that match no RPC shape yield Kind == KindNone.
func ParseTopic(name string) RpcInfo {
	info := RpcInfo{
		TopicName: name,
		Protocol:  detectProtocol(name),
		Kind:      KindNone,
		Side:      SideNone,
		Subtopic:  SubtopicNone,
	}

	rules, ok := rulesFor(info.Protocol)
	if !ok {
		return info
	}

	// Request-shaped match.
	if stem, ok := stripShell(name, rules.requestPrefix, rules.requestSuffix); ok {
		classifyStem(&info, stem, SideRequest)
		return info
	}

	// Reply-shaped match.
	if stem, ok := stripShell(name, rules.replyPrefix, rules.replySuffix); ok {
		classifyStem(&info, stem, SideReply)
		return info
	}

	// Action feedback/status topics only exist under the ROS 2 convention;
	// the DDS convention defines no actions over plain topics.
	if info.Protocol != ProtocolROS2 {
		return info
	}
	base := strings.TrimPrefix(name, rules.topicPrefix)
	if action, ok := stripSubtopic(base, "/"+ActionFeedbackSuffix); ok {
		info.Kind = KindAction
		info.Subtopic = SubtopicFeedback
		info.ActionName = action + "/"
		return info
	}
	if action, ok := stripSubtopic(base, "/"+ActionStatusSuffix); ok {
		info.Kind = KindAction
		info.Subtopic = SubtopicStatus
		info.ActionName = action + "/"
		return info
	}

	return info
}

// detectProtocol resolves the wire convention from the name's prefix.
// The DDS prefixes are empty strings, so DDS is the fall-through.
func detectProtocol(name string) Protocol {
	if strings.HasPrefix(name, ROSTopicPrefix) ||
		strings.HasPrefix(name, ROSRequestPrefix) ||
		strings.HasPrefix(name, ROSReplyPrefix) {
		return ProtocolROS2
	}
	return ProtocolDDS
}

// stripShell removes a prefix/suffix pair, requiring a non-empty stem.
func stripShell(name, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	stem := name[len(prefix):]
	if len(stem) <= len(suffix) || !strings.HasSuffix(stem, suffix) {
		return "", false
	}
	return stem[:len(stem)-len(suffix)], true
}

// stripSubtopic matches a trailing "/<sub>" and returns the part before it.
func stripSubtopic(base, slashSub string) (string, bool) {
	if len(base) <= len(slashSub) || !strings.HasSuffix(base, slashSub) {
		return "", false
	}
	return base[:len(base)-len(slashSub)], true
}

// classifyStem resolves whether a service-shaped stem is a plain service
// or one of the action sub-services. The stem is the service name; for
// action roles the action name is the stem with the sub-suffix removed.
func classifyStem(info *RpcInfo, stem string, side ServiceSide) {
	info.Side = side
	info.ServiceName = stem

	for _, sub := range []ActionSubtopic{SubtopicGoal, SubtopicResult, SubtopicCancel} {
		suffix := sub.Suffix()
		if len(stem) > len(suffix) && strings.HasSuffix(stem, suffix) {
			info.Kind = KindAction
			info.Subtopic = sub
			info.ActionName = stem[:len(stem)-len(suffix)]
			return
		}
	}

	info.Kind = KindService
}

// =============================================================================
// COMPOSITION
// =============================================================================

// ServiceRequestTopic composes the request topic name of a service.
func ServiceRequestTopic(serviceName string, p Protocol) string {
	rules, ok := rulesFor(p)
	if !ok {
		return ""
	}
	return rules.requestPrefix + serviceName + rules.requestSuffix
}

// ServiceReplyTopic composes the reply topic name of a service.
func ServiceReplyTopic(serviceName string, p Protocol) string {
	rules, ok := rulesFor(p)
	if !ok {
		return ""
	}
	return rules.replyPrefix + serviceName + rules.replySuffix
}

// ActionServiceName composes the name of the service backing a
// goal/result/cancel subtopic of an action.
func ActionServiceName(actionName string, sub ActionSubtopic) string {
	return actionName + sub.Suffix()
}

// ActionTopic composes the topic name for one of an action's topics.
// For the feedback and status subtopics the side is ignored. Composition of
// feedback/status names is only defined under the ROS 2 convention; other
// combinations yield the empty string.
func ActionTopic(actionName string, sub ActionSubtopic, side ServiceSide, p Protocol) string {
	switch sub {
	case SubtopicGoal, SubtopicResult, SubtopicCancel:
		service := ActionServiceName(actionName, sub)
		if side == SideRequest {
			return ServiceRequestTopic(service, p)
		}
		return ServiceReplyTopic(service, p)
	case SubtopicFeedback:
		if p != ProtocolROS2 {
			return ""
		}
		return ROSTopicPrefix + actionName + ActionFeedbackSuffix
	case SubtopicStatus:
		if p != ProtocolROS2 {
			return ""
		}
		return ROSTopicPrefix + actionName + ActionStatusSuffix
	}
	return ""
}

// ComposeTopic rebuilds a topic name from a classification. It is the
// inverse of ParseTopic for every RpcInfo whose Kind is not KindNone.
func ComposeTopic(info RpcInfo) string {
	switch info.Kind {
	case KindService:
		if info.Side == SideRequest {
			return ServiceRequestTopic(info.ServiceName, info.Protocol)
		}
		return ServiceReplyTopic(info.ServiceName, info.Protocol)
	case KindAction:
		return ActionTopic(info.ActionName, info.Subtopic, info.Side, info.Protocol)
	}
	return ""
}
