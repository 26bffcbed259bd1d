package handler

import (
	"time"

	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// actionRequestInfo is the correlation record of a live goal, keyed by the
// goal identity in the handler's table.
type actionRequestInfo struct {
	actionName string
	protocol   rpcbus.Protocol

	goalRequestID   uint64
	resultRequestID uint64

	goalAcceptedStamp time.Time

	cachedResult        string
	resultReceived      bool
	finalStatusReceived bool
}

func newActionRequestInfo(actionName string, sub rpcbus.ActionSubtopic, requestID uint64, protocol rpcbus.Protocol) *actionRequestInfo {
	info := &actionRequestInfo{
		actionName:        actionName,
		protocol:          protocol,
		goalAcceptedStamp: time.Now(),
	}
	info.setRequest(requestID, sub)
	return info
}

// setRequest records the request identifier for the goal or result
// exchange; other subtopics carry no correlation identifier.
func (i *actionRequestInfo) setRequest(requestID uint64, sub rpcbus.ActionSubtopic) {
	switch sub {
	case rpcbus.SubtopicGoal:
		i.goalRequestID = requestID
	case rpcbus.SubtopicResult:
		i.resultRequestID = requestID
	}
}

// request returns the recorded identifier for a subtopic, or false for
// subtopics that carry none.
func (i *actionRequestInfo) request(sub rpcbus.ActionSubtopic) (uint64, bool) {
	switch sub {
	case rpcbus.SubtopicGoal:
		return i.goalRequestID, true
	case rpcbus.SubtopicResult:
		return i.resultRequestID, true
	}
	return 0, false
}

// setResult caches a result reply. It fails if the result is empty or one
// is already cached.
func (i *actionRequestInfo) setResult(result string) bool {
	if result == "" || i.cachedResult != "" {
		return false
	}
	i.cachedResult = result
	return true
}

// erase records an erase reason and reports whether the record may now be
// removed: both the result and the final status observed, or forced.
func (i *actionRequestInfo) erase(reason rpcbus.EraseReason) bool {
	switch reason {
	case rpcbus.EraseFinalStatus:
		i.finalStatusReceived = true
	case rpcbus.EraseResult:
		i.resultReceived = true
	case rpcbus.EraseForced:
		i.finalStatusReceived = true
		i.resultReceived = true
	}
	return i.finalStatusReceived && i.resultReceived
}
