package rpcbus

import (
	"encoding/json"
	"fmt"
	"time"
)

// ROS 2 action message envelopes. These are the JSON shapes exchanged on the
// wire topics backing an action; user payloads are embedded verbatim.

// =============================================================================
// TIMESTAMPS
// =============================================================================

// Stamp is the ROS 2 time representation.
type Stamp struct {
	Sec     int64  `json:"sec"`
	Nanosec uint32 `json:"nanosec"`
}

// StampFromTime converts a wall-clock time to a Stamp.
func StampFromTime(t time.Time) Stamp {
	ns := t.UnixNano()
	return StampFromNanos(ns)
}

// StampFromNanos converts nanoseconds since the epoch to a Stamp.
func StampFromNanos(ns int64) Stamp {
	return Stamp{
		Sec:     ns / 1_000_000_000,
		Nanosec: uint32(ns % 1_000_000_000),
	}
}

// Nanos returns the stamp as nanoseconds since the epoch.
func (s Stamp) Nanos() int64 {
	return s.Sec*1_000_000_000 + int64(s.Nanosec)
}

// Time returns the stamp as a wall-clock time.
func (s Stamp) Time() time.Time {
	return time.Unix(s.Sec, int64(s.Nanosec))
}

// =============================================================================
// GOAL IDENTITY WIRE FORM
// =============================================================================

// MarshalJSON renders the identity as an array of 16 byte values.
func (g GoalID) MarshalJSON() ([]byte, error) {
	vals := make([]uint16, len(g))
	for i, b := range g {
		vals[i] = uint16(b)
	}
	return json.Marshal(vals)
}

// UnmarshalJSON accepts an array of 16 byte values.
func (g *GoalID) UnmarshalJSON(data []byte) error {
	var vals []uint16
	if err := json.Unmarshal(data, &vals); err != nil {
		return err
	}
	if len(vals) != len(g) {
		return fmt.Errorf("goal id must have %d bytes, got %d", len(g), len(vals))
	}
	for i, v := range vals {
		if v > 255 {
			return fmt.Errorf("goal id byte %d out of range: %d", i, v)
		}
		g[i] = byte(v)
	}
	return nil
}

type goalIDHolder struct {
	UUID GoalID `json:"uuid"`
}

type goalInfo struct {
	GoalID goalIDHolder `json:"goal_id"`
	Stamp  Stamp        `json:"stamp"`
}

// =============================================================================
// GOAL
// =============================================================================

type goalRequest struct {
	GoalID goalIDHolder    `json:"goal_id"`
	Goal   json.RawMessage `json:"goal"`
}

// NewGoalRequestMessage wraps a user goal payload into a goal request,
// minting a fresh goal identity.
func NewGoalRequestMessage(goalJSON string) (string, GoalID, error) {
	goalID := NewGoalID()
	msg, err := goalRequestWithID(goalJSON, goalID)
	return msg, goalID, err
}

func goalRequestWithID(goalJSON string, goalID GoalID) (string, error) {
	if !json.Valid([]byte(goalJSON)) {
		return "", fmt.Errorf("goal payload is not valid JSON")
	}
	out, err := json.Marshal(goalRequest{
		GoalID: goalIDHolder{UUID: goalID},
		Goal:   json.RawMessage(goalJSON),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ParseGoalRequest extracts the goal identity and the user goal payload.
func ParseGoalRequest(msg string) (GoalID, string, error) {
	var req goalRequest
	if err := json.Unmarshal([]byte(msg), &req); err != nil {
		return GoalID{}, "", err
	}
	return req.GoalID.UUID, string(req.Goal), nil
}

type goalReply struct {
	Accepted bool  `json:"accepted"`
	Stamp    Stamp `json:"stamp"`
}

// NewGoalReplyMessage builds the reply to a goal request.
func NewGoalReplyMessage(accepted bool, now time.Time) string {
	out, _ := json.Marshal(goalReply{Accepted: accepted, Stamp: StampFromTime(now)})
	return string(out)
}

// ParseGoalReply extracts the acceptance flag and stamp of a goal reply.
func ParseGoalReply(msg string) (bool, Stamp, error) {
	var rep goalReply
	if err := json.Unmarshal([]byte(msg), &rep); err != nil {
		return false, Stamp{}, err
	}
	return rep.Accepted, rep.Stamp, nil
}

// =============================================================================
// CANCEL
// =============================================================================

type cancelRequest struct {
	GoalInfo goalInfo `json:"goal_info"`
}

// NewCancelRequestMessage builds a cancel request for the given goal
// identity and timestamp (nanoseconds since the epoch). A zero identity
// and/or timestamp widens the selection per the ROS 2 cancel semantics.
func NewCancelRequestMessage(goalID GoalID, timestampNanos int64) string {
	out, _ := json.Marshal(cancelRequest{
		GoalInfo: goalInfo{
			GoalID: goalIDHolder{UUID: goalID},
			Stamp:  StampFromNanos(timestampNanos),
		},
	})
	return string(out)
}

// ParseCancelRequest extracts the goal identity and timestamp selector.
func ParseCancelRequest(msg string) (GoalID, int64, error) {
	var req cancelRequest
	if err := json.Unmarshal([]byte(msg), &req); err != nil {
		return GoalID{}, 0, err
	}
	return req.GoalInfo.GoalID.UUID, req.GoalInfo.Stamp.Nanos(), nil
}

// CancelingGoal identifies a goal included in a cancel reply together with
// the time its goal was accepted.
type CancelingGoal struct {
	ID         GoalID
	AcceptedAt time.Time
}

type cancelReply struct {
	ReturnCode     CancelCode `json:"return_code"`
	GoalsCanceling []goalInfo `json:"goals_canceling"`
}

// NewCancelReplyMessage builds the reply to a cancel request.
func NewCancelReplyMessage(goals []CancelingGoal, code CancelCode) string {
	rep := cancelReply{
		ReturnCode:     code,
		GoalsCanceling: make([]goalInfo, 0, len(goals)),
	}
	for _, g := range goals {
		rep.GoalsCanceling = append(rep.GoalsCanceling, goalInfo{
			GoalID: goalIDHolder{UUID: g.ID},
			Stamp:  StampFromTime(g.AcceptedAt),
		})
	}
	out, _ := json.Marshal(rep)
	return string(out)
}

// ParseCancelReply extracts the cancel code and the canceling goals.
func ParseCancelReply(msg string) (CancelCode, []CancelingGoal, error) {
	var rep cancelReply
	if err := json.Unmarshal([]byte(msg), &rep); err != nil {
		return CancelNone, nil, err
	}
	goals := make([]CancelingGoal, 0, len(rep.GoalsCanceling))
	for _, g := range rep.GoalsCanceling {
		goals = append(goals, CancelingGoal{ID: g.GoalID.UUID, AcceptedAt: g.Stamp.Time()})
	}
	return rep.ReturnCode, goals, nil
}

// =============================================================================
// RESULT
// =============================================================================

type resultRequest struct {
	GoalID goalIDHolder `json:"goal_id"`
}

// NewResultRequestMessage builds a get-result request for a goal.
func NewResultRequestMessage(goalID GoalID) string {
	out, _ := json.Marshal(resultRequest{GoalID: goalIDHolder{UUID: goalID}})
	return string(out)
}

type resultReply struct {
	Status StatusCode      `json:"status"`
	Result json.RawMessage `json:"result"`
}

// NewResultReplyMessage wraps a user result payload into a result reply.
func NewResultReplyMessage(status StatusCode, resultJSON string) (string, error) {
	if !json.Valid([]byte(resultJSON)) {
		return "", fmt.Errorf("result payload is not valid JSON")
	}
	out, err := json.Marshal(resultReply{Status: status, Result: json.RawMessage(resultJSON)})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ParseResultReply extracts the status code and the user result payload.
func ParseResultReply(msg string) (StatusCode, string, error) {
	var rep resultReply
	if err := json.Unmarshal([]byte(msg), &rep); err != nil {
		return StatusUnknown, "", err
	}
	return rep.Status, string(rep.Result), nil
}

// =============================================================================
// STATUS
// =============================================================================

// GoalStatus is one entry of a status message.
type GoalStatus struct {
	ID         GoalID
	Status     StatusCode
	AcceptedAt time.Time
}

type goalStatusEntry struct {
	GoalInfo goalInfo   `json:"goal_info"`
	Status   StatusCode `json:"status"`
}

type statusMessage struct {
	StatusList []goalStatusEntry `json:"status_list"`
}

// NewStatusMessage builds a status message carrying a single goal entry
// stamped with the time the goal was accepted.
func NewStatusMessage(goalID GoalID, status StatusCode, acceptedAt time.Time) string {
	out, _ := json.Marshal(statusMessage{
		StatusList: []goalStatusEntry{{
			GoalInfo: goalInfo{
				GoalID: goalIDHolder{UUID: goalID},
				Stamp:  StampFromTime(acceptedAt),
			},
			Status: status,
		}},
	})
	return string(out)
}

// ParseStatusMessage extracts every goal status entry.
func ParseStatusMessage(msg string) ([]GoalStatus, error) {
	var sm statusMessage
	if err := json.Unmarshal([]byte(msg), &sm); err != nil {
		return nil, err
	}
	entries := make([]GoalStatus, 0, len(sm.StatusList))
	for _, e := range sm.StatusList {
		entries = append(entries, GoalStatus{
			ID:         e.GoalInfo.GoalID.UUID,
			Status:     e.Status,
			AcceptedAt: e.GoalInfo.Stamp.Time(),
		})
	}
	return entries, nil
}

// =============================================================================
// FEEDBACK
// =============================================================================

type feedbackMessage struct {
	GoalID   goalIDHolder    `json:"goal_id"`
	Feedback json.RawMessage `json:"feedback"`
}

// NewFeedbackMessage wraps a user feedback payload for a goal.
func NewFeedbackMessage(feedbackJSON string, goalID GoalID) (string, error) {
	if !json.Valid([]byte(feedbackJSON)) {
		return "", fmt.Errorf("feedback payload is not valid JSON")
	}
	out, err := json.Marshal(feedbackMessage{
		GoalID:   goalIDHolder{UUID: goalID},
		Feedback: json.RawMessage(feedbackJSON),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ParseFeedback extracts the goal identity and the user feedback payload.
func ParseFeedback(msg string) (GoalID, string, error) {
	var fb feedbackMessage
	if err := json.Unmarshal([]byte(msg), &fb); err != nil {
		return GoalID{}, "", err
	}
	return fb.GoalID.UUID, string(fb.Feedback), nil
}

// =============================================================================
// REQUEST IDENTITY EXTRACTION
// =============================================================================

// GoalIDFromRequest extracts the goal identity from any request-shaped
// action message: goal requests, result requests and cancel requests.
func GoalIDFromRequest(msg string) (GoalID, error) {
	var direct struct {
		GoalID   *goalIDHolder `json:"goal_id"`
		GoalInfo *goalInfo     `json:"goal_info"`
	}
	if err := json.Unmarshal([]byte(msg), &direct); err != nil {
		return GoalID{}, err
	}
	if direct.GoalID != nil {
		return direct.GoalID.UUID, nil
	}
	if direct.GoalInfo != nil {
		return direct.GoalInfo.GoalID.UUID, nil
	}
	return GoalID{}, fmt.Errorf("message carries no goal identity")
}
