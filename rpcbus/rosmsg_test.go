package rpcbus

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestGoalRequestMessage(t *testing.T) {
	msg, goalID, err := NewGoalRequestMessage(`{"order":5}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if goalID.IsZero() {
		t.Fatal("goal id must be minted")
	}

	parsedID, goalJSON, err := ParseGoalRequest(msg)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if parsedID != goalID {
		t.Errorf("goal id mismatch: %s vs %s", parsedID, goalID)
	}
	var goal struct {
		Order int `json:"order"`
	}
	if err := json.Unmarshal([]byte(goalJSON), &goal); err != nil || goal.Order != 5 {
		t.Errorf("unexpected goal payload %q", goalJSON)
	}
}

func TestGoalRequestMessage_InvalidPayload(t *testing.T) {
	if _, _, err := NewGoalRequestMessage("not json"); err == nil {
		t.Fatal("expected error for invalid goal payload")
	}
}

func TestGoalIDFromRequest(t *testing.T) {
	id := NewGoalID()

	goalMsg, _ := goalRequestWithID(`{"order":1}`, id)
	if got, err := GoalIDFromRequest(goalMsg); err != nil || got != id {
		t.Errorf("goal request extraction failed: %v %s", err, got)
	}

	resultMsg := NewResultRequestMessage(id)
	if got, err := GoalIDFromRequest(resultMsg); err != nil || got != id {
		t.Errorf("result request extraction failed: %v %s", err, got)
	}

	cancelMsg := NewCancelRequestMessage(id, 123456789)
	if got, err := GoalIDFromRequest(cancelMsg); err != nil || got != id {
		t.Errorf("cancel request extraction failed: %v %s", err, got)
	}

	if _, err := GoalIDFromRequest(`{"other":1}`); err == nil {
		t.Error("expected error for message without goal identity")
	}
}

func TestGoalReplyMessage(t *testing.T) {
	now := time.Unix(100, 250)
	msg := NewGoalReplyMessage(true, now)
	accepted, stamp, err := ParseGoalReply(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !accepted {
		t.Error("expected accepted=true")
	}
	if stamp.Sec != 100 || stamp.Nanosec != 250 {
		t.Errorf("unexpected stamp %+v", stamp)
	}
}

func TestCancelRequestMessage_Selectors(t *testing.T) {
	id := NewGoalID()
	ts := int64(5_000_000_123)

	msg := NewCancelRequestMessage(id, ts)
	gotID, gotTS, err := ParseCancelRequest(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != id || gotTS != ts {
		t.Errorf("selector mismatch: %s %d", gotID, gotTS)
	}

	// Cancel-all form: zero identity and zero timestamp.
	all := NewCancelRequestMessage(GoalID{}, 0)
	gotID, gotTS, err = ParseCancelRequest(all)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotID.IsZero() || gotTS != 0 {
		t.Errorf("cancel-all selector mismatch: %s %d", gotID, gotTS)
	}
}

func TestCancelReplyMessage(t *testing.T) {
	first := CancelingGoal{ID: NewGoalID(), AcceptedAt: time.Unix(10, 0)}
	second := CancelingGoal{ID: NewGoalID(), AcceptedAt: time.Unix(20, 0)}

	msg := NewCancelReplyMessage([]CancelingGoal{first, second}, CancelNone)
	code, goals, err := ParseCancelReply(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != CancelNone {
		t.Errorf("unexpected code %d", code)
	}
	if len(goals) != 2 || goals[0].ID != first.ID || goals[1].ID != second.ID {
		t.Errorf("unexpected goals %+v", goals)
	}
	if !goals[0].AcceptedAt.Equal(first.AcceptedAt) {
		t.Errorf("unexpected stamp %v", goals[0].AcceptedAt)
	}

	empty := NewCancelReplyMessage(nil, CancelUnknownGoalID)
	if !strings.Contains(empty, `"goals_canceling":[]`) {
		t.Errorf("empty reply must carry an empty array: %s", empty)
	}
}

func TestResultReplyMessage(t *testing.T) {
	msg, err := NewResultReplyMessage(StatusSucceeded, `{"sequence":[0,1,1,2,3]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	status, result, err := ParseResultReply(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusSucceeded {
		t.Errorf("unexpected status %s", status)
	}
	if !strings.Contains(result, "sequence") {
		t.Errorf("unexpected result %q", result)
	}

	if _, err := NewResultReplyMessage(StatusSucceeded, "nope"); err == nil {
		t.Error("expected error for invalid result payload")
	}
}

func TestStatusMessage(t *testing.T) {
	id := NewGoalID()
	acceptedAt := time.Unix(42, 7)

	entries, err := ParseStatusMessage(NewStatusMessage(id, StatusExecuting, acceptedAt))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].ID != id || entries[0].Status != StatusExecuting {
		t.Errorf("unexpected entry %+v", entries[0])
	}
	if !entries[0].AcceptedAt.Equal(acceptedAt) {
		t.Errorf("unexpected accepted stamp %v", entries[0].AcceptedAt)
	}
}

func TestFeedbackMessage(t *testing.T) {
	id := NewGoalID()
	msg, err := NewFeedbackMessage(`{"partial_sequence":[0,1,1]}`, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gotID, feedback, err := ParseFeedback(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != id {
		t.Errorf("goal id mismatch: %s", gotID)
	}
	if !strings.Contains(feedback, "partial_sequence") {
		t.Errorf("unexpected feedback %q", feedback)
	}
}

func TestGoalID_WireForm(t *testing.T) {
	id := GoalID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	out, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "[1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16]" {
		t.Errorf("unexpected wire form %s", out)
	}

	var back GoalID
	if err := json.Unmarshal(out, &back); err != nil || back != id {
		t.Errorf("round trip failed: %v %s", err, back)
	}

	if err := json.Unmarshal([]byte("[1,2]"), &back); err == nil {
		t.Error("expected error for short identity")
	}
	if err := json.Unmarshal([]byte("[300,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16]"), &back); err == nil {
		t.Error("expected error for out-of-range byte")
	}
}

func TestStatusCode_TerminalSet(t *testing.T) {
	terminal := []StatusCode{StatusSucceeded, StatusCanceled, StatusAborted, StatusRejected, StatusTimeout, StatusFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	for _, s := range []StatusCode{StatusUnknown, StatusAccepted, StatusExecuting, StatusCanceling, StatusCancelRequestFailed} {
		if s.IsTerminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}
