package rpcbus

import (
	"testing"
)

func TestParseTopic_Services(t *testing.T) {
	cases := []struct {
		name     string
		topic    string
		protocol Protocol
		side     ServiceSide
		service  string
	}{
		{"ros2 request", "rq/add_two_intsRequest", ProtocolROS2, SideRequest, "add_two_ints"},
		{"ros2 reply", "rr/add_two_intsReply", ProtocolROS2, SideReply, "add_two_ints"},
		{"ros2 namespaced request", "rq/ns/calcRequest", ProtocolROS2, SideRequest, "ns/calc"},
		{"dds request", "calc_Request", ProtocolDDS, SideRequest, "calc"},
		{"dds reply", "calc_Reply", ProtocolDDS, SideReply, "calc"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := ParseTopic(tc.topic)
			if info.Kind != KindService {
				t.Fatalf("expected service, got %s", info.Kind)
			}
			if info.Protocol != tc.protocol {
				t.Errorf("expected protocol %s, got %s", tc.protocol, info.Protocol)
			}
			if info.Side != tc.side {
				t.Errorf("expected side %s, got %s", tc.side, info.Side)
			}
			if info.ServiceName != tc.service {
				t.Errorf("expected service %q, got %q", tc.service, info.ServiceName)
			}
		})
	}
}

func TestParseTopic_Actions(t *testing.T) {
	cases := []struct {
		name     string
		topic    string
		protocol Protocol
		sub      ActionSubtopic
		side     ServiceSide
		action   string
	}{
		{"goal request", "rq/foo/barsend_goalRequest", ProtocolROS2, SubtopicGoal, SideRequest, "foo/bar"},
		{"goal reply", "rr/foo/barsend_goalReply", ProtocolROS2, SubtopicGoal, SideReply, "foo/bar"},
		{"result request", "rq/foo/barget_resultRequest", ProtocolROS2, SubtopicResult, SideRequest, "foo/bar"},
		{"cancel reply", "rr/foo/barcancel_goalReply", ProtocolROS2, SubtopicCancel, SideReply, "foo/bar"},
		{"feedback", "rt/fibonacci/_action/feedback", ProtocolROS2, SubtopicFeedback, SideNone, "fibonacci/_action/"},
		{"status", "rt/fibonacci/_action/status", ProtocolROS2, SubtopicStatus, SideNone, "fibonacci/_action/"},
		{"dds goal request", "fibsend_goal_Request", ProtocolDDS, SubtopicGoal, SideRequest, "fib"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := ParseTopic(tc.topic)
			if info.Kind != KindAction {
				t.Fatalf("expected action, got %s (topic %s)", info.Kind, tc.topic)
			}
			if info.Protocol != tc.protocol {
				t.Errorf("expected protocol %s, got %s", tc.protocol, info.Protocol)
			}
			if info.Subtopic != tc.sub {
				t.Errorf("expected subtopic %s, got %s", tc.sub, info.Subtopic)
			}
			if info.Side != tc.side {
				t.Errorf("expected side %s, got %s", tc.side, info.Side)
			}
			if info.ActionName != tc.action {
				t.Errorf("expected action %q, got %q", tc.action, info.ActionName)
			}
		})
	}
}

func TestParseTopic_NoRole(t *testing.T) {
	cases := []struct {
		name  string
		topic string
	}{
		{"plain topic", "chatter"},
		{"ros2 plain topic", "rt/chatter"},
		{"empty request stem ros2", "rq/Request"},
		{"empty reply stem dds", "_Reply"},
		{"dds feedback not recognised", "svc/feedback"},
		{"dds status not recognised", "svc/status"},
		{"empty string", ""},
		{"bare feedback", "rt/feedback"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := ParseTopic(tc.topic)
			if info.Kind != KindNone {
				t.Errorf("expected no role for %q, got %s/%s/%s", tc.topic, info.Kind, info.Side, info.Subtopic)
			}
		})
	}
}

// Composing a parsed name must reproduce it whenever the parse found a role.
func TestComposeTopic_RoundTrip(t *testing.T) {
	topics := []string{
		"rq/add_two_intsRequest",
		"rr/add_two_intsReply",
		"calc_Request",
		"calc_Reply",
		"rq/fibonacci/_action/send_goalRequest",
		"rr/fibonacci/_action/send_goalReply",
		"rq/fibonacci/_action/get_resultRequest",
		"rr/fibonacci/_action/get_resultReply",
		"rq/fibonacci/_action/cancel_goalRequest",
		"rr/fibonacci/_action/cancel_goalReply",
		"rt/fibonacci/_action/feedback",
		"rt/fibonacci/_action/status",
		"fibsend_goal_Request",
	}

	for _, topic := range topics {
		info := ParseTopic(topic)
		if info.Kind == KindNone {
			t.Fatalf("expected a role for %q", topic)
		}
		if got := ComposeTopic(info); got != topic {
			t.Errorf("round trip failed: %q -> %q", topic, got)
		}
	}
}

func TestParseTopic_Deterministic(t *testing.T) {
	for i := 0; i < 3; i++ {
		a := ParseTopic("rq/foo/barsend_goalRequest")
		b := ParseTopic("rq/foo/barsend_goalRequest")
		if a != b {
			t.Fatal("classification must be deterministic")
		}
	}
}

func TestActionTopic_Composition(t *testing.T) {
	if got := ActionTopic("fibonacci/_action/", SubtopicGoal, SideRequest, ProtocolROS2); got != "rq/fibonacci/_action/send_goalRequest" {
		t.Errorf("unexpected goal request topic %q", got)
	}
	if got := ActionTopic("fibonacci/_action/", SubtopicFeedback, SideNone, ProtocolROS2); got != "rt/fibonacci/_action/feedback" {
		t.Errorf("unexpected feedback topic %q", got)
	}
	if got := ActionTopic("fibonacci/_action/", SubtopicFeedback, SideNone, ProtocolDDS); got != "" {
		t.Errorf("feedback must not compose under dds, got %q", got)
	}
	if got := ActionTopic("fib", SubtopicCancel, SideReply, ProtocolDDS); got != "fibcancel_goal_Reply" {
		t.Errorf("unexpected dds cancel reply topic %q", got)
	}
}

func TestServiceTopics_Composition(t *testing.T) {
	if got := ServiceRequestTopic("calc", ProtocolROS2); got != "rq/calcRequest" {
		t.Errorf("unexpected ros2 request topic %q", got)
	}
	if got := ServiceReplyTopic("calc", ProtocolDDS); got != "calc_Reply" {
		t.Errorf("unexpected dds reply topic %q", got)
	}
	if got := ServiceRequestTopic("calc", ProtocolUnknown); got != "" {
		t.Errorf("unknown protocol must not compose, got %q", got)
	}
}
