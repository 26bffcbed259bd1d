package enabler_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelink-robotics/busbridge/enabler"
	"github.com/edgelink-robotics/busbridge/enabler/config"
	"github.com/edgelink-robotics/busbridge/enabler/testutil"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

const (
	service = "add_two_ints"
	action  = "fibonacci/_action/"
)

var pairCount int

// newPair builds a server and a client instance joined by the in-memory
// wire, with the demo service and action declared on both sides.
func newPair(t *testing.T) (server, client *enabler.Enabler, serverRec, clientRec *testutil.Recorder, link *enabler.Link) {
	t.Helper()

	store := testutil.NewStaticTypeStore().
		WithService(service, "AddTwoInts_Request", "AddTwoInts_Response").
		WithServiceTopics(service, rpcbus.ProtocolROS2).
		WithAction(action).
		WithActionTopics(action)

	pairCount++
	serverCfg := config.DefaultEnablerConfig()
	serverCfg.ParticipantID = fmt.Sprintf("e2e.server.%d", pairCount)
	clientCfg := config.DefaultEnablerConfig()
	clientCfg.ParticipantID = fmt.Sprintf("e2e.client.%d", pairCount)

	serverRec = testutil.NewRecorder()
	clientRec = testutil.NewRecorder()
	server = enabler.New(serverCfg, serverRec.Callbacks(store))
	client = enabler.New(clientCfg, clientRec.Callbacks(store))
	link = enabler.NewLink(server, client)
	return server, client, serverRec, clientRec, link
}

// =============================================================================
// SERVICE ROUND TRIP
// =============================================================================

func TestServiceRoundTrip(t *testing.T) {
	server, client, serverRec, clientRec, _ := newPair(t)

	serverRec.OnServiceRequest = func(serviceName, doc string, requestID uint64) {
		var req struct{ A, B int64 }
		require.NoError(t, json.Unmarshal([]byte(doc), &req))
		reply := fmt.Sprintf(`{"sum":%d}`, req.A+req.B)
		require.NoError(t, server.SendServiceReply(serviceName, reply, requestID))
	}

	require.NoError(t, server.AnnounceService(service, rpcbus.ProtocolROS2))

	requestID, err := client.SendServiceRequest(service, `{"a":1,"b":2}`)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), requestID)

	// Exactly one request and one reply callback, correlated.
	requests := serverRec.GetServiceRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, service, requests[0].ServiceName)
	assert.Equal(t, uint64(1), requests[0].RequestID)
	assert.JSONEq(t, `{"a":1,"b":2}`, requests[0].JSON)

	replies := clientRec.GetServiceReplies()
	require.Len(t, replies, 1)
	assert.Equal(t, requestID, replies[0].RequestID)
	assert.JSONEq(t, `{"sum":3}`, replies[0].JSON)
}

func TestServiceReply_UnknownProtocol(t *testing.T) {
	server, _, _, _, _ := newPair(t)

	err := server.SendServiceReply("never_seen", `{}`, 1)
	var unknownProto *rpcbus.UnknownRpcProtocolError
	require.ErrorAs(t, err, &unknownProto)
}

// =============================================================================
// ACTION HAPPY PATH
// =============================================================================

func TestActionHappyPath(t *testing.T) {
	server, client, serverRec, clientRec, _ := newPair(t)

	require.NoError(t, server.AnnounceAction(action, rpcbus.ProtocolROS2))

	goalID, err := client.SendActionGoal(action, `{"order":5}`, rpcbus.ProtocolROS2)
	require.NoError(t, err)

	// The server saw exactly one goal request for this identity and the
	// bridge replied on its behalf.
	goalRequests := serverRec.GetGoalRequests()
	require.Len(t, goalRequests, 1)
	assert.Equal(t, goalID, goalRequests[0].GoalID)

	goalReplies := clientRec.GetGoalReplies()
	require.Len(t, goalReplies, 1)
	accepted, _, err := rpcbus.ParseGoalReply(goalReplies[0].JSON)
	require.NoError(t, err)
	assert.True(t, accepted)

	// Four feedback items with partial sequences.
	partials := [][]int64{{0}, {0, 1}, {0, 1, 1}, {0, 1, 1, 2}}
	for _, partial := range partials {
		doc, _ := json.Marshal(map[string]any{"partial_sequence": partial})
		require.NoError(t, server.SendActionFeedback(action, string(doc), goalID))
	}
	feedback := clientRec.GetFeedback()
	require.Len(t, feedback, 4)
	assert.Equal(t, goalID, feedback[0].GoalID)

	// Result: requested by the client, then published by the server.
	require.NoError(t, client.SendActionGetResultRequest(action, goalID))
	require.NoError(t, server.SendActionResult(action, goalID, rpcbus.StatusSucceeded, `{"sequence":[0,1,1,2,3]}`))
	require.NoError(t, server.UpdateActionStatus(action, goalID, rpcbus.StatusSucceeded))

	results := clientRec.GetResults()
	require.Len(t, results, 1, "the result is delivered at most once")
	assert.Equal(t, goalID, results[0].GoalID)
	assert.JSONEq(t, `{"sequence":[0,1,1,2,3]}`, results[0].JSON)

	statuses := clientRec.GetStatuses()
	require.NotEmpty(t, statuses)
	assert.Equal(t, rpcbus.StatusSucceeded, statuses[len(statuses)-1].Status)

	// Result plus final status: the identity is gone on both sides.
	clientActive, _ := client.Handler().IsGoalActive(action, goalID)
	assert.False(t, clientActive)
	serverActive, _ := server.Handler().IsGoalActive(action, goalID)
	assert.False(t, serverActive)
}

func TestActionGoalRejected(t *testing.T) {
	server, client, serverRec, clientRec, _ := newPair(t)
	serverRec.AcceptGoal = func(string, string, rpcbus.GoalID) bool { return false }

	require.NoError(t, server.AnnounceAction(action, rpcbus.ProtocolROS2))

	goalID, err := client.SendActionGoal(action, `{"order":3}`, rpcbus.ProtocolROS2)
	require.NoError(t, err)

	replies := clientRec.GetGoalReplies()
	require.Len(t, replies, 1)
	accepted, _, err := rpcbus.ParseGoalReply(replies[0].JSON)
	require.NoError(t, err)
	assert.False(t, accepted)

	// A rejected goal is purged immediately.
	active, _ := client.Handler().IsGoalActive(action, goalID)
	assert.False(t, active)
}

// =============================================================================
// RESULT CACHED BEFORE THE REQUEST
// =============================================================================

func TestResultCachedBeforeGetResultRequest(t *testing.T) {
	server, client, _, clientRec, _ := newPair(t)

	require.NoError(t, server.AnnounceAction(action, rpcbus.ProtocolROS2))

	goalID, err := client.SendActionGoal(action, `{"order":3}`, rpcbus.ProtocolROS2)
	require.NoError(t, err)

	// The server publishes the result before anyone asked for it.
	require.NoError(t, server.SendActionResult(action, goalID, rpcbus.StatusSucceeded, `{"sequence":[0,1,1]}`))
	assert.Empty(t, clientRec.GetResults(), "no result may arrive before the request")

	// The later get-result request is answered from the cache.
	require.NoError(t, client.SendActionGetResultRequest(action, goalID))

	results := clientRec.GetResults()
	require.Len(t, results, 1)
	assert.Equal(t, goalID, results[0].GoalID)
	assert.JSONEq(t, `{"sequence":[0,1,1]}`, results[0].JSON)
}

// =============================================================================
// CANCEL BY TIMESTAMP
// =============================================================================

func TestCancelAllBeforeTimestamp(t *testing.T) {
	server, client, serverRec, clientRec, _ := newPair(t)

	serverRec.OnCancelRequest = func(actionName string, goalID rpcbus.GoalID, timestamp int64, requestID uint64) {
		candidates := server.CancelCandidates(actionName, goalID, timestamp)
		require.NoError(t, server.SendActionCancelGoalReply(actionName, candidates, rpcbus.CancelNone, requestID))
	}

	require.NoError(t, server.AnnounceAction(action, rpcbus.ProtocolROS2))

	// Three goals accepted at t1 < t2 < t3.
	var ids []rpcbus.GoalID
	for i := 0; i < 3; i++ {
		id, err := client.SendActionGoal(action, fmt.Sprintf(`{"order":%d}`, i+2), rpcbus.ProtocolROS2)
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	stamps := make(map[rpcbus.GoalID]int64)
	for _, g := range server.Handler().ActiveGoals(action) {
		stamps[g.ID] = g.AcceptedAt.UnixNano()
	}
	require.Len(t, stamps, 3)

	// Cancel everything accepted at or before t2.
	require.NoError(t, client.CancelActionGoal(action, rpcbus.GoalID{}, stamps[ids[1]]))

	cancelReplies := clientRec.GetCancelReplies()
	require.Len(t, cancelReplies, 1)
	code, canceling, err := rpcbus.ParseCancelReply(cancelReplies[0].JSON)
	require.NoError(t, err)
	assert.Equal(t, rpcbus.CancelNone, code)

	var cancelled []rpcbus.GoalID
	for _, g := range canceling {
		cancelled = append(cancelled, g.ID)
	}
	assert.ElementsMatch(t, []rpcbus.GoalID{ids[0], ids[1]}, cancelled)

	// The third goal remains active on the server.
	active, _ := server.Handler().IsGoalActive(action, ids[2])
	assert.True(t, active)
}

// =============================================================================
// DISCOVERY ACROSS THE WIRE
// =============================================================================

func TestServiceDiscoveredAcrossWire(t *testing.T) {
	server, client, serverRec, clientRec, link := newPair(t)
	link.MirrorDiscovery()

	serverRec.OnServiceRequest = func(serviceName, doc string, requestID uint64) {
		require.NoError(t, server.SendServiceReply(serviceName, `{"sum":0}`, requestID))
	}

	require.NoError(t, server.AnnounceService(service, rpcbus.ProtocolROS2))
	_, err := client.SendServiceRequest(service, `{"a":0,"b":0}`)
	require.NoError(t, err)

	// Both sides have now seen the request and the reply endpoints; the
	// client assembles the full service record from discovery alone.
	require.Eventually(t, func() bool {
		for _, ev := range clientRec.GetServices() {
			if ev.ServiceName == service {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

// =============================================================================
// CONCURRENCY SMOKE
// =============================================================================

func TestConcurrentServiceRequests(t *testing.T) {
	server, client, serverRec, clientRec, _ := newPair(t)

	serverRec.OnServiceRequest = func(serviceName, doc string, requestID uint64) {
		// Runs on client worker goroutines; errors surface as missing replies.
		_ = server.SendServiceReply(serviceName, `{"sum":1}`, requestID)
	}
	require.NoError(t, server.AnnounceService(service, rpcbus.ProtocolROS2))

	const workers = 8
	const perWorker = 5
	done := make(chan uint64, workers*perWorker)
	for w := 0; w < workers; w++ {
		go func() {
			for i := 0; i < perWorker; i++ {
				id, err := client.SendServiceRequest(service, `{"a":0,"b":1}`)
				if err != nil {
					done <- 0
					continue
				}
				done <- id
			}
		}()
	}

	seen := make(map[uint64]bool)
	for i := 0; i < workers*perWorker; i++ {
		id := <-done
		require.NotZero(t, id)
		require.False(t, seen[id], "request identifiers must be unique")
		seen[id] = true
	}

	require.Eventually(t, func() bool {
		return len(clientRec.GetServiceReplies()) == workers*perWorker
	}, 5*time.Second, 10*time.Millisecond)
}
