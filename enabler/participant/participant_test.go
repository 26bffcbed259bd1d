package participant_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelink-robotics/busbridge/enabler"
	"github.com/edgelink-robotics/busbridge/enabler/config"
	"github.com/edgelink-robotics/busbridge/enabler/testutil"
	"github.com/edgelink-robotics/busbridge/enabler/transport"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

var instanceCount int

func newInstance(t *testing.T, store *testutil.StaticTypeStore, recorder *testutil.Recorder, opts enabler.Options) *enabler.Enabler {
	t.Helper()
	instanceCount++
	cfg := config.DefaultEnablerConfig()
	cfg.ParticipantID = fmt.Sprintf("participant.test.%d", instanceCount)
	return enabler.NewWithOptions(cfg, recorder.Callbacks(store), opts)
}

// =============================================================================
// SERVICE ANNOUNCE / REVOKE
// =============================================================================

func TestAnnounceService_Lifecycle(t *testing.T) {
	store := testutil.NewStaticTypeStore().WithService("calc", "Calc_Request", "Calc_Response")
	e := newInstance(t, store, testutil.NewRecorder(), enabler.Options{})
	p := e.Participant()

	require.NoError(t, p.AnnounceService("calc", rpcbus.ProtocolROS2))

	// Re-announcing an already announced service fails.
	err := p.AnnounceService("calc", rpcbus.ProtocolROS2)
	var already *rpcbus.AlreadyAnnouncedError
	require.ErrorAs(t, err, &already)

	require.NoError(t, p.RevokeService("calc"))

	// Revoking twice, or a never announced service, fails.
	var notAnnounced *rpcbus.NotAnnouncedError
	require.ErrorAs(t, p.RevokeService("calc"), &notAnnounced)
	require.ErrorAs(t, p.RevokeService("other"), &notAnnounced)
}

func TestAnnounceService_RequiresMetadata(t *testing.T) {
	store := testutil.NewStaticTypeStore() // no services declared
	e := newInstance(t, store, testutil.NewRecorder(), enabler.Options{})

	require.Error(t, e.Participant().AnnounceService("calc", rpcbus.ProtocolROS2))
}

func TestAnnounceService_NotifiesDiscovery(t *testing.T) {
	store := testutil.NewStaticTypeStore().WithService("calc", "Calc_Request", "Calc_Response")
	recorder := testutil.NewRecorder()
	e := newInstance(t, store, recorder, enabler.Options{})

	require.NoError(t, e.AnnounceService("calc", rpcbus.ProtocolROS2))

	services := recorder.GetServices()
	require.Len(t, services, 1)
	assert.Equal(t, "calc", services[0].ServiceName)
	assert.Equal(t, "Calc_Request", services[0].Info.Request.TypeName)
	assert.Equal(t, "Calc_Response", services[0].Info.Reply.TypeName)
}

func TestRevokeService_DropsProtocolWithoutExternalServer(t *testing.T) {
	store := testutil.NewStaticTypeStore().WithService("calc", "Calc_Request", "Calc_Response")
	e := newInstance(t, store, testutil.NewRecorder(), enabler.Options{})
	p := e.Participant()

	require.NoError(t, p.AnnounceService("calc", rpcbus.ProtocolROS2))
	assert.Equal(t, rpcbus.ProtocolROS2, p.ServiceProtocol("calc"))

	require.NoError(t, p.RevokeService("calc"))
	assert.Equal(t, rpcbus.ProtocolUnknown, p.ServiceProtocol("calc"))

	// Replying on the revoked service fails: its convention is gone.
	err := p.SendServiceReply("calc", `{"sum":1}`, 1)
	var unknownProto *rpcbus.UnknownRpcProtocolError
	require.ErrorAs(t, err, &unknownProto)
}

func TestRevokeService_KeepsRecordWithExternalServer(t *testing.T) {
	store := testutil.NewStaticTypeStore().WithService("calc", "Calc_Request", "Calc_Response")
	e := newInstance(t, store, testutil.NewRecorder(), enabler.Options{})
	p := e.Participant()

	require.NoError(t, p.AnnounceService("calc", rpcbus.ProtocolROS2))
	p.MarkExternalServer("calc", rpcbus.ProtocolROS2)

	require.NoError(t, p.RevokeService("calc"))
	assert.Equal(t, rpcbus.ProtocolROS2, p.ServiceProtocol("calc"),
		"record must survive while an external server remains")
}

// =============================================================================
// ACTION ANNOUNCE / REVOKE
// =============================================================================

func TestAnnounceAction_RejectsNonROS2(t *testing.T) {
	store := testutil.NewStaticTypeStore().WithAction("fib/_action/")
	e := newInstance(t, store, testutil.NewRecorder(), enabler.Options{})

	err := e.AnnounceAction("fib/_action/", rpcbus.ProtocolDDS)
	var unsupported *rpcbus.UnsupportedProtocolError
	require.ErrorAs(t, err, &unsupported)
}

func TestAnnounceAction_Lifecycle(t *testing.T) {
	store := testutil.NewStaticTypeStore().WithAction("fib/_action/")
	recorder := testutil.NewRecorder()
	e := newInstance(t, store, recorder, enabler.Options{})

	require.NoError(t, e.AnnounceAction("fib/_action/", rpcbus.ProtocolROS2))

	// The three services and the assembled action are reported.
	assert.Len(t, recorder.GetServices(), 3)
	actions := recorder.GetActions()
	require.Len(t, actions, 1)
	assert.Equal(t, "fib/_action/", actions[0].ActionName)
	assert.Equal(t, "fib/_action/SendGoal_Request", actions[0].Info.Goal.Request.TypeName)

	var already *rpcbus.AlreadyAnnouncedError
	require.ErrorAs(t, e.AnnounceAction("fib/_action/", rpcbus.ProtocolROS2), &already)

	require.NoError(t, e.RevokeAction("fib/_action/"))
	var notAnnounced *rpcbus.NotAnnouncedError
	require.ErrorAs(t, e.RevokeAction("fib/_action/"), &notAnnounced)
}

// =============================================================================
// PUBLISH
// =============================================================================

func TestPublish_UnknownTopicWithoutQuery(t *testing.T) {
	store := testutil.NewStaticTypeStore() // no topics declared
	e := newInstance(t, store, testutil.NewRecorder(), enabler.Options{})

	err := e.Publish("rt/chatter", `{"data":"x"}`)
	var unknown *rpcbus.UnknownTopicError
	require.ErrorAs(t, err, &unknown)
}

func TestPublish_ReaderCreationTimeout(t *testing.T) {
	store := testutil.NewStaticTypeStore().
		WithType("String_", "", "{}").
		WithTopic("rt/chatter", "String_")

	instanceCount++
	cfg := config.DefaultEnablerConfig()
	cfg.ParticipantID = fmt.Sprintf("participant.test.%d", instanceCount)
	cfg.ReaderWaitTimeoutMS = 50

	// Manual reader creation: the discovery thread never builds a reader.
	e := enabler.NewWithOptions(cfg, testutil.NewRecorder().Callbacks(store), enabler.Options{
		ManualReaderCreation: true,
	})

	start := time.Now()
	err := e.Publish("rt/chatter", `{"data":"x"}`)
	var readerErr *rpcbus.ReaderCreationError
	require.ErrorAs(t, err, &readerErr)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// No partial publish occurred.
	assert.Zero(t, e.PayloadPool().InUse())
}

func TestPublish_RoundTripThroughReader(t *testing.T) {
	store := testutil.NewStaticTypeStore().
		WithType("String_", "", "{}").
		WithTopic("rt/chatter", "String_")
	e := newInstance(t, store, testutil.NewRecorder(), enabler.Options{})

	received := make(chan string, 1)
	e.Participant().SetReaderSink(func(topic transport.DdsTopic, data *transport.RpcPayloadData) {
		received <- string(data.Payload.Bytes())
		data.Payload.Release()
	})

	require.NoError(t, e.Publish("rt/chatter", `{"data":"x"}`))
	select {
	case doc := <-received:
		assert.Equal(t, `{"data":"x"}`, doc)
	case <-time.After(time.Second):
		t.Fatal("sample did not reach the reader sink")
	}
}

// =============================================================================
// CANCEL CANDIDATE SELECTION
// =============================================================================

func TestCancelCandidates_Quadrants(t *testing.T) {
	store := testutil.NewStaticTypeStore()
	e := newInstance(t, store, testutil.NewRecorder(), enabler.Options{})
	h := e.Handler()

	const action = "fib/_action/"
	var ids []rpcbus.GoalID
	for i := 0; i < 3; i++ {
		id := rpcbus.NewGoalID()
		require.NoError(t, h.StoreActionRequest(action, id, uint64(i+1), rpcbus.SubtopicGoal, rpcbus.ProtocolROS2))
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	stamps := make(map[rpcbus.GoalID]int64)
	for _, g := range h.ActiveGoals(action) {
		stamps[g.ID] = g.AcceptedAt.UnixNano()
	}

	// Zero identity, zero timestamp: everything.
	assert.Len(t, e.CancelCandidates(action, rpcbus.GoalID{}, 0), 3)

	// Zero identity, timestamp of the second goal: the first two.
	selected := e.CancelCandidates(action, rpcbus.GoalID{}, stamps[ids[1]])
	assert.ElementsMatch(t, []rpcbus.GoalID{ids[0], ids[1]}, selected)

	// Specific identity, zero timestamp: just that goal.
	selected = e.CancelCandidates(action, ids[2], 0)
	assert.Equal(t, []rpcbus.GoalID{ids[2]}, selected)

	// Specific identity plus timestamp: that goal and everything before.
	selected = e.CancelCandidates(action, ids[2], stamps[ids[0]])
	assert.ElementsMatch(t, []rpcbus.GoalID{ids[0], ids[2]}, selected)

	// Unknown action: nothing.
	assert.Empty(t, e.CancelCandidates("other/", rpcbus.GoalID{}, 0))
}

// =============================================================================
// GOAL OPERATIONS WITHOUT A LIVE GOAL
// =============================================================================

func TestGoalOperations_RequireLiveGoal(t *testing.T) {
	store := testutil.NewStaticTypeStore()
	e := newInstance(t, store, testutil.NewRecorder(), enabler.Options{})

	ghost := rpcbus.NewGoalID()
	var noGoal *rpcbus.NoSuchGoalError

	require.True(t, errors.As(e.SendActionGetResultRequest("fib/", ghost), &noGoal))
	require.True(t, errors.As(e.SendActionFeedback("fib/", `{}`, ghost), &noGoal))
	require.True(t, errors.As(e.UpdateActionStatus("fib/", ghost, rpcbus.StatusExecuting), &noGoal))
	require.True(t, errors.As(e.SendActionResult("fib/", ghost, rpcbus.StatusSucceeded, `{}`), &noGoal))
	require.True(t, errors.As(e.CancelActionGoal("fib/", ghost, 0), &noGoal))
}
