package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/edgelink-robotics/busbridge/enabler"
	"github.com/edgelink-robotics/busbridge/enabler/config"
	"github.com/edgelink-robotics/busbridge/enabler/testutil"
	"github.com/edgelink-robotics/busbridge/rpcbus"
)

// demo wires a server and a client instance over the in-memory link and
// drives the requested exchange between them.
type demo struct {
	opts   *cliOptions
	logger rpcbus.Logger

	server *enabler.Enabler
	client *enabler.Enabler

	mu             sync.Mutex
	serviceReplies chan replyEvent
	goalReplies    chan string
	results        chan string
	statuses       chan rpcbus.StatusCode
	feedback       chan string
	cancelReplies  chan string
}

type replyEvent struct {
	json      string
	requestID uint64
}

func newDemo(cfg *config.EnablerConfig, logger rpcbus.Logger, opts *cliOptions) (*demo, error) {
	d := &demo{
		opts:           opts,
		logger:         logger,
		serviceReplies: make(chan replyEvent, 64),
		goalReplies:    make(chan string, 64),
		results:        make(chan string, 64),
		statuses:       make(chan rpcbus.StatusCode, 64),
		feedback:       make(chan string, 64),
		cancelReplies:  make(chan string, 64),
	}

	store := testutil.NewStaticTypeStore().
		WithService(opts.serviceName, opts.serviceName+"_Request_", opts.serviceName+"_Response_").
		WithServiceTopics(opts.serviceName, rpcbus.ProtocolROS2)
	if opts.actionName != "" {
		store.WithAction(opts.actionName).WithActionTopics(opts.actionName)
	}

	serverCfg := *cfg
	serverCfg.ParticipantID = cfg.ParticipantID + ".server"
	clientCfg := *cfg
	clientCfg.ParticipantID = cfg.ParticipantID + ".client"

	d.server = enabler.New(&serverCfg, d.serverCallbacks(store))
	d.client = enabler.New(&clientCfg, d.clientCallbacks(store))
	link := enabler.NewLink(d.server, d.client)
	link.MirrorDiscovery()
	return d, nil
}

// serverCallbacks answers requests and goals with the demo semantics: the
// service sums two integers, the action computes a Fibonacci sequence with
// per-step feedback.
func (d *demo) serverCallbacks(store *testutil.StaticTypeStore) rpcbus.CallbackSet {
	cbs := rpcbus.CallbackSet{}
	cbs.Dds.TypeQuery = store.TypeQuery
	cbs.Dds.TopicQuery = store.TopicQuery
	cbs.Service.ServiceQuery = store.ServiceQuery
	cbs.Action.ActionQuery = store.ActionQuery

	if d.opts.persistencePath != "" {
		cbs.Dds.TypeNotification = d.persistType
	}

	cbs.Service.ServiceRequestNotification = func(serviceName, doc string, requestID uint64, _ int64) {
		var req struct {
			A int64 `json:"a"`
			B int64 `json:"b"`
		}
		if err := json.Unmarshal([]byte(doc), &req); err != nil {
			d.logger.Error("request_decode_failed", "error", err.Error())
			return
		}
		reply := fmt.Sprintf(`{"sum":%d}`, req.A+req.B)
		if err := d.server.SendServiceReply(serviceName, reply, requestID); err != nil {
			d.logger.Error("reply_send_failed", "error", err.Error())
		}
	}

	cbs.Action.ActionGoalRequestNotification = func(actionName, goalJSON string, goalID rpcbus.GoalID, _ int64) bool {
		var goal struct {
			Order int `json:"order"`
		}
		if err := json.Unmarshal([]byte(goalJSON), &goal); err != nil || goal.Order < 1 {
			return false
		}
		go d.executeGoal(actionName, goalID, goal.Order)
		return true
	}

	cbs.Action.ActionCancelRequestNotification = func(actionName string, goalID rpcbus.GoalID, timestamp int64, requestID uint64, _ int64) {
		candidates := d.server.CancelCandidates(actionName, goalID, timestamp)
		code := rpcbus.CancelNone
		if len(candidates) == 0 {
			code = rpcbus.CancelUnknownGoalID
		}
		if err := d.server.SendActionCancelGoalReply(actionName, candidates, code, requestID); err != nil {
			d.logger.Error("cancel_reply_send_failed", "error", err.Error())
		}
		for _, id := range candidates {
			if err := d.server.UpdateActionStatus(actionName, id, rpcbus.StatusCanceled); err != nil {
				d.logger.Error("status_update_failed", "error", err.Error())
			}
			// Stop the executor: no result will follow a cancelled goal.
			d.server.Handler().EraseActionUUID(id, rpcbus.EraseForced)
		}
	}

	return cbs
}

// executeGoal runs one Fibonacci goal: status, feedback per step, result.
func (d *demo) executeGoal(actionName string, goalID rpcbus.GoalID, order int) {
	if err := d.server.UpdateActionStatus(actionName, goalID, rpcbus.StatusExecuting); err != nil {
		d.logger.Error("status_update_failed", "error", err.Error())
		return
	}

	seq := []int64{0, 1}
	for i := 2; i < order; i++ {
		seq = append(seq, seq[i-1]+seq[i-2])
		partial, _ := json.Marshal(map[string]any{"partial_sequence": seq})
		if err := d.server.SendActionFeedback(actionName, string(partial), goalID); err != nil {
			// Goal gone, e.g. cancelled.
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if order < 2 {
		seq = seq[:order]
	}

	result, _ := json.Marshal(map[string]any{"sequence": seq})
	if err := d.server.SendActionResult(actionName, goalID, rpcbus.StatusSucceeded, string(result)); err != nil {
		d.logger.Error("result_send_failed", "error", err.Error())
		return
	}
	if err := d.server.UpdateActionStatus(actionName, goalID, rpcbus.StatusSucceeded); err != nil {
		d.logger.Error("status_update_failed", "error", err.Error())
	}
}

// clientCallbacks collects replies into the demo channels.
func (d *demo) clientCallbacks(store *testutil.StaticTypeStore) rpcbus.CallbackSet {
	cbs := rpcbus.CallbackSet{}
	cbs.Dds.TypeQuery = store.TypeQuery
	cbs.Dds.TopicQuery = store.TopicQuery
	cbs.Service.ServiceQuery = store.ServiceQuery
	cbs.Action.ActionQuery = store.ActionQuery

	cbs.Service.ServiceReplyNotification = func(_, doc string, requestID uint64, _ int64) {
		d.serviceReplies <- replyEvent{json: doc, requestID: requestID}
	}
	cbs.Action.ActionGoalReplyNotification = func(_, doc string, _ rpcbus.GoalID, _ int64) {
		d.goalReplies <- doc
	}
	cbs.Action.ActionFeedbackNotification = func(_, doc string, _ rpcbus.GoalID, _ int64) {
		select {
		case d.feedback <- doc:
		default:
		}
	}
	cbs.Action.ActionStatusNotification = func(_ string, _ rpcbus.GoalID, status rpcbus.StatusCode, _ string, _ int64) {
		select {
		case d.statuses <- status:
		default:
		}
	}
	cbs.Action.ActionResultNotification = func(_, doc string, _ rpcbus.GoalID, _ int64) {
		d.results <- doc
	}
	cbs.Action.ActionCancelReplyNotification = func(_, doc string, _ uint64, _ int64) {
		d.cancelReplies <- doc
	}
	return cbs
}

// persistType stores a received type definition under the persistence path.
func (d *demo) persistType(typeName, idl string, blob []byte, placeholder string) {
	dir := d.opts.persistencePath
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.logger.Error("persistence_dir_failed", "error", err.Error())
		return
	}
	safe := strings.ReplaceAll(typeName, "/", "_")
	_ = os.WriteFile(filepath.Join(dir, safe+".idl"), []byte(idl), 0o644)
	_ = os.WriteFile(filepath.Join(dir, safe+".blob"), blob, 0o644)
	_ = os.WriteFile(filepath.Join(dir, safe+".json"), []byte(placeholder), 0o644)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func (d *demo) deadline() time.Time {
	return time.Now().Add(time.Duration(d.opts.timeoutSecs) * time.Second)
}

func (d *demo) initialWait() {
	if d.opts.requestInitialWait > 0 {
		time.Sleep(time.Duration(d.opts.requestInitialWait) * time.Second)
	}
}

// runService announces the service and exchanges the expected number of
// request/reply pairs. The mode is printed as a label on each exchange.
func (d *demo) runService(mode string) error {
	if err := d.server.AnnounceService(d.opts.serviceName, rpcbus.ProtocolROS2); err != nil {
		return err
	}
	defer func() {
		if err := d.server.RevokeService(d.opts.serviceName); err != nil {
			d.logger.Warn("revoke_failed", "error", err.Error())
		}
	}()

	d.initialWait()
	deadline := d.deadline()

	for i := 0; i < d.opts.expectedRequests; i++ {
		request := fmt.Sprintf(`{"a":%d,"b":%d}`, i, i+1)
		requestID, err := d.client.SendServiceRequest(d.opts.serviceName, request)
		if err != nil {
			return err
		}
		select {
		case reply := <-d.serviceReplies:
			if reply.requestID != requestID {
				return fmt.Errorf("reply correlation mismatch: sent %d, got %d", requestID, reply.requestID)
			}
			fmt.Printf("[%s] %s -> %s\n", mode, request, reply.json)
		case <-time.After(time.Until(deadline)):
			return fmt.Errorf("timed out waiting for reply %d", i+1)
		}
	}
	return nil
}

// runAction announces the action and runs the expected number of goals,
// optionally cancelling them instead of awaiting results.
func (d *demo) runAction(mode string) error {
	if err := d.server.AnnounceAction(d.opts.actionName, rpcbus.ProtocolROS2); err != nil {
		return err
	}
	defer func() {
		if err := d.server.RevokeAction(d.opts.actionName); err != nil {
			d.logger.Warn("revoke_failed", "error", err.Error())
		}
	}()

	d.initialWait()
	deadline := d.deadline()

	for i := 0; i < d.opts.expectedRequests; i++ {
		order := 5 + i
		goalID, err := d.client.SendActionGoal(d.opts.actionName, fmt.Sprintf(`{"order":%d}`, order), rpcbus.ProtocolROS2)
		if err != nil {
			return err
		}

		select {
		case reply := <-d.goalReplies:
			fmt.Printf("[%s] goal %s: %s\n", mode, goalID, reply)
		case <-time.After(time.Until(deadline)):
			return fmt.Errorf("timed out waiting for goal reply")
		}

		if d.opts.cancelRequests {
			if err := d.client.CancelActionGoal(d.opts.actionName, goalID, 0); err != nil {
				return err
			}
			select {
			case reply := <-d.cancelReplies:
				fmt.Printf("[%s] cancel: %s\n", mode, reply)
			case <-time.After(time.Until(deadline)):
				return fmt.Errorf("timed out waiting for cancel reply")
			}
			continue
		}

		if err := d.client.SendActionGetResultRequest(d.opts.actionName, goalID); err != nil {
			return err
		}
		select {
		case result := <-d.results:
			fmt.Printf("[%s] result: %s\n", mode, result)
		case <-time.After(time.Until(deadline)):
			return fmt.Errorf("timed out waiting for result")
		}
	}
	return nil
}
