package brewing

import (
	"context"

	"github.com/looplab/fsm"
)

const (
	RunStateCounting   = "counting"
	RunStateChecking   = "checking"
	RunStateResolving  = "resolving"
	RunStateBrewing    = "brewing"
	RunStateRecounting = "recounting"
	RunStateReady      = "ready"
	RunStateWaiting    = "waiting"
	RunStateCompleted  = "completed"
	RunStateDeferred   = "deferred"
	RunStateFailed     = "failed"
)

const (
	RunEventCounted   = "counted"
	RunEventFeasible  = "feasible"
	RunEventDefer     = "defer"
	RunEventResolved  = "resolved"
	RunEventCooked    = "cooked"
	RunEventRecounted = "recounted"
	RunEventAnnounced = "announced"
	RunEventComplete  = "complete"
	RunEventFail      = "fail"
)

// run tracks one Execute call. Once it has entered brewing the physical
// action may have happened, and the message must be committed whatever
// follows.
type run struct {
	fsm     *fsm.FSM
	brewed  bool
	orderID string
}

func newRun(orderID string) *run {
	r := &run{orderID: orderID}
	r.fsm = fsm.NewFSM(
		RunStateCounting,
		fsm.Events{
			{Name: RunEventCounted, Src: []string{RunStateCounting}, Dst: RunStateChecking},
			{Name: RunEventFeasible, Src: []string{RunStateChecking}, Dst: RunStateResolving},
			{Name: RunEventDefer, Src: []string{RunStateChecking}, Dst: RunStateDeferred},
			{Name: RunEventResolved, Src: []string{RunStateResolving}, Dst: RunStateBrewing},
			{Name: RunEventCooked, Src: []string{RunStateBrewing}, Dst: RunStateRecounting},
			{Name: RunEventRecounted, Src: []string{RunStateRecounting}, Dst: RunStateReady},
			{Name: RunEventAnnounced, Src: []string{RunStateReady}, Dst: RunStateWaiting},
			{Name: RunEventComplete, Src: []string{RunStateWaiting}, Dst: RunStateCompleted},
			{
				Name: RunEventFail,
				Src: []string{
					RunStateCounting, RunStateChecking, RunStateResolving, RunStateBrewing,
					RunStateRecounting, RunStateReady, RunStateWaiting,
				},
				Dst: RunStateFailed,
			},
		},
		fsm.Callbacks{
			"enter_" + RunStateBrewing: func(_ context.Context, _ *fsm.Event) {
				r.brewed = true
			},
		},
	)
	return r
}

func (r *run) advance(ctx context.Context, event string) error {
	return r.fsm.Event(ctx, event)
}

func (r *run) Current() string { return r.fsm.Current() }

// mustCommit is the commit directive for the message that started this run.
func (r *run) mustCommit() bool { return r.brewed }
