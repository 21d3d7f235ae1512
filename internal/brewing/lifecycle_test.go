package brewing

import (
	"context"
	"testing"
)

func TestRun_CommitFollowsBrewing(t *testing.T) {
	ctx := context.Background()
	r := newRun("order-1")

	if r.Current() != RunStateCounting {
		t.Fatalf("initial state = %s, want %s", r.Current(), RunStateCounting)
	}

	for _, ev := range []string{RunEventCounted, RunEventFeasible} {
		if err := r.advance(ctx, ev); err != nil {
			t.Fatalf("%s error: %v", ev, err)
		}
	}
	if r.mustCommit() {
		t.Error("mustCommit before brewing")
	}

	if err := r.advance(ctx, RunEventResolved); err != nil {
		t.Fatalf("resolved error: %v", err)
	}
	if !r.mustCommit() {
		t.Error("mustCommit = false once brewing")
	}

	if err := r.advance(ctx, RunEventFail); err != nil {
		t.Fatalf("fail error: %v", err)
	}
	if r.Current() != RunStateFailed {
		t.Errorf("state = %s, want %s", r.Current(), RunStateFailed)
	}
	if !r.mustCommit() {
		t.Error("a failure after brewing must still commit")
	}
}

func TestRun_FullFlow(t *testing.T) {
	ctx := context.Background()
	r := newRun("order-1")

	events := []string{
		RunEventCounted, RunEventFeasible, RunEventResolved, RunEventCooked,
		RunEventRecounted, RunEventAnnounced, RunEventComplete,
	}
	for _, ev := range events {
		if err := r.advance(ctx, ev); err != nil {
			t.Fatalf("%s error: %v", ev, err)
		}
	}
	if r.Current() != RunStateCompleted {
		t.Errorf("state = %s, want %s", r.Current(), RunStateCompleted)
	}
}

func TestRun_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup []string
		event string
	}{
		{"brew before checking", nil, RunEventResolved},
		{"defer after feasible", []string{RunEventCounted, RunEventFeasible}, RunEventDefer},
		{"fail when deferred", []string{RunEventCounted, RunEventDefer}, RunEventFail},
		{"complete before announcing", []string{RunEventCounted, RunEventFeasible, RunEventResolved}, RunEventComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			r := newRun("order-1")
			for _, ev := range tt.setup {
				if err := r.advance(ctx, ev); err != nil {
					t.Fatalf("setup %s error: %v", ev, err)
				}
			}
			if err := r.advance(ctx, tt.event); err == nil {
				t.Errorf("%s from %s should fail", tt.event, r.Current())
			}
		})
	}
}
