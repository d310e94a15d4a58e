package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/shivam-kaushik/co-investigator/session"
)

// fixedOptions is an OptionGenerator returning a canned set, the way
// the fallback path does.
type fixedOptions struct{}

func (f *fixedOptions) Generate(_ context.Context, sess *session.Session, reason Reason, taskID string) ([]Option, string, error) {
	opts := FallbackOptions()
	finalizeOptions(opts, sess, taskID)
	return opts, buildPrompt(sess, reason, taskID), nil
}

func newTestSession(t *testing.T, store session.Store) *session.Session {
	t.Helper()
	sess := session.NewWithID("sess-cptest01")
	sess.ResearchGoal = "CFTR modulator response in rare genotypes"
	if err := sess.Transition(session.StatusPlanning); err != nil {
		t.Fatal(err)
	}
	sess.Plan = session.NewPlan(sess.ResearchGoal, []session.Task{
		{Description: "search literature", Tool: "openalex"},
		{Description: "check variant classifications", Tool: "clingen"},
		{Description: "scan preprints", Tool: "biorxiv"},
	})
	if err := sess.Transition(session.StatusExecuting); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	return sess
}

func newTestManager(t *testing.T) (*Manager, session.Store, Store) {
	t.Helper()
	sessions := session.NewMemStore()
	cps := NewMemStore()
	return NewManager(cps, sessions, &fixedOptions{}, nil), sessions, cps
}

func raise(t *testing.T, m *Manager, sessions session.Store, sess *session.Session, reason Reason, taskID string) *Checkpoint {
	t.Helper()
	ctx := context.Background()
	cp, err := m.Raise(ctx, sess, reason, taskID)
	if err != nil {
		t.Fatalf("Raise failed: %v", err)
	}
	_, rev, err := sessions.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := sessions.Update(ctx, sess, rev); err != nil {
		t.Fatalf("persist session after raise: %v", err)
	}
	return cp
}

func optionByAction(t *testing.T, cp *Checkpoint, action Action) *Option {
	t.Helper()
	for i := range cp.Options {
		if cp.Options[i].Action == action {
			return &cp.Options[i]
		}
	}
	t.Fatalf("checkpoint has no %s option", action)
	return nil
}

func TestRaisePersistsBeforeSurfacing(t *testing.T) {
	ctx := context.Background()
	m, sessions, cps := newTestManager(t)
	sess := newTestSession(t, sessions)

	cp := raise(t, m, sessions, sess, ReasonZeroResults, "task-1")

	stored, err := cps.Get(ctx, cp.ID)
	if err != nil {
		t.Fatalf("checkpoint not durable at surface time: %v", err)
	}
	if stored.Status != StatusPending {
		t.Errorf("stored status = %s, want pending", stored.Status)
	}
	if len(stored.Options) < 3 || len(stored.Options) > 5 {
		t.Errorf("option count = %d, want 3-5", len(stored.Options))
	}
	if stored.Snapshot["task-1"] != session.TaskStatusPending {
		t.Errorf("snapshot missing task statuses: %v", stored.Snapshot)
	}
	if sess.ActiveCheckpointID != cp.ID {
		t.Errorf("session not bound to checkpoint")
	}
	if sess.Status != session.StatusCheckpoint {
		t.Errorf("session status = %s, want checkpoint", sess.Status)
	}
}

func TestResolveContinue(t *testing.T) {
	ctx := context.Background()
	m, sessions, _ := newTestManager(t)
	sess := newTestSession(t, sessions)
	cp := raise(t, m, sessions, sess, ReasonFirstTask, "task-1")

	opt := optionByAction(t, cp, ActionContinue)
	res, err := m.Resolve(ctx, sess.ID, cp.ID, opt.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if res.Session.Status != session.StatusExecuting {
		t.Errorf("status = %s, want executing", res.Session.Status)
	}
	if res.Session.ActiveCheckpointID != "" {
		t.Error("active checkpoint not cleared")
	}
	if res.Checkpoint.Status != StatusResolved {
		t.Errorf("checkpoint status = %s, want resolved", res.Checkpoint.Status)
	}
}

func TestResolveIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	m, sessions, _ := newTestManager(t)
	sess := newTestSession(t, sessions)
	cp := raise(t, m, sessions, sess, ReasonZeroResults, "task-1")

	opt := optionByAction(t, cp, ActionContinue)
	if _, err := m.Resolve(ctx, sess.ID, cp.ID, opt.ID); err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}

	// Same option again: no-op success
	res, err := m.Resolve(ctx, sess.ID, cp.ID, opt.ID)
	if err != nil {
		t.Fatalf("replay Resolve failed: %v", err)
	}
	if !res.Replayed {
		t.Error("replay not flagged")
	}

	// Different option: conflict
	other := optionByAction(t, cp, ActionAbort)
	if _, err := m.Resolve(ctx, sess.ID, cp.ID, other.ID); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("different option after resolve = %v, want ErrAlreadyResolved", err)
	}
}

func TestResolveStaleWhenTouchedTaskDrifted(t *testing.T) {
	ctx := context.Background()
	m, sessions, _ := newTestManager(t)
	sess := newTestSession(t, sessions)
	cp := raise(t, m, sessions, sess, ReasonZeroResults, "task-1")

	// The touched task completes behind the checkpoint's back
	sess.Plan.TaskByID("task-1").Status = session.TaskStatusCompleted
	_, rev, err := sessions.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := sessions.Update(ctx, sess, rev); err != nil {
		t.Fatal(err)
	}

	opt := optionByAction(t, cp, ActionContinue)
	_, err = m.Resolve(ctx, sess.ID, cp.ID, opt.ID)
	if !IsStale(err) {
		t.Fatalf("Resolve = %v, want StaleError", err)
	}

	var stale *StaleError
	errors.As(err, &stale)
	if len(stale.Drifted) != 1 || stale.Drifted[0].TaskID != "task-1" {
		t.Errorf("drift = %+v", stale.Drifted)
	}
	if stale.Drifted[0].Actual != session.TaskStatusCompleted {
		t.Errorf("drift actual = %s", stale.Drifted[0].Actual)
	}
}

func TestResolveIgnoresUntouchedDrift(t *testing.T) {
	ctx := context.Background()
	m, sessions, _ := newTestManager(t)
	sess := newTestSession(t, sessions)
	cp := raise(t, m, sessions, sess, ReasonZeroResults, "task-2")

	// A task the continue option does not touch drifts
	sess.Plan.TaskByID("task-3").Status = session.TaskStatusSkipped
	_, rev, err := sessions.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := sessions.Update(ctx, sess, rev); err != nil {
		t.Fatal(err)
	}

	opt := optionByAction(t, cp, ActionContinue)
	if _, err := m.Resolve(ctx, sess.ID, cp.ID, opt.ID); err != nil {
		t.Errorf("drift outside touched set should not matter: %v", err)
	}
}

func TestResolveSkipRemainingAndExport(t *testing.T) {
	ctx := context.Background()
	m, sessions, _ := newTestManager(t)
	sess := newTestSession(t, sessions)
	sess.Plan.Tasks[0].Status = session.TaskStatusCompleted
	cp := raise(t, m, sessions, sess, ReasonValidatorConflict, "task-2")

	opt := optionByAction(t, cp, ActionExport)
	res, err := m.Resolve(ctx, sess.ID, cp.ID, opt.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !res.Export {
		t.Error("export flag not set")
	}
	if res.Session.Status != session.StatusExhausted {
		t.Errorf("status = %s, want exhausted", res.Session.Status)
	}
	for _, task := range res.Session.Plan.Tasks[1:] {
		if task.Status != session.TaskStatusSkipped {
			t.Errorf("task %s status = %s, want skipped", task.ID, task.Status)
		}
	}
	// Completed work is untouched
	if res.Session.Plan.Tasks[0].Status != session.TaskStatusCompleted {
		t.Error("completed task was rewritten")
	}
}

// skipOptions adds a task-level skip alongside the fallback set.
type skipOptions struct{}

func (skipOptions) Generate(_ context.Context, sess *session.Session, reason Reason, taskID string) ([]Option, string, error) {
	opts := append([]Option{
		{Label: "Skip this step", Action: ActionSkipTask, TaskID: taskID},
	}, FallbackOptions()...)
	finalizeOptions(opts, sess, taskID)
	return opts, buildPrompt(sess, reason, taskID), nil
}

func TestResolveSkipTask(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewMemStore()
	m := NewManager(NewMemStore(), sessions, skipOptions{}, nil)
	sess := newTestSession(t, sessions)
	cp := raise(t, m, sessions, sess, ReasonZeroResults, "task-1")

	opt := optionByAction(t, cp, ActionSkipTask)
	res, err := m.Resolve(ctx, sess.ID, cp.ID, opt.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.SkipUnchanged {
		t.Error("skipping a pending task should change its status")
	}
	if got := res.Session.Plan.TaskByID("task-1").Status; got != session.TaskStatusSkipped {
		t.Errorf("task-1 status = %s, want skipped", got)
	}
	if cur := res.Session.CurrentTask(); cur == nil || cur.ID != "task-2" {
		t.Errorf("cursor did not move past the skipped task: %+v", cur)
	}
}

func TestResolveSkipTaskLeavesTerminalStatus(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewMemStore()
	m := NewManager(NewMemStore(), sessions, skipOptions{}, nil)
	sess := newTestSession(t, sessions)

	// The task fails before the checkpoint is raised, so the snapshot
	// records it as failed and the skip option is not stale.
	sess.Plan.TaskByID("task-1").Status = session.TaskStatusFailed
	cp := raise(t, m, sessions, sess, ReasonTaskFailed, "task-1")

	opt := optionByAction(t, cp, ActionSkipTask)
	res, err := m.Resolve(ctx, sess.ID, cp.ID, opt.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !res.SkipUnchanged {
		t.Error("skip of a failed task should be surfaced as unchanged")
	}
	if got := res.Session.Plan.TaskByID("task-1").Status; got != session.TaskStatusFailed {
		t.Errorf("task-1 status = %s, want failed left alone", got)
	}
	if res.Session.Status != session.StatusExecuting {
		t.Errorf("session status = %s, want executing", res.Session.Status)
	}
	if cur := res.Session.CurrentTask(); cur == nil || cur.ID != "task-2" {
		t.Errorf("cursor did not move past the failed task: %+v", cur)
	}
}

func TestResolveAbort(t *testing.T) {
	ctx := context.Background()
	m, sessions, _ := newTestManager(t)
	sess := newTestSession(t, sessions)
	cp := raise(t, m, sessions, sess, ReasonTaskFailed, "task-1")

	opt := optionByAction(t, cp, ActionAbort)
	res, err := m.Resolve(ctx, sess.ID, cp.ID, opt.ID)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !res.Aborted {
		t.Error("abort flag not set")
	}
	if res.Session.Status != session.StatusIdle || res.Session.Plan != nil {
		t.Errorf("session not reset: status=%s plan=%v", res.Session.Status, res.Session.Plan)
	}
}

func TestResolveRejectsBadInputs(t *testing.T) {
	ctx := context.Background()
	m, sessions, _ := newTestManager(t)
	sess := newTestSession(t, sessions)
	cp := raise(t, m, sessions, sess, ReasonZeroResults, "task-1")

	if _, err := m.Resolve(ctx, sess.ID, "cp-missing0", "opt-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing checkpoint = %v, want ErrNotFound", err)
	}
	if _, err := m.Resolve(ctx, "sess-other00", cp.ID, "opt-1"); !errors.Is(err, ErrSessionMismatch) {
		t.Errorf("wrong session = %v, want ErrSessionMismatch", err)
	}
	if _, err := m.Resolve(ctx, sess.ID, cp.ID, "opt-99"); !errors.Is(err, ErrUnknownOption) {
		t.Errorf("unknown option = %v, want ErrUnknownOption", err)
	}
}

func TestEvaluateOutcome(t *testing.T) {
	completed := func(evidence int) *session.Task {
		t := &session.Task{ID: "task-1", Status: session.TaskStatusCompleted, Result: &session.TaskResult{}}
		for i := 0; i < evidence; i++ {
			t.Result.Evidence = append(t.Result.Evidence, session.Evidence{ID: "e"})
		}
		return t
	}
	failed := &session.Task{ID: "task-1", Status: session.TaskStatusFailed, Result: &session.TaskResult{Error: "boom"}}

	tests := []struct {
		name       string
		task       *session.Task
		conflict   bool
		wantReason Reason
		wantFire   bool
	}{
		{"failure wins", failed, false, ReasonTaskFailed, true},
		{"conflict", completed(3), true, ReasonValidatorConflict, true},
		{"zero results", completed(0), false, ReasonZeroResults, true},
		{"clean completion", completed(3), false, "", false},
		{"no result", &session.Task{Status: session.TaskStatusCompleted}, false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, fired := EvaluateOutcome(tt.task, tt.conflict)
			if fired != tt.wantFire || reason != tt.wantReason {
				t.Errorf("EvaluateOutcome = (%s, %v), want (%s, %v)", reason, fired, tt.wantReason, tt.wantFire)
			}
		})
	}
}

func TestFallbackOptionsShape(t *testing.T) {
	sess := session.NewWithID("sess-opts0001")
	sess.Plan = session.NewPlan("goal", []session.Task{
		{Description: "a", Tool: "openalex"},
		{Description: "b", Tool: "pubmed"},
	})
	sess.Plan.Tasks[0].Status = session.TaskStatusCompleted

	opts := FallbackOptions()
	finalizeOptions(opts, sess, "task-2")

	if len(opts) < 3 || len(opts) > 5 {
		t.Fatalf("fallback option count = %d", len(opts))
	}
	for i, opt := range opts {
		if opt.ID == "" {
			t.Errorf("option %d missing ID", i)
		}
		switch opt.Action {
		case ActionSkipRemaining, ActionExport:
			// Only the non-terminal task is touched
			if len(opt.TouchedTaskIDs) != 1 || opt.TouchedTaskIDs[0] != "task-2" {
				t.Errorf("%s touched = %v, want [task-2]", opt.Action, opt.TouchedTaskIDs)
			}
		case ActionAbort:
			if len(opt.TouchedTaskIDs) != 0 {
				t.Errorf("abort should touch nothing, got %v", opt.TouchedTaskIDs)
			}
		}
	}
}
