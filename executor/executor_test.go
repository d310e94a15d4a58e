package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shivam-kaushik/co-investigator/session"
)

// scriptedRunner returns canned results keyed by task ID.
type scriptedRunner struct {
	results map[string]*session.TaskResult
	errs    map[string]error
	calls   []string
}

func (r *scriptedRunner) Run(_ context.Context, _ *session.Session, task *session.Task) (*session.TaskResult, error) {
	r.calls = append(r.calls, task.ID)
	if err := r.errs[task.ID]; err != nil {
		return nil, err
	}
	if res := r.results[task.ID]; res != nil {
		return res, nil
	}
	return &session.TaskResult{
		Summary:  "ran " + task.ID,
		Evidence: []session.Evidence{{ID: task.ID + "-ev", Source: "openalex", Title: "record for " + task.ID}},
	}, nil
}

func executingSession(t *testing.T, taskCount int) *session.Session {
	t.Helper()
	sess := session.NewWithID("sess-exec0001")
	sess.ResearchGoal = "statin use and dementia incidence"
	if err := sess.Transition(session.StatusPlanning); err != nil {
		t.Fatal(err)
	}
	tasks := make([]session.Task, taskCount)
	for i := range tasks {
		tasks[i] = session.Task{Description: fmt.Sprintf("step %d", i+1), Tool: "openalex"}
	}
	sess.Plan = session.NewPlan(sess.ResearchGoal, tasks)
	if err := sess.Transition(session.StatusExecuting); err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestExecuteNextRunsOneTask(t *testing.T) {
	runner := &scriptedRunner{}
	e := New(runner, Config{ConfirmEachStep: true, HaltOnFailure: true}, nil)
	sess := executingSession(t, 3)

	task, err := e.ExecuteNext(context.Background(), sess)
	if err != nil {
		t.Fatalf("ExecuteNext failed: %v", err)
	}

	if len(runner.calls) != 1 || runner.calls[0] != "task-1" {
		t.Errorf("runner calls = %v, want [task-1]", runner.calls)
	}
	if task.Status != session.TaskStatusCompleted {
		t.Errorf("task status = %s, want completed", task.Status)
	}
	if sess.Cursor.Index != 1 {
		t.Errorf("cursor index = %d, want 1", sess.Cursor.Index)
	}
	if !sess.Cursor.AwaitingConfirmation || sess.Status != session.StatusAwaitingConfirmation {
		t.Error("confirmation gate not armed after step")
	}
	if len(sess.Findings) != 1 || sess.Findings[0].TaskID != "task-1" {
		t.Errorf("findings = %+v, want one for task-1", sess.Findings)
	}
}

func TestExecuteNextWithoutConfirmationGate(t *testing.T) {
	runner := &scriptedRunner{}
	e := New(runner, Config{ConfirmEachStep: false, HaltOnFailure: true}, nil)
	sess := executingSession(t, 3)

	if _, err := e.ExecuteNext(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	if sess.Cursor.AwaitingConfirmation {
		t.Error("confirmation armed with gate off")
	}
	if sess.Status != session.StatusExecuting {
		t.Errorf("status = %s, want executing", sess.Status)
	}
}

func TestExecuteNextLastTaskExhausts(t *testing.T) {
	runner := &scriptedRunner{}
	e := New(runner, Config{ConfirmEachStep: true, HaltOnFailure: true}, nil)
	sess := executingSession(t, 1)

	if _, err := e.ExecuteNext(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	if sess.Status != session.StatusExhausted {
		t.Errorf("status = %s, want exhausted", sess.Status)
	}
	if sess.Cursor.AwaitingConfirmation {
		t.Error("no confirmation to await after the last task")
	}
}

func TestExecuteNextFailureHalts(t *testing.T) {
	boom := errors.New("upstream 500")
	runner := &scriptedRunner{errs: map[string]error{"task-1": boom}}
	e := New(runner, Config{ConfirmEachStep: true, HaltOnFailure: true}, nil)
	sess := executingSession(t, 2)

	task, err := e.ExecuteNext(context.Background(), sess)

	var taskErr *TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("error = %v, want *TaskError", err)
	}
	if taskErr.TaskID != "task-1" || !errors.Is(err, boom) {
		t.Errorf("TaskError = %+v", taskErr)
	}
	if task.Status != session.TaskStatusFailed {
		t.Errorf("task status = %s, want failed", task.Status)
	}
	if task.Result == nil || task.Result.Error == "" {
		t.Error("failure not recorded on the result")
	}
	if sess.Cursor.Index != 0 {
		t.Errorf("cursor advanced past a failed task: index = %d", sess.Cursor.Index)
	}
}

func TestExecuteNextFailureAdvancesWhenNotHalting(t *testing.T) {
	runner := &scriptedRunner{errs: map[string]error{"task-1": errors.New("nope")}}
	e := New(runner, Config{ConfirmEachStep: false, HaltOnFailure: false}, nil)
	sess := executingSession(t, 2)

	if _, err := e.ExecuteNext(context.Background(), sess); err == nil {
		t.Fatal("expected task error")
	}
	if sess.Cursor.Index != 1 {
		t.Errorf("cursor index = %d, want 1", sess.Cursor.Index)
	}
}

func TestExecuteNextSkipsTerminalTaskAtCursor(t *testing.T) {
	runner := &scriptedRunner{}
	e := New(runner, Config{ConfirmEachStep: false, HaltOnFailure: true}, nil)
	sess := executingSession(t, 2)
	// A checkpoint decision skipped the current task without moving
	// the cursor
	sess.Plan.Tasks[0].Status = session.TaskStatusSkipped

	if _, err := e.ExecuteNext(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	if len(runner.calls) != 1 || runner.calls[0] != "task-2" {
		t.Errorf("runner calls = %v, want [task-2]", runner.calls)
	}
}

func TestPauseResumeRestoresCursorExactly(t *testing.T) {
	runner := &scriptedRunner{}
	e := New(runner, Config{ConfirmEachStep: true, HaltOnFailure: true}, nil)
	sess := executingSession(t, 3)

	if _, err := e.ExecuteNext(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	// Awaiting confirmation at index 1; a question pauses execution
	if err := e.PauseForQuestion(sess); err != nil {
		t.Fatal(err)
	}

	if sess.Status != session.StatusPausedQuestion || !sess.Cursor.PausedQuestion {
		t.Fatal("pause did not take effect")
	}
	if _, err := e.ExecuteNext(context.Background(), sess); err == nil {
		t.Error("ExecuteNext should refuse to run while paused")
	}

	if err := e.ResumeFromQuestion(sess); err != nil {
		t.Fatal(err)
	}

	if sess.Cursor.Index != 1 {
		t.Errorf("cursor index = %d, want 1", sess.Cursor.Index)
	}
	if !sess.Cursor.AwaitingConfirmation || sess.Status != session.StatusAwaitingConfirmation {
		t.Error("confirmation flag not restored on resume")
	}
	if sess.Cursor.PausedQuestion || sess.Cursor.Snapshot != nil {
		t.Error("pause state not cleared on resume")
	}
}

func TestExecuteNextZeroResultsStillCompletes(t *testing.T) {
	runner := &scriptedRunner{
		results: map[string]*session.TaskResult{
			"task-1": {Summary: "no matching records", Evidence: nil},
		},
	}
	e := New(runner, Config{ConfirmEachStep: false, HaltOnFailure: true}, nil)
	sess := executingSession(t, 2)

	task, err := e.ExecuteNext(context.Background(), sess)
	if err != nil {
		t.Fatalf("zero results is not a failure: %v", err)
	}
	if task.Status != session.TaskStatusCompleted {
		t.Errorf("task status = %s, want completed", task.Status)
	}
	if len(task.Result.Evidence) != 0 {
		t.Errorf("evidence = %v, want empty", task.Result.Evidence)
	}
}
