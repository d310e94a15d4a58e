// Package executor runs research plan tasks one at a time. Execution
// is pausable: a question mid-plan snapshots the cursor and answering
// resumes from exactly where it left off.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shivam-kaushik/co-investigator/session"
)

// TaskRunner executes a single task and returns its result. The
// sources package provides the production implementation, dispatching
// on the task's tool name.
type TaskRunner interface {
	Run(ctx context.Context, sess *session.Session, task *session.Task) (*session.TaskResult, error)
}

// Config controls execution pacing.
type Config struct {
	// ConfirmEachStep gates every task on an explicit go-ahead.
	ConfirmEachStep bool `yaml:"confirm_each_step"`

	// HaltOnFailure keeps the cursor on a failed task until a
	// checkpoint decision moves it. When false the cursor advances
	// past failures.
	HaltOnFailure bool `yaml:"halt_on_failure"`

	// TaskTimeout bounds a single task execution.
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

// DefaultConfig returns the execution defaults.
func DefaultConfig() Config {
	return Config{
		ConfirmEachStep: true,
		HaltOnFailure:   true,
		TaskTimeout:     60 * time.Second,
	}
}

// Executor advances a session through its plan, one task per turn.
type Executor struct {
	runner TaskRunner
	config Config
	logger *slog.Logger
}

// New creates an executor.
func New(runner TaskRunner, config Config, logger *slog.Logger) *Executor {
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = DefaultConfig().TaskTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{runner: runner, config: config, logger: logger}
}

// ExecuteNext runs the task at the cursor. Exactly one task runs per
// call. On success the cursor advances and, when step confirmation is
// on and tasks remain, the session awaits a go-ahead. On failure the
// task is marked failed, a *TaskError is returned alongside the task,
// and the cursor stays put when HaltOnFailure is set.
func (e *Executor) ExecuteNext(ctx context.Context, sess *session.Session) (*session.Task, error) {
	if sess.Plan == nil {
		return nil, fmt.Errorf("no active plan")
	}
	if sess.Cursor.PausedQuestion {
		return nil, fmt.Errorf("execution is paused for a question")
	}

	task := sess.CurrentTask()
	if task == nil {
		return nil, sess.Transition(session.StatusExhausted)
	}
	if task.Status.IsTerminal() {
		// A checkpoint decision may have skipped the current task
		// without moving the cursor.
		sess.Cursor.Index++
		if task = sess.CurrentTask(); task == nil {
			return nil, sess.Transition(session.StatusExhausted)
		}
	}

	if err := sess.Transition(session.StatusExecuting); err != nil {
		return nil, err
	}
	sess.Cursor.AwaitingConfirmation = false

	task.Status = session.TaskStatusInProgress
	task.Attempts++

	e.logger.Info("Executing task",
		"session_id", sess.ID,
		"task_id", task.ID,
		"tool", task.Tool,
		"attempt", task.Attempts)

	runCtx, cancel := context.WithTimeout(ctx, e.config.TaskTimeout)
	result, err := e.runner.Run(runCtx, sess, task)
	cancel()

	if err != nil {
		taskErr := &TaskError{TaskID: task.ID, Tool: task.Tool, Err: err}
		task.Status = session.TaskStatusFailed
		task.Result = &session.TaskResult{
			Error:       taskErr.Error(),
			CompletedAt: time.Now().UTC(),
		}
		if !e.config.HaltOnFailure {
			sess.Cursor.Index++
		}
		e.logger.Warn("Task failed",
			"session_id", sess.ID,
			"task_id", task.ID,
			"tool", task.Tool,
			"error", err)
		return task, taskErr
	}

	if result == nil {
		result = &session.TaskResult{}
	}
	result.CompletedAt = time.Now().UTC()
	task.Status = session.TaskStatusCompleted
	task.Result = result

	if result.Summary != "" && len(result.Evidence) > 0 {
		sess.Findings = append(sess.Findings, session.Finding{
			TaskID:    task.ID,
			Statement: result.Summary,
			Evidence:  result.Evidence,
		})
	}

	sess.Cursor.Index++

	if sess.CurrentTask() == nil || sess.Plan.Exhausted() {
		return task, sess.Transition(session.StatusExhausted)
	}
	if e.config.ConfirmEachStep {
		sess.Cursor.AwaitingConfirmation = true
		return task, sess.Transition(session.StatusAwaitingConfirmation)
	}
	return task, nil
}

// PauseForQuestion suspends execution while a question is answered.
// The cursor position is snapshotted for exact restoration.
func (e *Executor) PauseForQuestion(sess *session.Session) error {
	if err := sess.Transition(session.StatusPausedQuestion); err != nil {
		return err
	}
	sess.Cursor.Pause()
	return nil
}

// ResumeFromQuestion restores the pre-pause cursor and returns the
// session to the state the snapshot implies.
func (e *Executor) ResumeFromQuestion(sess *session.Session) error {
	sess.Cursor.Resume()
	if sess.Cursor.AwaitingConfirmation {
		return sess.Transition(session.StatusAwaitingConfirmation)
	}
	return sess.Transition(session.StatusExecuting)
}
