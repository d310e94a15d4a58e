// Package checkpoint implements durable human-in-the-loop decision
// points. A checkpoint is raised by deterministic triggers, persisted
// before it is surfaced, and resolved exactly once; resolution applies
// the chosen option to the plan under compare-and-swap.
package checkpoint

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shivam-kaushik/co-investigator/session"
)

// Reason identifies what triggered a checkpoint.
type Reason string

const (
	// ReasonZeroResults means a task completed with no evidence.
	ReasonZeroResults Reason = "zero_results"

	// ReasonValidatorConflict means the validator found contradictory
	// evidence across findings.
	ReasonValidatorConflict Reason = "validator_conflict"

	// ReasonFirstTask is the orientation checkpoint raised after plan
	// creation, before the first task runs.
	ReasonFirstTask Reason = "first_task"

	// ReasonTaskFailed means a task execution failed.
	ReasonTaskFailed Reason = "task_failed"
)

// Action is what applying an option does to the plan.
type Action string

const (
	// ActionContinue proceeds with the plan as it stands.
	ActionContinue Action = "continue"

	// ActionSkipTask marks the triggering task skipped and moves on.
	ActionSkipTask Action = "skip_task"

	// ActionSkipRemaining marks every non-terminal task skipped.
	ActionSkipRemaining Action = "skip_remaining"

	// ActionExport stops early and synthesizes from current findings.
	ActionExport Action = "export"

	// ActionAbort discards the plan and returns the session to idle.
	ActionAbort Action = "abort"
)

// IsValid checks if the action is a known value.
func (a Action) IsValid() bool {
	switch a {
	case ActionContinue, ActionSkipTask, ActionSkipRemaining, ActionExport, ActionAbort:
		return true
	}
	return false
}

// Option is one choice presented to the user.
type Option struct {
	// ID identifies the option within its checkpoint (format: opt-{n}).
	ID string `json:"id"`

	// Label is the text shown to the user.
	Label string `json:"label"`

	// Action is what applying this option does.
	Action Action `json:"action"`

	// TaskID names the task the action targets, for task-level actions.
	TaskID string `json:"task_id,omitempty"`

	// TouchedTaskIDs lists the tasks whose status must be unchanged
	// since checkpoint creation for this option to apply safely.
	TouchedTaskIDs []string `json:"touched_task_ids,omitempty"`
}

// Status is the lifecycle state of a checkpoint.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusExpired  Status = "expired"
)

// Checkpoint is a persisted decision point.
type Checkpoint struct {
	// ID uniquely identifies the checkpoint (format: cp-{uuid8}).
	ID string `json:"id"`

	// SessionID is the session this checkpoint belongs to.
	SessionID string `json:"session_id"`

	// PlanID is the plan active when the checkpoint was raised.
	PlanID string `json:"plan_id"`

	// Reason is the trigger that raised the checkpoint.
	Reason Reason `json:"reason"`

	// TriggeredByTaskID names the task that tripped the trigger, if any.
	TriggeredByTaskID string `json:"triggered_by_task_id,omitempty"`

	// Prompt is the question surfaced to the user.
	Prompt string `json:"prompt"`

	// Options are the choices presented, between three and five.
	Options []Option `json:"options"`

	// Snapshot records every task status at creation time. Staleness is
	// judged against this, but only for the tasks an option touches.
	Snapshot map[string]session.TaskStatus `json:"snapshot"`

	// Status is the current checkpoint state.
	Status Status `json:"status"`

	// ResolvedOptionID records which option was applied.
	ResolvedOptionID string `json:"resolved_option_id,omitempty"`

	// CreatedAt is when the checkpoint was raised.
	CreatedAt time.Time `json:"created_at"`

	// ResolvedAt is when the checkpoint was resolved.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// New creates a pending checkpoint with a status snapshot of the plan.
func New(sess *session.Session, reason Reason, taskID string) *Checkpoint {
	cp := &Checkpoint{
		ID:                fmt.Sprintf("cp-%s", uuid.New().String()[:8]),
		SessionID:         sess.ID,
		Reason:            reason,
		TriggeredByTaskID: taskID,
		Status:            StatusPending,
		CreatedAt:         time.Now().UTC(),
	}
	if sess.Plan != nil {
		cp.PlanID = sess.Plan.ID
		cp.Snapshot = sess.Plan.Statuses()
	}
	return cp
}

// OptionByID returns the option with the given ID, or nil.
func (c *Checkpoint) OptionByID(id string) *Option {
	for i := range c.Options {
		if c.Options[i].ID == id {
			return &c.Options[i]
		}
	}
	return nil
}

// EvaluateOutcome checks the post-execution triggers and returns the
// reason for the first one that fires: failure, then validator
// conflict, then zero results.
func EvaluateOutcome(task *session.Task, conflict bool) (Reason, bool) {
	if task == nil || task.Result == nil {
		return "", false
	}
	switch {
	case task.Status == session.TaskStatusFailed:
		return ReasonTaskFailed, true
	case conflict:
		return ReasonValidatorConflict, true
	case task.Status == session.TaskStatusCompleted && len(task.Result.Evidence) == 0:
		return ReasonZeroResults, true
	}
	return "", false
}
