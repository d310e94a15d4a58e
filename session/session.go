// Package session defines the durable conversation state for the
// co-investigator: the session record, its research plan, and the
// execution cursor that tracks where in the plan a conversation is.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a session.
type Status string

const (
	// StatusIdle means no research goal is active.
	StatusIdle Status = "idle"

	// StatusPlanning means a plan is being created for a new goal.
	StatusPlanning Status = "planning"

	// StatusExecuting means plan tasks are being run.
	StatusExecuting Status = "executing"

	// StatusAwaitingConfirmation means the next task is gated on an
	// explicit go-ahead from the user.
	StatusAwaitingConfirmation Status = "awaiting_confirmation"

	// StatusPausedQuestion means execution is paused while a user
	// question is answered. The cursor snapshot is restored on resume.
	StatusPausedQuestion Status = "paused_question"

	// StatusCheckpoint means a decision point is pending user resolution.
	StatusCheckpoint Status = "checkpoint"

	// StatusExhausted means every task reached a terminal status.
	StatusExhausted Status = "exhausted"

	// StatusSynthesizing means findings are being composed into a report.
	StatusSynthesizing Status = "synthesizing"

	// StatusFollowup means the report is done and the session answers
	// follow-up questions about it.
	StatusFollowup Status = "qa_followup"
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdle, StatusPlanning, StatusExecuting, StatusAwaitingConfirmation,
		StatusPausedQuestion, StatusCheckpoint, StatusExhausted,
		StatusSynthesizing, StatusFollowup:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if transitioning to the target status is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	allowed := map[Status][]Status{
		StatusIdle:     {StatusPlanning},
		StatusPlanning: {StatusExecuting, StatusAwaitingConfirmation, StatusCheckpoint, StatusIdle},
		StatusExecuting: {StatusExecuting, StatusAwaitingConfirmation, StatusPausedQuestion,
			StatusCheckpoint, StatusExhausted},
		StatusAwaitingConfirmation: {StatusExecuting, StatusPausedQuestion, StatusCheckpoint, StatusExhausted},
		StatusPausedQuestion:       {StatusExecuting, StatusAwaitingConfirmation, StatusPausedQuestion},
		StatusCheckpoint:           {StatusExecuting, StatusAwaitingConfirmation, StatusExhausted, StatusCheckpoint, StatusIdle},
		StatusExhausted:            {StatusSynthesizing, StatusCheckpoint},
		StatusSynthesizing:         {StatusFollowup},
		StatusFollowup:             {StatusFollowup, StatusIdle, StatusPlanning},
	}

	for _, t := range allowed[s] {
		if t == target {
			return true
		}
	}
	return false
}

// TaskStatus represents the status of a plan task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusSkipped    TaskStatus = "skipped"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether the task can no longer run.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusSkipped, TaskStatusFailed:
		return true
	}
	return false
}

// Evidence is a single piece of literature or variant evidence
// returned by a source during task execution.
type Evidence struct {
	// ID is the source-native identifier (DOI, PMID, variant ID).
	ID string `json:"id"`

	// Source names the client that produced this evidence.
	Source string `json:"source"`

	// Title is the work or record title.
	Title string `json:"title"`

	// Snippet is an abstract or summary excerpt.
	Snippet string `json:"snippet,omitempty"`

	// URL links to the original record.
	URL string `json:"url,omitempty"`

	// Year is the publication year, if known.
	Year int `json:"year,omitempty"`

	// Score is the source's relevance score, if provided.
	Score float64 `json:"score,omitempty"`
}

// TaskResult records the outcome of one task execution.
type TaskResult struct {
	// Evidence holds the records the task retrieved.
	Evidence []Evidence `json:"evidence,omitempty"`

	// Summary is a short, human-readable description of the outcome.
	Summary string `json:"summary,omitempty"`

	// Error holds the failure message when the task failed.
	Error string `json:"error,omitempty"`

	// CompletedAt is when execution of the task finished.
	CompletedAt time.Time `json:"completed_at"`
}

// Task is one step of a research plan.
type Task struct {
	// ID uniquely identifies this task within the plan (format: task-{n}).
	ID string `json:"id"`

	// Description says what the task should find out.
	Description string `json:"description"`

	// Tool names the source client that runs this task.
	Tool string `json:"tool"`

	// Status is the current task state.
	Status TaskStatus `json:"status"`

	// Result holds the execution outcome once the task ran.
	Result *TaskResult `json:"result,omitempty"`

	// Attempts counts how many times the task was started.
	Attempts int `json:"attempts,omitempty"`
}

// Plan is a fixed sequence of research tasks. The task slice never
// changes length after creation; decisions narrow it only by marking
// tasks skipped.
type Plan struct {
	// ID uniquely identifies the plan (format: plan-{uuid8}).
	ID string `json:"id"`

	// Goal is the research goal this plan serves.
	Goal string `json:"goal"`

	// Tasks are the plan steps in execution order.
	Tasks []Task `json:"tasks"`

	// CreatedAt is when the plan was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewPlan creates a plan with sequential task IDs.
func NewPlan(goal string, tasks []Task) *Plan {
	for i := range tasks {
		tasks[i].ID = fmt.Sprintf("task-%d", i+1)
		tasks[i].Status = TaskStatusPending
	}
	return &Plan{
		ID:        fmt.Sprintf("plan-%s", uuid.New().String()[:8]),
		Goal:      goal,
		Tasks:     tasks,
		CreatedAt: time.Now().UTC(),
	}
}

// TaskByID returns the task with the given ID, or nil.
func (p *Plan) TaskByID(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// InProgress returns the task currently in progress, or nil.
// A well-formed plan has at most one.
func (p *Plan) InProgress() *Task {
	for i := range p.Tasks {
		if p.Tasks[i].Status == TaskStatusInProgress {
			return &p.Tasks[i]
		}
	}
	return nil
}

// Exhausted reports whether every task reached a terminal status.
func (p *Plan) Exhausted() bool {
	for i := range p.Tasks {
		if !p.Tasks[i].Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Statuses returns a task ID to status map, used for checkpoint
// snapshots and staleness comparison.
func (p *Plan) Statuses() map[string]TaskStatus {
	m := make(map[string]TaskStatus, len(p.Tasks))
	for i := range p.Tasks {
		m[p.Tasks[i].ID] = p.Tasks[i].Status
	}
	return m
}

// CursorSnapshot captures the cursor position before a pause so it can
// be restored exactly on resume.
type CursorSnapshot struct {
	// Index is the cursor index at pause time.
	Index int `json:"index"`

	// AwaitingConfirmation is the confirmation flag at pause time.
	AwaitingConfirmation bool `json:"awaiting_confirmation"`
}

// ExecutionCursor tracks the position in the plan and the pause state.
type ExecutionCursor struct {
	// Index is the position of the next task to run.
	Index int `json:"index"`

	// AwaitingConfirmation gates the next task on an explicit go-ahead.
	AwaitingConfirmation bool `json:"awaiting_confirmation"`

	// PausedQuestion is set while a user question suspends execution.
	PausedQuestion bool `json:"paused_question"`

	// Snapshot holds the pre-pause position while PausedQuestion is set.
	Snapshot *CursorSnapshot `json:"snapshot,omitempty"`
}

// Pause suspends execution for a question. The current position is
// snapshotted so Resume can restore it exactly. Pausing an already
// paused cursor keeps the original snapshot.
func (c *ExecutionCursor) Pause() {
	if c.PausedQuestion {
		return
	}
	c.Snapshot = &CursorSnapshot{
		Index:                c.Index,
		AwaitingConfirmation: c.AwaitingConfirmation,
	}
	c.PausedQuestion = true
}

// Resume restores the pre-pause position. Resuming an unpaused cursor
// is a no-op.
func (c *ExecutionCursor) Resume() {
	if !c.PausedQuestion {
		return
	}
	if c.Snapshot != nil {
		c.Index = c.Snapshot.Index
		c.AwaitingConfirmation = c.Snapshot.AwaitingConfirmation
	}
	c.PausedQuestion = false
	c.Snapshot = nil
}

// Message is one turn of the conversation history.
type Message struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// At is when the message was recorded.
	At time.Time `json:"at"`
}

// Finding is a validated piece of knowledge accumulated during a run.
type Finding struct {
	// TaskID names the task that produced the finding.
	TaskID string `json:"task_id"`

	// Statement is the finding text.
	Statement string `json:"statement"`

	// Evidence lists the supporting records.
	Evidence []Evidence `json:"evidence,omitempty"`
}

// Session is the durable record for one conversation.
type Session struct {
	// ID uniquely identifies the session (format: sess-{uuid8}).
	ID string `json:"id"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// ResearchGoal is the active goal, if any.
	ResearchGoal string `json:"research_goal,omitempty"`

	// Plan is the active research plan, if any.
	Plan *Plan `json:"plan,omitempty"`

	// Cursor tracks execution position within the plan.
	Cursor ExecutionCursor `json:"cursor"`

	// History is the conversation transcript.
	History []Message `json:"history,omitempty"`

	// ActiveCheckpointID references the pending decision point, if any.
	ActiveCheckpointID string `json:"active_checkpoint_id,omitempty"`

	// Findings accumulates validated results across tasks.
	Findings []Finding `json:"findings,omitempty"`

	// Report is the synthesized report, set after synthesis.
	Report string `json:"report,omitempty"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the session was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an idle session with a generated ID.
func New() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        fmt.Sprintf("sess-%s", uuid.New().String()[:8]),
		Status:    StatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewWithID creates an idle session with a caller-supplied ID.
func NewWithID(id string) *Session {
	s := New()
	s.ID = id
	return s
}

// Transition moves the session to the target status, enforcing the
// lifecycle state machine.
func (s *Session) Transition(target Status) error {
	if !target.IsValid() {
		return fmt.Errorf("invalid status: %s", target)
	}
	if s.Status == target {
		return nil
	}
	if !s.Status.CanTransitionTo(target) {
		return fmt.Errorf("invalid transition: %s -> %s", s.Status, target)
	}
	s.Status = target
	return nil
}

// AppendMessage records a conversation message.
func (s *Session) AppendMessage(role, content string) {
	s.History = append(s.History, Message{
		Role:    role,
		Content: content,
		At:      time.Now().UTC(),
	})
}

// CurrentTask returns the task at the cursor, or nil when the cursor
// is past the end of the plan.
func (s *Session) CurrentTask() *Task {
	if s.Plan == nil || s.Cursor.Index < 0 || s.Cursor.Index >= len(s.Plan.Tasks) {
		return nil
	}
	return &s.Plan.Tasks[s.Cursor.Index]
}
