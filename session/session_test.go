package session

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"idle to planning", StatusIdle, StatusPlanning, true},
		{"idle to executing", StatusIdle, StatusExecuting, false},
		{"planning to executing", StatusPlanning, StatusExecuting, true},
		{"planning back to idle on failure", StatusPlanning, StatusIdle, true},
		{"executing to paused question", StatusExecuting, StatusPausedQuestion, true},
		{"executing to checkpoint", StatusExecuting, StatusCheckpoint, true},
		{"executing to exhausted", StatusExecuting, StatusExhausted, true},
		{"paused question resumes to executing", StatusPausedQuestion, StatusExecuting, true},
		{"paused question to exhausted", StatusPausedQuestion, StatusExhausted, false},
		{"exhausted to synthesizing", StatusExhausted, StatusSynthesizing, true},
		{"synthesizing to followup", StatusSynthesizing, StatusFollowup, true},
		{"followup to idle", StatusFollowup, StatusIdle, true},
		{"followup to new goal", StatusFollowup, StatusPlanning, true},
		{"exhausted back to executing", StatusExhausted, StatusExecuting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestSessionTransition(t *testing.T) {
	s := New()
	if s.Status != StatusIdle {
		t.Fatalf("new session status = %s, want %s", s.Status, StatusIdle)
	}

	if err := s.Transition(StatusPlanning); err != nil {
		t.Fatalf("Transition(planning) failed: %v", err)
	}

	if err := s.Transition(StatusFollowup); err == nil {
		t.Error("Transition(planning -> qa_followup) should fail")
	}

	// Transitioning to the current status is a no-op
	if err := s.Transition(StatusPlanning); err != nil {
		t.Errorf("self-transition should succeed: %v", err)
	}
}

func TestCursorPauseResume(t *testing.T) {
	c := ExecutionCursor{Index: 2, AwaitingConfirmation: true}

	c.Pause()
	if !c.PausedQuestion {
		t.Fatal("cursor should be paused")
	}
	if c.Snapshot == nil || c.Snapshot.Index != 2 || !c.Snapshot.AwaitingConfirmation {
		t.Fatalf("snapshot = %+v, want index 2 awaiting", c.Snapshot)
	}

	// Answering questions must not disturb the restored position even
	// if the flags were touched while paused.
	c.AwaitingConfirmation = false

	// Double pause keeps the original snapshot
	c.Pause()
	if c.Snapshot.Index != 2 {
		t.Errorf("double pause clobbered snapshot: %+v", c.Snapshot)
	}

	c.Resume()
	if c.PausedQuestion {
		t.Error("cursor should not be paused after resume")
	}
	if c.Index != 2 || !c.AwaitingConfirmation {
		t.Errorf("resume restored index=%d awaiting=%v, want 2/true", c.Index, c.AwaitingConfirmation)
	}
	if c.Snapshot != nil {
		t.Error("snapshot should be cleared after resume")
	}

	// Resume on an unpaused cursor is a no-op
	c.Index = 3
	c.Resume()
	if c.Index != 3 {
		t.Errorf("resume of unpaused cursor moved index to %d", c.Index)
	}
}

func TestPlanHelpers(t *testing.T) {
	p := NewPlan("BRCA1 variant pathogenicity", []Task{
		{Description: "search literature", Tool: "openalex"},
		{Description: "check variant classifications", Tool: "clingen"},
	})

	if len(p.Tasks) != 2 {
		t.Fatalf("plan has %d tasks, want 2", len(p.Tasks))
	}
	if p.Tasks[0].ID != "task-1" || p.Tasks[1].ID != "task-2" {
		t.Errorf("task IDs = %s, %s", p.Tasks[0].ID, p.Tasks[1].ID)
	}

	if p.Exhausted() {
		t.Error("fresh plan should not be exhausted")
	}

	p.Tasks[0].Status = TaskStatusCompleted
	p.Tasks[1].Status = TaskStatusSkipped
	if !p.Exhausted() {
		t.Error("plan with all terminal tasks should be exhausted")
	}

	if got := p.TaskByID("task-2"); got == nil || got.Tool != "clingen" {
		t.Errorf("TaskByID(task-2) = %+v", got)
	}
	if got := p.TaskByID("task-9"); got != nil {
		t.Errorf("TaskByID(task-9) = %+v, want nil", got)
	}

	statuses := p.Statuses()
	if statuses["task-1"] != TaskStatusCompleted || statuses["task-2"] != TaskStatusSkipped {
		t.Errorf("Statuses() = %v", statuses)
	}
}

func TestSessionJSONRoundTrip(t *testing.T) {
	s := New()
	s.ResearchGoal = "role of TP53 in Li-Fraumeni syndrome"
	s.Status = StatusExecuting
	s.Plan = NewPlan(s.ResearchGoal, []Task{
		{Description: "search pubmed", Tool: "pubmed"},
	})
	s.Plan.Tasks[0].Status = TaskStatusCompleted
	s.Plan.Tasks[0].Result = &TaskResult{
		Evidence: []Evidence{{ID: "PMID:123", Source: "pubmed", Title: "TP53 germline variants", Year: 2021}},
		Summary:  "1 record",
		CompletedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	s.Cursor = ExecutionCursor{Index: 1, PausedQuestion: true, Snapshot: &CursorSnapshot{Index: 1}}
	s.AppendMessage("user", "what did you find?")
	s.ActiveCheckpointID = "cp-abc12345"
	s.Findings = []Finding{{TaskID: "task-1", Statement: "germline TP53 variants are causal"}}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Session
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.ID != s.ID || got.Status != s.Status || got.ResearchGoal != s.ResearchGoal {
		t.Errorf("identity fields did not round-trip: %+v", got)
	}
	if got.Plan == nil || len(got.Plan.Tasks) != 1 || got.Plan.Tasks[0].Result == nil {
		t.Fatalf("plan did not round-trip: %+v", got.Plan)
	}
	if got.Plan.Tasks[0].Result.Evidence[0].ID != "PMID:123" {
		t.Errorf("evidence did not round-trip: %+v", got.Plan.Tasks[0].Result)
	}
	if !got.Cursor.PausedQuestion || got.Cursor.Snapshot == nil || got.Cursor.Snapshot.Index != 1 {
		t.Errorf("cursor did not round-trip: %+v", got.Cursor)
	}
	if len(got.History) != 1 || got.History[0].Role != "user" {
		t.Errorf("history did not round-trip: %+v", got.History)
	}
	if got.ActiveCheckpointID != "cp-abc12345" || len(got.Findings) != 1 {
		t.Errorf("checkpoint/findings did not round-trip")
	}
}
