package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shivam-kaushik/co-investigator/llm"
	"github.com/shivam-kaushik/co-investigator/model"
	"github.com/shivam-kaushik/co-investigator/session"
)

// Option count bounds for oracle-generated sets.
const (
	minOptions = 3
	maxOptions = 5
)

// OptionGenerator produces the choices for a checkpoint. The oracle is
// advisory: when it fails or misbehaves, a fixed fallback set is used
// and the checkpoint is raised regardless.
type OptionGenerator interface {
	Generate(ctx context.Context, sess *session.Session, reason Reason, taskID string) ([]Option, string, error)
}

// OracleOptionGenerator asks the reasoning capability for 3-5 options
// tailored to the situation, falling back to FallbackOptions.
type OracleOptionGenerator struct {
	client *llm.Client
	logger *slog.Logger
}

// NewOracleOptionGenerator creates an oracle-backed option generator.
func NewOracleOptionGenerator(client *llm.Client, logger *slog.Logger) *OracleOptionGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &OracleOptionGenerator{client: client, logger: logger}
}

const optionsSystemPrompt = `You help a biomedical research assistant present decision options to a researcher.
Given the research goal, the plan state, and what just happened, propose between 3 and 5 options.
Respond with a JSON array only. Each element: {"label": "...", "action": "continue|skip_task|skip_remaining|export|abort"}.
Labels are short imperative phrases a researcher would click.`

// Generate asks the oracle for options. Any failure falls back to the
// fixed set; Generate never returns an empty option list.
func (g *OracleOptionGenerator) Generate(ctx context.Context, sess *session.Session, reason Reason, taskID string) ([]Option, string, error) {
	prompt := buildPrompt(sess, reason, taskID)

	opts, err := g.oracleOptions(ctx, sess, reason, taskID)
	if err != nil {
		g.logger.Warn("Option generation fell back to fixed set",
			"session_id", sess.ID,
			"reason", string(reason),
			"error", err)
		opts = FallbackOptions()
	}

	finalizeOptions(opts, sess, taskID)
	return opts, prompt, nil
}

func (g *OracleOptionGenerator) oracleOptions(ctx context.Context, sess *session.Session, reason Reason, taskID string) ([]Option, error) {
	if g.client == nil {
		return nil, fmt.Errorf("no oracle configured")
	}

	var situation strings.Builder
	fmt.Fprintf(&situation, "Research goal: %s\n", sess.ResearchGoal)
	if sess.Plan != nil {
		fmt.Fprintf(&situation, "Plan tasks:\n")
		for _, t := range sess.Plan.Tasks {
			fmt.Fprintf(&situation, "- %s [%s] %s (tool: %s)\n", t.ID, t.Status, t.Description, t.Tool)
		}
	}
	fmt.Fprintf(&situation, "Trigger: %s", reason)
	if taskID != "" {
		fmt.Fprintf(&situation, " (task %s)", taskID)
	}

	resp, err := g.client.Complete(ctx, llm.Request{
		Capability: model.CapabilityReasoning.String(),
		Messages: []llm.Message{
			{Role: "system", Content: optionsSystemPrompt},
			{Role: "user", Content: situation.String()},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSONArray(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array in oracle response")
	}

	var proposed []struct {
		Label  string `json:"label"`
		Action string `json:"action"`
	}
	if err := json.Unmarshal([]byte(raw), &proposed); err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}

	var opts []Option
	for _, p := range proposed {
		action := Action(p.Action)
		if p.Label == "" || !action.IsValid() {
			continue
		}
		opts = append(opts, Option{Label: p.Label, Action: action})
		if len(opts) == maxOptions {
			break
		}
	}

	if len(opts) < minOptions {
		return nil, fmt.Errorf("oracle proposed %d usable options, need at least %d", len(opts), minOptions)
	}
	return opts, nil
}

// FallbackOptions is the fixed option set used when the oracle is
// unavailable or its proposal is unusable.
func FallbackOptions() []Option {
	return []Option{
		{Label: "Continue as planned", Action: ActionContinue},
		{Label: "Skip remaining steps", Action: ActionSkipRemaining},
		{Label: "Export current findings", Action: ActionExport},
		{Label: "Abort research", Action: ActionAbort},
	}
}

// finalizeOptions assigns IDs and computes the task statuses each
// option depends on. Staleness at resolve time is judged only against
// these touched tasks.
func finalizeOptions(opts []Option, sess *session.Session, triggerTaskID string) {
	var nonTerminal []string
	if sess.Plan != nil {
		for _, t := range sess.Plan.Tasks {
			if !t.Status.IsTerminal() {
				nonTerminal = append(nonTerminal, t.ID)
			}
		}
	}

	for i := range opts {
		opts[i].ID = fmt.Sprintf("opt-%d", i+1)
		switch opts[i].Action {
		case ActionContinue:
			if triggerTaskID != "" {
				opts[i].TouchedTaskIDs = []string{triggerTaskID}
			}
		case ActionSkipTask:
			if opts[i].TaskID == "" {
				opts[i].TaskID = triggerTaskID
			}
			if opts[i].TaskID != "" {
				opts[i].TouchedTaskIDs = []string{opts[i].TaskID}
			}
		case ActionSkipRemaining, ActionExport:
			opts[i].TouchedTaskIDs = nonTerminal
		case ActionAbort:
			// Aborting is safe regardless of drift
		}
	}
}

// buildPrompt writes the question surfaced alongside the options.
func buildPrompt(sess *session.Session, reason Reason, taskID string) string {
	var task *session.Task
	if sess.Plan != nil && taskID != "" {
		task = sess.Plan.TaskByID(taskID)
	}

	switch reason {
	case ReasonFirstTask:
		if sess.Plan != nil {
			return fmt.Sprintf("I drafted a %d-step plan for %q. How should we proceed?",
				len(sess.Plan.Tasks), sess.ResearchGoal)
		}
		return "I drafted a research plan. How should we proceed?"
	case ReasonZeroResults:
		if task != nil {
			return fmt.Sprintf("The step %q returned no results. How should we proceed?", task.Description)
		}
		return "The last step returned no results. How should we proceed?"
	case ReasonValidatorConflict:
		return "Some of the evidence gathered so far is contradictory. How should we proceed?"
	case ReasonTaskFailed:
		if task != nil {
			return fmt.Sprintf("The step %q failed. How should we proceed?", task.Description)
		}
		return "The last step failed. How should we proceed?"
	}
	return "How should we proceed?"
}
