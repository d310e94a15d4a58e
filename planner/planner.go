// Package planner turns a research goal into a fixed plan of source
// tasks. The oracle proposes the plan; when it is unavailable a
// deterministic template keeps research moving.
package planner

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

// Plan size bounds for oracle-proposed plans.
const (
	minTasks = 2
	maxTasks = 7
)

// Planner creates research plans bound to the registered source tools.
type Planner struct {
	client *llm.Client
	tools  []string
	logger *slog.Logger
}

// New creates a planner. tools lists the source names tasks may use;
// oracle proposals using anything else are rejected.
func New(client *llm.Client, tools []string, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{client: client, tools: tools, logger: logger}
}

const planSystemPrompt = `You plan literature research for a biomedical co-investigator.
Break the research goal into 2-7 sequential retrieval steps.
Each step uses exactly one of the available tools.
Respond with a JSON array only. Each element: {"description": "...", "tool": "..."}.
Descriptions are specific search intents, not generic phrases.`

// CreatePlan builds a plan for the goal. The task list is fixed at
// creation; later decisions only narrow it by skipping. Failure to
// produce any usable plan returns a *PlanError.
func (p *Planner) CreatePlan(ctx context.Context, goal string) (*session.Plan, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, &PlanError{Goal: goal, Err: fmt.Errorf("empty research goal")}
	}
	if len(p.tools) == 0 {
		return nil, &PlanError{Goal: goal, Err: fmt.Errorf("no source tools registered")}
	}

	tasks, err := p.oracleTasks(ctx, goal)
	if err != nil {
		p.logger.Warn("Plan generation fell back to template",
			"goal", goal, "error", err)
		tasks = p.templateTasks(goal)
	}
	if len(tasks) == 0 {
		return nil, &PlanError{Goal: goal, Err: fmt.Errorf("no usable tasks")}
	}

	plan := session.NewPlan(goal, tasks)
	p.logger.Info("Plan created", "plan_id", plan.ID, "tasks", len(plan.Tasks))
	return plan, nil
}

func (p *Planner) oracleTasks(ctx context.Context, goal string) ([]session.Task, error) {
	if p.client == nil {
		return nil, fmt.Errorf("no oracle configured")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Research goal: %s\n", goal)
	fmt.Fprintf(&sb, "Available tools: %s", strings.Join(p.tools, ", "))

	resp, err := p.client.Complete(ctx, llm.Request{
		Capability: model.CapabilityReasoning.String(),
		Messages: []llm.Message{
			{Role: "system", Content: planSystemPrompt},
			{Role: "user", Content: sb.String()},
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
		Description string `json:"description"`
		Tool        string `json:"tool"`
	}
	if err := json.Unmarshal([]byte(raw), &proposed); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	var tasks []session.Task
	for _, step := range proposed {
		if step.Description == "" || !p.knownTool(step.Tool) {
			continue
		}
		tasks = append(tasks, session.Task{Description: step.Description, Tool: step.Tool})
		if len(tasks) == maxTasks {
			break
		}
	}
	if len(tasks) < minTasks {
		return nil, fmt.Errorf("oracle proposed %d usable tasks, need at least %d", len(tasks), minTasks)
	}
	return tasks, nil
}

// templateTasks is the deterministic fallback plan: broad literature
// search, clinical literature, preprints, then variant classification,
// filtered to the tools actually registered.
func (p *Planner) templateTasks(goal string) []session.Task {
	template := []session.Task{
		{Description: fmt.Sprintf("Search OpenAlex for works on %s", goal), Tool: "openalex"},
		{Description: fmt.Sprintf("Search PubMed for clinical studies on %s", goal), Tool: "pubmed"},
		{Description: fmt.Sprintf("Scan bioRxiv and medRxiv preprints on %s", goal), Tool: "biorxiv"},
		{Description: fmt.Sprintf("Check ClinGen for variant classifications relevant to %s", goal), Tool: "clingen"},
	}

	var tasks []session.Task
	for _, t := range template {
		if p.knownTool(t.Tool) {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

func (p *Planner) knownTool(name string) bool {
	for _, t := range p.tools {
		if t == name {
			return true
		}
	}
	return false
}
