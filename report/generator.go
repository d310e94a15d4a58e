// Package report synthesizes accumulated findings into a research
// report and exports it through the output sink.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shivam-kaushik/co-investigator/llm"
	"github.com/shivam-kaushik/co-investigator/model"
	"github.com/shivam-kaushik/co-investigator/session"
)

// Generator composes findings into a markdown report.
type Generator struct {
	client *llm.Client
	logger *slog.Logger
}

// NewGenerator creates a report generator. A nil client always uses
// the structured fallback rendering.
func NewGenerator(client *llm.Client, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, logger: logger}
}

const synthesisSystemPrompt = `You write the final report for a biomedical research session.
Compose a markdown report from the goal, plan, and findings provided.
Structure: a title, a short summary paragraph, a findings section grounding each
claim in its evidence, and a limitations note covering skipped or failed steps.
Use only the material provided; do not invent citations.`

// Synthesize produces the report. Oracle failure falls back to a
// structured rendering of the findings, so synthesis never blocks the
// session from completing.
func (g *Generator) Synthesize(ctx context.Context, sess *session.Session) string {
	if report, ok := g.oracleReport(ctx, sess); ok {
		return report
	}
	return fallbackReport(sess)
}

func (g *Generator) oracleReport(ctx context.Context, sess *session.Session) (string, bool) {
	if g.client == nil {
		return "", false
	}

	resp, err := g.client.Complete(ctx, llm.Request{
		Capability: model.CapabilitySynthesis.String(),
		Messages: []llm.Message{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: synthesisInput(sess)},
		},
		MaxTokens: 4096,
	})
	if err != nil {
		g.logger.Warn("Report synthesis fell back to structured rendering",
			"session_id", sess.ID, "error", err)
		return "", false
	}

	report := strings.TrimSpace(resp.Content)
	if report == "" {
		return "", false
	}
	return report, true
}

func synthesisInput(sess *session.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Research goal: %s\n\n", sess.ResearchGoal)

	if sess.Plan != nil {
		sb.WriteString("Plan outcome:\n")
		for _, task := range sess.Plan.Tasks {
			fmt.Fprintf(&sb, "- %s [%s] %s\n", task.ID, task.Status, task.Description)
		}
		sb.WriteByte('\n')
	}

	sb.WriteString("Findings:\n")
	for _, f := range sess.Findings {
		fmt.Fprintf(&sb, "- (%s) %s\n", f.TaskID, f.Statement)
		for _, ev := range f.Evidence {
			fmt.Fprintf(&sb, "  * %s", ev.Title)
			if ev.URL != "" {
				fmt.Fprintf(&sb, " <%s>", ev.URL)
			}
			if ev.Year > 0 {
				fmt.Fprintf(&sb, " (%d)", ev.Year)
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// fallbackReport renders findings as structured markdown without the
// oracle.
func fallbackReport(sess *session.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Research Report: %s\n\n", sess.ResearchGoal)
	fmt.Fprintf(&sb, "_Generated %s_\n\n", time.Now().UTC().Format("2006-01-02"))

	if len(sess.Findings) == 0 {
		sb.WriteString("No findings were gathered before the research ended.\n")
	} else {
		sb.WriteString("## Findings\n\n")
		for _, f := range sess.Findings {
			fmt.Fprintf(&sb, "### %s\n\n%s\n\n", f.TaskID, f.Statement)
			for _, ev := range f.Evidence {
				fmt.Fprintf(&sb, "- %s", ev.Title)
				if ev.URL != "" {
					fmt.Fprintf(&sb, " (%s)", ev.URL)
				}
				sb.WriteByte('\n')
			}
			sb.WriteByte('\n')
		}
	}

	if sess.Plan != nil {
		var incomplete []string
		for _, task := range sess.Plan.Tasks {
			if task.Status == session.TaskStatusSkipped || task.Status == session.TaskStatusFailed {
				incomplete = append(incomplete, fmt.Sprintf("%s (%s)", task.Description, task.Status))
			}
		}
		if len(incomplete) > 0 {
			sb.WriteString("## Limitations\n\nThe following steps did not complete:\n\n")
			for _, line := range incomplete {
				fmt.Fprintf(&sb, "- %s\n", line)
			}
		}
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}
