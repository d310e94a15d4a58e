// Package retriever answers mid-research questions from what the
// session has already gathered: findings, plan state, and recent
// conversation. Answering never fails a turn; when the oracle is down
// the answer is composed directly from the findings.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shivam-kaushik/co-investigator/llm"
	"github.com/shivam-kaushik/co-investigator/model"
	"github.com/shivam-kaushik/co-investigator/session"
)

// historyWindow is how many recent messages the oracle sees.
const historyWindow = 10

// Retriever answers questions grounded in session context.
type Retriever struct {
	client *llm.Client
	logger *slog.Logger
}

// New creates a retriever. A nil client uses the findings digest only.
func New(client *llm.Client, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{client: client, logger: logger}
}

const retrieverSystemPrompt = `You are a biomedical research co-investigator answering a question mid-research.
Ground every claim in the findings provided; say plainly when the findings do not cover the question.
Keep answers short and cite evidence titles inline.`

// Answer responds to a question using accumulated session context.
func (r *Retriever) Answer(ctx context.Context, sess *session.Session, question string) string {
	if answer, ok := r.oracleAnswer(ctx, sess, question); ok {
		return answer
	}
	return digestAnswer(sess, question)
}

func (r *Retriever) oracleAnswer(ctx context.Context, sess *session.Session, question string) (string, bool) {
	if r.client == nil {
		return "", false
	}

	resp, err := r.client.Complete(ctx, llm.Request{
		Capability: model.CapabilityReasoning.String(),
		Messages: []llm.Message{
			{Role: "system", Content: retrieverSystemPrompt},
			{Role: "user", Content: buildContext(sess, question)},
		},
		MaxTokens: 1024,
	})
	if err != nil {
		r.logger.Warn("Question answering fell back to findings digest",
			"session_id", sess.ID, "error", err)
		return "", false
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", false
	}
	return answer, true
}

// buildContext assembles the grounding material the oracle answers
// from: goal, plan state, findings with evidence, recent transcript.
func buildContext(sess *session.Session, question string) string {
	var sb strings.Builder

	if sess.ResearchGoal != "" {
		fmt.Fprintf(&sb, "Research goal: %s\n", sess.ResearchGoal)
	}
	if sess.Plan != nil {
		fmt.Fprintf(&sb, "Plan:\n")
		for _, task := range sess.Plan.Tasks {
			fmt.Fprintf(&sb, "- %s [%s] %s\n", task.ID, task.Status, task.Description)
		}
	}
	if len(sess.Findings) > 0 {
		fmt.Fprintf(&sb, "Findings so far:\n")
		for _, f := range sess.Findings {
			fmt.Fprintf(&sb, "- (%s) %s\n", f.TaskID, f.Statement)
			for i, ev := range f.Evidence {
				if i == 3 {
					break
				}
				fmt.Fprintf(&sb, "  * %s", ev.Title)
				if ev.Snippet != "" {
					fmt.Fprintf(&sb, " — %s", truncate(ev.Snippet, 200))
				}
				sb.WriteByte('\n')
			}
		}
	}
	if sess.Report != "" {
		fmt.Fprintf(&sb, "Synthesized report:\n%s\n", truncate(sess.Report, 2000))
	}

	history := sess.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	if len(history) > 0 {
		fmt.Fprintf(&sb, "Recent conversation:\n")
		for _, msg := range history {
			fmt.Fprintf(&sb, "%s: %s\n", msg.Role, truncate(msg.Content, 300))
		}
	}

	fmt.Fprintf(&sb, "\nQuestion: %s", question)
	return sb.String()
}

// digestAnswer is the oracle-free fallback: surface the findings that
// share terms with the question, or admit there is nothing yet.
func digestAnswer(sess *session.Session, question string) string {
	if len(sess.Findings) == 0 {
		return "I don't have findings to draw on yet. Once a few research steps have run I can answer questions about what they turned up."
	}

	terms := significantTerms(question)
	var relevant []session.Finding
	for _, f := range sess.Findings {
		if matchesAny(strings.ToLower(f.Statement), terms) {
			relevant = append(relevant, f)
		}
	}
	if len(relevant) == 0 {
		relevant = sess.Findings
	}

	var sb strings.Builder
	sb.WriteString("From what the research has gathered so far:\n")
	for _, f := range relevant {
		fmt.Fprintf(&sb, "- %s\n", f.Statement)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func significantTerms(s string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(s)) {
		t = strings.Trim(t, "?.,!")
		if len(t) > 3 {
			terms = append(terms, t)
		}
	}
	return terms
}

func matchesAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
