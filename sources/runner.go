package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shivam-kaushik/co-investigator/session"
	"github.com/shivam-kaushik/co-investigator/sources/webfetch"
)

// Runner dispatches a task to the client its tool names and shapes the
// result. It implements the executor's TaskRunner.
type Runner struct {
	clients  map[string]Client
	enricher *webfetch.Enricher
	limit    int
	logger   *slog.Logger
}

// NewRunner creates a runner. enricher is optional; when set, the top
// evidence snippet is upgraded with readable article text.
func NewRunner(enricher *webfetch.Enricher, limit int, logger *slog.Logger) *Runner {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		clients:  make(map[string]Client),
		enricher: enricher,
		limit:    limit,
		logger:   logger,
	}
}

// Register adds a source client under its tool name.
func (r *Runner) Register(client Client) {
	r.clients[client.Name()] = client
}

// Tools returns the registered tool names, sorted.
func (r *Runner) Tools() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one task: search the named source with the task
// description and summarize what came back.
func (r *Runner) Run(ctx context.Context, sess *session.Session, task *session.Task) (*session.TaskResult, error) {
	client, ok := r.clients[task.Tool]
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", task.Tool)
	}

	evidence, err := client.Search(ctx, task.Description, r.limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", task.Tool, err)
	}

	r.enrichTop(ctx, evidence)

	return &session.TaskResult{
		Evidence: evidence,
		Summary:  summarize(task, evidence),
	}, nil
}

// enrichTop replaces the first evidence snippet with readable article
// text when the record links somewhere fetchable. Best effort only.
func (r *Runner) enrichTop(ctx context.Context, evidence []session.Evidence) {
	if r.enricher == nil || len(evidence) == 0 {
		return
	}
	top := &evidence[0]
	if top.URL == "" {
		return
	}

	article, err := r.enricher.Enrich(ctx, top.URL)
	if err != nil {
		r.logger.Debug("Evidence enrichment skipped", "url", top.URL, "error", err)
		return
	}
	if article.Markdown != "" {
		top.Snippet = Truncate(article.Markdown, 1000)
	}
	if top.Title == "" {
		top.Title = article.Title
	}
}

// Truncate caps s at max bytes without splitting a UTF-8 sequence,
// appending an ellipsis when anything was cut. Abstracts and article
// text carry multibyte characters, so a plain byte slice is not safe.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "…"
}

func summarize(task *session.Task, evidence []session.Evidence) string {
	if len(evidence) == 0 {
		return fmt.Sprintf("No records found via %s for: %s", task.Tool, task.Description)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d records via %s", len(evidence), task.Tool)
	titles := make([]string, 0, 3)
	for i := 0; i < len(evidence) && i < 3; i++ {
		if evidence[i].Title != "" {
			titles = append(titles, evidence[i].Title)
		}
	}
	if len(titles) > 0 {
		fmt.Fprintf(&sb, "; top: %s", strings.Join(titles, "; "))
	}
	return sb.String()
}
