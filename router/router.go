// Package router classifies each user turn into a route. Three tiers:
// deterministic token matching, an oracle classifier on the fast
// capability, and a clarify fallback. Routing never fails a turn; when
// nothing is confident the route is RouteClarify and the caller asks
// the user to rephrase.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shivam-kaushik/co-investigator/checkpoint"
	"github.com/shivam-kaushik/co-investigator/llm"
	"github.com/shivam-kaushik/co-investigator/model"
	"github.com/shivam-kaushik/co-investigator/session"
)

// Route is the classified intent of a user turn.
type Route string

const (
	// RouteExecuteStep runs the next plan task.
	RouteExecuteStep Route = "execute_step"

	// RouteAnswerQuestion answers a question, pausing execution if a
	// plan is mid-flight.
	RouteAnswerQuestion Route = "answer_question"

	// RouteResolveCheckpoint applies a pending checkpoint option.
	RouteResolveCheckpoint Route = "resolve_checkpoint"

	// RouteNewGoal starts a new research goal.
	RouteNewGoal Route = "new_goal"

	// RouteExitFollowup closes a follow-up conversation.
	RouteExitFollowup Route = "exit_followup"

	// RouteClarify asks the user to rephrase.
	RouteClarify Route = "clarify"
)

// Tiers, for logging and metrics.
const (
	TierTokens   = "tokens"
	TierOracle   = "oracle"
	TierFallback = "fallback"
)

// DefaultConfidenceThreshold rejects oracle classifications below it.
const DefaultConfidenceThreshold = 0.6

// Decision is the outcome of routing one turn.
type Decision struct {
	// Route is the classified intent.
	Route Route

	// Confidence is the classifier's self-reported confidence.
	// Deterministic matches report 1.0.
	Confidence float64

	// Tier names which tier produced the decision.
	Tier string

	// OptionID is set when the turn matched a checkpoint option.
	OptionID string
}

// Router classifies turns.
type Router struct {
	client    *llm.Client
	threshold float64
	logger    *slog.Logger
}

// New creates a router. A nil client disables the oracle tier, leaving
// tokens and the clarify fallback.
func New(client *llm.Client, threshold float64, logger *slog.Logger) *Router {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultConfidenceThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{client: client, threshold: threshold, logger: logger}
}

// Classify routes one turn. active is the pending checkpoint, if any.
// Empty and whitespace-only input routes straight to the clarify
// fallback; routing never fails a turn.
func (r *Router) Classify(ctx context.Context, sess *session.Session, active *checkpoint.Checkpoint, input string) Decision {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return Decision{Route: RouteClarify, Tier: TierFallback}
	}

	if d, ok := r.matchTokens(sess, active, normalized); ok {
		return d
	}

	if d, ok := r.classifyOracle(ctx, sess, active, input); ok {
		return d
	}

	return Decision{Route: RouteClarify, Tier: TierFallback}
}

// matchTokens is the deterministic tier. Question indicators are
// checked before execution tokens, so a turn that reads as both routes
// as a question while a task is pending.
func (r *Router) matchTokens(sess *session.Session, active *checkpoint.Checkpoint, normalized string) (Decision, bool) {
	if sess.Status == session.StatusCheckpoint {
		if opt := matchOption(active, normalized); opt != nil {
			return Decision{
				Route:      RouteResolveCheckpoint,
				Confidence: 1.0,
				Tier:       TierTokens,
				OptionID:   opt.ID,
			}, true
		}
	}

	if sess.Status == session.StatusFollowup && isExitToken(normalized) {
		return Decision{Route: RouteExitFollowup, Confidence: 1.0, Tier: TierTokens}, true
	}

	if isQuestion(normalized) {
		return Decision{Route: RouteAnswerQuestion, Confidence: 1.0, Tier: TierTokens}, true
	}

	if isExecutionToken(normalized) {
		switch sess.Status {
		case session.StatusExecuting, session.StatusAwaitingConfirmation, session.StatusPausedQuestion:
			return Decision{Route: RouteExecuteStep, Confidence: 1.0, Tier: TierTokens}, true
		}
	}

	return Decision{}, false
}

const classifierSystemPrompt = `You route turns for a biomedical research assistant.
Classify the user's message into exactly one route from the allowed set.
Respond with JSON only: {"route": "...", "confidence": 0.0-1.0}.`

// classifyOracle is the oracle tier. Any failure, an out-of-set route,
// or low confidence falls through to the clarify tier.
func (r *Router) classifyOracle(ctx context.Context, sess *session.Session, active *checkpoint.Checkpoint, input string) (Decision, bool) {
	if r.client == nil {
		return Decision{}, false
	}

	allowed := allowedRoutes(sess.Status)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session status: %s\n", sess.Status)
	if sess.ResearchGoal != "" {
		fmt.Fprintf(&sb, "Research goal: %s\n", sess.ResearchGoal)
	}
	if active != nil {
		fmt.Fprintf(&sb, "Pending decision: %s\n", active.Prompt)
	}
	fmt.Fprintf(&sb, "Allowed routes: %s\n", strings.Join(routeStrings(allowed), ", "))
	fmt.Fprintf(&sb, "User message: %s", input)

	resp, err := r.client.Complete(ctx, llm.Request{
		Capability: model.CapabilityFast.String(),
		Messages: []llm.Message{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: sb.String()},
		},
		MaxTokens: 128,
	})
	if err != nil {
		r.logger.Warn("Route classification unavailable, falling back to clarify",
			"session_id", sess.ID, "error", err)
		return Decision{}, false
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		r.logger.Warn("Route classifier returned no JSON", "session_id", sess.ID)
		return Decision{}, false
	}

	var parsed struct {
		Route      string  `json:"route"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		r.logger.Warn("Route classifier returned malformed JSON",
			"session_id", sess.ID, "error", err)
		return Decision{}, false
	}

	route := Route(parsed.Route)
	if !routeAllowed(route, allowed) {
		r.logger.Warn("Route classifier proposed disallowed route",
			"session_id", sess.ID, "route", parsed.Route, "status", string(sess.Status))
		return Decision{}, false
	}
	if parsed.Confidence < r.threshold {
		r.logger.Debug("Route classification below threshold",
			"session_id", sess.ID, "route", parsed.Route,
			"confidence", parsed.Confidence, "threshold", r.threshold)
		return Decision{}, false
	}

	return Decision{Route: route, Confidence: parsed.Confidence, Tier: TierOracle}, true
}

// allowedRoutes returns the routes that make sense for a session state.
func allowedRoutes(status session.Status) []Route {
	switch status {
	case session.StatusIdle:
		return []Route{RouteNewGoal, RouteAnswerQuestion, RouteClarify}
	case session.StatusExecuting, session.StatusAwaitingConfirmation, session.StatusPausedQuestion:
		return []Route{RouteExecuteStep, RouteAnswerQuestion, RouteClarify}
	case session.StatusCheckpoint:
		return []Route{RouteResolveCheckpoint, RouteAnswerQuestion, RouteClarify}
	case session.StatusFollowup:
		return []Route{RouteAnswerQuestion, RouteExitFollowup, RouteNewGoal, RouteClarify}
	default:
		return []Route{RouteAnswerQuestion, RouteClarify}
	}
}

func routeAllowed(route Route, allowed []Route) bool {
	for _, a := range allowed {
		if a == route {
			return true
		}
	}
	return false
}

func routeStrings(routes []Route) []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = string(r)
	}
	return out
}
