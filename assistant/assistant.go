// Package assistant is the orchestration core: it routes each turn,
// drives plan execution one step at a time, raises and resolves
// checkpoints, and keeps the session record durable across turns.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shivam-kaushik/co-investigator/checkpoint"
	"github.com/shivam-kaushik/co-investigator/executor"
	"github.com/shivam-kaushik/co-investigator/metrics"
	"github.com/shivam-kaushik/co-investigator/planner"
	"github.com/shivam-kaushik/co-investigator/report"
	"github.com/shivam-kaushik/co-investigator/retriever"
	"github.com/shivam-kaushik/co-investigator/router"
	"github.com/shivam-kaushik/co-investigator/session"
	"github.com/shivam-kaushik/co-investigator/validator"
)

// maxInputLength bounds a single turn's text.
const maxInputLength = 8 * 1024

// TurnResult is what one handled turn produced.
type TurnResult struct {
	// SessionID identifies the session the turn ran against.
	SessionID string `json:"session_id"`

	// Route is how the turn was classified.
	Route router.Route `json:"route"`

	// Reply is the assistant's response text.
	Reply string `json:"reply"`

	// Status is the session status after the turn.
	Status session.Status `json:"status"`

	// Checkpoint is set when this turn surfaced a decision point.
	Checkpoint *checkpoint.Checkpoint `json:"checkpoint,omitempty"`

	// ReportPath is set when this turn exported a report.
	ReportPath string `json:"report_path,omitempty"`
}

// Assistant coordinates the turn lifecycle.
type Assistant struct {
	sessions    session.Store
	locks       *session.TurnLock
	router      *router.Router
	planner     *planner.Planner
	executor    *executor.Executor
	checkpoints *checkpoint.Manager
	retriever   *retriever.Retriever
	validator   *validator.Validator
	reports     *report.Generator
	sink        *report.Sink
	logger      *slog.Logger
}

// Deps are the collaborators an Assistant is built from.
type Deps struct {
	Sessions    session.Store
	Router      *router.Router
	Planner     *planner.Planner
	Executor    *executor.Executor
	Checkpoints *checkpoint.Manager
	Retriever   *retriever.Retriever
	Validator   *validator.Validator
	Reports     *report.Generator
	Sink        *report.Sink
	Logger      *slog.Logger
}

// New creates an assistant.
func New(deps Deps) *Assistant {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		sessions:    deps.Sessions,
		locks:       session.NewTurnLock(),
		router:      deps.Router,
		planner:     deps.Planner,
		executor:    deps.Executor,
		checkpoints: deps.Checkpoints,
		retriever:   deps.Retriever,
		validator:   deps.Validator,
		reports:     deps.Reports,
		sink:        deps.Sink,
		logger:      logger,
	}
}

// HandleTurn processes one user turn against a session. Turns for the
// same session serialize on a per-session lock; different sessions
// proceed in parallel.
func (a *Assistant) HandleTurn(ctx context.Context, sessionID, input string) (*TurnResult, error) {
	start := time.Now()

	input = strings.TrimSpace(input)
	if len(input) > maxInputLength {
		return nil, &InvalidInputError{Reason: "input too long"}
	}
	if sessionID == "" {
		return nil, &InvalidInputError{Reason: "missing session ID"}
	}

	a.locks.Lock(sessionID)
	defer a.locks.Unlock(sessionID)

	sess, rev, err := a.loadOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var active *checkpoint.Checkpoint
	if sess.ActiveCheckpointID != "" {
		if active, err = a.checkpoints.Get(ctx, sess.ActiveCheckpointID); err != nil {
			a.logger.Warn("Active checkpoint unreadable",
				"session_id", sessionID, "checkpoint_id", sess.ActiveCheckpointID, "error", err)
			active = nil
		}
	}

	decision := a.router.Classify(ctx, sess, active, input)
	a.logger.Info("Turn routed",
		"session_id", sessionID,
		"route", string(decision.Route),
		"tier", decision.Tier,
		"confidence", decision.Confidence)

	result := &TurnResult{SessionID: sessionID, Route: decision.Route}

	var reply string
	switch decision.Route {
	case router.RouteNewGoal:
		reply, err = a.handleNewGoal(ctx, sess, input, result)
	case router.RouteExecuteStep:
		reply, err = a.handleExecute(ctx, sess, result)
	case router.RouteAnswerQuestion:
		reply, err = a.handleQuestion(ctx, sess, input)
	case router.RouteResolveCheckpoint:
		reply, sess, rev, err = a.handleResolve(ctx, sess, rev, active, decision.OptionID, result)
	case router.RouteExitFollowup:
		reply, err = a.handleExit(sess)
	default:
		reply = clarifyReply(sess, active)
	}
	if err != nil {
		metrics.TurnsTotal.WithLabelValues(string(decision.Route), "error").Inc()
		return nil, err
	}

	if input != "" {
		sess.AppendMessage("user", input)
	}
	sess.AppendMessage("assistant", reply)
	sess.UpdatedAt = time.Now().UTC()
	if err := a.sessions.Update(ctx, sess, rev); err != nil {
		metrics.TurnsTotal.WithLabelValues(string(decision.Route), "error").Inc()
		return nil, fmt.Errorf("persist turn: %w", err)
	}

	result.Reply = reply
	result.Status = sess.Status

	metrics.TurnsTotal.WithLabelValues(string(decision.Route), "ok").Inc()
	metrics.TurnDuration.WithLabelValues(string(decision.Route)).Observe(time.Since(start).Seconds())
	return result, nil
}

// GetSessionState returns the current session record.
func (a *Assistant) GetSessionState(ctx context.Context, sessionID string) (*session.Session, error) {
	sess, _, err := a.sessions.Get(ctx, sessionID)
	return sess, err
}

// ResolveCheckpoint applies a checkpoint option outside the
// conversational flow (the HTTP resolve endpoint).
func (a *Assistant) ResolveCheckpoint(ctx context.Context, sessionID, checkpointID, optionID string) (*TurnResult, error) {
	if sessionID == "" || checkpointID == "" || optionID == "" {
		return nil, &InvalidInputError{Reason: "session, checkpoint, and option IDs are required"}
	}

	a.locks.Lock(sessionID)
	defer a.locks.Unlock(sessionID)

	res, err := a.checkpoints.Resolve(ctx, sessionID, checkpointID, optionID)
	if err != nil {
		recordResolution(err)
		return nil, err
	}

	sess, rev, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{SessionID: sessionID, Route: router.RouteResolveCheckpoint}
	reply := a.afterResolution(ctx, sess, res, result)

	sess.AppendMessage("assistant", reply)
	sess.UpdatedAt = time.Now().UTC()
	if err := a.sessions.Update(ctx, sess, rev); err != nil {
		return nil, fmt.Errorf("persist resolution: %w", err)
	}

	result.Reply = reply
	result.Status = sess.Status
	metrics.CheckpointResolutions.WithLabelValues(string(res.Option.Action), resolutionOutcome(res)).Inc()
	return result, nil
}

func (a *Assistant) loadOrCreate(ctx context.Context, sessionID string) (*session.Session, uint64, error) {
	sess, rev, err := a.sessions.Get(ctx, sessionID)
	if err == nil {
		return sess, rev, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return nil, 0, err
	}

	sess = session.NewWithID(sessionID)
	if err := a.sessions.Create(ctx, sess); err != nil && !errors.Is(err, session.ErrAlreadyExists) {
		return nil, 0, fmt.Errorf("create session: %w", err)
	}
	return a.sessions.Get(ctx, sessionID)
}
