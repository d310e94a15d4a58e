package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shivam-kaushik/co-investigator/session"
)

// Manager raises and resolves checkpoints. Raising persists the
// checkpoint before it is surfaced; resolving is idempotent and
// applies the chosen option to the session under compare-and-swap.
type Manager struct {
	store    Store
	sessions session.Store
	options  OptionGenerator
	logger   *slog.Logger
}

// NewManager creates a checkpoint manager.
func NewManager(store Store, sessions session.Store, options OptionGenerator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		sessions: sessions,
		options:  options,
		logger:   logger,
	}
}

// Get retrieves a checkpoint by ID.
func (m *Manager) Get(ctx context.Context, id string) (*Checkpoint, error) {
	return m.store.Get(ctx, id)
}

// ListBySession returns all checkpoints for a session.
func (m *Manager) ListBySession(ctx context.Context, sessionID string) ([]*Checkpoint, error) {
	return m.store.ListBySession(ctx, sessionID)
}

// Raise creates a checkpoint for the trigger, persists it, and binds
// it to the session. The session record itself is persisted by the
// caller as part of the turn write.
func (m *Manager) Raise(ctx context.Context, sess *session.Session, reason Reason, taskID string) (*Checkpoint, error) {
	cp := New(sess, reason, taskID)

	opts, prompt, err := m.options.Generate(ctx, sess, reason, taskID)
	if err != nil {
		// Generate falls back internally; an error here means even the
		// fallback path broke.
		return nil, fmt.Errorf("generate options: %w", err)
	}
	cp.Options = opts
	cp.Prompt = prompt

	// Durably written before the user ever sees it
	if err := m.store.Put(ctx, cp); err != nil {
		return nil, fmt.Errorf("persist checkpoint: %w", err)
	}

	sess.ActiveCheckpointID = cp.ID
	if err := sess.Transition(session.StatusCheckpoint); err != nil {
		return nil, fmt.Errorf("enter checkpoint state: %w", err)
	}

	m.logger.Info("Checkpoint raised",
		"checkpoint_id", cp.ID,
		"session_id", sess.ID,
		"reason", string(reason),
		"task_id", taskID,
		"options", len(cp.Options))

	return cp, nil
}

// Resolution is the outcome of applying a checkpoint option.
type Resolution struct {
	// Checkpoint is the resolved checkpoint.
	Checkpoint *Checkpoint

	// Option is the option that was applied.
	Option Option

	// Session is the session state after applying the option.
	Session *session.Session

	// Export is set when the option asks for immediate synthesis.
	Export bool

	// Aborted is set when the plan was discarded.
	Aborted bool

	// Replayed is set when this call re-resolved with the same option
	// and nothing was applied again.
	Replayed bool

	// SkipUnchanged is set when a skip targeted a task already in a
	// terminal status, so its status was left alone.
	SkipUnchanged bool
}

// Resolve applies an option to a pending checkpoint.
//
// Re-resolving with the same option is a no-op success. Resolving with
// a different option returns ErrAlreadyResolved. Before applying, the
// statuses of the tasks the option touches are compared against the
// creation snapshot; any drift returns a *StaleError. The session
// write uses compare-and-swap with a single re-read retry.
func (m *Manager) Resolve(ctx context.Context, sessionID, checkpointID, optionID string) (*Resolution, error) {
	cp, err := m.store.Get(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if cp.SessionID != sessionID {
		return nil, ErrSessionMismatch
	}

	opt := cp.OptionByID(optionID)
	if opt == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOption, optionID)
	}

	if cp.Status == StatusResolved {
		if cp.ResolvedOptionID == optionID {
			sess, _, err := m.sessions.Get(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			return &Resolution{Checkpoint: cp, Option: *opt, Session: sess, Replayed: true}, nil
		}
		return nil, ErrAlreadyResolved
	}

	// Apply under CAS; a lost race re-reads and re-checks staleness once.
	for attempt := 0; attempt < 2; attempt++ {
		sess, rev, err := m.sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		if drifted := m.staleCheck(cp, opt, sess); len(drifted) > 0 {
			return nil, &StaleError{CheckpointID: cp.ID, Drifted: drifted}
		}

		res, err := m.apply(sess, cp, opt)
		if err != nil {
			return nil, err
		}

		if err := m.sessions.Update(ctx, sess, rev); err != nil {
			if errors.Is(err, session.ErrRevisionMismatch) {
				m.logger.Debug("Checkpoint apply lost CAS race, retrying",
					"checkpoint_id", cp.ID, "attempt", attempt+1)
				continue
			}
			return nil, fmt.Errorf("persist session: %w", err)
		}

		now := time.Now().UTC()
		cp.Status = StatusResolved
		cp.ResolvedOptionID = optionID
		cp.ResolvedAt = &now
		if err := m.store.Put(ctx, cp); err != nil {
			// The option is applied; losing the marker only costs
			// idempotency on replay, so surface the error.
			return nil, fmt.Errorf("mark checkpoint resolved: %w", err)
		}

		m.logger.Info("Checkpoint resolved",
			"checkpoint_id", cp.ID,
			"session_id", sessionID,
			"option_id", optionID,
			"action", string(opt.Action))

		res.Checkpoint = cp
		res.Session = sess
		return res, nil
	}

	return nil, session.ErrRevisionMismatch
}

// staleCheck compares the statuses of the tasks the option touches
// against the snapshot. Tasks outside the option's reach may drift
// freely without invalidating the decision.
func (m *Manager) staleCheck(cp *Checkpoint, opt *Option, sess *session.Session) []TaskDrift {
	if sess.Plan == nil || sess.Plan.ID != cp.PlanID {
		if len(opt.TouchedTaskIDs) == 0 {
			return nil
		}
		// The whole plan is gone; report every touched task as drifted.
		drifted := make([]TaskDrift, 0, len(opt.TouchedTaskIDs))
		for _, id := range opt.TouchedTaskIDs {
			drifted = append(drifted, TaskDrift{TaskID: id, Expected: cp.Snapshot[id]})
		}
		return drifted
	}

	current := sess.Plan.Statuses()
	var drifted []TaskDrift
	for _, id := range opt.TouchedTaskIDs {
		if current[id] != cp.Snapshot[id] {
			drifted = append(drifted, TaskDrift{
				TaskID:   id,
				Expected: cp.Snapshot[id],
				Actual:   current[id],
			})
		}
	}
	return drifted
}

// apply mutates the session according to the option's action.
func (m *Manager) apply(sess *session.Session, cp *Checkpoint, opt *Option) (*Resolution, error) {
	res := &Resolution{Option: *opt}
	sess.ActiveCheckpointID = ""

	switch opt.Action {
	case ActionContinue:
		return res, m.resumeExecution(sess)

	case ActionSkipTask:
		if sess.Plan != nil && opt.TaskID != "" {
			if task := sess.Plan.TaskByID(opt.TaskID); task != nil {
				// A terminal task (failed, completed) keeps its status;
				// skipped only ever replaces pending or in_progress.
				if task.Status.IsTerminal() {
					res.SkipUnchanged = true
					m.logger.Info("Skip left a terminal task unchanged",
						"session_id", sess.ID, "task_id", task.ID, "status", string(task.Status))
				} else {
					task.Status = session.TaskStatusSkipped
				}
				if cur := sess.CurrentTask(); cur != nil && cur.ID == opt.TaskID {
					sess.Cursor.Index++
				}
			}
		}
		return res, m.resumeExecution(sess)

	case ActionSkipRemaining, ActionExport:
		if sess.Plan != nil {
			for i := range sess.Plan.Tasks {
				if !sess.Plan.Tasks[i].Status.IsTerminal() {
					sess.Plan.Tasks[i].Status = session.TaskStatusSkipped
				}
			}
			sess.Cursor.Index = len(sess.Plan.Tasks)
		}
		res.Export = opt.Action == ActionExport
		return res, sess.Transition(session.StatusExhausted)

	case ActionAbort:
		res.Aborted = true
		sess.Plan = nil
		sess.ResearchGoal = ""
		sess.Cursor = session.ExecutionCursor{}
		return res, sess.Transition(session.StatusIdle)
	}

	return nil, fmt.Errorf("unknown action: %s", opt.Action)
}

// resumeExecution moves a session out of the checkpoint state based on
// what remains of the plan.
func (m *Manager) resumeExecution(sess *session.Session) error {
	if sess.Plan == nil || sess.Plan.Exhausted() {
		return sess.Transition(session.StatusExhausted)
	}
	// Step past any terminal tasks the cursor may be resting on
	for sess.CurrentTask() != nil && sess.CurrentTask().Status.IsTerminal() {
		sess.Cursor.Index++
	}
	if sess.CurrentTask() == nil {
		return sess.Transition(session.StatusExhausted)
	}
	return sess.Transition(session.StatusExecuting)
}
