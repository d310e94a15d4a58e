package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shivam-kaushik/co-investigator/checkpoint"
	"github.com/shivam-kaushik/co-investigator/executor"
	"github.com/shivam-kaushik/co-investigator/metrics"
	"github.com/shivam-kaushik/co-investigator/report"
	"github.com/shivam-kaushik/co-investigator/session"
	"github.com/shivam-kaushik/co-investigator/validator"
)

// handleNewGoal creates a plan for the goal and raises the
// orientation checkpoint before the first task runs.
func (a *Assistant) handleNewGoal(ctx context.Context, sess *session.Session, goal string, result *TurnResult) (string, error) {
	plan, err := a.planner.CreatePlan(ctx, goal)
	if err != nil {
		// The session has not left idle; the error carries the reason.
		return "", err
	}

	if err := sess.Transition(session.StatusPlanning); err != nil {
		return "", err
	}
	sess.ResearchGoal = plan.Goal
	sess.Plan = plan
	sess.Cursor = session.ExecutionCursor{}
	sess.Findings = nil
	sess.Report = ""

	cp, err := a.checkpoints.Raise(ctx, sess, checkpoint.ReasonFirstTask, plan.Tasks[0].ID)
	if err != nil {
		return "", fmt.Errorf("raise orientation checkpoint: %w", err)
	}
	metrics.CheckpointsRaised.WithLabelValues(string(checkpoint.ReasonFirstTask)).Inc()
	result.Checkpoint = cp

	var sb strings.Builder
	fmt.Fprintf(&sb, "Here's the plan for %q:\n", plan.Goal)
	for _, task := range plan.Tasks {
		fmt.Fprintf(&sb, "%s. %s (via %s)\n", strings.TrimPrefix(task.ID, "task-"), task.Description, task.Tool)
	}
	sb.WriteByte('\n')
	sb.WriteString(cp.Prompt)
	sb.WriteByte('\n')
	sb.WriteString(optionsText(cp))
	return sb.String(), nil
}

// handleExecute runs exactly one task and evaluates the post-execution
// checkpoint triggers.
func (a *Assistant) handleExecute(ctx context.Context, sess *session.Session, result *TurnResult) (string, error) {
	if sess.Cursor.PausedQuestion {
		if err := a.executor.ResumeFromQuestion(sess); err != nil {
			return "", err
		}
	}

	task, err := a.executor.ExecuteNext(ctx, sess)
	if err != nil {
		var taskErr *executor.TaskError
		if !errors.As(err, &taskErr) {
			return "", err
		}
		// Task failure is a conversational outcome, not a turn error
	}
	if task == nil {
		return a.synthesize(ctx, sess, result), nil
	}

	conflict := a.screenConflict(ctx, sess, task)

	if reason, fire := checkpoint.EvaluateOutcome(task, conflict != nil); fire {
		cp, err := a.checkpoints.Raise(ctx, sess, reason, task.ID)
		if err != nil {
			return "", fmt.Errorf("raise checkpoint: %w", err)
		}
		metrics.CheckpointsRaised.WithLabelValues(string(reason)).Inc()
		result.Checkpoint = cp

		var sb strings.Builder
		sb.WriteString(taskOutcome(task))
		if conflict != nil {
			fmt.Fprintf(&sb, "\nPossible contradiction: %s", conflict.Explanation)
		}
		fmt.Fprintf(&sb, "\n\n%s\n%s", cp.Prompt, optionsText(cp))
		return sb.String(), nil
	}

	if sess.Status == session.StatusExhausted {
		return taskOutcome(task) + "\n\n" + a.synthesize(ctx, sess, result), nil
	}

	reply := taskOutcome(task)
	if next := sess.CurrentTask(); next != nil {
		reply += fmt.Sprintf("\n\nNext: %s. Say \"yes\" to run it, or ask me anything first.", next.Description)
	}
	return reply, nil
}

// handleQuestion answers a question; mid-plan it pauses execution so
// the cursor can be restored exactly when the user says to continue.
func (a *Assistant) handleQuestion(ctx context.Context, sess *session.Session, question string) (string, error) {
	switch sess.Status {
	case session.StatusExecuting, session.StatusAwaitingConfirmation:
		if err := a.executor.PauseForQuestion(sess); err != nil {
			return "", err
		}
	}

	answer := a.retriever.Answer(ctx, sess, question)
	if sess.Cursor.PausedQuestion {
		answer += "\n\nSay \"continue\" when you're ready to pick the research back up."
	}
	return answer, nil
}

// handleResolve applies a checkpoint option chosen conversationally.
// The checkpoint manager persists the session itself, so the caller's
// revision is refreshed before the turn's final write.
func (a *Assistant) handleResolve(ctx context.Context, sess *session.Session, rev uint64, active *checkpoint.Checkpoint, optionID string, result *TurnResult) (string, *session.Session, uint64, error) {
	if active == nil {
		return "There's no pending decision right now.", sess, rev, nil
	}
	if optionID == "" {
		return "Which option would you like? " + optionsText(active), sess, rev, nil
	}

	res, err := a.checkpoints.Resolve(ctx, sess.ID, active.ID, optionID)
	if err != nil {
		recordResolution(err)
		return "", sess, rev, err
	}

	fresh, frev, err := a.sessions.Get(ctx, sess.ID)
	if err != nil {
		return "", sess, rev, err
	}
	reply := a.afterResolution(ctx, fresh, res, result)
	metrics.CheckpointResolutions.WithLabelValues(string(res.Option.Action), resolutionOutcome(res)).Inc()
	return reply, fresh, frev, nil
}

func (a *Assistant) handleExit(sess *session.Session) (string, error) {
	if err := sess.Transition(session.StatusIdle); err != nil {
		return "", err
	}
	return "Wrapping up here. The report stays available, and you can give me a new research goal anytime.", nil
}

// afterResolution turns an applied option into the next conversational
// step: resume prompt, synthesis, export, or a clean reset.
func (a *Assistant) afterResolution(ctx context.Context, sess *session.Session, res *checkpoint.Resolution, result *TurnResult) string {
	switch {
	case res.Replayed:
		return "That decision was already applied; nothing changed."

	case res.Aborted:
		return "Research aborted and the plan discarded. Give me a new goal whenever you're ready."
	}

	if sess.Status == session.StatusExhausted {
		reply := a.synthesize(ctx, sess, result)
		if res.Export {
			path, err := a.sink.Export(sess, report.FormatMarkdown)
			if err != nil {
				a.logger.Warn("Report export failed", "session_id", sess.ID, "error", err)
			} else {
				result.ReportPath = path
				reply += fmt.Sprintf("\n\nExported to %s.", path)
			}
		}
		return reply
	}

	reply := "Got it."
	if res.SkipUnchanged {
		reply = "That step had already finished, so its status stands; moving on."
	}
	if next := sess.CurrentTask(); next != nil && !next.Status.IsTerminal() {
		reply += fmt.Sprintf(" Next: %s. Say \"yes\" to run it.", next.Description)
	}
	return reply
}

// synthesize composes the report and moves the session into follow-up.
func (a *Assistant) synthesize(ctx context.Context, sess *session.Session, result *TurnResult) string {
	if err := sess.Transition(session.StatusSynthesizing); err != nil {
		a.logger.Warn("Cannot enter synthesis", "session_id", sess.ID, "error", err)
		return "The research is complete."
	}

	sess.Report = a.reports.Synthesize(ctx, sess)
	if err := sess.Transition(session.StatusFollowup); err != nil {
		a.logger.Warn("Cannot enter follow-up", "session_id", sess.ID, "error", err)
	}

	return sess.Report + "\n\nHappy to answer follow-up questions, or say \"done\" to wrap up."
}

// screenConflict runs the validator after a completed task.
func (a *Assistant) screenConflict(ctx context.Context, sess *session.Session, task *session.Task) *validator.Conflict {
	if task.Status != session.TaskStatusCompleted || a.validator == nil {
		return nil
	}
	return a.validator.Screen(ctx, sess.Findings)
}

func taskOutcome(task *session.Task) string {
	if task.Result == nil {
		return fmt.Sprintf("Ran %s.", task.Description)
	}
	if task.Status == session.TaskStatusFailed {
		return fmt.Sprintf("The step %q failed: %s", task.Description, task.Result.Error)
	}
	if task.Result.Summary != "" {
		return task.Result.Summary
	}
	return fmt.Sprintf("Completed %s.", task.Description)
}

// clarifyReply builds a context-appropriate rephrase prompt. Clarify
// mutates nothing beyond conversation history.
func clarifyReply(sess *session.Session, active *checkpoint.Checkpoint) string {
	switch {
	case active != nil:
		return "I wasn't sure what you meant. There's a decision pending: " +
			active.Prompt + " " + optionsText(active)
	case sess.Status == session.StatusIdle:
		return "I wasn't sure what you meant. Tell me what you'd like to research, or ask a question."
	case sess.CurrentTask() != nil:
		return fmt.Sprintf("I wasn't sure what you meant. Say \"yes\" to run the next step (%s), or ask me a question about what we've found.",
			sess.CurrentTask().Description)
	default:
		return "I wasn't sure what you meant. Could you rephrase?"
	}
}

func optionsText(cp *checkpoint.Checkpoint) string {
	var sb strings.Builder
	sb.WriteString("Options:")
	for i, opt := range cp.Options {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, opt.Label)
	}
	return sb.String()
}

func resolutionOutcome(res *checkpoint.Resolution) string {
	if res.Replayed {
		return "replayed"
	}
	return "applied"
}

func recordResolution(err error) {
	outcome := "rejected"
	if checkpoint.IsStale(err) {
		outcome = "stale"
	}
	metrics.CheckpointResolutions.WithLabelValues("unknown", outcome).Inc()
}
