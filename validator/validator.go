// Package validator screens accumulated findings for contradictory
// evidence. A detected conflict is a checkpoint trigger, so the screen
// must always produce an answer: the oracle judges nuance, and a
// keyword heuristic stands in when the oracle is unavailable.
package validator

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

// Conflict describes a contradiction between two findings.
type Conflict struct {
	// TaskIDs names the findings' tasks.
	TaskIDs [2]string `json:"task_ids"`

	// Explanation says what contradicts what.
	Explanation string `json:"explanation"`
}

// Validator screens finding pairs for contradictions.
type Validator struct {
	client *llm.Client
	logger *slog.Logger
}

// New creates a validator. A nil client uses the keyword heuristic only.
func New(client *llm.Client, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{client: client, logger: logger}
}

const validatorSystemPrompt = `You check biomedical research findings for contradictions.
Two findings conflict when they make opposing claims about the same relationship
(e.g. one reports increased risk where the other reports decreased risk).
Respond with JSON only: {"conflict": true|false, "explanation": "..."}.
Different topics or different strengths of the same direction are NOT conflicts.`

// Screen checks the newest finding against the earlier ones. It never
// returns an error; oracle failure falls back to the keyword screen.
func (v *Validator) Screen(ctx context.Context, findings []session.Finding) *Conflict {
	if len(findings) < 2 {
		return nil
	}
	latest := findings[len(findings)-1]

	for _, earlier := range findings[:len(findings)-1] {
		if conflict := v.screenPair(ctx, earlier, latest); conflict != nil {
			return conflict
		}
	}
	return nil
}

func (v *Validator) screenPair(ctx context.Context, a, b session.Finding) *Conflict {
	if conflict, ok := v.oraclePair(ctx, a, b); ok {
		return conflict
	}
	return keywordPair(a, b)
}

func (v *Validator) oraclePair(ctx context.Context, a, b session.Finding) (*Conflict, bool) {
	if v.client == nil {
		return nil, false
	}

	user := fmt.Sprintf("Finding A (%s): %s\nFinding B (%s): %s",
		a.TaskID, a.Statement, b.TaskID, b.Statement)

	resp, err := v.client.Complete(ctx, llm.Request{
		Capability: model.CapabilityFast.String(),
		Messages: []llm.Message{
			{Role: "system", Content: validatorSystemPrompt},
			{Role: "user", Content: user},
		},
		MaxTokens: 256,
	})
	if err != nil {
		v.logger.Warn("Conflict screen fell back to keywords", "error", err)
		return nil, false
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return nil, false
	}
	var parsed struct {
		Conflict    bool   `json:"conflict"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, false
	}

	if !parsed.Conflict {
		return nil, true
	}
	return &Conflict{
		TaskIDs:     [2]string{a.TaskID, b.TaskID},
		Explanation: parsed.Explanation,
	}, true
}

// opposingMarkers are direction words whose co-occurrence across two
// findings on overlapping text suggests a contradiction.
var opposingMarkers = [][2]string{
	{"increase", "decrease"},
	{"increased", "decreased"},
	{"higher", "lower"},
	{"protective", "harmful"},
	{"improve", "worsen"},
	{"no association", "associated with"},
	{"reduced risk", "elevated risk"},
}

// keywordPair is the deterministic fallback screen.
func keywordPair(a, b session.Finding) *Conflict {
	textA := strings.ToLower(a.Statement)
	textB := strings.ToLower(b.Statement)

	for _, pair := range opposingMarkers {
		if (strings.Contains(textA, pair[0]) && strings.Contains(textB, pair[1])) ||
			(strings.Contains(textA, pair[1]) && strings.Contains(textB, pair[0])) {
			return &Conflict{
				TaskIDs: [2]string{a.TaskID, b.TaskID},
				Explanation: fmt.Sprintf("findings report opposing directions (%q vs %q)",
					pair[0], pair[1]),
			}
		}
	}
	return nil
}
