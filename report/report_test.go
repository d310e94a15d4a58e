package report

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/shivam-kaushik/co-investigator/session"
)

func reportSession() *session.Session {
	sess := session.NewWithID("sess-report01")
	sess.ResearchGoal = "aspirin and colorectal cancer prevention"
	sess.Plan = session.NewPlan(sess.ResearchGoal, []session.Task{
		{Description: "search literature", Tool: "openalex"},
		{Description: "scan preprints", Tool: "biorxiv"},
	})
	sess.Plan.Tasks[0].Status = session.TaskStatusCompleted
	sess.Plan.Tasks[1].Status = session.TaskStatusSkipped
	sess.Findings = []session.Finding{
		{
			TaskID:    "task-1",
			Statement: "Long-term daily aspirin is associated with reduced colorectal cancer incidence",
			Evidence: []session.Evidence{
				{ID: "W1", Title: "Aspirin chemoprevention cohort", URL: "https://doi.org/10.1000/x", Year: 2022},
			},
		},
	}
	return sess
}

func TestFallbackReportStructure(t *testing.T) {
	g := NewGenerator(nil, nil)
	report := g.Synthesize(context.Background(), reportSession())

	for _, want := range []string{
		"# Research Report: aspirin and colorectal cancer prevention",
		"## Findings",
		"reduced colorectal cancer incidence",
		"Aspirin chemoprevention cohort",
		"## Limitations",
		"scan preprints (skipped)",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestFallbackReportNoFindings(t *testing.T) {
	g := NewGenerator(nil, nil)
	sess := session.NewWithID("sess-empty001")
	sess.ResearchGoal = "anything"

	report := g.Synthesize(context.Background(), sess)
	if !strings.Contains(report, "No findings were gathered") {
		t.Errorf("report = %q", report)
	}
}

func TestSinkExportMarkdown(t *testing.T) {
	sess := reportSession()
	sess.Report = "# Report\n\nBody.\n"

	sink := NewSink(t.TempDir())
	path, err := sink.Export(sess, FormatMarkdown)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	if !strings.HasSuffix(path, ".md") || !strings.Contains(path, "sess-report01") {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != sess.Report {
		t.Errorf("written report = %q", data)
	}
}

func TestSinkExportJSON(t *testing.T) {
	sink := NewSink(t.TempDir())
	path, err := sink.Export(reportSession(), FormatJSON)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		SessionID string            `json:"session_id"`
		Findings  []session.Finding `json:"findings"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if out.SessionID != "sess-report01" || len(out.Findings) != 1 {
		t.Errorf("export = %+v", out)
	}
}

func TestSinkExportErrors(t *testing.T) {
	sink := NewSink(t.TempDir())

	if _, err := sink.Export(reportSession(), FormatMarkdown); err == nil {
		t.Error("export without a synthesized report should fail")
	}
	if _, err := sink.Export(reportSession(), Format("rdf")); err == nil {
		t.Error("unknown format should fail")
	}
}
