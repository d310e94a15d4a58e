package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shivam-kaushik/co-investigator/llm"
	_ "github.com/shivam-kaushik/co-investigator/llm/providers" // Register providers
	"github.com/shivam-kaushik/co-investigator/model"
)

var testTools = []string{"openalex", "pubmed", "biorxiv", "clingen"}

func oracleClient(t *testing.T, content string) (*llm.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		quoted, _ := json.Marshal(content)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"model":"test-model","choices":[{"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, quoted)
	}))

	registry := model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityReasoning: {Preferred: []string{"test-model"}},
		},
		map[string]*model.EndpointConfig{
			"test-model": {Provider: "openai", URL: server.URL, Model: "test-model"},
		},
	)
	return llm.NewClient(registry, llm.WithRetryConfig(llm.RetryConfig{MaxAttempts: 1})), server
}

func TestCreatePlanFromOracle(t *testing.T) {
	client, server := oracleClient(t, `[
		{"description": "Search OpenAlex for CFTR modulator trials", "tool": "openalex"},
		{"description": "Search PubMed for rare genotype case reports", "tool": "pubmed"},
		{"description": "Check ClinGen classifications for CFTR variants", "tool": "clingen"}
	]`)
	defer server.Close()

	p := New(client, testTools, nil)
	plan, err := p.CreatePlan(context.Background(), "CFTR modulator response in rare genotypes")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	if len(plan.Tasks) != 3 {
		t.Fatalf("task count = %d, want 3", len(plan.Tasks))
	}
	if plan.Tasks[0].ID != "task-1" || plan.Tasks[2].ID != "task-3" {
		t.Errorf("task IDs not sequential: %s..%s", plan.Tasks[0].ID, plan.Tasks[2].ID)
	}
	if plan.Tasks[2].Tool != "clingen" {
		t.Errorf("task 3 tool = %s, want clingen", plan.Tasks[2].Tool)
	}
	if plan.Goal == "" || plan.ID == "" {
		t.Error("plan missing goal or ID")
	}
}

func TestCreatePlanRejectsUnknownTools(t *testing.T) {
	// Two usable steps survive; the hallucinated tool is dropped
	client, server := oracleClient(t, `[
		{"description": "Search OpenAlex", "tool": "openalex"},
		{"description": "Query the hospital EHR", "tool": "ehr_system"},
		{"description": "Search PubMed", "tool": "pubmed"}
	]`)
	defer server.Close()

	p := New(client, testTools, nil)
	plan, err := p.CreatePlan(context.Background(), "statin use and dementia")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	for _, task := range plan.Tasks {
		if task.Tool == "ehr_system" {
			t.Error("unknown tool survived into the plan")
		}
	}
	if len(plan.Tasks) != 2 {
		t.Errorf("task count = %d, want 2", len(plan.Tasks))
	}
}

func TestCreatePlanFallsBackToTemplate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	registry := model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityReasoning: {Preferred: []string{"test-model"}},
		},
		map[string]*model.EndpointConfig{
			"test-model": {Provider: "openai", URL: server.URL, Model: "test-model"},
		},
	)
	client := llm.NewClient(registry, llm.WithRetryConfig(llm.RetryConfig{MaxAttempts: 1}))

	p := New(client, []string{"openalex", "clingen"}, nil)
	plan, err := p.CreatePlan(context.Background(), "aspirin and colorectal cancer prevention")
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	// Template filtered to the registered tools
	if len(plan.Tasks) != 2 {
		t.Fatalf("task count = %d, want 2", len(plan.Tasks))
	}
	if plan.Tasks[0].Tool != "openalex" || plan.Tasks[1].Tool != "clingen" {
		t.Errorf("template tools = %s, %s", plan.Tasks[0].Tool, plan.Tasks[1].Tool)
	}
}

func TestCreatePlanErrors(t *testing.T) {
	p := New(nil, testTools, nil)

	var planErr *PlanError
	if _, err := p.CreatePlan(context.Background(), "   "); !errors.As(err, &planErr) {
		t.Errorf("empty goal = %v, want *PlanError", err)
	}

	noTools := New(nil, nil, nil)
	if _, err := noTools.CreatePlan(context.Background(), "anything"); !errors.As(err, &planErr) {
		t.Errorf("no tools = %v, want *PlanError", err)
	}
}
