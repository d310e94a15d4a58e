package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shivam-kaushik/co-investigator/assistant"
	"github.com/shivam-kaushik/co-investigator/checkpoint"
	"github.com/shivam-kaushik/co-investigator/executor"
	"github.com/shivam-kaushik/co-investigator/llm"
	_ "github.com/shivam-kaushik/co-investigator/llm/providers" // Register providers
	"github.com/shivam-kaushik/co-investigator/model"
	"github.com/shivam-kaushik/co-investigator/planner"
	"github.com/shivam-kaushik/co-investigator/report"
	"github.com/shivam-kaushik/co-investigator/retriever"
	"github.com/shivam-kaushik/co-investigator/router"
	"github.com/shivam-kaushik/co-investigator/session"
	"github.com/shivam-kaushik/co-investigator/validator"
)

type stubRunner struct{}

func (stubRunner) Run(_ context.Context, _ *session.Session, task *session.Task) (*session.TaskResult, error) {
	return &session.TaskResult{
		Summary:  "Found 2 records via openalex",
		Evidence: []session.Evidence{{ID: task.ID + "-ev", Source: "openalex", Title: "record"}},
	}, nil
}

// newTestServer wires the full API over in-memory stores. The
// classifier oracle always routes to new_goal; later turns are driven
// by tokens and option echoes.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	oracle := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, _ := json.Marshal(`{"route": "new_goal", "confidence": 0.95}`)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"model":"test-model","choices":[{"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, content)
	}))
	t.Cleanup(oracle.Close)

	registry := model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityFast: {Preferred: []string{"test-model"}},
		},
		map[string]*model.EndpointConfig{
			"test-model": {Provider: "openai", URL: oracle.URL, Model: "test-model"},
		},
	)
	client := llm.NewClient(registry, llm.WithRetryConfig(llm.RetryConfig{MaxAttempts: 1}))

	sessions := session.NewMemStore()
	manager := checkpoint.NewManager(checkpoint.NewMemStore(), sessions, checkpoint.NewOracleOptionGenerator(nil, nil), nil)

	a := assistant.New(assistant.Deps{
		Sessions:    sessions,
		Router:      router.New(client, 0.6, nil),
		Planner:     planner.New(nil, []string{"openalex", "pubmed"}, nil),
		Executor:    executor.New(stubRunner{}, executor.Config{ConfirmEachStep: true, HaltOnFailure: true, TaskTimeout: time.Second}, nil),
		Checkpoints: manager,
		Retriever:   retriever.New(nil, nil),
		Validator:   validator.New(nil, nil),
		Reports:     report.NewGenerator(nil, nil),
		Sink:        report.NewSink(t.TempDir()),
	})

	mux := http.NewServeMux()
	NewServer(a, manager, nil, nil).RegisterHTTPHandlers("/v1", mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", strings.NewReader(string(data)))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestTurnEndpoint(t *testing.T) {
	server := newTestServer(t)
	const sid = "sess-http0001"

	resp := postJSON(t, server.URL+"/v1/sessions/"+sid+"/turns",
		TurnRequest{Input: "investigate statin use and dementia incidence"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	result := decode[assistant.TurnResult](t, resp)
	if result.Status != session.StatusCheckpoint {
		t.Errorf("turn status = %s, want checkpoint", result.Status)
	}
	if result.Checkpoint == nil || len(result.Checkpoint.Options) < 3 {
		t.Fatalf("checkpoint = %+v, want at least 3 options", result.Checkpoint)
	}
}

func TestTurnEndpointBadRequests(t *testing.T) {
	server := newTestServer(t)

	// Malformed body
	resp, err := http.Post(server.URL+"/v1/sessions/sess-http0002/turns", "application/json",
		strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}

	// Blank input is not an error: it routes to the clarify fallback
	resp = postJSON(t, server.URL+"/v1/sessions/sess-http0002/turns", TurnRequest{Input: "  "})
	result := decode[assistant.TurnResult](t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("blank input status = %d, want 200", resp.StatusCode)
	}
	if result.Route != router.RouteClarify {
		t.Errorf("blank input route = %s, want clarify", result.Route)
	}
}

func TestGetSessionEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/v1/sessions/sess-missing1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", resp.StatusCode)
	}

	const sid = "sess-http0003"
	postJSON(t, server.URL+"/v1/sessions/"+sid+"/turns",
		TurnRequest{Input: "investigate CFTR modulators"}).Body.Close()

	resp, err = http.Get(server.URL + "/v1/sessions/" + sid)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	sess := decode[session.Session](t, resp)
	if sess.ID != sid || sess.Plan == nil {
		t.Errorf("session = (%s, plan=%v), want %s with plan", sess.ID, sess.Plan != nil, sid)
	}
}

func TestListCheckpointsEndpoint(t *testing.T) {
	server := newTestServer(t)
	const sid = "sess-http0004"

	postJSON(t, server.URL+"/v1/sessions/"+sid+"/turns",
		TurnRequest{Input: "investigate sepsis biomarkers"}).Body.Close()

	resp, err := http.Get(server.URL + "/v1/sessions/" + sid + "/checkpoints")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	list := decode[ListCheckpointsResponse](t, resp)
	if list.Total != 1 || len(list.Checkpoints) != 1 {
		t.Fatalf("list = %d checkpoints, want 1", list.Total)
	}
	if list.Checkpoints[0].Reason != checkpoint.ReasonFirstTask {
		t.Errorf("reason = %s, want first_task", list.Checkpoints[0].Reason)
	}
}

func TestResolveEndpoint(t *testing.T) {
	server := newTestServer(t)
	const sid = "sess-http0005"

	resp := postJSON(t, server.URL+"/v1/sessions/"+sid+"/turns",
		TurnRequest{Input: "investigate GLP-1 agonists"})
	turn := decode[assistant.TurnResult](t, resp)
	cpID := turn.Checkpoint.ID
	continueOpt := turn.Checkpoint.Options[0].ID

	base := server.URL + "/v1/sessions/" + sid + "/checkpoints/"

	// Bad checkpoint ID format
	resp = postJSON(t, base+"notacp/resolve", ResolveRequest{OptionID: continueOpt})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad ID format status = %d, want 400", resp.StatusCode)
	}

	// Unknown checkpoint
	resp = postJSON(t, base+"cp-missing1/resolve", ResolveRequest{OptionID: continueOpt})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown checkpoint status = %d, want 404", resp.StatusCode)
	}

	// Unknown option
	resp = postJSON(t, base+cpID+"/resolve", ResolveRequest{OptionID: "opt-99"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown option status = %d, want 400", resp.StatusCode)
	}

	// Apply the continue option
	resp = postJSON(t, base+cpID+"/resolve", ResolveRequest{OptionID: continueOpt})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", resp.StatusCode)
	}
	result := decode[assistant.TurnResult](t, resp)
	if result.Status != session.StatusExecuting {
		t.Errorf("post-resolve status = %s, want executing", result.Status)
	}

	// Replaying the same option is a no-op success
	resp = postJSON(t, base+cpID+"/resolve", ResolveRequest{OptionID: continueOpt})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("replay status = %d, want 200", resp.StatusCode)
	}

	// A different option after resolution conflicts
	other := turn.Checkpoint.Options[1].ID
	resp = postJSON(t, base+cpID+"/resolve", ResolveRequest{OptionID: other})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("conflicting re-resolve status = %d, want 409", resp.StatusCode)
	}
}

func TestStreamRequiresDurableStore(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/v1/checkpoints/stream")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("stream without durable store status = %d, want 503", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", resp.StatusCode)
	}
}
