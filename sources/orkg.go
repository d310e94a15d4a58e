package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shivam-kaushik/co-investigator/session"
)

// DefaultORKGURL is the Open Research Knowledge Graph API.
const DefaultORKGURL = "https://orkg.org/api"

// ORKG searches the Open Research Knowledge Graph for structured
// research contributions.
type ORKG struct {
	baseURL string
	client  *http.Client
}

// NewORKG creates an ORKG client.
func NewORKG(baseURL string, timeout time.Duration) *ORKG {
	if baseURL == "" {
		baseURL = DefaultORKGURL
	}
	return &ORKG{baseURL: baseURL, client: newHTTPClient(timeout)}
}

// Name implements Client.
func (o *ORKG) Name() string { return "orkg" }

type orkgResponse struct {
	Content []struct {
		ID      string   `json:"id"`
		Label   string   `json:"label"`
		Classes []string `json:"classes"`
	} `json:"content"`
}

// Search implements Client.
func (o *ORKG) Search(ctx context.Context, query string, limit int) ([]session.Evidence, error) {
	limit = clampLimit(limit)

	u := fmt.Sprintf("%s/resources/?q=%s&exact=false&size=%d",
		o.baseURL, url.QueryEscape(query), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orkg search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("orkg search: HTTP %d", resp.StatusCode)
	}

	var parsed orkgResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode orkg response: %w", err)
	}

	evidence := make([]session.Evidence, 0, len(parsed.Content))
	for _, res := range parsed.Content {
		evidence = append(evidence, session.Evidence{
			ID:     "orkg:" + res.ID,
			Source: o.Name(),
			Title:  res.Label,
			URL:    "https://orkg.org/resource/" + res.ID,
		})
	}
	return evidence, nil
}
