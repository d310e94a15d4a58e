package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shivam-kaushik/co-investigator/session"
)

// DefaultClinGenURL is the ClinGen search service.
const DefaultClinGenURL = "https://search.clinicalgenome.org"

// ClinGen queries gene-disease validity and variant pathogenicity
// classifications from the Clinical Genome Resource.
type ClinGen struct {
	baseURL string
	client  *http.Client
}

// NewClinGen creates a ClinGen client.
func NewClinGen(baseURL string, timeout time.Duration) *ClinGen {
	if baseURL == "" {
		baseURL = DefaultClinGenURL
	}
	return &ClinGen{baseURL: baseURL, client: newHTTPClient(timeout)}
}

// Name implements Client.
func (c *ClinGen) Name() string { return "clingen" }

type clinGenResponse struct {
	Rows []struct {
		Symbol         string `json:"symbol"`
		Disease        string `json:"disease"`
		Classification string `json:"classification"`
		Moi            string `json:"moi"`
		ReportDate     string `json:"report_date"`
		Perm           string `json:"perm"`
	} `json:"rows"`
}

// Search implements Client.
func (c *ClinGen) Search(ctx context.Context, query string, limit int) ([]session.Evidence, error) {
	limit = clampLimit(limit)

	u := fmt.Sprintf("%s/api/s/suggest?q=%s&fmt=json", c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clingen search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clingen search: HTTP %d", resp.StatusCode)
	}

	var parsed clinGenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode clingen response: %w", err)
	}

	evidence := make([]session.Evidence, 0, len(parsed.Rows))
	for _, row := range parsed.Rows {
		if len(evidence) == limit {
			break
		}
		snippet := fmt.Sprintf("%s: %s", row.Disease, row.Classification)
		if row.Moi != "" {
			snippet += " (" + row.Moi + ")"
		}
		ev := session.Evidence{
			ID:      "clingen:" + row.Symbol + ":" + slugify(row.Disease),
			Source:  c.Name(),
			Title:   fmt.Sprintf("%s / %s", row.Symbol, row.Disease),
			Snippet: snippet,
			URL:     row.Perm,
			Year:    yearFromDate(row.ReportDate),
		}
		evidence = append(evidence, ev)
	}
	return evidence, nil
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "-")
}
