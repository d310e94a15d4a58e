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

// DefaultPubMedURL is the NCBI E-utilities endpoint.
const DefaultPubMedURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMed searches MEDLINE via the NCBI E-utilities: esearch for PMIDs,
// then esummary for the record details.
type PubMed struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewPubMed creates a PubMed client. apiKey is optional; NCBI allows
// higher request rates with one.
func NewPubMed(baseURL, apiKey string, timeout time.Duration) *PubMed {
	if baseURL == "" {
		baseURL = DefaultPubMedURL
	}
	return &PubMed{baseURL: baseURL, apiKey: apiKey, client: newHTTPClient(timeout)}
}

// Name implements Client.
func (p *PubMed) Name() string { return "pubmed" }

type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type esummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

type esummaryDoc struct {
	UID     string `json:"uid"`
	Title   string `json:"title"`
	PubDate string `json:"pubdate"`
	Source  string `json:"source"`
}

// Search implements Client.
func (p *PubMed) Search(ctx context.Context, query string, limit int) ([]session.Evidence, error) {
	limit = clampLimit(limit)

	ids, err := p.esearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return p.esummary(ctx, ids)
}

func (p *PubMed) esearch(ctx context.Context, query string, limit int) ([]string, error) {
	u := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&retmode=json&sort=relevance&term=%s&retmax=%d",
		p.baseURL, url.QueryEscape(query), limit)
	if p.apiKey != "" {
		u += "&api_key=" + url.QueryEscape(p.apiKey)
	}

	var parsed esearchResponse
	if err := p.getJSON(ctx, u, &parsed); err != nil {
		return nil, fmt.Errorf("pubmed esearch: %w", err)
	}
	return parsed.ESearchResult.IDList, nil
}

func (p *PubMed) esummary(ctx context.Context, ids []string) ([]session.Evidence, error) {
	u := fmt.Sprintf("%s/esummary.fcgi?db=pubmed&retmode=json&id=%s",
		p.baseURL, url.QueryEscape(strings.Join(ids, ",")))
	if p.apiKey != "" {
		u += "&api_key=" + url.QueryEscape(p.apiKey)
	}

	var parsed esummaryResponse
	if err := p.getJSON(ctx, u, &parsed); err != nil {
		return nil, fmt.Errorf("pubmed esummary: %w", err)
	}

	// Iterate the requested IDs so ordering follows search relevance;
	// the result map also carries a non-document "uids" key.
	evidence := make([]session.Evidence, 0, len(ids))
	for _, id := range ids {
		raw, ok := parsed.Result[id]
		if !ok {
			continue
		}
		var doc esummaryDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		evidence = append(evidence, session.Evidence{
			ID:      "PMID:" + doc.UID,
			Source:  p.Name(),
			Title:   doc.Title,
			Snippet: doc.Source,
			URL:     "https://pubmed.ncbi.nlm.nih.gov/" + doc.UID + "/",
			Year:    yearFromDate(doc.PubDate),
		})
	}
	return evidence, nil
}

func (p *PubMed) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
