package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shivam-kaushik/co-investigator/session"
)

// DefaultBioRxivURL is the public bioRxiv/medRxiv details API.
const DefaultBioRxivURL = "https://api.biorxiv.org"

// biorxivWindow is how far back the preprint scan reaches. The details
// API only serves date intervals, so search is a local filter over the
// recent window.
const biorxivWindow = 30 * 24 * time.Hour

// BioRxiv scans recent bioRxiv and medRxiv preprints for query terms.
type BioRxiv struct {
	baseURL string
	servers []string
	client  *http.Client
	now     func() time.Time
}

// NewBioRxiv creates a preprint client covering both bioRxiv and
// medRxiv.
func NewBioRxiv(baseURL string, timeout time.Duration) *BioRxiv {
	if baseURL == "" {
		baseURL = DefaultBioRxivURL
	}
	return &BioRxiv{
		baseURL: baseURL,
		servers: []string{"biorxiv", "medrxiv"},
		client:  newHTTPClient(timeout),
		now:     time.Now,
	}
}

// Name implements Client.
func (b *BioRxiv) Name() string { return "biorxiv" }

type biorxivResponse struct {
	Collection []struct {
		DOI      string `json:"doi"`
		Title    string `json:"title"`
		Abstract string `json:"abstract"`
		Date     string `json:"date"`
		Server   string `json:"server"`
	} `json:"collection"`
}

// Search implements Client. Records from the recent window are kept
// when every significant query term appears in the title or abstract.
func (b *BioRxiv) Search(ctx context.Context, query string, limit int) ([]session.Evidence, error) {
	limit = clampLimit(limit)
	terms := significantTerms(query)

	end := b.now().UTC()
	start := end.Add(-biorxivWindow)
	interval := fmt.Sprintf("%s/%s", start.Format("2006-01-02"), end.Format("2006-01-02"))

	var evidence []session.Evidence
	for _, server := range b.servers {
		u := fmt.Sprintf("%s/details/%s/%s/0/json", b.baseURL, server, interval)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", UserAgent)

		resp, err := b.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s details: %w", server, err)
		}

		var parsed biorxivResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s response: %w", server, err)
		}

		for _, pre := range parsed.Collection {
			if !matchesTerms(pre.Title+" "+pre.Abstract, terms) {
				continue
			}
			evidence = append(evidence, session.Evidence{
				ID:      "doi:" + pre.DOI,
				Source:  b.Name(),
				Title:   pre.Title,
				Snippet: truncate(pre.Abstract, 500),
				URL:     "https://doi.org/" + pre.DOI,
				Year:    yearFromDate(pre.Date),
			})
			if len(evidence) == limit {
				return evidence, nil
			}
		}
	}
	return evidence, nil
}

// significantTerms splits a query into lowercase terms, dropping
// short stopwords.
func significantTerms(query string) []string {
	var terms []string
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if len(term) > 3 {
			terms = append(terms, term)
		}
	}
	return terms
}

func matchesTerms(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	text = strings.ToLower(text)
	for _, term := range terms {
		if !strings.Contains(text, term) {
			return false
		}
	}
	return true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
