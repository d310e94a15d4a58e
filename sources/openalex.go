package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shivam-kaushik/co-investigator/session"
)

// DefaultOpenAlexURL is the public OpenAlex API.
const DefaultOpenAlexURL = "https://api.openalex.org"

// OpenAlex searches the OpenAlex scholarly works index.
type OpenAlex struct {
	baseURL string
	client  *http.Client
}

// NewOpenAlex creates an OpenAlex client. An empty baseURL uses the
// public API.
func NewOpenAlex(baseURL string, timeout time.Duration) *OpenAlex {
	if baseURL == "" {
		baseURL = DefaultOpenAlexURL
	}
	return &OpenAlex{baseURL: baseURL, client: newHTTPClient(timeout)}
}

// Name implements Client.
func (o *OpenAlex) Name() string { return "openalex" }

type openAlexResponse struct {
	Results []struct {
		ID                      string           `json:"id"`
		DOI                     string           `json:"doi"`
		Title                   string           `json:"title"`
		PublicationYear         int              `json:"publication_year"`
		RelevanceScore          float64          `json:"relevance_score"`
		AbstractInvertedIndex   map[string][]int `json:"abstract_inverted_index"`
		PrimaryLocation         *struct {
			LandingPageURL string `json:"landing_page_url"`
		} `json:"primary_location"`
	} `json:"results"`
}

// Search implements Client.
func (o *OpenAlex) Search(ctx context.Context, query string, limit int) ([]session.Evidence, error) {
	limit = clampLimit(limit)

	u := fmt.Sprintf("%s/works?search=%s&per-page=%d&sort=relevance_score:desc",
		o.baseURL, url.QueryEscape(query), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openalex search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openalex search: HTTP %d", resp.StatusCode)
	}

	var parsed openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode openalex response: %w", err)
	}

	evidence := make([]session.Evidence, 0, len(parsed.Results))
	for _, work := range parsed.Results {
		ev := session.Evidence{
			ID:      work.ID,
			Source:  o.Name(),
			Title:   work.Title,
			Snippet: reconstructAbstract(work.AbstractInvertedIndex),
			Year:    work.PublicationYear,
			Score:   work.RelevanceScore,
		}
		switch {
		case work.DOI != "":
			ev.URL = work.DOI
		case work.PrimaryLocation != nil:
			ev.URL = work.PrimaryLocation.LandingPageURL
		}
		evidence = append(evidence, ev)
	}
	return evidence, nil
}

// reconstructAbstract rebuilds abstract text from OpenAlex's inverted
// index (word -> positions), truncated for snippet use.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}

	type positioned struct {
		pos  int
		word string
	}
	var words []positioned
	for word, positions := range index {
		for _, pos := range positions {
			words = append(words, positioned{pos: pos, word: word})
		}
	}
	sort.Slice(words, func(i, j int) bool { return words[i].pos < words[j].pos })

	var sb strings.Builder
	for i, w := range words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w.word)
		if sb.Len() > 500 {
			sb.WriteString("…")
			break
		}
	}
	return sb.String()
}

// yearFromDate extracts a year from a loosely formatted date string.
func yearFromDate(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
