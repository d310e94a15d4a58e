// Package catalog indexes curated local corpora (PubMedQA-style JSONL
// dumps) so research tasks can search them offline alongside the live
// literature APIs.
package catalog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/shivam-kaushik/co-investigator/session"
	"github.com/shivam-kaushik/co-investigator/sources"
)

// DefaultPatterns matches the corpus layouts we ship: JSONL dumps
// nested at any depth.
var DefaultPatterns = []string{"**/*.jsonl", "**/*.ndjson"}

// record is one line of a corpus file.
type record struct {
	ID       string `json:"id"`
	PubID    string `json:"pubid"`
	Title    string `json:"title"`
	Question string `json:"question"`
	Text     string `json:"text"`
	Context  string `json:"context"`
	Answer   string `json:"long_answer"`
	URL      string `json:"url"`
	Year     int    `json:"year"`
}

func (r *record) id() string {
	if r.ID != "" {
		return r.ID
	}
	return r.PubID
}

func (r *record) title() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Question
}

func (r *record) body() string {
	parts := []string{r.Question, r.Context, r.Text, r.Answer}
	return strings.Join(parts, " ")
}

// Catalog is a glob-discovered set of local corpus files.
type Catalog struct {
	root     string
	patterns []string
	logger   *slog.Logger

	mu    sync.RWMutex
	files []string
}

// New creates a catalog over root. Patterns are doublestar globs
// relative to root; nil uses DefaultPatterns.
func New(root string, patterns []string, logger *slog.Logger) *Catalog {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{root: root, patterns: patterns, logger: logger}
}

// Refresh re-discovers corpus files under the root.
func (c *Catalog) Refresh() error {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range c.patterns {
		matches, err := doublestar.FilepathGlob(filepath.Join(c.root, pattern))
		if err != nil {
			return fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)

	c.mu.Lock()
	c.files = files
	c.mu.Unlock()

	c.logger.Debug("Catalog refreshed", "root", c.root, "files", len(files))
	return nil
}

// Files returns the discovered corpus files.
func (c *Catalog) Files() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.files...)
}

// Name implements sources.Client.
func (c *Catalog) Name() string { return "local" }

// Search implements sources.Client: a term scan over the indexed
// corpus files. Every significant query term must appear in a record.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]session.Evidence, error) {
	if limit <= 0 {
		limit = 10
	}
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var evidence []session.Evidence
	for _, file := range c.Files() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := c.searchFile(file, terms, limit-len(evidence))
		if err != nil {
			c.logger.Warn("Corpus file unreadable, skipping", "file", file, "error", err)
			continue
		}
		evidence = append(evidence, found...)
		if len(evidence) >= limit {
			break
		}
	}
	return evidence, nil
}

func (c *Catalog) searchFile(path string, terms []string, limit int) ([]session.Evidence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var evidence []session.Evidence
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() && len(evidence) < limit {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if !matchesAll(strings.ToLower(rec.body()), terms) {
			continue
		}
		snippet := rec.Answer
		if snippet == "" {
			snippet = rec.Context
		}
		snippet = sources.Truncate(snippet, 500)
		evidence = append(evidence, session.Evidence{
			ID:      "local:" + rec.id(),
			Source:  c.Name(),
			Title:   rec.title(),
			Snippet: snippet,
			URL:     rec.URL,
			Year:    rec.Year,
		})
	}
	return evidence, scanner.Err()
}

func queryTerms(query string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if len(t) > 3 {
			terms = append(terms, t)
		}
	}
	return terms
}

func matchesAll(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}
