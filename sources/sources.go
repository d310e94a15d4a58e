// Package sources provides the retrieval clients research tasks run
// against: literature APIs, variant registries, and local corpora. A
// Runner dispatches each task to the client its tool names.
package sources

import (
	"context"
	"net/http"
	"time"

	"github.com/shivam-kaushik/co-investigator/session"
)

// UserAgent identifies this service to upstream APIs. NCBI and
// OpenAlex both ask for a contact address in the agent string.
const UserAgent = "co-investigator/1.0 (mailto:research@co-investigator.dev)"

// DefaultLimit bounds how many records a single search returns.
const DefaultLimit = 10

// Client retrieves evidence from one source.
type Client interface {
	// Name is the tool name tasks reference.
	Name() string

	// Search returns up to limit evidence records for the query.
	// An empty slice with a nil error means the source had nothing.
	Search(ctx context.Context, query string, limit int) ([]session.Evidence, error)
}

// newHTTPClient returns the shared client shape for source APIs.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 50 {
		return DefaultLimit
	}
	return limit
}
