package llm

import (
	"net/http"
	"sync"
)

// Provider adapts one model API's wire format. The client speaks a
// single Request/Response shape; providers translate it for gemini,
// anthropic, and openai-compatible endpoints (including the local
// fixture server used in development).
type Provider interface {
	// Name returns the provider identifier (e.g., "gemini", "anthropic").
	Name() string

	// BuildURL constructs the full API endpoint URL. Some providers
	// (Gemini) encode the model into the path.
	BuildURL(baseURL, model string) string

	// SetHeaders adds provider-specific auth and version headers.
	SetHeaders(req *http.Request)

	// BuildRequestBody creates the JSON request body. temperature nil
	// means the provider default.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)

	// ParseResponse extracts the response from provider-specific JSON.
	ParseResponse(body []byte, model string) (*Response, error)
}

var (
	providerMu sync.RWMutex
	providers  = make(map[string]Provider)
)

// RegisterProvider adds a provider. Called from provider init()
// functions; importing llm/providers registers the full set.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providers[p.Name()] = p
}

// GetProvider retrieves a provider by name, nil when unregistered.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providers[name]
}

// ListProviders returns all registered provider names.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
