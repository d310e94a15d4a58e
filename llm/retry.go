package llm

import "time"

// RetryConfig bounds retries against one oracle endpoint before the
// client moves down the capability's fallback chain.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per endpoint.
	MaxAttempts int

	// BackoffBase is the initial backoff duration.
	BackoffBase time.Duration

	// BackoffMultiplier is applied to backoff on each retry.
	BackoffMultiplier float64

	// MaxBackoff caps the maximum backoff duration.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns retry defaults sized for conversational
// turns. Routing and planning calls happen while the researcher waits
// on a reply, so backoff starts at one second and the per-endpoint cap
// stays low; a persistently failing endpoint is better handled by the
// fallback chain than by longer waits.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
	}
}
