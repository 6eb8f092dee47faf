package types

import (
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"
)

// RetryPolicy controls how the request client retries failed requests. It is
// attached to a client at construction and immutable for the client's
// lifetime. A policy never issues more than MaxAttempts tries for one
// logical request.
type RetryPolicy struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	Multiplier        float64       `yaml:"multiplier"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	JitterMax         time.Duration `yaml:"jitter_max"`
	RetryableStatuses []int         `yaml:"retryable_statuses"`
}

// DefaultRetryPolicy returns the policy applied when a service descriptor
// does not configure one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    5 * time.Second,
		JitterMax:   100 * time.Millisecond,
		RetryableStatuses: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultRetryPolicy. JitterMax
// is left as configured; zero jitter is a valid choice.
func (p RetryPolicy) WithDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.RetryableStatuses == nil {
		p.RetryableStatuses = def.RetryableStatuses
	}
	return p
}

// Retryable reports whether the given HTTP status should be retried.
func (p RetryPolicy) Retryable(status int) bool {
	return slices.Contains(p.RetryableStatuses, status)
}

// RateLimitPolicy configures the token bucket owned by one request client.
// A zero policy disables rate limiting.
type RateLimitPolicy struct {
	Capacity        int           `yaml:"capacity"`
	RefillPerSecond float64       `yaml:"refill_per_second"`
	MaxWait         time.Duration `yaml:"max_wait"`
}

// Enabled reports whether the policy describes an active limiter.
func (p RateLimitPolicy) Enabled() bool {
	return p.Capacity > 0 && p.RefillPerSecond > 0
}

// ServiceDescriptor describes one externally-running system under test.
// Descriptors are constructed once at run start from configuration and are
// immutable afterwards; they are passed by value into the runner rather than
// held in any process-wide registry.
type ServiceDescriptor struct {
	Name           string          `yaml:"name"`
	BaseURL        string          `yaml:"base_url"`
	Timeout        time.Duration   `yaml:"timeout"`
	HealthEndpoint string          `yaml:"health_endpoint"`
	Required       bool            `yaml:"required"`
	Retry          RetryPolicy     `yaml:"retry"`
	RateLimit      RateLimitPolicy `yaml:"rate_limit"`
}

// Validate checks the descriptor for the fields the engine cannot default.
func (s ServiceDescriptor) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if s.BaseURL == "" {
		return fmt.Errorf("service %s: base_url is required", s.Name)
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return fmt.Errorf("service %s: invalid base_url %q: %w", s.Name, s.BaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("service %s: base_url %q must include scheme and host", s.Name, s.BaseURL)
	}
	if s.RateLimit.MaxWait < 0 {
		return fmt.Errorf("service %s: rate_limit.max_wait cannot be negative", s.Name)
	}
	return nil
}
