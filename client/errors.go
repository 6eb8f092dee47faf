package client

import (
	"errors"
	"fmt"
	"time"
)

// ConnectionError represents a network-level failure to reach the service.
// Connection errors are retryable.
type ConnectionError struct {
	Method string
	URL    string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError checks if the error is or wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return err != nil && errors.As(err, &connErr)
}

// TimeoutError represents a request that exceeded its per-request timeout.
// Timeouts are retryable.
type TimeoutError struct {
	Method  string
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s %s", e.Timeout, e.Method, e.URL)
}

// Unwrap implements the errors.Unwrap interface
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// IsTimeoutError checks if the error is or wraps a TimeoutError.
func IsTimeoutError(err error) bool {
	var toErr *TimeoutError
	return err != nil && errors.As(err, &toErr)
}

// RateLimitError is returned when the bounded wait for a rate-limiter token
// expires. The client never blocks indefinitely on the limiter.
type RateLimitError struct {
	MaxWait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: no token available within %s", e.MaxWait)
}

// IsRateLimitError checks if the error is or wraps a RateLimitError.
func IsRateLimitError(err error) bool {
	var rlErr *RateLimitError
	return err != nil && errors.As(err, &rlErr)
}

// RetryExhaustedError is returned when every permitted attempt for one
// logical request has failed. It wraps the last observed error.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap implements the errors.Unwrap interface
func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// IsRetryExhausted checks if the error is or wraps a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var reErr *RetryExhaustedError
	return err != nil && errors.As(err, &reErr)
}

// retryableStatusError marks a response whose status is configured as
// retryable; it only ever surfaces wrapped inside a RetryExhaustedError.
type retryableStatusError struct {
	Status int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("server returned retryable status %d", e.Status)
}
