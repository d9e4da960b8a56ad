package clients

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig defines retry behavior for optimistic-concurrency conflicts.
// Transport and generic API failures are never retried here: the next
// scheduled sync run is the retry mechanism for those.
type RetryConfig struct {
	MaxRetries     int           // Maximum number of retry attempts
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
	BackoffFactor  float64       // Multiplier for exponential backoff
	Jitter         float64       // Random jitter factor (0-1)
}

// DefaultRetryConfig retries a version conflict once after re-reading
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     1,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
	}
}

// RetryResult contains the result of a retry operation
type RetryResult struct {
	Attempts      int
	LastError     error
	TotalDuration time.Duration
}

// ConflictRetrier re-runs an operation when the remote reports a stale version
type ConflictRetrier struct {
	config *RetryConfig
}

// NewConflictRetrier creates a new retrier with the given config
func NewConflictRetrier(config *RetryConfig) *ConflictRetrier {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &ConflictRetrier{config: config}
}

// ShouldRetry determines if an error should be retried
func (r *ConflictRetrier) ShouldRetry(err error) bool {
	return err != nil && errors.Is(err, ErrVersionConflict)
}

// CalculateBackoff calculates the backoff duration for a given attempt
func (r *ConflictRetrier) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(r.config.InitialBackoff) * math.Pow(r.config.BackoffFactor, float64(attempt))

	if r.config.Jitter > 0 {
		jitter := backoff * r.config.Jitter * (rand.Float64()*2 - 1)
		backoff += jitter
	}

	if backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}

	return time.Duration(backoff)
}

// RetryableFunc is one attempt; attempt is 0 for the first call, so the
// function knows when it must re-read remote state first.
type RetryableFunc func(ctx context.Context, attempt int) error

// Do executes fn, retrying only on version conflicts
func (r *ConflictRetrier) Do(ctx context.Context, operation string, fn RetryableFunc) *RetryResult {
	result := &RetryResult{}
	startTime := time.Now()

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		err := fn(ctx, attempt)
		result.LastError = err

		if err == nil || !r.ShouldRetry(err) {
			result.TotalDuration = time.Since(startTime)
			return result
		}

		if attempt >= r.config.MaxRetries {
			result.LastError = fmt.Errorf("conflict retries exhausted for %s: %w", operation, err)
			result.TotalDuration = time.Since(startTime)
			return result
		}

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		case <-time.After(r.CalculateBackoff(attempt)):
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}
