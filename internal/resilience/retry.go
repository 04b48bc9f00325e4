// Package resilience provides retry handling for transient model failures.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/aws/smithy-go"
)

// Config configuration for retry logic
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     bool
}

// transientCodes are provider error codes worth retrying.
var transientCodes = map[string]struct{}{
	"ThrottlingException":         {},
	"ServiceUnavailableException": {},
	"ModelStreamErrorException":   {},
	"InternalServerException":     {},
	"ModelTimeoutException":       {},
	"ModelErrorException":         {},
}

// retryableStatuses are HTTP statuses worth retrying.
var retryableStatuses = map[int]struct{}{
	429: {},
	500: {},
	502: {},
	503: {},
	504: {},
}

// RetryAfterProvider is implemented by errors carrying a provider-supplied
// retry hint.
type RetryAfterProvider interface {
	RetryAfterHint() time.Duration
}

// statusCoder is implemented by errors carrying an HTTP status.
type statusCoder interface {
	HTTPStatusCode() int
}

// Strategy decides whether and when to retry failed attempts.
// OnRetry, when set, is called before each backoff sleep.
type Strategy struct {
	cfg     Config
	OnRetry func(attempt int, delay time.Duration, err error)
}

// New creates a retry strategy from config
func New(cfg Config) *Strategy {
	return &Strategy{cfg: cfg}
}

// ShouldRetry reports whether the error on the given 0-based attempt warrants
// another try.
func (s *Strategy) ShouldRetry(err error, attempt int) bool {
	if attempt >= s.cfg.MaxRetries {
		return false
	}
	return isRetryable(err)
}

// Delay returns how long to wait after the given 0-based attempt failed.
// A positive retryAfter hint from the provider overrides the computed
// backoff, still clamped to the configured maximum.
func (s *Strategy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > s.cfg.MaxDelay {
			return s.cfg.MaxDelay
		}
		return retryAfter
	}

	// Exponential backoff: base * 2^attempt
	backoff := time.Duration(float64(s.cfg.BaseDelay) * math.Pow(2, float64(attempt)))
	if backoff > s.cfg.MaxDelay || backoff <= 0 {
		backoff = s.cfg.MaxDelay
	}

	if s.cfg.Jitter {
		// ±25% uniform jitter
		jitterRange := float64(backoff) * 0.25
		jitterAmount := (rand.Float64() - 0.5) * 2 * jitterRange
		backoff += time.Duration(jitterAmount)
	}

	if backoff < 0 {
		backoff = s.cfg.BaseDelay
	}

	return backoff
}

// Do runs fn with retries. It returns the number of retries performed and
// the final error. On exhaustion the last error is returned unchanged so
// callers can still classify it.
func (s *Strategy) Do(ctx context.Context, fn func() error) (int, error) {
	var lastErr error

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, err
		}

		err := fn()
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !s.ShouldRetry(err, attempt) {
			return attempt, err
		}

		delay := s.Delay(attempt, RetryAfter(err))
		if s.OnRetry != nil {
			s.OnRetry(attempt+1, delay, err)
		}
		slog.Warn("Retrying after transient failure",
			"attempt", attempt+1,
			"max_retries", s.cfg.MaxRetries,
			"delay", delay,
			"error", err,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}

	return s.cfg.MaxRetries, lastErr
}

// RetryAfter extracts a provider retry hint from err, zero if absent.
func RetryAfter(err error) time.Duration {
	var rp RetryAfterProvider
	if errors.As(err, &rp) {
		return rp.RetryAfterHint()
	}
	return 0
}

// isRetryable classifies an error as transient or not. Typed checks run
// first; the message scan is a last resort for errors that lost their type
// through wrapping.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := transientCodes[apiErr.ErrorCode()]; ok {
			return true
		}
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		if _, ok := retryableStatuses[sc.HTTPStatusCode()]; ok {
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"throttl",
		"too many requests",
		"service unavailable",
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
