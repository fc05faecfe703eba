package llm

import (
	"errors"
	"strings"
	"time"
)

// ErrRateLimited marks errors caused by provider rate limiting. Wrapped
// errors match with errors.Is(err, ErrRateLimited).
var ErrRateLimited = errors.New("rate limited")

// RateLimitError carries the structured details of a 429-style rejection.
type RateLimitError struct {
	StatusCode int
	RetryAfter time.Duration // zero when the server gave no hint
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return "rate limited: " + e.Err.Error()
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// statusCoder is implemented by SDK errors that expose an HTTP status.
type statusCoder interface {
	HTTPStatusCode() int
}

// IsRateLimit reports whether an error is a rate-limit condition.
// Detection priority: structured type, then status code, then a
// conservative string fallback.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatusCode() == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limit_error") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429")
}

// RetryAfterHint returns the server-provided retry-after duration, if the
// error carries one.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter, true
	}
	return 0, false
}

// classify wraps provider errors that look like rate limits in a
// RateLimitError so callers can retry on a structured signal instead of
// re-matching strings.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return err
	}
	if IsRateLimit(err) {
		return &RateLimitError{StatusCode: 429, Err: err}
	}
	return err
}
