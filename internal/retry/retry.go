// Package retry runs operations that can fail transiently with exponential
// backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Config controls retry behavior for transient failures.
type Config struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration
	// Multiplier grows the backoff after every attempt.
	Multiplier float64
}

// DefaultConfig returns the retry policy used for fetching remote patches.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		Multiplier:     2.0,
	}
}

// Error marks a failure as retryable or permanent.
type Error struct {
	Err        error
	StatusCode int
	Retryable  bool
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err so Do retries it.
func Transient(err error) error {
	return &Error{Err: err, Retryable: true}
}

// Status wraps err with an HTTP status, retryable for 5xx and 429.
func Status(code int, err error) error {
	return &Error{Err: err, StatusCode: code, Retryable: IsRetryableStatusCode(code)}
}

// IsRetryableStatusCode reports whether an HTTP status is worth retrying.
func IsRetryableStatusCode(code int) bool {
	return code >= 500 || code == 429
}

// IsRetryableError reports whether err looks like a transient network failure.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Do executes fn until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. Waiting between attempts honors ctx.
func Do(ctx context.Context, cfg Config, fn func(attempt int) error) error {
	if cfg.MaxRetries <= 0 {
		return fn(0)
	}

	var lastErr error
	backoff := cfg.InitialBackoff
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !IsRetryableError(err) {
			return err
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return fmt.Errorf("retry exhausted after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}
