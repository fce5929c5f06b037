package utils

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
)

// DefaultBackoffConfig returns the backoff used for read-only array commands
// with 10% jitter to prevent thundering herd problems
func DefaultBackoffConfig() wait.Backoff {
	return wait.Backoff{
		Steps:    3,                      // Maximum 3 attempts
		Duration: 200 * time.Millisecond, // Initial delay
		Factor:   2.0,                    // 200ms, 400ms
		Jitter:   0.1,
	}
}

// RetryWithBackoff retries an operation with exponential backoff until success or exhaustion.
// Non-retryable errors stop the loop immediately and are returned as-is.
// When all attempts fail with retryable errors the last error is returned.
func RetryWithBackoff(ctx context.Context, backoff wait.Backoff, fn func() error) error {
	var lastErr error
	attempt := 0

	err := wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		attempt++
		lastErr = fn()

		if lastErr == nil {
			klog.V(4).Infof("Operation succeeded on attempt %d", attempt)
			return true, nil
		}

		if IsRetryableError(lastErr) {
			klog.V(4).Infof("Attempt %d failed with retryable error: %v", attempt, lastErr)
			return false, nil
		}

		klog.V(4).Infof("Attempt %d failed with non-retryable error: %v", attempt, lastErr)
		return false, lastErr
	})

	if wait.Interrupted(err) && lastErr != nil {
		klog.V(2).Infof("All %d retry attempts exhausted, last error: %v", attempt, lastErr)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return lastErr
	}

	return err
}

// IsRetryableError determines if an error is transient and worth retrying
// Returns true for transport errors that may succeed on retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, io.EOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())

	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"connection timed out",
		"no route to host",
		"network is unreachable",
		"i/o timeout",
		"broken pipe",
		"failed to create ssh session",
		"temporary failure",
		"resource temporarily unavailable",
		"try again",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
