// Package httputil provides HTTP helpers shared across crawlers.
package httputil

import (
	"context"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryBaseDelay is the first backoff step when the server gives no Retry-After.
// Tests override this to avoid real sleeps.
var RetryBaseDelay = time.Second

// MaxRetryDelay caps both computed backoff and server-provided Retry-After.
var MaxRetryDelay = 30 * time.Second

const defaultMaxAttempts = 4

// IsRetryableStatus reports whether a response status is worth another attempt.
func IsRetryableStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// RetryAfter returns the delay requested by the server, or fallback, capped at max.
func RetryAfter(resp *http.Response, fallback, max time.Duration) time.Duration {
	delay := fallback
	if resp != nil {
		if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				delay = time.Duration(secs) * time.Second
			} else if at, err := http.ParseTime(ra); err == nil {
				if until := time.Until(at); until > 0 {
					delay = until
				}
			}
		}
	}
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

// Backoff returns RetryBaseDelay * 2^attempt capped at MaxRetryDelay.
func Backoff(attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * RetryBaseDelay
	if delay > MaxRetryDelay || delay <= 0 {
		return MaxRetryDelay
	}
	return delay
}

// DoWithRetry executes req and retries on 408, 429 and 5xx responses up to
// maxAttempts total calls. Retry-After is honoured when present. Before every
// attempt the optional before hook runs; a pacer uses it to space requests.
// After exhausting attempts the last response is returned for inspection.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxAttempts int, before func(context.Context) error) (*http.Response, error) {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if client == nil {
		client = http.DefaultClient
	}

	for attempt := 0; ; attempt++ {
		if before != nil {
			if err := before(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil || attempt+1 >= maxAttempts {
				return nil, err
			}
			if err := wait(ctx, Backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		if !IsRetryableStatus(resp.StatusCode) || attempt+1 >= maxAttempts {
			return resp, nil
		}

		delay := RetryAfter(resp, Backoff(attempt), MaxRetryDelay)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if err := wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
