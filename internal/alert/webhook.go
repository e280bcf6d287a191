package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
	maxRetryAfter  = 30 * time.Second
)

// Decision headers attached to every delivery. Receivers can drop repeated
// deliveries of one decision by the idempotency key.
const (
	HeaderRequestID      = "X-Factorwatch-Request-Id"
	HeaderOutcome        = "X-Factorwatch-Outcome"
	HeaderPolicyHash     = "X-Factorwatch-Policy-Hash"
	HeaderIdempotencyKey = "Idempotency-Key"
)

var (
	httpClient = &http.Client{Timeout: requestTimeout}
	retryDelay = time.Second
)

// Send posts a decision event to a webhook endpoint. Server errors and 429
// are retried with linear backoff, or after the endpoint's Retry-After.
func Send(ctx context.Context, cfg Config, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	var wait time.Duration
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if wait == 0 {
				wait = time.Duration(attempt) * retryDelay
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook cancelled after %d attempts: %w", attempt, ctx.Err())
			case <-time.After(wait):
			}
			wait = 0
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}
		setDecisionHeaders(req.Header, event)

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			wait = retryAfter(resp.Header.Get("Retry-After"))
			lastErr = fmt.Errorf("webhook throttled: HTTP %d", resp.StatusCode)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
		default:
			lastErr = fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
		}
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", maxRetries, lastErr)
}

func setDecisionHeaders(h http.Header, event Event) {
	h.Set(HeaderOutcome, event.Outcome)
	if event.PolicyHash != "" {
		h.Set(HeaderPolicyHash, event.PolicyHash)
	}
	if event.RequestID == "" {
		return
	}
	h.Set(HeaderRequestID, event.RequestID)
	h.Set(HeaderIdempotencyKey, event.RequestID+":"+event.Outcome)
}

// retryAfter parses a delay-seconds Retry-After value, capped at
// maxRetryAfter. Zero means use the default backoff.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}
