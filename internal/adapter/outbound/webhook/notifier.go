// Package webhook delivers approval lifecycle notifications to an external
// reviewer endpoint over HTTP.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
	defaultBaseBackoff = 1 * time.Second
)

// Notifier posts JSON event payloads to a webhook URL with retries.
// Delivery is best-effort; the approval remains pending even when every
// attempt fails, since reviewers can still poll the approvals API.
type Notifier struct {
	url         string
	client      *http.Client
	logger      *slog.Logger
	maxAttempts int
	baseBackoff time.Duration
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) { n.client = client }
}

// WithMaxAttempts sets the delivery attempt count.
func WithMaxAttempts(attempts int) Option {
	return func(n *Notifier) {
		if attempts > 0 {
			n.maxAttempts = attempts
		}
	}
}

// WithBaseBackoff sets the delay before the second attempt.
// Subsequent delays double (1s, 2s, 4s with the default base).
func WithBaseBackoff(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.baseBackoff = d
		}
	}
}

// NewNotifier creates a notifier targeting url. An empty url disables
// delivery; Notify becomes a no-op.
func NewNotifier(url string, logger *slog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		url:         url,
		client:      &http.Client{Timeout: defaultTimeout},
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// Notify posts the payload, retrying with exponential backoff on transport
// errors and 5xx responses. A 4xx response is terminal; retrying a request
// the endpoint rejects outright cannot succeed.
func (n *Notifier) Notify(ctx context.Context, payload interface{}) error {
	if n.url == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := n.baseBackoff << (attempt - 2)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = n.deliver(ctx, body)
		if lastErr == nil {
			return nil
		}
		var terminal *terminalError
		if errors.As(lastErr, &terminal) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}

		n.logger.Warn("webhook delivery failed",
			"url", n.url,
			"attempt", attempt,
			"max_attempts", n.maxAttempts,
			"error", lastErr)
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", n.maxAttempts, lastErr)
}

// deliver performs one POST attempt.
func (n *Notifier) deliver(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	default:
		// Terminal client error; do not retry.
		return &terminalError{status: resp.StatusCode}
	}
}

// terminalError marks responses that must not be retried.
type terminalError struct {
	status int
}

func (e *terminalError) Error() string {
	return fmt.Sprintf("webhook endpoint rejected payload with %d", e.status)
}
