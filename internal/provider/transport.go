package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	maxAttempts    = 3
	attemptTimeout = 30 * time.Second
)

// baseRetryDelay grows linearly with the attempt number. Variable so tests
// can shrink it.
var baseRetryDelay = time.Second

// httpStatusError marks a non-2xx upstream response.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("API error: %d - %s", e.status, e.body)
}

// retryable reports whether a failed attempt is worth repeating. Timeouts and
// connection errors are transient; so are 429 and 5xx. Deterministic
// rejections (auth failure, bad request) are terminal.
func retryable(err error) bool {
	if se, ok := err.(*httpStatusError); ok {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	// Anything that never produced a status line: dial failure, reset,
	// deadline exceeded.
	return true
}

// doWithRetry executes the request produced by build, retrying transient
// failures with an increasing delay. Each attempt carries its own deadline.
// build is invoked per attempt so request bodies are fresh.
func doWithRetry(ctx context.Context, client *http.Client, logger *slog.Logger, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		body, err := doOnce(attemptCtx, client, build)
		cancel()
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := baseRetryDelay * time.Duration(attempt)
		logger.Warn("upstream call failed, retrying",
			"attempt", attempt, "delay", delay.String(), "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func doOnce(ctx context.Context, client *http.Client, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{status: resp.StatusCode, body: string(body)}
	}
	return body, nil
}
