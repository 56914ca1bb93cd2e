package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Retry and backoff constants.
const (
	maxTransientRetries = 3
	baseBackoff         = 1 * time.Second
	maxBackoff          = 30 * time.Second
	backoffFactor       = 2.0
	jitterFraction      = 0.25
	userAgent           = "fz-cli/0.1"
)

// TokenSource provides bearer tokens and forced refresh after an
// authorization failure. Defined at the consumer (api package) per Go
// convention "accept interfaces, return structs"; auth.Manager is the real
// implementation.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Client executes authenticated requests against the backend API. It handles
// request construction, bearer attachment, retry with exponential backoff for
// transient failures, a single forced-refresh replay on 401, and error
// classification.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger

	// OnRequest, when set, observes outbound request metadata (method, path)
	// for diagnostics. Purely observational — never affects control flow.
	OnRequest func(method, path string)

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a backend API client. baseURL is the backend root
// (no trailing slash); paths passed to Do are appended verbatim.
func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do executes an authenticated request. body may be nil; non-nil bodies are
// sent as application/json. A 401 response triggers exactly one forced token
// refresh and one replay of the identical request; a second 401 surfaces
// ErrUnauthorized. Transient statuses and network errors are retried with
// exponential backoff up to maxTransientRetries. The caller is responsible
// for closing the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if c.OnRequest != nil {
		c.OnRequest(method, path)
	}

	// One request ID across retries so server logs correlate all attempts.
	requestID := uuid.NewString()

	var (
		attempt   int
		refreshed bool
	)

	for {
		// Ensure a valid token before every attempt. Token failures are not
		// retryable here — the lifecycle manager already owns that policy.
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("api: obtaining token: %w", err)
		}

		resp, err := c.doOnce(ctx, method, path, body, requestID, tok)
		if err != nil {
			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
			}

			if attempt < maxTransientRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("api: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("api: %s %s failed after %d retries: %w: %w",
				method, path, maxTransientRetries, ErrNetwork, err)
		}

		// 2xx — success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		// Read and close body for error responses.
		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		// Authorization failure: force a refresh once and replay the
		// identical request once. A second 401 means the session is gone.
		if resp.StatusCode == http.StatusUnauthorized && !refreshed {
			refreshed = true

			c.logger.Info("authorization failure, forcing token refresh",
				slog.String("method", method),
				slog.String("path", path),
			)

			if _, refreshErr := c.tokens.ForceRefresh(ctx); refreshErr != nil {
				return nil, &Error{
					StatusCode: resp.StatusCode,
					RequestID:  requestID,
					Message:    string(errBody),
					Err:        fmt.Errorf("%w: %w", ErrUnauthorized, refreshErr),
				}
			}

			continue
		}

		if isTransient(resp.StatusCode) && attempt < maxTransientRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("api: request canceled: %w", err)
			}

			attempt++

			continue
		}

		sentinel := classifyStatus(resp.StatusCode)

		if attempt > 0 || refreshed {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, &Error{
			StatusCode: resp.StatusCode,
			RequestID:  requestID,
			Message:    string(errBody),
			Err:        sentinel,
		}
	}
}

// doOnce executes a single HTTP request (no retry). The body is wrapped in a
// fresh reader per attempt so replays are safe.
func (c *Client) doOnce(
	ctx context.Context, method, path string, body []byte, requestID, tok string,
) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// doJSON marshals in (when non-nil), executes the request, and decodes the
// response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte

	if in != nil {
		var err error

		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: marshaling %s %s body: %w", method, path, err)
		}
	}

	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain

		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decoding %s %s response: %w", method, path, err)
	}

	return nil
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used when it
// exceeds the computed backoff.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	backoff := c.calcBackoff(attempt)

	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				if d := time.Duration(seconds) * time.Second; d > backoff {
					return d
				}
			}
		}
	}

	return backoff
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	// Apply ±25% jitter.
	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
