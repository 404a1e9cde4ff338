package graph

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/transport"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Config holds the configuration for creating a Transport.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// Sender is the mailbox (user ID or UPN) the message is sent as.
	Sender string
}

// Transport posts messages in MIME form to /users/{sender}/sendMail using
// OAuth2 client credentials.
type Transport struct {
	sendURL    string
	httpClient *http.Client
	tokens     *tokenSource
	baseDelay  time.Duration
}

// New creates a new Transport with the given configuration.
func New(cfg Config) *Transport {
	tokenURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
		url.PathEscape(cfg.TenantID),
	)
	sendURL := fmt.Sprintf(
		"https://graph.microsoft.com/v1.0/users/%s/sendMail",
		url.PathEscape(cfg.Sender),
	)
	return newWithOverrides(cfg, sendURL, tokenURL, &http.Client{Timeout: 30 * time.Second})
}

// newWithOverrides creates a Transport with custom URLs and HTTP client,
// used for testing.
func newWithOverrides(cfg Config, sendURL, tokenURL string, client *http.Client) *Transport {
	return &Transport{
		sendURL:    sendURL,
		httpClient: client,
		tokens:     newTokenSource(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
		baseDelay:  baseRetryDelay,
	}
}

// Send composes the message with its Bcc header, which Exchange strips on
// submission, and posts it base64 encoded. Transient failures are retried
// with exponential backoff, 429 responses honour Retry-After and a 401
// renews the token once.
func (g *Transport) Send(ctx context.Context, msg *email.Message) (*transport.Result, error) {
	composed, err := msg.Compose(email.AllFields)
	if err != nil {
		return nil, err
	}
	payload := []byte(base64.StdEncoding.EncodeToString(composed.Bytes()))

	var lastErr error
	renewed := false

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying Graph API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
		}

		err := g.post(ctx, payload)
		if err == nil {
			return transport.NewResult(composed), nil
		}
		lastErr = err

		var se *sendError
		if !errors.As(err, &se) {
			return nil, err
		}

		switch {
		case se.permanent:
			return nil, se
		case se.statusCode == http.StatusUnauthorized && !renewed:
			slog.Info("renewing Graph API token after 401")
			if _, err := g.tokens.Renew(ctx); err != nil {
				return nil, fmt.Errorf("token refresh failed: %w", err)
			}
			renewed = true
		case se.statusCode == http.StatusTooManyRequests:
			delay := g.retryAfterDelay(se.retryAfter, attempt)
			slog.Info("rate limited by Graph API",
				"retry_after", delay,
			)
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		case se.transient:
			delay := g.backoffDelay(attempt)
			slog.Info("transient Graph API error, retrying",
				"status", se.statusCode,
				"delay", delay,
			)
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		default:
			return nil, se
		}
	}

	return nil, fmt.Errorf("Graph API request failed after %d retries: %w", maxRetries, lastErr)
}

// Name returns the transport name.
func (g *Transport) Name() string {
	return "graph"
}

// post performs a single sendMail request.
func (g *Transport) post(ctx context.Context, payload []byte) error {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.sendURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	// the MIME flavour of sendMail takes base64 text
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &sendError{
			message:   fmt.Sprintf("HTTP request failed: %v", err),
			transient: true,
		}
	}
	defer resp.Body.Close()

	// 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)

	var er errorResponse
	if jsonErr := json.Unmarshal(body, &er); jsonErr == nil && er.Error.Message != "" {
		return classifyError(resp.StatusCode, er.Error.Message, resp.Header.Get("Retry-After"))
	}
	return classifyError(resp.StatusCode, string(body), resp.Header.Get("Retry-After"))
}

// sendError is a failed sendMail response classified for retry decisions.
type sendError struct {
	message    string
	statusCode int
	permanent  bool
	transient  bool
	retryAfter string
}

func (e *sendError) Error() string {
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

// classifyError categorizes an HTTP error response for retry decisions.
func classifyError(statusCode int, message, retryAfter string) *sendError {
	err := &sendError{
		message:    message,
		statusCode: statusCode,
		retryAfter: retryAfter,
	}

	switch {
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusTooManyRequests,
		statusCode >= 500:
		err.transient = true
	default:
		err.permanent = true
	}
	return err
}

// retryAfterDelay parses a Retry-After value in seconds, falling back to
// exponential backoff when it is missing or unparseable.
func (g *Transport) retryAfterDelay(retryAfter string, attempt int) time.Duration {
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return g.backoffDelay(attempt)
}

// backoffDelay returns the exponential backoff delay for the given attempt number.
func (g *Transport) backoffDelay(attempt int) time.Duration {
	delay := g.baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
