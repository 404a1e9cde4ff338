package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// defaultScope requests the application permissions granted to the client.
const defaultScope = "https://graph.microsoft.com/.default"

// refreshMargin is cut from every token lifetime reported by the endpoint.
const refreshMargin = 5 * time.Minute

// accessToken is a bearer token and the time it stops being used.
type accessToken struct {
	value  string
	expiry time.Time
}

func (t accessToken) usable(now time.Time) bool {
	return t.value != "" && now.Before(t.expiry)
}

// tokenSource performs the OAuth2 client-credentials grant against tokenURL.
// The last token is kept until refreshMargin before its expiry; calls are
// serialised so concurrent senders share one grant.
type tokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	httpClient   *http.Client
	now          func() time.Time

	mu      sync.Mutex
	current accessToken
}

func newTokenSource(tokenURL, clientID, clientSecret string, httpClient *http.Client) *tokenSource {
	return &tokenSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        defaultScope,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

// Token returns a bearer token for the Graph API.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.current.usable(ts.now()) {
		return ts.current.value, nil
	}
	return ts.grant(ctx)
}

// Renew forgets the kept token and runs the grant again. graph.Send calls
// it once when the API answers 401.
func (ts *tokenSource) Renew(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.current = accessToken{}
	return ts.grant(ctx)
}

// grant runs the client-credentials grant and keeps the result. ts.mu is held.
func (ts *tokenSource) grant(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", ts.clientID)
	form.Set("client_secret", ts.clientSecret)
	form.Set("scope", ts.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, grantError(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	ts.current = accessToken{value: tr.AccessToken, expiry: ts.now().Add(lifetime - refreshMargin)}
	return ts.current.value, nil
}

// grantError describes a failed grant, preferring the OAuth2 error fields
// (RFC 6749 section 5.2) over the raw body.
func grantError(body []byte) string {
	var e struct {
		Code        string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(body, &e) == nil && e.Code != "" {
		if e.Description == "" {
			return e.Code
		}
		return e.Code + ": " + e.Description
	}
	return strings.TrimSpace(string(body))
}
