// Package oauth implements token lifecycle handling for the Strava API.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RefreshBuffer is how close to expiry a token may get before we refresh it.
// The boundary is inclusive: a token expiring exactly now+RefreshBuffer is
// refreshed.
const RefreshBuffer = 5 * time.Minute

// Credentials is a stored access/refresh token pair.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Result is the outcome of EnsureValidToken. WasRefreshed tells the caller
// whether the pair changed and needs to be persisted.
type Result struct {
	Credentials
	WasRefreshed bool
}

// RefreshError carries the upstream token endpoint's response. A failed
// refresh must abort the enrichment attempt, so it is never swallowed.
type RefreshError struct {
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("token refresh failed with status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token refresh failed with status %d", e.StatusCode)
}

// Refresher exchanges refresh tokens at the upstream token endpoint.
// It does not persist or retry; both are the caller's responsibility.
type Refresher struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Now          func() time.Time
}

func NewRefresher(tokenURL, clientID, clientSecret string) *Refresher {
	return &Refresher{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		Now:          time.Now,
	}
}

// EnsureValidToken returns a guaranteed-valid token pair, refreshing when the
// stored token is at or past the RefreshBuffer boundary.
func (r *Refresher) EnsureValidToken(ctx context.Context, creds Credentials) (*Result, error) {
	boundary := r.Now().Add(RefreshBuffer)
	if creds.ExpiresAt.After(boundary) {
		return &Result{Credentials: creds, WasRefreshed: false}, nil
	}

	refreshed, err := r.refresh(ctx, creds.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &Result{Credentials: *refreshed, WasRefreshed: true}, nil
}

// refresh performs the single POST exchange. Strava expects the client
// credentials in the form body, not Basic Auth.
func (r *Refresher) refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	data := url.Values{}
	data.Set("client_id", r.ClientID)
	data.Set("client_secret", r.ClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return nil, &RefreshError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		ExpiresAt    int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	newExpiry := r.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	if result.ExpiresAt != 0 {
		newExpiry = time.Unix(result.ExpiresAt, 0)
	}

	// Strava rotates refresh tokens; keep the old one if the response
	// omitted a new one.
	newRefreshToken := result.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}

	return &Credentials{
		AccessToken:  result.AccessToken,
		RefreshToken: newRefreshToken,
		ExpiresAt:    newExpiry,
	}, nil
}
