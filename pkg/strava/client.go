// Package strava is the rate-limited client for the Strava activity API.
// All reads and writes funnel through a shared single-concurrency limiter;
// one Client instance serves the whole process.
package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	httputil "github.com/skycast/server/pkg/infrastructure/http"
	"github.com/skycast/server/pkg/metrics"
)

const DefaultBaseURL = "https://www.strava.com/api/v3"

// Activity is the subset of the Strava activity model the pipeline reads.
type Activity struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	StartDate      time.Time `json:"start_date"`
	StartDateLocal time.Time `json:"start_date_local"`
	Timezone       string    `json:"timezone"`
	StartLatLng    []float64 `json:"start_latlng"`
	EndLatLng      []float64 `json:"end_latlng"`
	Description    string    `json:"description"`
	Private        bool      `json:"private"`
}

// StartCoordinates returns the activity's start position, or ok=false when
// the activity has no usable GPS data.
func (a *Activity) StartCoordinates() (lat, lon float64, ok bool) {
	if len(a.StartLatLng) < 2 {
		return 0, 0, false
	}
	if a.StartLatLng[0] == 0 && a.StartLatLng[1] == 0 {
		return 0, 0, false
	}
	return a.StartLatLng[0], a.StartLatLng[1], true
}

// UpdateActivityRequest is the PUT body for activity updates.
type UpdateActivityRequest struct {
	Description string `json:"description"`
	Name        string `json:"name,omitempty"`
}

// Client calls the Strava API through the shared limiter. 429 responses are
// retried with exponential backoff inside the client; other errors surface
// as *APIError and are never retried here.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *Limiter
	Metrics    metrics.Sink
	Logger     *slog.Logger

	// Sleep is swapped out in tests.
	Sleep func(time.Duration)

	maxQuotaRetries int
	quotaBackoff    time.Duration
}

func NewClient(limiter *Limiter, sink metrics.Sink, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:         DefaultBaseURL,
		HTTPClient:      &http.Client{},
		Limiter:         limiter,
		Metrics:         sink,
		Logger:          logger,
		Sleep:           time.Sleep,
		maxQuotaRetries: 3,
		quotaBackoff:    time.Second,
	}
}

// GetActivity fetches one activity by id.
func (c *Client) GetActivity(ctx context.Context, id int64, token string) (*Activity, error) {
	var activity Activity
	path := fmt.Sprintf("/activities/%d", id)
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// UpdateActivity writes the patch back to the activity.
func (c *Client) UpdateActivity(ctx context.Context, id int64, token string, patch UpdateActivityRequest) (*Activity, error) {
	var activity Activity
	path := fmt.Sprintf("/activities/%d", id)
	if err := c.doJSON(ctx, http.MethodPut, path, token, patch, &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// RevokeToken deauthorizes the token upstream. Best-effort: account deletion
// must proceed whether or not Strava accepts the revocation, so failures are
// logged and swallowed.
func (c *Client) RevokeToken(ctx context.Context, token string) {
	data := url.Values{}
	data.Set("access_token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://www.strava.com/oauth/deauthorize", strings.NewReader(data.Encode()))
	if err != nil {
		c.Logger.Warn("Failed to build revoke request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.execute(ctx, req, "oauth/deauthorize")
	if err != nil {
		c.Logger.Warn("Token revocation failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		c.Logger.Warn("Token revocation rejected", "status", resp.StatusCode, "body", string(body))
	}
}

// doJSON runs one authenticated JSON round trip, classifying errors.
func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reqBody io.Reader
	var raw []byte
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		raw = jsonData
		reqBody = bytes.NewReader(jsonData)
	}

	endpoint := method + " " + path

	for attempt := 0; ; attempt++ {
		if raw != nil {
			reqBody = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.execute(ctx, req, endpoint)
		if err != nil {
			return fmt.Errorf("execute request: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.maxQuotaRetries-1 {
			resp.Body.Close()
			delay := c.quotaBackoff << attempt
			c.Logger.Warn("Strava quota hit, backing off", "endpoint", endpoint, "attempt", attempt, "delay", delay.String())
			c.Sleep(delay)
			continue
		}

		if httpErr := httputil.ParseErrorResponse(resp); httpErr != nil {
			resp.Body.Close()
			he := httpErr.(*httputil.HTTPError)
			return &APIError{
				Kind:       kindForStatus(he.StatusCode),
				StatusCode: he.StatusCode,
				Body:       he.Body,
			}
		}

		defer resp.Body.Close()
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
}

// execute acquires a limiter slot, performs the request and records the call
// metric. Metric recording is fire-and-forget.
func (c *Client) execute(ctx context.Context, req *http.Request, endpoint string) (*http.Response, error) {
	release, err := c.Limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	duration := time.Since(start)
	// Release before recording: the sink may publish over the network and
	// must not hold the process-wide limiter slot while it does.
	release()

	meta := map[string]string{"endpoint": endpoint}
	if err != nil {
		meta["error"] = err.Error()
	} else {
		meta["status"] = fmt.Sprintf("%d", resp.StatusCode)
	}
	c.Metrics.Record(ctx, metrics.Record{
		Type:     "api_call",
		Name:     "strava.request",
		Value:    float64(duration.Milliseconds()),
		Metadata: meta,
	})

	return resp, err
}
