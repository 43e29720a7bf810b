// Package weather resolves conditions for a place and time from the
// OpenWeather One Call API and normalizes them into a canonical record.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultBaseURL = "https://api.openweathermap.org/data/3.0"

	// currentWindow is how long after the event a "current conditions"
	// lookup is still a faithful answer.
	currentWindow = time.Hour

	// historyWindow is the provider's time-machine lookback limit.
	historyWindow = 120 * time.Hour

	// defaultVisibilityKm is used when the provider omits visibility.
	defaultVisibilityKm = 10

	requestTimeout = 5 * time.Second
)

// Record is the canonical, provider-independent weather observation.
type Record struct {
	Temperature int     `json:"temperature"` // °C, nearest whole degree
	FeelsLike   int     `json:"feelsLike"`   // °C, nearest whole degree
	Humidity    int     `json:"humidity"`    // %
	Pressure    int     `json:"pressure"`    // hPa
	WindSpeed   float64 `json:"windSpeed"`   // m/s, one decimal
	WindDeg     int     `json:"windDeg"`
	WindGust    float64 `json:"windGust"`   // m/s, one decimal
	CloudCover  int     `json:"cloudCover"` // %
	Visibility  int     `json:"visibility"` // km
	Condition   string  `json:"condition"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	UVIndex     float64 `json:"uvIndex"`

	Timestamp time.Time `json:"timestamp"`
}

// FailureKind classifies provider failures.
type FailureKind int

const (
	FailureGeneric FailureKind = iota
	FailureAuth
	FailureRateLimit
	FailureTimeout
)

// FetchError is the single error class for all provider failures, wrapping
// the specific cause so the orchestrator treats weather failure uniformly.
type FetchError struct {
	Kind  FailureKind
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("weather fetch failed: %v", e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Resolver chooses between current and time-machine lookups based on elapsed
// time since the event. No caching, no retries: a failed call is a failed
// resolution and every call hits the provider.
type Resolver struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
}

func NewResolver(apiKey string, logger *slog.Logger) *Resolver {
	return &Resolver{
		APIKey:     apiKey,
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: requestTimeout},
		Logger:     logger,
		Now:        time.Now,
	}
}

// Resolve returns conditions at (lat, lon) for eventTime.
func (r *Resolver) Resolve(ctx context.Context, lat, lon float64, eventTime time.Time) (*Record, error) {
	elapsed := r.Now().Sub(eventTime)

	switch {
	case elapsed <= currentWindow:
		return r.fetchCurrent(ctx, lat, lon)
	case elapsed <= historyWindow:
		return r.fetchHistorical(ctx, lat, lon, eventTime)
	default:
		// Too old for the time machine; degrade to current conditions
		// rather than fail the enrichment outright.
		r.Logger.Warn("Event too old for historical lookup, falling back to current conditions",
			"component", "weather", "elapsed_hours", int(elapsed.Hours()))
		return r.fetchCurrent(ctx, lat, lon)
	}
}

func (r *Resolver) fetchCurrent(ctx context.Context, lat, lon float64) (*Record, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.5f", lat))
	q.Set("lon", fmt.Sprintf("%.5f", lon))
	q.Set("appid", r.APIKey)
	q.Set("units", "metric")
	q.Set("exclude", "minutely,hourly,daily,alerts")

	var payload oneCallResponse
	if err := r.get(ctx, r.BaseURL+"/onecall?"+q.Encode(), &payload); err != nil {
		return nil, err
	}
	if payload.Current == nil {
		return nil, &FetchError{Kind: FailureGeneric, Cause: errors.New("provider response missing current conditions")}
	}
	return normalize(payload.Current), nil
}

func (r *Resolver) fetchHistorical(ctx context.Context, lat, lon float64, eventTime time.Time) (*Record, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.5f", lat))
	q.Set("lon", fmt.Sprintf("%.5f", lon))
	q.Set("dt", fmt.Sprintf("%d", eventTime.Unix()))
	q.Set("appid", r.APIKey)
	q.Set("units", "metric")

	var payload oneCallResponse
	if err := r.get(ctx, r.BaseURL+"/onecall/timemachine?"+q.Encode(), &payload); err != nil {
		return nil, err
	}

	// The time machine endpoint returns the observation in "data" (v3) or
	// "current" (v2.5); accept either.
	obs := payload.Current
	if obs == nil && len(payload.Data) > 0 {
		obs = &payload.Data[0]
	}
	if obs == nil {
		return nil, &FetchError{Kind: FailureGeneric, Cause: errors.New("provider response missing historical observation")}
	}
	return normalize(obs), nil
}

func (r *Resolver) get(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &FetchError{Kind: FailureGeneric, Cause: err}
	}

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		kind := FailureGeneric
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			kind = FailureTimeout
		}
		return &FetchError{Kind: kind, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		cause := fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return &FetchError{Kind: FailureAuth, Cause: cause}
		case http.StatusTooManyRequests:
			return &FetchError{Kind: FailureRateLimit, Cause: cause}
		default:
			return &FetchError{Kind: FailureGeneric, Cause: cause}
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Kind: FailureGeneric, Cause: fmt.Errorf("decode provider response: %w", err)}
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// oneCallResponse covers both One Call endpoints.
type oneCallResponse struct {
	Current *observation  `json:"current"`
	Data    []observation `json:"data"`
}

type observation struct {
	Dt         int64    `json:"dt"`
	Temp       float64  `json:"temp"`
	FeelsLike  float64  `json:"feels_like"`
	Pressure   int      `json:"pressure"`
	Humidity   int      `json:"humidity"`
	UVI        *float64 `json:"uvi"`
	Clouds     int      `json:"clouds"`
	Visibility *int     `json:"visibility"` // meters; omitted in some responses
	WindSpeed  float64  `json:"wind_speed"`
	WindDeg    int      `json:"wind_deg"`
	WindGust   float64  `json:"wind_gust"`
	Weather    []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
}

// normalize converts provider units into the canonical record.
func normalize(o *observation) *Record {
	rec := &Record{
		Temperature: int(math.Round(o.Temp)),
		FeelsLike:   int(math.Round(o.FeelsLike)),
		Humidity:    o.Humidity,
		Pressure:    o.Pressure,
		WindSpeed:   roundTo1(o.WindSpeed),
		WindDeg:     o.WindDeg,
		WindGust:    roundTo1(o.WindGust),
		CloudCover:  o.Clouds,
		Visibility:  defaultVisibilityKm,
		Timestamp:   time.Unix(o.Dt, 0).UTC(),
	}

	if o.Visibility != nil {
		rec.Visibility = int(math.Round(float64(*o.Visibility) / 1000.0))
	}
	if o.UVI != nil {
		rec.UVIndex = *o.UVI
	}
	if len(o.Weather) > 0 {
		rec.Condition = o.Weather[0].Main
		rec.Description = o.Weather[0].Description
		rec.Icon = o.Weather[0].Icon
	}

	return rec
}

func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}
