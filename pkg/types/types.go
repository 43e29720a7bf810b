// Package types holds the records shared between the persistence layer and
// the enrichment pipeline.
package types

import "time"

// Account is the stored record for a connected Strava athlete.
type Account struct {
	// UserID is our internal document id.
	UserID string

	// AthleteID is the stable identifier assigned by Strava; unique per account.
	AthleteID int64

	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time

	// WeatherEnabled gates enrichment entirely; when false, webhook events
	// for this account are acknowledged without touching the Strava API.
	WeatherEnabled bool

	Preferences WeatherPreferences

	CreatedAt time.Time
}

// WeatherPreferences controls how the weather summary is rendered into the
// activity description.
type WeatherPreferences struct {
	// Units is "metric" or "imperial"; empty means metric.
	Units string

	// IncludeDetails adds humidity, wind and UV lines to the summary.
	IncludeDetails bool

	// Placement is "append" (default) or "prepend".
	Placement string
}

// ExecutionRecord tracks one processing run of a service, from webhook
// receipt to terminal outcome.
type ExecutionRecord struct {
	ExecutionID string
	Service     string
	OwnerID     string
	TriggerType string
	Status      string
	Error       string
	Outputs     map[string]interface{}
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Execution statuses.
const (
	ExecutionStatusStarted = "STARTED"
	ExecutionStatusSuccess = "SUCCESS"
	ExecutionStatusFailure = "FAILURE"
)
