// Package enrichment drives the per-activity weather enrichment state
// machine: load credentials, refresh if needed, fetch the activity, decide
// whether enrichment applies, resolve weather, write the description back.
package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	shared "github.com/skycast/server/pkg"
	"github.com/skycast/server/pkg/oauth"
	"github.com/skycast/server/pkg/strava"
	"github.com/skycast/server/pkg/weather"
)

// ActivityAPI is the slice of the Strava client the orchestrator needs.
type ActivityAPI interface {
	GetActivity(ctx context.Context, id int64, token string) (*strava.Activity, error)
	UpdateActivity(ctx context.Context, id int64, token string, patch strava.UpdateActivityRequest) (*strava.Activity, error)
}

// TokenRefresher returns a guaranteed-valid credential pair.
type TokenRefresher interface {
	EnsureValidToken(ctx context.Context, creds oauth.Credentials) (*oauth.Result, error)
}

// WeatherResolver resolves conditions for a place and time.
type WeatherResolver interface {
	Resolve(ctx context.Context, lat, lon float64, eventTime time.Time) (*weather.Record, error)
}

// Orchestrator coordinates one enrichment attempt. It never returns a Go
// error for expected business conditions; those become Outcome values. Only
// internal-consistency failures (missing account, persistence outage)
// propagate to the caller.
type Orchestrator struct {
	db      shared.Database
	tokens  TokenRefresher
	api     ActivityAPI
	weather WeatherResolver
	logger  *slog.Logger
}

func NewOrchestrator(db shared.Database, tokens TokenRefresher, api ActivityAPI, weatherResolver WeatherResolver, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		db:      db,
		tokens:  tokens,
		api:     api,
		weather: weatherResolver,
		logger:  logger,
	}
}

// ProcessActivity runs the enrichment state machine for one activity.
func (o *Orchestrator) ProcessActivity(ctx context.Context, activityID int64, userID string, attempt int) (*Outcome, error) {
	logger := o.logger.With("activity_id", activityID, "user_id", userID, "attempt", attempt)

	// 1. Credentials. A missing account at this point is an internal
	// consistency error: the webhook controller already resolved the
	// account, so propagate rather than convert to an outcome.
	account, err := o.db.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", userID, err)
	}

	// 2. Ensure the token is valid, persisting a refreshed pair immediately
	// so a retry attempt reuses it instead of refreshing again.
	tokenResult, err := o.tokens.EnsureValidToken(ctx, oauth.Credentials{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		ExpiresAt:    account.TokenExpiresAt,
	})
	if err != nil {
		logger.Error("Token refresh failed", "error", err)
		return failed(activityID, fmt.Errorf("token refresh: %w", err), false), nil
	}
	if tokenResult.WasRefreshed {
		if err := o.db.UpdateAccount(ctx, userID, map[string]interface{}{
			"access_token":     tokenResult.AccessToken,
			"refresh_token":    tokenResult.RefreshToken,
			"token_expires_at": tokenResult.ExpiresAt,
		}); err != nil {
			return nil, fmt.Errorf("persist refreshed token: %w", err)
		}
		logger.Info("Access token refreshed", "expires_at", tokenResult.ExpiresAt)
	}
	token := tokenResult.AccessToken

	// 3. Fetch the activity. A not-yet-available 404 is the expected
	// read-after-write race and is surfaced as a retryable outcome.
	activity, err := o.api.GetActivity(ctx, activityID, token)
	if err != nil {
		if strava.IsNotYetAvailable(err) {
			logger.Info("Activity not yet readable", "error", err)
			return failed(activityID, fmt.Errorf("activity %d not found (404)", activityID), true), nil
		}
		logger.Error("Activity fetch failed", "error", err)
		return failed(activityID, err, false), nil
	}

	// 4. Decision gates, in order.
	if strings.Contains(activity.Description, WeatherMarker) {
		logger.Info("Skipping enrichment", "reason", SkipAlreadyEnriched)
		return skipped(activityID, SkipAlreadyEnriched), nil
	}
	if !account.WeatherEnabled {
		logger.Info("Skipping enrichment", "reason", SkipWeatherDisabled)
		return skipped(activityID, SkipWeatherDisabled), nil
	}
	lat, lon, hasGPS := activity.StartCoordinates()
	if !hasGPS {
		logger.Info("Skipping enrichment", "reason", SkipNoCoordinates)
		return skipped(activityID, SkipNoCoordinates), nil
	}

	// 5. Resolve weather at the start position and time.
	record, err := o.weather.Resolve(ctx, lat, lon, activity.StartDate)
	if err != nil {
		logger.Error("Weather resolution failed", "error", err)
		return failed(activityID, err, false), nil
	}

	// 6-7. Format the summary and write the description back.
	summary := FormatSummary(record, account.Preferences)
	newDescription := ApplySummary(activity.Description, summary, account.Preferences)

	if _, err := o.api.UpdateActivity(ctx, activityID, token, strava.UpdateActivityRequest{
		Description: newDescription,
	}); err != nil {
		logger.Error("Activity update failed", "error", err)
		return failed(activityID, fmt.Errorf("update activity: %w", err), false), nil
	}

	logger.Info("Activity enriched",
		"temperature", record.Temperature,
		"condition", record.Condition,
	)
	return success(activityID, record), nil
}
