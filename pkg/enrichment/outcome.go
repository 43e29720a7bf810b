package enrichment

import "github.com/skycast/server/pkg/weather"

// SkipReason is the closed set of deliberate non-enrichment outcomes.
type SkipReason string

const (
	SkipAlreadyEnriched SkipReason = "Already has weather data"
	SkipWeatherDisabled SkipReason = "Weather updates disabled"
	SkipNoCoordinates   SkipReason = "No GPS coordinates"
)

// Outcome is the sole contract between the orchestrator and the webhook
// retry controller. Expected business conditions land here; only internal
// consistency errors propagate as Go errors.
type Outcome struct {
	ActivityID int64
	Success    bool

	Skipped    bool
	SkipReason SkipReason

	Weather *weather.Record

	// Error describes a failed attempt. NotYetAvailable marks the
	// read-after-write 404; it is the only failure the retry controller
	// retries.
	Error           string
	NotYetAvailable bool
}

func success(activityID int64, rec *weather.Record) *Outcome {
	return &Outcome{ActivityID: activityID, Success: true, Weather: rec}
}

func skipped(activityID int64, reason SkipReason) *Outcome {
	return &Outcome{ActivityID: activityID, Skipped: true, SkipReason: reason}
}

func failed(activityID int64, err error, notYetAvailable bool) *Outcome {
	return &Outcome{ActivityID: activityID, Error: err.Error(), NotYetAvailable: notYetAvailable}
}
