package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/skycast/server/pkg/enrichment"
)

// Processor is the orchestrator contract the retry controller drives.
type Processor interface {
	ProcessActivity(ctx context.Context, activityID int64, userID string, attempt int) (*enrichment.Outcome, error)
}

// Retry bounds. Strava redelivers a webhook it has not seen a 200 for within
// its own timeout, so the whole loop must finish well inside that window.
const (
	MaxAttempts = 3
	RetryBudget = 8 * time.Second
)

// RetryDelays is the progressive backoff schedule between attempts; attempts
// past the schedule reuse the last value.
var RetryDelays = []time.Duration{1500 * time.Millisecond, 3 * time.Second}

// RetryController reruns the orchestrator while the upstream activity is not
// yet readable. Only the not-yet-available outcome retries; every other
// failure, success or skip terminates the loop at once.
type RetryController struct {
	Processor   Processor
	MaxAttempts int
	Budget      time.Duration
	Delays      []time.Duration
	Logger      *slog.Logger

	// Sleep and Now are swapped out in tests.
	Sleep func(time.Duration)
	Now   func() time.Time
}

func NewRetryController(processor Processor, logger *slog.Logger) *RetryController {
	return &RetryController{
		Processor:   processor,
		MaxAttempts: MaxAttempts,
		Budget:      RetryBudget,
		Delays:      RetryDelays,
		Logger:      logger,
		Sleep:       time.Sleep,
		Now:         time.Now,
	}
}

// RetryResult is the terminal state of one delivery's retry loop.
type RetryResult struct {
	Outcome *enrichment.Outcome

	// Attempts is the 0-based index of the final attempt.
	Attempts int

	// Err is an unexpected orchestrator error (never a business outcome).
	Err error
}

// Run drives the loop. start is when the webhook request arrived; the budget
// is measured from there and checked between attempts, not enforced on
// in-flight calls.
func (c *RetryController) Run(ctx context.Context, activityID int64, userID string, start time.Time) RetryResult {
	var result RetryResult

	for attempt := 0; attempt < c.MaxAttempts; attempt++ {
		result.Attempts = attempt

		outcome, err := c.Processor.ProcessActivity(ctx, activityID, userID, attempt)
		if err != nil {
			c.Logger.Error("Unexpected processing error", "activity_id", activityID, "attempt", attempt, "error", err)
			result.Err = err
			return result
		}
		result.Outcome = outcome

		if outcome.Success || outcome.Skipped {
			return result
		}
		if !outcome.NotYetAvailable {
			c.Logger.Warn("Non-retryable failure", "activity_id", activityID, "attempt", attempt, "error", outcome.Error)
			return result
		}
		if attempt == c.MaxAttempts-1 {
			break
		}

		delay := c.Delays[len(c.Delays)-1]
		if attempt < len(c.Delays) {
			delay = c.Delays[attempt]
		}

		if c.Now().Sub(start)+delay >= c.Budget {
			c.Logger.Warn("Retry budget exhausted", "activity_id", activityID, "attempt", attempt, "elapsed", c.Now().Sub(start).String())
			return result
		}

		c.Logger.Info("Activity not yet available, retrying", "activity_id", activityID, "attempt", attempt, "delay", delay.String())
		c.Sleep(delay)
	}

	return result
}
