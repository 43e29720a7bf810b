package webhook

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/skycast/server/pkg/enrichment"
)

type mockProcessor struct {
	outcomes []*enrichment.Outcome
	err      error
	calls    int
}

func (m *mockProcessor) ProcessActivity(ctx context.Context, activityID int64, userID string, attempt int) (*enrichment.Outcome, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	idx := m.calls - 1
	if idx >= len(m.outcomes) {
		idx = len(m.outcomes) - 1
	}
	return m.outcomes[idx], nil
}

func notYetAvailable(id int64) *enrichment.Outcome {
	return &enrichment.Outcome{ActivityID: id, Error: "activity not found (404)", NotYetAvailable: true}
}

func newTestController(p *mockProcessor, start time.Time) (*RetryController, *[]time.Duration) {
	c := NewRetryController(p, slog.Default())
	slept := &[]time.Duration{}
	now := start
	c.Sleep = func(d time.Duration) {
		*slept = append(*slept, d)
		now = now.Add(d)
	}
	c.Now = func() time.Time { return now }
	return c, slept
}

func TestRunSuccessFirstAttempt(t *testing.T) {
	p := &mockProcessor{outcomes: []*enrichment.Outcome{{ActivityID: 42, Success: true}}}
	start := time.Now()
	c, slept := newTestController(p, start)

	result := c.Run(context.Background(), 42, "user-1", start)
	if result.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", result.Attempts)
	}
	if p.calls != 1 {
		t.Errorf("processor calls = %d, want 1", p.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no delays", *slept)
	}
}

func TestRunRetriesNotYetAvailable(t *testing.T) {
	p := &mockProcessor{outcomes: []*enrichment.Outcome{
		notYetAvailable(42),
		notYetAvailable(42),
		{ActivityID: 42, Success: true},
	}}
	start := time.Now()
	c, slept := newTestController(p, start)

	result := c.Run(context.Background(), 42, "user-1", start)
	if !result.Outcome.Success {
		t.Fatalf("outcome = %+v, want success", result.Outcome)
	}
	if result.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", result.Attempts)
	}
	if len(*slept) != 2 || (*slept)[0] != 1500*time.Millisecond || (*slept)[1] != 3*time.Second {
		t.Errorf("slept = %v, want [1.5s 3s]", *slept)
	}
}

func TestRunStopsAtMaxAttempts(t *testing.T) {
	p := &mockProcessor{outcomes: []*enrichment.Outcome{notYetAvailable(42)}}
	start := time.Now()
	c, _ := newTestController(p, start)

	result := c.Run(context.Background(), 42, "user-1", start)
	if p.calls != MaxAttempts {
		t.Errorf("processor calls = %d, want %d", p.calls, MaxAttempts)
	}
	if result.Attempts != MaxAttempts-1 {
		t.Errorf("Attempts = %d, want %d", result.Attempts, MaxAttempts-1)
	}
	if result.Outcome.Success || !result.Outcome.NotYetAvailable {
		t.Errorf("outcome = %+v, want final not-yet-available failure", result.Outcome)
	}
}

func TestRunDoesNotRetryOtherFailures(t *testing.T) {
	tests := []struct {
		name    string
		outcome *enrichment.Outcome
	}{
		{"skip", &enrichment.Outcome{ActivityID: 42, Skipped: true, SkipReason: enrichment.SkipNoCoordinates}},
		{"terminal failure", &enrichment.Outcome{ActivityID: 42, Error: "weather fetch failed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProcessor{outcomes: []*enrichment.Outcome{tt.outcome}}
			start := time.Now()
			c, slept := newTestController(p, start)

			result := c.Run(context.Background(), 42, "user-1", start)
			if p.calls != 1 {
				t.Errorf("processor calls = %d, want 1", p.calls)
			}
			if result.Attempts != 0 || len(*slept) != 0 {
				t.Errorf("Attempts = %d, slept = %v", result.Attempts, *slept)
			}
		})
	}
}

func TestRunStopsOnUnexpectedError(t *testing.T) {
	p := &mockProcessor{err: errors.New("datastore unavailable")}
	start := time.Now()
	c, _ := newTestController(p, start)

	result := c.Run(context.Background(), 42, "user-1", start)
	if result.Err == nil {
		t.Fatal("Err = nil, want propagated error")
	}
	if p.calls != 1 {
		t.Errorf("processor calls = %d, want 1", p.calls)
	}
}

func TestRunRespectsBudget(t *testing.T) {
	p := &mockProcessor{outcomes: []*enrichment.Outcome{notYetAvailable(42)}}
	start := time.Now()
	c, slept := newTestController(p, start)
	// Pretend the first attempt alone consumed most of the budget.
	elapsed := c.Budget - time.Second
	base := c.Now
	c.Now = func() time.Time { return base().Add(elapsed) }

	result := c.Run(context.Background(), 42, "user-1", start)
	if p.calls != 1 {
		t.Errorf("processor calls = %d, want 1 (budget leaves no room for a delay)", p.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept = %v, want none", *slept)
	}
	if result.Outcome == nil || !result.Outcome.NotYetAvailable {
		t.Errorf("outcome = %+v", result.Outcome)
	}
}
