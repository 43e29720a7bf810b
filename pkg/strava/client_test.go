package strava

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skycast/server/pkg/metrics"
)

// recordingSink captures metric records for assertions.
type recordingSink struct {
	records []metrics.Record
}

func (s *recordingSink) Record(ctx context.Context, rec metrics.Record) {
	s.records = append(s.records, rec)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recordingSink) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sink := &recordingSink{}
	// Effectively unthrottled limiter so tests run instantly.
	client := NewClient(openLimiter(), sink, slog.Default())
	client.BaseURL = server.URL
	client.Sleep = func(time.Duration) {}
	return client, sink
}

// sinkFunc adapts a function to metrics.Sink.
type sinkFunc func(ctx context.Context, rec metrics.Record)

func (f sinkFunc) Record(ctx context.Context, rec metrics.Record) { f(ctx, rec) }

func TestExecuteReleasesLimiterBeforeRecording(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":1}`))
	}))
	t.Cleanup(server.Close)

	limiter := openLimiter()
	acquired := false
	sink := sinkFunc(func(ctx context.Context, rec metrics.Record) {
		// The slot must already be free while the sink runs; if Record is
		// still inside the limiter's critical section this times out.
		waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		release, err := limiter.Acquire(waitCtx)
		if err != nil {
			t.Errorf("Acquire() during Record error = %v", err)
			return
		}
		release()
		acquired = true
	})

	client := NewClient(limiter, sink, slog.Default())
	client.BaseURL = server.URL
	client.Sleep = func(time.Duration) {}

	if _, err := client.GetActivity(context.Background(), 1, "tok"); err != nil {
		t.Fatalf("GetActivity() error = %v", err)
	}
	if !acquired {
		t.Error("metric sink never observed a free limiter slot")
	}
}

func TestGetActivity(t *testing.T) {
	client, sink := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activities/42" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"id":42,"name":"Morning Run","type":"Run","start_latlng":[52.52,13.405],"description":"nice one"}`))
	})

	activity, err := client.GetActivity(context.Background(), 42, "tok")
	if err != nil {
		t.Fatalf("GetActivity() error = %v", err)
	}
	if activity.ID != 42 || activity.Name != "Morning Run" {
		t.Errorf("unexpected activity %+v", activity)
	}
	lat, lon, ok := activity.StartCoordinates()
	if !ok || lat != 52.52 || lon != 13.405 {
		t.Errorf("StartCoordinates() = %v, %v, %v", lat, lon, ok)
	}
	if len(sink.records) != 1 || sink.records[0].Name != "strava.request" {
		t.Errorf("expected one api_call metric, got %+v", sink.records)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status   int
		wantKind ErrorKind
	}{
		{401, KindAuthExpired},
		{403, KindForbidden},
		{404, KindNotYetAvailable},
		{500, KindGeneric},
	}

	for _, tt := range tests {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"message":"error"}`))
		})

		_, err := client.GetActivity(context.Background(), 1, "tok")
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: error = %T, want *APIError", tt.status, err)
		}
		if apiErr.Kind != tt.wantKind {
			t.Errorf("status %d: kind = %v, want %v", tt.status, apiErr.Kind, tt.wantKind)
		}
	}
}

func TestNotYetAvailableHelper(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Record Not Found"}`, http.StatusNotFound)
	})

	_, err := client.GetActivity(context.Background(), 7, "tok")
	if !IsNotYetAvailable(err) {
		t.Errorf("IsNotYetAvailable(%v) = false, want true", err)
	}
	if IsAuthExpired(err) {
		t.Errorf("IsAuthExpired(%v) = true, want false", err)
	}
}

func TestQuotaBackoffRetries429(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"id":42}`))
	})

	var slept []time.Duration
	client.Sleep = func(d time.Duration) { slept = append(slept, d) }

	activity, err := client.GetActivity(context.Background(), 42, "tok")
	if err != nil {
		t.Fatalf("GetActivity() error = %v", err)
	}
	if activity.ID != 42 {
		t.Errorf("activity.ID = %d", activity.ID)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Exponential backoff seeded from the first attempt.
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Errorf("slept = %v", slept)
	}
}

func TestQuotaExhaustionSurfacesRateLimited(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetActivity(context.Background(), 42, "tok")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindRateLimited {
		t.Fatalf("error = %v, want rate_limited APIError", err)
	}
}

func TestUpdateActivitySendsPatch(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %q", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		w.Write([]byte(`{"id":42,"description":"updated"}`))
	})

	activity, err := client.UpdateActivity(context.Background(), 42, "tok", UpdateActivityRequest{Description: "updated"})
	if err != nil {
		t.Fatalf("UpdateActivity() error = %v", err)
	}
	if activity.Description != "updated" {
		t.Errorf("Description = %q", activity.Description)
	}
}

func TestStartCoordinatesAbsent(t *testing.T) {
	tests := []struct {
		name   string
		latlng []float64
	}{
		{"nil", nil},
		{"empty", []float64{}},
		{"zero pair", []float64{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Activity{StartLatLng: tt.latlng}
			if _, _, ok := a.StartCoordinates(); ok {
				t.Error("StartCoordinates() ok = true, want false")
			}
		})
	}
}
