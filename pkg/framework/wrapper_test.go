package framework

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/skycast/server/pkg/bootstrap"
	"github.com/skycast/server/pkg/testing/mocks"
	"github.com/skycast/server/pkg/types"
)

func recordingService() (*bootstrap.Service, *[]string) {
	statuses := &[]string{}
	db := &mocks.MockDatabase{
		SetExecutionFunc: func(ctx context.Context, record *types.ExecutionRecord) error {
			*statuses = append(*statuses, record.Status)
			return nil
		},
		UpdateExecutionFunc: func(ctx context.Context, id string, data map[string]interface{}) error {
			if s, ok := data["status"].(string); ok {
				*statuses = append(*statuses, s)
			}
			return nil
		},
	}
	return &bootstrap.Service{DB: db}, statuses
}

func TestWrapHTTPWritesHandlerResult(t *testing.T) {
	svc, statuses := recordingService()

	wrapped := WrapHTTP("test-service", svc, func(ctx context.Context, r *http.Request, fwCtx *FrameworkContext) HTTPResult {
		if fwCtx.Logger == nil {
			t.Error("fwCtx.Logger is nil")
		}
		return HTTPResult{StatusCode: http.StatusOK, Body: map[string]interface{}{"message": "done"}}
	})

	rec := httptest.NewRecorder()
	wrapped(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}")))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["message"] != "done" {
		t.Errorf("message = %q", body["message"])
	}
	want := []string{types.ExecutionStatusStarted, types.ExecutionStatusSuccess}
	if len(*statuses) != 2 || (*statuses)[0] != want[0] || (*statuses)[1] != want[1] {
		t.Errorf("execution statuses = %v, want %v", *statuses, want)
	}
}

func TestWrapHTTPRecordsFailureButWritesBody(t *testing.T) {
	svc, statuses := recordingService()

	wrapped := WrapHTTP("test-service", svc, func(ctx context.Context, r *http.Request, fwCtx *FrameworkContext) HTTPResult {
		return HTTPResult{
			StatusCode: http.StatusOK,
			Body:       map[string]interface{}{"message": "Event acknowledged"},
			Err:        errors.New("enrichment failed"),
		}
	})

	rec := httptest.NewRecorder()
	wrapped(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}")))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 despite handler error", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Event acknowledged") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if len(*statuses) != 2 || (*statuses)[1] != types.ExecutionStatusFailure {
		t.Errorf("execution statuses = %v", *statuses)
	}
}

func TestWrapHTTPAcknowledgesPanics(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
	}{
		{"string panic", "unexpected state"},
		{"error panic", errors.New("nil pointer dereference")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, statuses := recordingService()

			wrapped := WrapHTTP("test-service", svc, func(ctx context.Context, r *http.Request, fwCtx *FrameworkContext) HTTPResult {
				panic(tt.value)
			})

			rec := httptest.NewRecorder()
			wrapped(rec, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}")))

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200 after panic", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "Event acknowledged") {
				t.Errorf("body = %s", rec.Body.String())
			}
			if len(*statuses) != 2 || (*statuses)[1] != types.ExecutionStatusFailure {
				t.Errorf("execution statuses = %v", *statuses)
			}
		})
	}
}
