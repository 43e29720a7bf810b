package framework

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/skycast/server/pkg/bootstrap"
	"github.com/skycast/server/pkg/execution"
	"github.com/skycast/server/pkg/infrastructure/sentry"
)

// FrameworkContext contains dependencies injected by the framework
type FrameworkContext struct {
	Service     *bootstrap.Service
	Logger      *slog.Logger
	ExecutionID string
}

// HTTPResult is what a wrapped handler returns: the status code plus a JSON
// body, and optionally an error to record against the execution. The body is
// written regardless of the error, because webhook senders must always see
// the handler's acknowledgment.
type HTTPResult struct {
	StatusCode int
	Body       interface{}
	OwnerID    string
	Err        error
}

// HTTPHandlerFunc is the signature for a wrapped HTTP function handler.
type HTTPHandlerFunc func(ctx context.Context, r *http.Request, fwCtx *FrameworkContext) HTTPResult

// WrapHTTP wraps a handler with execution logging, panic recovery and Sentry
// capture. A panicking handler is acknowledged with 200 and a generic body:
// the inbound webhook sender redelivers on any non-200, and redelivery of an
// event that already failed unexpectedly only multiplies the damage.
func WrapHTTP(serviceName string, svc *bootstrap.Service, handler HTTPHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		opts := bootstrap.GetSlogHandlerOptions(bootstrap.LogLevelFromEnv())
		logger := slog.New(slog.NewJSONHandler(os.Stdout, opts)).With("service", serviceName)

		execID, err := execution.LogStart(ctx, svc.DB, serviceName, execution.ExecutionOptions{
			TriggerType: "http",
		})
		if err != nil {
			logger.Error("Failed to log execution start", "error", err)
			// Continue anyway - don't fail the function just because logging failed
		}

		logger = logger.With("execution_id", execID)
		logger.Info("Function started", "method", r.Method, "path", r.URL.Path)

		fwCtx := &FrameworkContext{
			Service:     svc,
			Logger:      logger,
			ExecutionID: execID,
		}

		// recover() must run directly in the deferred function; a nested
		// call would see nil and let the panic unwind past the wrapper.
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Handler panicked", "panic", rec)
				sentry.CapturePanic(rec, logger)
				if logErr := execution.LogFailure(ctx, svc.DB, execID, fmt.Errorf("panic: %v", rec), nil); logErr != nil {
					logger.Warn("Failed to log execution failure", "error", logErr)
				}
				writeJSON(w, http.StatusOK, map[string]string{"message": "Event acknowledged"})
			}
		}()

		result := handler(ctx, r, fwCtx)

		outputs := map[string]interface{}{}
		if m, ok := result.Body.(map[string]interface{}); ok {
			outputs = m
		}
		if result.OwnerID != "" {
			outputs["owner_id"] = result.OwnerID
		}

		if result.Err != nil {
			logger.Error("Function failed", "error", result.Err)
			sentry.CaptureException(result.Err, map[string]interface{}{"execution_id": execID}, logger)
			// The instance may be frozen as soon as the response is written;
			// give the async transport a chance to drain.
			sentry.Flush(2 * time.Second)
			if logErr := execution.LogFailure(ctx, svc.DB, execID, result.Err, outputs); logErr != nil {
				logger.Warn("Failed to log execution failure", "error", logErr)
			}
		} else {
			logger.Info("Function completed successfully")
			if logErr := execution.LogSuccess(ctx, svc.DB, execID, outputs); logErr != nil {
				logger.Warn("Failed to log execution success", "error", logErr)
			}
		}

		writeJSON(w, result.StatusCode, result.Body)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
