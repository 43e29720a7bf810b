package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	shared "github.com/skycast/server/pkg"
	"github.com/skycast/server/pkg/framework"
	"github.com/skycast/server/pkg/metrics"
)

// Event is the inbound webhook payload from Strava. Ephemeral: validated,
// acted on, never persisted.
type Event struct {
	ObjectType     string            `json:"object_type"`
	ObjectID       int64             `json:"object_id"`
	AspectType     string            `json:"aspect_type"`
	OwnerID        int64             `json:"owner_id"`
	SubscriptionID int64             `json:"subscription_id"`
	EventTime      int64             `json:"event_time"`
	Updates        map[string]string `json:"updates,omitempty"`
}

var (
	validObjectTypes = map[string]bool{"activity": true, "athlete": true}
	validAspectTypes = map[string]bool{"create": true, "update": true, "delete": true, "deauthorize": true}
)

// Valid checks the fixed event shape. Malformed events are acknowledged and
// discarded; the sender must never be provoked into redelivering them.
func (e *Event) Valid() bool {
	return validObjectTypes[e.ObjectType] &&
		validAspectTypes[e.AspectType] &&
		e.ObjectID > 0 &&
		e.OwnerID > 0 &&
		e.EventTime > 0
}

// TokenRevoker is the best-effort upstream deauthorization call.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, token string)
}

// Handler owns the webhook intake pipeline: validation, filtering, the
// deauthorization path and the enrichment retry loop. Every structurally
// valid request is acknowledged with HTTP 200 no matter what happens
// internally.
type Handler struct {
	DB      shared.Database
	Retry   *RetryController
	Revoker TokenRevoker
	Metrics metrics.Sink

	VerifyToken string
	Configured  bool

	Now func() time.Time
}

// HandleEvent is the POST /webhook intake, run inside the framework wrapper.
func (h *Handler) HandleEvent(ctx context.Context, r *http.Request, fwCtx *framework.FrameworkContext) framework.HTTPResult {
	start := h.Now()
	logger := fwCtx.Logger

	var event Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil || !event.Valid() {
		logger.Warn("Invalid webhook event", "decode_error", fmt.Sprint(err))
		return framework.HTTPResult{
			StatusCode: http.StatusOK,
			Body:       map[string]interface{}{"message": "Invalid event acknowledged"},
		}
	}

	logger = logger.With("object_type", event.ObjectType, "aspect_type", event.AspectType, "object_id", event.ObjectID, "owner_id", event.OwnerID)

	// Deauthorization short-circuits past the enrichment pipeline entirely.
	if event.ObjectType == "athlete" && event.AspectType == "deauthorize" {
		return h.handleDeauthorize(ctx, &event, fwCtx)
	}

	// Only freshly created activities are actionable.
	if event.ObjectType != "activity" || event.AspectType != "create" {
		logger.Info("Event ignored")
		return framework.HTTPResult{
			StatusCode: http.StatusOK,
			Body:       map[string]interface{}{"message": "Event acknowledged"},
		}
	}

	// Cheap pre-filter before spending a Strava API call. The orchestrator
	// re-checks weather_enabled behind its own gate.
	account, err := h.DB.GetAccountByAthleteID(ctx, event.OwnerID)
	if err != nil {
		logger.Error("Account lookup failed", "error", err)
		return framework.HTTPResult{
			StatusCode: http.StatusOK,
			Body:       map[string]interface{}{"message": "Event acknowledged"},
			Err:        fmt.Errorf("account lookup for athlete %d: %w", event.OwnerID, err),
		}
	}
	if account == nil || !account.WeatherEnabled {
		logger.Info("No enrichment for this athlete", "account_known", account != nil)
		return framework.HTTPResult{
			StatusCode: http.StatusOK,
			Body:       map[string]interface{}{"message": "Event acknowledged"},
		}
	}

	result := h.Retry.Run(ctx, event.ObjectID, account.UserID, start)
	elapsed := h.Now().Sub(start)

	body := map[string]interface{}{
		"message":          "Webhook processed",
		"activityId":       event.ObjectID,
		"attempts":         result.Attempts,
		"processingTimeMs": elapsed.Milliseconds(),
		"success":          result.Outcome != nil && result.Outcome.Success,
		"skipped":          result.Outcome != nil && result.Outcome.Skipped,
	}

	h.Metrics.Record(ctx, metrics.Record{
		Type:  "webhook",
		Name:  "webhook.processed",
		Value: float64(elapsed.Milliseconds()),
		Metadata: map[string]string{
			"success":  fmt.Sprint(body["success"]),
			"skipped":  fmt.Sprint(body["skipped"]),
			"attempts": fmt.Sprint(result.Attempts),
		},
	})

	res := framework.HTTPResult{
		StatusCode: http.StatusOK,
		Body:       body,
		OwnerID:    account.UserID,
	}
	if result.Err != nil {
		res.Err = result.Err
	} else if result.Outcome != nil && result.Outcome.Error != "" {
		res.Err = fmt.Errorf("enrichment failed after %d attempts: %s", result.Attempts+1, result.Outcome.Error)
	}
	return res
}

// handleDeauthorize deletes the athlete's account. Always acknowledged with
// 200: deauthorization must never trigger sender retries.
func (h *Handler) handleDeauthorize(ctx context.Context, event *Event, fwCtx *framework.FrameworkContext) framework.HTTPResult {
	logger := fwCtx.Logger.With("owner_id", event.OwnerID)

	account, err := h.DB.GetAccountByAthleteID(ctx, event.OwnerID)
	if err != nil {
		logger.Error("Deauthorization lookup failed", "error", err)
		return framework.HTTPResult{
			StatusCode: http.StatusOK,
			Body:       map[string]interface{}{"message": "Deauthorization acknowledged"},
			Err:        fmt.Errorf("deauthorization lookup: %w", err),
		}
	}
	if account == nil {
		logger.Info("Deauthorization for unknown athlete, already handled")
		return framework.HTTPResult{
			StatusCode: http.StatusOK,
			Body:       map[string]interface{}{"message": "Deauthorization acknowledged"},
		}
	}

	// Best-effort revocation; deletion proceeds regardless.
	h.Revoker.RevokeToken(ctx, account.AccessToken)

	if err := h.DB.DeleteAccount(ctx, account.UserID); err != nil {
		logger.Error("Account deletion failed", "error", err, "user_id", account.UserID)
		return framework.HTTPResult{
			StatusCode: http.StatusOK,
			Body:       map[string]interface{}{"message": "Deauthorization acknowledged"},
			Err:        fmt.Errorf("delete account %s: %w", account.UserID, err),
		}
	}

	logger.Info("Account deauthorized and deleted", "user_id", account.UserID)
	return framework.HTTPResult{
		StatusCode: http.StatusOK,
		Body:       map[string]interface{}{"message": "Deauthorization processed", "userId": account.UserID},
		OwnerID:    account.UserID,
	}
}

// HandleVerify is the GET subscription handshake. Strava validates the echo
// programmatically, so the response shape is exact.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && h.VerifyToken != "" && token == h.VerifyToken {
		writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": challenge})
		return
	}
	writeJSON(w, http.StatusForbidden, map[string]string{"error": "Verification failed"})
}

// HandleStatus is a diagnostic endpoint; it exposes configuration presence,
// never values.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configured":     h.Configured,
		"endpoint":       "/webhook",
		"verifyTokenSet": h.VerifyToken != "",
		"timestamp":      h.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
