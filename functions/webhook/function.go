package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/skycast/server/pkg/bootstrap"
	"github.com/skycast/server/pkg/enrichment"
	"github.com/skycast/server/pkg/framework"
	"github.com/skycast/server/pkg/infrastructure/sentry"
	"github.com/skycast/server/pkg/metrics"
	"github.com/skycast/server/pkg/oauth"
	"github.com/skycast/server/pkg/strava"
	"github.com/skycast/server/pkg/weather"
)

const stravaTokenURL = "https://www.strava.com/oauth/token"

var (
	svc      *bootstrap.Service
	handler  *Handler
	postFunc http.HandlerFunc
	svcOnce  sync.Once
	svcErr   error
)

func init() {
	functions.HTTP("StravaWebhook", StravaWebhook)
}

func initService(ctx context.Context) error {
	if svc != nil {
		return nil
	}
	svcOnce.Do(func() {
		baseSvc, err := bootstrap.NewService(ctx)
		if err != nil {
			slog.Error("Failed to initialize service", "error", err)
			svcErr = err
			return
		}
		svc = baseSvc

		logger := bootstrap.NewLogger("webhook")

		if err := sentry.Init(sentry.Config{
			DSN:         svc.Config.SentryDSN,
			Environment: svc.Config.Environment,
			ServerName:  "webhook",
		}, logger); err != nil {
			logger.Warn("Sentry init failed, continuing without error tracking", "error", err)
		}

		sink := metrics.NewPublisherSink(svc.Pub, svc.Config.MetricsTopic, logger)

		// One limiter and one client per process: the limiter is the shared
		// resource serializing Strava calls across concurrent deliveries.
		limiter := strava.NewDefaultLimiter()
		client := strava.NewClient(limiter, sink, logger.With("component", "strava"))

		refresher := oauth.NewRefresher(stravaTokenURL, svc.Config.StravaClientID, svc.Config.StravaClientSecret)
		resolver := weather.NewResolver(svc.Config.OpenWeatherAPIKey, logger.With("component", "weather"))

		orchestrator := enrichment.NewOrchestrator(svc.DB, refresher, client, resolver, logger.With("component", "enrichment"))

		handler = &Handler{
			DB:          svc.DB,
			Retry:       NewRetryController(orchestrator, logger.With("component", "retry")),
			Revoker:     client,
			Metrics:     sink,
			VerifyToken: svc.Config.StravaVerifyToken,
			Configured: svc.Config.StravaClientID != "" &&
				svc.Config.StravaClientSecret != "" &&
				svc.Config.OpenWeatherAPIKey != "",
			Now: time.Now,
		}
		postFunc = framework.WrapHTTP("webhook", svc, handler.HandleEvent)
	})
	return svcErr
}

// StravaWebhook is the entry point: the verification handshake and status
// probe on GET, event intake on POST.
func StravaWebhook(w http.ResponseWriter, r *http.Request) {
	if err := initService(r.Context()); err != nil {
		http.Error(w, fmt.Sprintf("service init failed: %v", err), http.StatusInternalServerError)
		return
	}

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/status"):
		handler.HandleStatus(w, r)
	case r.Method == http.MethodGet:
		handler.HandleVerify(w, r)
	case r.Method == http.MethodPost:
		postFunc(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
