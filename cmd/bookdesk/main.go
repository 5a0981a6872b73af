package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookdesk/internal/api"
	"github.com/md-rashed-zaman/bookdesk/internal/push"
	"github.com/md-rashed-zaman/bookdesk/internal/store"
	"github.com/md-rashed-zaman/bookdesk/internal/syncer"
	"github.com/md-rashed-zaman/bookdesk/internal/webui"
	"github.com/md-rashed-zaman/bookdesk/libs/config"
	"github.com/md-rashed-zaman/bookdesk/libs/httpx"
	otelx "github.com/md-rashed-zaman/bookdesk/libs/otel"
	"github.com/md-rashed-zaman/bookdesk/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	config.LoadDotenv()

	service := config.String("SERVICE_NAME", "bookdesk")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	backendURL, err := config.RequiredString("BACKEND_URL")
	if err != nil {
		panic(err)
	}
	pushURL := config.String("PUSH_URL", derivePushURL(backendURL))

	apiClient := api.New(backendURL, config.Duration("FETCH_TIMEOUT", 15*time.Second))
	st := store.New()

	sync := syncer.New(apiClient, st, logger, config.Duration("REFRESH_INTERVAL", time.Minute))
	go sync.Run(ctx)

	reconciler := push.New(pushURL, st, logger, push.Config{
		ReconnectMin: config.Duration("RECONNECT_MIN", 3*time.Second),
		ReconnectMax: config.Duration("RECONNECT_MAX", 30*time.Second),
	})
	go reconciler.Run(ctx)

	mux := runtime.NewBaseMux(runtime.ReadyCheck{Name: "snapshot", Check: sync.ReadyCheck()})
	webui.NewServer(apiClient, st, sync, logger).Register(mux)

	rl := httpx.NewRateLimiter(config.Int("RATE_LIMIT_PER_MINUTE", 120), time.Minute)
	handler := httpx.Chain(mux,
		httpx.WithCORS(parseList(config.String("CORS_ALLOWED_ORIGINS", ""))),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
		rl.Middleware(),
	)
	handler = otelhttp.NewHandler(handler, "webui")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("local surface starting", "addr", srv.Addr, "backend", backendURL, "push", pushURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("session ended")
}

// derivePushURL maps the backend base URL onto its websocket notification
// endpoint when PUSH_URL is not set explicitly.
func derivePushURL(backendURL string) string {
	ws := backendURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimRight(ws, "/") + "/ws/notifications"
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
