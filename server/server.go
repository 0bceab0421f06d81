// Package server exposes the HTTP API: health, readiness, metrics, and the
// per-channel message snapshot and live event stream consumed by overlays.
// It applies CORS, injects correlation IDs into request contexts for
// consistent logging, and traces every request.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/chatfeed/chat"
	"github.com/onnwee/chatfeed/telemetry"
)

// Channel is the per-channel view served over HTTP. *chat.Session implements it.
type Channel interface {
	Channel() string
	State() chat.State
	Store() *chat.Store
	Refresh(ctx context.Context)
}

// Subscriber streams store events of one channel. *feed.Feed implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan chat.StoreEvent, error)
}

// NewMux returns the HTTP handler with all routes.
// The provided context bounds the rate limiter cleanup goroutine and
// background refreshes triggered through the admin API.
func NewMux(ctx context.Context, channels []Channel, feed Subscriber) http.Handler {
	authCfg := loadAuthConfig()
	limiter := newIPRateLimiter(ctx, loadRateLimiterConfig())
	corsCfg := loadCORSConfig()

	handlers := NewHandlers(ctx, channels, feed)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)

	mux.HandleFunc("GET /channels", handlers.HandleChannels)
	mux.HandleFunc("GET /channels/{channel}/messages", handlers.HandleMessages)
	mux.HandleFunc("GET /channels/{channel}/events", handlers.HandleEvents)

	mux.Handle("POST /admin/channels/{channel}/refresh",
		adminAuth(rateLimitMiddleware(http.HandlerFunc(handlers.HandleAdminRefresh), limiter), authCfg))

	return withCORSConfig(withRequestContext(mux), corsCfg)
}

// withRequestContext reuses or generates a correlation id, starts a span and
// records the response status on it.
func withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		telemetry.SetSpanHTTPStatus(span, rec.statusCode)
	})
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, channels []Channel, feed Subscriber) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(ctx, channels, feed),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		// no WriteTimeout: event streams stay open
		IdleTimeout: 60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
