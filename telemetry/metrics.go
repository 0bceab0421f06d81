// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	LinesReceived    prometheus.Counter
	ParseFailures    prometheus.Counter
	MessagesStored   prometheus.Counter
	Reconnects       prometheus.Counter
	MessagesFiltered *prometheus.CounterVec // reason
	SourceFailures   *prometheus.CounterVec // source
	FeedDropped      prometheus.Counter

	// Histograms (seconds)
	SourceFetchDuration *prometheus.HistogramVec // source

	// Gauges
	SessionState *prometheus.GaugeVec // channel; value is the numeric session state
	StoreSize    *prometheus.GaugeVec // channel
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		LinesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "chatfeed_lines_total", Help: "Protocol lines received from the chat server"})
		ParseFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "chatfeed_parse_failures_total", Help: "Protocol lines dropped as malformed"})
		MessagesStored = promauto.NewCounter(prometheus.CounterOpts{Name: "chatfeed_messages_total", Help: "Chat messages enriched and stored"})
		Reconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chatfeed_reconnects_total", Help: "Reconnect attempts after transport loss"})
		MessagesFiltered = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatfeed_messages_filtered_total", Help: "Chat messages suppressed by the filter chain"}, []string{"reason"})
		SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatfeed_source_failures_total", Help: "External source fetches that failed or timed out"}, []string{"source"})
		FeedDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "chatfeed_feed_dropped_total", Help: "Store events dropped because the feed queue was full"})
		SourceFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "chatfeed_source_fetch_seconds", Help: "External source fetch duration seconds", Buckets: prometheus.DefBuckets}, []string{"source"})
		SessionState = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chatfeed_session_state", Help: "Session state (0=disconnected,1=connecting,2=handshaking,3=joined,4=destroyed)"}, []string{"channel"})
		StoreSize = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "chatfeed_store_messages", Help: "Messages currently retained"}, []string{"channel"})
	})
}

// IncLines counts a received protocol line.
func IncLines() {
	if LinesReceived != nil {
		LinesReceived.Inc()
	}
}

// IncParseFailure counts a dropped malformed line.
func IncParseFailure() {
	if ParseFailures != nil {
		ParseFailures.Inc()
	}
}

// IncMessages counts a stored chat message.
func IncMessages() {
	if MessagesStored != nil {
		MessagesStored.Inc()
	}
}

// IncReconnect counts a reconnect attempt.
func IncReconnect() {
	if Reconnects != nil {
		Reconnects.Inc()
	}
}

// IncFeedDropped counts a store event the feed could not queue.
func IncFeedDropped() {
	if FeedDropped != nil {
		FeedDropped.Inc()
	}
}

// IncFiltered counts a suppressed chat message.
func IncFiltered(reason string) {
	if MessagesFiltered != nil {
		MessagesFiltered.WithLabelValues(reason).Inc()
	}
}

// ObserveSource records one fetch against an external source.
func ObserveSource(source string, d time.Duration, err error) {
	if SourceFetchDuration != nil {
		SourceFetchDuration.WithLabelValues(source).Observe(d.Seconds())
	}
	if err != nil && SourceFailures != nil {
		SourceFailures.WithLabelValues(source).Inc()
	}
}

// SetSessionState records the numeric state of a channel's session.
func SetSessionState(channel string, state int) {
	if SessionState != nil {
		SessionState.WithLabelValues(channel).Set(float64(state))
	}
}

// SetStoreSize records how many messages a channel currently retains.
func SetStoreSize(channel string, n int) {
	if StoreSize != nil {
		StoreSize.WithLabelValues(channel).Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
