// Command chatfeed is the main entrypoint for the chat ingestion service.
// It:
//   - Loads configuration and initializes structured logging.
//   - Joins the chat of every configured channel anonymously and keeps each
//     connection alive across transport failures.
//   - Enriches messages with third-party emotes, badges and cheer tiers.
//   - Exposes an HTTP server with /healthz, /readyz, /metrics, per-channel
//     message snapshots and a live event stream.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chatfeed/badges"
	"github.com/onnwee/chatfeed/chat"
	"github.com/onnwee/chatfeed/config"
	"github.com/onnwee/chatfeed/emotes"
	"github.com/onnwee/chatfeed/feed"
	"github.com/onnwee/chatfeed/server"
	"github.com/onnwee/chatfeed/telemetry"
	"github.com/onnwee/chatfeed/transport"
	"github.com/onnwee/chatfeed/twitchapi"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("chatfeed", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 15 * time.Second}

	// Helix needs an app token (client credentials); without one the channel
	// id comes from the anonymous GQL endpoint and cheers stay undecorated.
	var resolver chat.ChannelResolver = &twitchapi.GQLResolver{HTTPClient: httpClient}
	var cheers chat.CheerSource
	if cfg.HelixEnabled() {
		helix := &twitchapi.HelixClient{
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret, HTTPClient: httpClient},
			ClientID:       cfg.TwitchClientID,
			HTTPClient:     httpClient,
		}
		resolver = helix
		cheers = helixCheers{helix}
		slog.Info("helix enabled for channel ids and cheermotes")
	} else {
		slog.Info("helix credentials not configured; using anonymous channel id lookup, cheers disabled")
	}

	events := feed.New(cfg.FeedQueueSize, slog.Default())
	defer func() {
		if err := events.Close(); err != nil {
			slog.Warn("feed close failed", slog.Any("err", err))
		}
	}()

	// user badges do not depend on the channel, so every session shares one cache
	userBadges := badges.NewRegistry(cfg.SourceTimeout, badges.DefaultProviders(httpClient)...)

	slog.Info("starting sessions", slog.Int("channel_count", len(cfg.Channels)), slog.Any("channels", cfg.Channels))
	sessions := make([]*chat.Session, 0, len(cfg.Channels))
	for _, channel := range cfg.Channels {
		s, err := chat.NewSession(chat.Options{
			Channel:            channel,
			Dialer:             &transport.WebSocket{URL: cfg.IRCURL},
			Resolver:           resolver,
			Emotes:             emotes.NewRegistry(cfg.SourceTimeout, emotes.DefaultSources(httpClient)...),
			Badges:             userBadges,
			NativeBadges:       &badges.TwitchBadges{Client: httpClient, Timeout: cfg.SourceTimeout},
			Cheers:             cheers,
			Notifier:           events,
			Retention:          cfg.MessageRetention,
			ShowBots:           cfg.ShowBots,
			HideCommands:       cfg.HideCommands,
			ShowBadges:         cfg.ShowBadges,
			BlockedUsers:       cfg.BlockedUsers,
			ReconnectDelay:     cfg.ReconnectDelay,
			ReconnectMaxDelay:  cfg.ReconnectMaxDelay,
			ConstantBackoff:    cfg.ReconnectConstant,
			GlobalBadgeTimeout: cfg.GlobalBadgeTimeout,
		})
		if err != nil {
			slog.Error("invalid session", slog.String("channel", channel), slog.Any("err", err))
			os.Exit(1)
		}
		sessions = append(sessions, s)
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSession(ctx, s)
		}()
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		startPprof()
	}

	channels := make([]server.Channel, len(sessions))
	for i, s := range sessions {
		channels[i] = s
	}
	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, channels, events); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()
	slog.Info("http server listening", slog.String("addr", cfg.HTTPAddr))

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	for _, s := range sessions {
		s.Destroy()
	}
	wg.Wait()
}

// runSession loads the channel's registries then keeps its chat connection
// alive until ctx ends.
func runSession(ctx context.Context, s *chat.Session) {
	log := slog.With(slog.String("channel", s.Channel()))
	if err := s.Init(ctx); err != nil {
		log.Warn("session init skipped", slog.Any("err", err))
		return
	}
	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("session stopped", slog.Any("err", err))
	}
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

func startPprof() {
	addr := os.Getenv("PPROF_ADDR")
	if addr == "" {
		addr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", addr))
		srv := &http.Server{
			Addr:              addr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}

// helixCheers adapts the Helix cheermote listing to chat.CheerSource.
type helixCheers struct {
	helix *twitchapi.HelixClient
}

func (h helixCheers) FetchCheers(ctx context.Context, channelID string) ([]chat.CheerTier, error) {
	tiers, err := h.helix.GetCheermotes(ctx, channelID)
	if err != nil {
		return nil, err
	}
	out := make([]chat.CheerTier, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, chat.CheerTier{Prefix: t.Prefix, MinBits: t.MinBits, ImageURL: t.ImageURL, Color: t.Color})
	}
	return out, nil
}
