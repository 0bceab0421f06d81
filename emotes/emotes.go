// Package emotes maintains the third-party emote catalog used to substitute
// words in chat messages with images.
//
// Each upstream registry (FrankerFaceZ, BetterTTV, 7TV) is wrapped by a Source
// adapter that maps its JSON shape onto Emote. A Registry fetches every source
// concurrently, merges the results in a fixed order and swaps the merged
// catalog in atomically. A failing or slow source contributes nothing for that
// refresh; it never fails the refresh itself.
package emotes

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chatfeed/telemetry"
)

// DefaultTimeout bounds each individual source fetch.
const DefaultTimeout = 5 * time.Second

const tracerName = "chatfeed/emotes"

// Emote is a third-party emote image.
type Emote struct {
	ID        string `json:"id"`
	ImageURL  string `json:"imageUrl"`
	ZeroWidth bool   `json:"zeroWidth"` // overlays the preceding emote
	Upscale   bool   `json:"upscale"`   // source has no high-res variant
}

// Match pairs an emote with the literal code that triggers it.
type Match struct {
	Code  string `json:"code"`
	Emote Emote  `json:"emote"`
}

// Source is one upstream emote registry.
type Source interface {
	Name() string
	FetchGlobal(ctx context.Context) ([]Match, error)
	// FetchChannel returns the channel-scoped emotes. Sources that need the
	// numeric id return nothing while channelID is still "0".
	FetchChannel(ctx context.Context, channelName, channelID string) ([]Match, error)
}

// DefaultSources returns the production adapters in merge order.
func DefaultSources(client *http.Client) []Source {
	return []Source{
		&FFZ{Client: client},
		&BTTV{Client: client},
		&SevenTV{Client: client},
	}
}

// Registry is a concurrently readable emote catalog.
type Registry struct {
	sources []Source
	timeout time.Duration
	logger  *slog.Logger

	catalog atomic.Pointer[map[string]Emote]
}

// NewRegistry builds a registry over sources; the order of sources is the
// merge order (later sources override earlier ones on code collisions).
func NewRegistry(timeout time.Duration, sources ...Source) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		sources: sources,
		timeout: timeout,
		logger:  slog.Default().With(slog.String("component", "emotes")),
	}
}

// Refresh refetches every source and replaces the catalog once all of them
// have returned or timed out. The merge order is source[0] global, source[0]
// channel, source[1] global, and so on; the last writer wins.
func (r *Registry) Refresh(ctx context.Context, channelName, channelID string) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "emotes.refresh", telemetry.ChannelAttr(channelName))
	defer span.End()

	results := make([][]Match, 2*len(r.sources))
	var g errgroup.Group
	for i, src := range r.sources {
		g.Go(func() error {
			results[2*i] = r.fetch(ctx, src.Name()+"_global", src.FetchGlobal)
			return nil
		})
		g.Go(func() error {
			results[2*i+1] = r.fetch(ctx, src.Name()+"_channel", func(ctx context.Context) ([]Match, error) {
				return src.FetchChannel(ctx, channelName, channelID)
			})
			return nil
		})
	}
	_ = g.Wait() // fetch never returns an error

	merged := make(map[string]Emote)
	for _, matches := range results {
		for _, m := range matches {
			merged[m.Code] = m.Emote
		}
	}
	r.catalog.Store(&merged)
	telemetry.SetSpanSuccess(span)
	r.logger.Info("emote catalog refreshed", slog.String("channel", channelName), slog.Int("count", len(merged)))
}

func (r *Registry) fetch(ctx context.Context, source string, fn func(context.Context) ([]Match, error)) []Match {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, tracerName, "emotes.fetch", telemetry.SourceAttr(source))
	defer span.End()

	start := time.Now()
	matches, err := fn(ctx)
	telemetry.ObserveSource(source, time.Since(start), err)
	if err != nil {
		telemetry.RecordError(span, err)
		r.logger.Warn("emote source failed", slog.String("source", source), slog.Any("err", err))
		return nil
	}
	telemetry.SetSpanSuccess(span)
	r.logger.Debug("emote source fetched", slog.String("source", source), slog.Int("count", len(matches)))
	return matches
}

// Lookup returns the emote registered for code.
func (r *Registry) Lookup(code string) (Emote, bool) {
	c := r.catalog.Load()
	if c == nil {
		return Emote{}, false
	}
	e, ok := (*c)[code]
	return e, ok
}

// Len returns the number of codes in the current catalog.
func (r *Registry) Len() int {
	c := r.catalog.Load()
	if c == nil {
		return 0
	}
	return len(*c)
}

// Snapshot returns a copy of the current catalog.
func (r *Registry) Snapshot() map[string]Emote {
	out := make(map[string]Emote)
	if c := r.catalog.Load(); c != nil {
		for k, v := range *c {
			out[k] = v
		}
	}
	return out
}
