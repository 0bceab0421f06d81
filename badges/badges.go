// Package badges resolves chat badges: the per-user third-party badges
// (FrankerFaceZ, FFZ:AP, BetterTTV, 7TV, Chatterino) kept by Registry, and the
// native Twitch badge images kept by TwitchBadges.
package badges

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chatfeed/telemetry"
)

// DefaultTimeout bounds each per-source call.
const DefaultTimeout = 5 * time.Second

const tracerName = "chatfeed/badges"

// Badge is one badge image shown next to a username.
type Badge struct {
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Priority    bool   `json:"priority"`
	Color       string `json:"color,omitempty"`
}

// Provider contributes the badges one source assigns to a user.
type Provider interface {
	Name() string
	UserBadges(ctx context.Context, username, userID string) ([]Badge, error)
}

// GlobalLoader is implemented by providers that answer UserBadges from a
// global list fetched up front.
type GlobalLoader interface {
	LoadGlobal(ctx context.Context) error
}

// DefaultProviders returns the production providers in per-user order.
func DefaultProviders(client *http.Client) []Provider {
	return []Provider{
		&FFZ{Client: client},
		&FFZAP{Client: client},
		&BTTV{Client: client},
		&SevenTV{Client: client},
		&Chatterino{Client: client},
	}
}

// Registry caches third-party badges per lowercase username. At most one
// load per username runs at a time; later calls are no-ops until ClearAll.
type Registry struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	loading map[string]struct{}
	cache   map[string][]Badge
}

// NewRegistry creates a registry querying providers in the given order.
func NewRegistry(timeout time.Duration, providers ...Provider) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		providers: providers,
		timeout:   timeout,
		logger:    slog.Default().With(slog.String("component", "badges")),
		loading:   make(map[string]struct{}),
		cache:     make(map[string][]Badge),
	}
}

// LoadGlobalBadges fetches the global lists of every GlobalLoader
// concurrently. Each list is independent; a failing one keeps its previous
// contents.
func (r *Registry) LoadGlobalBadges(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "badges.load_global")
	defer span.End()

	var g errgroup.Group
	for _, p := range r.providers {
		gl, ok := p.(GlobalLoader)
		if !ok {
			continue
		}
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			start := time.Now()
			err := gl.LoadGlobal(ctx)
			telemetry.ObserveSource(p.Name()+"_global", time.Since(start), err)
			if err != nil {
				r.logger.Warn("global badge list failed", slog.String("source", p.Name()), slog.Any("err", err))
			}
			return nil
		})
	}
	_ = g.Wait()
	telemetry.SetSpanSuccess(span)
}

// LoadUserBadges resolves and caches the badges of username. It returns
// immediately when a load for the same user is in flight or already done.
func (r *Registry) LoadUserBadges(ctx context.Context, username, userID string) {
	key := strings.ToLower(username)
	if key == "" || !r.begin(key) {
		return
	}
	list := []Badge{}
	abandoned := false
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("user badge load panicked", slog.String("user", key), slog.Any("panic", rec))
			list = []Badge{}
		}
		if abandoned {
			r.release(key)
			return
		}
		r.finish(key, list)
	}()
	list = r.collect(ctx, username, userID)
	// a caller that went away says nothing about the sources; leave the
	// user uncached so the next caller loads it
	abandoned = ctx.Err() != nil
}

func (r *Registry) begin(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.loading[key]; busy {
		return false
	}
	if _, done := r.cache[key]; done {
		return false
	}
	r.loading[key] = struct{}{}
	return true
}

func (r *Registry) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.loading, key)
}

func (r *Registry) finish(key string, list []Badge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[key] = list
	delete(r.loading, key)
}

// collect queries every provider concurrently and concatenates the results in
// provider order, dropping repeated image URLs.
func (r *Registry) collect(ctx context.Context, username, userID string) []Badge {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "badges.load_user")
	defer span.End()

	results := make([][]Badge, len(r.providers))
	var g errgroup.Group
	for i, p := range r.providers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			start := time.Now()
			bs, err := userBadges(ctx, p, username, userID)
			telemetry.ObserveSource(p.Name()+"_user", time.Since(start), err)
			if err != nil {
				r.logger.Debug("user badge source failed",
					slog.String("source", p.Name()), slog.String("user", username), slog.Any("err", err))
				return nil
			}
			results[i] = bs
			return nil
		})
	}
	_ = g.Wait()

	var all []Badge
	for _, bs := range results {
		all = append(all, bs...)
	}
	return Dedupe(all)
}

func userBadges(ctx context.Context, p Provider, username, userID string) (bs []Badge, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			bs, err = nil, fmt.Errorf("%s panicked: %v", p.Name(), rec)
		}
	}()
	return p.UserBadges(ctx, username, userID)
}

// Dedupe keeps the first badge for every image URL, preserving order.
func Dedupe(in []Badge) []Badge {
	seen := make(map[string]struct{}, len(in))
	out := make([]Badge, 0, len(in))
	for _, b := range in {
		if _, dup := seen[b.ImageURL]; dup {
			continue
		}
		seen[b.ImageURL] = struct{}{}
		out = append(out, b)
	}
	return out
}

// UserBadges returns the cached badges of username, or nil when none are known yet.
func (r *Registry) UserBadges(username string) []Badge {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.cache[strings.ToLower(username)]
	if len(list) == 0 {
		return nil
	}
	return append([]Badge(nil), list...)
}

// HasBadges reports whether a load for username has completed.
func (r *Registry) HasBadges(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cache[strings.ToLower(username)]
	return ok
}

// ClearAll drops every cached user, failed loads included, so the next
// load of each user refetches.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string][]Badge)
}

// Len returns the number of cached users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
