package badges

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chatfeed/httpjson"
	"github.com/onnwee/chatfeed/telemetry"
)

// DefaultIVRURL is the IVR API base serving native Twitch badge sets.
const DefaultIVRURL = "https://api.ivr.fi/v2/twitch/badges"

// TwitchBadges maps native badge (set, version) pairs to image URLs.
// Channel sets override global sets with the same key (subscriber, bits).
type TwitchBadges struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration

	urls atomic.Pointer[map[string]string]
}

type ivrSet struct {
	SetID    string `json:"set_id"`
	Versions []struct {
		ID         string `json:"id"`
		ImageURL4x string `json:"image_url_4x"`
	} `json:"versions"`
}

func badgeKey(set, version string) string { return set + "/" + version }

// Refresh refetches the global and channel badge sets. When both fetches fail
// the previous map is kept.
func (t *TwitchBadges) Refresh(ctx context.Context, channelName string) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "badges.twitch_refresh", telemetry.ChannelAttr(channelName))
	defer span.End()

	base := orDefault(t.BaseURL, DefaultIVRURL)
	var global, channel []ivrSet
	var globalErr, channelErr error
	var g errgroup.Group
	g.Go(func() error {
		global, globalErr = t.fetch(ctx, "ivr_global", base+"/global")
		return nil
	})
	if channelName != "" {
		g.Go(func() error {
			channel, channelErr = t.fetch(ctx, "ivr_channel", base+"/channel?login="+url.QueryEscape(strings.ToLower(channelName)))
			return nil
		})
	}
	_ = g.Wait()

	if globalErr != nil && (channelErr != nil || channelName == "") {
		telemetry.RecordError(span, globalErr)
		slog.Warn("native badge refresh failed, keeping previous sets",
			slog.String("component", "badges"), slog.String("channel", channelName), slog.Any("err", globalErr))
		return
	}
	m := make(map[string]string)
	for _, sets := range [][]ivrSet{global, channel} {
		for _, s := range sets {
			for _, v := range s.Versions {
				if s.SetID == "" || v.ImageURL4x == "" {
					continue
				}
				m[badgeKey(s.SetID, v.ID)] = v.ImageURL4x
			}
		}
	}
	t.urls.Store(&m)
	telemetry.SetSpanSuccess(span)
	slog.Info("native badges refreshed", slog.String("component", "badges"),
		slog.String("channel", channelName), slog.Int("count", len(m)))
}

func (t *TwitchBadges) fetch(ctx context.Context, source, u string) ([]ivrSet, error) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	var sets []ivrSet
	err := httpjson.Get(ctx, t.Client, u, &sets)
	telemetry.ObserveSource(source, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return sets, nil
}

// URL returns the image for a badge set and version, or "" when unknown.
func (t *TwitchBadges) URL(set, version string) string {
	m := t.urls.Load()
	if m == nil {
		return ""
	}
	return (*m)[badgeKey(set, version)]
}

// Len returns the number of known (set, version) pairs.
func (t *TwitchBadges) Len() int {
	m := t.urls.Load()
	if m == nil {
		return 0
	}
	return len(*m)
}
