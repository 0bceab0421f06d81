package badges

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/onnwee/chatfeed/httpjson"
	"github.com/onnwee/chatfeed/jsoncodec"
)

// Production endpoints.
const (
	DefaultFFZURL        = "https://api.frankerfacez.com/v1"
	DefaultFFZAPURL      = "https://api.ffzap.com/v1"
	DefaultBTTVURL       = "https://api.betterttv.net/3/cached"
	DefaultSevenTVURL    = "https://7tv.io/v3"
	DefaultChatterinoURL = "https://api.chatterino.com"
)

const ffzapDefaultColor = "#755000"

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// notFound reports whether err is a 404; several sources answer 404 for
// users with no profile.
func notFound(err error) bool {
	var se *httpjson.StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// FFZ looks up FrankerFaceZ badges per user.
type FFZ struct {
	BaseURL string
	Client  *http.Client
}

func (f *FFZ) Name() string { return "ffz" }

func (f *FFZ) UserBadges(ctx context.Context, username, _ string) ([]Badge, error) {
	var body struct {
		Badges map[string]struct {
			Title string            `json:"title"`
			Color string            `json:"color"`
			URLs  map[string]string `json:"urls"`
		} `json:"badges"`
	}
	u := orDefault(f.BaseURL, DefaultFFZURL) + "/user/" + url.PathEscape(strings.ToLower(username))
	if err := httpjson.Get(ctx, f.Client, u, &body); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ffz user: %w", err)
	}
	keys := make([]string, 0, len(body.Badges))
	for k := range body.Badges {
		keys = append(keys, k)
	}
	sortIDs(keys)

	var out []Badge
	for _, k := range keys {
		b := body.Badges[k]
		img := b.URLs["4"]
		if img == "" {
			img = b.URLs["2"]
		}
		if img == "" {
			img = b.URLs["1"]
		}
		if img == "" {
			continue
		}
		if !strings.HasPrefix(img, "http") {
			img = "https:" + img
		}
		out = append(out, Badge{Description: b.Title, ImageURL: img, Color: b.Color})
	}
	return out, nil
}

// sortIDs orders numeric ids numerically and everything else lexically after them.
func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return ids[i] < ids[j]
	})
}

// FFZAP serves FFZ:AP supporter badges from the global supporter list.
type FFZAP struct {
	BaseURL string
	Client  *http.Client

	supporters atomic.Pointer[map[string]Badge]
}

func (f *FFZAP) Name() string { return "ffzap" }

func (f *FFZAP) LoadGlobal(ctx context.Context) error {
	var body []struct {
		ID             jsoncodec.ID `json:"id"`
		Tier           int          `json:"tier"`
		BadgeColor     string       `json:"badge_color"`
		BadgeIsColored flexBool     `json:"badge_is_colored"`
	}
	base := orDefault(f.BaseURL, DefaultFFZAPURL)
	if err := httpjson.Get(ctx, f.Client, base+"/supporters", &body); err != nil {
		return fmt.Errorf("ffzap supporters: %w", err)
	}
	m := make(map[string]Badge, len(body))
	for _, s := range body {
		id := s.ID.String()
		if id == "" {
			continue
		}
		m[id] = Badge{
			Description: "FFZ:AP Badge",
			ImageURL:    "https://api.ffzap.com/v1/user/badge/" + id + "/3",
			Color:       ffzapColor(s.Tier, s.BadgeColor, bool(s.BadgeIsColored)),
		}
	}
	f.supporters.Store(&m)
	return nil
}

func ffzapColor(tier int, badgeColor string, isColored bool) string {
	switch {
	case tier == 2:
		return orDefault(badgeColor, ffzapDefaultColor)
	case tier == 3 && isColored:
		return ffzapDefaultColor
	case tier == 3:
		return orDefault(badgeColor, ffzapDefaultColor)
	}
	return ffzapDefaultColor
}

func (f *FFZAP) UserBadges(_ context.Context, _, userID string) ([]Badge, error) {
	m := f.supporters.Load()
	if m == nil || userID == "" {
		return nil, nil
	}
	if b, ok := (*m)[userID]; ok {
		return []Badge{b}, nil
	}
	return nil, nil
}

// BTTV serves BetterTTV badges from the global badge list, matched by name.
type BTTV struct {
	BaseURL string
	Client  *http.Client

	byName atomic.Pointer[map[string][]Badge]
}

func (b *BTTV) Name() string { return "bttv" }

func (b *BTTV) LoadGlobal(ctx context.Context) error {
	var body []struct {
		Name  string `json:"name"`
		Badge struct {
			Description string `json:"description"`
			SVG         string `json:"svg"`
		} `json:"badge"`
	}
	if err := httpjson.Get(ctx, b.Client, orDefault(b.BaseURL, DefaultBTTVURL)+"/badges", &body); err != nil {
		return fmt.Errorf("bttv badges: %w", err)
	}
	m := make(map[string][]Badge)
	for _, u := range body {
		if u.Name == "" || u.Badge.SVG == "" {
			continue
		}
		key := strings.ToLower(u.Name)
		m[key] = append(m[key], Badge{Description: u.Badge.Description, ImageURL: u.Badge.SVG})
	}
	b.byName.Store(&m)
	return nil
}

func (b *BTTV) UserBadges(_ context.Context, username, _ string) ([]Badge, error) {
	m := b.byName.Load()
	if m == nil {
		return nil, nil
	}
	return (*m)[strings.ToLower(username)], nil
}

// SevenTV looks up the active 7TV cosmetic badge per user.
type SevenTV struct {
	BaseURL string
	Client  *http.Client
}

func (s *SevenTV) Name() string { return "7tv" }

type sevenTVBadge struct {
	ID      string `json:"id"`
	Tooltip string `json:"tooltip"`
}

func (s *SevenTV) UserBadges(ctx context.Context, _, userID string) ([]Badge, error) {
	if userID == "" {
		return nil, nil
	}
	var body struct {
		User *struct {
			Style struct {
				Badge *sevenTVBadge `json:"badge"`
			} `json:"style"`
		} `json:"user"`
		Style struct {
			Badge *sevenTVBadge `json:"badge"`
		} `json:"style"`
	}
	u := orDefault(s.BaseURL, DefaultSevenTVURL) + "/users/twitch/" + url.PathEscape(userID)
	if err := httpjson.Get(ctx, s.Client, u, &body); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("7tv user: %w", err)
	}
	badge := body.Style.Badge
	if body.User != nil && body.User.Style.Badge != nil {
		badge = body.User.Style.Badge
	}
	if badge == nil || badge.ID == "" {
		return nil, nil
	}
	return []Badge{{
		Description: orDefault(badge.Tooltip, "7TV Badge"),
		ImageURL:    "https://cdn.7tv.app/badge/" + badge.ID + "/3x.webp",
	}}, nil
}

// Chatterino serves Chatterino badges from the global list, matched by user id.
type Chatterino struct {
	BaseURL string
	Client  *http.Client

	byUser atomic.Pointer[map[string][]Badge]
}

func (c *Chatterino) Name() string { return "chatterino" }

type chatterinoBadge struct {
	Tooltip string   `json:"tooltip"`
	Image1  string   `json:"image1"`
	Image2  string   `json:"image2"`
	Image3  string   `json:"image3"`
	Users   []string `json:"users"`
}

// chatterinoList accepts both {"badges": [...]} and a bare array.
type chatterinoList []chatterinoBadge

func (l *chatterinoList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var arr []chatterinoBadge
		if err := jsoncodec.Unmarshal(b, &arr); err != nil {
			return err
		}
		*l = arr
		return nil
	}
	var obj struct {
		Badges []chatterinoBadge `json:"badges"`
	}
	if err := jsoncodec.Unmarshal(b, &obj); err != nil {
		return err
	}
	*l = obj.Badges
	return nil
}

func (c *Chatterino) LoadGlobal(ctx context.Context) error {
	var body chatterinoList
	if err := httpjson.Get(ctx, c.Client, orDefault(c.BaseURL, DefaultChatterinoURL)+"/badges", &body); err != nil {
		return fmt.Errorf("chatterino badges: %w", err)
	}
	m := make(map[string][]Badge)
	for _, cb := range body {
		img := orDefault(cb.Image3, orDefault(cb.Image2, cb.Image1))
		if img == "" {
			continue
		}
		for _, id := range cb.Users {
			m[id] = append(m[id], Badge{Description: cb.Tooltip, ImageURL: img})
		}
	}
	c.byUser.Store(&m)
	return nil
}

func (c *Chatterino) UserBadges(_ context.Context, _, userID string) ([]Badge, error) {
	m := c.byUser.Load()
	if m == nil || userID == "" {
		return nil, nil
	}
	return (*m)[userID], nil
}

// flexBool accepts true/false as well as 0/1.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}
