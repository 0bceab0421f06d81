package emotes

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/onnwee/chatfeed/httpjson"
)

// DefaultSevenTVURL is the 7TV v3 API base.
const DefaultSevenTVURL = "https://7tv.io/v3"

// 7TV emote flags marking an overlay emote.
const (
	sevenTVFlagZeroWidth = 1 << 0
	sevenTVFlagOverlay   = 1 << 8
)

// SevenTV adapts 7TV emote sets.
type SevenTV struct {
	BaseURL string
	Client  *http.Client
}

type sevenTVEmote struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Flags int    `json:"flags"`
	Data  *struct {
		ID    string `json:"id"`
		Flags int    `json:"flags"`
	} `json:"data"`
}

func (s *SevenTV) Name() string { return "7tv" }

func (s *SevenTV) base() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return DefaultSevenTVURL
}

func (s *SevenTV) FetchGlobal(ctx context.Context) ([]Match, error) {
	var body struct {
		Emotes []sevenTVEmote `json:"emotes"`
	}
	if err := httpjson.Get(ctx, s.Client, s.base()+"/emote-sets/global", &body); err != nil {
		return nil, fmt.Errorf("7tv global: %w", err)
	}
	return sevenTVMatches(body.Emotes), nil
}

func (s *SevenTV) FetchChannel(ctx context.Context, channelName, channelID string) ([]Match, error) {
	if channelID == "" || channelID == "0" {
		return nil, nil
	}
	var body struct {
		EmoteSet *struct {
			Emotes []sevenTVEmote `json:"emotes"`
		} `json:"emote_set"`
	}
	if err := httpjson.Get(ctx, s.Client, s.base()+"/users/twitch/"+url.PathEscape(channelID), &body); err != nil {
		return nil, fmt.Errorf("7tv channel: %w", err)
	}
	if body.EmoteSet == nil {
		return nil, nil
	}
	return sevenTVMatches(body.EmoteSet.Emotes), nil
}

func sevenTVMatches(in []sevenTVEmote) []Match {
	zw := func(flags int) bool {
		return flags&sevenTVFlagZeroWidth != 0 || flags&sevenTVFlagOverlay != 0
	}
	out := make([]Match, 0, len(in))
	for _, e := range in {
		id, zero := e.ID, zw(e.Flags)
		if e.Data != nil {
			if e.Data.ID != "" {
				id = e.Data.ID
			}
			zero = zero || zw(e.Data.Flags)
		}
		if id == "" || e.Name == "" {
			continue
		}
		out = append(out, Match{
			Code: e.Name,
			Emote: Emote{
				ID:        id,
				ImageURL:  "https://cdn.7tv.app/emote/" + id + "/4x.webp",
				ZeroWidth: zero,
			},
		})
	}
	return out
}
