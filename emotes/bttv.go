package emotes

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/onnwee/chatfeed/httpjson"
)

// DefaultBTTVURL is the BetterTTV cached API base.
const DefaultBTTVURL = "https://api.betterttv.net/3/cached"

// BetterTTV renders these ids as overlays; the API carries no flag for it.
var bttvZeroWidth = map[string]bool{
	"5e76d338d6581c3724c0f0b2": true,
	"5e76d399d6581c3724c0f0b8": true,
}

// BTTV adapts BetterTTV global and channel emotes.
type BTTV struct {
	BaseURL string
	Client  *http.Client
}

type bttvEmote struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

func (b *BTTV) Name() string { return "bttv" }

func (b *BTTV) base() string {
	if b.BaseURL != "" {
		return b.BaseURL
	}
	return DefaultBTTVURL
}

func (b *BTTV) FetchGlobal(ctx context.Context) ([]Match, error) {
	var body []bttvEmote
	if err := httpjson.Get(ctx, b.Client, b.base()+"/emotes/global", &body); err != nil {
		return nil, fmt.Errorf("bttv global: %w", err)
	}
	return bttvMatches(body), nil
}

func (b *BTTV) FetchChannel(ctx context.Context, channelName, channelID string) ([]Match, error) {
	if channelID == "" || channelID == "0" {
		return nil, nil
	}
	var body struct {
		ChannelEmotes []bttvEmote `json:"channelEmotes"`
		SharedEmotes  []bttvEmote `json:"sharedEmotes"`
	}
	if err := httpjson.Get(ctx, b.Client, b.base()+"/users/twitch/"+url.PathEscape(channelID), &body); err != nil {
		return nil, fmt.Errorf("bttv channel: %w", err)
	}
	return bttvMatches(append(body.ChannelEmotes, body.SharedEmotes...)), nil
}

func bttvMatches(in []bttvEmote) []Match {
	out := make([]Match, 0, len(in))
	for _, e := range in {
		if e.ID == "" || e.Code == "" {
			continue
		}
		out = append(out, Match{
			Code: e.Code,
			Emote: Emote{
				ID:        e.ID,
				ImageURL:  "https://cdn.betterttv.net/emote/" + e.ID + "/3x",
				ZeroWidth: bttvZeroWidth[e.ID],
			},
		})
	}
	return out
}
