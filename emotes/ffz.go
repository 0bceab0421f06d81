package emotes

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/onnwee/chatfeed/httpjson"
	"github.com/onnwee/chatfeed/jsoncodec"
)

// DefaultFFZURL is the FrankerFaceZ API base.
const DefaultFFZURL = "https://api.frankerfacez.com/v1"

// FFZ adapts FrankerFaceZ emote sets.
type FFZ struct {
	BaseURL string
	Client  *http.Client
}

type ffzSets struct {
	Sets map[string]struct {
		Emoticons []struct {
			ID   jsoncodec.ID      `json:"id"`
			Name string            `json:"name"`
			URLs map[string]string `json:"urls"`
		} `json:"emoticons"`
	} `json:"sets"`
}

func (f *FFZ) Name() string { return "ffz" }

func (f *FFZ) base() string {
	if f.BaseURL != "" {
		return f.BaseURL
	}
	return DefaultFFZURL
}

func (f *FFZ) FetchGlobal(ctx context.Context) ([]Match, error) {
	return f.fetch(ctx, f.base()+"/set/global")
}

func (f *FFZ) FetchChannel(ctx context.Context, channelName, channelID string) ([]Match, error) {
	if channelName == "" {
		return nil, nil
	}
	return f.fetch(ctx, f.base()+"/room/"+url.PathEscape(strings.ToLower(channelName)))
}

func (f *FFZ) fetch(ctx context.Context, u string) ([]Match, error) {
	var body ffzSets
	if err := httpjson.Get(ctx, f.Client, u, &body); err != nil {
		return nil, fmt.Errorf("ffz: %w", err)
	}
	// map iteration is random; sort set ids so collisions resolve the same way every refresh
	ids := make([]string, 0, len(body.Sets))
	for id := range body.Sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Match
	for _, id := range ids {
		for _, e := range body.Sets[id].Emoticons {
			img := e.URLs["4"]
			if img == "" {
				img = e.URLs["2"]
			}
			if img == "" {
				img = e.URLs["1"]
			}
			if e.Name == "" || img == "" {
				continue
			}
			if strings.HasPrefix(img, "//") {
				img = "https:" + img
			}
			out = append(out, Match{
				Code: e.Name,
				Emote: Emote{
					ID:       string(e.ID),
					ImageURL: img,
					Upscale:  e.URLs["4"] == "",
				},
			})
		}
	}
	return out, nil
}
