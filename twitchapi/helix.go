// Package twitchapi contains minimal helpers to interact with Twitch APIs:
// channel id resolution (Helix with an app token, or the anonymous GQL
// endpoint) and the per-channel cheermote tier table.
package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/onnwee/chatfeed/jsoncodec"
)

// DefaultHelixURL is the Helix API base.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// ErrUserNotFound is returned when a login does not resolve to a user.
var ErrUserNotFound = errors.New("user not found")

// HelixClient provides the Helix calls chatfeed needs.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	BaseURL        string
	HTTPClient     *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return DefaultHelixURL
}

// get performs an authenticated GET against path and decodes the JSON body into out.
func (hc *HelixClient) get(ctx context.Context, path string, query map[string]string, out any) error {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+path, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	for k, v := range query {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("helix %s: %s: %s", path, resp.Status, string(b))
	}
	return jsoncodec.Decode(resp.Body, out)
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "/users", map[string]string{"login": login}, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 || body.Data[0].ID == "" {
		return "", ErrUserNotFound
	}
	return body.Data[0].ID, nil
}

// CheerTier is one bits threshold of a cheermote.
type CheerTier struct {
	Prefix   string
	MinBits  int
	Color    string
	ImageURL string
}

// GetCheermotes lists the cheermote tiers available in a channel (global
// cheermotes included). Tiers that cannot be used for cheering are skipped.
func (hc *HelixClient) GetCheermotes(ctx context.Context, broadcasterID string) ([]CheerTier, error) {
	query := map[string]string{}
	if broadcasterID != "" && broadcasterID != "0" {
		query["broadcaster_id"] = broadcasterID
	}
	var body struct {
		Data []struct {
			Prefix string `json:"prefix"`
			Tiers  []struct {
				MinBits  int    `json:"min_bits"`
				Color    string `json:"color"`
				CanCheer bool   `json:"can_cheer"`
				Images   struct {
					Dark struct {
						Animated map[string]string `json:"animated"`
						Static   map[string]string `json:"static"`
					} `json:"dark"`
				} `json:"images"`
			} `json:"tiers"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "/bits/cheermotes", query, &body); err != nil {
		return nil, err
	}
	var out []CheerTier
	for _, c := range body.Data {
		for _, t := range c.Tiers {
			if !t.CanCheer {
				continue
			}
			out = append(out, CheerTier{
				Prefix:   c.Prefix,
				MinBits:  t.MinBits,
				Color:    t.Color,
				ImageURL: pickScale(t.Images.Dark.Animated, t.Images.Dark.Static),
			})
		}
	}
	return out, nil
}

// pickScale returns the largest available image, preferring animated ones.
func pickScale(sets ...map[string]string) string {
	for _, set := range sets {
		for _, scale := range []string{"4", "3", "2", "1.5", "1"} {
			if u := set[scale]; u != "" {
				return u
			}
		}
	}
	return ""
}
