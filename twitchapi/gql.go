package twitchapi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/onnwee/chatfeed/jsoncodec"
)

const (
	// DefaultGQLURL is the public Twitch GraphQL endpoint.
	DefaultGQLURL = "https://gql.twitch.tv/gql"
	// PublicClientID is the web client id the public GQL endpoint accepts
	// without any user or app credentials.
	PublicClientID = "kimne78kx3ncx6brgo4mv6wki5h1ko"
)

// GQLResolver resolves channel ids anonymously. It is used when no Helix
// client credentials are configured.
type GQLResolver struct {
	URL        string
	ClientID   string
	HTTPClient *http.Client
}

// GetUserID resolves a login name to its user ID.
func (g *GQLResolver) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	url := g.URL
	if url == "" {
		url = DefaultGQLURL
	}
	clientID := g.ClientID
	if clientID == "" {
		clientID = PublicClientID
	}
	payload, err := jsoncodec.Marshal(map[string]any{
		"query":     `query GetChannelID($login: String!) { user(login: $login) { id } }`,
		"variables": map[string]string{"login": login},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Client-Id", clientID)
	req.Header.Set("Content-Type", "application/json")
	hc := g.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gql: %s", resp.Status)
	}
	var body struct {
		Data struct {
			User *struct {
				ID string `json:"id"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := jsoncodec.Decode(resp.Body, &body); err != nil {
		return "", err
	}
	if body.Data.User == nil || body.Data.User.ID == "" {
		return "", ErrUserNotFound
	}
	return body.Data.User.ID, nil
}
