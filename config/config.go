// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup; only the
// channel list is required (see Validate).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Twitch
	Channels           []string
	TwitchClientID     string
	TwitchClientSecret string
	IRCURL             string

	// Sessions
	MessageRetention   int
	SourceTimeout      time.Duration
	GlobalBadgeTimeout time.Duration
	ReconnectDelay     time.Duration
	ReconnectMaxDelay  time.Duration
	ReconnectConstant  bool

	// Filters
	ShowBots     bool
	HideCommands bool
	ShowBadges   bool
	BlockedUsers []string

	// HTTP / feed
	HTTPAddr      string
	FeedQueueSize int
}

// Load reads environment variables and applies defaults. Malformed values are
// reported; missing ones fall back to their defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Channels = splitList(os.Getenv("TWITCH_CHANNELS"))
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.IRCURL = os.Getenv("TWITCH_IRC_URL")
	if cfg.IRCURL == "" {
		cfg.IRCURL = "wss://irc-ws.chat.twitch.tv:443"
	}

	if cfg.MessageRetention, err = envInt("MESSAGE_RETENTION", 100); err != nil {
		return nil, err
	}
	if cfg.MessageRetention <= 0 {
		return nil, fmt.Errorf("invalid MESSAGE_RETENTION: must be positive")
	}
	if cfg.SourceTimeout, err = envDuration("SOURCE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.GlobalBadgeTimeout, err = envDuration("GLOBAL_BADGE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay, err = envDuration("RECONNECT_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconnectMaxDelay, err = envDuration("RECONNECT_MAX_DELAY", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectDelay {
		return nil, fmt.Errorf("invalid RECONNECT_MAX_DELAY: %s is below RECONNECT_DELAY %s", cfg.ReconnectMaxDelay, cfg.ReconnectDelay)
	}
	cfg.ReconnectConstant = envBool("RECONNECT_CONSTANT", false)

	cfg.ShowBots = envBool("SHOW_BOTS", true)
	cfg.HideCommands = envBool("HIDE_COMMANDS", false)
	cfg.ShowBadges = envBool("SHOW_BADGES", true)
	cfg.BlockedUsers = splitList(os.Getenv("BLOCKED_USERS"))

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.FeedQueueSize, err = envInt("FEED_QUEUE_SIZE", 1024); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the fields the service cannot run without.
func (c *Config) Validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNELS (comma separated)")
	}
	if (c.TwitchClientID == "") != (c.TwitchClientSecret == "") {
		return fmt.Errorf("TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET must be set together")
	}
	return nil
}

// HelixEnabled reports whether app credentials for the Helix API are configured.
func (c *Config) HelixEnabled() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != ""
}

// splitList splits a comma separated list of logins. Entries are trimmed and
// lowercased with any leading '#' removed; blanks and duplicates are dropped.
func splitList(v string) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range strings.Split(v, ",") {
		p = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p), "#"))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (duration like 5s): %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// envBool accepts 1/0 and anything strconv.ParseBool does; unparsable values keep the default.
func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
