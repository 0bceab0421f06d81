package chat

import (
	"regexp"
	"strings"
)

// Filter reasons, also used as the metric label.
const (
	FilterBlocked = "blocked"
	FilterCommand = "command"
	FilterBot     = "bot"
)

var knownBots = map[string]struct{}{
	"streamelements": {},
	"streamlabs":     {},
	"nightbot":       {},
	"moobot":         {},
	"fossabot":       {},
	"wizebot":        {},
}

var commandRe = regexp.MustCompile(`^!.+`)

// Filter decides which chat messages are suppressed.
type Filter struct {
	ShowBots     bool
	HideCommands bool
	blocked      map[string]struct{}
}

// NewFilter builds a filter; blocked usernames are matched case-insensitively.
func NewFilter(showBots, hideCommands bool, blocked []string) Filter {
	f := Filter{ShowBots: showBots, HideCommands: hideCommands, blocked: make(map[string]struct{}, len(blocked))}
	for _, u := range blocked {
		if u = strings.ToLower(strings.TrimSpace(u)); u != "" {
			f.blocked[u] = struct{}{}
		}
	}
	return f
}

// Reason returns why the message should be suppressed, or "" to keep it.
// Checks run in order: blocked user, command, bot.
func (f Filter) Reason(username, body string) string {
	user := strings.ToLower(username)
	if _, ok := f.blocked[user]; ok {
		return FilterBlocked
	}
	if f.HideCommands && commandRe.MatchString(body) {
		return FilterCommand
	}
	if !f.ShowBots {
		if _, ok := knownBots[user]; ok {
			return FilterBot
		}
	}
	return ""
}
