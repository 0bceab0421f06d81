package chat

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/chatfeed/badges"
	"github.com/onnwee/chatfeed/emotes"
	"github.com/onnwee/chatfeed/irc"
)

// NativeEmoteURL is the CDN template for native Twitch emotes.
const NativeEmoteURL = "https://static-cdn.jtvnw.net/emoticons/v2/%s/default/dark/3.0"

var actionRe = regexp.MustCompile(`^\x01ACTION.*\x01$`)

// priorityBadges are rendered before every other badge.
var priorityBadges = map[string]struct{}{
	"predictions": {},
	"admin":       {},
	"global_mod":  {},
	"staff":       {},
	"twitchbot":   {},
	"broadcaster": {},
	"moderator":   {},
	"vip":         {},
}

// EmoteLookup resolves third-party emote codes.
type EmoteLookup interface {
	Lookup(code string) (emotes.Emote, bool)
}

// BadgeLookup returns the cached third-party badges of a user.
type BadgeLookup interface {
	UserBadges(username string) []badges.Badge
}

// NativeBadgeLookup resolves a native badge (set, version) to its image.
type NativeBadgeLookup interface {
	URL(set, version string) string
}

// Enricher turns a raw chat line into a display-ready Message. Any lookup
// may be nil, in which case that decoration is skipped.
type Enricher struct {
	Emotes EmoteLookup
	Badges BadgeLookup
	Native NativeBadgeLookup
	Now    func() time.Time

	cheers atomic.Pointer[CheerTable]
}

// SetCheers replaces the cheer table.
func (e *Enricher) SetCheers(tiers []CheerTier) {
	e.cheers.Store(NewCheerTable(tiers))
}

// Cheers returns the current cheer table, possibly nil.
func (e *Enricher) Cheers() *CheerTable { return e.cheers.Load() }

func (e *Enricher) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Enrich builds the Message sent by username with the given tags and body.
func (e *Enricher) Enrich(username string, tags irc.Tags, body string) Message {
	ts := e.now().UnixMilli()
	text, isAction := StripAction(body)

	m := Message{
		ID:          tags.String("id"),
		Username:    username,
		DisplayName: tags.String("display-name"),
		Color:       ResolveColor(username, tags.String("color")),
		Text:        text,
		RawText:     body,
		TimestampMs: ts,
		IsAction:    isAction,
	}
	if m.ID == "" {
		m.ID = fmt.Sprintf("%s_%d_%s", username, ts, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	}
	if m.DisplayName == "" {
		m.DisplayName = username
	}
	m.Badges = e.badges(username, tags)
	m.InlineEmotes = inlineEmotes(tags.Emotes(), text)
	m.SubstitutionEmotes = e.substitutions(text)
	if bits, ok := tags.Int("bits"); ok && bits > 0 {
		m.Bits, m.HasBits = bits, true
		m.Cheer = e.cheers.Load().Resolve(text, bits)
	}
	return m
}

// StripAction removes the CTCP ACTION wrapper (/me messages).
func StripAction(body string) (string, bool) {
	if !actionRe.MatchString(body) {
		return body, false
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(body, "\x01ACTION"), "\x01")
	return strings.TrimSpace(inner), true
}

func (e *Enricher) badges(username string, tags irc.Tags) []badges.Badge {
	var all []badges.Badge
	if e.Native != nil {
		for _, ref := range tags.Badges() {
			u := e.Native.URL(ref.Set, ref.Version)
			if u == "" {
				continue
			}
			all = append(all, badges.Badge{Description: ref.Set, ImageURL: u})
		}
	}
	if e.Badges != nil {
		all = append(all, e.Badges.UserBadges(username)...)
	}
	return PrioritizeBadges(all)
}

// PrioritizeBadges marks badges whose description is a priority set and
// moves them to the front. Relative order inside both groups is kept.
func PrioritizeBadges(in []badges.Badge) []badges.Badge {
	if len(in) == 0 {
		return nil
	}
	out := make([]badges.Badge, 0, len(in))
	var rest []badges.Badge
	for _, b := range in {
		_, b.Priority = priorityBadges[b.Description]
		if b.Priority {
			out = append(out, b)
		} else {
			rest = append(rest, b)
		}
	}
	return append(out, rest...)
}

// inlineEmotes keeps the spans that fit inside text.
func inlineEmotes(spans []irc.EmoteSpan, text string) []InlineEmote {
	if len(spans) == 0 {
		return nil
	}
	n := len([]rune(text))
	out := make([]InlineEmote, 0, len(spans))
	for _, s := range spans {
		if s.Start < 0 || s.Start > s.End || s.End >= n {
			continue
		}
		out = append(out, InlineEmote{
			ID:       s.ID,
			Start:    s.Start,
			End:      s.End,
			ImageURL: fmt.Sprintf(NativeEmoteURL, s.ID),
		})
	}
	return out
}

func (e *Enricher) substitutions(text string) []emotes.Match {
	if e.Emotes == nil {
		return nil
	}
	var out []emotes.Match
	for _, word := range strings.Fields(text) {
		if em, ok := e.Emotes.Lookup(word); ok {
			out = append(out, emotes.Match{Code: word, Emote: em})
		}
	}
	return out
}
