package chat

import (
	"regexp"
	"testing"
	"time"

	"github.com/onnwee/chatfeed/badges"
	"github.com/onnwee/chatfeed/emotes"
	"github.com/onnwee/chatfeed/irc"
)

type fakeEmotes map[string]emotes.Emote

func (f fakeEmotes) Lookup(code string) (emotes.Emote, bool) {
	e, ok := f[code]
	return e, ok
}

type fakeBadges map[string][]badges.Badge

func (f fakeBadges) UserBadges(username string) []badges.Badge { return f[username] }

type fakeNative map[string]string

func (f fakeNative) URL(set, version string) string { return f[set+"/"+version] }

func tagsOf(t *testing.T, raw string) irc.Tags {
	t.Helper()
	ev, ok := irc.Parse("@" + raw + " :u!u@u.tmi.twitch.tv PRIVMSG #c :x")
	if !ok {
		t.Fatalf("could not parse tags %q", raw)
	}
	return ev.Tags
}

func fixedNow() time.Time { return time.UnixMilli(1700000000000) }

func TestEnrichBasicFields(t *testing.T) {
	e := &Enricher{Now: fixedNow}
	m := e.Enrich("alice", tagsOf(t, "id=abc;display-name=Alice;color=#FF69B4"), "hello there")

	if m.ID != "abc" || m.Username != "alice" || m.DisplayName != "Alice" {
		t.Errorf("identity = %q %q %q", m.ID, m.Username, m.DisplayName)
	}
	if m.Color != "#ff69b4" {
		t.Errorf("Color = %q", m.Color)
	}
	if m.Text != "hello there" || m.RawText != "hello there" || m.IsAction {
		t.Errorf("text = %q raw = %q action = %v", m.Text, m.RawText, m.IsAction)
	}
	if m.TimestampMs != 1700000000000 {
		t.Errorf("TimestampMs = %d", m.TimestampMs)
	}
	if m.Badges != nil || m.InlineEmotes != nil || m.SubstitutionEmotes != nil || m.HasBits {
		t.Errorf("unexpected decorations: %+v", m)
	}
}

func TestEnrichFallbacks(t *testing.T) {
	e := &Enricher{Now: fixedNow}
	m := e.Enrich("bob", tagsOf(t, "color="), "hi")
	if !regexp.MustCompile(`^bob_1700000000000_[0-9a-f]{12}$`).MatchString(m.ID) {
		t.Errorf("generated ID = %q", m.ID)
	}
	if other := e.Enrich("bob", nil, "hi"); other.ID == m.ID {
		t.Error("generated ids collide")
	}
	if m.DisplayName != "bob" {
		t.Errorf("DisplayName = %q, want username", m.DisplayName)
	}
	if m.Color != ResolveColor("bob", "") {
		t.Errorf("Color = %q, want palette color", m.Color)
	}
}

func TestEnrichAction(t *testing.T) {
	e := &Enricher{}
	m := e.Enrich("alice", nil, "\x01ACTION waves \x01")
	if !m.IsAction || m.Text != "waves" {
		t.Errorf("action = %v text = %q", m.IsAction, m.Text)
	}
	if m.RawText != "\x01ACTION waves \x01" {
		t.Errorf("RawText = %q", m.RawText)
	}
	if text, ok := StripAction("\x01ACTION unterminated"); ok || text != "\x01ACTION unterminated" {
		t.Errorf("unterminated action stripped: %q", text)
	}
}

func TestEnrichInlineEmotesDropsOutOfRangeSpans(t *testing.T) {
	e := &Enricher{}
	// "Kappa héllo" is 11 runes; 6-10 is valid, 6-11 and 9-7 are not
	tags := tagsOf(t, "emotes=25:0-4/1902:6-10,6-11/99:9-7")
	m := e.Enrich("alice", tags, "Kappa héllo")
	if len(m.InlineEmotes) != 2 {
		t.Fatalf("InlineEmotes = %+v, want 2", m.InlineEmotes)
	}
	for _, em := range m.InlineEmotes {
		if em.Start < 0 || em.End >= 11 || em.Start > em.End {
			t.Errorf("invalid span kept: %+v", em)
		}
	}
	if m.InlineEmotes[0].ImageURL != "https://static-cdn.jtvnw.net/emoticons/v2/25/default/dark/3.0" {
		t.Errorf("ImageURL = %q", m.InlineEmotes[0].ImageURL)
	}
}

func TestEnrichSubstitutions(t *testing.T) {
	e := &Enricher{Emotes: fakeEmotes{
		"OMEGALUL": {ID: "1", ImageURL: "u1"},
		"cvHazmat": {ID: "2", ImageURL: "u2", ZeroWidth: true},
	}}
	m := e.Enrich("alice", nil, "lol OMEGALUL cvHazmat omegalul OMEGALUL")
	var codes []string
	for _, s := range m.SubstitutionEmotes {
		codes = append(codes, s.Code)
	}
	if len(codes) != 3 || codes[0] != "OMEGALUL" || codes[1] != "cvHazmat" || codes[2] != "OMEGALUL" {
		t.Errorf("substitutions = %v", codes)
	}
	if !m.SubstitutionEmotes[1].Emote.ZeroWidth {
		t.Error("zero-width flag lost")
	}
}

func TestEnrichBadgesPriorityFirst(t *testing.T) {
	e := &Enricher{
		Native: fakeNative{
			"subscriber/12": "sub-url",
			"moderator/1":   "mod-url",
		},
		Badges: fakeBadges{"alice": {
			{Description: "FFZ:AP Badge", ImageURL: "ffzap"},
			{Description: "vip", ImageURL: "odd"},
		}},
	}
	m := e.Enrich("alice", tagsOf(t, "badges=subscriber/12,unknown/1,moderator/1"), "hi")

	var got []string
	for _, b := range m.Badges {
		got = append(got, b.ImageURL)
	}
	want := []string{"mod-url", "odd", "sub-url", "ffzap"}
	if len(got) != len(want) {
		t.Fatalf("badges = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("badges = %v, want %v", got, want)
		}
	}
	if !m.Badges[0].Priority || !m.Badges[1].Priority || m.Badges[2].Priority || m.Badges[3].Priority {
		t.Errorf("priority flags = %+v", m.Badges)
	}
}

func TestEnrichBits(t *testing.T) {
	e := &Enricher{}
	m := e.Enrich("alice", tagsOf(t, "bits=250"), "Cheer250 gg")
	if !m.HasBits || m.Bits != 250 || m.Cheer != nil {
		t.Errorf("before tiers: bits=%d has=%v cheer=%+v", m.Bits, m.HasBits, m.Cheer)
	}

	e.SetCheers([]CheerTier{{Prefix: "Cheer", MinBits: 1, ImageURL: "t1"}, {Prefix: "Cheer", MinBits: 100, ImageURL: "t2"}})
	m = e.Enrich("alice", tagsOf(t, "bits=250"), "Cheer250 gg")
	if m.Cheer == nil || m.Cheer.ImageURL != "t2" {
		t.Errorf("Cheer = %+v, want t2", m.Cheer)
	}

	m = e.Enrich("alice", tagsOf(t, "bits=abc"), "Cheer250")
	if m.HasBits || m.Cheer != nil {
		t.Error("malformed bits tag must be ignored")
	}
}
