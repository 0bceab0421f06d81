package irc

import (
	"strconv"
	"strings"
)

// TagValue is a single tag. Bare keys (no '=') have Bare set and an empty Value.
type TagValue struct {
	Value string
	Bare  bool
}

// Tags is the typed view over a line's tag list. Every accessor fails closed:
// a missing or malformed tag reads as absent. A nil Tags is valid.
type Tags map[string]TagValue

func parseTags(raw string) Tags {
	tags := make(Tags)
	for _, tag := range strings.Split(raw, ";") {
		if tag == "" {
			continue
		}
		key, value, found := strings.Cut(tag, "=")
		if key == "" {
			continue
		}
		if !found {
			tags[key] = TagValue{Bare: true}
			continue
		}
		tags[key] = TagValue{Value: unescapeTag(value)}
	}
	return tags
}

// unescapeTag reverses IRCv3 tag value escaping.
func unescapeTag(v string) string {
	if strings.IndexByte(v, '\\') == -1 {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(v) {
			break
		}
		switch v[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}

// Has reports whether the key is present, bare or valued.
func (t Tags) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// Get returns a non-empty tag value. Bare and empty tags read as absent.
func (t Tags) Get(key string) (string, bool) {
	v, ok := t[key]
	if !ok || v.Bare || v.Value == "" {
		return "", false
	}
	return v.Value, true
}

// String returns the tag value or "".
func (t Tags) String(key string) string {
	v, _ := t.Get(key)
	return v
}

// Int parses a decimal tag value.
func (t Tags) Int(key string) (int, bool) {
	v, ok := t.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Int64 parses a decimal tag value, e.g. tmi-sent-ts.
func (t Tags) Int64(key string) (int64, bool) {
	v, ok := t.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// BadgeRef is one entry of the badges tag, e.g. subscriber/12.
type BadgeRef struct {
	Set     string
	Version string
}

// Badges decodes the comma separated badges tag. Entries without a set name
// are skipped.
func (t Tags) Badges() []BadgeRef {
	raw, ok := t.Get("badges")
	if !ok {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]BadgeRef, 0, len(parts))
	for _, p := range parts {
		set, version, _ := strings.Cut(p, "/")
		if set == "" {
			continue
		}
		out = append(out, BadgeRef{Set: set, Version: version})
	}
	return out
}

// HasBadge reports whether the badges tag holds any of the given sets.
func (t Tags) HasBadge(sets ...string) bool {
	for _, b := range t.Badges() {
		for _, s := range sets {
			if b.Set == s {
				return true
			}
		}
	}
	return false
}

// EmoteSpan is one positional native emote occurrence. Start and End are
// inclusive character offsets and are not validated against any text here.
type EmoteSpan struct {
	ID    string
	Start int
	End   int
}

// Emotes decodes the positional emotes tag (id:start-end,start-end/id:...).
// Malformed groups or ranges are skipped.
func (t Tags) Emotes() []EmoteSpan {
	raw, ok := t.Get("emotes")
	if !ok {
		return nil
	}
	var out []EmoteSpan
	for _, group := range strings.Split(raw, "/") {
		id, positions, found := strings.Cut(group, ":")
		if !found || id == "" {
			continue
		}
		for _, rng := range strings.Split(positions, ",") {
			a, b, found := strings.Cut(rng, "-")
			if !found {
				continue
			}
			start, err1 := strconv.Atoi(a)
			end, err2 := strconv.Atoi(b)
			if err1 != nil || err2 != nil {
				continue
			}
			out = append(out, EmoteSpan{ID: id, Start: start, End: end})
		}
	}
	return out
}
