// Package irc decodes Twitch chat lines (IRCv3 tags, prefix, command, params)
// into Events. Parsing is a single left-to-right scan and never panics:
// malformed input is reported with ok=false and is meant to be dropped.
package irc

import "strings"

// Event is one decoded protocol line. Events are not modified after Parse returns.
type Event struct {
	Raw     string
	Tags    Tags
	Prefix  string // empty when the line carried no prefix
	Command string
	Params  []string
}

// Parse decodes a single line. A trailing CR/LF is ignored.
func Parse(line string) (*Event, bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, false
	}
	ev := &Event{Raw: line}
	pos := 0

	if line[0] == '@' {
		sp := strings.IndexByte(line, ' ')
		if sp == -1 {
			return nil, false
		}
		ev.Tags = parseTags(line[1:sp])
		pos = sp + 1
	}
	pos = skipSpaces(line, pos)

	if pos < len(line) && line[pos] == ':' {
		sp := strings.IndexByte(line[pos:], ' ')
		if sp == -1 {
			return nil, false
		}
		ev.Prefix = line[pos+1 : pos+sp]
		pos = skipSpaces(line, pos+sp+1)
	}

	if pos >= len(line) {
		return nil, false
	}
	sp := strings.IndexByte(line[pos:], ' ')
	if sp == -1 {
		ev.Command = line[pos:]
		return ev, true
	}
	ev.Command = line[pos : pos+sp]
	pos = skipSpaces(line, pos+sp+1)

	for pos < len(line) {
		if line[pos] == ':' {
			ev.Params = append(ev.Params, line[pos+1:])
			break
		}
		sp := strings.IndexByte(line[pos:], ' ')
		if sp == -1 {
			ev.Params = append(ev.Params, line[pos:])
			break
		}
		ev.Params = append(ev.Params, line[pos:pos+sp])
		pos = skipSpaces(line, pos+sp+1)
	}
	return ev, true
}

func skipSpaces(s string, pos int) int {
	for pos < len(s) && s[pos] == ' ' {
		pos++
	}
	return pos
}

// Param returns the i-th parameter or "" when absent.
func (e *Event) Param(i int) string {
	if i < 0 || i >= len(e.Params) {
		return ""
	}
	return e.Params[i]
}

// Nick returns the nickname part of a nick!user@host prefix. Server-name
// prefixes are returned unchanged.
func (e *Event) Nick() string {
	if i := strings.IndexByte(e.Prefix, '!'); i >= 0 {
		return e.Prefix[:i]
	}
	return e.Prefix
}
