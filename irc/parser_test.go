package irc

import (
	"reflect"
	"strings"
	"testing"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantTags   Tags
		wantPrefix string
		wantCmd    string
		wantParams []string
	}{
		{
			name:       "tags prefix params and trailing",
			line:       "@k1=v1;k2 :nick!user@host COMMAND p1 p2 :trailing text",
			wantTags:   Tags{"k1": {Value: "v1"}, "k2": {Bare: true}},
			wantPrefix: "nick!user@host",
			wantCmd:    "COMMAND",
			wantParams: []string{"p1", "p2", "trailing text"},
		},
		{
			name:       "ping",
			line:       "PING :tmi.twitch.tv",
			wantCmd:    "PING",
			wantParams: []string{"tmi.twitch.tv"},
		},
		{
			name:    "command without params",
			line:    "RECONNECT",
			wantCmd: "RECONNECT",
		},
		{
			name:       "server prefix numeric",
			line:       ":tmi.twitch.tv 001 justinfan123 :Welcome, GLHF!",
			wantPrefix: "tmi.twitch.tv",
			wantCmd:    "001",
			wantParams: []string{"justinfan123", "Welcome, GLHF!"},
		},
		{
			name:       "consecutive spaces collapse",
			line:       ":a!a@a   PRIVMSG    #chan    :hi  there",
			wantPrefix: "a!a@a",
			wantCmd:    "PRIVMSG",
			wantParams: []string{"#chan", "hi  there"},
		},
		{
			name:       "trailing crlf ignored",
			line:       "PING :tmi.twitch.tv\r\n",
			wantCmd:    "PING",
			wantParams: []string{"tmi.twitch.tv"},
		},
		{
			name:       "trailing colon inside trailing kept",
			line:       "PRIVMSG #chan :a :b: c",
			wantCmd:    "PRIVMSG",
			wantParams: []string{"#chan", "a :b: c"},
		},
		{
			name:       "empty trailing",
			line:       "PRIVMSG #chan :",
			wantCmd:    "PRIVMSG",
			wantParams: []string{"#chan", ""},
		},
		{
			name:       "escaped tag value",
			line:       `@system-msg=hello\sworld\:\\ USERNOTICE #chan`,
			wantTags:   Tags{"system-msg": {Value: `hello world;\`}},
			wantCmd:    "USERNOTICE",
			wantParams: []string{"#chan"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := Parse(tt.line)
			if !ok {
				t.Fatalf("Parse(%q) failed", tt.line)
			}
			if tt.wantTags != nil && !reflect.DeepEqual(ev.Tags, tt.wantTags) {
				t.Errorf("tags = %#v, want %#v", ev.Tags, tt.wantTags)
			}
			if tt.wantTags == nil && len(ev.Tags) != 0 {
				t.Errorf("tags = %#v, want none", ev.Tags)
			}
			if ev.Prefix != tt.wantPrefix {
				t.Errorf("prefix = %q, want %q", ev.Prefix, tt.wantPrefix)
			}
			if ev.Command != tt.wantCmd {
				t.Errorf("command = %q, want %q", ev.Command, tt.wantCmd)
			}
			if len(ev.Params) != len(tt.wantParams) || (len(tt.wantParams) > 0 && !reflect.DeepEqual(ev.Params, tt.wantParams)) {
				t.Errorf("params = %q, want %q", ev.Params, tt.wantParams)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, line := range []string{
		"",
		"\r\n",
		"@badges=moderator/1;color=#fff",
		"@a=b ",
		":nick!user@host",
		":nick!user@host   ",
		"@a=b :prefix.only",
	} {
		if ev, ok := Parse(line); ok || ev != nil {
			t.Errorf("Parse(%q) = %+v, want invalid", line, ev)
		}
	}
}

func TestEventNickAndParam(t *testing.T) {
	ev, ok := Parse(":viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #chan :hello")
	if !ok {
		t.Fatal("parse failed")
	}
	if got := ev.Nick(); got != "viewer" {
		t.Errorf("Nick() = %q", got)
	}
	if got := ev.Param(5); got != "" {
		t.Errorf("Param(5) = %q, want empty", got)
	}
	srv, _ := Parse(":tmi.twitch.tv 376 justinfan1 :>")
	if got := srv.Nick(); got != "tmi.twitch.tv" {
		t.Errorf("server Nick() = %q", got)
	}
}

// Lines captured from the Twitch IRC server, cross-checked against the
// go-twitch-irc decoder.
var capturedPrivmsgs = []string{
	"@badge-info=subscriber/14;badges=moderator/1,subscriber/12;color=#1E90FF;display-name=Viewer;emotes=25:0-4;id=b34ccfc7-4977-403a-8a94-33c6bac34fb8;mod=1;room-id=12345;subscriber=1;tmi-sent-ts=1700000000000;turbo=0;user-id=67890;user-type=mod :viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #streamer :Kappa hello there",
	"@badge-info=;badges=;bits=250;color=;display-name=cheerer;emotes=;id=9f1e1c36-9b3f-4bb2-8f2b-2b4c5c8bb1a1;mod=0;room-id=12345;subscriber=0;tmi-sent-ts=1700000000500;turbo=0;user-id=111;user-type= :cheerer!cheerer@cheerer.tmi.twitch.tv PRIVMSG #streamer :Cheer250 nice stream",
}

func TestParseMatchesGoTwitchIRC(t *testing.T) {
	for _, line := range capturedPrivmsgs {
		ours, ok := Parse(line)
		if !ok {
			t.Fatalf("Parse failed for %q", line)
		}
		ref, isPriv := twitch.ParseMessage(line).(*twitch.PrivateMessage)
		if !isPriv {
			t.Fatalf("reference parser did not produce a PRIVMSG for %q", line)
		}
		if ours.Command != ref.RawType {
			t.Errorf("command = %q, reference %q", ours.Command, ref.RawType)
		}
		if got := strings.TrimPrefix(ours.Param(0), "#"); got != ref.Channel {
			t.Errorf("channel = %q, reference %q", got, ref.Channel)
		}
		if got := ours.Param(1); got != ref.Message {
			t.Errorf("body = %q, reference %q", got, ref.Message)
		}
		if got := ours.Nick(); got != ref.User.Name {
			t.Errorf("nick = %q, reference %q", got, ref.User.Name)
		}
		for key, want := range ref.Tags {
			if got := ours.Tags[key].Value; got != want {
				t.Errorf("tag %s = %q, reference %q", key, got, want)
			}
		}
	}
}

func TestParseClearChatMatchesGoTwitchIRC(t *testing.T) {
	line := "@ban-duration=600;room-id=12345;target-user-id=67890;tmi-sent-ts=1700000001000 :tmi.twitch.tv CLEARCHAT #streamer :Viewer"
	ours, ok := Parse(line)
	if !ok {
		t.Fatal("parse failed")
	}
	ref, isClear := twitch.ParseMessage(line).(*twitch.ClearChatMessage)
	if !isClear {
		t.Fatal("reference parser did not produce CLEARCHAT")
	}
	if ours.Param(1) != ref.TargetUsername {
		t.Errorf("target = %q, reference %q", ours.Param(1), ref.TargetUsername)
	}
	if ours.Tags.String("target-user-id") != ref.TargetUserID {
		t.Errorf("target id = %q, reference %q", ours.Tags.String("target-user-id"), ref.TargetUserID)
	}
}
