package emotes

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/onnwee/chatfeed/testutil"
)

func mockRegistries(t *testing.T) *testutil.MockSourceServer {
	t.Helper()
	m := testutil.NewMockSourceServer(t)
	m.JSON("api.frankerfacez.com/v1/set/global", map[string]any{
		"sets": map[string]any{
			"3": map[string]any{"emoticons": []map[string]any{
				{"id": 25927, "name": "CatBag", "urls": map[string]string{"1": "//cdn.frankerfacez.com/emote/25927/1", "4": "//cdn.frankerfacez.com/emote/25927/4"}},
				{"id": 27081, "name": "Shared", "urls": map[string]string{"1": "https://cdn.frankerfacez.com/emote/27081/1"}},
			}},
		},
	})
	m.JSON("api.frankerfacez.com/v1/room/somechannel", map[string]any{
		"sets": map[string]any{
			"123": map[string]any{"emoticons": []map[string]any{
				{"id": 1, "name": "ChannelFFZ", "urls": map[string]string{"2": "//cdn.frankerfacez.com/emote/1/2"}},
			}},
		},
	})
	m.JSON("api.betterttv.net/3/cached/emotes/global", []map[string]any{
		{"id": "54fa8f1401e468494b85b537", "code": ":tf:"},
		{"id": "5e76d338d6581c3724c0f0b2", "code": "cvHazmat"},
		{"id": "bttvshared", "code": "Shared"},
	})
	m.JSON("api.betterttv.net/3/cached/users/twitch/42", map[string]any{
		"channelEmotes": []map[string]any{{"id": "chan1", "code": "ChanBTTV"}},
		"sharedEmotes":  []map[string]any{{"id": "shared1", "code": "SharedBTTV"}},
	})
	m.JSON("7tv.io/v3/emote-sets/global", map[string]any{
		"emotes": []map[string]any{
			{"id": "60ae958e229664e8667aea38", "name": "RainTime", "flags": 1},
			{"id": "7tvplain", "name": "Plain", "flags": 0},
		},
	})
	m.JSON("7tv.io/v3/users/twitch/42", map[string]any{
		"emote_set": map[string]any{
			"emotes": []map[string]any{
				{"id": "active", "name": "Shared", "flags": 0, "data": map[string]any{"id": "7tvshared", "flags": 256}},
				{"id": "chan7tv", "name": "Chan7TV", "flags": 0},
			},
		},
	})
	return m
}

func TestRefreshMergesAllSources(t *testing.T) {
	m := mockRegistries(t)
	r := NewRegistry(time.Second, DefaultSources(m.Client())...)

	if _, ok := r.Lookup("CatBag"); ok {
		t.Fatal("lookup before refresh should miss")
	}
	r.Refresh(context.Background(), "SomeChannel", "42")

	tests := []struct {
		code string
		want Emote
	}{
		{"CatBag", Emote{ID: "25927", ImageURL: "https://cdn.frankerfacez.com/emote/25927/4"}},
		{"ChannelFFZ", Emote{ID: "1", ImageURL: "https://cdn.frankerfacez.com/emote/1/2", Upscale: true}},
		{":tf:", Emote{ID: "54fa8f1401e468494b85b537", ImageURL: "https://cdn.betterttv.net/emote/54fa8f1401e468494b85b537/3x"}},
		{"cvHazmat", Emote{ID: "5e76d338d6581c3724c0f0b2", ImageURL: "https://cdn.betterttv.net/emote/5e76d338d6581c3724c0f0b2/3x", ZeroWidth: true}},
		{"ChanBTTV", Emote{ID: "chan1", ImageURL: "https://cdn.betterttv.net/emote/chan1/3x"}},
		{"SharedBTTV", Emote{ID: "shared1", ImageURL: "https://cdn.betterttv.net/emote/shared1/3x"}},
		{"RainTime", Emote{ID: "60ae958e229664e8667aea38", ImageURL: "https://cdn.7tv.app/emote/60ae958e229664e8667aea38/4x.webp", ZeroWidth: true}},
		{"Plain", Emote{ID: "7tvplain", ImageURL: "https://cdn.7tv.app/emote/7tvplain/4x.webp"}},
		{"Chan7TV", Emote{ID: "chan7tv", ImageURL: "https://cdn.7tv.app/emote/chan7tv/4x.webp"}},
		// FFZ global, BTTV global and 7TV channel all define Shared; 7TV channel is merged last
		{"Shared", Emote{ID: "7tvshared", ImageURL: "https://cdn.7tv.app/emote/7tvshared/4x.webp", ZeroWidth: true}},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, ok := r.Lookup(tt.code)
			if !ok {
				t.Fatalf("Lookup(%q) missed", tt.code)
			}
			if got != tt.want {
				t.Errorf("Lookup(%q) = %+v, want %+v", tt.code, got, tt.want)
			}
		})
	}
	if r.Len() != len(tests) {
		t.Errorf("Len() = %d, want %d", r.Len(), len(tests))
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	m := mockRegistries(t)
	r := NewRegistry(time.Second, DefaultSources(m.Client())...)

	r.Refresh(context.Background(), "somechannel", "42")
	first := r.Snapshot()
	r.Refresh(context.Background(), "somechannel", "42")
	second := r.Snapshot()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("catalog changed between identical refreshes:\n%v\n%v", first, second)
	}
}

func TestRefreshSkipsIDScopedSourcesUntilResolved(t *testing.T) {
	m := mockRegistries(t)
	r := NewRegistry(time.Second, DefaultSources(m.Client())...)

	r.Refresh(context.Background(), "somechannel", "0")

	if n := m.Hits("7tv.io/v3/users/twitch/0"); n != 0 {
		t.Errorf("7tv channel fetched %d times with unresolved id", n)
	}
	if n := m.Hits("api.betterttv.net/3/cached/users/twitch/0"); n != 0 {
		t.Errorf("bttv channel fetched %d times with unresolved id", n)
	}
	if _, ok := r.Lookup("ChannelFFZ"); !ok {
		t.Error("FFZ channel emotes are looked up by name and should still load")
	}
	if _, ok := r.Lookup("Chan7TV"); ok {
		t.Error("7TV channel emote present without a channel id")
	}
}

func TestRefreshSurvivesFailingSource(t *testing.T) {
	m := mockRegistries(t)
	m.Status("api.betterttv.net/3/cached/emotes/global", http.StatusInternalServerError)
	m.Handle("7tv.io/v3/emote-sets/global", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"emotes": [`)) // truncated
	})
	r := NewRegistry(time.Second, DefaultSources(m.Client())...)

	r.Refresh(context.Background(), "somechannel", "42")

	if _, ok := r.Lookup(":tf:"); ok {
		t.Error("failed BTTV global source contributed emotes")
	}
	if _, ok := r.Lookup("RainTime"); ok {
		t.Error("malformed 7TV global payload contributed emotes")
	}
	for _, code := range []string{"CatBag", "ChanBTTV", "Chan7TV"} {
		if _, ok := r.Lookup(code); !ok {
			t.Errorf("healthy source emote %q missing", code)
		}
	}
}

// stubSource lets tests control timing and failures.
type stubSource struct {
	name    string
	global  []Match
	channel []Match
	block   bool
	err     error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchGlobal(ctx context.Context) ([]Match, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.global, s.err
}

func (s *stubSource) FetchChannel(ctx context.Context, _, _ string) ([]Match, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.channel, s.err
}

func TestRefreshBoundsSlowSources(t *testing.T) {
	fast := &stubSource{name: "fast", global: []Match{{Code: "Fast", Emote: Emote{ID: "f"}}}}
	slow := &stubSource{name: "slow", block: true}
	broken := &stubSource{name: "broken", err: errors.New("boom"), global: []Match{{Code: "Broken"}}}
	r := NewRegistry(50*time.Millisecond, fast, slow, broken)

	done := make(chan struct{})
	go func() {
		r.Refresh(context.Background(), "c", "1")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh blocked on a slow source")
	}

	if _, ok := r.Lookup("Fast"); !ok {
		t.Error("fast source emote missing")
	}
	if _, ok := r.Lookup("Broken"); ok {
		t.Error("erroring source contributed emotes")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestLastWriterWinsBySourceOrder(t *testing.T) {
	a := &stubSource{name: "a",
		global:  []Match{{Code: "X", Emote: Emote{ID: "a-global"}}},
		channel: []Match{{Code: "X", Emote: Emote{ID: "a-channel"}}, {Code: "Y", Emote: Emote{ID: "a-channel"}}},
	}
	b := &stubSource{name: "b",
		global: []Match{{Code: "Y", Emote: Emote{ID: "b-global"}}},
	}
	r := NewRegistry(time.Second, a, b)
	r.Refresh(context.Background(), "c", "1")

	if e, _ := r.Lookup("X"); e.ID != "a-channel" {
		t.Errorf("X = %q, want a-channel", e.ID)
	}
	if e, _ := r.Lookup("Y"); e.ID != "b-global" {
		t.Errorf("Y = %q, want b-global", e.ID)
	}
}
