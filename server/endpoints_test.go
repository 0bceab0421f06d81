package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/chatfeed/chat"
	"github.com/onnwee/chatfeed/jsoncodec"
	"github.com/onnwee/chatfeed/telemetry"
)

func TestMessagesEndpoint(t *testing.T) {
	alpha := newFakeChannel("alpha", nil)
	for _, id := range []string{"1", "2", "3"} {
		alpha.store.Append(chat.Message{ID: id, Username: "u", Text: "msg " + id})
	}
	h := newTestMux(t, nil, alpha)

	tests := []struct {
		path    string
		status  int
		wantIDs string
	}{
		{"/channels/alpha/messages", http.StatusOK, "1,2,3"},
		{"/channels/ALPHA/messages?limit=2", http.StatusOK, "2,3"},
		{"/channels/alpha/messages?limit=50", http.StatusOK, "1,2,3"},
		{"/channels/alpha/messages?limit=bogus", http.StatusOK, "1,2,3"},
		{"/channels/nope/messages", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			var msgs []chat.Message
			if err := jsoncodec.Unmarshal(rr.Body.Bytes(), &msgs); err != nil {
				t.Fatalf("decode: %v", err)
			}
			var ids []string
			for _, m := range msgs {
				ids = append(ids, m.ID)
			}
			if got := strings.Join(ids, ","); got != tt.wantIDs {
				t.Errorf("ids = %s, want %s", got, tt.wantIDs)
			}
		})
	}
}

func TestMessagesEndpointRejectsWrongMethod(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestMux(t, nil, newFakeChannel("alpha", nil)).ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/channels/alpha/messages", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestChannelsEndpoint(t *testing.T) {
	alpha := newFakeChannel("alpha", nil)
	alpha.store.Append(chat.Message{ID: "1"})
	beta := newFakeChannel("beta", nil)
	beta.state.Store(int32(chat.StateHandshaking))

	rr := httptest.NewRecorder()
	newTestMux(t, nil, alpha, beta, alpha).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/channels", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got []channelStatus
	if err := jsoncodec.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := []channelStatus{{"alpha", "joined", 1}, {"beta", "handshaking", 0}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("channels = %+v, want %+v", got, want)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	telemetry.Init()
	telemetry.IncLines()

	rr := httptest.NewRecorder()
	newTestMux(t, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "chatfeed_lines_total") {
		t.Error("metrics output missing chatfeed_lines_total")
	}
}

func TestAdminRefresh(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "s3cret")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_IP", "2")
	alpha := newFakeChannel("alpha", nil)
	h := newTestMux(t, nil, alpha)

	post := func(path, token string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "10.0.0.1:5555"
		if token != "" {
			req.Header.Set("X-Admin-Token", token)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := post("/admin/channels/alpha/refresh", ""); code != http.StatusUnauthorized {
		t.Errorf("unauthenticated = %d, want 401", code)
	}
	if code := post("/admin/channels/alpha/refresh", "s3cret"); code != http.StatusAccepted {
		t.Fatalf("authenticated = %d, want 202", code)
	}
	select {
	case <-alpha.refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("refresh not triggered")
	}
	if code := post("/admin/channels/nope/refresh", "s3cret"); code != http.StatusNotFound {
		t.Errorf("unknown channel = %d, want 404", code)
	}
	if code := post("/admin/channels/alpha/refresh", "s3cret"); code != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("CORS_PERMISSIVE", "")
	req := httptest.NewRequest(http.MethodOptions, "/channels/alpha/events", nil)
	req.Header.Set("Origin", "https://overlay.example.com")
	rr := httptest.NewRecorder()
	newTestMux(t, nil, newFakeChannel("alpha", nil)).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestParseIntQuery(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 7},
		{"limit=25", 25},
		{"limit=-3", -3},
		{"limit=abc", 7},
		{"other=1", 7},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
		if got := parseIntQuery(req, "limit", 7); got != tt.want {
			t.Errorf("parseIntQuery(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
