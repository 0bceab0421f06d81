// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/chatfeed/jsoncodec"
)

// defaultHeartbeat is how often an idle event stream receives a comment line.
const defaultHeartbeat = 15 * time.Second

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx       context.Context
	channels  map[string]Channel
	order     []string
	feed      Subscriber
	heartbeat time.Duration
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, channels []Channel, feed Subscriber) *Handlers {
	h := &Handlers{
		ctx:       ctx,
		channels:  make(map[string]Channel, len(channels)),
		feed:      feed,
		heartbeat: defaultHeartbeat,
	}
	for _, c := range channels {
		name := c.Channel()
		if _, dup := h.channels[name]; dup {
			continue
		}
		h.channels[name] = c
		h.order = append(h.order, name)
	}
	return h
}

// lookup resolves the {channel} path value, writing 404 when it is not served.
func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (Channel, bool) {
	name := strings.ToLower(strings.TrimPrefix(r.PathValue("channel"), "#"))
	c, ok := h.channels[name]
	if !ok {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return nil, false
	}
	return c, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsoncodec.Encode(w, v); err != nil {
		slog.Warn("failed to encode response", slog.Any("err", err))
	}
}
