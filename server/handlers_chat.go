package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/chatfeed/chat"
	"github.com/onnwee/chatfeed/jsoncodec"
	"github.com/onnwee/chatfeed/telemetry"
)

type channelStatus struct {
	Channel  string `json:"channel"`
	State    string `json:"state"`
	Messages int    `json:"messages"`
}

// HandleChannels lists the served channels with their connection state.
func (h *Handlers) HandleChannels(w http.ResponseWriter, r *http.Request) {
	out := make([]channelStatus, 0, len(h.order))
	for _, name := range h.order {
		c := h.channels[name]
		out = append(out, channelStatus{Channel: name, State: c.State().String(), Messages: c.Store().Len()})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleMessages returns the retained messages of a channel, oldest first.
// The optional limit parameter keeps only the newest messages.
func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	msgs := c.Store().Snapshot()
	if limit := parseIntQuery(r, "limit", 0); limit > 0 && limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}
	writeJSON(w, http.StatusOK, msgs)
}

// snapshotEvent opens every event stream.
type snapshotEvent struct {
	Channel  string         `json:"channel"`
	Seq      uint64         `json:"seq"`
	Messages []chat.Message `json:"messages"`
}

// HandleEvents streams a channel over Server-Sent Events: a "snapshot" event
// with the retained messages, then one event per store mutation named after
// its kind. Mutations already reflected in the snapshot are skipped by seq.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "http_sse"), slog.String("channel", c.Channel()))

	// subscribe before the snapshot so no mutation falls between the two
	events, err := h.feed.Subscribe(ctx, c.Channel())
	if err != nil {
		http.Error(w, "event feed unavailable", http.StatusServiceUnavailable)
		return
	}
	msgs, seq := c.Store().SnapshotSeq()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "snapshot", seq, snapshotEvent{Channel: c.Channel(), Seq: seq, Messages: msgs}); err != nil {
		log.Warn("failed to write SSE snapshot", slog.Any("err", err))
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Seq <= seq {
				continue
			}
			if err := writeSSE(w, string(ev.Kind), ev.Seq, ev); err != nil {
				log.Warn("failed to write SSE event", slog.Any("err", err))
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, id uint64, v any) error {
	data, err := jsoncodec.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
