package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/chatfeed/telemetry"
)

const adminRefreshTimeout = 30 * time.Second

// HandleAdminRefresh re-fetches the emotes and native badges of a channel,
// the same work a moderator triggers from chat. The refresh runs in the
// background; the response only acknowledges it.
func (h *Handlers) HandleAdminRefresh(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	log := telemetry.LoggerWithCorr(r.Context())
	corr := telemetry.GetCorrelation(r.Context())
	go func() {
		ctx, cancel := context.WithTimeout(telemetry.WithCorrelation(h.ctx, corr), adminRefreshTimeout)
		defer cancel()
		c.Refresh(ctx)
		log.Info("admin refresh finished", slog.String("channel", c.Channel()), slog.String("component", "http_admin"))
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing", "channel": c.Channel()})
}
