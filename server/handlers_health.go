package server

import (
	"net/http"

	"github.com/onnwee/chatfeed/chat"
)

// HandleHealthz responds to liveness probe requests. The process is alive as
// long as it can serve HTTP; chat connectivity is a readiness concern.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once every channel has joined its chat room.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if len(h.order) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  "no channels configured",
		})
		return
	}
	for _, name := range h.order {
		if st := h.channels[name].State(); st != chat.StateJoined {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": name,
				"error":        "channel " + st.String(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
