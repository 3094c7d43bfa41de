package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clipforge/clipforge/internal/log"
)

// heartbeatInterval keeps idle SSE connections from being reaped by
// intermediaries.
const heartbeatInterval = 15 * time.Second

// handleEvents streams lifecycle events to the caller over server-sent
// events. Each connection subscribes to exactly one recipient channel:
// the authenticated principal's own. Events published before the
// connection existed are never replayed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := s.broadcaster.Subscribe(principal.ID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Initial comment confirms the subscription to the client.
	fmt.Fprintf(w, ": subscribed %s\n\n", principal.ID)
	flusher.Flush()

	logger := log.FromContext(r.Context())
	logger.Info().Str("recipient", principal.ID).Msg("event subscriber connected")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Info().Str("recipient", principal.ID).Msg("event subscriber disconnected")
			return

		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case evt := <-sub.C():
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Name, data)
			flusher.Flush()
		}
	}
}
