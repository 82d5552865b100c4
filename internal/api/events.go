package api

import (
	"encoding/json"
	"net/http"
	"time"

	"aither-flow/internal/conductor"
)

// keepAliveInterval is how often an idle event stream writes a blank line so
// proxies do not close it.
const keepAliveInterval = 30 * time.Second

// handleEvents streams conductor events as NDJSON until the client goes away.
// With ?agent_id= only that agent's events are sent.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeBadRequest(w, "Streaming not supported")
		return
	}

	sub := s.bus.Subscribe(conductor.EventTopic)
	defer sub.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	var dropped uint64
	for {
		select {
		case <-r.Context().Done():
			return

		case <-ticker.C:
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()

		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			event, ok := msg.Payload.(conductor.Event)
			if !ok || (agentID != "" && event.Agent() != agentID) {
				continue
			}

			if n := sub.Dropped(); n > dropped {
				writeStreamLagging(w, agentID, n-dropped)
				dropped = n
			}

			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Warn("failed to encode event", "type", event.Type(), "error", err)
				continue
			}
			if _, err := w.Write(append(data, '\n')); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
