package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

const eventsKeepAliveInterval = 15 * time.Second

// handleEvents implements GET /events (spec §6): a live subscription to
// the Event Bus, framed as Server-Sent Events. Unlike a Store-backed
// poll, a new subscriber never replays history (spec.md is explicit:
// "missed events for a new subscriber are not replayed") — every
// Collaboration Store Append already mirrors into the Bus, so this
// handler subscribes directly rather than polling TailSince.
func (h *handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errorCodeRuntime, "streaming is unsupported by response writer")
		return
	}

	slotFilter := r.URL.Query().Get("slot")
	sessionFilter := r.URL.Query().Get("session")

	sub := h.deps.Bus.Subscribe()
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	keepAlive := time.NewTicker(eventsKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if slotFilter != "" && event.Slot != slotFilter {
				continue
			}
			if sessionFilter != "" && string(event.Session) != sessionFilter {
				continue
			}
			if err := writeSSEEvent(w, flusher, event); err != nil {
				return
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: slot_event\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
