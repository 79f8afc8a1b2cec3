package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
)

type collaborationHeadResponse struct {
	Items []collab.SlotEvent `json:"items"`
}

// handleCollaborationHead implements GET /collaboration/head?slot=&n=,
// returning the last n events for slot newest-first.
func (h *handlers) handleCollaborationHead(w http.ResponseWriter, r *http.Request) {
	slot := r.URL.Query().Get("slot")
	if slot == "" {
		writeInvalidRequest(w, "slot query parameter is required")
		return
	}

	n := 10
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeInvalidRequest(w, "n must be a positive integer")
			return
		}
		n = parsed
	}

	items, err := h.deps.Store.Head(r.Context(), slot, n)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collaborationHeadResponse{Items: items})
}

type collaborationInputRequest struct {
	Message string `json:"message"`
}

// handleCollaborationInput implements POST /collaboration/input/{slot}:
// it injects the message as an out-of-band `user.input` event into the
// named slot's log. It is not a new Collaboration session and the Engine
// does not dispatch on it. The event is only recorded (and mirrored to
// the Event Bus): the Slot Runtime builds its prompts from the Engine's
// arguments alone and does not read it into the slot's next prompt.
func (h *handlers) handleCollaborationInput(w http.ResponseWriter, r *http.Request) {
	slot := r.PathValue("slot")
	if slot == "" {
		writeInvalidRequest(w, "slot path parameter is required")
		return
	}

	var req collaborationInputRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if req.Message == "" {
		writeInvalidRequest(w, "message is required")
		return
	}

	event := collab.SlotEvent{
		Ts:      time.Now().Unix(),
		Slot:    slot,
		Session: collab.OutOfBandSession,
		Phase:   collab.PhaseMeta,
		Event:   collab.EventUserInput,
		Text:    req.Message,
	}
	if err := h.deps.Store.Append(r.Context(), slot, event); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}
