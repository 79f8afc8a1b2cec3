package httpapi

import (
	"net/http"

	"github.com/Gliksbot/gliksbot/collab"
)

type configView struct {
	Slots       []collab.SlotConfig `json:"slots"`
	VoteWeights collab.VoteWeights  `json:"vote_weights,omitempty"`
}

// handleConfigGet implements GET /config: a snapshot of the live slot
// roster and vote weights.
func (h *handlers) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	slots, weights := h.deps.Engine.Roster()
	writeJSON(w, http.StatusOK, configView{Slots: slots, VoteWeights: weights})
}

// handleConfigPut implements PUT /config: validates the full roster and
// atomically swaps it. In-flight sessions keep reading the roster
// snapshot they started with (spec §5); only sessions started after
// this call observe the new roster.
func (h *handlers) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	var view configView
	if err := decodeJSONBody(r, &view); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if err := collab.ValidateRoster(view.Slots); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}

	h.deps.Engine.SetRoster(view.Slots, view.VoteWeights)
	writeJSON(w, http.StatusOK, view)
}

// handleModelConfig implements POST /models/{slot}/config: replaces one
// slot's configuration within the current roster, validating the
// resulting roster as a whole before swapping it in.
func (h *handlers) handleModelConfig(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("slot")
	if name == "" {
		writeInvalidRequest(w, "slot path parameter is required")
		return
	}

	var replacement collab.SlotConfig
	if err := decodeJSONBody(r, &replacement); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	replacement.Name = name

	slots, weights := h.deps.Engine.Roster()
	found := false
	for i := range slots {
		if slots[i].Name == name {
			slots[i] = replacement
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, errorCodeNotFound, "no slot named "+name)
		return
	}

	if err := collab.ValidateRoster(slots); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}

	h.deps.Engine.SetRoster(slots, weights)
	writeJSON(w, http.StatusOK, replacement)
}
