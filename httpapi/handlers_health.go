package httpapi

import "net/http"

type healthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}

// handleHealth implements GET /health. Unauthenticated by design: load
// balancers and orchestrators probing liveness should not need the
// shared bearer token.
func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{OK: true, Version: h.deps.Version})
}
