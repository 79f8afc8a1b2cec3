package httpapi

import (
	"errors"
	"net/http"

	"github.com/Gliksbot/gliksbot/collab"
)

type chatRequest struct {
	Message    string `json:"message"`
	CampaignID string `json:"campaign_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

type chatExecutedResponse struct {
	OK        bool   `json:"ok"`
	SkillName string `json:"skill_name,omitempty"`
	Promoted  bool   `json:"promoted,omitempty"`
}

type chatResponse struct {
	SessionID            collab.SessionID      `json:"session_id"`
	Reply                string                `json:"reply"`
	Executed             *chatExecutedResponse `json:"executed,omitempty"`
	CollaborationSession collab.SessionID      `json:"collaboration_session"`
}

// handleChat implements POST /chat (spec §6): blocks until the session
// reaches Done, Failed, or the overall session deadline. The optional
// client-supplied `session_id` is advisory only — this module has no
// multi-turn continuation concept, so every call starts a fresh
// Collaboration session and the response's `session_id` and
// `collaboration_session` both carry the Engine-generated id.
func (h *handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if req.Message == "" {
		writeInvalidRequest(w, "message is required")
		return
	}

	handle, sessionCtx, err := h.deps.Registry.Create(r.Context(), req.CampaignID, r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}

	result := h.deps.Engine.RunSession(sessionCtx, handle, req.Message)
	h.deps.Registry.MarkFinished(handle.ID)

	if result.Status != collab.FinalStatusDone {
		status, class := http.StatusInternalServerError, errorCodeRuntime
		if errors.Is(result.Err, collab.ErrTimeout) {
			status, class = http.StatusGatewayTimeout, errorCodeTimeout
		}
		message := "session failed"
		if result.Err != nil {
			message = result.Err.Error()
		}
		writeErrorWithSession(w, status, class, message, handle.ID)
		return
	}

	resp := chatResponse{
		SessionID:            handle.ID,
		Reply:                result.Answer,
		CollaborationSession: handle.ID,
	}
	if result.Executed != nil {
		resp.Executed = &chatExecutedResponse{
			OK:        result.Executed.OK,
			SkillName: result.Executed.SkillName,
			Promoted:  result.Executed.Promoted,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
