package httpapi

import (
	"net/http"

	"github.com/Gliksbot/gliksbot/collab"
)

type skillTestResponse struct {
	Skill  collab.Skill         `json:"skill"`
	Result collab.SandboxResult `json:"result"`
}

// handleSkillTest implements POST /skills/{id}/test: re-invokes the
// Sandbox Runner against the stored skill source and records the
// outcome against the skill's LastTestOK field.
func (h *handlers) handleSkillTest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	skill, err := h.deps.Skills.Get(id)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	result, err := h.deps.Sandbox.Run(r.Context(), skill.Source, skill.EntryName, "hello world", collab.SandboxLimits{})
	if err != nil {
		writeMappedError(w, err)
		return
	}

	updated, err := h.deps.Skills.RecordTest(id, result.OK)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, skillTestResponse{Skill: updated, Result: result})
}

// handleSkillPromote implements POST /skills/{id}/promote: moves a
// draft skill to active only if its last recorded sandbox test passed.
func (h *handlers) handleSkillPromote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	skill, promoted, err := h.deps.Skills.Promote(id)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skill": skill, "promoted": promoted})
}

type skillExecuteRequest struct {
	Message string `json:"message"`
}

// handleSkillExecute implements POST /skills/{id}/execute: runs a
// previously promoted (or draft) skill against a caller-supplied
// message, without mutating its lifecycle state.
func (h *handlers) handleSkillExecute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	skill, err := h.deps.Skills.Get(id)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	var req skillExecuteRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	if req.Message == "" {
		writeInvalidRequest(w, "message is required")
		return
	}

	result, err := h.deps.Sandbox.Run(r.Context(), skill.Source, skill.EntryName, req.Message, collab.SandboxLimits{})
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
