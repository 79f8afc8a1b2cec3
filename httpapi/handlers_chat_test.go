package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleChatHappyPath(t *testing.T) {
	_, router := newTestRouter(t)

	body, _ := json.Marshal(chatRequest{Message: "Summarize the CAP theorem in one sentence."})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reply != "answer:dexter" {
		t.Fatalf("got reply=%q want dexter's refined text", resp.Reply)
	}
	if resp.SessionID == "" || resp.CollaborationSession != resp.SessionID {
		t.Fatalf("got session_id=%q collaboration_session=%q, want matching nonempty ids", resp.SessionID, resp.CollaborationSession)
	}
}

func TestHandleChatRejectsEmptyMessage(t *testing.T) {
	_, router := newTestRouter(t)

	body, _ := json.Marshal(chatRequest{Message: ""})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status=%d want 400", rec.Code)
	}
}
