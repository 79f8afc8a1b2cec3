package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gliksbot/gliksbot/collab"
)

func seedSkill(t *testing.T, deps Deps, id string, state collab.SkillState, lastTestOK bool) {
	t.Helper()
	err := deps.Skills.Put(collab.Skill{
		ID:        id,
		Name:      "greeter",
		Source:    "package main\nfunc greet(message string) string { return message }",
		EntryName: "greet",
		State:     state,
		LastTestOK: lastTestOK,
	})
	if err != nil {
		t.Fatalf("seed skill: %v", err)
	}
}

func TestHandleSkillTestRecordsSandboxOutcome(t *testing.T) {
	deps, router := newTestRouter(t)
	seedSkill(t, deps, "sk1", collab.SkillStateDraft, false)

	req := httptest.NewRequest(http.MethodPost, "/skills/sk1/test", nil)
	req.SetPathValue("id", "sk1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp skillTestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Skill.LastTestOK {
		t.Fatal("got LastTestOK=false, want true after stub sandbox success")
	}
	if !resp.Result.OK {
		t.Fatal("got result.OK=false")
	}
}

func TestHandleSkillTestUnknownIDReturnsNotFound(t *testing.T) {
	_, router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/skills/ghost/test", nil)
	req.SetPathValue("id", "ghost")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status=%d want 404", rec.Code)
	}
}

func TestHandleSkillPromoteRequiresPassingTest(t *testing.T) {
	deps, router := newTestRouter(t)
	seedSkill(t, deps, "sk2", collab.SkillStateDraft, false)

	req := httptest.NewRequest(http.MethodPost, "/skills/sk2/promote", nil)
	req.SetPathValue("id", "sk2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if promoted, _ := resp["promoted"].(bool); promoted {
		t.Fatal("got promoted=true for a skill with no passing test")
	}

	seedSkill(t, deps, "sk2", collab.SkillStateDraft, true)
	req2 := httptest.NewRequest(http.MethodPost, "/skills/sk2/promote", nil)
	req2.SetPathValue("id", "sk2")
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)

	var resp2 map[string]any
	if err := json.Unmarshal(rec2.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if promoted, _ := resp2["promoted"].(bool); !promoted {
		t.Fatal("got promoted=false for a skill with a passing test")
	}
}

func TestHandleSkillExecuteRunsAgainstCallerMessage(t *testing.T) {
	deps, router := newTestRouter(t)
	seedSkill(t, deps, "sk3", collab.SkillStateActive, true)

	body, _ := json.Marshal(skillExecuteRequest{Message: "hi there"})
	req := httptest.NewRequest(http.MethodPost, "/skills/sk3/execute", bytes.NewReader(body))
	req.SetPathValue("id", "sk3")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status=%d body=%s", rec.Code, rec.Body.String())
	}
	var result collab.SandboxResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Stdout != "echo:hi there" {
		t.Fatalf("got stdout=%q", result.Stdout)
	}
}

func TestHandleSkillExecuteRejectsEmptyMessage(t *testing.T) {
	deps, router := newTestRouter(t)
	seedSkill(t, deps, "sk4", collab.SkillStateActive, true)

	body, _ := json.Marshal(skillExecuteRequest{Message: ""})
	req := httptest.NewRequest(http.MethodPost, "/skills/sk4/execute", bytes.NewReader(body))
	req.SetPathValue("id", "sk4")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status=%d want 400", rec.Code)
	}
}
