package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
)

func baseSlot(provider collab.Provider, endpoint string) collab.SlotConfig {
	return collab.SlotConfig{
		Name:      "dexter",
		Enabled:   true,
		Provider:  provider,
		Endpoint:  endpoint,
		Model:     "test-model",
		APIKeyEnv: "TEST_PROVIDER_API_KEY",
		Params:    collab.Params{Temperature: 0.7, MaxTokens: 256},
	}
}

func TestCallOpenAICompatibleSuccess(t *testing.T) {
	t.Setenv("TEST_PROVIDER_API_KEY", "sk-test")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("missing bearer auth header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "hello from openai"}},
			},
		})
	}))
	defer server.Close()

	client := New(WithHTTPClient(server.Client()))
	result, err := client.Call(context.Background(), baseSlot(collab.ProviderOpenAICompatible, server.URL), "sys", "hi")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result.Text != "hello from openai" {
		t.Fatalf("got text=%q", result.Text)
	}
}

func TestCallAnthropicSuccess(t *testing.T) {
	t.Setenv("TEST_PROVIDER_API_KEY", "anthropic-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "anthropic-key" {
			t.Errorf("missing x-api-key header, got %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("missing anthropic-version header")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": "hello from claude"}},
		})
	}))
	defer server.Close()

	client := New(WithHTTPClient(server.Client()))
	result, err := client.Call(context.Background(), baseSlot(collab.ProviderAnthropic, server.URL), "sys", "hi")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result.Text != "hello from claude" {
		t.Fatalf("got text=%q", result.Text)
	}
}

func TestCallOllamaSuccessNoAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("ollama should not send Authorization, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": "hello from ollama"},
			"done":    true,
		})
	}))
	defer server.Close()

	slot := baseSlot(collab.ProviderOllama, server.URL)
	slot.LocalModel = true
	client := New(WithHTTPClient(server.Client()))
	result, err := client.Call(context.Background(), slot, "sys", "hi")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result.Text != "hello from ollama" {
		t.Fatalf("got text=%q", result.Text)
	}
}

func TestCallRetriesOn5xxThenSucceeds(t *testing.T) {
	t.Setenv("TEST_PROVIDER_API_KEY", "sk-test")
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"overloaded"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "ok eventually"}},
			},
		})
	}))
	defer server.Close()

	client := New(
		WithHTTPClient(server.Client()),
		WithRetryConfig(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxJitter: time.Millisecond}),
	)
	result, err := client.Call(context.Background(), baseSlot(collab.ProviderOpenAICompatible, server.URL), "sys", "hi")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result.Text != "ok eventually" {
		t.Fatalf("got text=%q", result.Text)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("got %d attempts, want 3", got)
	}
}

func TestCallDoesNotRetryOn4xx(t *testing.T) {
	t.Setenv("TEST_PROVIDER_API_KEY", "sk-test")
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	client := New(
		WithHTTPClient(server.Client()),
		WithRetryConfig(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxJitter: time.Millisecond}),
	)
	_, err := client.Call(context.Background(), baseSlot(collab.ProviderOpenAICompatible, server.URL), "sys", "hi")
	if err == nil {
		t.Fatal("expected error for 4xx response")
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("got %d attempts, want exactly 1 (4xx must not retry)", got)
	}
}

func TestCallMissingAPIKeyEnvIsConfigError(t *testing.T) {
	_ = os.Unsetenv("UNSET_PROVIDER_KEY")
	slot := baseSlot(collab.ProviderOpenAICompatible, "http://127.0.0.1:0")
	slot.APIKeyEnv = "UNSET_PROVIDER_KEY"

	client := New()
	_, err := client.Call(context.Background(), slot, "sys", "hi")
	if !errors.Is(err, collab.ErrConfig) {
		t.Fatalf("expected config error for missing api key env var, got %v", err)
	}
}

func TestCallUnknownProvider(t *testing.T) {
	client := New()
	slot := baseSlot(collab.Provider("not-a-real-provider"), "http://127.0.0.1:0")
	_, err := client.Call(context.Background(), slot, "sys", "hi")
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestCallOllamaEmptyContentIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": ""},
			"done":    true,
		})
	}))
	defer server.Close()

	slot := baseSlot(collab.ProviderOllama, server.URL)
	slot.LocalModel = true
	client := New(WithHTTPClient(server.Client()))
	result, err := client.Call(context.Background(), slot, "sys", "hi")
	if err != nil {
		t.Fatalf("call: %v, want a successful empty-text result per spec §8", err)
	}
	if result.Text != "" {
		t.Fatalf("got text=%q, want empty", result.Text)
	}
}

func TestCallAnthropicEmptyTextBlockIsNotAnError(t *testing.T) {
	t.Setenv("TEST_PROVIDER_API_KEY", "anthropic-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{{"type": "text", "text": ""}},
		})
	}))
	defer server.Close()

	client := New(WithHTTPClient(server.Client()))
	result, err := client.Call(context.Background(), baseSlot(collab.ProviderAnthropic, server.URL), "sys", "hi")
	if err != nil {
		t.Fatalf("call: %v, want a successful empty-text result per spec §8", err)
	}
	if result.Text != "" {
		t.Fatalf("got text=%q, want empty", result.Text)
	}
}

func TestCallAnthropicEmptyContentArrayIsADecodeError(t *testing.T) {
	t.Setenv("TEST_PROVIDER_API_KEY", "anthropic-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"content": []map[string]any{}})
	}))
	defer server.Close()

	client := New(WithHTTPClient(server.Client()))
	_, err := client.Call(context.Background(), baseSlot(collab.ProviderAnthropic, server.URL), "sys", "hi")
	if err == nil {
		t.Fatal("expected a decode error for a structurally empty content array")
	}
}

func TestCallRespectsCancellation(t *testing.T) {
	t.Setenv("TEST_PROVIDER_API_KEY", "sk-test")
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := New(WithHTTPClient(server.Client()))
	_, err := client.Call(ctx, baseSlot(collab.ProviderOpenAICompatible, server.URL), "sys", "hi")
	if err == nil {
		t.Fatal("expected error when context deadline is exceeded")
	}
}
