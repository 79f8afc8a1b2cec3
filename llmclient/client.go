// Package llmclient is the provider-agnostic LLM Client: it dispatches a
// single-shot chat call to the wire shape matching a slot's configured
// provider, retrying transient failures with exponential backoff.
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gliksbot/gliksbot/collab"
	"github.com/Gliksbot/gliksbot/llmclient/anthropic"
	"github.com/Gliksbot/gliksbot/llmclient/ollama"
	"github.com/Gliksbot/gliksbot/llmclient/openai"
)

// defaultCallTimeout applies only when the incoming ctx carries no
// deadline of its own; the Engine always supplies a call-scoped
// deadline (120s by default), so this fallback only matters for direct
// callers that pass a bare context.Background().
const defaultCallTimeout = 120 * time.Second

type sender func(ctx context.Context, httpClient *http.Client, slot collab.SlotConfig, systemPrompt, userPrompt string) (collab.CallResult, error)

var senders = map[collab.Provider]sender{
	collab.ProviderOpenAICompatible:       openai.Send,
	collab.ProviderCustomOpenAICompatible: openai.Send,
	collab.ProviderAnthropic:              anthropic.Send,
	collab.ProviderOllama:                 ollama.Send,
}

// Client implements collab.LLMClient over real HTTP wire adapters.
type Client struct {
	httpClient *http.Client
	retry      RetryConfig
}

var _ collab.LLMClient = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client (e.g. in tests, to
// point at an httptest.Server with a short timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) { client.httpClient = c }
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(client *Client) { client.retry = cfg }
}

// New constructs a Client with sane defaults: no client-wide HTTP
// timeout (the per-call ctx deadline is authoritative, see Call) and
// the call protocol's standard retry policy.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		retry:      DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call dispatches to the wire adapter matching slot.Provider, retrying
// transient failures per the configured RetryConfig. Meta on the returned
// CallResult always carries retry_count and duration_ms.
func (c *Client) Call(ctx context.Context, slot collab.SlotConfig, systemPrompt, userPrompt string) (collab.CallResult, error) {
	if ctx == nil {
		return collab.CallResult{}, collab.ErrContextNil
	}
	send, ok := senders[slot.Provider]
	if !ok {
		return collab.CallResult{}, fmt.Errorf("%w: %s", collab.ErrUnknownProvider, slot.Provider)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
		defer cancel()
	}

	start := time.Now()
	result, attempts, err := withRetry(ctx, c.retry, func(int) (collab.CallResult, error) {
		return send(ctx, c.httpClient, slot, systemPrompt, userPrompt)
	})
	duration := time.Since(start)

	if err != nil {
		return collab.CallResult{}, collab.CallError(collab.ErrorClass(err), slot.Name, "provider call failed", err)
	}

	if result.Meta == nil {
		result.Meta = make(map[string]string, 2)
	}
	result.Meta["retry_count"] = fmt.Sprintf("%d", attempts)
	result.Meta["duration_ms"] = fmt.Sprintf("%d", duration.Milliseconds())
	return result, nil
}
