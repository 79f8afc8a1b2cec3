// Package ollama implements the local Ollama /api/chat wire shape. No
// authentication: the endpoint is assumed to be a loopback or private
// network address.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Gliksbot/gliksbot/collab"
	"github.com/Gliksbot/gliksbot/llmclient/wireerr"
)

const defaultChatPath = "/api/chat"

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  options   `json:"options,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message message `json:"message"`
	Done    bool    `json:"done"`
}

// Send issues a single non-streaming /api/chat call.
func Send(ctx context.Context, httpClient *http.Client, slot collab.SlotConfig, systemPrompt, userPrompt string) (collab.CallResult, error) {
	endpoint := strings.TrimRight(slot.Endpoint, "/") + defaultChatPath

	payload := chatRequest{
		Model: slot.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: false,
		Options: options{
			Temperature: slot.Params.Temperature,
			TopP:        slot.Params.TopP,
			NumCtx:      slot.Params.ContextLength,
			NumPredict:  slot.Params.MaxTokens,
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return collab.CallResult{}, fmt.Errorf("%w: encode request: %v", collab.ErrInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return collab.CallResult{}, fmt.Errorf("%w: build request: %v", collab.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return collab.CallResult{}, wireerr.Transport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return collab.CallResult{}, wireerr.Transport(ctx, err)
	}
	if err := wireerr.Status(resp.StatusCode, body); err != nil {
		return collab.CallResult{}, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return collab.CallResult{}, wireerr.Decode("unmarshal chat response", err)
	}
	// An empty message.Content is a legitimate well-formed response (a
	// slot that had nothing to say), not a decode error; only an
	// unmarshal failure above indicates a malformed payload.
	return collab.CallResult{
		Text: parsed.Message.Content,
		Meta: map[string]string{
			"provider": string(slot.Provider),
			"model":    slot.Model,
		},
	}, nil
}
