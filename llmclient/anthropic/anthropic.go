// Package anthropic implements the Anthropic messages API wire shape:
// x-api-key auth header and a pinned anthropic-version header.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/Gliksbot/gliksbot/collab"
	"github.com/Gliksbot/gliksbot/llmclient/wireerr"
)

const (
	defaultMessagesPath = "/v1/messages"
	apiVersion           = "2023-06-01"
	defaultMaxTokens     = 1024
)

type messagesRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Send issues a single non-streaming Messages API call.
func Send(ctx context.Context, httpClient *http.Client, slot collab.SlotConfig, systemPrompt, userPrompt string) (collab.CallResult, error) {
	endpoint := strings.TrimRight(slot.Endpoint, "/") + defaultMessagesPath

	maxTokens := slot.Params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	payload := messagesRequest{
		Model:       slot.Model,
		System:      systemPrompt,
		Messages:    []message{{Role: "user", Content: userPrompt}},
		MaxTokens:   maxTokens,
		Temperature: slot.Params.Temperature,
		TopP:        slot.Params.TopP,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return collab.CallResult{}, fmt.Errorf("%w: encode request: %v", collab.ErrInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return collab.CallResult{}, fmt.Errorf("%w: build request: %v", collab.ErrInternal, err)
	}
	apiKey := os.Getenv(slot.APIKeyEnv)
	if apiKey == "" {
		return collab.CallResult{}, fmt.Errorf("%w: env var %s is unset", collab.ErrConfig, slot.APIKeyEnv)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", apiVersion)

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

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return collab.CallResult{}, wireerr.Decode("unmarshal messages response", err)
	}

	if len(parsed.Content) == 0 {
		return collab.CallResult{}, wireerr.Decode("no content blocks in response", fmt.Errorf("empty content array"))
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return collab.CallResult{
		Text: text.String(),
		Meta: map[string]string{
			"provider":      string(slot.Provider),
			"model":         slot.Model,
			"input_tokens":  strconv.Itoa(parsed.Usage.InputTokens),
			"output_tokens": strconv.Itoa(parsed.Usage.OutputTokens),
		},
	}, nil
}
