// Package openai implements the OpenAI-compatible chat-completions wire
// shape, shared by both the hosted OpenAI provider and any
// custom-openai-compatible endpoint.
package openai

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

const defaultChatPath = "/chat/completions"

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Send issues a single non-streaming chat completion call.
func Send(ctx context.Context, httpClient *http.Client, slot collab.SlotConfig, systemPrompt, userPrompt string) (collab.CallResult, error) {
	endpoint := strings.TrimRight(slot.Endpoint, "/") + defaultChatPath

	payload := chatRequest{
		Model: slot.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:      slot.Params.Temperature,
		TopP:             slot.Params.TopP,
		MaxTokens:        slot.Params.MaxTokens,
		FrequencyPenalty: slot.Params.FrequencyPenalty,
		PresencePenalty:  slot.Params.PresencePenalty,
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
	if !slot.LocalModel {
		apiKey := os.Getenv(slot.APIKeyEnv)
		if apiKey == "" {
			return collab.CallResult{}, fmt.Errorf("%w: env var %s is unset", collab.ErrConfig, slot.APIKeyEnv)
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

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
		return collab.CallResult{}, wireerr.Decode("unmarshal chat completion", err)
	}
	if len(parsed.Choices) == 0 {
		return collab.CallResult{}, wireerr.Decode("no choices in response", fmt.Errorf("empty choices array"))
	}

	return collab.CallResult{
		Text: parsed.Choices[0].Message.Content,
		Meta: map[string]string{
			"provider":     string(slot.Provider),
			"model":        slot.Model,
			"total_tokens": strconv.Itoa(parsed.Usage.TotalTokens),
		},
	}, nil
}
