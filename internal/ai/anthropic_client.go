package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"
	// anthropicDefaultMaxTokens applies when the request leaves MaxTokens unset;
	// the Messages API requires the field.
	anthropicDefaultMaxTokens = 4000
)

// AnthropicClient calls the Anthropic Messages API directly.
type AnthropicClient struct {
	apiKey  string
	baseURL string
	tr      transport
}

func NewAnthropicClient(apiKey string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *AnthropicClient {
	return &AnthropicClient{
		apiKey:  apiKey,
		baseURL: anthropicBaseURL,
		tr:      newTransport(httpTimeout, newRetryPolicy(retryMax, baseDelay, maxDelay, 3, 500*time.Millisecond, 4*time.Second), ""),
	}
}

// NewAnthropicClientWithBaseURL is NewAnthropicClient against another endpoint.
func NewAnthropicClientWithBaseURL(apiKey string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration, baseURL string) *AnthropicClient {
	c := NewAnthropicClient(apiKey, httpTimeout, retryMax, baseDelay, maxDelay)
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate sends the conversation as one Messages call. System turns are
// lifted into the top-level system field.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is missing")
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	areq := anthropicRequest{Model: req.Model, MaxTokens: req.MaxTokens, Temperature: req.Temperature}
	if areq.MaxTokens <= 0 {
		areq.MaxTokens = anthropicDefaultMaxTokens
	}
	var system []string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		areq.Messages = append(areq.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	if len(areq.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	areq.System = strings.Join(system, "\n\n")

	payload, err := json.Marshal(areq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	h := http.Header{}
	h.Set("x-api-key", c.apiKey)
	h.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.tr.post(ctx, c.baseURL+"/v1/messages", h, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var aresp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&aresp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	var text strings.Builder
	for _, block := range aresp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &GenerateResponse{
		ID:      aresp.ID,
		Choices: []Choice{{Message: Message{Role: "assistant", Content: text.String()}}},
		Usage: Usage{
			PromptTokens:     aresp.Usage.InputTokens,
			CompletionTokens: aresp.Usage.OutputTokens,
			TotalTokens:      aresp.Usage.InputTokens + aresp.Usage.OutputTokens,
		},
		RequestID: extractRequestID(resp),
	}, nil
}
