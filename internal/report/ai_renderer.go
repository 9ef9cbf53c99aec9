package report

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/KaramelBytes/insightloom-cli/internal/ai"
)

// AIRenderer asks a text-generation runtime to write the report.
type AIRenderer struct {
	Runtime     ai.Runtime
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	// OnDelta, when set and the runtime can stream, receives partial output.
	OnDelta func(string)
}

// NewAIRenderer wraps rt; model falls back to the provider default.
func NewAIRenderer(rt ai.Runtime, provider, model string) *AIRenderer {
	if model == "" {
		model = ai.DefaultModel(provider)
	}
	return &AIRenderer{Runtime: rt, Provider: provider, Model: model, MaxTokens: 4000, Temperature: 0.3}
}

// Request builds the generation request for p.
func (r *AIRenderer) Request(p Payload) ai.GenerateRequest {
	prompt, _ := BuildPrompt(p)
	return ai.GenerateRequest{
		Model: r.Model,
		Messages: []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
	}
}

func (r *AIRenderer) Render(ctx context.Context, p Payload) (string, error) {
	if r.Runtime == nil {
		return "", &ExternalServiceError{Provider: r.Provider, Err: errors.New("no runtime configured")}
	}
	req := r.Request(p)
	log := zerolog.Ctx(ctx).With().Str("provider", r.Provider).Str("model", r.Model).Logger()

	if sr, ok := r.Runtime.(ai.StreamRuntime); ok && r.OnDelta != nil {
		var sb strings.Builder
		err := sr.GenerateStream(ctx, req, func(delta string) {
			sb.WriteString(delta)
			r.OnDelta(delta)
		})
		if err != nil {
			return "", &ExternalServiceError{Provider: r.Provider, Err: err}
		}
		return nonEmpty(r.Provider, sb.String())
	}

	resp, err := r.Runtime.Generate(ctx, req)
	if err != nil {
		return "", &ExternalServiceError{Provider: r.Provider, Err: err}
	}
	log.Debug().
		Str("request_id", resp.RequestID).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("report generated")
	return nonEmpty(r.Provider, resp.Text())
}

func nonEmpty(provider, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &ExternalServiceError{Provider: provider, Err: errors.New("empty response")}
	}
	return text, nil
}
