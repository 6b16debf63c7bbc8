package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ZanzyTHEbar/claimiq/internal/resilience"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

const explainerSystemPrompt = "You are an expert automotive damage assessor for an insurance company. " +
	"Given a vehicle damage image and detected damage data, provide a concise " +
	"professional assessment. Include: damage description, likely cause, " +
	"repair recommendation. Keep response under 150 words. Be factual and precise."

// ExplainRequest is what the explainer sees about a claim
type ExplainRequest struct {
	ImageRefs   []string
	Entries     []types.DamageZoneEntry
	Description string
}

type chatContent struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL map[string]string `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExplainerClient calls an OpenAI-compatible chat completions endpoint
type ExplainerClient struct {
	client *resilience.ProviderClient
	model  string
}

// NewExplainerClient wraps a provider client pointed at the chat endpoint
func NewExplainerClient(client *resilience.ProviderClient, model string) *ExplainerClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &ExplainerClient{client: client, model: model}
}

// Explain asks the model for a narrative; any failure yields an unavailable signal
func (e *ExplainerClient) Explain(ctx context.Context, req ExplainRequest) types.Signal[string] {
	content := []chatContent{{Type: "text", Text: explainPrompt(req)}}
	if len(req.ImageRefs) > 0 {
		content = append(content, chatContent{Type: "image_url", ImageURL: map[string]string{"url": req.ImageRefs[0]}})
	}

	body := chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: explainerSystemPrompt},
			{Role: "user", Content: content},
		},
		MaxTokens: 300,
	}

	var resp chatResponse
	if err := e.client.DoJSON(ctx, http.MethodPost, "/chat/completions", body, &resp); err != nil {
		return types.Unavailable[string](err.Error())
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return types.Unavailable[string]("empty completion")
	}
	return types.Available(strings.TrimSpace(resp.Choices[0].Message.Content))
}

func explainPrompt(req ExplainRequest) string {
	zones := make([]string, 0, len(req.Entries))
	for _, e := range req.Entries {
		zones = append(zones, fmt.Sprintf("%s (%s, %.0f%%)", e.Zone, e.Severity, e.Confidence*100))
	}

	var b strings.Builder
	b.WriteString("Analyze this vehicle damage image.\n\n")
	b.WriteString("Detected damage zones: " + strings.Join(zones, ", ") + "\n")
	if req.Description != "" {
		b.WriteString("User description: " + req.Description + "\n")
	}
	b.WriteString("\nProvide a professional damage assessment.")
	return b.String()
}
