package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiCompleter runs completions against Gemini, with one model per tier.
type GeminiCompleter struct {
	client      *genai.Client
	models      map[Tier]string
	temperature float32
}

func NewGemini(ctx context.Context, apiKey, lowModel, highModel string) (*GeminiCompleter, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GeminiCompleter{
		client:      client,
		models:      map[Tier]string{TierLow: lowModel, TierHigh: highModel},
		temperature: 0.7,
	}, nil
}

func (g *GeminiCompleter) Close() error {
	return g.client.Close()
}

func (g *GeminiCompleter) Complete(ctx context.Context, tier Tier, system, user string) (string, error) {
	model := g.client.GenerativeModel(g.models[tier])
	model.SetTemperature(g.temperature)
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content returned from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response type from Gemini")
	}
	return sb.String(), nil
}
