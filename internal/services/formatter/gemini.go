package formatter

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/telsalud/notefmt/internal/common"
)

// geminiBackend issues completions against the Gemini API with a JSON
// response MIME type so the structured output stays parseable.
type geminiBackend struct {
	client    *genai.Client
	modelName string
}

func newGeminiBackend(ctx context.Context, cfg *common.GeminiConfig) (*geminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or formatter.gemini.api_key)")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiBackend{
		client:    client,
		modelName: modelName,
	}, nil
}

func (b *geminiBackend) name() string {
	return "gemini"
}

func (b *geminiBackend) model() string {
	return b.modelName
}

func (b *geminiBackend) complete(ctx context.Context, system, user string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(0.2)),
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}

	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(user)},
		},
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.modelName, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini response contained no text content")
	}

	return text, nil
}
