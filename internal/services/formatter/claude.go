package formatter

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/telsalud/notefmt/internal/common"
)

// claudeBackend issues completions against the Anthropic API
type claudeBackend struct {
	client    anthropic.Client
	modelName string
	maxTokens int
}

func newClaudeBackend(cfg *common.ClaudeConfig) (*claudeBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or formatter.claude.api_key)")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	return &claudeBackend{
		client:    client,
		modelName: modelName,
		maxTokens: maxTokens,
	}, nil
}

func (b *claudeBackend) name() string {
	return "claude"
}

func (b *claudeBackend) model() string {
	return b.modelName
}

func (b *claudeBackend) complete(ctx context.Context, system, user string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.modelName),
		MaxTokens: int64(b.maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}

	resp, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude request failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("claude response contained no text content")
	}

	return text, nil
}
