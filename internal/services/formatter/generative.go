package formatter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/models"
)

// generativeBackend is the minimal surface a text-generation API must expose.
// complete issues one request and returns the raw text response.
type generativeBackend interface {
	complete(ctx context.Context, system, user string) (string, error)
	model() string
	name() string
}

// GenerativeProvider wraps a generative backend with timeout handling, one
// bounded retry for transient failures, response parsing, and the shared
// normalization pass. All three variants come from a single call so they stay
// mutually consistent.
type GenerativeProvider struct {
	backend    generativeBackend
	timeout    time.Duration
	retryDelay time.Duration
	logger     arbor.ILogger
}

// NewGenerativeProvider wraps a backend with the orchestration policy
func NewGenerativeProvider(backend generativeBackend, timeout, retryDelay time.Duration, logger arbor.ILogger) *GenerativeProvider {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &GenerativeProvider{
		backend:    backend,
		timeout:    timeout,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Name identifies the configured backend
func (p *GenerativeProvider) Name() string {
	return p.backend.name()
}

// Format issues one structured-output request for all three variants, with a
// single retry after a short fixed delay when the failure is transient.
func (p *GenerativeProvider) Format(ctx context.Context, req Request) (*Result, error) {
	system := systemPrompt()
	user := userPrompt(req)

	raw, err := p.completeWithRetry(ctx, system, user)
	if err != nil {
		return nil, Classify(err)
	}

	variants, err := parseVariants(raw)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("provider", p.backend.name()).
			Msg("Generative response failed to parse")
		return nil, NewError(CodeServer, err)
	}

	result := &Result{
		Variants: variants,
		Provider: p.backend.name(),
		Model:    p.backend.model(),
	}
	NormalizeResult(result)

	return result, nil
}

func (p *GenerativeProvider) completeWithRetry(ctx context.Context, system, user string) (string, error) {
	raw, err := p.complete(ctx, system, user)
	if err == nil {
		return raw, nil
	}

	if !Classify(err).Code.Retryable() {
		return "", err
	}

	p.logger.Warn().
		Err(err).
		Str("provider", p.backend.name()).
		Dur("retry_delay", p.retryDelay).
		Msg("Transient generative failure, retrying once")

	select {
	case <-time.After(p.retryDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return p.complete(ctx, system, user)
}

func (p *GenerativeProvider) complete(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.backend.complete(callCtx, system, user)
}

// parseVariants decodes the JSON response into the three variants, tolerating
// markdown code fences around the payload.
func parseVariants(raw string) (map[models.ProposalVariant]Variant, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var decoded map[string]Variant
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, fmt.Errorf("invalid variants payload: %w", err)
	}

	variants := make(map[models.ProposalVariant]Variant, len(models.Variants))
	for _, variant := range models.Variants {
		v, ok := decoded[string(variant)]
		if !ok || strings.TrimSpace(v.Body) == "" {
			return nil, fmt.Errorf("variant %s missing from response", variant)
		}
		variants[variant] = v
	}

	return variants, nil
}
