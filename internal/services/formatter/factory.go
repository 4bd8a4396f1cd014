package formatter

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/common"
)

// NewProvider instantiates the configured formatting provider. Called once at
// startup; a generative selection without a credential fails fast here rather
// than on the first job.
func NewProvider(ctx context.Context, cfg *common.FormatterConfig, logger arbor.ILogger) (Provider, error) {
	timeout, retryDelay, err := parseTimings(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "", DummyName:
		logger.Info().Msg("Formatter provider: deterministic rewriter")
		return NewDummyProvider(), nil

	case "claude":
		backend, err := newClaudeBackend(&cfg.Claude)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize claude provider: %w", err)
		}
		logger.Info().
			Str("model", backend.model()).
			Msg("Formatter provider: claude")
		return NewGenerativeProvider(backend, timeout, retryDelay, logger), nil

	case "gemini":
		backend, err := newGeminiBackend(ctx, &cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini provider: %w", err)
		}
		logger.Info().
			Str("model", backend.model()).
			Msg("Formatter provider: gemini")
		return NewGenerativeProvider(backend, timeout, retryDelay, logger), nil

	default:
		return nil, fmt.Errorf("unknown formatter provider %q (expected dummy, claude, or gemini)", cfg.Provider)
	}
}

func parseTimings(cfg *common.FormatterConfig) (timeout, retryDelay time.Duration, err error) {
	if cfg.Timeout != "" {
		if timeout, err = time.ParseDuration(cfg.Timeout); err != nil {
			return 0, 0, fmt.Errorf("invalid formatter timeout %q: %w", cfg.Timeout, err)
		}
	}
	if cfg.RetryDelay != "" {
		if retryDelay, err = time.ParseDuration(cfg.RetryDelay); err != nil {
			return 0, 0, fmt.Errorf("invalid formatter retry_delay %q: %w", cfg.RetryDelay, err)
		}
	}
	return timeout, retryDelay, nil
}
