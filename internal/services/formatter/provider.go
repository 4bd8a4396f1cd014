package formatter

import (
	"context"

	"github.com/telsalud/notefmt/internal/models"
)

// Variant is one rewritten rendering of a note
type Variant struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
}

// Request carries the note content and the resolved formatting preferences
type Request struct {
	Title         string
	Body          string
	Profile       string
	Options       models.FormatOptions
	PromptVersion int
}

// Result is the tagged output of one provider invocation. Provider and Model
// record what actually produced the variants so the worker never has to
// inspect the provider type after the fact.
type Result struct {
	Variants map[models.ProposalVariant]Variant
	Provider string
	Model    string
}

// Provider produces the three rewrite variants for a note. Implementations
// must be stateless and safe for concurrent use from multiple workers.
type Provider interface {
	// Format produces all three variants in one invocation
	Format(ctx context.Context, req Request) (*Result, error)

	// Name identifies the provider ("dummy", "claude", "gemini")
	Name() string
}
