package formatter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/telsalud/notefmt/internal/models"
)

// DummyName is the provider tag recorded when the deterministic rewriter
// produced the result, including fallback runs.
const DummyName = "dummy"

// DummyProvider is the deterministic rule-based rewriter. It extracts the six
// mandated sections by keyword scan and reorganizes them; content is never
// invented. Always available, no external dependency, no credentials.
type DummyProvider struct{}

// NewDummyProvider creates the deterministic provider
func NewDummyProvider() *DummyProvider {
	return &DummyProvider{}
}

// Name identifies the provider
func (p *DummyProvider) Name() string {
	return DummyName
}

// Format produces the three variants from the extracted sections. The variants
// differ by word cap and by whether action sections are bulleted.
func (p *DummyProvider) Format(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Body) == "" {
		return nil, NewError(CodeInvalidRequest, fmt.Errorf("note body is empty"))
	}

	sections := extractSections(req.Body)

	variants := make(map[models.ProposalVariant]Variant, len(models.Variants))
	for _, variant := range models.Variants {
		bullets := req.Options.Bullets && variant != models.VariantBrief
		body := renderSections(sections, bullets)
		variants[variant] = NormalizeVariant(Variant{
			Title: variantTitle(req.Title, variant),
			Body:  body,
		}, VariantWordCaps[variant])
	}

	return &Result{
		Variants: variants,
		Provider: DummyName,
		Model:    "",
	}, nil
}

// extractSections partitions the source text by section label occurrences.
// Unlabeled leading text is attributed to Motivo.
func extractSections(text string) map[string]string {
	type span struct {
		label        string
		start        int
		contentStart int
	}

	lower := strings.ToLower(text)
	var spans []span

	for _, label := range SectionLabels {
		best := -1
		bestContent := -1
		for _, alias := range sectionAliases[label] {
			idx := strings.Index(lower, alias+":")
			if idx < 0 {
				continue
			}
			if best < 0 || idx < best {
				best = idx
				bestContent = idx + len(alias) + 1
			}
		}
		if best >= 0 {
			spans = append(spans, span{label: label, start: best, contentStart: bestContent})
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	sections := make(map[string]string)
	for i, sp := range spans {
		end := len(text)
		if i+1 < len(spans) {
			end = spans[i+1].start
		}
		sections[sp.label] = strings.TrimSpace(text[sp.contentStart:end])
	}

	// Leading text before the first label carries the reason for the visit
	if len(spans) > 0 && spans[0].start > 0 {
		leading := strings.TrimSpace(text[:spans[0].start])
		if leading != "" {
			if existing, ok := sections["Motivo"]; ok && existing != "" {
				sections["Motivo"] = leading + " " + existing
			} else {
				sections["Motivo"] = leading
			}
		}
	}
	if len(spans) == 0 {
		sections["Motivo"] = strings.TrimSpace(text)
	}

	return sections
}

// renderSections builds a variant body from the extracted sections in the
// mandated order. Sections without content are omitted here; normalization
// appends the "not applicable" markers.
func renderSections(sections map[string]string, bullets bool) string {
	var parts []string
	for _, label := range SectionLabels {
		content, ok := sections[label]
		if !ok || content == "" {
			continue
		}
		if bullets && actionSections[label] {
			parts = append(parts, label+":\n"+bulletize(content))
		} else {
			parts = append(parts, label+": "+content)
		}
	}
	return strings.Join(parts, "\n")
}

// bulletize splits content into sentence items rendered as a list
func bulletize(content string) string {
	var items []string
	for _, sentence := range strings.Split(content, ".") {
		sentence = strings.TrimSpace(sentence)
		if sentence != "" {
			items = append(items, "- "+sentence)
		}
	}
	if len(items) == 0 {
		return content
	}
	return strings.Join(items, "\n")
}

func variantTitle(noteTitle string, variant models.ProposalVariant) string {
	if noteTitle != "" {
		return noteTitle
	}
	switch variant {
	case models.VariantBrief:
		return "Propuesta breve"
	case models.VariantStandard:
		return "Propuesta estándar"
	default:
		return "Propuesta detallada"
	}
}
