package formatter

import (
	"strings"

	"github.com/telsalud/notefmt/internal/models"
)

// The six mandated clinical sections, in presentation order. Providers only
// reorganize content into these sections; nothing is ever fabricated beyond
// the explicit "not applicable" marker.
var SectionLabels = []string{"Motivo", "Síntomas", "Hallazgos", "Plan", "Indicaciones", "Alertas"}

// NotApplicable marks a section with no extractable content
const NotApplicable = "No aplica"

// actionSections get list-style formatting when bullets are enabled
var actionSections = map[string]bool{
	"Plan":         true,
	"Indicaciones": true,
}

// sectionAliases maps each label to the lowercase spellings accepted when
// scanning text, including unaccented variants clinicians commonly type.
var sectionAliases = map[string][]string{
	"Motivo":       {"motivo"},
	"Síntomas":     {"síntomas", "sintomas"},
	"Hallazgos":    {"hallazgos"},
	"Plan":         {"plan"},
	"Indicaciones": {"indicaciones"},
	"Alertas":      {"alertas"},
}

// VariantWordCaps bounds the body length of each variant
var VariantWordCaps = map[models.ProposalVariant]int{
	models.VariantBrief:    120,
	models.VariantStandard: 250,
	models.VariantDetailed: 450,
}

// NormalizeVariant applies the provider-agnostic post-processing pass:
// markdown headers stripped, body truncated to the word cap with an ellipsis,
// and missing mandated sections force-appended with the "not applicable"
// marker. Both providers run through this so output shapes are identical.
func NormalizeVariant(v Variant, wordCap int) Variant {
	body := StripMarkdown(v.Body)
	body = TruncateWords(body, wordCap)
	body = EnsureSections(body)

	return Variant{
		Title: strings.TrimSpace(v.Title),
		Body:  body,
	}
}

// NormalizeResult normalizes every variant in place using the per-variant caps
func NormalizeResult(res *Result) {
	for variant, v := range res.Variants {
		res.Variants[variant] = NormalizeVariant(v, VariantWordCaps[variant])
	}
}

// StripMarkdown removes markdown header markers and bold delimiters that
// generative backends tend to emit despite instructions.
func StripMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		for strings.HasPrefix(trimmed, "#") {
			trimmed = strings.TrimPrefix(trimmed, "#")
		}
		lines[i] = strings.TrimLeft(trimmed, " ")
	}
	out := strings.Join(lines, "\n")
	out = strings.ReplaceAll(out, "**", "")
	return strings.TrimSpace(out)
}

// TruncateWords caps the text at maxWords, appending an ellipsis when content
// was dropped.
func TruncateWords(text string, maxWords int) string {
	if maxWords <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ") + "…"
}

// EnsureSections appends "<label>: No aplica" for every mandated section the
// text does not already contain.
func EnsureSections(text string) string {
	var missing []string
	for _, label := range SectionLabels {
		if !HasSection(text, label) {
			missing = append(missing, label+": "+NotApplicable)
		}
	}
	if len(missing) == 0 {
		return text
	}
	if text == "" {
		return strings.Join(missing, "\n")
	}
	return text + "\n" + strings.Join(missing, "\n")
}

// HasSection reports whether the text contains the section label, accepting
// case and accent variations.
func HasSection(text, label string) bool {
	lower := strings.ToLower(text)
	for _, alias := range sectionAliases[label] {
		if strings.Contains(lower, alias+":") {
			return true
		}
	}
	return false
}

// WordCount counts whitespace-separated words
func WordCount(text string) int {
	return len(strings.Fields(text))
}
