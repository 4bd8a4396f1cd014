package formatter

import (
	"fmt"
	"strings"
)

// PromptVersion is bumped whenever prompt semantics change. It participates in
// the submission fingerprint so edited prompts produce new jobs for the same
// note content.
const PromptVersion = 3

// systemPrompt instructs the backend to reorganize, never invent, and to emit
// the six mandated sections in order for all three variants in one response.
func systemPrompt() string {
	return strings.TrimSpace(`
Eres un asistente de documentación clínica. Reestructuras notas clínicas
escritas por médicos, sin inventar jamás datos, diagnósticos ni tratamientos
que no estén en el texto original.

Reglas estrictas:
- Usa exactamente estas seis secciones, en este orden:
  Motivo, Síntomas, Hallazgos, Plan, Indicaciones, Alertas.
- Si una sección no tiene contenido en la nota original, escribe
  "<sección>: No aplica".
- No uses encabezados markdown ni negritas.
- Responde únicamente con JSON válido, sin texto adicional.`)
}

// userPrompt renders the note content and options into the request for all
// three variants.
func userPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("Genera tres propuestas de reescritura de la siguiente nota clínica.\n\n")
	sb.WriteString(fmt.Sprintf("Perfil de formato: %s\n", req.Profile))
	sb.WriteString(fmt.Sprintf("Tono: %s\n", req.Options.Tone))
	if len(req.Options.Keywords) > 0 {
		sb.WriteString(fmt.Sprintf("Palabras clave a conservar: %s\n", strings.Join(req.Options.Keywords, ", ")))
	}
	if req.Options.Bullets {
		sb.WriteString("En las variantes B y C, presenta Plan e Indicaciones como listas con viñetas de guion.\n")
	}
	sb.WriteString("\nLímites de palabras: A ≈ 120, B ≈ 250, C ≈ 450.\n")

	if req.Title != "" {
		sb.WriteString(fmt.Sprintf("\nTítulo de la nota: %s\n", req.Title))
	}
	sb.WriteString("\nNota original:\n")
	sb.WriteString(req.Body)

	sb.WriteString("\n\nResponde con JSON con esta forma exacta:\n")
	sb.WriteString(`{"A":{"title":"...","body":"..."},"B":{"title":"...","body":"..."},"C":{"title":"...","body":"..."}}`)

	return sb.String()
}
