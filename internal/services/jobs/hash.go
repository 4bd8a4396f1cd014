package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/telsalud/notefmt/internal/models"
)

// InputHash computes the submission fingerprint: SHA-256 over the canonical
// JSON of the note content, format profile, resolved options, and prompt
// version. encoding/json sorts map keys, which keeps the canonical form
// stable under key ordering. Used only for deduplication, never for
// authorization.
func InputHash(title, body, formatProfile string, options models.FormatOptions, promptVersion int) string {
	keywords := append([]string(nil), options.Keywords...)
	sort.Strings(keywords)
	if keywords == nil {
		keywords = []string{}
	}

	payload := map[string]interface{}{
		"title":         title,
		"body":          body,
		"formatProfile": formatProfile,
		"options": map[string]interface{}{
			"length":   options.Length,
			"bullets":  options.Bullets,
			"keywords": keywords,
			"tone":     options.Tone,
		},
		"promptVersion": promptVersion,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// Marshal of plain maps and strings cannot fail
		panic(err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
