package dispatcher

import (
	"strings"

	"github.com/local/comesano/internal/ai"
)

// ExtractJSONObject isolates the outermost JSON object in raw model output,
// tolerating surrounding prose or code fences.
func ExtractJSONObject(raw string, provider ai.Provider) (string, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		return text, nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || end < start {
		return "", ai.NewInvalidPayload(provider, raw, nil)
	}
	return text[start : end+1], nil
}
