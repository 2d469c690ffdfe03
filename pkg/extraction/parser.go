package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loresmith/loresmith/pkg/models"
)

// ParsedContent is the validated structure of one AI search result:
// content type → items, plus the provider's meta object.
type ParsedContent struct {
	// Items maps closed-vocabulary content types to their entries.
	Items map[string][]map[string]any

	// Meta is the provider's meta object, passed through untouched.
	Meta map[string]any

	// UnknownKeys lists top-level keys outside the vocabulary, surfaced
	// as a hidden diagnostic rather than an error.
	UnknownKeys []string
}

// TotalItems returns the item count across all content types.
func (p *ParsedContent) TotalItems() int {
	n := 0
	for _, items := range p.Items {
		n += len(items)
	}
	return n
}

// ParseAIResponse extracts structured content from raw model output. The
// parser is deliberately permissive about the surroundings — code fences and
// prose around the JSON object are a contract, not an error: it never fails
// on benign leading/trailing text. Only a missing or unparseable object
// errors.
func ParseAIResponse(raw string) (*ParsedContent, error) {
	jsonText, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonText), &top); err != nil {
		return nil, fmt.Errorf("malformed structured content: %w", err)
	}

	parsed := &ParsedContent{Items: make(map[string][]map[string]any)}
	for key, rawVal := range top {
		if key == "meta" {
			var meta map[string]any
			if err := json.Unmarshal(rawVal, &meta); err == nil {
				parsed.Meta = meta
			}
			continue
		}
		if !models.IsStructuredContentType(key) {
			parsed.UnknownKeys = append(parsed.UnknownKeys, key)
			continue
		}
		var items []map[string]any
		if err := json.Unmarshal(rawVal, &items); err != nil {
			// A scalar or object under a known key is treated as absent.
			parsed.UnknownKeys = append(parsed.UnknownKeys, key)
			continue
		}
		if len(items) > 0 {
			parsed.Items[key] = items
		}
	}
	return parsed, nil
}

// extractJSONObject strips code fences and returns the substring between
// the first '{' and the last '}'.
func extractJSONObject(raw string) (string, error) {
	text := strings.TrimSpace(raw)

	// Strip a surrounding markdown code fence, with or without a language
	// tag. Interior fences are left alone; the brace scan below handles
	// any remaining noise.
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return text[start : end+1], nil
}
