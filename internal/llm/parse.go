package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseObject decodes a model response into a JSON object. Markdown code
// fences around the payload are tolerated; anything that is not a single
// JSON object is a ParseError.
func ParseObject(provider, content string) (map[string]any, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil, &Error{Kind: KindParse, Provider: provider, Err: fmt.Errorf("empty response")}
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, &Error{Kind: KindParse, Provider: provider, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out == nil {
		return nil, &Error{Kind: KindParse, Provider: provider, Err: fmt.Errorf("response is not a JSON object")}
	}
	return out, nil
}
