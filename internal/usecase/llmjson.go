package usecase

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeJSON unmarshals an LLM response into v, tolerating markdown code
// fences and leading/trailing prose around the JSON object.
func decodeJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// Fall back to the outermost object if prose surrounds it.
	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start < 0 || end <= start {
			return fmt.Errorf("no JSON object in response")
		}
		s = s[start : end+1]
	}

	return json.Unmarshal([]byte(s), v)
}

// clamp01 clamps a confidence value into [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
