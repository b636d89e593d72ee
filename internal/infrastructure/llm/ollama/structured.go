package ollama

import (
	"encoding/json"
	"strings"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

// DecodeStructured extracts a JSON payload from free-form model output.
// Surrounding markdown code fences are stripped first; anything that still
// fails to parse is reported as a typed malformed-output error.
func DecodeStructured(raw string, out any) error {
	payload := stripCodeFences(raw)
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return domain.WrapError(domain.ErrMalformedOutput, "decode structured output", err)
	}
	return nil
}

func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = s[3:]
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		if isFenceInfo(strings.TrimSpace(s[:nl])) {
			s = s[nl+1:]
		}
	} else {
		s = strings.TrimPrefix(s, "json")
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// isFenceInfo reports whether the first fenced line is an info string like
// "json" rather than payload.
func isFenceInfo(line string) bool {
	if line == "" {
		return true
	}
	if len(line) > 16 {
		return false
	}
	for _, r := range line {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}
