package llm

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractJSON finds the JSON object or array in a model answer, ignoring
// fences and any prose around it. It reports false when there is none.
func ExtractJSON(answer string) (gjson.Result, bool) {
	s := TrimFences(answer)
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return gjson.Result{}, false
	}
	closing := byte('}')
	if s[start] == '[' {
		closing = ']'
	}
	// Shrink the candidate until it parses: trailing prose may itself hold brackets.
	for end := strings.LastIndexByte(s, closing); end > start; end = strings.LastIndexByte(s[:end], closing) {
		if candidate := s[start : end+1]; gjson.Valid(candidate) {
			return gjson.Parse(candidate), true
		}
	}
	return gjson.Result{}, false
}
