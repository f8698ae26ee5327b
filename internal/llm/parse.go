package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// CleanResponse defensively normalizes raw backend text before it is
// committed as a turn: strips markdown code fences some local backends
// wrap responses in, and — if the model echoed a JSON envelope instead of
// plain text — pulls a conversational field out of it. Ported from the
// teacher's json_extract.go/llm_parser.go defensive extraction, which the
// original Python implementation (persona_mcp/utils/fast_json.py)
// independently converged on: never trust raw LLM text verbatim.
func CleanResponse(raw string) string {
	text := stripCodeFence(raw)
	text = strings.TrimSpace(text)
	if text == "" {
		return text
	}
	if obj := extractFirstJSONObject(text); obj != "" {
		if field := extractStringField(obj, "response"); field != "" {
			return field
		}
		if field := extractStringField(obj, "content"); field != "" {
			return field
		}
		if field := extractStringField(obj, "message"); field != "" {
			return field
		}
	}
	return text
}

var codeFenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\n(.*)\\n```$")

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// extractFirstJSONObject scans for the first balanced, string-escape-aware
// `{...}` object in input. Returns "" if none is found.
func extractFirstJSONObject(input string) string {
	start := strings.IndexByte(input, '{')
	if start == -1 {
		return ""
	}

	inString := false
	escape := false
	depth := 0

	for i := start; i < len(input); i++ {
		ch := input[i]

		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
			if depth < 0 {
				return ""
			}
		}
	}
	return ""
}

// extractStringField tries json.Unmarshal first, falling back to a
// targeted regex for the common case of a single malformed trailing
// character breaking strict parsing.
func extractStringField(obj, field string) string {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(obj), &parsed); err == nil {
		if v, ok := parsed[field].(string); ok {
			return v
		}
		return ""
	}
	re := regexp.MustCompile(`(?is)"` + regexp.QuoteMeta(field) + `"\s*:\s*"((?:\\.|[^"\\])*)"`)
	m := re.FindStringSubmatch(obj)
	if len(m) != 2 {
		return ""
	}
	var unescaped string
	if err := json.Unmarshal([]byte(`"`+m[1]+`"`), &unescaped); err == nil {
		return unescaped
	}
	return m[1]
}
