package query

import (
	"encoding/json"
	"regexp"
	"strings"
)

// analysis is the structured rewrite contract expected from the model.
type analysis struct {
	IsConversationQuery bool   `json:"is_conversation_query"`
	NeedsClarification  bool   `json:"needs_clarification"`
	ReformulatedQuery   string `json:"reformulated_query"`
}

var (
	fenceRe      = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	reformRe     = regexp.MustCompile(`"reformulated_query"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	convQueryRe  = regexp.MustCompile(`"is_conversation_query"\s*:\s*(true|false)`)
	clarifyRe    = regexp.MustCompile(`"needs_clarification"\s*:\s*(true|false)`)
	maxBareQuery = 200
)

// parseAnalysis extracts the structured analysis from raw model output.
// It tolerates, in order of preference: fenced JSON, embedded JSON
// objects, loose key-value fragments, and finally a bare single-line
// rewrite. Returns ok=false when nothing usable was produced.
func parseAnalysis(raw string) (analysis, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return analysis{}, false
	}

	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		raw = strings.TrimSpace(m[1])
	}

	if obj := firstJSONObject(raw); obj != "" {
		var a analysis
		if err := json.Unmarshal([]byte(obj), &a); err == nil {
			return a, true
		}
	}

	// Loose fragments: the model emitted recognizable keys inside
	// otherwise unparseable text.
	if m := reformRe.FindStringSubmatch(raw); m != nil {
		var a analysis
		if s, err := unquoteJSONString(m[1]); err == nil {
			a.ReformulatedQuery = s
		} else {
			a.ReformulatedQuery = m[1]
		}
		if b := convQueryRe.FindStringSubmatch(raw); b != nil {
			a.IsConversationQuery = b[1] == "true"
		}
		if b := clarifyRe.FindStringSubmatch(raw); b != nil {
			a.NeedsClarification = b[1] == "true"
		}
		return a, true
	}

	// Bare rewrite: one short line of plain text, no JSON at all.
	if !strings.ContainsAny(raw, "\n{}") && len(raw) <= maxBareQuery {
		return analysis{ReformulatedQuery: strings.Trim(raw, `"' `)}, true
	}

	return analysis{}, false
}

// firstJSONObject returns the first balanced {...} region of s, or "".
// Brace counting respects JSON string literals and escapes.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// unquoteJSONString decodes a JSON string body (without surrounding
// quotes) so escape sequences survive the loose-fragment path.
func unquoteJSONString(body string) (string, error) {
	var out string
	err := json.Unmarshal([]byte(`"`+body+`"`), &out)
	return out, err
}
