package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	controlCharRe   = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
)

// ExtractJSON recovers a JSON value from model output that may be wrapped in
// prose or code fences, or carry minor syntax noise. Recovery attempts, in
// order: direct parse, fence stripping, first-{ to last-} substring, then the
// same substring with trailing commas and control characters removed. If
// everything fails it returns a ParseError with a truncated excerpt.
func ExtractJSON(s string, v any) error {
	trimmed := strings.TrimSpace(s)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	if fenced, ok := stripFences(trimmed); ok {
		if err := json.Unmarshal([]byte(fenced), v); err == nil {
			return nil
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return &ParseError{Excerpt: excerpt(s), Err: errNoObject}
	}
	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), v); err == nil {
		return nil
	}

	sanitized := trailingCommaRe.ReplaceAllString(sub, "$1")
	sanitized = controlCharRe.ReplaceAllString(sanitized, "")
	if err := json.Unmarshal([]byte(sanitized), v); err != nil {
		return &ParseError{Excerpt: excerpt(s), Err: err}
	}
	return nil
}

var errNoObject = jsonError("no JSON object found")

type jsonError string

func (e jsonError) Error() string { return string(e) }

// stripFences removes a leading "```json" (or bare "```") marker and a
// trailing fence, tolerating prose around the fenced block.
func stripFences(s string) (string, bool) {
	open := strings.Index(s, "```")
	if open == -1 {
		return "", false
	}
	rest := s[open+3:]
	if strings.HasPrefix(rest, "json") {
		rest = rest[4:]
	}
	closing := strings.LastIndex(rest, "```")
	if closing == -1 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:closing]), true
}
