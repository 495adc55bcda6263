// Package envelope normalizes the {response: ...} envelope returned by the
// synchronous agent endpoints into a plain JSON value.
package envelope

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	fromRe    = regexp.MustCompile(`"from"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	messageRe = regexp.MustCompile(`"message"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	priceRe   = regexp.MustCompile(`"price"\s*:\s*"?(-?\d+(?:\.\d+)?)`)
	contentRe = regexp.MustCompile(`"content"\s*:\s*"`)
	nextMsgRe = regexp.MustCompile(`"\s*,\s*"message"\s*:`)
)

// Normalize turns the response field of an agent reply into a JSON value.
// Objects and arrays come back parsed. Strings are unquoted once, cleaned
// of generation artifacts and parsed; when that fails the known
// from/content/message shape is sliced out by position, then a bare price
// is tried, and finally the original text is wrapped as {"response": s}.
// The result is never nil.
func Normalize(response json.RawMessage) any {
	trimmed := strings.TrimSpace(string(response))
	if trimmed == "" || trimmed == "null" {
		return map[string]any{"response": ""}
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			return NormalizeString(s)
		}
		return NormalizeString(trimmed)
	}
	var out any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return NormalizeString(trimmed)
	}
	return out
}

// NormalizeString applies the string branch of Normalize.
func NormalizeString(original string) any {
	text := strings.TrimSpace(original)
	if text == "" {
		return map[string]any{"response": original}
	}
	if isQuote(text[0]) {
		text = unquoteOnce(text)
	}
	text = stripArtifacts(text)

	var out any
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out
	}
	if fields, ok := extractContent(text); ok {
		return fields
	}
	if m := priceRe.FindStringSubmatch(text); m != nil {
		if price, err := strconv.ParseFloat(m[1], 64); err == nil {
			return map[string]any{"price": price}
		}
	}
	return map[string]any{"response": original}
}

func isQuote(c byte) bool {
	return c == '"' || c == '\''
}

func unquoteOnce(s string) string {
	if s[0] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return strings.TrimSpace(u)
		}
	}
	if len(s) >= 2 && s[len(s)-1] == s[0] {
		return strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// stripArtifacts removes markdown fences and any prose around the outer
// object that models tend to add.
func stripArtifacts(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	if strings.HasPrefix(text, "[") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// extractContent slices the content value out of a
// {"from": ..., "content": ..., "message": ...} object whose content holds
// unescaped quotes or newlines. The value runs from its opening quote to
// the last quote before a following "message" key, or before the final
// closing brace.
func extractContent(text string) (map[string]any, bool) {
	loc := contentRe.FindStringIndex(text)
	if loc == nil {
		return nil, false
	}
	start := loc[1]
	rest := text[start:]

	end := -1
	tail := ""
	if ms := nextMsgRe.FindAllStringIndex(rest, -1); len(ms) > 0 {
		last := ms[len(ms)-1]
		end = last[0]
		tail = rest[last[0]:]
	} else if brace := strings.LastIndex(rest, "}"); brace >= 0 {
		end = strings.LastIndex(rest[:brace], `"`)
	}
	if end < 0 {
		return nil, false
	}

	out := map[string]any{"content": rest[:end]}
	if m := fromRe.FindStringSubmatch(text[:loc[0]]); m != nil {
		out["from"] = m[1]
	}
	if tail != "" {
		if m := messageRe.FindStringSubmatch(tail); m != nil {
			out["message"] = m[1]
		}
	}
	return out, true
}
