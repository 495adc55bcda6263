// Package decoder recovers JSON payloads from the tool_output strings the
// agent platform streams over the metrics socket. Those strings are Python
// dict reprs ({'response': '...', 'module_outputs': ..., ...}) whose
// response value holds escaped, sometimes truncated, JSON.
package decoder

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/harunnryd/procura/pkg/errorsx"
)

// DecodeFailure is returned for frames that carry no usable payload.
// Callers skip the frame; it is never fatal.
type DecodeFailure struct {
	Reason errorsx.ReasonCode
	Raw    string
	Err    error
}

func (e *DecodeFailure) Error() string {
	switch e.Reason {
	case errorsx.ReasonDecodeNoResponse:
		return "no response field"
	case errorsx.ReasonDecodeParse:
		if e.Err != nil {
			return "parse error: " + e.Err.Error()
		}
		return "parse error"
	default:
		return string(e.Reason)
	}
}

func (e *DecodeFailure) Unwrap() error {
	return errorsx.ReasonedError{Err: e.Err, Reason: e.Reason}
}

// responseRe captures the response value up to the quote that precedes
// the next known key or the closing brace of the dict.
var responseRe = regexp.MustCompile(`(?s)['"]response['"]\s*:\s*['"](.*?)['"]\s*(?:,\s*['"]module_outputs['"]|,\s*['"]respond_directly['"]|\}\s*$)`)

const backslashSentinel = "\x00BS\x00"

var unescaper = strings.NewReplacer(
	`\n`, "\n",
	`\t`, "\t",
	`\"`, `"`,
	`\'`, `'`,
	`\/`, `/`,
)

// Decode extracts, unescapes, repairs and parses the response field of a
// raw tool output. It either returns a complete JSON value or a
// *DecodeFailure.
func Decode(rawToolOutput string) (any, error) {
	m := responseRe.FindStringSubmatch(rawToolOutput)
	if m == nil {
		return nil, &DecodeFailure{Reason: errorsx.ReasonDecodeNoResponse, Raw: rawToolOutput}
	}
	text := strings.TrimSpace(Unescape(m[1]))
	text = Repair(text)

	var out any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, &DecodeFailure{Reason: errorsx.ReasonDecodeParse, Raw: text, Err: err}
	}
	return out, nil
}

// Unescape reverses the repr escaping. Literal double backslashes are
// parked behind a sentinel first so that `\\n` stays a backslash followed
// by n instead of turning into a newline.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, `\\`, backslashSentinel)
	s = unescaper.Replace(s)
	return strings.ReplaceAll(s, backslashSentinel, `\`)
}

// Repair appends the closers for every '{' and '[' left open, innermost
// first. Brackets inside string literals are ignored. Interior damage is
// left alone; the parse that follows reports it.
func Repair(s string) string {
	var open []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			open = append(open, c)
		case '}', ']':
			if n := len(open); n > 0 && matches(open[n-1], c) {
				open = open[:n-1]
			}
		}
	}
	if len(open) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(open))
	b.WriteString(s)
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

func matches(opener, closer byte) bool {
	return (opener == '{' && closer == '}') || (opener == '[' && closer == ']')
}

// DecodeToolOutput accepts the tool_output field as it arrives in the wire
// envelope. Strings go through Decode. Objects that still wrap a string
// response are decoded from it; other objects are already payloads.
func DecodeToolOutput(raw json.RawMessage) (any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, &DecodeFailure{Reason: errorsx.ReasonDecodeNoResponse, Raw: trimmed}
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err != nil {
			return nil, &DecodeFailure{Reason: errorsx.ReasonDecodeParse, Raw: trimmed, Err: err}
		}
		return Decode(s)
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, &DecodeFailure{Reason: errorsx.ReasonDecodeParse, Raw: trimmed, Err: fmt.Errorf("tool output object: %w", err)}
	}
	if resp, ok := obj["response"].(string); ok {
		text := Repair(strings.TrimSpace(resp))
		var out any
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			return nil, &DecodeFailure{Reason: errorsx.ReasonDecodeParse, Raw: text, Err: err}
		}
		return out, nil
	}
	if inner, ok := obj["response"].(map[string]any); ok {
		return inner, nil
	}
	return obj, nil
}
