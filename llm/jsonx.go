package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnparseable reports that the model output could not be turned into
// the requested JSON shape even after recovery.
var ErrUnparseable = errors.New("model output is not parseable JSON")

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// DecodeObject extracts a single JSON object from raw model output into out.
// The contract is strict parse, then one bounded repair attempt, then failure;
// partial data is never silently coerced.
func DecodeObject(raw string, out interface{}) error {
	return decode(raw, out, '{', '}')
}

// DecodeArray is DecodeObject for a top-level JSON array.
func DecodeArray(raw string, out interface{}) error {
	return decode(raw, out, '[', ']')
}

func decode(raw string, out interface{}, open, close byte) error {
	cleaned := stripCodeFences(raw)

	// Step 1: strict parse of the cleaned output as-is.
	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}

	// Step 2: bounded repair. Extract the outermost payload span, then
	// normalise the cheap-to-fix artifacts models routinely emit.
	span, ok := extractSpan(cleaned, open, close)
	if !ok {
		return fmt.Errorf("no %c...%c span found: %w", open, close, ErrUnparseable)
	}
	if err := json.Unmarshal([]byte(span), out); err == nil {
		return nil
	}

	repaired := repair(span)
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("repair attempt failed: %w", ErrUnparseable)
	}
	return nil
}

// stripCodeFences removes markdown fence markers commonly wrapped around
// model JSON output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Language tag on the opening fence, e.g. ```json
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(s[:idx])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "{}[]") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractSpan returns the outermost balanced span between open and close,
// ignoring brackets inside string literals.
func extractSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == open:
			depth++
		case !inString && c == close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// repair applies the lenient fixes tolerated before giving up: trailing
// commas, curly quotes, and raw newlines inside string literals.
func repair(s string) string {
	s = trailingComma.ReplaceAllString(s, "$1")
	s = strings.NewReplacer("“", `\"`, "”", `\"`, "‘", "'", "’", "'").Replace(s)

	var sb strings.Builder
	sb.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			sb.WriteByte(c)
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			sb.WriteByte(c)
			escaped = true
		case c == '"':
			inString = !inString
			sb.WriteByte(c)
		case inString && c == '\n':
			sb.WriteString(`\n`)
		case inString && c == '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
