// Package structured recovers machine-parseable values from free-form model
// output: code fences, single-quoted strings, Python literals, trailing
// commas, truncated strings and missing closing braces are repaired on a
// best-effort basis.
package structured

import (
	"fmt"
	"strings"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/goccy/go-json"
)

const (
	fence = "```"

	// maxCandidates bounds how many opening brackets Repair tries.
	maxCandidates = 64
)

// Repair returns the best JSON candidate found in text. It never fails; when
// no object or array is present the trimmed text is returned. Each opening
// bracket is tried in turn so brackets inside leading prose are skipped.
func Repair(text string) string {
	s := stripFences(strings.TrimSpace(text))
	first := ""
	offset := 0
	for n := 0; n < maxCandidates; n++ {
		i := strings.IndexAny(s[offset:], "{[")
		if i < 0 {
			break
		}
		candidate := s[offset+i:]
		if json.Valid([]byte(candidate)) {
			return candidate
		}
		fixed := normalize(candidate)
		if json.Valid([]byte(fixed)) {
			return fixed
		}
		if first == "" {
			first = fixed
		}
		offset += i + 1
	}
	if first == "" {
		return s
	}
	return first
}

// Parse repairs text and decodes it into a generic value.
func Parse(text string) (any, error) {
	var v any
	if err := Decode(text, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode repairs text and decodes it into v.
func Decode(text string, v any) error {
	candidate := Repair(text)
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStructuredOutput, err)
	}
	return nil
}

// stripFences returns the body of the first fenced block, if any. An
// unterminated fence yields everything after the opening line.
func stripFences(s string) string {
	open := strings.Index(s, fence)
	if open < 0 {
		return s
	}
	// a fence after the value is a stray closer, not a block
	if b := strings.IndexAny(s, "{["); b >= 0 && b < open {
		return s
	}
	body := s[open+len(fence):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// drop the info string (```json)
		if !strings.ContainsAny(body[:nl], "{[") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	if !strings.ContainsAny(body, "{[") {
		return s
	}
	return strings.TrimSpace(body)
}

// normalize rewrites s into JSON: single quotes become double quotes,
// Python literals become JSON literals, trailing commas are dropped, and
// unterminated strings and containers are closed. Text after the first
// complete top-level value is discarded.
func normalize(s string) string {
	buf := make([]byte, 0, len(s)+8)
	var stack []byte
	var quote byte
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if quote != 0 {
			if escaped {
				escaped = false
				if quote == '\'' && c == '\'' {
					buf[len(buf)-1] = '\''
					continue
				}
				buf = append(buf, c)
				continue
			}
			switch {
			case c == '\\':
				escaped = true
				buf = append(buf, c)
			case c == quote:
				buf = append(buf, '"')
				quote = 0
			case c == '"':
				buf = append(buf, '\\', '"')
			case c == '\n':
				buf = append(buf, '\\', 'n')
			default:
				buf = append(buf, c)
			}
			continue
		}

		switch {
		case c == '"' || c == '\'':
			quote = c
			buf = append(buf, '"')
		case c == '{' || c == '[':
			stack = append(stack, c)
			buf = append(buf, c)
		case c == '}' || c == ']':
			buf = trimTrailingComma(buf)
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			buf = append(buf, c)
			if len(stack) == 0 {
				return string(buf)
			}
		case isWordByte(c):
			j := i
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			buf = append(buf, literal(s[i:j])...)
			i = j - 1
		default:
			buf = append(buf, c)
		}
	}

	if quote != 0 {
		if escaped {
			buf = buf[:len(buf)-1]
		}
		buf = append(buf, '"')
	}
	buf = trimTrailingComma(buf)
	if len(buf) > 0 && buf[len(buf)-1] == ':' {
		buf = append(buf, "null"...)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			buf = append(buf, '}')
		} else {
			buf = append(buf, ']')
		}
	}
	return string(buf)
}

func trimTrailingComma(buf []byte) []byte {
	end := len(buf)
	for end > 0 && isSpace(buf[end-1]) {
		end--
	}
	if end > 0 && buf[end-1] == ',' {
		return buf[:end-1]
	}
	return buf[:end]
}

func literal(word string) string {
	switch word {
	case "True":
		return "true"
	case "False":
		return "false"
	case "None":
		return "null"
	default:
		return word
	}
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
