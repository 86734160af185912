// Package repair turns free-form AI-service text into validated JSON.
//
// Model responses routinely wrap JSON in prose or markdown fences, quote
// keys with single quotes, leave trailing commas, or get truncated
// mid-payload. Repair applies an ordered chain of extraction strategies
// and stops at the first one that yields valid JSON.
package repair

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrUnrepairable is returned when every strategy fails. Callers are
// expected to fail closed.
var ErrUnrepairable = errors.New("repair: no strategy produced valid JSON")

type strategy func(raw string) (json.RawMessage, bool)

var strategies = []strategy{
	extractFenced,
	extractBalancedSpan,
	applyTransforms,
	completeTruncated,
}

// Repair extracts the first parseable JSON payload from raw text.
// Strategies are tried in isolation; a failure in one never prevents
// attempting the next.
func Repair(raw string) (json.RawMessage, error) {
	for _, s := range strategies {
		if payload, ok := s(raw); ok {
			return payload, nil
		}
	}
	return nil, ErrUnrepairable
}

// Decode repairs raw text and unmarshals the payload into v.
func Decode(raw string, v any) error {
	payload, err := Repair(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}

// extractFenced pulls the first markdown code block out of the text and
// parses its content.
func extractFenced(raw string) (json.RawMessage, bool) {
	start := strings.Index(raw, "```")
	if start < 0 {
		return nil, false
	}

	body := raw[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isFenceTag(body[:nl]) {
		body = body[nl+1:]
	}

	end := strings.Index(body, "```")
	if end < 0 {
		return nil, false
	}

	return validate(strings.TrimSpace(body[:end]))
}

func isFenceTag(s string) bool {
	tag := strings.TrimSpace(s)
	return tag == "" || tag == "json" || tag == "JSON"
}

// extractBalancedSpan scans for the first balanced object or array span
// and parses it, ignoring surrounding prose.
func extractBalancedSpan(raw string) (json.RawMessage, bool) {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return nil, false
	}

	var (
		depth    int
		inString bool
		escaped  bool
	)
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{' || ch == '[':
			depth++
		case ch == '}' || ch == ']':
			depth--
			if depth == 0 {
				return validate(raw[start : i+1])
			}
		}
	}

	return nil, false
}

// applyTransforms hands the candidate segment to the jsonrepair library,
// which fixes trailing commas, single-quoted keys, unescaped control
// characters and similar near-miss JSON.
func applyTransforms(raw string) (json.RawMessage, bool) {
	fixed, err := jsonrepair.JSONRepair(candidateSegment(raw))
	if err != nil {
		return nil, false
	}
	return validate(fixed)
}

// completeTruncated closes unterminated strings, objects and arrays of a
// payload cut off mid-generation, then re-parses. Best effort only.
func completeTruncated(raw string) (json.RawMessage, bool) {
	segment := candidateSegment(raw)
	if segment == "" || (segment[0] != '{' && segment[0] != '[') {
		return nil, false
	}

	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(segment); i++ {
		ch := segment[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			stack = append(stack, '}')
		case ch == '[':
			stack = append(stack, ']')
		case ch == '}' || ch == ']':
			if len(stack) == 0 || stack[len(stack)-1] != ch {
				return nil, false
			}
			stack = stack[:len(stack)-1]
		}
	}

	completed := segment
	if inString {
		completed += `"`
	}
	completed = strings.TrimRight(completed, " \t\r\n")
	completed = strings.TrimRight(completed, ",:")
	for i := len(stack) - 1; i >= 0; i-- {
		completed += string(stack[i])
	}

	return validate(completed)
}

// candidateSegment narrows raw text to the part most likely to hold the
// payload: a fenced block's content when present, otherwise everything
// from the first structural character.
func candidateSegment(raw string) string {
	segment := strings.TrimSpace(raw)

	if start := strings.Index(segment, "```"); start >= 0 {
		body := segment[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && isFenceTag(body[:nl]) {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		segment = strings.TrimSpace(body)
	}

	if start := strings.IndexAny(segment, "{["); start > 0 {
		segment = segment[start:]
	}

	return segment
}

// validate accepts only structured payloads. A bare string or number is
// valid JSON but never a usable verdict, so scalars are rejected.
func validate(candidate string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, false
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}
