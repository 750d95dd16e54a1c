package scan

import (
	"encoding/json"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// maxDecodeAttempts caps how many candidate start positions are tried per strategy.
const maxDecodeAttempts = 64

// ExtractJSON recovers a JSON value from model output that may carry prose,
// code fences or trailing junk. Strategies, in order:
//
//  1. an array whose first element is an object ("[{"),
//  2. an object whose first token is a string key ("{\""),
//  3. the span from the first '[' or '{' to the last ']' or '}',
//  4. the first decodable array or object at any bracket.
//
// Numbers are kept as json.Number. It returns false when nothing parses.
func ExtractJSON(text string) (any, bool) {
	if v, ok := extractFollowed(text, '[', '{'); ok {
		return v, true
	}
	if v, ok := extractFollowed(text, '{', '"'); ok {
		return v, true
	}
	if v, ok := extractSpan(text); ok {
		return v, true
	}
	if v, ok := extractAny(text); ok {
		return v, true
	}
	zap.L().Debug("no JSON value recoverable from model output",
		zap.Int("length", len(text)),
		zap.String("head", head(text, 120)),
	)
	return nil, false
}

// extractFollowed tries every position of open whose next non-space rune is
// next. At each position the greedy span to the last matching closer is tried
// before the first complete value.
func extractFollowed(text string, open, next byte) (any, bool) {
	closer := byte(']')
	if open == '{' {
		closer = '}'
	}
	last := strings.LastIndexByte(text, closer)
	attempts := 0
	for i := 0; i < len(text) && attempts < maxDecodeAttempts; i++ {
		if text[i] != open || !nextNonSpaceIs(text[i+1:], next) {
			continue
		}
		attempts++
		if last > i {
			if v, ok := parseExact(text[i : last+1]); ok && shapeMatches(v, open) {
				return v, true
			}
		}
		if v, ok := decodeFirst(text[i:]); ok && shapeMatches(v, open) {
			return v, true
		}
	}
	return nil, false
}

func extractSpan(text string) (any, bool) {
	start := strings.IndexAny(text, "[{")
	end := strings.LastIndexAny(text, "]}")
	if start < 0 || end <= start {
		return nil, false
	}
	v, ok := parseExact(text[start : end+1])
	if !ok || !isContainer(v) {
		return nil, false
	}
	return v, true
}

func extractAny(text string) (any, bool) {
	attempts := 0
	for i := 0; i < len(text) && attempts < maxDecodeAttempts; i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}
		attempts++
		if v, ok := decodeFirst(text[i:]); ok && isContainer(v) {
			return v, true
		}
	}
	return nil, false
}

func parseExact(s string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return v, true
}

// decodeFirst decodes the first complete JSON value and ignores the rest.
func decodeFirst(s string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

func nextNonSpaceIs(s string, want byte) bool {
	for i := 0; i < len(s); i++ {
		if unicode.IsSpace(rune(s[i])) {
			continue
		}
		return s[i] == want
	}
	return false
}

func shapeMatches(v any, open byte) bool {
	switch v.(type) {
	case []any:
		return open == '['
	case map[string]any:
		return open == '{'
	}
	return false
}

func isContainer(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return true
	}
	return false
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
