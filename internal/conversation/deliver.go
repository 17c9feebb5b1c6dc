package conversation

import (
	"strings"
	"unicode/utf8"
)

// chunkMessage splits text into at most maxParts pieces of at most limit
// bytes, preferring whitespace breaks. When text remains past the last part
// it is cut and marked with the suffix.
func chunkMessage(text string, limit, maxParts int, suffix string) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var parts []string
	rest := text
	for len(rest) > limit && len(parts) < maxParts-1 {
		cut := breakPoint(rest, limit)
		parts = append(parts, strings.TrimSpace(rest[:cut]))
		rest = strings.TrimSpace(rest[cut:])
	}

	if len(rest) > limit {
		cut := breakPoint(rest, limit-len(suffix))
		rest = strings.TrimRightFunc(rest[:cut], func(r rune) bool { return r == ' ' || r == '\n' }) + suffix
	}
	return append(parts, rest)
}

// breakPoint picks a cut position at or before limit, on a whitespace break
// when one exists in the back half, and never mid-rune.
func breakPoint(text string, limit int) int {
	if limit >= len(text) {
		return len(text)
	}
	if i := strings.LastIndexAny(text[:limit], " \n"); i > limit/2 {
		return i
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}
