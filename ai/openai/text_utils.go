package openai

import (
	"regexp"
	"strings"
)

var (
	// Reasoning models emit their chain of thought between think tags.
	thinkBlockPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)
	newlineRunPattern = regexp.MustCompile(`\n+`)
)

// sanitizeAnswer strips model artifacts from a raw completion: <think>
// reasoning blocks are removed, runs of blank lines collapsed, and
// surrounding whitespace trimmed.
func sanitizeAnswer(s string) string {
	s = thinkBlockPattern.ReplaceAllString(s, "")
	s = newlineRunPattern.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
