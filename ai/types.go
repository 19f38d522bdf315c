package ai

import "github.com/poiesic/docent/core"

// Conversation roles understood by synthesis backends.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn of prior conversation passed along with a
// synthesis request so the model can resolve follow-up questions.
type Message struct {
	// Role is RoleUser or RoleAssistant.
	Role string

	// Content is the text of the turn.
	Content string
}

// SynthesisRequest carries everything a Synthesizer needs to answer a question.
type SynthesisRequest struct {
	// Question is the user's question, already validated as non-empty.
	Question string

	// Passages are the retrieved chunks the answer must be grounded in,
	// ranked best-first.
	Passages []*core.Passage

	// History holds prior conversation turns, oldest first. May be empty.
	History []Message
}

// SynthesisResult is the outcome of a synthesis call.
type SynthesisResult struct {
	// Answer is the generated answer text, cleaned of model artifacts.
	Answer string

	// TokensUsed is the total token count reported by the backend,
	// or zero when the backend does not report usage.
	TokensUsed int
}
