package mock

import (
	"context"
	"fmt"

	"github.com/poiesic/docent/ai"
)

// MockSynthesizer is a test double for ai.Synthesizer.
// It allows custom behavior injection via function fields.
type MockSynthesizer struct {
	// SynthesizeFunc is called by Synthesize if set.
	// If nil, uses default canned-answer behavior.
	SynthesizeFunc func(ctx context.Context, req *ai.SynthesisRequest) (*ai.SynthesisResult, error)

	callCount   int
	lastRequest *ai.SynthesisRequest
}

// NewMockSynthesizer creates a mock synthesizer with default behavior.
// Note: Returns concrete type to allow test assertions via GetMockSynthesizer().
func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

// Synthesize produces a deterministic canned answer.
// Default behavior: echo the question and quote the top passage so tests can
// assert the answer was grounded in retrieved content.
func (m *MockSynthesizer) Synthesize(ctx context.Context, req *ai.SynthesisRequest) (*ai.SynthesisResult, error) {
	m.callCount++
	m.lastRequest = req

	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, req)
	}

	if len(req.Passages) == 0 {
		return &ai.SynthesisResult{
			Answer: "I could not find relevant information in the knowledge base.",
		}, nil
	}

	answer := fmt.Sprintf("Regarding %q: %s", req.Question, req.Passages[0].Contents)
	return &ai.SynthesisResult{
		Answer:     answer,
		TokensUsed: len(answer) / 4,
	}, nil
}

// CallCount returns the number of times Synthesize was called.
func (m *MockSynthesizer) CallCount() int {
	return m.callCount
}

// LastRequest returns the most recent request passed to Synthesize.
// Returns nil if Synthesize has not been called.
func (m *MockSynthesizer) LastRequest() *ai.SynthesisRequest {
	return m.lastRequest
}

// Reset clears the call count and custom functions.
func (m *MockSynthesizer) Reset() {
	m.callCount = 0
	m.lastRequest = nil
	m.SynthesizeFunc = nil
}
