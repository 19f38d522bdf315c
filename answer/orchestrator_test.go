package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/ai/mock"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRetriever returns a canned retrieval result so the orchestrator's
// selection and citation logic can be pinned exactly.
type stubRetriever struct {
	result *core.RetrievalResult
	err    error
	calls  int
}

func (s *stubRetriever) Retrieve(ctx context.Context, kbId core.ID, query string, cfg *search.Config) (*core.RetrievalResult, error) {
	s.calls++
	return s.result, s.err
}

func passage(chunkId, docId core.ID, title string, ordinal int, contents string, score float32) *core.Passage {
	return &core.Passage{
		ChunkId:       chunkId,
		DocumentId:    docId,
		DocumentTitle: title,
		Ordinal:       ordinal,
		Contents:      contents,
		Score:         score,
	}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.SynthesisTimeout = time.Second
	return cfg
}

func TestNewOrchestrator_Validation(t *testing.T) {
	synthesizer := mock.NewMockSynthesizer()

	_, err := NewOrchestrator(nil, synthesizer)
	assert.ErrorIs(t, err, ErrRetrieverRequired)

	_, err = NewOrchestrator(&stubRetriever{}, nil)
	assert.ErrorIs(t, err, ErrSynthesizerRequired)
}

func TestOrchestrator_Ask(t *testing.T) {
	retriever := &stubRetriever{result: &core.RetrievalResult{
		Passages: []*core.Passage{
			passage(1, 10, "bees.md", 2, "The waggle dance encodes direction and distance.", 0.92),
			passage(2, 10, "bees.md", 0, "Honeybee colonies coordinate without central direction.", 0.81),
			passage(3, 20, "hives.md", 5, "Honey is the colony's winter fuel.", 0.75),
		},
	}}
	synthesizer := mock.NewMockSynthesizer()
	synthesizer.SynthesizeFunc = func(ctx context.Context, req *ai.SynthesisRequest) (*ai.SynthesisResult, error) {
		return &ai.SynthesisResult{Answer: "Bees communicate by dancing.", TokensUsed: 42}, nil
	}

	o, err := NewOrchestrator(retriever, synthesizer)
	require.NoError(t, err)

	answer, err := o.Ask(context.Background(), 1, "How do bees communicate?", nil, testConfig())
	require.NoError(t, err)

	assert.Equal(t, "Bees communicate by dancing.", answer.Text)
	assert.Equal(t, 42, answer.TokensUsed)
	assert.True(t, answer.Grounded)
	assert.False(t, answer.Degraded)

	// Citations follow the context order: grouped by document in rank order
	// of the best passage, ordinals ascending within a document.
	require.Len(t, answer.Citations, 3)
	assert.Equal(t, core.ID(2), answer.Citations[0].ChunkId)
	assert.Equal(t, core.ID(1), answer.Citations[1].ChunkId)
	assert.Equal(t, core.ID(3), answer.Citations[2].ChunkId)
	assert.Equal(t, "bees.md", answer.Citations[0].DocumentTitle)
	assert.Equal(t, "hives.md", answer.Citations[2].DocumentTitle)
}

func TestOrchestrator_Ask_PassesHistoryAndPassages(t *testing.T) {
	retriever := &stubRetriever{result: &core.RetrievalResult{
		Passages: []*core.Passage{
			passage(1, 10, "doc.md", 0, "relevant content", 0.9),
		},
	}}
	synthesizer := mock.NewMockSynthesizer()

	var captured *ai.SynthesisRequest
	synthesizer.SynthesizeFunc = func(ctx context.Context, req *ai.SynthesisRequest) (*ai.SynthesisResult, error) {
		captured = req
		return &ai.SynthesisResult{Answer: "ok"}, nil
	}

	o, err := NewOrchestrator(retriever, synthesizer)
	require.NoError(t, err)

	history := []ai.Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	_, err = o.Ask(context.Background(), 1, "follow-up?", history, testConfig())
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "follow-up?", captured.Question)
	assert.Equal(t, history, captured.History)
	require.Len(t, captured.Passages, 1)
	assert.Equal(t, "relevant content", captured.Passages[0].Contents)
}

func TestOrchestrator_Ask_InsufficientContext(t *testing.T) {
	// Everything retrieved sits below the context threshold.
	retriever := &stubRetriever{result: &core.RetrievalResult{
		Passages: []*core.Passage{
			passage(1, 10, "doc.md", 0, "weak match", 0.3),
			passage(2, 10, "doc.md", 1, "weaker match", 0.1),
		},
	}}
	synthesizer := mock.NewMockSynthesizer()
	synthesizer.SynthesizeFunc = func(ctx context.Context, req *ai.SynthesisRequest) (*ai.SynthesisResult, error) {
		t.Fatal("synthesizer must not be called without grounding context")
		return nil, nil
	}

	o, err := NewOrchestrator(retriever, synthesizer)
	require.NoError(t, err)

	answer, err := o.Ask(context.Background(), 1, "question?", nil, testConfig())
	require.NoError(t, err)

	assert.Equal(t, InsufficientContextAnswer, answer.Text)
	assert.False(t, answer.Grounded)
	assert.Empty(t, answer.Citations)
	assert.Zero(t, answer.TokensUsed)
}

func TestOrchestrator_Ask_EmptyRetrieval(t *testing.T) {
	retriever := &stubRetriever{result: &core.RetrievalResult{}}
	o, err := NewOrchestrator(retriever, mock.NewMockSynthesizer())
	require.NoError(t, err)

	answer, err := o.Ask(context.Background(), 1, "question?", nil, testConfig())
	require.NoError(t, err)
	assert.Equal(t, InsufficientContextAnswer, answer.Text)
	assert.False(t, answer.Grounded)
}

func TestOrchestrator_Ask_DegradedPropagates(t *testing.T) {
	retriever := &stubRetriever{result: &core.RetrievalResult{
		Passages: []*core.Passage{
			passage(1, 10, "doc.md", 0, "lexical-only match", 0.8),
		},
		Degraded: true,
	}}
	o, err := NewOrchestrator(retriever, mock.NewMockSynthesizer())
	require.NoError(t, err)

	answer, err := o.Ask(context.Background(), 1, "question?", nil, testConfig())
	require.NoError(t, err)
	assert.True(t, answer.Degraded)
	assert.True(t, answer.Grounded)
}

func TestOrchestrator_Ask_DegradedOnCannedAnswer(t *testing.T) {
	retriever := &stubRetriever{result: &core.RetrievalResult{Degraded: true}}
	o, err := NewOrchestrator(retriever, mock.NewMockSynthesizer())
	require.NoError(t, err)

	answer, err := o.Ask(context.Background(), 1, "question?", nil, testConfig())
	require.NoError(t, err)
	assert.Equal(t, InsufficientContextAnswer, answer.Text)
	assert.True(t, answer.Degraded, "canned answer still reports degraded retrieval")
}

func TestOrchestrator_Ask_ContextCap(t *testing.T) {
	// Seven strong passages with a cap of three: only the top three ranked
	// ones reach the model.
	passages := make([]*core.Passage, 7)
	for i := range passages {
		passages[i] = passage(core.ID(i+1), 10, "doc.md", i, "content", 0.9-float32(i)*0.01)
	}
	retriever := &stubRetriever{result: &core.RetrievalResult{Passages: passages}}

	synthesizer := mock.NewMockSynthesizer()
	var captured *ai.SynthesisRequest
	synthesizer.SynthesizeFunc = func(ctx context.Context, req *ai.SynthesisRequest) (*ai.SynthesisResult, error) {
		captured = req
		return &ai.SynthesisResult{Answer: "ok"}, nil
	}

	o, err := NewOrchestrator(retriever, synthesizer)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.ContextPassages = 3
	answer, err := o.Ask(context.Background(), 1, "question?", nil, cfg)
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Len(t, captured.Passages, 3)
	assert.Len(t, answer.Citations, 3)
	assert.Equal(t, core.ID(1), answer.Citations[0].ChunkId)
}

func TestOrchestrator_Ask_ExcerptTruncation(t *testing.T) {
	long := strings.Repeat("ё", 300)
	retriever := &stubRetriever{result: &core.RetrievalResult{
		Passages: []*core.Passage{
			passage(1, 10, "doc.md", 0, long, 0.9),
		},
	}}
	o, err := NewOrchestrator(retriever, mock.NewMockSynthesizer())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.ExcerptLength = 40
	answer, err := o.Ask(context.Background(), 1, "question?", nil, cfg)
	require.NoError(t, err)

	require.Len(t, answer.Citations, 1)
	excerpt := answer.Citations[0].Excerpt
	assert.Equal(t, 41, len([]rune(excerpt)), "40 runes plus the ellipsis")
	assert.True(t, strings.HasSuffix(excerpt, "…"))
}

func TestOrchestrator_Ask_EmptyQuestion(t *testing.T) {
	o, err := NewOrchestrator(&stubRetriever{}, mock.NewMockSynthesizer())
	require.NoError(t, err)

	for _, question := range []string{"", "   ", "\n\t"} {
		_, err := o.Ask(context.Background(), 1, question, nil, testConfig())
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	}
}

func TestOrchestrator_Ask_RetrievalError(t *testing.T) {
	boom := errors.New("index unavailable")
	o, err := NewOrchestrator(&stubRetriever{err: boom}, mock.NewMockSynthesizer())
	require.NoError(t, err)

	_, err = o.Ask(context.Background(), 1, "question?", nil, testConfig())
	assert.ErrorIs(t, err, boom)
}

func TestOrchestrator_Ask_SynthesisError(t *testing.T) {
	retriever := &stubRetriever{result: &core.RetrievalResult{
		Passages: []*core.Passage{
			passage(1, 10, "doc.md", 0, "content", 0.9),
		},
	}}
	synthesizer := mock.NewMockSynthesizer()
	synthesizer.SynthesizeFunc = func(ctx context.Context, req *ai.SynthesisRequest) (*ai.SynthesisResult, error) {
		return nil, ai.ErrProviderUnavailable
	}

	o, err := NewOrchestrator(retriever, synthesizer)
	require.NoError(t, err)

	_, err = o.Ask(context.Background(), 1, "question?", nil, testConfig())
	assert.ErrorIs(t, err, ai.ErrProviderUnavailable)
}

func TestOrchestrator_Ask_NilConfigUsesDefaults(t *testing.T) {
	retriever := &stubRetriever{result: &core.RetrievalResult{}}
	o, err := NewOrchestrator(retriever, mock.NewMockSynthesizer())
	require.NoError(t, err)

	answer, err := o.Ask(context.Background(), 1, "question?", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, InsufficientContextAnswer, answer.Text)
	assert.Equal(t, 1, retriever.calls)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero context passages", func(c *Config) { c.ContextPassages = 0 }},
		{"negative threshold", func(c *Config) { c.ContextThreshold = -0.1 }},
		{"negative timeout", func(c *Config) { c.SynthesisTimeout = -time.Second }},
		{"zero excerpt length", func(c *Config) { c.ExcerptLength = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	assert.NoError(t, DefaultConfig().Validate())
}
