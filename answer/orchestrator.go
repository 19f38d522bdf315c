// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/search"
)

// Retriever is the retrieval capability the orchestrator depends on.
// *search.Retriever satisfies it; tests substitute deterministic stubs.
type Retriever interface {
	Retrieve(ctx context.Context, kbId core.ID, query string, cfg *search.Config) (*core.RetrievalResult, error)
}

var _ Retriever = (*search.Retriever)(nil)

// Orchestrator runs one question-answering turn against a knowledge base.
type Orchestrator struct {
	retriever   Retriever
	synthesizer ai.Synthesizer
	logger      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates a new answer orchestrator.
func NewOrchestrator(retriever Retriever, synthesizer ai.Synthesizer, opts ...Option) (*Orchestrator, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if synthesizer == nil {
		return nil, ErrSynthesizerRequired
	}

	o := &Orchestrator{
		retriever:   retriever,
		synthesizer: synthesizer,
		logger:      slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// Ask answers one question from the knowledge base. history carries prior
// conversation turns, oldest first, and may be nil. A nil cfg uses
// DefaultConfig().
//
// When no retrieved passage clears the context threshold, the canned
// insufficient-context answer is returned without calling the language
// model. The answer's Degraded flag mirrors the retrieval envelope: true
// means only lexical search contributed because the embedding adapter was
// unavailable.
func (o *Orchestrator) Ask(ctx context.Context, kbId core.ID, question string, history []ai.Message, cfg *Config) (*core.Answer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	result, err := o.retriever.Retrieve(ctx, kbId, question, cfg.Retrieval)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	passages := selectContext(result.Passages, cfg)
	if len(passages) == 0 {
		o.logger.Debug("no passages above context threshold, skipping synthesis",
			"kb", kbId, "retrieved", len(result.Passages), "degraded", result.Degraded)
		return &core.Answer{
			Text:     InsufficientContextAnswer,
			Degraded: result.Degraded,
		}, nil
	}

	// Passages reach the model grouped by document, each document's passages
	// in ordinal order, so citations line up with what the model saw.
	grouped := (&core.RetrievalResult{Passages: passages}).ByDocument()
	ordered := make([]*core.Passage, 0, len(passages))
	for _, group := range grouped {
		ordered = append(ordered, group.Passages...)
	}

	synthesisCtx := ctx
	if cfg.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		synthesisCtx, cancel = context.WithTimeout(ctx, cfg.SynthesisTimeout)
		defer cancel()
	}

	synthesis, err := o.synthesizer.Synthesize(synthesisCtx, &ai.SynthesisRequest{
		Question: question,
		Passages: ordered,
		History:  history,
	})
	if err != nil {
		return nil, fmt.Errorf("answer synthesis failed: %w", err)
	}

	citations := make([]*core.Citation, len(ordered))
	for i, passage := range ordered {
		citations[i] = &core.Citation{
			DocumentId:    passage.DocumentId,
			DocumentTitle: passage.DocumentTitle,
			ChunkId:       passage.ChunkId,
			Ordinal:       passage.Ordinal,
			Excerpt:       excerpt(passage.Contents, cfg.ExcerptLength),
			Score:         passage.Score,
		}
	}

	o.logger.Debug("answer synthesized",
		"kb", kbId,
		"passages", len(ordered),
		"tokens", synthesis.TokensUsed,
		"degraded", result.Degraded)

	return &core.Answer{
		Text:       synthesis.Answer,
		TokensUsed: synthesis.TokensUsed,
		Grounded:   true,
		Degraded:   result.Degraded,
		Citations:  citations,
	}, nil
}

// selectContext keeps the passages strong enough to ground an answer,
// preserving rank order.
func selectContext(passages []*core.Passage, cfg *Config) []*core.Passage {
	selected := make([]*core.Passage, 0, cfg.ContextPassages)
	for _, passage := range passages {
		if passage.Score < cfg.ContextThreshold {
			continue
		}
		selected = append(selected, passage)
		if len(selected) == cfg.ContextPassages {
			break
		}
	}
	return selected
}

// excerpt truncates text for a citation, cutting on a rune boundary.
func excerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
