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


package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docent/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Synthesizer implements ai.Synthesizer using OpenAI-compatible chat APIs.
type Synthesizer struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// newSynthesizer is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newSynthesizer(config *ai.Config) (*Synthesizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Create OpenAI client configured for chat
	// Use "none" as token for local OpenAI-compatible services that don't require authentication
	client, err := openai.New(
		openai.WithBaseURL(config.SynthesisHost),
		openai.WithToken("none"),
		openai.WithModel(config.SynthesisModel),
	)
	if err != nil {
		return nil, err
	}

	return &Synthesizer{
		client:      client,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		logger:      slog.Default().With("component", "openai-synthesizer"),
	}, nil
}

// NewSynthesizer creates a new synthesizer using the provided configuration.
//
// Returns ai.Synthesizer interface to enforce abstraction.
func NewSynthesizer(config *ai.Config) (ai.Synthesizer, error) {
	return newSynthesizer(config)
}

// Synthesize generates an answer grounded in the request's passages.
func (s *Synthesizer) Synthesize(ctx context.Context, req *ai.SynthesisRequest) (*ai.SynthesisResult, error) {
	content := make([]llms.MessageContent, 0, len(req.History)+2)
	content = append(content, llms.MessageContent{
		Role:  llms.ChatMessageTypeSystem,
		Parts: []llms.ContentPart{llms.TextPart(synthesisSystemPrompt)},
	})

	// Prior turns sit between the system prompt and the current question
	// so the model can resolve follow-ups.
	for _, msg := range req.History {
		role := llms.ChatMessageTypeHuman
		if msg.Role == ai.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(msg.Content)},
		})
	}

	content = append(content, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(buildUserPrompt(req.Question, req.Passages))},
	})

	response, err := s.client.GenerateContent(ctx, content,
		llms.WithTemperature(s.temperature),
		llms.WithMaxTokens(s.maxTokens))
	if err != nil {
		s.logger.Error("failed to generate answer", "err", err)
		return nil, fmt.Errorf("%w: %v", ai.ErrProviderUnavailable, err)
	}

	if len(response.Choices) < 1 {
		s.logger.Error("no choices returned from model")
		return nil, fmt.Errorf("%w: no choices", ai.ErrMalformedResponse)
	}

	choice := response.Choices[0]
	answer := sanitizeAnswer(choice.Content)
	if answer == "" {
		s.logger.Error("model returned empty answer")
		return nil, fmt.Errorf("%w: empty answer", ai.ErrMalformedResponse)
	}

	result := &ai.SynthesisResult{
		Answer:     answer,
		TokensUsed: totalTokens(choice.GenerationInfo),
	}

	s.logger.Debug("synthesized answer",
		"passages", len(req.Passages),
		"answer_length", len(result.Answer),
		"tokens", result.TokensUsed)

	return result, nil
}

// totalTokens pulls the backend's reported token usage out of the generation
// info map. Servers that don't report usage yield zero.
func totalTokens(info map[string]any) int {
	v, ok := info["TotalTokens"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
