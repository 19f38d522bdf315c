package answer

import (
	"fmt"
	"time"

	"github.com/poiesic/docent/search"
)

// InsufficientContextAnswer is the canned reply produced when retrieval finds
// no passage relevant enough to ground an answer.
const InsufficientContextAnswer = "I could not find relevant information in the knowledge base to answer this question."

// Config tunes one answer turn. Retrieval settings are embedded so callers
// can vary the whole turn per request without ambient state.
type Config struct {
	// Retrieval configures the hybrid retrieval step. Nil means
	// search.DefaultConfig().
	Retrieval *search.Config

	// ContextPassages caps how many retrieved passages reach the language
	// model.
	ContextPassages int

	// ContextThreshold drops passages below this combined score from the
	// model context. Stricter than the retrieval threshold: a passage can be
	// worth citing in search results yet too weak to ground an answer.
	ContextThreshold float32

	// SynthesisTimeout bounds the language model call. Zero means no timeout.
	SynthesisTimeout time.Duration

	// ExcerptLength caps citation excerpt length in runes.
	ExcerptLength int
}

// DefaultConfig returns the standard answer parameters.
func DefaultConfig() *Config {
	return &Config{
		Retrieval:        search.DefaultConfig(),
		ContextPassages:  5,
		ContextThreshold: 0.6,
		SynthesisTimeout: 60 * time.Second,
		ExcerptLength:    200,
	}
}

// Validate checks that the answer parameters are usable.
func (c *Config) Validate() error {
	if c.ContextPassages < 1 {
		return fmt.Errorf("%w: ContextPassages must be positive", ErrInvalidConfig)
	}
	if c.ContextThreshold < 0 {
		return fmt.Errorf("%w: ContextThreshold must be non-negative", ErrInvalidConfig)
	}
	if c.SynthesisTimeout < 0 {
		return fmt.Errorf("%w: SynthesisTimeout must be non-negative", ErrInvalidConfig)
	}
	if c.ExcerptLength < 1 {
		return fmt.Errorf("%w: ExcerptLength must be positive", ErrInvalidConfig)
	}
	if c.Retrieval != nil {
		if err := c.Retrieval.Validate(); err != nil {
			return err
		}
	}
	return nil
}
