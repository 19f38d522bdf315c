package search

import (
	"fmt"
	"time"
)

// Config tunes one hybrid retrieval call.
type Config struct {
	// TopK is the maximum number of passages returned.
	TopK int

	// VectorCandidates and LexicalCandidates bound how many hits each index
	// contributes before merging.
	VectorCandidates  int
	LexicalCandidates int

	// ScoreThreshold drops merged passages whose combined score falls
	// below it. Applied after normalization and weighting.
	ScoreThreshold float32

	// VectorWeight and LexicalWeight blend the two normalized rankings.
	VectorWeight  float32
	LexicalWeight float32

	// EmbedTimeout bounds the query embedding call. Zero means no timeout.
	// On expiry retrieval degrades to lexical-only instead of failing.
	EmbedTimeout time.Duration
}

// DefaultConfig returns the standard retrieval parameters.
func DefaultConfig() *Config {
	return &Config{
		TopK:              5,
		VectorCandidates:  5,
		LexicalCandidates: 5,
		ScoreThreshold:    0.001,
		VectorWeight:      0.7,
		LexicalWeight:     0.3,
		EmbedTimeout:      15 * time.Second,
	}
}

// Validate checks that the retrieval parameters are usable.
func (c *Config) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("%w: TopK must be positive", ErrInvalidConfig)
	}
	if c.VectorCandidates < 1 || c.LexicalCandidates < 1 {
		return fmt.Errorf("%w: candidate counts must be positive", ErrInvalidConfig)
	}
	if c.VectorWeight < 0 || c.LexicalWeight < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidConfig)
	}
	if c.VectorWeight == 0 && c.LexicalWeight == 0 {
		return fmt.Errorf("%w: at least one weight must be positive", ErrInvalidConfig)
	}
	if c.ScoreThreshold < 0 {
		return fmt.Errorf("%w: ScoreThreshold must be non-negative", ErrInvalidConfig)
	}
	if c.EmbedTimeout < 0 {
		return fmt.Errorf("%w: EmbedTimeout must be non-negative", ErrInvalidConfig)
	}
	return nil
}
