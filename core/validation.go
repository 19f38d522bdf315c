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


package core

import (
	"fmt"
	"unicode/utf8"
)

// ValidateKnowledgeBase validates a KnowledgeBase according to domain rules.
//
// Validation rules:
//   - Name must not be empty
//
// NOT validated:
//   - Description (optional)
//   - ID (0 is valid from database sequences)
func ValidateKnowledgeBase(kb *KnowledgeBase) error {
	if kb == nil {
		return fmt.Errorf("%w: knowledge base is nil", ErrInvalidKnowledgeBase)
	}

	if kb.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidKnowledgeBase, ErrEmptyName)
	}

	return nil
}

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - KnowledgeBaseId must be set
//   - Title must not be empty
//   - Contents must be valid UTF-8 (the core only accepts text already
//     extracted from its source format)
//   - Status must be a known DocumentStatus
//
// NOT validated (populated during ingestion):
//   - ChunkCount / VectorizedCount
//   - ID (0 is valid from database sequences)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.KnowledgeBaseId == 0 {
		return fmt.Errorf("%w: knowledge base id is not set", ErrInvalidDocument)
	}

	if doc.Title == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyTitle)
	}

	if !utf8.ValidString(doc.Contents) {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrUnsupportedFormat)
	}

	if err := ValidateDocumentStatus(doc.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - DocumentId must be set
//   - Ordinal must not be negative
//   - Contents must not be empty
//
// NOT validated (populated during embedding):
//   - VectorRef / Vector
//   - ID (0 is valid from database sequences)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.DocumentId == 0 {
		return fmt.Errorf("%w: document id is not set", ErrInvalidChunk)
	}

	if chunk.Ordinal < 0 {
		return fmt.Errorf("%w: ordinal %d is negative", ErrInvalidChunk, chunk.Ordinal)
	}

	if chunk.Contents == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	return nil
}

// ValidateChunkConfig validates chunking parameters.
//
// Validation rules:
//   - Size must be positive
//   - Overlap must be non-negative and strictly smaller than Size
func ValidateChunkConfig(cfg ChunkConfig) error {
	if cfg.Size <= 0 {
		return fmt.Errorf("%w: size %d is not positive", ErrInvalidChunkConfig, cfg.Size)
	}

	if cfg.Overlap < 0 {
		return fmt.Errorf("%w: overlap %d is negative", ErrInvalidChunkConfig, cfg.Overlap)
	}

	if cfg.Overlap >= cfg.Size {
		return fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidChunkConfig, cfg.Overlap, cfg.Size)
	}

	return nil
}

// ValidateDocumentStatus validates that a DocumentStatus has a known value.
func ValidateDocumentStatus(status DocumentStatus) error {
	if status < StatusUploaded || status > StatusFailed {
		return fmt.Errorf("%w: value %d", ErrInvalidStatus, status)
	}
	return nil
}
