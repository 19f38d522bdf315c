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


package vectorize

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
	"github.com/poiesic/docent/storage"
)

// Config holds configuration for a reindexing run.
type Config struct {
	// BatchSize is the number of chunks per embedding call
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for embedding calls
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reindexer rebuilds one knowledge base's index partitions from storage,
// re-embedding every chunk. Documents keep their chunk texts, ordinals, page
// numbers, and metadata; chunk ids and vector references are reassigned.
type Reindexer struct {
	documents    storage.DocumentRepository
	chunks       storage.ChunkRepository
	vectorIndex  index.VectorIndex
	lexicalIndex index.LexicalIndex
	config       *Config
	progress     io.Writer
	vectorizer   *BatchVectorizer
	iterator     *DocumentIterator
}

// NewReindexer creates a new reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	vectorIndex index.VectorIndex,
	lexicalIndex index.LexicalIndex,
	embedder ai.Embedder,
	config *Config,
	progress io.Writer,
) (*Reindexer, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if lexicalIndex == nil {
		return nil, ErrLexicalIndexRequired
	}
	if config == nil {
		config = DefaultConfig()
	}

	vectorizer, err := NewBatchVectorizer(chunks, vectorIndex, embedder, config.MaxRetries, config.RetryDelay)
	if err != nil {
		return nil, err
	}

	return &Reindexer{
		documents:    documents,
		chunks:       chunks,
		vectorIndex:  vectorIndex,
		lexicalIndex: lexicalIndex,
		config:       config,
		progress:     progress,
		vectorizer:   vectorizer,
		iterator:     NewDocumentIterator(documents, chunks),
	}, nil
}

// Run re-embeds every chunk of the knowledge base and rebuilds both index
// partitions. Progress is reported to the configured writer. Chunks whose
// embedding keeps failing are left unvectorized and their documents marked
// partially indexed, same as during ingestion.
func (r *Reindexer) Run(ctx context.Context, kbId core.ID) error {
	documents, err := r.documents.ListDocumentsByKnowledgeBase(ctx, kbId)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	totalChunks := 0
	for _, doc := range documents {
		totalChunks += doc.ChunkCount
	}
	if totalChunks == 0 {
		fmt.Fprintf(r.progress, "No chunks found in knowledge base %d (0 documents with chunks)\n", kbId)
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d chunks across %d documents (batch size: %d)\n",
		totalChunks, len(documents), r.config.BatchSize)

	// Both partitions are rebuilt from scratch; dropping them first keeps
	// the partition contents and the chunk records in step once chunk ids
	// are reassigned.
	if err := r.vectorIndex.DropPartition(ctx, kbId); err != nil {
		return fmt.Errorf("failed to drop vector partition: %w", err)
	}
	if err := r.lexicalIndex.DropPartition(ctx, kbId); err != nil {
		return fmt.Errorf("failed to drop lexical partition: %w", err)
	}

	tracker := NewProgressTracker(r.progress, totalChunks, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, kbId, func(doc *core.Document, chunks []*core.Chunk) error {
		if len(chunks) == 0 {
			return nil
		}

		fresh, err := r.resetChunks(ctx, doc.Id, chunks)
		if err != nil {
			return err
		}

		for _, chunk := range fresh {
			err := r.lexicalIndex.Index(ctx, kbId, &index.LexicalEntry{
				ChunkId:    chunk.Id,
				DocumentId: chunk.DocumentId,
				Ordinal:    chunk.Ordinal,
				Contents:   chunk.Contents,
			})
			if err != nil {
				return fmt.Errorf("failed to index chunk %d lexically: %w", chunk.Id, err)
			}
		}

		vectorized := 0
		for start := 0; start < len(fresh); start += r.config.BatchSize {
			end := min(start+r.config.BatchSize, len(fresh))
			n, err := r.vectorizer.Process(ctx, kbId, len(fresh), fresh[start:end])
			if err != nil {
				return err
			}
			vectorized += n
			tracker.Increment(end - start)
		}

		doc.ChunkCount = len(fresh)
		doc.VectorizedCount = vectorized
		if vectorized == len(fresh) {
			doc.Status = core.StatusIndexed
		} else {
			doc.Status = core.StatusPartiallyIndexed
		}
		if _, err := r.documents.UpdateDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to update document %d: %w", doc.Id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		totalChunks, elapsed.Round(time.Second), float64(totalChunks)/elapsed.Seconds())

	return nil
}

// resetChunks replaces a document's chunks with copies carrying no vector
// state, so AttachVectorRef starts from a clean slate for the new model.
func (r *Reindexer) resetChunks(ctx context.Context, docId core.ID, chunks []*core.Chunk) ([]*core.Chunk, error) {
	fresh := make([]*core.Chunk, len(chunks))
	for i, chunk := range chunks {
		fresh[i] = &core.Chunk{
			DocumentId: docId,
			Ordinal:    chunk.Ordinal,
			Contents:   chunk.Contents,
			PageNumber: chunk.PageNumber,
			Metadata:   chunk.Metadata,
		}
	}

	fresh, err := r.chunks.ReplaceChunks(ctx, docId, fresh)
	if err != nil {
		return nil, fmt.Errorf("failed to reset chunks for document %d: %w", docId, err)
	}
	return fresh, nil
}
