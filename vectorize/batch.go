package vectorize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
	"github.com/poiesic/docent/storage"
)

// BatchVectorizer embeds chunks and records the results on the chunk records
// and in the vector index. Safe for concurrent use; independent batches may
// be processed in parallel.
type BatchVectorizer struct {
	chunks      storage.ChunkRepository
	vectors     index.VectorIndex
	embedder    ai.Embedder
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// NewBatchVectorizer creates a new batch vectorizer.
// maxAttempts: maximum number of attempts for embedding calls
// baseDelay: base delay for exponential backoff
func NewBatchVectorizer(
	chunks storage.ChunkRepository,
	vectors index.VectorIndex,
	embedder ai.Embedder,
	maxAttempts int,
	baseDelay time.Duration,
) (*BatchVectorizer, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if maxAttempts <= 0 {
		return nil, ErrInvalidMaxAttempts
	}

	return &BatchVectorizer{
		chunks:      chunks,
		vectors:     vectors,
		embedder:    embedder,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      slog.Default().With("component", "vectorizer"),
	}, nil
}

// Process embeds the given chunks and upserts them into the knowledge base's
// vector index partition. chunkTotal is the owning document's full chunk
// count, copied into each index entry.
//
// A single batch embedding call is attempted first, with retry. If the batch
// keeps failing, each chunk is embedded individually so one poisoned input
// cannot sink the whole batch. Chunks that still fail are left without a
// vector reference; they stay searchable lexically and can be vectorized
// later. Chunks that already carry a vector reference are skipped and counted
// as vectorized.
//
// Returns the number of chunks with a vector reference after the call.
// The error is non-nil only for storage and index faults, never for
// embedding failures.
func (bv *BatchVectorizer) Process(ctx context.Context, partition core.ID, chunkTotal int, chunks []*core.Chunk) (int, error) {
	vectorized := 0
	pending := make([]*core.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.HasVector() {
			vectorized++
			continue
		}
		pending = append(pending, chunk)
	}
	if len(pending) == 0 {
		return vectorized, nil
	}

	texts := make([]string, len(pending))
	for i, chunk := range pending {
		texts[i] = chunk.Contents
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bv.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(embeddings) != len(texts) {
			return fmt.Errorf("%w: expected %d embeddings, got %d", ai.ErrMalformedResponse, len(texts), len(embeddings))
		}
		return nil
	}, bv.maxAttempts, bv.baseDelay)

	if err == nil {
		for i, chunk := range pending {
			if err := bv.commit(ctx, partition, chunkTotal, chunk, embeddings[i]); err != nil {
				return vectorized, err
			}
			vectorized++
		}
		return vectorized, nil
	}

	if ctx.Err() != nil {
		return vectorized, ctx.Err()
	}

	bv.logger.Warn("batch embedding failed, falling back to per-chunk calls",
		"chunks", len(pending), "err", err)

	for _, chunk := range pending {
		var vector []float32
		err := RetryWithBackoff(ctx, func() error {
			var err error
			vector, err = bv.embedder.EmbedText(ctx, chunk.Contents)
			return err
		}, bv.maxAttempts, bv.baseDelay)
		if err != nil {
			if ctx.Err() != nil {
				return vectorized, ctx.Err()
			}
			bv.logger.Warn("chunk embedding failed, leaving chunk unvectorized",
				"chunk", chunk.Id, "ordinal", chunk.Ordinal, "err", err)
			continue
		}
		if err := bv.commit(ctx, partition, chunkTotal, chunk, vector); err != nil {
			return vectorized, err
		}
		vectorized++
	}

	return vectorized, nil
}

// commit records one successful embedding: the vector reference and vector on
// the chunk record, then the entry in the index partition. Vectors are
// normalized to unit length first so cosine similarity reduces to a dot
// product at query time.
func (bv *BatchVectorizer) commit(ctx context.Context, partition core.ID, chunkTotal int, chunk *core.Chunk, vector []float32) error {
	normalized := NormalizeVector(vector)
	ref := refFor(chunk)

	if err := bv.chunks.AttachVectorRef(ctx, chunk.Id, ref, normalized); err != nil {
		return fmt.Errorf("failed to attach vector ref to chunk %d: %w", chunk.Id, err)
	}
	chunk.VectorRef = ref
	chunk.Vector = normalized

	err := bv.vectors.Upsert(ctx, partition, &index.VectorEntry{
		ChunkId:    chunk.Id,
		DocumentId: chunk.DocumentId,
		Ordinal:    chunk.Ordinal,
		ChunkTotal: chunkTotal,
		Vector:     normalized,
	})
	if err != nil {
		return fmt.Errorf("failed to index vector for chunk %d: %w", chunk.Id, err)
	}
	return nil
}

// refFor derives the vector reference for a chunk from its text, so retrying
// a half-committed batch re-attaches the same reference instead of
// conflicting.
func refFor(chunk *core.Chunk) core.ID {
	return core.IDFromContent(chunk.Contents)
}
