package vectorize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docent/ai/mock"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index/memory"
	"github.com/poiesic/docent/storage"
	"github.com/poiesic/docent/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batchFixture provides persisted chunks plus the stores a vectorizer
// writes to.
type batchFixture struct {
	chunkRepo storage.ChunkRepository
	vectors   *memory.VectorIndex
	embedder  *mock.MockEmbedder
	kbId      core.ID
	docId     core.ID
	chunks    []*core.Chunk
	cleanup   func()
}

func newBatchFixture(t *testing.T, texts []string) *batchFixture {
	t.Helper()
	ctx := context.Background()

	kbRepo, docRepo, chunkRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	cleanup := func() {
		chunkRepo.Close()
		docRepo.Close()
		kbRepo.Close()
		backend.Close()
	}

	kb, err := kbRepo.AddKnowledgeBase(ctx, &core.KnowledgeBase{Name: "batch-test"})
	require.NoError(t, err)

	doc, err := docRepo.AddDocument(ctx, &core.Document{
		KnowledgeBaseId: kb.Id,
		Title:           "doc.txt",
		Contents:        "contents",
		MediaType:       "text/plain",
		Status:          core.StatusEmbedding,
	})
	require.NoError(t, err)

	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{Ordinal: i, Contents: text}
	}
	chunks, err = chunkRepo.ReplaceChunks(ctx, doc.Id, chunks)
	require.NoError(t, err)

	return &batchFixture{
		chunkRepo: chunkRepo,
		vectors:   memory.NewVectorIndex(),
		embedder:  mock.NewMockEmbedder(),
		kbId:      kb.Id,
		docId:     doc.Id,
		chunks:    chunks,
		cleanup:   cleanup,
	}
}

func (f *batchFixture) vectorizer(t *testing.T) *BatchVectorizer {
	t.Helper()
	bv, err := NewBatchVectorizer(f.chunkRepo, f.vectors, f.embedder, 2, time.Millisecond)
	require.NoError(t, err)
	return bv
}

func TestNewBatchVectorizer_Validation(t *testing.T) {
	vectors := memory.NewVectorIndex()
	embedder := mock.NewMockEmbedder()

	_, _, chunkRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	_, err = NewBatchVectorizer(nil, vectors, embedder, 3, time.Second)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, err = NewBatchVectorizer(chunkRepo, nil, embedder, 3, time.Second)
	assert.ErrorIs(t, err, ErrVectorIndexRequired)

	_, err = NewBatchVectorizer(chunkRepo, vectors, nil, 3, time.Second)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewBatchVectorizer(chunkRepo, vectors, embedder, 0, time.Second)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestBatchVectorizer_ProcessAll(t *testing.T) {
	f := newBatchFixture(t, []string{"first chunk", "second chunk", "third chunk"})
	defer f.cleanup()
	ctx := context.Background()

	bv := f.vectorizer(t)
	vectorized, err := bv.Process(ctx, f.kbId, len(f.chunks), f.chunks)
	require.NoError(t, err)
	assert.Equal(t, 3, vectorized)

	for _, chunk := range f.chunks {
		stored, err := f.chunkRepo.GetChunk(ctx, chunk.Id)
		require.NoError(t, err)
		assert.True(t, stored.HasVector(), "chunk %d should carry a vector", chunk.Ordinal)
		assert.Equal(t, core.IDFromContent(chunk.Contents), stored.VectorRef,
			"vector ref should be derived from the chunk text")

		// The stored vector must be findable: querying with it returns the
		// chunk itself as the best hit.
		hits, err := f.vectors.Search(ctx, f.kbId, stored.Vector, 1, 0)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, chunk.Id, hits[0].ChunkId)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
	}
}

func TestBatchVectorizer_SkipsAlreadyVectorized(t *testing.T) {
	f := newBatchFixture(t, []string{"alpha", "beta"})
	defer f.cleanup()
	ctx := context.Background()

	bv := f.vectorizer(t)
	vectorized, err := bv.Process(ctx, f.kbId, len(f.chunks), f.chunks)
	require.NoError(t, err)
	require.Equal(t, 2, vectorized)

	calls := f.embedder.CallCount()

	// A second pass over the same chunks counts them but embeds nothing.
	vectorized, err = bv.Process(ctx, f.kbId, len(f.chunks), f.chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, vectorized)
	assert.Equal(t, calls, f.embedder.CallCount(), "no new embedding calls expected")
}

func TestBatchVectorizer_PerChunkFallback(t *testing.T) {
	f := newBatchFixture(t, []string{"good one", "good two"})
	defer f.cleanup()
	ctx := context.Background()

	// Batch calls always fail; individual calls keep the default behavior.
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("batch endpoint down")
	}

	bv := f.vectorizer(t)
	vectorized, err := bv.Process(ctx, f.kbId, len(f.chunks), f.chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, vectorized, "per-chunk fallback should vectorize everything")
}

func TestBatchVectorizer_PartialFailure(t *testing.T) {
	f := newBatchFixture(t, []string{"healthy text", "poisoned text", "more healthy text"})
	defer f.cleanup()
	ctx := context.Background()

	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("batch endpoint down")
	}
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if text == "poisoned text" {
			return nil, errors.New("model rejected input")
		}
		return []float32{1, 0, 0}, nil
	}

	bv := f.vectorizer(t)
	vectorized, err := bv.Process(ctx, f.kbId, len(f.chunks), f.chunks)
	require.NoError(t, err, "embedding failures must not surface as errors")
	assert.Equal(t, 2, vectorized)

	stored, err := f.chunkRepo.GetChunk(ctx, f.chunks[1].Id)
	require.NoError(t, err)
	assert.False(t, stored.HasVector(), "failed chunk should stay unvectorized")
}

func TestBatchVectorizer_AllEmbeddingFails(t *testing.T) {
	f := newBatchFixture(t, []string{"one", "two"})
	defer f.cleanup()
	ctx := context.Background()

	broken := errors.New("adapter unavailable")
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, broken
	}
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, broken
	}

	bv := f.vectorizer(t)
	vectorized, err := bv.Process(ctx, f.kbId, len(f.chunks), f.chunks)
	require.NoError(t, err)
	assert.Equal(t, 0, vectorized)
}

func TestBatchVectorizer_MalformedBatchResponse(t *testing.T) {
	f := newBatchFixture(t, []string{"one", "two"})
	defer f.cleanup()
	ctx := context.Background()

	// Wrong cardinality counts as a batch failure and triggers the
	// per-chunk fallback rather than misaligned vectors.
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}

	bv := f.vectorizer(t)
	vectorized, err := bv.Process(ctx, f.kbId, len(f.chunks), f.chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, vectorized)
}

func TestBatchVectorizer_ContextCanceled(t *testing.T) {
	f := newBatchFixture(t, []string{"one"})
	defer f.cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bv := f.vectorizer(t)
	_, err := bv.Process(ctx, f.kbId, len(f.chunks), f.chunks)
	assert.ErrorIs(t, err, context.Canceled)
}
