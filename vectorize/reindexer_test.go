package vectorize

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docent/ai/mock"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
	"github.com/poiesic/docent/index/memory"
	"github.com/poiesic/docent/storage"
	"github.com/poiesic/docent/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reindexFixture struct {
	docRepo   storage.DocumentRepository
	chunkRepo storage.ChunkRepository
	vectors   *memory.VectorIndex
	lexical   *memory.LexicalIndex
	embedder  *mock.MockEmbedder
	kbId      core.ID
	docId     core.ID
	cleanup   func()
}

// newReindexFixture persists one document with three chunks, vectorizes it,
// and fills both index partitions, mirroring the state after ingestion.
func newReindexFixture(t *testing.T) *reindexFixture {
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

	kb, err := kbRepo.AddKnowledgeBase(ctx, &core.KnowledgeBase{Name: "reindex"})
	require.NoError(t, err)

	doc, err := docRepo.AddDocument(ctx, &core.Document{
		KnowledgeBaseId: kb.Id,
		Title:           "coast.txt",
		Contents:        "notes on the coast",
		MediaType:       "text/plain",
		Status:          core.StatusEmbedding,
	})
	require.NoError(t, err)

	texts := []string{
		"Lighthouses guided sailors along dangerous coastlines.",
		"Tide pools trap seawater as the tide retreats.",
		"Sea stars stratify themselves into zones.",
	}
	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{Ordinal: i, Contents: text}
	}
	chunks, err = chunkRepo.ReplaceChunks(ctx, doc.Id, chunks)
	require.NoError(t, err)

	f := &reindexFixture{
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		vectors:   memory.NewVectorIndex(),
		lexical:   memory.NewLexicalIndex(),
		embedder:  mock.NewMockEmbedder(),
		kbId:      kb.Id,
		docId:     doc.Id,
		cleanup:   cleanup,
	}

	for _, chunk := range chunks {
		require.NoError(t, f.lexical.Index(ctx, kb.Id, &index.LexicalEntry{
			ChunkId:    chunk.Id,
			DocumentId: chunk.DocumentId,
			Ordinal:    chunk.Ordinal,
			Contents:   chunk.Contents,
		}))
	}

	bv, err := NewBatchVectorizer(chunkRepo, f.vectors, f.embedder, 2, time.Millisecond)
	require.NoError(t, err)
	vectorized, err := bv.Process(ctx, kb.Id, len(chunks), chunks)
	require.NoError(t, err)
	require.Equal(t, 3, vectorized)

	doc.Status = core.StatusIndexed
	doc.ChunkCount = len(chunks)
	doc.VectorizedCount = vectorized
	_, err = docRepo.UpdateDocument(ctx, doc)
	require.NoError(t, err)

	return f
}

func (f *reindexFixture) config() *Config {
	return &Config{BatchSize: 2, ReportInterval: 1, MaxRetries: 2, RetryDelay: time.Millisecond}
}

func TestReindexer_Run(t *testing.T) {
	f := newReindexFixture(t)
	defer f.cleanup()
	ctx := context.Background()

	before, err := f.chunkRepo.GetChunks(ctx, f.docId)
	require.NoError(t, err)
	oldIds := make(map[core.ID]bool, len(before))
	for _, chunk := range before {
		oldIds[chunk.Id] = true
	}

	var progress bytes.Buffer
	r, err := NewReindexer(f.docRepo, f.chunkRepo, f.vectors, f.lexical, f.embedder, f.config(), &progress)
	require.NoError(t, err)
	require.NoError(t, r.Run(ctx, f.kbId))

	after, err := f.chunkRepo.GetChunks(ctx, f.docId)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i, chunk := range after {
		assert.Equal(t, i, chunk.Ordinal)
		assert.Equal(t, before[i].Contents, chunk.Contents, "chunk texts must survive reindexing")
		assert.False(t, oldIds[chunk.Id], "chunk ids must be reassigned")
		assert.True(t, chunk.HasVector())

		hits, err := f.vectors.Search(ctx, f.kbId, chunk.Vector, 1, 0)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, chunk.Id, hits[0].ChunkId)
	}

	doc, err := f.docRepo.GetDocument(ctx, f.docId)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, 3, doc.VectorizedCount)

	// The lexical partition serves the new chunk set only.
	hits, err := f.lexical.Search(ctx, f.kbId, "tide retreats", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, hit := range hits {
		assert.False(t, oldIds[hit.ChunkId], "stale lexical entries must be gone")
	}

	assert.Contains(t, progress.String(), "Reindex complete")
}

func TestReindexer_Run_PartialFailure(t *testing.T) {
	f := newReindexFixture(t)
	defer f.cleanup()
	ctx := context.Background()

	failing := "Tide pools trap seawater as the tide retreats."
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("batch endpoint down")
	}
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if text == failing {
			return nil, errors.New("model rejected input")
		}
		return []float32{0, 1, 0}, nil
	}

	var progress bytes.Buffer
	r, err := NewReindexer(f.docRepo, f.chunkRepo, f.vectors, f.lexical, f.embedder, f.config(), &progress)
	require.NoError(t, err)
	require.NoError(t, r.Run(ctx, f.kbId))

	doc, err := f.docRepo.GetDocument(ctx, f.docId)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPartiallyIndexed, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, 2, doc.VectorizedCount)

	// The failed chunk is still keyword-searchable.
	hits, err := f.lexical.Search(ctx, f.kbId, "tide retreats", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestReindexer_Run_EmptyKnowledgeBase(t *testing.T) {
	kbRepo, docRepo, chunkRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	kb, err := kbRepo.AddKnowledgeBase(ctx, &core.KnowledgeBase{Name: "empty"})
	require.NoError(t, err)

	var progress bytes.Buffer
	r, err := NewReindexer(docRepo, chunkRepo, memory.NewVectorIndex(), memory.NewLexicalIndex(),
		mock.NewMockEmbedder(), nil, &progress)
	require.NoError(t, err)
	require.NoError(t, r.Run(ctx, kb.Id))

	assert.Contains(t, progress.String(), "No chunks found")
}

func TestNewReindexer_Validation(t *testing.T) {
	_, docRepo, chunkRepo, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	vectors := memory.NewVectorIndex()
	lexical := memory.NewLexicalIndex()
	embedder := mock.NewMockEmbedder()

	_, err = NewReindexer(nil, chunkRepo, vectors, lexical, embedder, nil, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)

	_, err = NewReindexer(docRepo, chunkRepo, vectors, nil, embedder, nil, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrLexicalIndexRequired)

	_, err = NewReindexer(docRepo, nil, vectors, lexical, embedder, nil, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)
}
