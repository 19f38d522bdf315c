package docent

import (
	"context"
	"io"
	"testing"

	"github.com/poiesic/docent/ai/mock"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLibrary(t *testing.T, path string) *Library {
	t.Helper()
	lib, err := Open(path, WithProvider(mock.NewMockProvider()))
	require.NoError(t, err)
	return lib
}

func TestLibrary_OpenInMemory(t *testing.T) {
	lib := openTestLibrary(t, "")
	defer lib.Close()

	ctx := context.Background()
	kb, err := lib.CreateKnowledgeBase(ctx, "field-notes", "scratch knowledge base")
	require.NoError(t, err)
	assert.NotZero(t, kb.Id)
	assert.False(t, kb.InsertedAt.IsZero())

	kbs, err := lib.KnowledgeBaseRepository().ListKnowledgeBases(ctx)
	require.NoError(t, err)
	require.Len(t, kbs, 1)
	assert.Equal(t, "field-notes", kbs[0].Name)
}

func TestLibrary_CreateKnowledgeBase_Validation(t *testing.T) {
	lib := openTestLibrary(t, "")
	defer lib.Close()

	_, err := lib.CreateKnowledgeBase(context.Background(), "", "no name")
	assert.ErrorIs(t, err, core.ErrInvalidKnowledgeBase)
}

func TestLibrary_CreateKnowledgeBase_DuplicateName(t *testing.T) {
	lib := openTestLibrary(t, "")
	defer lib.Close()
	ctx := context.Background()

	_, err := lib.CreateKnowledgeBase(ctx, "notes", "")
	require.NoError(t, err)
	_, err = lib.CreateKnowledgeBase(ctx, "notes", "")
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestLibrary_IngestAndRetrieve(t *testing.T) {
	lib := openTestLibrary(t, "")
	defer lib.Close()
	ctx := context.Background()

	kb, err := lib.CreateKnowledgeBase(ctx, "coast", "")
	require.NoError(t, err)

	pipeline, err := lib.NewIngestionPipeline()
	require.NoError(t, err)
	defer pipeline.Release()

	result, err := pipeline.Ingest(ctx, kb.Id, "lighthouses.txt",
		"Fresnel lenses concentrated a modest flame into a beam visible for twenty miles.",
		core.DefaultChunkConfig(), nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusIndexed, result.Status)

	retriever, err := lib.NewRetriever()
	require.NoError(t, err)

	retrieved, err := retriever.Retrieve(ctx, kb.Id, "Fresnel lenses beam", nil)
	require.NoError(t, err)
	assert.False(t, retrieved.Degraded)
	require.NotEmpty(t, retrieved.Passages)
	assert.Equal(t, result.DocumentId, retrieved.Passages[0].DocumentId)
	assert.Equal(t, "lighthouses.txt", retrieved.Passages[0].DocumentTitle)
}

func TestLibrary_ReopenRebuildsIndexes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	lib := openTestLibrary(t, dir)
	kb, err := lib.CreateKnowledgeBase(ctx, "coast", "")
	require.NoError(t, err)

	pipeline, err := lib.NewIngestionPipeline()
	require.NoError(t, err)
	result, err := pipeline.Ingest(ctx, kb.Id, "tides.txt",
		"Tide pools form where rocky shorelines trap seawater as the tide retreats.",
		core.DefaultChunkConfig(), nil)
	require.NoError(t, err)
	require.Equal(t, core.StatusIndexed, result.Status)
	pipeline.Release()
	require.NoError(t, lib.Close())

	// A fresh process sees the same searchable state, both lexical and
	// vector, projected from the chunk records.
	reopened := openTestLibrary(t, dir)
	defer reopened.Close()

	retriever, err := reopened.NewRetriever()
	require.NoError(t, err)

	retrieved, err := retriever.Retrieve(ctx, kb.Id, "rocky shorelines seawater", nil)
	require.NoError(t, err)
	assert.False(t, retrieved.Degraded)
	require.NotEmpty(t, retrieved.Passages)
	assert.Equal(t, result.DocumentId, retrieved.Passages[0].DocumentId)
}

func TestLibrary_DeleteDocument(t *testing.T) {
	lib := openTestLibrary(t, "")
	defer lib.Close()
	ctx := context.Background()

	kb, err := lib.CreateKnowledgeBase(ctx, "coast", "")
	require.NoError(t, err)

	pipeline, err := lib.NewIngestionPipeline()
	require.NoError(t, err)
	defer pipeline.Release()

	keep, err := pipeline.Ingest(ctx, kb.Id, "keep.txt",
		"Keepers once lived beside the lamp year round.",
		core.DefaultChunkConfig(), nil)
	require.NoError(t, err)
	drop, err := pipeline.Ingest(ctx, kb.Id, "drop.txt",
		"Hermit crabs stratify themselves into zones.",
		core.DefaultChunkConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, lib.DeleteDocument(ctx, drop.DocumentId))

	_, err = lib.DocumentRepository().GetDocument(ctx, drop.DocumentId)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	chunks, err := lib.ChunkRepository().GetChunks(ctx, drop.DocumentId)
	require.NoError(t, err)
	assert.Empty(t, chunks, "chunks must cascade with the document")

	retriever, err := lib.NewRetriever()
	require.NoError(t, err)
	retrieved, err := retriever.Retrieve(ctx, kb.Id, "hermit crabs zones", nil)
	require.NoError(t, err)
	for _, passage := range retrieved.Passages {
		assert.NotEqual(t, drop.DocumentId, passage.DocumentId, "deleted document must not be retrievable")
	}

	// The other document is untouched.
	doc, err := lib.DocumentRepository().GetDocument(ctx, keep.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, doc.Status)
}

func TestLibrary_DeleteKnowledgeBase(t *testing.T) {
	lib := openTestLibrary(t, "")
	defer lib.Close()
	ctx := context.Background()

	kb, err := lib.CreateKnowledgeBase(ctx, "doomed", "")
	require.NoError(t, err)

	pipeline, err := lib.NewIngestionPipeline()
	require.NoError(t, err)
	defer pipeline.Release()

	result, err := pipeline.Ingest(ctx, kb.Id, "doc.txt",
		"A strong hive can store far more honey than it needs.",
		core.DefaultChunkConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, lib.DeleteKnowledgeBase(ctx, kb.Id))

	_, err = lib.KnowledgeBaseRepository().GetKnowledgeBase(ctx, kb.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = lib.DocumentRepository().GetDocument(ctx, result.DocumentId)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	retriever, err := lib.NewRetriever()
	require.NoError(t, err)
	retrieved, err := retriever.Retrieve(ctx, kb.Id, "honey hive", nil)
	require.NoError(t, err)
	assert.Empty(t, retrieved.Passages, "dropped partitions must not serve hits")
}

func TestLibrary_Answerer(t *testing.T) {
	lib := openTestLibrary(t, "")
	defer lib.Close()
	ctx := context.Background()

	kb, err := lib.CreateKnowledgeBase(ctx, "bees", "")
	require.NoError(t, err)

	pipeline, err := lib.NewIngestionPipeline()
	require.NoError(t, err)
	defer pipeline.Release()

	_, err = pipeline.Ingest(ctx, kb.Id, "dance.txt",
		"Honeybees communicate through the waggle dance that encodes bearing and distance of food.",
		core.DefaultChunkConfig(), nil)
	require.NoError(t, err)

	answerer, err := lib.NewAnswerer()
	require.NoError(t, err)

	answer, err := answerer.Ask(ctx, kb.Id, "How do honeybees communicate about food?", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Text)
	assert.False(t, answer.Degraded)
	if answer.Grounded {
		require.NotEmpty(t, answer.Citations)
		assert.Equal(t, "dance.txt", answer.Citations[0].DocumentTitle)
	}
}

func TestLibrary_NewReindexer(t *testing.T) {
	lib := openTestLibrary(t, "")
	defer lib.Close()
	ctx := context.Background()

	kb, err := lib.CreateKnowledgeBase(ctx, "coast", "")
	require.NoError(t, err)

	pipeline, err := lib.NewIngestionPipeline()
	require.NoError(t, err)
	defer pipeline.Release()

	result, err := pipeline.Ingest(ctx, kb.Id, "doc.txt",
		"Solar panels and long-lived LED lamps replaced the keepers.",
		core.DefaultChunkConfig(), nil)
	require.NoError(t, err)

	reindexer, err := lib.NewReindexer(nil, io.Discard)
	require.NoError(t, err)
	require.NoError(t, reindexer.Run(ctx, kb.Id))

	doc, err := lib.DocumentRepository().GetDocument(ctx, result.DocumentId)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, doc.Status)
	assert.True(t, doc.Vectorized())

	// Chunks were reassigned but stay searchable.
	retriever, err := lib.NewRetriever()
	require.NoError(t, err)
	retrieved, err := retriever.Retrieve(ctx, kb.Id, "solar panels lamps", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, retrieved.Passages)
}
