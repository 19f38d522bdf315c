package memory

import (
	"context"
	"testing"

	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndex_UpsertAndSearch(t *testing.T) {
	idx := NewVectorIndex()
	ctx := context.Background()
	partition := core.ID(1)

	entries := []*index.VectorEntry{
		{ChunkId: 1, DocumentId: 10, Ordinal: 0, ChunkTotal: 3, Vector: []float32{1.0, 0.0, 0.0}},
		{ChunkId: 2, DocumentId: 10, Ordinal: 1, ChunkTotal: 3, Vector: []float32{0.9, 0.1, 0.0}},
		{ChunkId: 3, DocumentId: 10, Ordinal: 2, ChunkTotal: 3, Vector: []float32{0.0, 0.0, 1.0}},
	}
	for _, entry := range entries {
		require.NoError(t, idx.Upsert(ctx, partition, entry))
	}

	hits, err := idx.Search(ctx, partition, []float32{1.0, 0.0, 0.0}, 10, 0.8)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// Most similar first
	assert.Equal(t, core.ID(1), hits[0].ChunkId)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
	assert.Equal(t, core.ID(2), hits[1].ChunkId)
	assert.Greater(t, hits[0].Score, hits[1].Score)

	// Hit metadata carried from the entry
	assert.Equal(t, core.ID(10), hits[0].DocumentId)
	assert.Equal(t, 0, hits[0].Ordinal)
}

func TestVectorIndex_LimitAndThreshold(t *testing.T) {
	idx := NewVectorIndex()
	ctx := context.Background()
	partition := core.ID(1)

	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 1, DocumentId: 1, Ordinal: 0, Vector: []float32{1.0, 0.0}}))
	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 2, DocumentId: 1, Ordinal: 1, Vector: []float32{0.7, 0.3}}))
	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 3, DocumentId: 1, Ordinal: 2, Vector: []float32{0.0, 1.0}}))

	// k limits the result set
	hits, err := idx.Search(ctx, partition, []float32{1.0, 0.0}, 1, 0.0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, core.ID(1), hits[0].ChunkId)

	// Threshold drops dissimilar entries
	hits, err = idx.Search(ctx, partition, []float32{1.0, 0.0}, 10, 0.5)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	// Zero k yields an empty result
	hits, err = idx.Search(ctx, partition, []float32{1.0, 0.0}, 0, 0.0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	idx := NewVectorIndex()
	ctx := context.Background()
	partition := core.ID(1)

	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 1, DocumentId: 1, Ordinal: 0, Vector: []float32{1.0, 0.0, 0.0}}))

	// Later upserts must match the partition's dimensionality
	err := idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 2, DocumentId: 1, Ordinal: 1, Vector: []float32{1.0, 0.0}})
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)

	// So must query vectors
	_, err = idx.Search(ctx, partition, []float32{1.0, 0.0}, 10, 0.0)
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)

	// Empty vectors are rejected outright
	err = idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 3, DocumentId: 1, Ordinal: 2})
	assert.ErrorIs(t, err, index.ErrDimensionMismatch)

	// Dropping the partition resets its dimensionality
	require.NoError(t, idx.DropPartition(ctx, partition))
	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 2, DocumentId: 1, Ordinal: 1, Vector: []float32{1.0, 0.0}}))
}

func TestVectorIndex_UnknownPartition(t *testing.T) {
	idx := NewVectorIndex()
	ctx := context.Background()

	hits, err := idx.Search(ctx, core.ID(42), []float32{1.0, 0.0}, 10, 0.0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Remove and drop on unknown partitions are no-ops
	assert.NoError(t, idx.Remove(ctx, core.ID(42), core.ID(1)))
	assert.NoError(t, idx.DropPartition(ctx, core.ID(42)))
}

func TestVectorIndex_UpsertReplaces(t *testing.T) {
	idx := NewVectorIndex()
	ctx := context.Background()
	partition := core.ID(1)

	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 1, DocumentId: 1, Ordinal: 0, Vector: []float32{1.0, 0.0}}))
	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 1, DocumentId: 1, Ordinal: 0, Vector: []float32{0.0, 1.0}}))

	hits, err := idx.Search(ctx, partition, []float32{1.0, 0.0}, 10, 0.5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(ctx, partition, []float32{0.0, 1.0}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, core.ID(1), hits[0].ChunkId)
}

func TestVectorIndex_Remove(t *testing.T) {
	idx := NewVectorIndex()
	ctx := context.Background()
	partition := core.ID(1)

	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 1, DocumentId: 1, Ordinal: 0, Vector: []float32{1.0, 0.0}}))
	require.NoError(t, idx.Remove(ctx, partition, core.ID(1)))

	hits, err := idx.Search(ctx, partition, []float32{1.0, 0.0}, 10, 0.0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// Removing an absent chunk is a no-op
	assert.NoError(t, idx.Remove(ctx, partition, core.ID(99)))
}

func TestVectorIndex_TieBreaking(t *testing.T) {
	idx := NewVectorIndex()
	ctx := context.Background()
	partition := core.ID(1)

	// Identical vectors, distinct positions
	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 7, DocumentId: 2, Ordinal: 1, Vector: []float32{1.0, 0.0}}))
	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 8, DocumentId: 1, Ordinal: 0, Vector: []float32{1.0, 0.0}}))
	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 9, DocumentId: 3, Ordinal: 0, Vector: []float32{1.0, 0.0}}))

	hits, err := idx.Search(ctx, partition, []float32{1.0, 0.0}, 10, 0.0)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// Lower ordinal wins, then lower document id
	assert.Equal(t, core.ID(8), hits[0].ChunkId)
	assert.Equal(t, core.ID(9), hits[1].ChunkId)
	assert.Equal(t, core.ID(7), hits[2].ChunkId)

	// Repeated searches are deterministic
	for i := 0; i < 5; i++ {
		again, err := idx.Search(ctx, partition, []float32{1.0, 0.0}, 10, 0.0)
		require.NoError(t, err)
		require.Len(t, again, 3)
		for j := range hits {
			assert.Equal(t, hits[j].ChunkId, again[j].ChunkId)
		}
	}
}

func TestVectorIndex_PartitionIsolation(t *testing.T) {
	idx := NewVectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, core.ID(1), &index.VectorEntry{ChunkId: 1, DocumentId: 1, Ordinal: 0, Vector: []float32{1.0, 0.0}}))
	require.NoError(t, idx.Upsert(ctx, core.ID(2), &index.VectorEntry{ChunkId: 2, DocumentId: 2, Ordinal: 0, Vector: []float32{1.0, 0.0}}))

	hits, err := idx.Search(ctx, core.ID(1), []float32{1.0, 0.0}, 10, 0.0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, core.ID(1), hits[0].ChunkId)

	// Partitions may carry different dimensionalities
	require.NoError(t, idx.Upsert(ctx, core.ID(3), &index.VectorEntry{ChunkId: 3, DocumentId: 3, Ordinal: 0, Vector: []float32{1.0, 0.0, 0.0, 0.0}}))
}

func TestVectorIndex_NormalizesAtUpsert(t *testing.T) {
	idx := NewVectorIndex()
	ctx := context.Background()
	partition := core.ID(1)

	// Same direction, different magnitudes: identical similarity
	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 1, DocumentId: 1, Ordinal: 0, Vector: []float32{10.0, 0.0}}))
	require.NoError(t, idx.Upsert(ctx, partition, &index.VectorEntry{ChunkId: 2, DocumentId: 1, Ordinal: 1, Vector: []float32{0.001, 0.0}}))

	hits, err := idx.Search(ctx, partition, []float32{5.0, 0.0}, 10, 0.0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
	assert.InDelta(t, 1.0, hits[1].Score, 1e-4)
}
