package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
)

// VectorIndex is an in-process vector index. Entries live in per-knowledge-base
// partitions, each guarded by its own RWMutex; there is no global lock across
// partitions.
type VectorIndex struct {
	mu         sync.RWMutex
	partitions map[core.ID]*vectorPartition
}

var _ index.VectorIndex = (*VectorIndex)(nil)

type vectorPartition struct {
	mu        sync.RWMutex
	dimension int
	entries   map[core.ID]*storedVector
}

type storedVector struct {
	documentId core.ID
	ordinal    int
	chunkTotal int
	vector     []float32 // unit-normalized
}

// NewVectorIndex creates an empty vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{partitions: make(map[core.ID]*vectorPartition)}
}

// Upsert inserts or replaces the entry for its chunk id. The first entry in a
// partition fixes the partition's dimensionality.
func (v *VectorIndex) Upsert(ctx context.Context, partition core.ID, entry *index.VectorEntry) error {
	if entry == nil || len(entry.Vector) == 0 {
		return fmt.Errorf("%w: empty vector", index.ErrDimensionMismatch)
	}

	p := v.partition(partition, true)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dimension == 0 {
		p.dimension = len(entry.Vector)
	} else if len(entry.Vector) != p.dimension {
		return fmt.Errorf("%w: got %d, partition has %d", index.ErrDimensionMismatch, len(entry.Vector), p.dimension)
	}

	p.entries[entry.ChunkId] = &storedVector{
		documentId: entry.DocumentId,
		ordinal:    entry.Ordinal,
		chunkTotal: entry.ChunkTotal,
		vector:     normalize(entry.Vector),
	}
	return nil
}

// Search returns up to k hits with cosine similarity >= scoreThreshold,
// descending.
func (v *VectorIndex) Search(ctx context.Context, partition core.ID, queryVector []float32, k int, scoreThreshold float32) ([]*index.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	p := v.partition(partition, false)
	if p == nil {
		return nil, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.entries) == 0 {
		return nil, nil
	}
	if len(queryVector) != p.dimension {
		return nil, fmt.Errorf("%w: query has %d, partition has %d", index.ErrDimensionMismatch, len(queryVector), p.dimension)
	}

	query := normalize(queryVector)

	var hits []*index.Hit
	for chunkId, stored := range p.entries {
		similarity := dotProduct(query, stored.vector)
		if similarity >= scoreThreshold {
			hits = append(hits, &index.Hit{
				ChunkId:    chunkId,
				DocumentId: stored.documentId,
				Ordinal:    stored.ordinal,
				Score:      similarity,
			})
		}
	}

	rankHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove drops the entry for the chunk id, if present.
func (v *VectorIndex) Remove(ctx context.Context, partition core.ID, chunkId core.ID) error {
	p := v.partition(partition, false)
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, chunkId)
	return nil
}

// DropPartition discards a whole partition and its dimensionality.
func (v *VectorIndex) DropPartition(ctx context.Context, partition core.ID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.partitions, partition)
	return nil
}

// partition returns the named partition, creating it when create is set.
func (v *VectorIndex) partition(id core.ID, create bool) *vectorPartition {
	v.mu.RLock()
	p, ok := v.partitions[id]
	v.mu.RUnlock()
	if ok || !create {
		return p
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if p, ok = v.partitions[id]; ok {
		return p
	}
	p = &vectorPartition{entries: make(map[core.ID]*storedVector)}
	v.partitions[id] = p
	return p
}

// rankHits sorts hits by score descending, breaking ties on lower chunk
// ordinal, then lower document id, so rankings are deterministic.
func rankHits(hits []*index.Hit) {
	slices.SortFunc(hits, func(a, b *index.Hit) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal - b.Ordinal
		}
		if a.DocumentId < b.DocumentId {
			return -1
		}
		if a.DocumentId > b.DocumentId {
			return 1
		}
		return 0
	})
}

// normalize scales a vector to unit length. Returns a new vector; a zero
// vector stays zero.
func normalize(v []float32) []float32 {
	var magnitude float32
	for _, val := range v {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}

// dotProduct calculates the dot product of two vectors.
// Assumes both vectors have the same length.
func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
