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


package index

import (
	"context"

	"github.com/poiesic/docent/core"
)

// VectorEntry is the vector index's record for one embedded chunk. It carries
// a copy of the chunk metadata needed for filtering and tie-breaking so a
// search never joins against the store.
type VectorEntry struct {
	ChunkId    core.ID
	DocumentId core.ID
	Ordinal    int
	ChunkTotal int // Number of chunks in the owning document
	Vector     []float32
}

// LexicalEntry is the lexical index's record for one chunk. Contents are
// tokenized at indexing time. An entry exists for every chunk, including
// chunks whose embedding failed.
type LexicalEntry struct {
	ChunkId    core.ID
	DocumentId core.ID
	Ordinal    int
	Contents   string
}

// Hit is one index search result. Scores are comparable only within the
// result set that produced them.
type Hit struct {
	ChunkId    core.ID
	DocumentId core.ID
	Ordinal    int
	Score      float32
}

// VectorIndex stores embedding vectors in per-knowledge-base partitions and
// answers cosine-similarity queries over them.
//
// The first entry upserted into a partition fixes its dimensionality; later
// entries and query vectors of a different length fail with
// ErrDimensionMismatch. Vectors are unit-normalized at upsert so similarity
// reduces to a dot product.
type VectorIndex interface {
	// Upsert inserts or replaces the entry for its chunk id.
	Upsert(ctx context.Context, partition core.ID, entry *VectorEntry) error

	// Search returns up to k hits with similarity >= scoreThreshold,
	// descending. Ties break on lower chunk ordinal, then lower document id.
	// An unknown partition yields an empty result.
	Search(ctx context.Context, partition core.ID, queryVector []float32, k int, scoreThreshold float32) ([]*Hit, error)

	// Remove drops the entry for the chunk id, if present.
	Remove(ctx context.Context, partition core.ID, chunkId core.ID) error

	// DropPartition discards a whole partition and its dimensionality.
	DropPartition(ctx context.Context, partition core.ID) error
}

// LexicalIndex stores tokenized chunk text in per-knowledge-base partitions
// and ranks chunks against a query by TF-IDF relevance.
//
// Empty and stop-word-only queries yield an empty result rather than an
// error. Tie-breaking matches VectorIndex.
type LexicalIndex interface {
	// Index inserts or replaces the entry for its chunk id.
	Index(ctx context.Context, partition core.ID, entry *LexicalEntry) error

	// Search returns up to k hits ranked by relevance, descending.
	Search(ctx context.Context, partition core.ID, queryText string, k int) ([]*Hit, error)

	// Remove drops the entry for the chunk id, if present.
	Remove(ctx context.Context, partition core.ID, chunkId core.ID) error

	// DropPartition discards a whole partition.
	DropPartition(ctx context.Context, partition core.ID) error
}
