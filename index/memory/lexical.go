package memory

import (
	"context"
	"math"
	"sync"

	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
)

// LexicalIndex is an in-process TF-IDF index over tokenized chunk text.
// Like VectorIndex it keeps per-knowledge-base partitions behind their own
// RWMutexes. Document frequencies and the smoothed IDF are computed per
// partition, so relevance in one knowledge base is unaffected by another.
type LexicalIndex struct {
	mu         sync.RWMutex
	partitions map[core.ID]*lexicalPartition
}

var _ index.LexicalIndex = (*LexicalIndex)(nil)

type lexicalPartition struct {
	mu       sync.RWMutex
	chunks   map[core.ID]*indexedChunk
	df       map[string]int                  // number of chunks containing each term
	postings map[string]map[core.ID]struct{} // term -> chunk ids containing it
}

type indexedChunk struct {
	documentId core.ID
	ordinal    int
	counts     map[string]int
	total      int
}

// NewLexicalIndex creates an empty lexical index.
func NewLexicalIndex() *LexicalIndex {
	return &LexicalIndex{partitions: make(map[core.ID]*lexicalPartition)}
}

// Index inserts or replaces the entry for its chunk id.
func (l *LexicalIndex) Index(ctx context.Context, partition core.ID, entry *index.LexicalEntry) error {
	if entry == nil {
		return nil
	}

	counts := make(map[string]int)
	total := 0
	for _, token := range tokenize(entry.Contents) {
		counts[token]++
		total++
	}

	p := l.partition(partition, true)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.dropLocked(entry.ChunkId)

	p.chunks[entry.ChunkId] = &indexedChunk{
		documentId: entry.DocumentId,
		ordinal:    entry.Ordinal,
		counts:     counts,
		total:      total,
	}
	for term := range counts {
		p.df[term]++
		ids, ok := p.postings[term]
		if !ok {
			ids = make(map[core.ID]struct{})
			p.postings[term] = ids
		}
		ids[entry.ChunkId] = struct{}{}
	}
	return nil
}

// Search returns up to k hits ranked by TF-IDF relevance, the cosine between
// the sparse query and chunk weight vectors. Query terms absent from the
// partition are ignored; a query with no known terms yields an empty result.
func (l *LexicalIndex) Search(ctx context.Context, partition core.ID, queryText string, k int) ([]*index.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	p := l.partition(partition, false)
	if p == nil {
		return nil, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	numChunks := len(p.chunks)
	if numChunks == 0 {
		return nil, nil
	}

	// Smoothed IDF so terms present in every chunk still carry weight
	idf := func(term string) float64 {
		return math.Log(float64(1+numChunks)/float64(1+p.df[term])) + 1.0
	}

	queryCounts := make(map[string]int)
	queryTotal := 0
	for _, token := range tokenize(queryText) {
		if p.df[token] == 0 {
			continue
		}
		queryCounts[token]++
		queryTotal++
	}
	if queryTotal == 0 {
		return nil, nil
	}

	queryWeights := make(map[string]float64, len(queryCounts))
	var queryNorm float64
	for term, count := range queryCounts {
		w := float64(count) / float64(queryTotal) * idf(term)
		queryWeights[term] = w
		queryNorm += w * w
	}
	queryNorm = math.Sqrt(queryNorm)

	candidates := make(map[core.ID]*indexedChunk)
	for term := range queryWeights {
		for chunkId := range p.postings[term] {
			candidates[chunkId] = p.chunks[chunkId]
		}
	}

	var hits []*index.Hit
	for chunkId, chunk := range candidates {
		var dot float64
		for term, qw := range queryWeights {
			count, ok := chunk.counts[term]
			if !ok {
				continue
			}
			cw := float64(count) / float64(chunk.total) * idf(term)
			dot += qw * cw
		}

		var chunkNorm float64
		for term, count := range chunk.counts {
			cw := float64(count) / float64(chunk.total) * idf(term)
			chunkNorm += cw * cw
		}
		chunkNorm = math.Sqrt(chunkNorm)
		if chunkNorm == 0 {
			continue
		}

		hits = append(hits, &index.Hit{
			ChunkId:    chunkId,
			DocumentId: chunk.documentId,
			Ordinal:    chunk.ordinal,
			Score:      float32(dot / (queryNorm * chunkNorm)),
		})
	}

	rankHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove drops the entry for the chunk id, if present.
func (l *LexicalIndex) Remove(ctx context.Context, partition core.ID, chunkId core.ID) error {
	p := l.partition(partition, false)
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropLocked(chunkId)
	return nil
}

// DropPartition discards a whole partition.
func (l *LexicalIndex) DropPartition(ctx context.Context, partition core.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.partitions, partition)
	return nil
}

// partition returns the named partition, creating it when create is set.
func (l *LexicalIndex) partition(id core.ID, create bool) *lexicalPartition {
	l.mu.RLock()
	p, ok := l.partitions[id]
	l.mu.RUnlock()
	if ok || !create {
		return p
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok = l.partitions[id]; ok {
		return p
	}
	p = &lexicalPartition{
		chunks:   make(map[core.ID]*indexedChunk),
		df:       make(map[string]int),
		postings: make(map[string]map[core.ID]struct{}),
	}
	l.partitions[id] = p
	return p
}

// dropLocked removes a chunk and unwinds its document frequencies and
// postings. Caller holds the partition write lock.
func (p *lexicalPartition) dropLocked(chunkId core.ID) {
	chunk, ok := p.chunks[chunkId]
	if !ok {
		return
	}
	for term := range chunk.counts {
		if p.df[term] <= 1 {
			delete(p.df, term)
		} else {
			p.df[term]--
		}
		if ids := p.postings[term]; ids != nil {
			delete(ids, chunkId)
			if len(ids) == 0 {
				delete(p.postings, term)
			}
		}
	}
	delete(p.chunks, chunkId)
}
