package search

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
	"github.com/poiesic/docent/storage"
)

// Retriever provides hybrid vector and lexical retrieval over a knowledge base.
type Retriever struct {
	chunkRepository    storage.ChunkRepository
	documentRepository storage.DocumentRepository
	vectorIndex        index.VectorIndex
	lexicalIndex       index.LexicalIndex
	embedder           ai.Embedder
	logger             *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(
	chunkRepository storage.ChunkRepository,
	documentRepository storage.DocumentRepository,
	vectorIndex index.VectorIndex,
	lexicalIndex index.LexicalIndex,
	embedder ai.Embedder,
	opts ...Option,
) (*Retriever, error) {
	if chunkRepository == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if documentRepository == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if vectorIndex == nil {
		return nil, ErrVectorIndexRequired
	}
	if lexicalIndex == nil {
		return nil, ErrLexicalIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		chunkRepository:    chunkRepository,
		documentRepository: documentRepository,
		vectorIndex:        vectorIndex,
		lexicalIndex:       lexicalIndex,
		embedder:           embedder,
		logger:             slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// mergedHit is a chunk's combined standing after both rankings are blended.
type mergedHit struct {
	chunkId    core.ID
	documentId core.ID
	ordinal    int
	score      float32
}

// Retrieve runs hybrid retrieval for the query against one knowledge base
// partition. A nil cfg uses DefaultConfig().
func (r *Retriever) Retrieve(ctx context.Context, kbId core.ID, query string, cfg *Config) (*core.RetrievalResult, error) {
	return r.RetrieveWithMonitor(ctx, kbId, query, cfg, nil)
}

// RetrieveWithMonitor runs hybrid retrieval with monitoring.
// The monitor receives callbacks at each stage of the retrieval process.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, kbId core.ID, query string, cfg *Config, monitor Monitor) (*core.RetrievalResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	monitor.Start(query)

	// An empty query matches nothing; not a degraded condition.
	if strings.TrimSpace(query) == "" {
		result := &core.RetrievalResult{Passages: []*core.Passage{}}
		monitor.Finish(result)
		return result, nil
	}

	// 1. Embed the query. Failure or timeout drops the vector leg and the
	//    query continues lexical-only.
	queryVector, degraded := r.embedQuery(ctx, query, cfg, monitor)
	if degraded && ctx.Err() != nil {
		// Caller cancelled, not an adapter outage.
		return nil, ctx.Err()
	}

	// 2. Vector and lexical search run concurrently and join before merging.
	var (
		wg          sync.WaitGroup
		vectorHits  []*index.Hit
		lexicalHits []*index.Hit
		vectorErr   error
		lexicalErr  error
	)
	if !degraded {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vectorHits, vectorErr = r.vectorIndex.Search(ctx, kbId, queryVector, cfg.VectorCandidates, 0)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		lexicalHits, lexicalErr = r.lexicalIndex.Search(ctx, kbId, query, cfg.LexicalCandidates)
	}()
	wg.Wait()

	// Dimension mismatches and other index faults are config errors,
	// surfaced rather than silently degraded.
	if vectorErr != nil {
		r.logger.Error("vector search failed", "kb", kbId, "err", vectorErr)
		return nil, vectorErr
	}
	if lexicalErr != nil {
		r.logger.Error("lexical search failed", "kb", kbId, "err", lexicalErr)
		return nil, lexicalErr
	}
	monitor.AfterVectorSearch(vectorHits)
	monitor.AfterLexicalSearch(lexicalHits)

	// 3-5. Normalize each ranking, blend by chunk id, rank and cut.
	ranked := mergeHits(vectorHits, lexicalHits, cfg)

	// 6. Hydrate surviving chunks into passages, in rank order.
	passages, err := r.hydrate(ctx, ranked)
	if err != nil {
		return nil, err
	}

	result := &core.RetrievalResult{Passages: passages, Degraded: degraded}
	r.logger.Debug("retrieval complete",
		"kb", kbId,
		"vector_hits", len(vectorHits),
		"lexical_hits", len(lexicalHits),
		"passages", len(passages),
		"degraded", degraded)
	monitor.Finish(result)

	return result, nil
}

// embedQuery obtains the query embedding under the configured timeout.
// Returns a nil vector and true when retrieval must continue lexical-only.
func (r *Retriever) embedQuery(ctx context.Context, query string, cfg *Config, monitor Monitor) ([]float32, bool) {
	embedCtx := ctx
	if cfg.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, cfg.EmbedTimeout)
		defer cancel()
	}

	vector, err := r.embedder.EmbedText(embedCtx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, continuing lexical-only", "err", err)
		monitor.Degraded(err)
		return nil, true
	}
	if len(vector) == 0 {
		err := errors.New("empty query embedding")
		r.logger.Warn("query embedding failed, continuing lexical-only", "err", err)
		monitor.Degraded(err)
		return nil, true
	}
	return vector, false
}

// mergeHits blends the two rankings into one, per chunk:
// in both lists the weighted sum of the normalized scores, in one list the
// normalized score scaled by that list's weight alone. The blended list is
// sorted by score descending (ties to the lower ordinal, then the lower
// document id), thresholded, and truncated to TopK.
func mergeHits(vectorHits, lexicalHits []*index.Hit, cfg *Config) []*mergedHit {
	vecNorm := normalizeScores(vectorHits)
	lexNorm := normalizeScores(lexicalHits)

	merged := make(map[core.ID]*mergedHit, len(vectorHits)+len(lexicalHits))
	for _, h := range vectorHits {
		merged[h.ChunkId] = &mergedHit{
			chunkId:    h.ChunkId,
			documentId: h.DocumentId,
			ordinal:    h.Ordinal,
			score:      cfg.VectorWeight * vecNorm[h.ChunkId],
		}
	}
	for _, h := range lexicalHits {
		if m, ok := merged[h.ChunkId]; ok {
			m.score += cfg.LexicalWeight * lexNorm[h.ChunkId]
			continue
		}
		merged[h.ChunkId] = &mergedHit{
			chunkId:    h.ChunkId,
			documentId: h.DocumentId,
			ordinal:    h.Ordinal,
			score:      cfg.LexicalWeight * lexNorm[h.ChunkId],
		}
	}

	ranked := make([]*mergedHit, 0, len(merged))
	for _, m := range merged {
		if m.score >= cfg.ScoreThreshold {
			ranked = append(ranked, m)
		}
	}
	slices.SortFunc(ranked, func(a, b *mergedHit) int {
		if a.score > b.score {
			return -1
		}
		if a.score < b.score {
			return 1
		}
		if a.ordinal != b.ordinal {
			return a.ordinal - b.ordinal
		}
		if a.documentId < b.documentId {
			return -1
		}
		if a.documentId > b.documentId {
			return 1
		}
		return 0
	})
	if len(ranked) > cfg.TopK {
		ranked = ranked[:cfg.TopK]
	}
	return ranked
}

// normalizeScores min-max normalizes hit scores into [0,1] within one result
// set. An empty set stays empty; a constant set (including a single hit)
// normalizes to 1.0.
func normalizeScores(hits []*index.Hit) map[core.ID]float32 {
	if len(hits) == 0 {
		return nil
	}

	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < lo {
			lo = h.Score
		}
		if h.Score > hi {
			hi = h.Score
		}
	}

	normalized := make(map[core.ID]float32, len(hits))
	for _, h := range hits {
		if hi == lo {
			normalized[h.ChunkId] = 1.0
		} else {
			normalized[h.ChunkId] = (h.Score - lo) / (hi - lo)
		}
	}
	return normalized
}

// hydrate loads the surviving chunks from the store and builds passages in
// rank order. A chunk deleted between index lookup and hydration is skipped.
func (r *Retriever) hydrate(ctx context.Context, ranked []*mergedHit) ([]*core.Passage, error) {
	passages := make([]*core.Passage, 0, len(ranked))
	titles := make(map[core.ID]string)

	for _, m := range ranked {
		chunk, err := r.chunkRepository.GetChunk(ctx, m.chunkId)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}

		title, ok := titles[chunk.DocumentId]
		if !ok {
			doc, err := r.documentRepository.GetDocument(ctx, chunk.DocumentId)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				// Keep the passage; the title stays empty.
			case err != nil:
				return nil, err
			default:
				title = doc.Title
			}
			titles[chunk.DocumentId] = title
		}

		passages = append(passages, &core.Passage{
			ChunkId:       chunk.Id,
			DocumentId:    chunk.DocumentId,
			DocumentTitle: title,
			Ordinal:       chunk.Ordinal,
			Contents:      chunk.Contents,
			PageNumber:    chunk.PageNumber,
			Score:         m.score,
		})
	}
	return passages, nil
}
