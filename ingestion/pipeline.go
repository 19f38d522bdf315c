package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/chunker"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
	"github.com/poiesic/docent/storage"
	"github.com/poiesic/docent/vectorize"
)

// Pipeline orchestrates the ingestion of documents into a knowledge base.
// It manages chunking, persistence, lexical indexing, and concurrent
// embedding of chunks.
type Pipeline struct {
	knowledgeBases storage.KnowledgeBaseRepository
	documents      storage.DocumentRepository
	chunks         storage.ChunkRepository
	vectorIndex    index.VectorIndex
	lexicalIndex   index.LexicalIndex
	vectorizer     *vectorize.BatchVectorizer
	embedPool      *ants.Pool
	embedBatchSize int
	maxAttempts    int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.embedPool != nil {
			p.embedPool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embedPool = pool
		return nil
	}
}

// WithEmbedBatchSize sets how many chunks go into one embedding call.
// Default is 32.
func WithEmbedBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.embedBatchSize = size
		return nil
	}
}

// WithRetryPolicy sets the retry budget for embedding calls.
// Default is 3 attempts with a 1 second base delay.
func WithRetryPolicy(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts < 1 {
			return vectorize.ErrInvalidMaxAttempts
		}
		p.maxAttempts = maxAttempts
		p.retryBaseDelay = baseDelay
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	knowledgeBases storage.KnowledgeBaseRepository,
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	vectorIndex index.VectorIndex,
	lexicalIndex index.LexicalIndex,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if knowledgeBases == nil {
		return nil, ErrKnowledgeBaseRepositoryRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if vectorIndex == nil {
		return nil, ErrVectorIndexRequired
	}
	if lexicalIndex == nil {
		return nil, ErrLexicalIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	// Create pipeline with defaults
	p := &Pipeline{
		knowledgeBases: knowledgeBases,
		documents:      documents,
		chunks:         chunks,
		vectorIndex:    vectorIndex,
		lexicalIndex:   lexicalIndex,
		embedPool:      pool,
		embedBatchSize: 32,
		maxAttempts:    3,
		retryBaseDelay: 1 * time.Second,
		logger:         slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	// Create the vectorizer after options are applied so it gets the final
	// retry policy
	vectorizer, err := vectorize.NewBatchVectorizer(chunks, vectorIndex, provider.Embedder(), p.maxAttempts, p.retryBaseDelay)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.vectorizer = vectorizer

	return p, nil
}

// IngestOptions holds optional parameters for ingestion.
type IngestOptions struct {
	ContentPath string            // Original file reference, if any
	MediaType   string            // Defaults to "text/plain"
	PageCount   int               // Source page count, 0 when unknown
	Metadata    map[string]string // Optional metadata copied onto every chunk
}

// Result reports the terminal state of one ingestion or rechunk run.
type Result struct {
	DocumentId      core.ID
	ChunkCount      int
	VectorizedCount int
	Status          core.DocumentStatus
}

// Ingest runs the full ingestion state machine for one document and blocks
// until the document reaches a terminal status.
//
// The text must already be extracted from its source format; cfg controls
// chunking. Validation failures and empty text are rejected before any
// record, vector, or lexical entry is created. A storage failure after the
// document record exists marks the document failed and returns the error.
// Embedding failures never fail the run: the result reports how many chunks
// were vectorized and the document status reflects it.
func (p *Pipeline) Ingest(ctx context.Context, kbId core.ID, title, text string, cfg core.ChunkConfig, opts *IngestOptions) (*Result, error) {
	if opts == nil {
		opts = &IngestOptions{}
	}

	if _, err := p.knowledgeBases.GetKnowledgeBase(ctx, kbId); err != nil {
		return nil, fmt.Errorf("knowledge base %d: %w", kbId, err)
	}

	// Split before creating any record so empty documents and bad configs
	// leave no trace.
	pieces, err := chunker.Split(text, cfg)
	if err != nil {
		return nil, err
	}

	mediaType := opts.MediaType
	if mediaType == "" {
		mediaType = "text/plain"
	}

	doc := &core.Document{
		KnowledgeBaseId: kbId,
		Title:           title,
		Contents:        text,
		ContentPath:     opts.ContentPath,
		MediaType:       mediaType,
		SizeBytes:       int64(len(text)),
		PageCount:       opts.PageCount,
		Status:          core.StatusUploaded,
	}
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	doc, err = p.documents.AddDocument(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to add document: %w", err)
	}

	return p.runStages(ctx, doc, pieces, opts.Metadata)
}

// Rechunk restarts ingestion at the chunking stage for an existing document,
// discarding all prior chunk, vector, and lexical state. The document's
// stored text is re-split with the given config.
func (p *Pipeline) Rechunk(ctx context.Context, documentId core.ID, cfg core.ChunkConfig) (*Result, error) {
	doc, err := p.documents.GetDocument(ctx, documentId)
	if err != nil {
		return nil, err
	}

	pieces, err := chunker.Split(doc.Contents, cfg)
	if err != nil {
		return nil, err
	}

	// Drop the prior chunk set from both partitions; the store side is
	// replaced atomically inside runStages.
	old, err := p.chunks.GetChunks(ctx, documentId)
	if err != nil {
		return nil, err
	}
	for _, chunk := range old {
		if err := p.vectorIndex.Remove(ctx, doc.KnowledgeBaseId, chunk.Id); err != nil {
			return nil, err
		}
		if err := p.lexicalIndex.Remove(ctx, doc.KnowledgeBaseId, chunk.Id); err != nil {
			return nil, err
		}
	}

	var metadata map[string]string
	if len(old) > 0 {
		metadata = old[0].Metadata
	}

	return p.runStages(ctx, doc, pieces, metadata)
}

// runStages drives a document from Chunking to a terminal status.
func (p *Pipeline) runStages(ctx context.Context, doc *core.Document, pieces []string, metadata map[string]string) (*Result, error) {
	if err := p.setStatus(ctx, doc.Id, core.StatusChunking, ""); err != nil {
		return nil, err
	}

	chunks := make([]*core.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &core.Chunk{
			DocumentId: doc.Id,
			Ordinal:    i,
			Contents:   piece,
			Metadata:   metadata,
		}
	}

	chunks, err := p.chunks.ReplaceChunks(ctx, doc.Id, chunks)
	if err != nil {
		p.fail(ctx, doc.Id, fmt.Sprintf("chunk persistence failed: %v", err))
		return nil, fmt.Errorf("failed to persist chunks: %w", err)
	}

	if err := p.setStatus(ctx, doc.Id, core.StatusEmbedding, ""); err != nil {
		return nil, err
	}

	// Every chunk is indexed lexically before embedding starts, so the
	// document is keyword-searchable even if the embedding adapter is down.
	for _, chunk := range chunks {
		err := p.lexicalIndex.Index(ctx, doc.KnowledgeBaseId, &index.LexicalEntry{
			ChunkId:    chunk.Id,
			DocumentId: chunk.DocumentId,
			Ordinal:    chunk.Ordinal,
			Contents:   chunk.Contents,
		})
		if err != nil {
			p.fail(ctx, doc.Id, fmt.Sprintf("lexical indexing failed: %v", err))
			return nil, fmt.Errorf("failed to index chunk %d lexically: %w", chunk.Id, err)
		}
	}

	vectorized, err := p.embedChunks(ctx, doc.KnowledgeBaseId, chunks)
	if err != nil {
		p.fail(ctx, doc.Id, fmt.Sprintf("embedding stage failed: %v", err))
		return nil, err
	}

	doc.ChunkCount = len(chunks)
	doc.VectorizedCount = vectorized
	if vectorized == len(chunks) {
		doc.Status = core.StatusIndexed
	} else {
		doc.Status = core.StatusPartiallyIndexed
	}
	doc.FailReason = ""

	if _, err := p.documents.UpdateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	p.logger.Info("document ingested",
		"document", doc.Id,
		"kb", doc.KnowledgeBaseId,
		"chunks", doc.ChunkCount,
		"vectorized", doc.VectorizedCount,
		"status", doc.Status.String())

	return &Result{
		DocumentId:      doc.Id,
		ChunkCount:      doc.ChunkCount,
		VectorizedCount: doc.VectorizedCount,
		Status:          doc.Status,
	}, nil
}

// embedChunks fans chunk batches out across the worker pool and joins before
// returning. The returned error reflects storage or index faults only;
// embedding failures just lower the vectorized count.
func (p *Pipeline) embedChunks(ctx context.Context, kbId core.ID, chunks []*core.Chunk) (int, error) {
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		vectorized int
		firstErr   error
	)

	total := len(chunks)
	for start := 0; start < total; start += p.embedBatchSize {
		end := min(start+p.embedBatchSize, total)
		batch := chunks[start:end]

		wg.Add(1)
		task := func() {
			defer wg.Done()
			n, err := p.vectorizer.Process(ctx, kbId, total, batch)
			mu.Lock()
			defer mu.Unlock()
			vectorized += n
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := p.embedPool.Submit(task); err != nil {
			// Pool exhausted or released; run in the caller instead.
			task()
		}
	}
	wg.Wait()

	return vectorized, firstErr
}

// setStatus records a state transition.
func (p *Pipeline) setStatus(ctx context.Context, docId core.ID, status core.DocumentStatus, reason string) error {
	if err := p.documents.SetDocumentStatus(ctx, docId, status, reason); err != nil {
		return fmt.Errorf("failed to set document %d status to %s: %w", docId, status, err)
	}
	return nil
}

// fail marks the document failed, keeping the original error as the reason.
// Best effort: a second storage fault here is only logged.
func (p *Pipeline) fail(ctx context.Context, docId core.ID, reason string) {
	if err := p.documents.SetDocumentStatus(context.WithoutCancel(ctx), docId, core.StatusFailed, reason); err != nil {
		p.logger.Error("error marking document failed", "document", docId, "err", err)
	}
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embedPool != nil {
		p.embedPool.Release()
	}
}
