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


package docent

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/docent/ai"
	"github.com/poiesic/docent/ai/openai"
	"github.com/poiesic/docent/answer"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/index"
	"github.com/poiesic/docent/index/memory"
	"github.com/poiesic/docent/ingestion"
	"github.com/poiesic/docent/search"
	"github.com/poiesic/docent/storage"
	"github.com/poiesic/docent/storage/badger"
	"github.com/poiesic/docent/vectorize"
)

// Library is the entry point to a docent knowledge store. It owns the
// storage backend, the per-knowledge-base index partitions, and the AI
// provider, and hands out the orchestrators that work on them.
//
// Chunk records are the durable source of truth; both index partitions are
// in-process projections rebuilt from storage when the library opens.
type Library struct {
	backend      *badger.Backend
	kbRepo       storage.KnowledgeBaseRepository
	docRepo      storage.DocumentRepository
	chunkRepo    storage.ChunkRepository
	vectorIndex  *memory.VectorIndex
	lexicalIndex *memory.LexicalIndex
	provider     ai.AIProvider
	logger       *slog.Logger
}

// LibraryOption configures a Library.
type LibraryOption func(*libraryOptions)

type libraryOptions struct {
	aiConfig *ai.Config
	provider ai.AIProvider
}

// WithAIConfig sets the configuration used to build the OpenAI-compatible
// provider. Ignored when WithProvider is also given.
func WithAIConfig(cfg *ai.Config) LibraryOption {
	return func(o *libraryOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider injects an AI provider instead of constructing one, letting
// tests and offline tools run without a model endpoint.
func WithProvider(provider ai.AIProvider) LibraryOption {
	return func(o *libraryOptions) {
		o.provider = provider
	}
}

// Open opens the library at filePath, creating it if needed. An empty
// filePath opens an in-memory store that vanishes on Close. Both index
// partitions are rebuilt from the persisted chunks before Open returns.
func Open(filePath string, opts ...LibraryOption) (*Library, error) {
	// Apply options
	options := &libraryOptions{
		aiConfig: ai.DefaultConfig(), // Default if not provided
	}
	for _, opt := range opts {
		opt(options)
	}

	// Open backend
	backend, err := badger.OpenBackend(filePath, filePath == "")
	if err != nil {
		return nil, err
	}

	kbRepo, err := badger.NewKnowledgeBaseRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	docRepo, err := badger.NewDocumentRepository(backend)
	if err != nil {
		kbRepo.Close()
		backend.Close()
		return nil, err
	}

	chunkRepo, err := badger.NewChunkRepository(backend)
	if err != nil {
		docRepo.Close()
		kbRepo.Close()
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			chunkRepo.Close()
			docRepo.Close()
			kbRepo.Close()
			backend.Close()
			return nil, err
		}
	}

	lib := &Library{
		backend:      backend,
		kbRepo:       kbRepo,
		docRepo:      docRepo,
		chunkRepo:    chunkRepo,
		vectorIndex:  memory.NewVectorIndex(),
		lexicalIndex: memory.NewLexicalIndex(),
		provider:     provider,
		logger:       slog.Default(),
	}

	if err := lib.rebuildIndexes(context.Background()); err != nil {
		lib.Close()
		return nil, fmt.Errorf("failed to rebuild indexes: %w", err)
	}

	return lib, nil
}

// rebuildIndexes projects every persisted chunk into the in-process index
// partitions. Chunks without a vector are indexed lexically only.
func (l *Library) rebuildIndexes(ctx context.Context) error {
	kbs, err := l.kbRepo.ListKnowledgeBases(ctx)
	if err != nil {
		return err
	}

	iterator := vectorize.NewDocumentIterator(l.docRepo, l.chunkRepo)
	chunks, vectors := 0, 0
	for _, kb := range kbs {
		err := iterator.ForEach(ctx, kb.Id, func(doc *core.Document, docChunks []*core.Chunk) error {
			for _, chunk := range docChunks {
				err := l.lexicalIndex.Index(ctx, kb.Id, &index.LexicalEntry{
					ChunkId:    chunk.Id,
					DocumentId: chunk.DocumentId,
					Ordinal:    chunk.Ordinal,
					Contents:   chunk.Contents,
				})
				if err != nil {
					return err
				}
				chunks++

				if !chunk.HasVector() {
					continue
				}
				err = l.vectorIndex.Upsert(ctx, kb.Id, &index.VectorEntry{
					ChunkId:    chunk.Id,
					DocumentId: chunk.DocumentId,
					Ordinal:    chunk.Ordinal,
					ChunkTotal: len(docChunks),
					Vector:     chunk.Vector,
				})
				if err != nil {
					return err
				}
				vectors++
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if chunks > 0 {
		l.logger.Info("indexes rebuilt", "knowledge_bases", len(kbs), "chunks", chunks, "vectors", vectors)
	}
	return nil
}

func (l *Library) Close() error {
	// Close AI provider first
	if err := l.provider.Close(); err != nil {
		l.logger.Error("error closing AI provider", "err", err)
	}

	// Close repositories
	if err := l.chunkRepo.Close(); err != nil {
		l.logger.Error("error closing chunk repository", "err", err)
		return err
	}
	if err := l.docRepo.Close(); err != nil {
		l.logger.Error("error closing document repository", "err", err)
		return err
	}
	if err := l.kbRepo.Close(); err != nil {
		l.logger.Error("error closing knowledge base repository", "err", err)
		return err
	}

	// Close backend
	if err := l.backend.Close(); err != nil {
		l.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (l *Library) KnowledgeBaseRepository() storage.KnowledgeBaseRepository {
	return l.kbRepo
}

func (l *Library) DocumentRepository() storage.DocumentRepository {
	return l.docRepo
}

func (l *Library) ChunkRepository() storage.ChunkRepository {
	return l.chunkRepo
}

// CreateKnowledgeBase validates and stores a new knowledge base.
func (l *Library) CreateKnowledgeBase(ctx context.Context, name, description string) (*core.KnowledgeBase, error) {
	kb := &core.KnowledgeBase{Name: name, Description: description}
	if err := core.ValidateKnowledgeBase(kb); err != nil {
		return nil, err
	}
	return l.kbRepo.AddKnowledgeBase(ctx, kb)
}

// DeleteKnowledgeBase removes a knowledge base, its documents and chunks,
// and both of its index partitions. The cascade completes before returning.
func (l *Library) DeleteKnowledgeBase(ctx context.Context, id core.ID) error {
	if err := l.kbRepo.DeleteKnowledgeBase(ctx, id); err != nil {
		return err
	}
	if err := l.vectorIndex.DropPartition(ctx, id); err != nil {
		return err
	}
	return l.lexicalIndex.DropPartition(ctx, id)
}

// DeleteDocument removes a document, its chunks, and their entries in both
// index partitions. The cascade completes before returning.
func (l *Library) DeleteDocument(ctx context.Context, id core.ID) error {
	doc, err := l.docRepo.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	chunks, err := l.chunkRepo.GetChunks(ctx, id)
	if err != nil {
		return err
	}

	if err := l.docRepo.DeleteDocument(ctx, id); err != nil {
		return err
	}

	// Store first, then indexes: a search racing the delete may still see an
	// index hit, but hydration drops chunks that no longer exist.
	for _, chunk := range chunks {
		if err := l.vectorIndex.Remove(ctx, doc.KnowledgeBaseId, chunk.Id); err != nil {
			return err
		}
		if err := l.lexicalIndex.Remove(ctx, doc.KnowledgeBaseId, chunk.Id); err != nil {
			return err
		}
	}
	return nil
}

func (l *Library) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(l.kbRepo, l.docRepo, l.chunkRepo, l.vectorIndex, l.lexicalIndex, l.provider, opts...)
}

func (l *Library) NewRetriever(opts ...search.Option) (*search.Retriever, error) {
	return search.NewRetriever(l.chunkRepo, l.docRepo, l.vectorIndex, l.lexicalIndex, l.provider.Embedder(), opts...)
}

// NewAnswerer builds a question-answering orchestrator backed by a fresh
// retriever.
func (l *Library) NewAnswerer(opts ...answer.Option) (*answer.Orchestrator, error) {
	retriever, err := l.NewRetriever()
	if err != nil {
		return nil, err
	}
	return answer.NewOrchestrator(retriever, l.provider.Synthesizer(), opts...)
}

// NewReindexer builds a bulk re-embedding run over one knowledge base.
func (l *Library) NewReindexer(cfg *vectorize.Config, progress io.Writer) (*vectorize.Reindexer, error) {
	return vectorize.NewReindexer(l.docRepo, l.chunkRepo, l.vectorIndex, l.lexicalIndex, l.provider.Embedder(), cfg, progress)
}
