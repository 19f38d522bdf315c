package storage

import (
	"context"

	"github.com/poiesic/docent/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn may contain transaction state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// KnowledgeBaseRepository provides operations for managing knowledge bases.
type KnowledgeBaseRepository interface {
	Repository
	// AddKnowledgeBase adds a knowledge base to storage.
	// For a record with ID=0, generates a new ID from sequence.
	// Names are unique: returns ErrDuplicateKey if the name is taken.
	// Returns the record with ID and timestamps populated.
	AddKnowledgeBase(ctx context.Context, kb *core.KnowledgeBase) (*core.KnowledgeBase, error)

	// GetKnowledgeBase retrieves a knowledge base by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetKnowledgeBase(ctx context.Context, id core.ID) (*core.KnowledgeBase, error)

	// GetKnowledgeBaseByName retrieves a knowledge base by its unique name.
	// Returns ErrNotFound if no knowledge base has the name.
	GetKnowledgeBaseByName(ctx context.Context, name string) (*core.KnowledgeBase, error)

	// ListKnowledgeBases retrieves all knowledge bases ordered by ID.
	ListKnowledgeBases(ctx context.Context) ([]*core.KnowledgeBase, error)

	// UpdateKnowledgeBase updates an existing knowledge base.
	// Updates the UpdatedAt timestamp automatically and maintains the name
	// index. Returns ErrNotFound if the record doesn't exist, ErrDuplicateKey
	// if renaming to a taken name.
	UpdateKnowledgeBase(ctx context.Context, kb *core.KnowledgeBase) (*core.KnowledgeBase, error)

	// DeleteKnowledgeBase removes a knowledge base and cascades to its
	// documents and their chunks before returning.
	// Returns ErrNotFound if the record doesn't exist.
	DeleteKnowledgeBase(ctx context.Context, id core.ID) error
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	Repository
	// AddDocument adds a document to storage.
	// For a record with ID=0, generates a new ID from sequence.
	// Returns the record with ID and timestamps populated.
	AddDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocumentsByKnowledgeBase retrieves all documents belonging to a
	// knowledge base, ordered by ID.
	ListDocumentsByKnowledgeBase(ctx context.Context, kbId core.ID) ([]*core.Document, error)

	// CountDocumentsByKnowledgeBase counts the documents of a knowledge base.
	CountDocumentsByKnowledgeBase(ctx context.Context, kbId core.ID) (int, error)

	// UpdateDocument updates an existing document.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the record doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// SetDocumentStatus records an ingestion state transition. The failReason
	// is stored verbatim for StatusFailed and cleared for any other status.
	// Returns ErrNotFound if the document doesn't exist.
	SetDocumentStatus(ctx context.Context, id core.ID, status core.DocumentStatus, failReason string) error

	// DeleteDocument removes a document and cascades to its chunks before
	// returning. Returns ErrNotFound if the record doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error
}

// ChunkRepository provides operations for managing document chunks.
type ChunkRepository interface {
	Repository
	// ReplaceChunks transactionally deletes all existing chunks of the
	// document and inserts the new ordered set, assigning IDs and timestamps.
	// The replacement is atomic: on any failure no partial state is visible.
	// Chunk ordinals must form a contiguous 0-based sequence; violations are
	// rejected with ErrInvalidQuery before any write.
	ReplaceChunks(ctx context.Context, documentId core.ID, chunks []*core.Chunk) ([]*core.Chunk, error)

	// GetChunks retrieves all chunks of a document ordered by ordinal.
	GetChunks(ctx context.Context, documentId core.ID) ([]*core.Chunk, error)

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// AttachVectorRef records a successful embedding on a chunk: the vector
	// reference plus the vector itself, so index partitions can be rebuilt
	// from storage. The only mutation allowed after chunk creation.
	// Idempotent for the same ref; attaching a different ref once one is set
	// fails with ErrVectorRefConflict. Returns ErrNotFound for unknown chunks.
	AttachVectorRef(ctx context.Context, chunkId core.ID, ref core.ID, vector []float32) error
}
