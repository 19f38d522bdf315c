package core

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// DocumentStatus tracks a document through the ingestion state machine.
type DocumentStatus int

const (
	// StatusUploaded means the document record exists but chunking has not started.
	StatusUploaded DocumentStatus = iota + 1
	// StatusChunking means the document text is being split into chunks.
	StatusChunking
	// StatusEmbedding means chunks are persisted and embedding is in progress.
	StatusEmbedding
	// StatusIndexed means every chunk carries a vector reference (terminal success).
	StatusIndexed
	// StatusPartiallyIndexed means chunking succeeded but one or more chunks have
	// no vector reference. Not an error state: the document stays searchable
	// lexically and can be re-vectorized later.
	StatusPartiallyIndexed
	// StatusFailed means ingestion stopped on a store or chunking fault
	// (terminal failure, reason in Document.FailReason).
	StatusFailed
)

// String returns the status name used in logs and CLI output.
func (s DocumentStatus) String() string {
	switch s {
	case StatusUploaded:
		return "uploaded"
	case StatusChunking:
		return "chunking"
	case StatusEmbedding:
		return "embedding"
	case StatusIndexed:
		return "indexed"
	case StatusPartiallyIndexed:
		return "partially_indexed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is an end state of the ingestion state machine.
func (s DocumentStatus) Terminal() bool {
	return s == StatusIndexed || s == StatusPartiallyIndexed || s == StatusFailed
}

// KnowledgeBase groups documents into one searchable corpus. Each knowledge
// base owns a matching partition in the vector and lexical indices.
type KnowledgeBase struct {
	Id          ID
	Name        string
	Description string
	InsertedAt  time.Time // When the record was inserted into the database
	UpdatedAt   time.Time // When the record was last updated
}

// Document is one ingested text belonging to a knowledge base.
// It is created on upload and mutated as chunking and embedding progress.
type Document struct {
	Id              ID
	KnowledgeBaseId ID
	Title           string
	Contents        string // Extracted text; the source for chunking and re-chunking
	ContentPath     string // Original file reference, empty when ingested directly
	MediaType       string
	SizeBytes       int64
	PageCount       int // 0 when unknown
	Status          DocumentStatus
	FailReason      string // Populated when Status is StatusFailed
	ChunkCount      int
	VectorizedCount int
	InsertedAt      time.Time
	UpdatedAt       time.Time
}

// Vectorized reports whether every chunk of the document has a vector
// reference. False for documents with no chunks.
func (d *Document) Vectorized() bool {
	return d.ChunkCount > 0 && d.VectorizedCount == d.ChunkCount
}

// Chunk is a contiguous slice of a document's text, the unit of embedding
// and retrieval. Immutable once created except for the vector fields and
// metadata; re-chunking a document replaces its whole chunk set.
type Chunk struct {
	Id         ID
	DocumentId ID
	Ordinal    int    // 0-based position within the document, contiguous per document
	Contents   string
	PageNumber int               // 1-based source page, 0 when not applicable
	VectorRef  ID                // 0 until embedding succeeds
	Vector     []float32         // Embedding vector (populated once embedding succeeds)
	Metadata   map[string]string // Optional metadata (e.g., "source", "section")
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// HasVector reports whether the chunk carries a vector reference.
func (c *Chunk) HasVector() bool {
	return c.VectorRef != 0
}

// ChunkConfig controls how document text is split.
type ChunkConfig struct {
	Size    int // Maximum chunk length in runes
	Overlap int // Runes carried over between consecutive chunks
}

// DefaultChunkConfig returns the standard chunking parameters.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{Size: 1000, Overlap: 200}
}

// Passage is a retrieved chunk hydrated with its document context and the
// combined relevance score from hybrid retrieval.
type Passage struct {
	ChunkId       ID
	DocumentId    ID
	DocumentTitle string
	Ordinal       int
	Contents      string
	PageNumber    int
	Score         float32
}

// DocumentPassages groups the passages retrieved from one document,
// ordered by chunk ordinal.
type DocumentPassages struct {
	DocumentId    ID
	DocumentTitle string
	Passages      []*Passage
}

// RetrievalResult is the envelope returned by hybrid retrieval. Passages are
// in final rank order. Degraded is set when the embedding adapter was
// unavailable and only lexical results were considered.
type RetrievalResult struct {
	Passages []*Passage
	Degraded bool
}

// ByDocument groups the result's passages by source document for citation.
// Documents appear in rank order of their best passage; passages within one
// document are reordered by ordinal.
func (r *RetrievalResult) ByDocument() []*DocumentPassages {
	var groups []*DocumentPassages
	byDoc := make(map[ID]*DocumentPassages)
	for _, passage := range r.Passages {
		group, ok := byDoc[passage.DocumentId]
		if !ok {
			group = &DocumentPassages{
				DocumentId:    passage.DocumentId,
				DocumentTitle: passage.DocumentTitle,
			}
			byDoc[passage.DocumentId] = group
			groups = append(groups, group)
		}
		group.Passages = append(group.Passages, passage)
	}
	for _, group := range groups {
		sort.Slice(group.Passages, func(i, j int) bool {
			return group.Passages[i].Ordinal < group.Passages[j].Ordinal
		})
	}
	return groups
}

// Citation points an answer back at a passage that grounded it.
type Citation struct {
	DocumentId    ID
	DocumentTitle string
	ChunkId       ID
	Ordinal       int
	Excerpt       string
	Score         float32
}

// Answer is one synthesized chat turn. Grounded is false when the canned
// insufficient-context reply was produced without calling the language model.
type Answer struct {
	Text       string
	TokensUsed int
	Grounded   bool
	Degraded   bool
	Citations  []*Citation
}
