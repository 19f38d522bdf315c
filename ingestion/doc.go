// Package ingestion orchestrates turning a document into searchable chunks.
//
// The Pipeline type runs the ingestion state machine for one document:
//   - Splitting the text into overlapping chunks
//   - Persisting the chunk set atomically
//   - Indexing every chunk lexically
//   - Embedding chunks and upserting them into the vector index
//
// Embedding fans out across a worker pool in bounded batches and fans back
// in before the document reaches a terminal status. Partial embedding
// failures do not fail the document: unvectorized chunks stay searchable
// lexically and the document is reported as partially indexed. Independent
// documents may be ingested concurrently from separate goroutines.
package ingestion
