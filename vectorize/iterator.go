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


package vectorize

import (
	"context"

	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/storage"
)

// DocumentIterator walks the documents of a knowledge base together with
// their chunks.
type DocumentIterator struct {
	documents storage.DocumentRepository
	chunks    storage.ChunkRepository
}

// NewDocumentIterator creates a new document iterator.
func NewDocumentIterator(documents storage.DocumentRepository, chunks storage.ChunkRepository) *DocumentIterator {
	return &DocumentIterator{
		documents: documents,
		chunks:    chunks,
	}
}

// ForEach calls fn for every document of the knowledge base, ordered by
// document id, with the document's chunks in ordinal order. Iteration stops
// on the first error from fn. Context cancellation is checked between
// documents.
func (it *DocumentIterator) ForEach(ctx context.Context, kbId core.ID, fn func(doc *core.Document, chunks []*core.Chunk) error) error {
	documents, err := it.documents.ListDocumentsByKnowledgeBase(ctx, kbId)
	if err != nil {
		return err
	}

	for _, doc := range documents {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunks, err := it.chunks.GetChunks(ctx, doc.Id)
		if err != nil {
			return err
		}

		if err := fn(doc, chunks); err != nil {
			return err
		}
	}

	return nil
}
