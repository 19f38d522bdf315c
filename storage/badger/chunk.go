package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	idSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}

	return &ChunkRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// ReplaceChunks atomically swaps a document's chunk set for a new one.
// All prior chunks are deleted and the new ordered set inserted in a single
// transaction; nothing partial ever becomes visible.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentId core.ID, chunks []*core.Chunk) ([]*core.Chunk, error) {
	// Ordinals must form a contiguous 0-based sequence
	for i, chunk := range chunks {
		if chunk.Ordinal != i {
			return nil, fmt.Errorf("%w: chunk %d has ordinal %d", storage.ErrInvalidQuery, i, chunk.Ordinal)
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := deleteChunksForDocument(tx, documentId); err != nil {
			return err
		}

		for _, chunk := range chunks {
			// Always generate new ID from sequence
			nextID, err := r.idSeq.Next()
			if err != nil {
				return err
			}
			// BadgerDB sequences can return 0 on first call, so we skip it
			if nextID == 0 {
				nextID, err = r.idSeq.Next()
				if err != nil {
					return err
				}
			}
			chunk.Id = core.ID(nextID)
			chunk.DocumentId = documentId

			chunk.InsertedAt = time.Now().UTC().Truncate(time.Microsecond)
			chunk.UpdatedAt = chunk.InsertedAt

			// Store primary record
			key := makeChunkKey(chunk.Id)
			value := storage.MarshalChunk(chunk)
			if err := tx.Set(key, value); err != nil {
				return err
			}

			// Update document index
			docKey := makeChunkDocKey(documentId, chunk.Ordinal)
			if err := tx.Set(docKey, storage.MarshalID(chunk.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return chunks, err
}

// GetChunks retrieves all chunks of a document ordered by ordinal.
func (r *ChunkRepository) GetChunks(ctx context.Context, documentId core.ID) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := scanChunkIDs(tx, documentId)
		if err != nil {
			return err
		}
		for _, id := range ids {
			chunk, err := readChunk(tx, makeChunkKey(id))
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
		}
		return nil
	}, false)
	return results, err
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readChunk(tx, makeChunkKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// AttachVectorRef records a successful embedding on a chunk.
func (r *ChunkRepository) AttachVectorRef(ctx context.Context, chunkId core.ID, ref core.ID, vector []float32) error {
	if ref == 0 {
		return fmt.Errorf("%w: zero vector reference", storage.ErrInvalidQuery)
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeChunkKey(chunkId)

		chunk, err := readChunk(tx, key)
		if err != nil {
			return err
		}
		if chunk == nil {
			return storage.ErrNotFound
		}

		// Re-attaching the same reference is a no-op
		if chunk.VectorRef == ref {
			return nil
		}
		if chunk.VectorRef != 0 {
			return fmt.Errorf("%w: chunk %d already references vector %d", storage.ErrVectorRefConflict, chunkId, chunk.VectorRef)
		}

		chunk.VectorRef = ref
		chunk.Vector = vector
		chunk.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

		if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Helper functions shared with the document cascade

// readChunk reads a chunk from the transaction.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		chunk, unmarshalErr = storage.UnmarshalChunk(val)
		return unmarshalErr
	})
	return chunk, err
}

// scanChunkIDs collects the IDs of one document's chunks from the document
// index, in ordinal order.
func scanChunkIDs(tx *badger.Txn, docID core.ID) ([]core.ID, error) {
	var ids []core.ID

	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePartialChunkDocKey(docID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var id core.ID
		err := iter.Item().Value(func(val []byte) error {
			var err error
			id, err = storage.UnmarshalID(val)
			return err
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// deleteChunksForDocument removes every chunk of a document plus its index
// entries within the given transaction. Keys are collected before deleting
// so the iterator never observes its own writes.
func deleteChunksForDocument(tx *badger.Txn, docID core.ID) error {
	var recordKeys [][]byte
	var indexKeys [][]byte

	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePartialChunkDocKey(docID)
	iter := tx.NewIterator(opts)

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()

		var id core.ID
		err := item.Value(func(val []byte) error {
			var err error
			id, err = storage.UnmarshalID(val)
			return err
		})
		if err != nil {
			iter.Close()
			return err
		}

		recordKeys = append(recordKeys, makeChunkKey(id))
		indexKeys = append(indexKeys, item.KeyCopy(nil))
	}
	iter.Close()

	for _, key := range recordKeys {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	for _, key := range indexKeys {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
