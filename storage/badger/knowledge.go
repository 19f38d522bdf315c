package badger

import (
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docent/core"
	"github.com/poiesic/docent/storage"
)

// KnowledgeBaseRepository implements storage.KnowledgeBaseRepository for BadgerDB.
type KnowledgeBaseRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.KnowledgeBaseRepository = (*KnowledgeBaseRepository)(nil)

// NewKnowledgeBaseRepository creates a new KnowledgeBaseRepository.
func NewKnowledgeBaseRepository(backend *Backend) (*KnowledgeBaseRepository, error) {
	idSeq, err := backend.GetSequence(knowledgeBaseIDSeq)
	if err != nil {
		return nil, err
	}

	return &KnowledgeBaseRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *KnowledgeBaseRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *KnowledgeBaseRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddKnowledgeBase adds a knowledge base to storage.
func (r *KnowledgeBaseRepository) AddKnowledgeBase(ctx context.Context, kb *core.KnowledgeBase) (*core.KnowledgeBase, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Enforce name uniqueness through the name index
		nameKey := makeKnowledgeBaseNameKey(kb.Name)
		if _, err := tx.Get(nameKey); err == nil {
			return storage.ErrDuplicateKey
		} else if err != badger.ErrKeyNotFound {
			return err
		}

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
		kb.Id = core.ID(nextID)

		kb.InsertedAt = time.Now().UTC().Truncate(time.Microsecond)
		kb.UpdatedAt = kb.InsertedAt

		// Store primary record
		key := makeKnowledgeBaseKey(kb.Id)
		value := storage.MarshalKnowledgeBase(kb)
		if err := tx.Set(key, value); err != nil {
			return err
		}

		// Update name index
		if err := tx.Set(nameKey, storage.MarshalID(kb.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return kb, err
}

// GetKnowledgeBase retrieves a knowledge base by ID.
func (r *KnowledgeBaseRepository) GetKnowledgeBase(ctx context.Context, id core.ID) (*core.KnowledgeBase, error) {
	var result *core.KnowledgeBase
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeKnowledgeBaseKey(id)
		var err error
		result, err = r.readKnowledgeBase(tx, key)
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

// GetKnowledgeBaseByName retrieves a knowledge base by its unique name.
func (r *KnowledgeBaseRepository) GetKnowledgeBaseByName(ctx context.Context, name string) (*core.KnowledgeBase, error) {
	var result *core.KnowledgeBase
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeKnowledgeBaseNameKey(name))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}

		var id core.ID
		if err := item.Value(func(val []byte) error {
			var err error
			id, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			return err
		}

		result, err = r.readKnowledgeBase(tx, makeKnowledgeBaseKey(id))
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

// ListKnowledgeBases retrieves all knowledge bases ordered by ID.
func (r *KnowledgeBaseRepository) ListKnowledgeBases(ctx context.Context) ([]*core.KnowledgeBase, error) {
	var results []*core.KnowledgeBase
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(knowledgeBasePrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var kb *core.KnowledgeBase
			err := iter.Item().Value(func(val []byte) error {
				var err error
				kb, err = storage.UnmarshalKnowledgeBase(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, kb)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Record keys embed the ID as decimal text, so iteration order is
	// lexicographic, not numeric
	slices.SortFunc(results, func(a, b *core.KnowledgeBase) int {
		if a.Id < b.Id {
			return -1
		}
		if a.Id > b.Id {
			return 1
		}
		return 0
	})
	return results, nil
}

// UpdateKnowledgeBase updates an existing knowledge base.
func (r *KnowledgeBaseRepository) UpdateKnowledgeBase(ctx context.Context, kb *core.KnowledgeBase) (*core.KnowledgeBase, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeKnowledgeBaseKey(kb.Id)

		// Read old record to detect changes
		old, err := r.readKnowledgeBase(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		// Update name index if the name changed
		if old.Name != kb.Name {
			newNameKey := makeKnowledgeBaseNameKey(kb.Name)
			if _, err := tx.Get(newNameKey); err == nil {
				return storage.ErrDuplicateKey
			} else if err != badger.ErrKeyNotFound {
				return err
			}
			if err := tx.Delete(makeKnowledgeBaseNameKey(old.Name)); err != nil {
				return err
			}
			if err := tx.Set(newNameKey, storage.MarshalID(kb.Id)); err != nil {
				return err
			}
		}

		// Update timestamp, preserving the original insertion time
		kb.InsertedAt = old.InsertedAt
		kb.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)

		value := storage.MarshalKnowledgeBase(kb)
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return kb, err
}

// DeleteKnowledgeBase removes a knowledge base and cascades to its documents
// and their chunks in one transaction.
func (r *KnowledgeBaseRepository) DeleteKnowledgeBase(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeKnowledgeBaseKey(id)
		kb, err := r.readKnowledgeBase(tx, key)
		if err != nil {
			return err
		}
		if kb == nil {
			return storage.ErrNotFound
		}

		// Cascade: every document of the knowledge base, then its chunks
		docIDs, err := scanDocumentIDs(tx, id)
		if err != nil {
			return err
		}
		for _, docID := range docIDs {
			if err := deleteDocumentCascade(tx, docID); err != nil {
				return err
			}
		}

		if err := tx.Delete(makeKnowledgeBaseNameKey(kb.Name)); err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// readKnowledgeBase reads a knowledge base from the transaction.
func (r *KnowledgeBaseRepository) readKnowledgeBase(tx *badger.Txn, key []byte) (*core.KnowledgeBase, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var kb *core.KnowledgeBase
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		kb, unmarshalErr = storage.UnmarshalKnowledgeBase(val)
		return unmarshalErr
	})
	return kb, err
}
