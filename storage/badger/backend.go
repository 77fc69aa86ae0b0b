package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/poiesic/grapho/core"
	"github.com/poiesic/grapho/storage"
)

// Backend is a BadgerDB-backed storage.NodeStore. Vector search is a scored
// scan over all records; tag containment uses an inverted index keyed by a
// hash of the (kind, value) pair.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ storage.NodeStore = (*Backend)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	opts.Logger = &badgerLoggerAdapter{logger: slog.Default()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:     db,
		logger: slog.Default(),
	}, nil
}

// Close closes the BadgerDB database.
// Returns storage.ErrStorageClosed if the backend is already closed.
func (b *Backend) Close() error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return b.db.Close()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// PutNodes stores the given records. A record whose ID already exists is
// silently overwritten; stale tag index entries of the previous record are
// removed so the inverted index never points to dropped tags.
func (b *Backend) PutNodes(ctx context.Context, records ...*storage.NodeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, record := range records {
		err := b.WithTx(func(tx *badger.Txn) error {
			key := makeNodeKey(record.ID)

			// Drop index entries of a previous version, if any.
			item, err := tx.Get(key)
			if err == nil {
				var old *storage.NodeRecord
				err = item.Value(func(val []byte) error {
					old, err = storage.UnmarshalNodeRecord(val)
					return err
				})
				if err != nil {
					return err
				}
				for _, tag := range old.InTags {
					if err := tx.Delete(makeTagKey(tag, record.ID)); err != nil {
						return err
					}
				}
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if err := tx.Set(key, storage.MarshalNodeRecord(record)); err != nil {
				return err
			}
			for _, tag := range record.InTags {
				if err := tx.Set(makeTagKey(tag, record.ID), nil); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return fmt.Errorf("storing node %q: %w", record.ID, err)
		}
	}
	return nil
}

// GetNode retrieves a record by ID.
func (b *Backend) GetNode(ctx context.Context, id string) (*storage.NodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var record *storage.NodeRecord
	err := b.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeNodeKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %q", storage.ErrNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			record, err = storage.UnmarshalNodeRecord(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Similar returns up to q.Limit records ordered by descending cosine
// similarity to q.Embedding. Records without embeddings are skipped.
func (b *Backend) Similar(ctx context.Context, q storage.SimilarQuery) ([]*storage.NodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type scored struct {
		record *storage.NodeRecord
		score  float64
	}
	var results []scored

	err := b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(nodeRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *storage.NodeRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalNodeRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(record.Embedding) == 0 || !matchesFilter(record, q.Filter) {
				continue
			}
			results = append(results, scored{
				record: record,
				score:  core.CosineSimilarity(q.Embedding, record.Embedding),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b scored) int {
		if a.score != b.score {
			if a.score > b.score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.record.ID, b.record.ID)
	})
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}

	records := make([]*storage.NodeRecord, len(results))
	for i, r := range results {
		records[i] = r.record
	}
	return records, nil
}

// LinkedFrom returns records whose incoming tag set contains q.Tag, via the
// inverted index. Because index keys carry only a hash of the tag, each
// candidate record is re-checked against the actual tag before inclusion.
func (b *Backend) LinkedFrom(ctx context.Context, q storage.LinkedFromQuery) ([]*storage.NodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []*storage.NodeRecord

	err := b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeTagPrefix(q.Tag)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			id := nodeIDFromTagKey(iter.Item().Key())
			if id == "" {
				continue
			}
			item, err := tx.Get(makeNodeKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					// Dangling index entry; skip.
					b.logger.Warn("tag index references missing node", "id", id)
					continue
				}
				return err
			}
			var record *storage.NodeRecord
			err = item.Value(func(val []byte) error {
				record, err = storage.UnmarshalNodeRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if !record.HasInTag(q.Tag) || !matchesFilter(record, q.Filter) {
				continue
			}
			records = append(records, record)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	if len(q.Embedding) > 0 {
		slices.SortFunc(records, func(a, b *storage.NodeRecord) int {
			sa := core.CosineSimilarity(q.Embedding, a.Embedding)
			sb := core.CosineSimilarity(q.Embedding, b.Embedding)
			if sa != sb {
				if sa > sb {
					return -1
				}
				return 1
			}
			return strings.Compare(a.ID, b.ID)
		})
	}
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}
	return records, nil
}

// ByMetadata returns up to limit records matching every filter entry,
// ordered by record ID.
func (b *Backend) ByMetadata(ctx context.Context, filter map[string]string, limit int) ([]*storage.NodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []*storage.NodeRecord

	err := b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(nodeRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *storage.NodeRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalNodeRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if !matchesFilter(record, filter) {
				continue
			}
			records = append(records, record)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(records, func(a, b *storage.NodeRecord) int {
		return strings.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func matchesFilter(record *storage.NodeRecord, filter map[string]string) bool {
	for key, want := range filter {
		if got, ok := record.Indexed[key]; !ok || got != want {
			return false
		}
	}
	return true
}
