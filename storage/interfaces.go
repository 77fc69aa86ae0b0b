package storage

import (
	"context"

	"github.com/poiesic/grapho/core"
)

// SimilarQuery selects the top-Limit records nearest to Embedding, optionally
// restricted to records whose indexed metadata matches every Filter entry.
type SimilarQuery struct {
	Embedding []float32
	Limit     int
	// Filter holds already-coerced indexed metadata equality constraints.
	Filter map[string]string
}

// LinkedFromQuery selects records whose incoming tag set contains Tag.
// When Embedding is set, results are ordered by similarity to it and capped
// at Limit; otherwise ordering is by record ID.
type LinkedFromQuery struct {
	Tag       core.Tag
	Embedding []float32
	Limit     int
	Filter    map[string]string
}

// NodeStore persists node records and answers the four query shapes the
// retrieval engine needs: point lookup by ID, nearest-neighbor by vector,
// containment on the incoming tag set, and equality on indexed metadata.
//
// Implementations must be safe for concurrent use; the query engine fans
// calls out across a worker pool.
type NodeStore interface {
	// PutNodes stores the given records, silently overwriting any record
	// with the same ID.
	PutNodes(ctx context.Context, records ...*NodeRecord) error

	// GetNode retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetNode(ctx context.Context, id string) (*NodeRecord, error)

	// Similar returns up to q.Limit records ordered by descending cosine
	// similarity to q.Embedding. Records without an embedding are skipped.
	Similar(ctx context.Context, q SimilarQuery) ([]*NodeRecord, error)

	// LinkedFrom returns records whose incoming tag set contains q.Tag.
	LinkedFrom(ctx context.Context, q LinkedFromQuery) ([]*NodeRecord, error)

	// ByMetadata returns up to limit records whose indexed metadata matches
	// every filter entry, ordered by record ID.
	ByMetadata(ctx context.Context, filter map[string]string, limit int) ([]*NodeRecord, error)

	// Close closes the storage backend and releases resources.
	Close() error
}
