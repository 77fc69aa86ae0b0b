package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/grapho/core"
	"github.com/poiesic/grapho/storage"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := NewMemoryBackend()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func record(id string, embedding []float32, inTags []core.Tag, indexed map[string]string) *storage.NodeRecord {
	return &storage.NodeRecord{
		ID:        id,
		Text:      "text of " + id,
		Embedding: embedding,
		InTags:    inTags,
		Indexed:   indexed,
	}
}

func TestClose_AlreadyClosed(t *testing.T) {
	backend, err := NewMemoryBackend()
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.ErrorIs(t, backend.Close(), storage.ErrStorageClosed)
}

func TestPutGetRoundTrip(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	rec := &storage.NodeRecord{
		ID:           "doc-1",
		Text:         "hello",
		Embedding:    []float32{1, 0},
		OutTags:      []core.Tag{{Kind: "href", Value: "a"}},
		InTags:       []core.Tag{{Kind: "href", Value: "b"}},
		LinksBlob:    []byte(`[]`),
		MetadataBlob: []byte(`{"topic":"go"}`),
		Indexed:      map[string]string{"topic": "go"},
	}
	require.NoError(t, backend.PutNodes(ctx, rec))

	got, err := backend.GetNode(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestGetNode_NotFound(t *testing.T) {
	backend := newBackend(t)

	_, err := backend.GetNode(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSimilar_OrderingAndLimit(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.PutNodes(ctx,
		record("a", []float32{1, 0}, nil, nil),
		record("b", []float32{0, 1}, nil, nil),
		record("c", []float32{0.9, 0.1}, nil, nil),
		record("no-embedding", nil, nil, nil),
	))

	results, err := backend.Similar(ctx, storage.SimilarQuery{Embedding: []float32{1, 0}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
}

func TestSimilar_MetadataFilter(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.PutNodes(ctx,
		record("a", []float32{1, 0}, nil, map[string]string{"topic": "go"}),
		record("b", []float32{1, 0}, nil, map[string]string{"topic": "rust"}),
	))

	results, err := backend.Similar(ctx, storage.SimilarQuery{
		Embedding: []float32{1, 0},
		Limit:     10,
		Filter:    map[string]string{"topic": "go"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestLinkedFrom(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	tag := core.Tag{Kind: "href", Value: "x"}

	require.NoError(t, backend.PutNodes(ctx,
		record("a", []float32{1, 0}, []core.Tag{tag}, nil),
		record("b", []float32{0.5, 0.5}, []core.Tag{tag}, nil),
		record("c", []float32{0, 1}, []core.Tag{{Kind: "href", Value: "y"}}, nil),
	))

	results, err := backend.LinkedFrom(ctx, storage.LinkedFromQuery{Tag: tag})
	require.NoError(t, err)
	ids := recordIDs(results)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	// ANN ordering and limit
	results, err = backend.LinkedFrom(ctx, storage.LinkedFromQuery{
		Tag:       tag,
		Embedding: []float32{1, 0},
		Limit:     1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestPutNodes_OverwriteReindexesTags(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()
	oldTag := core.Tag{Kind: "href", Value: "old"}
	newTag := core.Tag{Kind: "href", Value: "new"}

	require.NoError(t, backend.PutNodes(ctx, record("a", []float32{1, 0}, []core.Tag{oldTag}, nil)))
	require.NoError(t, backend.PutNodes(ctx, record("a", []float32{1, 0}, []core.Tag{newTag}, nil)))

	results, err := backend.LinkedFrom(ctx, storage.LinkedFromQuery{Tag: oldTag})
	require.NoError(t, err)
	assert.Empty(t, results, "stale tag index entry must be removed")

	results, err = backend.LinkedFrom(ctx, storage.LinkedFromQuery{Tag: newTag})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestByMetadata(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.PutNodes(ctx,
		record("b", nil, nil, map[string]string{"topic": "go", "rank": "1"}),
		record("a", nil, nil, map[string]string{"topic": "go", "rank": "2"}),
		record("c", nil, nil, map[string]string{"topic": "rust"}),
	))

	results, err := backend.ByMetadata(ctx, map[string]string{"topic": "go"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, recordIDs(results), "ordered by ID")

	results, err = backend.ByMetadata(ctx, map[string]string{"topic": "go", "rank": "1"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, recordIDs(results))

	results, err = backend.ByMetadata(ctx, nil, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func recordIDs(records []*storage.NodeRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
