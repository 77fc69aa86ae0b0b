package traverse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/grapho/core"
	"github.com/poiesic/grapho/storage"
)

func TestTraverseMMR_LambdaValidation(t *testing.T) {
	search, _ := newTestSearch(t)

	_, err := search.TraverseMMR(context.Background(), MMRQuery{
		Embedding: []float32{1, 0},
		K:         1,
		Lambda:    1.5,
	})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestTraverseMMR_ReachesLinkedNodeOutsideFetchPool(t *testing.T) {
	search, store := newTestSearch(t)

	// fetchK=1 only seeds a; b enters the pool through a's tag link and is
	// still selected.
	t1 := tag("a->b")
	putNode(t, store, "a", []float32{1, 0}, []core.Tag{t1}, nil)
	putNode(t, store, "b", []float32{0, 1}, nil, []core.Tag{t1})
	putNode(t, store, "c", []float32{0.9, 0.1}, nil, nil)

	ids, err := search.TraverseMMR(context.Background(), MMRQuery{
		Embedding:      []float32{1, 0},
		K:              2,
		Depth:          1,
		FetchK:         1,
		AdjacentK:      10,
		Lambda:         0.5,
		ScoreThreshold: negInf(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestTraverseMMR_InitialRootsOnly(t *testing.T) {
	search, store := newTestSearch(t)

	// fetchK=0 with initial roots: only a's tagged neighbors are candidates.
	// The root itself and similarity-only nodes never enter the pool.
	t1 := tag("a->b")
	putNode(t, store, "a", []float32{1, 0}, []core.Tag{t1}, nil)
	putNode(t, store, "b", []float32{0, 1}, nil, []core.Tag{t1})
	putNode(t, store, "similar-only", []float32{0.99, 0.01}, nil, nil)

	ids, err := search.TraverseMMR(context.Background(), MMRQuery{
		Embedding:      []float32{1, 0},
		K:              5,
		Depth:          1,
		FetchK:         0,
		AdjacentK:      5,
		Lambda:         0.5,
		ScoreThreshold: negInf(),
		InitialRoots:   []string{"a"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestTraverseMMR_UnknownRootSkipped(t *testing.T) {
	search, store := newTestSearch(t)

	t1 := tag("a->b")
	putNode(t, store, "a", []float32{1, 0}, []core.Tag{t1}, nil)
	putNode(t, store, "b", []float32{0, 1}, nil, []core.Tag{t1})

	ids, err := search.TraverseMMR(context.Background(), MMRQuery{
		Embedding:      []float32{1, 0},
		K:              5,
		Depth:          1,
		FetchK:         0,
		AdjacentK:      5,
		Lambda:         0.5,
		ScoreThreshold: negInf(),
		InitialRoots:   []string{"a", "no-such-node"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestTraverseMMR_PureRelevanceMatchesSimilarityOrder(t *testing.T) {
	search, store := newTestSearch(t)

	putNode(t, store, "a", []float32{1, 0}, nil, nil)
	putNode(t, store, "b", []float32{0, 1}, nil, nil)
	putNode(t, store, "c", []float32{0.9, 0.1}, nil, nil)

	ids, err := search.TraverseMMR(context.Background(), MMRQuery{
		Embedding:      []float32{1, 0},
		K:              3,
		Depth:          2,
		FetchK:         10,
		AdjacentK:      10,
		Lambda:         1.0,
		ScoreThreshold: negInf(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids)
}

func TestTraverseMMR_MaxDiversityPicksDistinctSecond(t *testing.T) {
	search, store := newTestSearch(t)

	putNode(t, store, "a", []float32{1, 0}, nil, nil)
	putNode(t, store, "b", []float32{0.999, 0.045}, nil, nil)
	putNode(t, store, "c", []float32{0.6, 0.8}, nil, nil)

	ids, err := search.TraverseMMR(context.Background(), MMRQuery{
		Embedding:      []float32{1, 0},
		K:              3,
		Depth:          2,
		FetchK:         10,
		AdjacentK:      10,
		Lambda:         0.0,
		ScoreThreshold: negInf(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids,
		"near-duplicate's score collapses after the first pick")
}

func TestTraverseMMR_SelectionCountBound(t *testing.T) {
	search, store := newTestSearch(t)

	putNode(t, store, "a", []float32{1, 0}, nil, nil)
	putNode(t, store, "b", []float32{0.9, 0.1}, nil, nil)

	ids, err := search.TraverseMMR(context.Background(), MMRQuery{
		Embedding:      []float32{1, 0},
		K:              1,
		Depth:          2,
		FetchK:         10,
		AdjacentK:      10,
		Lambda:         0.5,
		ScoreThreshold: negInf(),
	})
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	// With a pool smaller than K, fewer than K results come back.
	ids, err = search.TraverseMMR(context.Background(), MMRQuery{
		Embedding:      []float32{1, 0},
		K:              10,
		Depth:          2,
		FetchK:         10,
		AdjacentK:      10,
		Lambda:         0.5,
		ScoreThreshold: negInf(),
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestTraverseMMR_NoDuplicateSelections(t *testing.T) {
	search, store := newTestSearch(t)

	// Dense cycle: every expansion rediscovers already-known nodes.
	t1, t2 := tag("t1"), tag("t2")
	putNode(t, store, "a", []float32{1, 0}, []core.Tag{t1}, []core.Tag{t2})
	putNode(t, store, "b", []float32{0.9, 0.1}, []core.Tag{t2}, []core.Tag{t1})
	putNode(t, store, "c", []float32{0.8, 0.2}, []core.Tag{t1, t2}, []core.Tag{t1, t2})

	ids, err := search.TraverseMMR(context.Background(), MMRQuery{
		Embedding:      []float32{1, 0},
		K:              10,
		Depth:          5,
		FetchK:         10,
		AdjacentK:      10,
		Lambda:         0.5,
		ScoreThreshold: negInf(),
	})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate selection of %q", id)
		seen[id] = true
	}
	assert.Len(t, ids, 3)
}

func TestTraverseMMR_DepthRespected(t *testing.T) {
	search, store := newTestSearch(t)

	// Chain a -> b -> c. With depth=1, b is reachable and selectable but is
	// never expanded, so c stays undiscovered.
	t1, t2 := tag("a->b"), tag("b->c")
	putNode(t, store, "a", []float32{1, 0}, []core.Tag{t1}, nil)
	putNode(t, store, "b", []float32{0, 1}, []core.Tag{t2}, []core.Tag{t1})
	putNode(t, store, "c", []float32{0.95, 0.05}, nil, []core.Tag{t2})

	ids, err := search.TraverseMMR(context.Background(), MMRQuery{
		Embedding:      []float32{1, 0},
		K:              3,
		Depth:          1,
		FetchK:         1,
		AdjacentK:      10,
		Lambda:         0.5,
		ScoreThreshold: negInf(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.NotContains(t, ids, "c")
}

func TestTraverseMMR_TagExpandedOnce(t *testing.T) {
	search, store := newTestSearch(t)

	// a and b share an outgoing tag. After a's expansion visits it, b's
	// selection must not re-issue the adjacency query.
	shared := tag("shared")
	putNode(t, store, "a", []float32{1, 0}, []core.Tag{shared}, nil)
	putNode(t, store, "b", []float32{0.9, 0.1}, []core.Tag{shared}, nil)
	putNode(t, store, "c", []float32{0, 1}, nil, []core.Tag{shared})

	ids, err := search.TraverseMMR(context.Background(), MMRQuery{
		Embedding:      []float32{1, 0},
		K:              3,
		Depth:          2,
		FetchK:         10,
		AdjacentK:      10,
		Lambda:         0.5,
		ScoreThreshold: negInf(),
	})
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Equal(t, 1, store.queries(shared))
}

func TestTraverseMMR_MetadataFilter(t *testing.T) {
	search, store := newTestSearch(t)

	t1 := tag("a->b")
	require.NoError(t, store.PutNodes(context.Background(),
		&storage.NodeRecord{
			ID: "a", Embedding: []float32{1, 0},
			OutTags: []core.Tag{t1},
			Indexed: map[string]string{"topic": "go"},
		},
		&storage.NodeRecord{
			ID: "b", Embedding: []float32{0, 1},
			InTags:  []core.Tag{t1},
			Indexed: map[string]string{"topic": "rust"},
		},
	))

	ids, err := search.TraverseMMR(context.Background(), MMRQuery{
		Embedding:      []float32{1, 0},
		K:              5,
		Depth:          2,
		FetchK:         10,
		AdjacentK:      10,
		Lambda:         0.5,
		ScoreThreshold: negInf(),
		Filter:         map[string]string{"topic": "go"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids, "filtered-out adjacency target must not become a candidate")
}
