package traverse

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/grapho/concurrent"
	"github.com/poiesic/grapho/core"
	"github.com/poiesic/grapho/storage"
)

// Search runs graph traversals over a node store.
// A Search is safe for concurrent use; each traversal call owns its own
// candidate pool and visited maps.
type Search struct {
	store  storage.NodeStore
	pool   *ants.Pool
	logger *slog.Logger
}

// Option configures a Search.
type Option func(*Search) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Search) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearch creates a traversal search over the given store.
// Store queries are dispatched through the given worker pool.
func NewSearch(store storage.NodeStore, pool *ants.Pool, opts ...Option) (*Search, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if pool == nil {
		return nil, ErrPoolRequired
	}

	s := &Search{
		store:  store,
		pool:   pool,
		logger: slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// TraversalQuery describes a breadth-first traversal.
type TraversalQuery struct {
	// Embedding is the query vector used to seed the traversal.
	Embedding []float32

	// K is the number of seed nodes retrieved by similarity.
	K int

	// Depth is the maximum number of tag hops from any seed node.
	Depth int

	// Filter restricts both seeds and traversed nodes to those whose
	// indexed metadata matches every entry.
	Filter map[string]string
}

// Traverse retrieves the ids of every node reachable within the depth limit.
//
// The traversal seeds with the top K nodes by similarity to the query
// embedding, then repeatedly expands outgoing tags: a tag expansion fetches
// every node whose incoming tag set contains that tag. Returned ids are
// sorted lexicographically; hydration order is the caller's concern.
func (s *Search) Traverse(ctx context.Context, q TraversalQuery) ([]string, error) {
	return s.TraverseWithMonitor(ctx, q, nil)
}

// TraverseWithMonitor is Traverse with observation hooks.
func (s *Search) TraverseWithMonitor(ctx context.Context, q TraversalQuery, monitor Monitor) ([]string, error) {
	visited, err := s.traverse(ctx, q, monitor)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// traverse runs the breadth-first expansion and returns the map of visited
// node id to the shortest depth at which it was discovered.
func (s *Search) traverse(ctx context.Context, q TraversalQuery, monitor Monitor) (map[string]int, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start()

	scope := concurrent.New(ctx, s.pool, concurrent.WithLogger(s.logger))

	// Shared traversal state, guarded by mu. Callbacks run on pool workers.
	var mu sync.Mutex
	visitedIDs := make(map[string]int)
	visitedTags := make(map[core.Tag]int)

	// visitNodes marks nodes discovered at depth d and schedules adjacency
	// queries for their not-yet-expanded outgoing tags. A node or tag seen
	// before is reprocessed only at a strictly shallower depth, so the
	// recorded depth is always the shortest discovered and no tag is
	// expanded twice at equal or greater depth.
	var visitNodes func(d int, records []*storage.NodeRecord)
	visitNodes = func(d int, records []*storage.NodeRecord) {
		mu.Lock()
		var expand []core.Tag
		for _, rec := range records {
			if prev, seen := visitedIDs[rec.ID]; seen && prev <= d {
				continue
			}
			visitedIDs[rec.ID] = d
			monitor.NodeVisited(rec.ID, d)

			if d >= q.Depth {
				continue
			}
			for _, tag := range rec.OutTags {
				if prev, seen := visitedTags[tag]; seen && prev <= d {
					continue
				}
				visitedTags[tag] = d
				expand = append(expand, tag)
			}
		}
		mu.Unlock()

		for _, tag := range expand {
			monitor.TagExpanded(tag, d)
			concurrent.Query(scope,
				func(ctx context.Context) ([]*storage.NodeRecord, error) {
					return s.store.LinkedFrom(ctx, storage.LinkedFromQuery{
						Tag:    tag,
						Filter: q.Filter,
					})
				},
				func(targets []*storage.NodeRecord) {
					visitNodes(d+1, targets)
				})
		}
	}

	concurrent.Query(scope,
		func(ctx context.Context) ([]*storage.NodeRecord, error) {
			return s.store.Similar(ctx, storage.SimilarQuery{
				Embedding: q.Embedding,
				Limit:     q.K,
				Filter:    q.Filter,
			})
		},
		func(seeds []*storage.NodeRecord) {
			ids := make([]string, len(seeds))
			for i, rec := range seeds {
				ids[i] = rec.ID
			}
			monitor.AfterSeedSearch(ids)
			visitNodes(0, seeds)
		})

	if err := scope.Wait(); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	ids := make([]string, 0, len(visitedIDs))
	for id := range visitedIDs {
		ids = append(ids, id)
	}
	monitor.Finish(ids)
	return visitedIDs, nil
}
