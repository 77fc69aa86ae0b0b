package traverse

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/poiesic/grapho/concurrent"
	"github.com/poiesic/grapho/core"
	"github.com/poiesic/grapho/storage"
)

// MMRQuery describes a maximal-marginal-relevance traversal.
type MMRQuery struct {
	// Embedding is the query vector candidates are scored against.
	Embedding []float32

	// K is the maximum number of nodes to select.
	K int

	// Depth is the maximum number of tag hops from any seed node.
	Depth int

	// FetchK is the size of the initial similarity-fetched candidate pool.
	// Zero skips the similarity fetch entirely, restricting candidates to
	// the neighborhood of InitialRoots.
	FetchK int

	// AdjacentK bounds the number of nodes fetched per outgoing tag during
	// expansion.
	AdjacentK int

	// Lambda in [0,1] balances relevance against diversity: 0 is maximum
	// diversity, 1 is pure relevance.
	Lambda float64

	// ScoreThreshold stops selection once the best remaining score falls
	// below it. Set to math.Inf(-1) to disable.
	ScoreThreshold float64

	// InitialRoots are node ids whose neighborhoods seed the candidate
	// pool before any similarity fetch. The roots themselves are never
	// candidates. Unknown root ids are skipped.
	InitialRoots []string

	// Filter restricts candidates to nodes whose indexed metadata matches
	// every entry.
	Filter map[string]string
}

// TraverseMMR retrieves up to K node ids by MMR-guided traversal, in
// selection order.
//
// Candidates enter the pool from the neighborhoods of InitialRoots and from
// a top-FetchK similarity search. Selection then alternates with expansion:
// each selected node within the depth limit has its unvisited outgoing tags
// expanded, and newly discovered nodes join the pool at the shortest depth
// seen. Selection stops after K picks, when the pool is exhausted, or when
// the best remaining score drops below ScoreThreshold.
func (s *Search) TraverseMMR(ctx context.Context, q MMRQuery) ([]string, error) {
	return s.TraverseMMRWithMonitor(ctx, q, nil)
}

// TraverseMMRWithMonitor is TraverseMMR with observation hooks.
func (s *Search) TraverseMMRWithMonitor(ctx context.Context, q MMRQuery, monitor Monitor) ([]string, error) {
	if err := core.ValidateLambda(q.Lambda); err != nil {
		return nil, err
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start()

	selector := newMMRSelector(q.Embedding, q.Lambda, q.ScoreThreshold)

	// outgoingTags caches the outgoing tag set of every known, unselected
	// node. Presence in the map also marks an id as known, so similarity
	// hits and adjacency targets are never re-added as fresh candidates.
	outgoingTags := make(map[string][]core.Tag)

	// visitedTags holds every tag already expanded (or belonging to an
	// initial root); such tags are never queried again.
	visitedTags := make(map[core.Tag]struct{})

	// depths tracks the shortest known distance of each candidate from a
	// seed. Initial candidates sit at depth 0.
	depths := make(map[string]int)

	if len(q.InitialRoots) > 0 {
		if err := s.fetchNeighborhood(ctx, q, selector, outgoingTags, visitedTags); err != nil {
			return nil, err
		}
	}
	if q.FetchK > 0 {
		if err := s.fetchInitialCandidates(ctx, q, selector, outgoingTags, monitor); err != nil {
			return nil, err
		}
	}
	for _, id := range selector.CandidateIDs() {
		depths[id] = 0
	}

	for i := 0; i < q.K; i++ {
		selectedID, ok := selector.PopBest()
		if !ok {
			break
		}
		selectedDepth := depths[selectedID]
		monitor.Selected(selectedID, selectedDepth)

		if selectedDepth >= q.Depth {
			continue
		}
		nextDepth := selectedDepth + 1

		// Expand the selected node's outgoing tags, skipping any already
		// visited, and drop its cache entry: a selected node is no longer
		// a candidate.
		tags := outgoingTags[selectedID]
		delete(outgoingTags, selectedID)

		fresh := tags[:0:0]
		for _, tag := range tags {
			if _, seen := visitedTags[tag]; seen {
				continue
			}
			fresh = append(fresh, tag)
		}
		if len(fresh) == 0 {
			continue
		}

		adjacent, err := s.fetchAdjacent(ctx, fresh, q)
		if err != nil {
			return nil, err
		}
		for _, tag := range fresh {
			visitedTags[tag] = struct{}{}
			monitor.TagExpanded(tag, selectedDepth)
		}

		newCandidates := make(map[string][]float32)
		for id, rec := range adjacent {
			if _, known := outgoingTags[id]; known {
				continue
			}
			outgoingTags[id] = rec.OutTags
			newCandidates[id] = rec.Embedding
			if prev, seen := depths[id]; !seen || nextDepth < prev {
				depths[id] = nextDepth
			}
		}
		selector.AddCandidates(newCandidates)
	}

	selected := selector.SelectedIDs()
	monitor.Finish(selected)
	return selected, nil
}

// fetchNeighborhood seeds the candidate pool with the nodes adjacent to the
// initial roots. The roots' own outgoing tags are marked visited so later
// selections never re-expand them, and the root ids are recorded as known so
// a similarity fetch cannot re-introduce them as candidates.
func (s *Search) fetchNeighborhood(
	ctx context.Context,
	q MMRQuery,
	selector *mmrSelector,
	outgoingTags map[string][]core.Tag,
	visitedTags map[core.Tag]struct{},
) error {
	for _, id := range q.InitialRoots {
		outgoingTags[id] = nil
	}

	rootTags, err := s.outgoingTagsOf(ctx, q.InitialRoots)
	if err != nil {
		return err
	}
	for _, tag := range rootTags {
		visitedTags[tag] = struct{}{}
	}

	adjacent, err := s.fetchAdjacent(ctx, rootTags, q)
	if err != nil {
		return err
	}

	newCandidates := make(map[string][]float32)
	for id, rec := range adjacent {
		if _, known := outgoingTags[id]; known {
			continue
		}
		outgoingTags[id] = rec.OutTags
		newCandidates[id] = rec.Embedding
	}
	selector.AddCandidates(newCandidates)
	return nil
}

// fetchInitialCandidates adds the top-FetchK similarity hits to the pool.
func (s *Search) fetchInitialCandidates(
	ctx context.Context,
	q MMRQuery,
	selector *mmrSelector,
	outgoingTags map[string][]core.Tag,
	monitor Monitor,
) error {
	fetched, err := s.store.Similar(ctx, storage.SimilarQuery{
		Embedding: q.Embedding,
		Limit:     q.FetchK,
		Filter:    q.Filter,
	})
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(fetched))
	newCandidates := make(map[string][]float32)
	for _, rec := range fetched {
		ids = append(ids, rec.ID)
		if _, known := outgoingTags[rec.ID]; known {
			continue
		}
		outgoingTags[rec.ID] = rec.OutTags
		newCandidates[rec.ID] = rec.Embedding
	}
	monitor.AfterSeedSearch(ids)
	selector.AddCandidates(newCandidates)
	return nil
}

// outgoingTagsOf returns the combined, deduplicated outgoing tag set of the
// given nodes. Ids not present in the store are skipped; a neighborhood
// around partially-known roots is still useful.
func (s *Search) outgoingTagsOf(ctx context.Context, ids []string) ([]core.Tag, error) {
	scope := concurrent.New(ctx, s.pool, concurrent.WithLogger(s.logger))

	var mu sync.Mutex
	tagSet := make(map[core.Tag]struct{})

	for _, id := range ids {
		id := id
		scope.Submit(func(ctx context.Context) error {
			rec, err := s.store.GetNode(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("initial root not found, skipping", "id", id)
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			for _, tag := range rec.OutTags {
				tagSet[tag] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := scope.Wait(); err != nil {
		return nil, err
	}

	tags := make([]core.Tag, 0, len(tagSet))
	for tag := range tagSet {
		tags = append(tags, tag)
	}
	return tags, nil
}

// fetchAdjacent returns the nodes with an incoming link from any of the
// given tags, at most AdjacentK per tag, keyed by id. Queries for distinct
// tags run concurrently; the first record fetched for an id wins.
func (s *Search) fetchAdjacent(ctx context.Context, tags []core.Tag, q MMRQuery) (map[string]*storage.NodeRecord, error) {
	scope := concurrent.New(ctx, s.pool, concurrent.WithLogger(s.logger))

	var mu sync.Mutex
	targets := make(map[string]*storage.NodeRecord)

	for _, tag := range tags {
		tag := tag
		concurrent.Query(scope,
			func(ctx context.Context) ([]*storage.NodeRecord, error) {
				records, err := s.store.LinkedFrom(ctx, storage.LinkedFromQuery{
					Tag:       tag,
					Embedding: q.Embedding,
					Limit:     q.AdjacentK,
					Filter:    q.Filter,
				})
				if err != nil {
					return nil, fmt.Errorf("adjacent fetch for tag %s/%s: %w", tag.Kind, tag.Value, err)
				}
				return records, nil
			},
			func(records []*storage.NodeRecord) {
				mu.Lock()
				defer mu.Unlock()
				for _, rec := range records {
					if _, ok := targets[rec.ID]; !ok {
						targets[rec.ID] = rec
					}
				}
			})
	}
	if err := scope.Wait(); err != nil {
		return nil, err
	}
	return targets, nil
}
