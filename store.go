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


package grapho

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/grapho/ai"
	"github.com/poiesic/grapho/concurrent"
	"github.com/poiesic/grapho/core"
	"github.com/poiesic/grapho/storage"
	badgerstore "github.com/poiesic/grapho/storage/badger"
	"github.com/poiesic/grapho/traverse"
)

// DefaultConcurrency is the default bound on in-flight storage queries.
const DefaultConcurrency = 20

var (
	// ErrNodeStoreRequired is returned when a node store is not provided.
	ErrNodeStoreRequired = errors.New("node store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")
)

// Store is the hybrid vector-and-graph store facade. It ties together the
// storage backend, the embedding service, and the traversal engine, and
// exposes node insertion, point lookup, vector search, metadata search, and
// the two traversal modes.
type Store struct {
	store    storage.NodeStore
	embedder ai.Embedder
	pool     *ants.Pool
	search   *traverse.Search
	policy   core.MetadataPolicy
	logger   *slog.Logger

	ownsStore bool
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	concurrency int
	policy      core.MetadataPolicy
	logger      *slog.Logger
}

// WithConcurrency bounds the number of storage queries in flight at once.
// Default is DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(o *storeOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithMetadataIndexing sets the metadata indexing policy, which decides
// which metadata fields can be used in filters.
// Default is core.AllIndexed().
func WithMetadataIndexing(policy core.MetadataPolicy) Option {
	return func(o *storeOptions) {
		o.policy = policy
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a store on top of an existing node store. The caller retains
// ownership of the node store; Close releases only the resources New
// created.
func New(store storage.NodeStore, embedder ai.Embedder, opts ...Option) (*Store, error) {
	return newStore(store, embedder, false, opts...)
}

// Open creates a store backed by a badger database at the given path,
// creating it if absent. Close closes the database.
func Open(filePath string, embedder ai.Embedder, opts ...Option) (*Store, error) {
	backend, err := badgerstore.OpenBackend(filePath, false)
	if err != nil {
		return nil, err
	}
	s, err := newStore(backend, embedder, true, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}

func newStore(store storage.NodeStore, embedder ai.Embedder, ownsStore bool, opts ...Option) (*Store, error) {
	if store == nil {
		return nil, ErrNodeStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	// Apply options
	options := &storeOptions{
		concurrency: DefaultConcurrency,
		policy:      core.AllIndexed(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	pool, err := ants.NewPool(options.concurrency)
	if err != nil {
		return nil, err
	}

	search, err := traverse.NewSearch(store, pool, traverse.WithLogger(options.logger))
	if err != nil {
		pool.Release()
		return nil, err
	}

	return &Store{
		store:     store,
		embedder:  embedder,
		pool:      pool,
		search:    search,
		policy:    options.policy,
		logger:    options.logger,
		ownsStore: ownsStore,
	}, nil
}

// Close releases the worker pool and, if the store opened its own backend,
// closes it.
func (s *Store) Close() error {
	s.pool.Release()
	if s.ownsStore {
		if err := s.store.Close(); err != nil {
			s.logger.Error("error closing backend storage", "err", err)
			return err
		}
	}
	return nil
}

// AddNodes inserts the given nodes and returns their ids in input order.
//
// Nodes without an id are assigned a generated one. Text content is embedded
// in a single batched call; records are then persisted concurrently.
// Inserting a node under an id that already exists silently overwrites the
// stored node.
func (s *Store) AddNodes(ctx context.Context, nodes ...*core.Node) ([]string, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	ids := make([]string, len(nodes))
	texts := make([]string, len(nodes))
	for i, node := range nodes {
		if err := core.ValidateNode(node); err != nil {
			return nil, err
		}
		if node.ID == "" {
			ids[i] = uuid.NewString()
		} else {
			ids[i] = node.ID
		}
		texts[i] = node.Text
	}

	embeddings, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		s.logger.Error("error embedding node texts", "count", len(texts), "err", err)
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d texts", len(embeddings), len(texts))
	}

	scope := concurrent.New(ctx, s.pool, concurrent.WithLogger(s.logger))
	for i, node := range nodes {
		record, err := storage.NewNodeRecord(node, ids[i], embeddings[i], s.policy.IndexedValues(node.Metadata))
		if err != nil {
			return nil, err
		}
		scope.Submit(func(ctx context.Context) error {
			return s.store.PutNodes(ctx, record)
		})
	}
	if err := scope.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetNode retrieves a node by id.
// Returns core.ErrNotFound if no node with that id exists.
func (s *Store) GetNode(ctx context.Context, id string) (*core.Node, error) {
	record, err := s.store.GetNode(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return record.ToNode()
}

// FetchByIDs hydrates the given ids into nodes, in input order, with
// repeated ids deduplicated to a single lookup. Lookups run as one
// concurrent batch. Any absent id fails the whole call with
// core.ErrNotFound; there is no silent partial result.
func (s *Store) FetchByIDs(ctx context.Context, ids ...string) ([]*core.Node, error) {
	scope := concurrent.New(ctx, s.pool, concurrent.WithLogger(s.logger))

	var mu sync.Mutex
	fetched := make(map[string]*core.Node, len(ids))

	for _, id := range ids {
		mu.Lock()
		_, seen := fetched[id]
		if !seen {
			// Mark the id as being fetched.
			fetched[id] = nil
		}
		mu.Unlock()
		if seen {
			continue
		}

		id := id
		scope.Submit(func(ctx context.Context) error {
			record, err := s.store.GetNode(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %q", core.ErrNotFound, id)
			}
			if err != nil {
				return err
			}
			node, err := record.ToNode()
			if err != nil {
				return err
			}
			mu.Lock()
			fetched[id] = node
			mu.Unlock()
			return nil
		})
	}
	if err := scope.Wait(); err != nil {
		return nil, err
	}

	nodes := make([]*core.Node, len(ids))
	for i, id := range ids {
		nodes[i] = fetched[id]
	}
	return nodes, nil
}

// EmbedQuery embeds a query string with the store's embedding service.
// Useful for callers driving SimilaritySearch with a query string.
func (s *Store) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.embedder.EmbedText(ctx, query)
}

// SimilaritySearch retrieves up to k nodes nearest to the given embedding,
// optionally restricted by a metadata filter. Filters referencing
// non-indexed fields are rejected with core.ErrInvalidArgument.
func (s *Store) SimilaritySearch(ctx context.Context, embedding []float32, k int, filter map[string]any) ([]*core.Node, error) {
	coerced, err := s.policy.CoerceFilter(filter)
	if err != nil {
		return nil, err
	}

	records, err := s.store.Similar(ctx, storage.SimilarQuery{
		Embedding: embedding,
		Limit:     k,
		Filter:    coerced,
	})
	if err != nil {
		return nil, err
	}
	return recordsToNodes(records)
}

// MetadataSearch retrieves up to n nodes whose indexed metadata matches
// every filter entry.
func (s *Store) MetadataSearch(ctx context.Context, filter map[string]any, n int) ([]*core.Node, error) {
	coerced, err := s.policy.CoerceFilter(filter)
	if err != nil {
		return nil, err
	}

	records, err := s.store.ByMetadata(ctx, coerced, n)
	if err != nil {
		return nil, err
	}
	return recordsToNodes(records)
}

// TraversalOptions configures TraversalSearch.
//
// Pass nil to TraversalSearch for the defaults; a non-nil options value is
// used verbatim, so start from NewTraversalOptions when overriding a subset.
type TraversalOptions struct {
	// K is the number of seed nodes retrieved by similarity. Default 4.
	K int
	// Depth is the maximum number of tag hops from any seed. Default 1.
	Depth int
	// Filter restricts results to nodes whose indexed metadata matches.
	Filter map[string]any
	// Monitor optionally observes the traversal.
	Monitor traverse.Monitor
}

// NewTraversalOptions returns traversal options with default values.
func NewTraversalOptions() *TraversalOptions {
	return &TraversalOptions{K: 4, Depth: 1}
}

// TraversalSearch retrieves every node reachable within the depth limit of
// a breadth-first tag traversal seeded by similarity to the query string.
func (s *Store) TraversalSearch(ctx context.Context, query string, opts *TraversalOptions) ([]*core.Node, error) {
	if opts == nil {
		opts = NewTraversalOptions()
	}
	coerced, err := s.policy.CoerceFilter(opts.Filter)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error embedding traversal query", "err", err)
		return nil, err
	}

	ids, err := s.search.TraverseWithMonitor(ctx, traverse.TraversalQuery{
		Embedding: embedding,
		K:         opts.K,
		Depth:     opts.Depth,
		Filter:    coerced,
	}, opts.Monitor)
	if err != nil {
		return nil, err
	}
	return s.FetchByIDs(ctx, ids...)
}

// MMROptions configures MMRTraversalSearch.
//
// Pass nil to MMRTraversalSearch for the defaults; a non-nil options value
// is used verbatim, so start from NewMMROptions when overriding a subset
// (a zero FetchK genuinely means "no similarity fetch").
type MMROptions struct {
	// K is the maximum number of nodes to return. Default 4.
	K int
	// Depth is the maximum number of tag hops from any seed. Default 2.
	Depth int
	// FetchK is the size of the initial similarity-fetched pool. Default 100.
	FetchK int
	// AdjacentK bounds nodes fetched per outgoing tag. Default 10.
	AdjacentK int
	// Lambda in [0,1]: 0 is maximum diversity, 1 pure relevance. Default 0.5.
	Lambda float64
	// ScoreThreshold stops selection below it. Default negative infinity.
	ScoreThreshold float64
	// InitialRoots seed the pool with their neighborhoods before any
	// similarity fetch.
	InitialRoots []string
	// Filter restricts candidates to nodes whose indexed metadata matches.
	Filter map[string]any
	// Monitor optionally observes the traversal.
	Monitor traverse.Monitor
}

// NewMMROptions returns MMR traversal options with default values.
func NewMMROptions() *MMROptions {
	return &MMROptions{
		K:              4,
		Depth:          2,
		FetchK:         100,
		AdjacentK:      10,
		Lambda:         0.5,
		ScoreThreshold: math.Inf(-1),
	}
}

// MMRTraversalSearch retrieves up to K nodes by maximal-marginal-relevance
// traversal: candidates are drawn from similarity search and from the tag
// neighborhoods of selected nodes, scored by relevance to the query minus
// redundancy with prior selections. Results come back in selection order.
func (s *Store) MMRTraversalSearch(ctx context.Context, query string, opts *MMROptions) ([]*core.Node, error) {
	if opts == nil {
		opts = NewMMROptions()
	}
	coerced, err := s.policy.CoerceFilter(opts.Filter)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error embedding traversal query", "err", err)
		return nil, err
	}

	ids, err := s.search.TraverseMMRWithMonitor(ctx, traverse.MMRQuery{
		Embedding:      embedding,
		K:              opts.K,
		Depth:          opts.Depth,
		FetchK:         opts.FetchK,
		AdjacentK:      opts.AdjacentK,
		Lambda:         opts.Lambda,
		ScoreThreshold: opts.ScoreThreshold,
		InitialRoots:   opts.InitialRoots,
		Filter:         coerced,
	}, opts.Monitor)
	if err != nil {
		return nil, err
	}
	return s.FetchByIDs(ctx, ids...)
}

func recordsToNodes(records []*storage.NodeRecord) ([]*core.Node, error) {
	nodes := make([]*core.Node, len(records))
	for i, record := range records {
		node, err := record.ToNode()
		if err != nil {
			return nil, err
		}
		nodes[i] = node
	}
	return nodes, nil
}
