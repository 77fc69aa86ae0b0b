// Package storage defines the persistence contract for the graph store.
//
// NodeStore is the parameterized query executor the retrieval engine runs
// against. It supports exactly the query shapes traversal needs: point
// lookup by ID, top-N nearest-neighbor by vector, containment on the
// incoming tag set, and equality on indexed metadata fields. The badger
// subpackage provides the default implementation; any backend that answers
// those four shapes can be substituted.
//
// All NodeStore methods accept context.Context and must be safe for
// concurrent use from multiple goroutines.
package storage
