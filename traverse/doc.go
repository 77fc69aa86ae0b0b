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


// Package traverse implements graph traversal over tag-linked nodes.
//
// The Search type provides two retrieval strategies on top of a
// storage.NodeStore:
//
//   - Traverse: breadth-first, depth-bounded expansion seeded by vector
//     similarity. Every node reachable within the depth limit is returned.
//   - TraverseMMR: maximal-marginal-relevance selection interleaved with
//     depth-bounded expansion. Candidates are scored by relevance to the
//     query minus redundancy with already-selected nodes, and only the
//     neighborhoods of selected nodes are explored.
//
// Adjacency is derived from tag sets rather than explicit edges: a node with
// an outgoing tag links to every node carrying the same incoming tag. One
// indexed lookup per tag replaces per-edge traversal, and visited-tag
// tracking bounds the total number of adjacency queries by the number of
// distinct tags reached.
package traverse
