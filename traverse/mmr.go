package traverse

import (
	"github.com/poiesic/grapho/core"
)

// candidate is a discovered-but-not-yet-selected node with a live MMR score.
type candidate struct {
	id         string
	embedding  []float32
	similarity float64 // lambda-weighted similarity to the query, fixed at creation
	redundancy float64 // max lambda-complement similarity to any selected node
	score      float64 // similarity - redundancy
}

// mmrSelector implements greedy maximal-marginal-relevance selection over a
// growing candidate pool. Candidates are scored as
//
//	score = lambda*sim(query, e) - max over selected of (1-lambda)*sim(sel, e)
//
// Redundancy only grows as nodes are selected, so a candidate's score never
// increases over the selector's lifetime.
//
// Not safe for concurrent use; callers serialize access.
type mmrSelector struct {
	queryEmbedding []float32
	lambda         float64
	scoreThreshold float64

	candidates map[string]*candidate
	selected   []*candidate
}

func newMMRSelector(queryEmbedding []float32, lambda, scoreThreshold float64) *mmrSelector {
	return &mmrSelector{
		queryEmbedding: queryEmbedding,
		lambda:         lambda,
		scoreThreshold: scoreThreshold,
		candidates:     make(map[string]*candidate),
	}
}

// AddCandidates registers new candidates by id. Ids already tracked, or
// already selected, are ignored: a candidate's similarity to the query is
// fixed the first time it is seen.
func (s *mmrSelector) AddCandidates(embeddings map[string][]float32) {
	for id, embedding := range embeddings {
		if _, ok := s.candidates[id]; ok {
			continue
		}
		if s.isSelected(id) {
			continue
		}
		similarity := s.lambda * core.CosineSimilarity(s.queryEmbedding, embedding)
		c := &candidate{
			id:         id,
			embedding:  embedding,
			similarity: similarity,
			score:      similarity,
		}
		// Selections made before this candidate arrived still count toward
		// its redundancy.
		for _, sel := range s.selected {
			redundancy := (1 - s.lambda) * core.CosineSimilarity(sel.embedding, embedding)
			if redundancy > c.redundancy {
				c.redundancy = redundancy
				c.score = c.similarity - c.redundancy
			}
		}
		s.candidates[id] = c
	}
}

// CandidateIDs returns the ids of all currently tracked candidates.
func (s *mmrSelector) CandidateIDs() []string {
	ids := make([]string, 0, len(s.candidates))
	for id := range s.candidates {
		ids = append(ids, id)
	}
	return ids
}

// PopBest removes and returns the candidate with the maximal score, provided
// that score meets the threshold. Returns false when the pool is empty or the
// best score falls below the threshold. Ties are broken toward the smallest
// id so selection order is deterministic.
func (s *mmrSelector) PopBest() (string, bool) {
	var best *candidate
	for _, c := range s.candidates {
		if best == nil || c.score > best.score || (c.score == best.score && c.id < best.id) {
			best = c
		}
	}
	if best == nil || best.score < s.scoreThreshold {
		return "", false
	}

	delete(s.candidates, best.id)
	s.selected = append(s.selected, best)
	s.updateForSelection(best.embedding)
	return best.id, true
}

// updateForSelection raises the redundancy of every remaining candidate
// against the newly selected embedding. Scores only ever decrease here.
func (s *mmrSelector) updateForSelection(selected []float32) {
	for _, c := range s.candidates {
		redundancy := (1 - s.lambda) * core.CosineSimilarity(selected, c.embedding)
		if redundancy > c.redundancy {
			c.redundancy = redundancy
			c.score = c.similarity - c.redundancy
		}
	}
}

// SelectedIDs returns the selected ids in selection order.
func (s *mmrSelector) SelectedIDs() []string {
	ids := make([]string, len(s.selected))
	for i, c := range s.selected {
		ids[i] = c.id
	}
	return ids
}

func (s *mmrSelector) isSelected(id string) bool {
	for _, c := range s.selected {
		if c.id == id {
			return true
		}
	}
	return false
}
