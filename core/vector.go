package core

import (
	"gonum.org/v1/gonum/blas/gonum"
)

// Gonum handles SIMD dispatch internally.
var blasEngine = gonum.Implementation{}

// CosineSimilarity returns the cosine similarity of two vectors in [-1, 1].
// Mismatched lengths or zero-norm vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	n := len(a)
	dot := blasEngine.Sdot(n, a, 1, b, 1)
	normA := blasEngine.Snrm2(n, a, 1)
	normB := blasEngine.Snrm2(n, b, 1)
	if normA == 0 || normB == 0 {
		return 0
	}
	return float64(dot) / (float64(normA) * float64(normB))
}
