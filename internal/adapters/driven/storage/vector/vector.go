// Package vector holds the similarity maths shared by the stores that
// rank candidates in process.
package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when two vectors differ in length.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// CosineDistance returns 1 - cosine similarity.
// A zero vector is maximally distant from everything.
func CosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1, nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}

// Mismatches tallies stored vectors whose dimension differs from the query,
// typically left behind by a change of embedding model.
type Mismatches struct {
	Count int
	Dims  int
	Model string
}

// Add records one skipped vector. The first one seen names the mismatch.
func (m *Mismatches) Add(dims int, model string) {
	if m.Count == 0 {
		m.Dims, m.Model = dims, model
	}
	m.Count++
}

// Err describes the mismatch, or returns nil when nothing was skipped.
func (m Mismatches) Err(queryDims int) error {
	if m.Count == 0 {
		return nil
	}
	model := m.Model
	if model == "" {
		model = "unknown model"
	}
	return fmt.Errorf("%w: %d stored vectors have %d dimensions (%s) but the query has %d, re-ingest with the current embedding model",
		ErrDimensionMismatch, m.Count, m.Dims, model, queryDims)
}

// Candidate is a scored item awaiting ranking.
type Candidate[T any] struct {
	Item     T
	Distance float64
}

// TopK sorts candidates by increasing distance and keeps the first k.
// Equal distances keep their input order.
func TopK[T any](cands []Candidate[T], k int) []Candidate[T] {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Distance < cands[j].Distance
	})
	if k >= 0 && len(cands) > k {
		cands = cands[:k]
	}
	return cands
}
