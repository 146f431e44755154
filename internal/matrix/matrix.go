// Package matrix builds the pairwise travel cost table the solver reads.
package matrix

import (
	"fmt"
	"math"

	"fleetvrp/internal/model"
)

// MaxCost bounds a single entry so route sums stay far from int overflow and
// fit a 32-bit column.
const MaxCost = math.MaxInt32

// Matrix is a square, read-only table of non-negative integer costs with a
// zero diagonal.
type Matrix struct {
	n    int
	cost []int
}

// Euclidean computes floor(sqrt(dx²+dy²)) between every pair of locations.
func Euclidean(locs []model.Location) (*Matrix, error) {
	if len(locs) < 2 {
		return nil, &model.InvalidInputError{Field: "locations", Reason: fmt.Sprintf("need at least 2 locations, got %d", len(locs))}
	}
	for i, l := range locs {
		if math.IsNaN(l.X) || math.IsNaN(l.Y) || math.IsInf(l.X, 0) || math.IsInf(l.Y, 0) {
			return nil, &model.InvalidInputError{Field: fmt.Sprintf("locations[%d]", i), Reason: "coordinates must be finite"}
		}
	}
	n := len(locs)
	m := &Matrix{n: n, cost: make([]int, n*n)}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := locs[i].X - locs[j].X
			dy := locs[i].Y - locs[j].Y
			f := math.Sqrt(dx*dx + dy*dy)
			if f > MaxCost {
				return nil, &model.InvalidInputError{Field: fmt.Sprintf("locations[%d]", j), Reason: fmt.Sprintf("distance to location %d exceeds %d", i, MaxCost)}
			}
			d := int(f)
			m.cost[i*n+j] = d
			m.cost[j*n+i] = d
		}
	}
	return m, nil
}

// FromRows wraps a caller supplied cost table after checking its shape.
func FromRows(rows [][]int) (*Matrix, error) {
	n := len(rows)
	if n < 2 {
		return nil, &model.InvalidInputError{Field: "distanceMatrix", Reason: fmt.Sprintf("need at least 2 rows, got %d", n)}
	}
	m := &Matrix{n: n, cost: make([]int, n*n)}
	for i, row := range rows {
		if len(row) != n {
			return nil, &model.InvalidInputError{Field: fmt.Sprintf("distanceMatrix[%d]", i), Reason: fmt.Sprintf("expected %d columns, got %d", n, len(row))}
		}
		for j, c := range row {
			if c < 0 || c > MaxCost {
				return nil, &model.InvalidInputError{Field: fmt.Sprintf("distanceMatrix[%d][%d]", i, j), Reason: fmt.Sprintf("cost must be between 0 and %d", MaxCost)}
			}
			if i == j && c != 0 {
				return nil, &model.InvalidInputError{Field: fmt.Sprintf("distanceMatrix[%d][%d]", i, j), Reason: "diagonal must be zero"}
			}
			m.cost[i*n+j] = c
		}
	}
	return m, nil
}

// At returns the cost of travelling from i to j.
func (m *Matrix) At(i, j int) int { return m.cost[i*m.n+j] }

// Len is the number of locations covered.
func (m *Matrix) Len() int { return m.n }

// Symmetric reports whether cost(i,j) == cost(j,i) for every pair.
func (m *Matrix) Symmetric() bool {
	for i := 0; i < m.n; i++ {
		for j := i + 1; j < m.n; j++ {
			if m.At(i, j) != m.At(j, i) {
				return false
			}
		}
	}
	return true
}

// Rows copies the table out as nested slices.
func (m *Matrix) Rows() [][]int {
	out := make([][]int, m.n)
	for i := range out {
		out[i] = append([]int(nil), m.cost[i*m.n:(i+1)*m.n]...)
	}
	return out
}
