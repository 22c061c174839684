package opt

import (
	"gonum.org/v1/gonum/mat"
)

// DistanceOracle answers pairwise travel costs. Implementations must be safe
// for concurrent readers.
type DistanceOracle interface {
	Cost(from, to int) float64
	Len() int
}

// MatrixOracle serves costs from a dense matrix materialized once per instance.
type MatrixOracle struct {
	m   *mat.Dense
	raw []float64
	n   int
}

// NewMatrixOracle copies a validated square matrix into a dense buffer.
func NewMatrixOracle(rows [][]float64) *MatrixOracle {
	n := len(rows)
	data := make([]float64, 0, n*n)
	for _, r := range rows {
		data = append(data, r[:n]...)
	}
	d := mat.NewDense(n, n, data)
	return &MatrixOracle{m: d, raw: d.RawMatrix().Data, n: n}
}

// Cost returns matrix[from][to].
func (o *MatrixOracle) Cost(from, to int) float64 { return o.raw[from*o.n+to] }

// Len is the node count.
func (o *MatrixOracle) Len() int { return o.n }

// Dense exposes the underlying matrix for read-only use.
func (o *MatrixOracle) Dense() mat.Matrix { return o.m }
