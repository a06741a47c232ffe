package embedding

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// meanPool averages a (seqLen, hidden) row-major block over the token axis.
// Every position has equal weight; the attention mask is not applied, which
// only matches mask-weighted pooling while there is no padding (batch of 1).
// Accumulation is in float64 so a constant per-token vector pools to itself.
func meanPool(data []float32, seqLen, hidden int) ([]float32, error) {
	if seqLen <= 0 || hidden <= 0 {
		return nil, fmt.Errorf("%w: cannot pool %dx%d block", ErrOutputShape, seqLen, hidden)
	}
	if len(data) != seqLen*hidden {
		return nil, fmt.Errorf("%w: %d values for %dx%d block", ErrOutputShape, len(data), seqLen, hidden)
	}

	wide := make([]float64, len(data))
	for i, v := range data {
		wide[i] = float64(v)
	}
	m := mat.NewDense(seqLen, hidden, wide)

	col := make([]float64, seqLen)
	out := make([]float32, hidden)
	for j := 0; j < hidden; j++ {
		mat.Col(col, j, m)
		out[j] = float32(stat.Mean(col, nil))
	}
	return out, nil
}
