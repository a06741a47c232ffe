package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanPool(t *testing.T) {
	got, err := meanPool([]float32{
		1, 2, 3,
		3, 4, 5,
	}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4}, got)
}

func TestMeanPoolSinglePosition(t *testing.T) {
	got, err := meanPool([]float32{-1.5, 0, 7}, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []float32{-1.5, 0, 7}, got)
}

func TestMeanPoolConstantIsExact(t *testing.T) {
	v := []float32{0.1, 1.0 / 3.0, -7.77e-5, 65504.5, math.SmallestNonzeroFloat32, -1e30}
	for _, seqLen := range []int{1, 2, 3, 7, 64, 511} {
		data := make([]float32, 0, seqLen*len(v))
		for i := 0; i < seqLen; i++ {
			data = append(data, v...)
		}
		got, err := meanPool(data, seqLen, len(v))
		require.NoError(t, err)
		assert.Equal(t, v, got, "seqLen=%d", seqLen)
	}
}

func TestMeanPoolWeightsEveryPosition(t *testing.T) {
	// boundary positions count like any other token
	got, err := meanPool([]float32{
		10, 0,
		0, 0,
		0, 0,
		-10, 4,
	}, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, got)
}

func TestMeanPoolRejectsBadShapes(t *testing.T) {
	_, err := meanPool([]float32{1, 2, 3}, 2, 2)
	assert.ErrorIs(t, err, ErrOutputShape)

	_, err = meanPool(nil, 0, 4)
	assert.ErrorIs(t, err, ErrOutputShape)

	_, err = meanPool(nil, 3, 0)
	assert.ErrorIs(t, err, ErrOutputShape)
}
