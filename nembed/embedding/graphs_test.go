package embedding

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/unit-mesh/native-embedding/nembed/embedding/tokenizer"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Synthetic graphs standing in for a compiled ONNX session.

// constGraph emits the same vector at every token position
type constGraph struct {
	v      []float32
	closed atomic.Bool
}

func (g *constGraph) Forward(seq tokenizer.TokenSequence) (Activations, error) {
	n := seq.Len()
	data := make([]float32, 0, n*len(g.v))
	for i := 0; i < n; i++ {
		data = append(data, g.v...)
	}
	return Activations{Data: data, Shape: []int64{1, int64(n), int64(len(g.v))}}, nil
}

func (g *constGraph) Close() error { g.closed.Store(true); return nil }

// hashGraph derives each token's vector from a hash of its id and position
type hashGraph struct {
	dims   int
	closed atomic.Bool
}

func tokenVector(id int64, pos, dims int) []float32 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(id))
	binary.LittleEndian.PutUint64(buf[8:], uint64(pos))
	sum := sha256.Sum256(buf[:])
	vec := make([]float32, dims)
	// repeat hash bytes to fill dims
	for j := 0; j < dims; j++ {
		b := sum[j%len(sum)]
		vec[j] = (float32(int(b)) - 128.0) / 128.0
	}
	return vec
}

func (g *hashGraph) Forward(seq tokenizer.TokenSequence) (Activations, error) {
	n := seq.Len()
	data := make([]float32, 0, n*g.dims)
	for i, id := range seq.IDs {
		data = append(data, tokenVector(id, i, g.dims)...)
	}
	return Activations{Data: data, Shape: []int64{1, int64(n), int64(g.dims)}}, nil
}

func (g *hashGraph) Close() error { g.closed.Store(true); return nil }

// Fault modes for faultyGraph
const (
	modeOK int32 = iota
	modeRank2
	modeWrongSeqLen
	modeWrongHidden
	modeWrongDtype
	modeRunError
	modePanic
	modeShortData
)

// faultyGraph behaves like hashGraph until a fault mode is switched on
type faultyGraph struct {
	hashGraph
	mode atomic.Int32
}

func (g *faultyGraph) Forward(seq tokenizer.TokenSequence) (Activations, error) {
	act, _ := g.hashGraph.Forward(seq)
	n := int64(seq.Len())
	switch g.mode.Load() {
	case modeRank2:
		act.Shape = []int64{n, int64(g.dims)}
	case modeWrongSeqLen:
		act.Shape = []int64{1, n + 1, int64(g.dims)}
	case modeWrongHidden:
		act.Shape = []int64{1, n, int64(g.dims / 2)}
		act.Data = act.Data[:int(n)*(g.dims/2)]
	case modeWrongDtype:
		return Activations{}, fmt.Errorf("%w: output %q is *ort.Tensor[int64], want float32 tensor", ErrOutputShape, "last_hidden_state")
	case modeRunError:
		return Activations{}, errors.New("onnx run: shape mismatch on node /embeddings/Add")
	case modePanic:
		panic("runtime fault")
	case modeShortData:
		act.Data = act.Data[:len(act.Data)-1]
	}
	return act, nil
}

// failingGraph fails every forward pass
type failingGraph struct{ closed atomic.Bool }

func (g *failingGraph) Forward(tokenizer.TokenSequence) (Activations, error) {
	return Activations{}, errors.New("unsupported operator: FancyAttention")
}

func (g *failingGraph) Close() error { g.closed.Store(true); return nil }

func testVocab(t testing.TB) []byte {
	return testDefinition(t, "vocab.txt")
}

func testDefinition(t testing.TB, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("tokenizer", "testdata", name))
	require.NoError(t, err)
	return b
}

func staticCompiler(g Graph) compileFunc {
	return func([]byte, GraphOptions) (Graph, error) { return g, nil }
}

func newTestEngine(t testing.TB, g Graph, cfg Config) *Engine {
	t.Helper()
	e, err := New([]byte("synthetic-model"), testVocab(t), cfg,
		WithLogger(zerolog.Nop()), withCompiler(staticCompiler(g)))
	require.NoError(t, err)
	require.NotNil(t, e)
	return e
}
