package embedding

import (
	"github.com/unit-mesh/native-embedding/nembed/embedding/tokenizer"
)

// Graph is a compiled computation graph bound to an execution context.
// Forward must be safe for concurrent use.
type Graph interface {
	// Forward runs one sequence (batch size 1) and returns the first output.
	Forward(seq tokenizer.TokenSequence) (Activations, error)
	Close() error
}

// Activations is a dense float32 output tensor in row-major order
type Activations struct {
	Data  []float32
	Shape []int64
}

// GraphOptions configures graph compilation
type GraphOptions struct {
	Threads           int
	SharedLibraryPath string
}

// compileFunc builds a Graph from serialized model bytes
type compileFunc func(model []byte, opts GraphOptions) (Graph, error)
