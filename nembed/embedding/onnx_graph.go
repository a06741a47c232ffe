//go:build onnx
// +build onnx

package embedding

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/unit-mesh/native-embedding/nembed/embedding/tokenizer"

	ort "github.com/yalue/onnxruntime_go"
)

var envMu sync.Mutex

// ensureEnvironment initializes the process-wide ORT environment once.
func ensureEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnx runtime: %w", err)
	}
	return nil
}

// ortGraph is an ONNX Runtime session on the CPU execution provider.
// ORT documents Run on a single session as safe from concurrent threads, and
// DynamicAdvancedSession binds inputs/outputs per call, so Forward takes only
// a read lock that excludes Close.
type ortGraph struct {
	mu         sync.RWMutex
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
}

var _ Graph = (*ortGraph)(nil)

func compileONNX(model []byte, opts GraphOptions) (Graph, error) {
	if len(model) == 0 {
		return nil, errors.New("model bytes are empty")
	}
	if err := ensureEnvironment(opts.SharedLibraryPath); err != nil {
		return nil, err
	}

	ins, outs, err := ort.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return nil, fmt.Errorf("get IO info: %w", err)
	}
	inputNames, err := resolveInputs(ins)
	if err != nil {
		return nil, err
	}
	if len(outs) == 0 {
		return nil, errors.New("model declares no outputs")
	}
	if outs[0].DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("output %q has element type %v, want float", outs[0].Name, outs[0].DataType)
	}
	if n := len(outs[0].Dimensions); n != 3 {
		return nil, fmt.Errorf("output %q has rank %d, want 3", outs[0].Name, n)
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = 1
	}
	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer so.Destroy()
	if err := so.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, fmt.Errorf("set optimization level: %w", err)
	}
	if err := so.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("set intra-op threads: %w", err)
	}
	if err := so.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("set inter-op threads: %w", err)
	}

	s, err := ort.NewDynamicAdvancedSessionWithONNXData(model, inputNames, []string{outs[0].Name}, so)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &ortGraph{session: s, inputNames: inputNames, outputName: outs[0].Name}, nil
}

// resolveInputs returns the model's input names ordered as
// [ids, attention mask, token type ids]. Names are matched the usual way;
// if any input is unrecognised the declared order is authoritative.
func resolveInputs(ins []ort.InputOutputInfo) ([]string, error) {
	if len(ins) != 3 {
		return nil, fmt.Errorf("model declares %d inputs, want 3 (ids, attention mask, token type ids)", len(ins))
	}
	for _, ii := range ins {
		if ii.DataType != ort.TensorElementDataTypeInt64 {
			return nil, fmt.Errorf("input %q has element type %v, want int64", ii.Name, ii.DataType)
		}
		if len(ii.Dimensions) != 2 {
			return nil, fmt.Errorf("input %q has rank %d, want 2", ii.Name, len(ii.Dimensions))
		}
	}

	byRole := make([]string, 3)
	for _, ii := range ins {
		n := strings.ToLower(ii.Name)
		role := -1
		switch {
		case strings.Contains(n, "input_ids") || n == "ids":
			role = 0
		case strings.Contains(n, "attention_mask") || n == "mask":
			role = 1
		case strings.Contains(n, "token_type"):
			role = 2
		}
		if role < 0 || byRole[role] != "" {
			byRole = nil
			break
		}
		byRole[role] = ii.Name
	}
	if byRole != nil {
		return byRole, nil
	}
	return []string{ins[0].Name, ins[1].Name, ins[2].Name}, nil
}

func (g *ortGraph) Forward(seq tokenizer.TokenSequence) (Activations, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return Activations{}, errGraphClosed
	}

	shape := ort.NewShape(1, int64(seq.Len()))
	idsTensor, err := ort.NewTensor(shape, seq.IDs)
	if err != nil {
		return Activations{}, fmt.Errorf("ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, seq.AttentionMask)
	if err != nil {
		return Activations{}, fmt.Errorf("mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typesTensor, err := ort.NewTensor(shape, seq.TypeIDs)
	if err != nil {
		return Activations{}, fmt.Errorf("token type tensor: %w", err)
	}
	defer typesTensor.Destroy()

	// nil output: ORT allocates it with the shape the graph produces
	outs := []ort.Value{nil}
	if err := g.session.Run([]ort.Value{idsTensor, maskTensor, typesTensor}, outs); err != nil {
		return Activations{}, fmt.Errorf("onnx run: %w", err)
	}
	defer func() {
		if outs[0] != nil {
			outs[0].Destroy()
		}
	}()

	t, ok := outs[0].(*ort.Tensor[float32])
	if !ok {
		return Activations{}, fmt.Errorf("%w: output %q is %T, want float32 tensor", ErrOutputShape, g.outputName, outs[0])
	}
	return Activations{
		Data:  append([]float32(nil), t.GetData()...),
		Shape: append([]int64(nil), t.GetShape()...),
	}, nil
}

func (g *ortGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return nil
	}
	err := g.session.Destroy()
	g.session = nil
	return err
}
