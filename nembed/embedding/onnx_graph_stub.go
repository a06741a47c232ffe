//go:build !onnx
// +build !onnx

package embedding

import "errors"

// compileONNX is a stub used when built without the "onnx" build tag.
func compileONNX(model []byte, opts GraphOptions) (Graph, error) {
	return nil, errors.New("onnx support not built in; rebuild with -tags onnx and provide the onnxruntime shared library")
}
