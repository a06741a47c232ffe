//go:build onnx
// +build onnx

package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func int64Input(name string) ort.InputOutputInfo {
	return ort.InputOutputInfo{
		Name:       name,
		Dimensions: ort.NewShape(-1, -1),
		DataType:   ort.TensorElementDataTypeInt64,
	}
}

func TestResolveInputsByName(t *testing.T) {
	names, err := resolveInputs([]ort.InputOutputInfo{
		int64Input("token_type_ids"),
		int64Input("input_ids"),
		int64Input("attention_mask"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"input_ids", "attention_mask", "token_type_ids"}, names)
}

func TestResolveInputsFallsBackToDeclaredOrder(t *testing.T) {
	names, err := resolveInputs([]ort.InputOutputInfo{
		int64Input("a"),
		int64Input("b"),
		int64Input("c"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestResolveInputsRejectsContractMismatch(t *testing.T) {
	_, err := resolveInputs([]ort.InputOutputInfo{int64Input("input_ids"), int64Input("attention_mask")})
	assert.Error(t, err)

	f := int64Input("token_type_ids")
	f.DataType = ort.TensorElementDataTypeFloat
	_, err = resolveInputs([]ort.InputOutputInfo{int64Input("input_ids"), int64Input("attention_mask"), f})
	assert.Error(t, err)

	r := int64Input("token_type_ids")
	r.Dimensions = ort.NewShape(-1)
	_, err = resolveInputs([]ort.InputOutputInfo{int64Input("input_ids"), int64Input("attention_mask"), r})
	assert.Error(t, err)
}
