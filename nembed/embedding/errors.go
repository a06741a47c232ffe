package embedding

import "errors"

// Init-time errors. New never returns a usable Engine alongside them.
var (
	ErrTokenizerLoad = errors.New("tokenizer load failed")
	ErrModelLoad     = errors.New("model load failed")
)

// Call-time errors. They leave the Engine unchanged; the caller may retry.
var (
	ErrTokenize    = errors.New("tokenize failed")
	ErrInference   = errors.New("inference failed")
	ErrOutputShape = errors.New("unexpected output tensor")
)

var errGraphClosed = errors.New("graph is closed")
