package tokenizer

import (
	"errors"
	"fmt"
)

// Tokenizer converts raw text to the three parallel model input sequences
type Tokenizer interface {
	Encode(text string) (TokenSequence, error)
}

// Config holds basic tokenizer settings.
// MaxSeqLen > 0 truncates every encoding to that many tokens, boundary
// tokens included. MaxSeqLen <= 0 keeps the truncation declared by the
// tokenizer definition itself, if any.
type Config struct {
	MaxSeqLen int
}

var (
	// ErrLoad indicates the tokenizer definition bytes could not be loaded
	ErrLoad = errors.New("tokenizer load failed")
	// ErrUnsupported indicates the definition names a scheme we cannot build
	ErrUnsupported = errors.New("unsupported tokenizer configuration")
	// ErrEncode indicates a single text could not be tokenized
	ErrEncode = errors.New("tokenize failed")
)

// TokenSequence is the per-call model input: token ids, attention mask and
// token type ids, always of identical length.
type TokenSequence struct {
	IDs           []int64
	AttentionMask []int64
	TypeIDs       []int64
}

// Len returns the tokenized sequence length.
func (s TokenSequence) Len() int { return len(s.IDs) }

// Validate reports whether the sequence can be fed to a forward pass.
func (s TokenSequence) Validate() error {
	n := len(s.IDs)
	if n == 0 {
		return fmt.Errorf("empty token sequence")
	}
	if len(s.AttentionMask) != n || len(s.TypeIDs) != n {
		return fmt.Errorf("sequence length mismatch: ids=%d mask=%d types=%d",
			n, len(s.AttentionMask), len(s.TypeIDs))
	}
	return nil
}
