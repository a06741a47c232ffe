package tokenizer

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// supportedModels are the tokenizer.json model types sugarme can rebuild
var supportedModels = map[string]bool{
	"WordPiece": true,
	"BPE":       true,
	"WordLevel": true,
}

// Sugar wraps a sugarme/tokenizer instance. It is immutable after
// construction and safe for concurrent Encode calls.
type Sugar struct {
	t         *tk.Tokenizer
	maxSeqLen int
	special   SpecialTokens
}

var _ Tokenizer = (*Sugar)(nil)

// FromBytes builds a tokenizer from a serialized definition. A JSON object
// is read as a HuggingFace tokenizer.json; anything else as a BERT vocab.txt.
func FromBytes(data []byte, cfg Config) (s *Sugar, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = fmt.Errorf("%w: tokenizer library panic: %v", ErrLoad, r)
		}
	}()

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty definition", ErrLoad)
	}
	if !utf8.Valid(trimmed) {
		return nil, fmt.Errorf("%w: definition is not valid UTF-8", ErrLoad)
	}

	var t *tk.Tokenizer
	var special SpecialTokens
	if trimmed[0] == '{' {
		t, err = fromJSON(trimmed)
	} else {
		t, special, err = fromVocab(trimmed)
	}
	if err != nil {
		return nil, err
	}

	maxSeqLen := cfg.MaxSeqLen
	if maxSeqLen > 0 {
		trunc := tk.TruncationParams{MaxLength: maxSeqLen}
		if declared := t.GetTruncation(); declared != nil {
			trunc = *declared
			trunc.MaxLength = maxSeqLen
		}
		t.WithTruncation(&trunc)
	} else if declared := t.GetTruncation(); declared != nil {
		maxSeqLen = declared.MaxLength
	}
	return &Sugar{t: t, maxSeqLen: maxSeqLen, special: special}, nil
}

func fromJSON(data []byte) (*tk.Tokenizer, error) {
	var head struct {
		Model *struct {
			Type string `json:"type"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: parse tokenizer.json: %w", ErrLoad, err)
	}
	if head.Model == nil {
		return nil, fmt.Errorf("%w: tokenizer.json has no model section", ErrLoad)
	}
	if head.Model.Type != "" && !supportedModels[head.Model.Type] {
		return nil, fmt.Errorf("%w: %w: model type %q", ErrLoad, ErrUnsupported, head.Model.Type)
	}
	t, err := pretrained.FromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	// single-sequence encodings are never padded
	t.WithPadding(nil)
	return t, nil
}

// SpecialTokens returns the boundary token ids discovered in a vocab.txt
// definition. Known is false for tokenizer.json definitions.
func (s *Sugar) SpecialTokens() SpecialTokens { return s.special }

// MaxSeqLen returns the truncation limit applied by Encode: the configured
// override, else the limit the definition declares, else 0.
func (s *Sugar) MaxSeqLen() int { return s.maxSeqLen }

// Encode tokenizes a single sequence with special tokens added and no padding.
func (s *Sugar) Encode(text string) (seq TokenSequence, err error) {
	defer func() {
		if r := recover(); r != nil {
			seq = TokenSequence{}
			err = fmt.Errorf("%w: tokenizer library panic: %v", ErrEncode, r)
		}
	}()

	if !utf8.ValidString(text) {
		return TokenSequence{}, fmt.Errorf("%w: input is not valid UTF-8", ErrEncode)
	}
	enc, err := s.t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), true)
	if err != nil {
		return TokenSequence{}, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	n := len(enc.Ids)
	if n == 0 {
		return TokenSequence{}, fmt.Errorf("%w: no tokens produced", ErrEncode)
	}

	seq = TokenSequence{
		IDs:           make([]int64, n),
		AttentionMask: make([]int64, n),
		TypeIDs:       make([]int64, n),
	}
	for i := 0; i < n; i++ {
		seq.IDs[i] = int64(enc.Ids[i])
		seq.AttentionMask[i] = 1
		if i < len(enc.AttentionMask) {
			seq.AttentionMask[i] = int64(enc.AttentionMask[i])
		}
		if i < len(enc.TypeIds) {
			seq.TypeIDs[i] = int64(enc.TypeIds[i])
		}
		if seq.AttentionMask[i] != 1 {
			return TokenSequence{}, fmt.Errorf("%w: padded position %d in single-sequence encoding", ErrEncode, i)
		}
	}

	if s.maxSeqLen > 0 && n > s.maxSeqLen {
		keepEnd := len(enc.SpecialTokenMask) == n && enc.SpecialTokenMask[n-1] == 1
		seq = clip(seq, s.maxSeqLen, keepEnd)
	}
	return seq, seq.Validate()
}

// clip cuts seq to max tokens. With keepEnd the final (end marker) token
// replaces the last kept position.
func clip(seq TokenSequence, max int, keepEnd bool) TokenSequence {
	n := seq.Len()
	out := TokenSequence{
		IDs:           append([]int64(nil), seq.IDs[:max]...),
		AttentionMask: append([]int64(nil), seq.AttentionMask[:max]...),
		TypeIDs:       append([]int64(nil), seq.TypeIDs[:max]...),
	}
	if keepEnd && max >= 2 {
		out.IDs[max-1] = seq.IDs[n-1]
		out.AttentionMask[max-1] = seq.AttentionMask[n-1]
		out.TypeIDs[max-1] = seq.TypeIDs[n-1]
	}
	return out
}
