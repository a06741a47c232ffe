package tokenizer

import (
	"fmt"
	"os"
	"strings"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"
)

const (
	unkToken = "[UNK]"
	clsToken = "[CLS]"
	sepToken = "[SEP]"
)

// SpecialTokens holds the BERT boundary token ids of a vocab.txt definition
type SpecialTokens struct {
	UNK   int
	CLS   int
	SEP   int
	Known bool
}

// parseVocab reads a BERT vocab.txt: one token per line, id = line index.
// Blank lines and duplicate tokens are rejected so ids stay unambiguous.
func parseVocab(data []byte) (map[string]int, error) {
	lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\n")
	vocab := make(map[string]int, len(lines))
	for idx, line := range lines {
		tok := strings.TrimRight(line, "\r")
		if strings.TrimSpace(tok) == "" {
			return nil, fmt.Errorf("%w: blank vocab entry at line %d", ErrLoad, idx+1)
		}
		if _, dup := vocab[tok]; dup {
			return nil, fmt.Errorf("%w: duplicate vocab entry %q at line %d", ErrLoad, tok, idx+1)
		}
		vocab[tok] = idx
	}
	return vocab, nil
}

func discoverSpecial(vocab map[string]int) (SpecialTokens, error) {
	var sp SpecialTokens
	var missing []string
	for _, want := range []struct {
		name string
		dst  *int
	}{{unkToken, &sp.UNK}, {clsToken, &sp.CLS}, {sepToken, &sp.SEP}} {
		id, ok := vocab[want.name]
		if !ok {
			missing = append(missing, want.name)
			continue
		}
		*want.dst = id
	}
	if len(missing) > 0 {
		return SpecialTokens{}, fmt.Errorf("%w: vocab lacks %s", ErrLoad, strings.Join(missing, ", "))
	}
	sp.Known = true
	return sp, nil
}

// fromVocab builds a BERT-style WordPiece tokenizer from vocab.txt bytes.
// sugarme only loads WordPiece vocabularies from a path, so the bytes are
// staged in a temp file for the duration of the build.
func fromVocab(data []byte) (*tk.Tokenizer, SpecialTokens, error) {
	vocab, err := parseVocab(data)
	if err != nil {
		return nil, SpecialTokens{}, err
	}
	special, err := discoverSpecial(vocab)
	if err != nil {
		return nil, SpecialTokens{}, err
	}

	f, err := os.CreateTemp("", "nembed-vocab-*.txt")
	if err != nil {
		return nil, SpecialTokens{}, fmt.Errorf("%w: stage vocab: %w", ErrLoad, err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return nil, SpecialTokens{}, fmt.Errorf("%w: stage vocab: %w", ErrLoad, err)
	}
	if err := f.Close(); err != nil {
		return nil, SpecialTokens{}, fmt.Errorf("%w: stage vocab: %w", ErrLoad, err)
	}

	wp, err := wordpiece.NewWordPieceFromFile(f.Name(), unkToken)
	if err != nil {
		return nil, SpecialTokens{}, fmt.Errorf("%w: build wordpiece: %w", ErrLoad, err)
	}

	t := tk.NewTokenizer(wp)
	// Basic normalizer and pre-tokenizer similar to BERT
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())
	t.WithPostProcessor(processor.NewBertProcessing(
		processor.PostToken{Value: sepToken, Id: special.SEP},
		processor.PostToken{Value: clsToken, Id: special.CLS},
	))
	return t, special, nil
}
