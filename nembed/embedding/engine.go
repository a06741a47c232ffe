package embedding

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	internal "github.com/unit-mesh/native-embedding/nembed"
	"github.com/unit-mesh/native-embedding/nembed/embedding/tokenizer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Embedding is a sentence-level vector of the model's hidden dimension
type Embedding []float32

// Embedder produces fixed-dimension embeddings from input text
type Embedder interface {
	Dimensions() int
	Embed(text string) (Embedding, error)
}

// Config is the explicit engine configuration. The execution context is
// always the CPU; Threads <= 0 means 1.
type Config struct {
	Threads           int
	MaxSeqLen         int
	SharedLibraryPath string
}

// Option customizes New
type Option func(*options)

type options struct {
	logger  zerolog.Logger
	compile compileFunc
}

// WithLogger sets the logger used by the engine
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func withCompiler(c compileFunc) Option {
	return func(o *options) { o.compile = c }
}

// Engine owns a tokenizer and a compiled graph and serves Embed calls.
// It is immutable after New and safe for concurrent use.
type Engine struct {
	id    uuid.UUID
	model []byte // private copy; the graph was compiled from it
	tok   tokenizer.Tokenizer
	graph Graph
	dims  int
	log   zerolog.Logger

	metrics   EmbedMetrics
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ Embedder = (*Engine)(nil)

// New loads the tokenizer, compiles the model graph and validates it with a
// probe forward pass. On any failure no Engine is returned.
func New(model, tokenizerData []byte, cfg Config, opts ...Option) (*Engine, error) {
	o := options{logger: internal.GetLogger(), compile: compileONNX}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.New()
	log := o.logger.With().Str("component", "embedding").Str("engine_id", id.String()).Logger()

	gopts := GraphOptions{Threads: cfg.Threads, SharedLibraryPath: cfg.SharedLibraryPath}
	if gopts.Threads <= 0 {
		gopts.Threads = 1
	}
	log.Debug().Str("provider", "cpu").Int("threads", gopts.Threads).Msg("Execution context")

	tok, err := tokenizer.FromBytes(tokenizerData, tokenizer.Config{MaxSeqLen: cfg.MaxSeqLen})
	if err != nil {
		log.Warn().Err(err).Msg("Tokenizer load failed")
		return nil, fmt.Errorf("%w: %w", ErrTokenizerLoad, err)
	}

	retained := bytes.Clone(model)
	graph, err := compileGraph(o.compile, retained, gopts)
	if err != nil {
		log.Warn().Err(err).Int("model_bytes", len(model)).Msg("Model load failed")
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	e := &Engine{
		id:    id,
		model: retained,
		tok:   tok,
		graph: graph,
		log:   log,
	}

	probe, _, err := e.run("", 0)
	if err != nil {
		_ = graph.Close()
		log.Warn().Err(err).Msg("Probe forward pass failed")
		return nil, fmt.Errorf("%w: probe forward pass: %w", ErrModelLoad, err)
	}
	e.dims = len(probe)

	log.Info().
		Int("dimensions", e.dims).
		Int("model_bytes", len(retained)).
		Int("max_seq_len", cfg.MaxSeqLen).
		Msg("Embedding engine ready")
	return e, nil
}

func compileGraph(compile compileFunc, model []byte, opts GraphOptions) (g Graph, err error) {
	defer func() {
		if r := recover(); r != nil {
			g = nil
			err = fmt.Errorf("graph compiler panic: %v", r)
		}
	}()
	if len(model) == 0 {
		return nil, errors.New("model bytes are empty")
	}
	g, err = compile(model, opts)
	if err == nil && g == nil {
		err = errors.New("graph compiler returned no graph")
	}
	return g, err
}

// ID identifies this engine in logs
func (e *Engine) ID() uuid.UUID { return e.id }

// Dimensions returns the model's hidden dimension
func (e *Engine) Dimensions() int { return e.dims }

// Metrics returns a snapshot of the engine's call counters
func (e *Engine) Metrics() map[string]interface{} { return e.metrics.GetMetrics() }

// Embed tokenizes text, runs the forward pass and mean-pools the per-token
// output into a vector of length Dimensions(). Errors are local to the call.
func (e *Engine) Embed(text string) (Embedding, error) {
	start := time.Now()
	if e.closed.Load() {
		e.metrics.record(start, 0, false)
		return nil, fmt.Errorf("%w: %w", ErrInference, errGraphClosed)
	}

	vec, tokens, err := e.run(text, e.dims)
	e.metrics.record(start, tokens, err == nil)
	if err != nil {
		e.log.Debug().Err(err).Int("tokens", tokens).Msg("Embed failed")
		return nil, err
	}
	return vec, nil
}

// run executes one tokenize → forward → pool pass. hidden > 0 pins the
// expected hidden dimension.
func (e *Engine) run(text string, hidden int) (Embedding, int, error) {
	seq, err := e.tok.Encode(text)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrTokenize, err)
	}
	if err := seq.Validate(); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrTokenize, err)
	}
	n := seq.Len()

	act, err := e.forward(seq)
	if err != nil {
		if errors.Is(err, ErrOutputShape) {
			return nil, n, err
		}
		return nil, n, fmt.Errorf("%w: %w", ErrInference, err)
	}

	if len(act.Shape) != 3 {
		return nil, n, fmt.Errorf("%w: rank %d, want 3", ErrOutputShape, len(act.Shape))
	}
	if act.Shape[0] != 1 || act.Shape[1] != int64(n) {
		return nil, n, fmt.Errorf("%w: shape %v, want (1, %d, hidden)", ErrOutputShape, act.Shape, n)
	}
	h := int(act.Shape[2])
	if hidden > 0 && h != hidden {
		return nil, n, fmt.Errorf("%w: hidden dimension %d, want %d", ErrOutputShape, h, hidden)
	}

	vec, err := meanPool(act.Data, n, h)
	if err != nil {
		return nil, n, err
	}
	return vec, n, nil
}

func (e *Engine) forward(seq tokenizer.TokenSequence) (act Activations, err error) {
	defer func() {
		if r := recover(); r != nil {
			act = Activations{}
			err = fmt.Errorf("forward pass panic: %v", r)
		}
	}()
	return e.graph.Forward(seq)
}

// Close releases the compiled graph. It is safe to call more than once;
// Embed fails with ErrInference afterwards.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.closeErr = e.graph.Close()
		e.log.Debug().Interface("metrics", e.metrics.GetMetrics()).Msg("Embedding engine closed")
	})
	return e.closeErr
}
