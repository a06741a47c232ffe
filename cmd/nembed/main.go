// Command nembed embeds text with a local ONNX transformer model.
//
// Texts come from the positional arguments, or one per line on stdin when
// none are given. Each result is written to stdout as a JSON line.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	internal "github.com/unit-mesh/native-embedding/nembed"
	"github.com/unit-mesh/native-embedding/nembed/config"
	"github.com/unit-mesh/native-embedding/nembed/embedding"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// maxLineBytes bounds a single stdin line
const maxLineBytes = 1 << 20

type record struct {
	Index     int                 `json:"index"`
	Text      string              `json:"text"`
	Embedding embedding.Embedding `json:"embedding"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	fs := pflag.NewFlagSet(internal.DefaultAppName, pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to a config file")
	fs.String("model", "", "path to the ONNX model")
	fs.String("tokenizer", "", "path to tokenizer.json or vocab.txt")
	fs.String("runtime-lib", "", "path to the onnxruntime shared library")
	fs.Int("threads", 0, "intra-op threads (default from NUM_OMP_THREADS, else 1)")
	fs.Int("max-seq-len", 0, "truncate inputs to this many tokens (default: the tokenizer's own limit)")
	fs.Int("workers", 0, "concurrent embed calls")
	fs.String("log-level", "", "log level")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	v := viper.New()
	for key, flag := range map[string]string{
		"engine.modelPath":         "model",
		"engine.tokenizerPath":     "tokenizer",
		"engine.runtimeLibrary":    "runtime-lib",
		"engine.threads":           "threads",
		"engine.maxSequenceLength": "max-seq-len",
		"cli.workers":              "workers",
		"log.level":                "log-level",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "bind flag %s: %v\n", flag, err)
			return 2
		}
	}

	cfg, err := config.LoadConfig(*configPath, v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	logger := internal.NewLogger(cfg.Log.Level)

	texts, err := readTexts(fs.Args(), stdin)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read input texts")
		return 1
	}
	if len(texts) == 0 {
		logger.Warn().Msg("No input texts")
		return 0
	}

	eng, err := newEngine(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize embedding engine")
		return 1
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, err := embedAll(ctx, eng, texts, cfg.CLI.Workers)
	if err != nil {
		logger.Error().Err(err).Msg("Embedding failed")
		return 1
	}

	enc := json.NewEncoder(stdout)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			logger.Error().Err(err).Msg("Failed to write result")
			return 1
		}
	}

	logger.Info().
		Str("engine_id", eng.ID().String()).
		Fields(eng.Metrics()).
		Msg("Done")
	return 0
}

func newEngine(cfg *config.Config, logger zerolog.Logger) (*embedding.Engine, error) {
	if cfg.Engine.ModelPath == "" || cfg.Engine.TokenizerPath == "" {
		return nil, errors.New("engine.modelPath and engine.tokenizerPath are required")
	}
	model, err := os.ReadFile(cfg.Engine.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	tok, err := os.ReadFile(cfg.Engine.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	return embedding.New(model, tok, cfg.EngineConfig(), embedding.WithLogger(logger))
}

// readTexts returns args, or the lines of r when there are no args
func readTexts(args []string, r io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	var texts []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		texts = append(texts, sc.Text())
	}
	return texts, sc.Err()
}

// embedAll fans texts out over a bounded pool, keeping input order.
func embedAll(ctx context.Context, e embedding.Embedder, texts []string, workers int) ([]record, error) {
	if workers <= 0 {
		workers = internal.DefaultWorkers
	}
	out := make([]record, len(texts))
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()
	for i, text := range texts {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			vec, err := e.Embed(text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			out[i] = record{Index: i, Text: text, Embedding: vec}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
