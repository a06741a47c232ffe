package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/unit-mesh/native-embedding/nembed"
	"github.com/unit-mesh/native-embedding/nembed/embedding"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Engine EngineConfig `mapstructure:"engine"`
	Log    LogConfig    `mapstructure:"log"`
	CLI    CLIConfig    `mapstructure:"cli"`
}

// EngineConfig stores model locations and execution settings.
type EngineConfig struct {
	ModelPath         string `mapstructure:"modelPath"`
	TokenizerPath     string `mapstructure:"tokenizerPath"`
	RuntimeLibrary    string `mapstructure:"runtimeLibrary"`
	MaxSequenceLength int    `mapstructure:"maxSequenceLength"`
	// Threads is resolved separately so an unparsable value falls back to
	// the default instead of failing the whole decode.
	Threads int `mapstructure:"-"`
}

// LogConfig stores logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// CLIConfig stores settings of the command line collaborator.
type CLIConfig struct {
	Workers int `mapstructure:"workers"`
}

// ThreadEnvVars are consulted, in order, for engine.threads
var ThreadEnvVars = []string{"NUM_OMP_THREADS", "ENGINE_THREADS"}

// LoadConfig reads configuration from file or environment variables.
// Passing a viper instance lets callers bind flags before loading.
func LoadConfig(configPath string, v ...*viper.Viper) (*Config, error) {
	vp := viper.New()
	if len(v) > 0 && v[0] != nil {
		vp = v[0]
	}

	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.AddConfigPath(".")
		vp.AddConfigPath("..")
		vp.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		vp.AddConfigPath(internal.DefaultConfigPath)
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
	}

	vp.SetDefault("engine.modelPath", "")
	vp.SetDefault("engine.tokenizerPath", "")
	vp.SetDefault("engine.runtimeLibrary", "")
	vp.SetDefault("engine.maxSequenceLength", internal.DefaultMaxSequenceLength)
	vp.SetDefault("engine.threads", internal.DefaultThreads)
	vp.SetDefault("log.level", internal.DefaultLogLevel)
	vp.SetDefault("cli.workers", internal.DefaultWorkers)

	vp.AutomaticEnv()                                   // Read in environment variables that match
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // engine.modelPath becomes ENGINE_MODELPATH
	if err := vp.BindEnv(append([]string{"engine.threads"}, ThreadEnvVars...)...); err != nil {
		return nil, fmt.Errorf("bind thread env: %w", err)
	}

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults will be used.
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	cfg.Engine.Threads = parseThreads(vp.Get("engine.threads"))
	if cfg.CLI.Workers <= 0 {
		cfg.CLI.Workers = internal.DefaultWorkers
	}

	return &cfg, nil
}

// parseThreads maps absent, unparsable or non-positive values to the default
func parseThreads(raw interface{}) int {
	n, err := cast.ToIntE(raw)
	if err != nil || n <= 0 {
		return internal.DefaultThreads
	}
	return n
}

// EngineConfig returns the explicit configuration handed to embedding.New
func (c *Config) EngineConfig() embedding.Config {
	return embedding.Config{
		Threads:           c.Engine.Threads,
		MaxSeqLen:         c.Engine.MaxSequenceLength,
		SharedLibraryPath: c.Engine.RuntimeLibrary,
	}
}
