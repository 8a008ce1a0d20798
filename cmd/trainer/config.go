package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/CTAG07/markov-trainer/pkg/markov"
)

// Config holds every setting of the command line tool. Values come from
// flags, MARKOV_TRAINER_* environment variables, a config file and the
// defaults, in that order of precedence.
type Config struct {
	InputDir    string `mapstructure:"input_dir" json:"input_dir"`
	ContextSize int    `mapstructure:"context_size" json:"context_size"`
	Output      string `mapstructure:"output" json:"output"`
	Workers     int    `mapstructure:"workers" json:"workers"`
	Tokenizer   string `mapstructure:"tokenizer" json:"tokenizer"`
	InvalidUTF8 string `mapstructure:"invalid_utf8" json:"invalid_utf8"`
	LogLevel    string `mapstructure:"log_level" json:"log_level"`
}

// LoadOptions tells Load where to find flags and the config file.
type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// configKeys maps every config key to the flag that sets it.
var configKeys = []struct{ key, flag string }{
	{"input_dir", "input-dir"},
	{"context_size", "context-size"},
	{"output", "output"},
	{"workers", "workers"},
	{"tokenizer", "tokenizer"},
	{"invalid_utf8", "invalid-utf8"},
	{"log_level", "log-level"},
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() Config {
	return Config{
		InputDir:    "",
		ContextSize: 3,
		Output:      "model.db",
		Workers:     0,
		Tokenizer:   "rune",
		InvalidUTF8: "coerce",
		LogLevel:    "info",
	}
}

// RegisterFlags adds a flag for every config key to fs.
func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("input-dir", defaults.InputDir, "Directory of training files, searched recursively")
	fs.IntP("context-size", "k", defaults.ContextSize, "Number of symbols in every context")
	fs.StringP("output", "o", defaults.Output, "Model artifact path (.json for JSON, anything else for SQLite)")
	fs.Int("workers", defaults.Workers, "Files tokenized in parallel (0 = GOMAXPROCS)")
	fs.String("tokenizer", defaults.Tokenizer, "Symbol unit: rune, byte or word")
	fs.String("invalid-utf8", defaults.InvalidUTF8, "Invalid UTF-8 policy of the rune tokenizer: coerce or reject")
	fs.String("log-level", defaults.LogLevel, "Log level: debug, info, warn or error")
}

// Load resolves the configuration.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		fs := opts.Cmd.Flags()
		for _, k := range configKeys {
			if f := fs.Lookup(k.flag); f != nil {
				if err := v.BindPFlag(k.key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", k.flag, err)
				}
			}
		}
	}

	v.SetEnvPrefix("MARKOV_TRAINER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("markov-trainer")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("input_dir", c.InputDir)
	v.SetDefault("context_size", c.ContextSize)
	v.SetDefault("output", c.Output)
	v.SetDefault("workers", c.Workers)
	v.SetDefault("tokenizer", c.Tokenizer)
	v.SetDefault("invalid_utf8", c.InvalidUTF8)
	v.SetDefault("log_level", c.LogLevel)
}

// Validate checks the settings that do not depend on the command. The
// context size is left to the markov package, which rejects it before any
// file is read.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", markov.ErrInvalidConfiguration, c.Workers)
	}
	if _, err := c.NewTokenizer(); err != nil {
		return err
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NewTokenizer builds the tokenizer the config names.
func (c Config) NewTokenizer() (markov.Tokenizer, error) {
	var policy markov.InvalidUTF8Policy
	switch strings.ToLower(c.InvalidUTF8) {
	case "coerce", "":
		policy = markov.CoerceInvalid
	case "reject":
		policy = markov.RejectInvalid
	default:
		return nil, fmt.Errorf("%w: unknown invalid_utf8 policy %q", markov.ErrInvalidConfiguration, c.InvalidUTF8)
	}

	switch strings.ToLower(c.Tokenizer) {
	case "rune", "":
		return markov.NewRuneTokenizer(markov.WithInvalidUTF8(policy)), nil
	case "byte":
		return markov.NewByteTokenizer(), nil
	case "word":
		return markov.NewWordTokenizer(), nil
	default:
		return nil, fmt.Errorf("%w: unknown tokenizer %q", markov.ErrInvalidConfiguration, c.Tokenizer)
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: unknown log level %q", markov.ErrInvalidConfiguration, s)
	}
}

// WriteConfig writes c as a JSON config file, replacing path atomically.
func WriteConfig(path string, c Config) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(append(data, '\n'))); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
