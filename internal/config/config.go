// Package config loads recall's settings from flags, an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RECALL_"

// Config holds the runtime settings.
type Config struct {
	DB       string `koanf:"db" validate:"required"`
	Addr     string `koanf:"addr" validate:"required"`
	LogLevel string `koanf:"log-level" validate:"oneof=debug info warn error"`
	DueLimit int    `koanf:"due-limit" validate:"gte=0"`
	NewLimit int    `koanf:"new-limit" validate:"gte=0"`
	Seed     bool   `koanf:"seed"`
	ReposDir string `koanf:"repos-dir" validate:"required"`
}

// RegisterFlags defines the command-line flags Load understands, with their defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file")
	fs.String("db", "recall.db", "Path to the SQLite database file")
	fs.String("addr", ":8080", "HTTP listen address")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.Int("due-limit", 100, "Maximum due cards per study session")
	fs.Int("new-limit", 100, "Maximum new cards per study session")
	fs.Bool("seed", true, "Load the sample deck into an empty database")
	fs.String("repos-dir", "repos", "Directory git deck sources are cloned into")
}

// Load builds a Config from a parsed flag set.
//
// Precedence, highest first: flags set on the command line, RECALL_* environment
// variables, the YAML file named by --config, flag defaults.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, err := fs.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to read config flag: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// RECALL_DUE_LIMIT -> due-limit
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Changed flags always win; defaults only fill keys nothing else has set.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a JSON logger on stderr at the configured level.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: c.Level()}))
}
