// Package config loads a fernet keyring configuration.
//
// Values come, in increasing precedence, from defaults, an optional YAML file, .env files
// and the process environment. Existing environment variables are never overwritten by
// .env files.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/oarkflow/fernet/token"
)

// Environment variables read by Load.
const (
	EnvKeys      = "FERNET_KEYS"
	EnvTTL       = "FERNET_TTL"
	EnvRetain    = "FERNET_RETAIN"
	EnvLogLevel  = "FERNET_LOG_LEVEL"
	EnvLogFormat = "FERNET_LOG_FORMAT"
)

// Config describes a keyring and how to operate it.
type Config struct {
	// Keys are base64url master keys, newest first. The first one issues tokens.
	Keys []string `yaml:"keys"`

	// TTL is the default token lifetime. Zero disables expiry.
	TTL time.Duration `yaml:"ttl"`

	// Retain caps how many keys a KeyManager keeps.
	Retain int `yaml:"retain"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Retain:    3,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads path (skipped when empty), then the given .env files, then the
// environment. Missing .env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvKeys); ok {
		c.Keys = splitList(v)
	}
	if v := os.Getenv(EnvTTL); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTTL, err)
		}
		c.TTL = d
	}
	if v := os.Getenv(EnvRetain); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRetain, err)
		}
		c.Retain = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the values that do not depend on key material.
func (c *Config) Validate() error {
	if c.TTL < 0 {
		return token.ErrInvalidTTL
	}
	if c.Retain < 1 {
		return fmt.Errorf("retain must be at least 1, got %d", c.Retain)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// Ring builds a MultiFernet from Keys. Keys may use any base64 flavour ParseKey accepts.
func (c *Config) Ring(opts ...token.Option) (*token.MultiFernet, error) {
	if len(c.Keys) == 0 {
		return nil, token.ErrEmptyRing
	}
	fernets := make([]*token.Fernet, 0, len(c.Keys))
	for i, k := range c.Keys {
		raw, err := token.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		f, err := token.NewFromBytes(raw, opts...)
		clear(raw)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		fernets = append(fernets, f)
	}
	return token.NewMulti(fernets, opts...)
}

// KeyManager seeds a KeyManager with Keys, keeping at most Retain of them.
func (c *Config) KeyManager(opts ...token.KeyManagerOption) (*token.KeyManager, error) {
	opts = append([]token.KeyManagerOption{token.WithRetain(c.Retain)}, opts...)
	return token.NewKeyManagerFromKeys(c.Keys, opts...)
}

// SlogLevel maps LogLevel to a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return level, nil
}

// NewLogger builds a logger writing to w in the configured format and level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
