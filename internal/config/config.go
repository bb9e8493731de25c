package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Matching MatchingConfig
	Worker   WorkerConfig
	Log      LogConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port int `validate:"min=1,max=65535"`
}

type StorageConfig struct {
	DataDir string `validate:"required"`
}

type MatchingConfig struct {
	MinScore   int `validate:"min=0,max=100"`
	MaxResults int `validate:"min=1,max=100"`
	// MaxCatalog caps the listings loaded per invocation; 0 means unbounded.
	MaxCatalog int `validate:"min=0"`
	Timeout    string
}

type WorkerConfig struct {
	Enabled      bool
	PollInterval string
}

type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

type AuthConfig struct {
	APIToken string
}

const (
	defaultMatchTimeout = 10 * time.Second
	defaultPollInterval = 500 * time.Millisecond
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Matching: MatchingConfig{
			MinScore:   70,
			MaxResults: 10,
			MaxCatalog: 5000,
			Timeout:    defaultMatchTimeout.String(),
		},
		Worker: WorkerConfig{
			Enabled:      true,
			PollInterval: defaultPollInterval.String(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// MatchTimeout is the deadline applied to each match invocation.
func (c Config) MatchTimeout() time.Duration {
	return parseDuration("matching.timeout", c.Matching.Timeout, defaultMatchTimeout)
}

// PollInterval is how often the refresh worker checks the job queue.
func (c Config) PollInterval() time.Duration {
	return parseDuration("worker.poll_interval", c.Worker.PollInterval, defaultPollInterval)
}

func parseDuration(key, raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return d
}

var validate = validator.New()

// Validate checks value ranges after all layers are applied.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for key, raw := range map[string]string{
		"matching.timeout":     c.Matching.Timeout,
		"worker.poll_interval": c.Worker.PollInterval,
	} {
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return fmt.Errorf("invalid config: %s must be a positive duration, got %q", key, raw)
		}
	}
	return nil
}

// Load reads configuration from the TOML file at
// $XDG_CONFIG_HOME/propmatch/config.toml, PROPMATCH_* environment
// variables, and the secrets file.
//
// Environment variables override file values. Secrets are never read from
// the config file.
func Load() (Config, error) {
	return loadFromPath(configFilePath(), NewKeychain())
}

// keychain abstracts secret lookup for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadFromPath(path string, kc keychain) (Config, error) {
	return loadWith(newFileBackend(path), kc)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// The secrets file is consulted only when the env var is unset. A missing
	// token is not an error here: the server generates one on first start.
	if cfg.Auth.APIToken == "" {
		if tok, err := kc.Get(secretService, apiTokenAccount); err == nil && tok != "" {
			cfg.Auth.APIToken = tok
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
