package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PROPMATCH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PROPMATCH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "matching.min_score", typ: kInt, env: "PROPMATCH_MATCHING_MIN_SCORE",
		apply:   func(cfg *Config, v any) { cfg.Matching.MinScore = v.(int) },
		extract: func(cfg Config) any { return cfg.Matching.MinScore },
	},
	{
		key: "matching.max_results", typ: kInt, env: "PROPMATCH_MATCHING_MAX_RESULTS",
		apply:   func(cfg *Config, v any) { cfg.Matching.MaxResults = v.(int) },
		extract: func(cfg Config) any { return cfg.Matching.MaxResults },
	},
	{
		key: "matching.max_catalog", typ: kInt, env: "PROPMATCH_MATCHING_MAX_CATALOG",
		apply:   func(cfg *Config, v any) { cfg.Matching.MaxCatalog = v.(int) },
		extract: func(cfg Config) any { return cfg.Matching.MaxCatalog },
	},
	{
		key: "matching.timeout", typ: kString, env: "PROPMATCH_MATCHING_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Matching.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Matching.Timeout },
	},
	{
		key: "worker.enabled", typ: kBool, env: "PROPMATCH_WORKER_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Worker.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Worker.Enabled },
	},
	{
		key: "worker.poll_interval", typ: kString, env: "PROPMATCH_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
	{
		key: "log.level", typ: kString, env: "PROPMATCH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = strings.ToLower(v.(string)) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "auth.api_token", typ: kString, env: apiTokenEnv,
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.APIToken },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
