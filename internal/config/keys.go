package config

import (
	"fmt"
	"os"
	"strconv"
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
		key: "portal.base_url", typ: kString, env: "DFPFETCH_PORTAL_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Portal.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Portal.BaseURL },
	},
	{
		key: "portal.headless", typ: kBool, env: "DFPFETCH_PORTAL_HEADLESS",
		apply:   func(cfg *Config, v any) { cfg.Portal.Headless = v.(bool) },
		extract: func(cfg Config) any { return cfg.Portal.Headless },
	},
	{
		key: "retry.max_attempts", typ: kInt, env: "DFPFETCH_RETRY_MAX_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Retry.MaxAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.MaxAttempts },
	},
	{
		key: "retry.timeout_ms", typ: kInt, env: "DFPFETCH_RETRY_TIMEOUT_MS",
		apply:   func(cfg *Config, v any) { cfg.Retry.TimeoutMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.TimeoutMS },
	},
	{
		key: "retry.base_delay_ms", typ: kInt, env: "DFPFETCH_RETRY_BASE_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Retry.BaseDelayMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.BaseDelayMS },
	},
	{
		key: "retry.max_delay_ms", typ: kInt, env: "DFPFETCH_RETRY_MAX_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Retry.MaxDelayMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Retry.MaxDelayMS },
	},
	{
		key: "output.root", typ: kString, env: "DFPFETCH_OUTPUT_ROOT",
		apply:   func(cfg *Config, v any) { cfg.Output.Root = v.(string) },
		extract: func(cfg Config) any { return cfg.Output.Root },
	},
	{
		key: "batch.concurrency", typ: kInt, env: "DFPFETCH_BATCH_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Batch.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Batch.Concurrency },
	},
	{
		key: "publish.ingest_url", typ: kString, env: "DFPFETCH_INGEST_URL",
		apply:   func(cfg *Config, v any) { cfg.Publish.IngestURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.IngestURL },
	},
	{
		key: "publish.api_key", typ: kString, env: "DFPFETCH_INGEST_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Publish.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "DFPFETCH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "DFPFETCH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
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
