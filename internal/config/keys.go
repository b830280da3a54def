package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	// check vets a raw value before `config set` persists it.
	check   func(key, raw string) error
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "PROFEDIT_SERVER_PORT",
		check:   checkPort,
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.allowed_origins", typ: kString, env: "PROFEDIT_SERVER_ALLOWED_ORIGINS",
		check:   checkOrigins,
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigins },
	},
	{
		key: "store.base_url", typ: kString, env: "PROFEDIT_STORE_BASE_URL",
		check:   checkHTTPURL,
		apply:   func(cfg *Config, v any) { cfg.Store.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.BaseURL },
	},
	{
		key: "store.asset_base_url", typ: kString, env: "PROFEDIT_STORE_ASSET_BASE_URL",
		check:   checkHTTPURL,
		apply:   func(cfg *Config, v any) { cfg.Store.AssetBaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.AssetBaseURL },
	},
	{
		key: "store.timeout", typ: kString, env: "PROFEDIT_STORE_TIMEOUT",
		check:   checkDuration,
		apply:   func(cfg *Config, v any) { cfg.Store.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Store.Timeout },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PROFEDIT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "upload.max_bytes", typ: kInt, env: "PROFEDIT_UPLOAD_MAX_BYTES",
		check:   checkPositive,
		apply:   func(cfg *Config, v any) { cfg.Upload.MaxBytes = v.(int) },
		extract: func(cfg Config) any { return cfg.Upload.MaxBytes },
	},
	{
		key: "cache.max_age", typ: kString, env: "PROFEDIT_CACHE_MAX_AGE",
		check:   checkDuration,
		apply:   func(cfg *Config, v any) { cfg.Cache.MaxAge = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.MaxAge },
	},
	{
		key: "session.token", typ: kString, env: "PROFEDIT_SESSION_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Session.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Session.Token },
	},
	{
		key: "log.level", typ: kString, env: "PROFEDIT_LOG_LEVEL",
		check:   checkLevel,
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.mode", typ: kString, env: "PROFEDIT_LOG_MODE",
		check:   checkMode,
		apply:   func(cfg *Config, v any) { cfg.Log.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Mode },
	},
}

func applyBackend(cfg *Config, b Backend) error {
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
		}
	}
}

func checkPort(key, raw string) error {
	p, err := strconv.Atoi(raw)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid config %s=%q: want a port between 1 and 65535", key, raw)
	}
	return nil
}

func checkPositive(key, raw string) error {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid config %s=%q: must be a positive integer", key, raw)
	}
	return nil
}

func checkDuration(key, raw string) error {
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fmt.Errorf("invalid config %s=%q: want a duration such as 30s or 168h", key, raw)
	}
	return nil
}

// checkOrigins accepts a comma-separated list of http(s) origins.
func checkOrigins(key, raw string) error {
	n := 0
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("invalid config %s: origin %q must start with http:// or https://", key, o)
		}
		n++
	}
	if n == 0 {
		return fmt.Errorf("invalid config %s: at least one origin is required", key)
	}
	return nil
}

func checkLevel(key, raw string) error {
	switch strings.ToLower(raw) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("invalid config %s=%q: want debug, info, warn or error", key, raw)
}

func checkMode(key, raw string) error {
	switch strings.ToLower(raw) {
	case "dev", "development", "prod", "production":
		return nil
	}
	return fmt.Errorf("invalid config %s=%q: want dev or prod", key, raw)
}
