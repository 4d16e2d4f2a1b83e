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
	kFloat
)

type keySpec struct {
	key       string
	typ       keyType
	env       string
	legacyEnv string
	secret    bool
	apply     func(cfg *Config, v any)
	extract   func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.addr", typ: kString, env: "VERSIONSQL_SERVER_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Server.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Addr },
	},
	{
		key: "server.port", typ: kInt, env: "VERSIONSQL_SERVER_PORT", legacyEnv: "PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.cors_origins", typ: kString, env: "VERSIONSQL_SERVER_CORS_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.CORSOrigins },
	},
	{
		key: "server.rate_limit", typ: kFloat, env: "VERSIONSQL_SERVER_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Server.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.Server.RateLimit },
	},
	{
		key: "server.admin_token", typ: kString, env: "VERSIONSQL_ADMIN_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "curseforge.base_url", typ: kString, env: "VERSIONSQL_CURSEFORGE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.CurseForge.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.CurseForge.BaseURL },
	},
	{
		key: "curseforge.api_token", typ: kString, env: "VERSIONSQL_API_TOKEN", legacyEnv: "API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.CurseForge.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.CurseForge.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "VERSIONSQL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "refresh.interval", typ: kString, env: "VERSIONSQL_REFRESH_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Refresh.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Refresh.Interval },
	},
	{
		key: "refresh.schedule", typ: kString, env: "VERSIONSQL_REFRESH_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Refresh.Schedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Refresh.Schedule },
	},
	{
		key: "client.url", typ: kString, env: "VERSIONSQL_CLIENT_URL",
		apply:   func(cfg *Config, v any) { cfg.Client.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.URL },
	},
	{
		key: "client.timeout", typ: kString, env: "VERSIONSQL_CLIENT_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Client.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.Timeout },
	},
	{
		key: "log.level", typ: kString, env: "VERSIONSQL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
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
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func envValue(s keySpec) (name, raw string) {
	if raw = os.Getenv(s.env); raw != "" {
		return s.env, raw
	}
	if s.legacyEnv != "" {
		if raw = os.Getenv(s.legacyEnv); raw != "" {
			return s.legacyEnv, raw
		}
	}
	return "", ""
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := envValue(s)
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
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		}
	}
}
