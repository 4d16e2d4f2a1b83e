package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	CurseForge CurseForgeConfig
	Storage    StorageConfig
	Refresh    RefreshConfig
	Client     ClientConfig
	Log        LogConfig
}

type ServerConfig struct {
	Addr        string
	Port        int
	CORSOrigins string
	RateLimit   float64
	AdminToken  string
}

type CurseForgeConfig struct {
	BaseURL  string
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type RefreshConfig struct {
	Interval string
	Schedule string
}

type ClientConfig struct {
	URL     string
	Timeout string
}

type LogConfig struct {
	Level string
}

const (
	defaultRefreshInterval = 5 * time.Minute
	defaultClientTimeout   = 30 * time.Second
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr: "127.0.0.1",
			Port: 8080,
		},
		CurseForge: CurseForgeConfig{
			BaseURL: "https://minecraft.curseforge.com",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Refresh: RefreshConfig{
			Interval: defaultRefreshInterval.String(),
		},
		Client: ClientConfig{
			URL:     "http://127.0.0.1:8080",
			Timeout: defaultClientTimeout.String(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the TOML config file, environment variables,
// and the local secrets file.
//
// The config file lives at $XDG_CONFIG_HOME/versionsql/config.toml and
// secrets at $XDG_DATA_HOME/versionsql/secrets.json.
//
// Environment variables (VERSIONSQL_*) override file values. PORT and
// API_TOKEN are honored when their VERSIONSQL_* counterparts are unset.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), secretsReader{})
}

// secretStore reads stored tokens.
type secretStore interface {
	Get(service, account string) (string, error)
}

func loadFromPath(path string, secrets secretStore) (Config, error) {
	return loadWith(newFileBackend(path), secrets)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.CurseForge.APIToken == "" {
		if tok, err := secrets.Get(secretsService, "curseforge_api_token"); err == nil && tok != "" {
			cfg.CurseForge.APIToken = tok
		}
	}
	if cfg.Server.AdminToken == "" {
		if tok, err := secrets.Get(secretsService, "admin_token"); err == nil && tok != "" {
			cfg.Server.AdminToken = tok
		}
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}

	return cfg, nil
}

// RequireAPIToken reports a descriptive error when no CurseForge token is
// configured. Only the server needs one.
func (c Config) RequireAPIToken() error {
	if c.CurseForge.APIToken != "" {
		return nil
	}
	return fmt.Errorf("missing required config: CurseForge API token. " +
		"Set it via environment variable VERSIONSQL_API_TOKEN (or API_TOKEN)")
}

// ListenAddr returns host:port for the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Addr, c.Server.Port)
}

// RefreshInterval parses refresh.interval, falling back to five minutes.
func (c Config) RefreshInterval() time.Duration {
	return parseDuration("refresh.interval", c.Refresh.Interval, defaultRefreshInterval)
}

// ClientTimeout parses client.timeout, falling back to thirty seconds.
func (c Config) ClientTimeout() time.Duration {
	return parseDuration("client.timeout", c.Client.Timeout, defaultClientTimeout)
}

// CORSOrigins splits server.cors_origins on commas.
func (c Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// LogLevel maps log.level to a slog level.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDuration(key, raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "[WARN] invalid duration for %s=%q. Using default %s.\n", key, raw, def)
		return def
	}
	return d
}
