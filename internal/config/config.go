package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Storage StorageConfig
	Upload  UploadConfig
	Cache   CacheConfig
	Session SessionConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
	// AllowedOrigins is a comma-separated list of browser origins the
	// presentation server accepts; "*" may stand for one wildcard segment.
	AllowedOrigins string
}

// StoreConfig locates the remote profile store.
type StoreConfig struct {
	BaseURL string
	// AssetBaseURL prefixes store-relative image paths. Empty means BaseURL.
	AssetBaseURL string
	Timeout      string
}

type StorageConfig struct {
	DataDir string
}

type UploadConfig struct {
	MaxBytes int
}

// CacheConfig bounds how old a local fallback snapshot may be and still be served.
type CacheConfig struct {
	MaxAge string
}

type SessionConfig struct {
	Token string
}

type LogConfig struct {
	Level string
	Mode  string
}

// AssetBase returns the address store-relative asset paths resolve against.
func (c Config) AssetBase() string {
	if c.Store.AssetBaseURL != "" {
		return c.Store.AssetBaseURL
	}
	return c.Store.BaseURL
}

// Origins splits Server.AllowedOrigins.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// StoreTimeout parses Store.Timeout, falling back to 30s.
func (c Config) StoreTimeout() time.Duration {
	return parseDurationOr(c.Store.Timeout, 30*time.Second)
}

// CacheMaxAge parses Cache.MaxAge. Zero means snapshots never expire.
func (c Config) CacheMaxAge() time.Duration {
	return parseDurationOr(c.Cache.MaxAge, 0)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4100,
			AllowedOrigins: "http://localhost:*,http://127.0.0.1:*",
		},
		Store: StoreConfig{
			BaseURL: "http://localhost:5000",
			Timeout: "30s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Upload: UploadConfig{
			MaxBytes: 2 << 20,
		},
		Cache: CacheConfig{
			MaxAge: "168h",
		},
		Log: LogConfig{
			Level: "info",
			Mode:  "dev",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.profedit.app) and the
// session credential lives in the macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/profedit/config.json
// and the credential is kept in $XDG_DATA_HOME/profedit/secrets.json.
//
// Environment variables (PROFEDIT_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b Backend, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Fall back to the secret store for the session credential.
	if cfg.Session.Token == "" {
		if tok, err := secrets.Get(SecretService, SessionAccount); err == nil && tok != "" {
			cfg.Session.Token = tok
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if err := checkHTTPURL("store.base_url", cfg.Store.BaseURL); err != nil {
		return err
	}
	if cfg.Store.AssetBaseURL != "" {
		if err := checkHTTPURL("store.asset_base_url", cfg.Store.AssetBaseURL); err != nil {
			return err
		}
	}
	if cfg.Upload.MaxBytes <= 0 {
		return fmt.Errorf("invalid config upload.max_bytes=%d: must be positive", cfg.Upload.MaxBytes)
	}
	return checkMode("log.mode", cfg.Log.Mode)
}

func checkHTTPURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid config %s=%q: want an http(s) URL", key, raw)
	}
	return nil
}
