package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/starnet/starwatch/internal/model"
)

// Config is the resolved starwatch configuration.
type Config struct {
	APIBaseURL      string
	SecretKey       string
	CachePath       string
	ListenAddr      string
	LogFile         string
	LogLevel        string
	RequestTimeout  time.Duration
	Stagger         time.Duration
	PollWhenHealthy bool
	Intervals       map[model.Endpoint]time.Duration
}

const (
	defaultConfigPath = "~/.config/starwatch/config.toml"
	defaultCachePath  = "~/.local/share/starwatch/cache.db"
	defaultLogFile    = "~/.local/share/starwatch/starwatch.log"
	defaultLogLevel   = "info"
	defaultStagger    = 300 * time.Millisecond
)

const (
	envBaseURL    = "STARWATCH_API_BASE_URL"
	envSecretKey  = "STARWATCH_SECRET_KEY"
	envListenAddr = "STARWATCH_LISTEN_ADDR"
)

type rawConfig struct {
	APIBaseURL      string            `toml:"api_base_url"`
	SecretKey       string            `toml:"secret_key"`
	SecretKeyFile   string            `toml:"secret_key_file"`
	CachePath       string            `toml:"cache_path"`
	ListenAddr      string            `toml:"listen_addr"`
	LogFile         string            `toml:"log_file"`
	LogLevel        string            `toml:"log_level"`
	RequestTimeout  string            `toml:"request_timeout"`
	Stagger         string            `toml:"stagger"`
	PollWhenHealthy bool              `toml:"poll_when_healthy"`
	Intervals       map[string]string `toml:"intervals"`
}

// Load reads the config file at path (or the default location), applies
// environment overrides and validates the result. A missing file is not an
// error; the environment may still supply everything required.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	var raw rawConfig
	file, err := os.Open(resolved)
	switch {
	case err == nil:
		defer file.Close()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("open config: %w", err)
	}

	cfg, err := raw.resolve()
	if err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (r rawConfig) resolve() (Config, error) {
	cfg := Config{
		APIBaseURL:      strings.TrimSpace(r.APIBaseURL),
		SecretKey:       strings.TrimSpace(r.SecretKey),
		ListenAddr:      strings.TrimSpace(r.ListenAddr),
		LogLevel:        strings.ToLower(strings.TrimSpace(r.LogLevel)),
		Stagger:         defaultStagger,
		PollWhenHealthy: r.PollWhenHealthy,
		Intervals:       make(map[model.Endpoint]time.Duration, len(model.Endpoints())),
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	if cfg.SecretKey == "" && strings.TrimSpace(r.SecretKeyFile) != "" {
		secretPath, err := expandPath(r.SecretKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("secret_key_file: %w", err)
		}
		data, err := os.ReadFile(secretPath)
		if err != nil {
			return Config{}, fmt.Errorf("read secret_key_file: %w", err)
		}
		cfg.SecretKey = strings.TrimSpace(string(data))
	}

	cfg.CachePath = mustExpand(orDefault(r.CachePath, defaultCachePath))
	cfg.LogFile = mustExpand(orDefault(r.LogFile, defaultLogFile))

	var err error
	if cfg.RequestTimeout, err = parseDuration("request_timeout", r.RequestTimeout, 0); err != nil {
		return Config{}, err
	}
	if cfg.Stagger, err = parseDuration("stagger", r.Stagger, defaultStagger); err != nil {
		return Config{}, err
	}

	for _, ep := range model.Endpoints() {
		cfg.Intervals[ep] = ep.DefaultInterval()
	}
	for name, value := range r.Intervals {
		ep, err := model.ParseEndpoint(strings.TrimSpace(name))
		if err != nil {
			return Config{}, fmt.Errorf("parse config: intervals: %w", err)
		}
		d, err := parseDuration("intervals."+name, value, ep.DefaultInterval())
		if err != nil {
			return Config{}, err
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("parse config: intervals.%s must be positive", name)
		}
		cfg.Intervals[ep] = d
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(envBaseURL)); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envSecretKey)); v != "" {
		cfg.SecretKey = v
	}
	if v, ok := os.LookupEnv(envListenAddr); ok {
		cfg.ListenAddr = strings.TrimSpace(v)
	}
}

// Validate checks the fields the backend client cannot work without.
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required (or set %s)", envBaseURL)
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("api_base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api_base_url must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key is required (or set %s)", envSecretKey)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	return nil
}

// HTTPEnabled reports whether the local HTTP API should be served.
func (c Config) HTTPEnabled() bool {
	return c.ListenAddr != ""
}

func parseDuration(key, value string, fallback time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse config: %s: %w", key, err)
	}
	return d, nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
