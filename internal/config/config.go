package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, relative to the working dir.
const ConfigPath = "config.yaml"

// Session backends supported by the front end.
const (
	SessionBackendRedis  = "redis"
	SessionBackendSQLite = "sqlite"
	SessionBackendJWT    = "jwt"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                    string   `yaml:"port"`
	LogLevel                string   `yaml:"logLevel"`
	APIBaseURL              string   `yaml:"apiBaseURL"`
	NewsAPIURL              string   `yaml:"newsApiURL"`
	NewsAPIKey              string   `yaml:"newsApiKey"`
	NewsQuery               string   `yaml:"newsQuery"`
	RedisAddr               string   `yaml:"redisAddr"`
	RedisPassword           string   `yaml:"redisPassword"`
	SessionBackend          string   `yaml:"sessionBackend"`
	SessionTTL              string   `yaml:"sessionTTL"`
	SessionDBPath           string   `yaml:"sessionDbPath"`
	SessionJWTSecret        string   `yaml:"sessionJwtSecret"`
	CookieName              string   `yaml:"cookieName"`
	CookieSecure            bool     `yaml:"cookieSecure"`
	LoginRateLimitPerMinute int      `yaml:"loginRateLimitPerMinute"`
	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
	MaxUploadBytes          int64    `yaml:"maxUploadBytes"`
	AllowedImageExtensions  []string `yaml:"allowedImageExtensions"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("BLOGBEACON_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("BLOGBEACON_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("BLOGBEACON_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BLOGBEACON_NEWS_API_URL"); v != "" {
		cfg.NewsAPIURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BLOGBEACON_NEWS_API_KEY"); v != "" {
		cfg.NewsAPIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BLOGBEACON_NEWS_QUERY"); v != "" {
		cfg.NewsQuery = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("BLOGBEACON_SESSION_BACKEND"); v != "" {
		cfg.SessionBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("BLOGBEACON_SESSION_TTL"); v != "" {
		cfg.SessionTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BLOGBEACON_SESSION_DB_PATH"); v != "" {
		cfg.SessionDBPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("BLOGBEACON_SESSION_JWT_SECRET"); v != "" {
		cfg.SessionJWTSecret = v
	}
	if v := os.Getenv("BLOGBEACON_COOKIE_NAME"); v != "" {
		cfg.CookieName = strings.TrimSpace(v)
	}
	if v := os.Getenv("BLOGBEACON_COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.CookieSecure = b
		}
	}
	if v := os.Getenv("BLOGBEACON_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("BLOGBEACON_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("BLOGBEACON_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("BLOGBEACON_ALLOWED_IMAGE_EXTENSIONS"); v != "" {
		cfg.AllowedImageExtensions = splitCSV(v)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return errors.New("config: apiBaseURL is required (set in config.yaml or BLOGBEACON_API_BASE_URL)")
	}
	switch cfg.SessionBackend {
	case SessionBackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis session backend")
		}
	case SessionBackendSQLite:
		if strings.TrimSpace(cfg.SessionDBPath) == "" {
			return errors.New("config: sessionDbPath is required for the sqlite session backend")
		}
	case SessionBackendJWT:
		if cfg.SessionJWTSecret == "" {
			return errors.New("config: sessionJwtSecret is required for the jwt session backend")
		}
	case "":
		return errors.New("config: sessionBackend is required (redis, sqlite, or jwt)")
	default:
		return fmt.Errorf("config: unknown sessionBackend %q", cfg.SessionBackend)
	}
	if cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: loginRateLimitPerMinute must be >= 0")
	}
	if cfg.LoginRateLimitPerMinute > 0 && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when login rate limiting is enabled")
	}
	return nil
}

// ParseSessionTTL parses the session TTL duration string; empty means 24h.
func ParseSessionTTL(ttl string) (time.Duration, error) {
	if strings.TrimSpace(ttl) == "" {
		return 24 * time.Hour, nil
	}
	dur, err := time.ParseDuration(ttl)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("sessionTTL must be positive")
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
