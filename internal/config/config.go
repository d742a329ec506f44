package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	DataForSEO DataForSEOConfig `yaml:"dataforseo"`
	Cache      CacheConfig      `yaml:"cache"`
	Engine     EngineConfig     `yaml:"engine"`
	Events     EventsConfig     `yaml:"events"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DataForSEOConfig struct {
	BaseURL        string `yaml:"base_url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	RateLimit      int    `yaml:"rate_limit"`
	RateWindow     string `yaml:"rate_window"`
	RequestTimeout string `yaml:"request_timeout"`
	MaxRetries     int    `yaml:"max_retries"`
	BackoffBase    string `yaml:"backoff_base"`
	Location       string `yaml:"location"`
	Language       string `yaml:"language"`
}

type CacheConfig struct {
	// Backend is "redis", "memory" or "off". Switching backends is an
	// explicit configuration decision, never a silent fallback.
	Backend   string `yaml:"backend"`
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	TTL       string `yaml:"ttl"`
}

type EngineConfig struct {
	Workers      int    `yaml:"workers"`
	StepTimeout  string `yaml:"step_timeout"`
	MaxRetries   int    `yaml:"max_retries"`
	RetryBackoff string `yaml:"retry_backoff"`
	Parallel     bool   `yaml:"parallel"`
}

type EventsConfig struct {
	RedisAddr      string `yaml:"redis_addr"`
	Channel        string `yaml:"channel"`
	RequestChannel string `yaml:"request_channel"`
}

type ArchiveConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8100,
		},
		DataForSEO: DataForSEOConfig{
			BaseURL:        "https://api.dataforseo.com/v3",
			RateLimit:      100,
			RateWindow:     "60s",
			RequestTimeout: "30s",
			MaxRetries:     3,
			BackoffBase:    "1s",
			Location:       "United States",
			Language:       "en",
		},
		Cache: CacheConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			TTL:       "1h",
		},
		Engine: EngineConfig{
			Workers:      8,
			StepTimeout:  "60s",
			MaxRetries:   3,
			RetryBackoff: "1s",
			Parallel:     true,
		},
		Events: EventsConfig{
			Channel:        "seo:runs:events",
			RequestChannel: "seo:runs:requests",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("APP_SERVER_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_SERVER_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_DATAFORSEO_USERNAME")); v != "" {
		cfg.DataForSEO.Username = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_DATAFORSEO_PASSWORD")); v != "" {
		cfg.DataForSEO.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_DATAFORSEO_BASE_URL")); v != "" {
		cfg.DataForSEO.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_DATAFORSEO_RATE_LIMIT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.DataForSEO.RateLimit = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_CACHE_BACKEND")); v != "" {
		cfg.Cache.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_CACHE_REDIS_ADDR")); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_EVENTS_REDIS_ADDR")); v != "" {
		cfg.Events.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_ARCHIVE_POSTGRES_DSN")); v != "" {
		cfg.Archive.PostgresDSN = v
	}

	return cfg, nil
}

// ParseDuration parses raw as a duration, falling back when raw is empty
// or not a positive duration.
func ParseDuration(raw string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func Module(path string) fx.Option {
	return fx.Provide(func() (Config, error) {
		return Load(path)
	})
}
