package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Scheduler SchedulerConfig
	Runner    RunnerConfig
	Webhook   WebhookConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Address string
}

// StoreConfig selects the KV backend. Redis is the default; "postgres" maps
// the same key space onto a single kv table.
type StoreConfig struct {
	Backend       string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	PostgresURL   string
}

type SchedulerConfig struct {
	Interval time.Duration
}

type RunnerConfig struct {
	OpenDelay time.Duration
}

type WebhookConfig struct {
	Timeout time.Duration
	LogCap  int
}

type AuthConfig struct {
	// MasterKey authenticates and authorizes unconditionally. Set it for
	// bootstrap and operational tooling, leave it empty to disable the
	// bypass entirely.
	MasterKey string
}

func LoadAll() (*Config, error) {
	var errs []error

	intEnv := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Store: StoreConfig{
			Backend:       getEnv("STORE_BACKEND", "redis"),
			RedisAddress:  getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       intEnv("REDIS_DB", 0),
			RedisPrefix:   getEnv("REDIS_PREFIX", "crm:"),
			PostgresURL:   os.Getenv("POSTGRES_URL"),
		},
		Scheduler: SchedulerConfig{
			Interval: time.Duration(intEnv("SCHED_INTERVAL_SECONDS", 30)) * time.Second,
		},
		Runner: RunnerConfig{
			OpenDelay: time.Duration(intEnv("OPEN_TRACKING_DELAY_SECONDS", 5)) * time.Second,
		},
		Webhook: WebhookConfig{
			Timeout: time.Duration(intEnv("WEBHOOK_TIMEOUT_SECONDS", 10)) * time.Second,
			LogCap:  intEnv("WEBHOOK_LOG_CAP", 100),
		},
		Auth: AuthConfig{
			MasterKey: os.Getenv("MASTER_API_KEY"),
		},
	}

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) []error {
	var errs []error

	switch cfg.Store.Backend {
	case "redis", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND: %s", cfg.Store.Backend))
	}
	if cfg.Store.Backend == "postgres" && cfg.Store.PostgresURL == "" {
		errs = append(errs, errors.New("POSTGRES_URL is required with STORE_BACKEND=postgres"))
	}
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Runner.OpenDelay <= 0 {
		errs = append(errs, errors.New("OPEN_TRACKING_DELAY_SECONDS must be > 0"))
	}
	if cfg.Webhook.Timeout <= 0 {
		errs = append(errs, errors.New("WEBHOOK_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Webhook.LogCap <= 0 {
		errs = append(errs, errors.New("WEBHOOK_LOG_CAP must be > 0"))
	}
	return errs
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
