package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ARBOR_"

// Persistence backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the runtime configuration of the arbor service.
type Config struct {
	Log         LogConfig         `yaml:"log" envPrefix:"LOG_"`
	Persistence PersistenceConfig `yaml:"persistence" envPrefix:"PERSIST_"`
	Redis       RedisConfig       `yaml:"redis" envPrefix:"REDIS_"`
	HTTP        HTTPConfig        `yaml:"http" envPrefix:"HTTP_"`
	API         APIConfig         `yaml:"api" envPrefix:"API_"`
	Effects     EffectsConfig     `yaml:"effects" envPrefix:"EFFECT_"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type PersistenceConfig struct {
	Backend       string   `yaml:"backend" env:"BACKEND"`
	Key           string   `yaml:"key" env:"KEY"`
	Version       int      `yaml:"version" env:"VERSION"`
	Whitelist     []string `yaml:"whitelist" env:"WHITELIST" envSeparator:","`
	Dir           string   `yaml:"dir" env:"DIR"`
	EncryptionKey string   `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
	Redact        []string `yaml:"redact" env:"REDACT" envSeparator:","`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"ADDR"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	Prefix   string        `yaml:"prefix" env:"PREFIX"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
}

type HTTPConfig struct {
	Addr  string  `yaml:"addr" env:"ADDR"`
	Rate  float64 `yaml:"rate" env:"RATE"`
	Burst int     `yaml:"burst" env:"BURST"`
}

type APIConfig struct {
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	ProductsURL string        `yaml:"products_url" env:"PRODUCTS_URL"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type EffectsConfig struct {
	CancelTimeout time.Duration `yaml:"cancel_timeout" env:"CANCEL_TIMEOUT"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Persistence: PersistenceConfig{
			Backend:   BackendMemory,
			Key:       "root",
			Version:   -1,
			Whitelist: []string{"app"},
			Dir:       ".arbor/state",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "arbor:",
		},
		HTTP: HTTPConfig{
			Addr:  ":8080",
			Rate:  20,
			Burst: 40,
		},
		API: APIConfig{
			BaseURL:     "https://jsonplaceholder.typicode.com",
			ProductsURL: "https://fakestoreapi.com/products",
			Timeout:     10 * time.Second,
		},
		Effects: EffectsConfig{CancelTimeout: 5 * time.Second},
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped when path is empty) and ARBOR_* environment variables, in that
// order of precedence from lowest to highest.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Log.Format))
	}
	switch c.Persistence.Backend {
	case BackendMemory, BackendRedis:
	case BackendFile:
		if c.Persistence.Dir == "" {
			errs = append(errs, errors.New("persistence dir is required for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown persistence backend %q", c.Persistence.Backend))
	}
	if c.Persistence.Key == "" {
		errs = append(errs, errors.New("persistence key is required"))
	}
	if c.Persistence.Backend == BackendRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis addr is required for the redis backend"))
	}
	if c.HTTP.Rate < 0 {
		errs = append(errs, fmt.Errorf("http rate must not be negative, got %v", c.HTTP.Rate))
	}
	if c.HTTP.Rate > 0 && c.HTTP.Burst < 1 {
		errs = append(errs, fmt.Errorf("http burst must be at least 1 when rate limiting, got %d", c.HTTP.Burst))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("api timeout must be positive"))
	}
	if c.Effects.CancelTimeout <= 0 {
		errs = append(errs, errors.New("effect cancel timeout must be positive"))
	}
	return errors.Join(errs...)
}
