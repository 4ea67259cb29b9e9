package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is everything read once at startup. Environment variables are the
// primary source; a YAML file named by CLOCKSYNK_CONFIG overlays them when
// present. Nothing here is part of synchronized game state.
type Config struct {
	HTTPAddr string `env:"CLOCKSYNK_HTTP_ADDR" envDefault:":8080" yaml:"http_addr"`

	DefaultGameID       string        `env:"CLOCKSYNK_GAME_ID" envDefault:"demo-game-1" yaml:"default_game_id"`
	Role                string        `env:"CLOCKSYNK_ROLE" envDefault:"scorekeeper" yaml:"role"`
	DefaultClockSeconds int           `env:"CLOCKSYNK_DEFAULT_CLOCK_SECONDS" envDefault:"900" yaml:"default_clock_seconds"`
	MaintenanceInterval time.Duration `env:"CLOCKSYNK_MAINTENANCE_INTERVAL" envDefault:"1s" yaml:"maintenance_interval"`
	PullInterval        time.Duration `env:"CLOCKSYNK_PULL_INTERVAL" envDefault:"2s" yaml:"pull_interval"`
	StoreCallTimeout    time.Duration `env:"CLOCKSYNK_STORE_TIMEOUT" envDefault:"3s" yaml:"store_call_timeout"`

	// StoreBackend selects the persistence layer: "memory" (demo mode) or
	// "postgres".
	StoreBackend string `env:"CLOCKSYNK_STORE" envDefault:"memory" yaml:"store_backend"`

	Postgres Postgres `yaml:"postgres"`
	NATS     NATS     `yaml:"nats"`

	PrettyLogs bool `env:"CLOCKSYNK_PRETTY_LOGS" envDefault:"false" yaml:"pretty_logs"`
}

// Postgres holds connection settings for the persistent store.
type Postgres struct {
	Host     string `env:"DB_HOST" envDefault:"localhost" yaml:"host"`
	Port     int    `env:"DB_PORT" envDefault:"5432" yaml:"port"`
	User     string `env:"DB_USER" envDefault:"postgres" yaml:"user"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres" yaml:"password"`
	Database string `env:"DB_NAME" envDefault:"clocksynk" yaml:"database"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable" yaml:"sslmode"`
}

// DSN returns the Postgres connection URL.
func (p Postgres) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// NATS holds settings for the game-state broadcast bus.
type NATS struct {
	Enabled bool   `env:"CLOCKSYNK_NATS_ENABLED" envDefault:"false" yaml:"enabled"`
	URL     string `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222" yaml:"url"`
	Stream  string `env:"CLOCKSYNK_NATS_STREAM" envDefault:"GAME_STATE" yaml:"stream"`
}

// Load parses the environment and applies the optional YAML overlay.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if path := os.Getenv("CLOCKSYNK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects option combinations the process cannot run with.
func (c Config) Validate() error {
	if c.Role != "scorekeeper" && c.Role != "spectator" {
		return fmt.Errorf("invalid role %q: must be scorekeeper or spectator", c.Role)
	}
	if c.StoreBackend != "memory" && c.StoreBackend != "postgres" {
		return fmt.Errorf("invalid store backend %q: must be memory or postgres", c.StoreBackend)
	}
	if c.DefaultClockSeconds <= 0 {
		return fmt.Errorf("default clock seconds must be positive, got %d", c.DefaultClockSeconds)
	}
	if c.MaintenanceInterval <= 0 || c.PullInterval <= 0 || c.StoreCallTimeout <= 0 {
		return fmt.Errorf("intervals and timeouts must be positive")
	}
	return nil
}
