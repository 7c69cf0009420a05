package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting of the relay, sourced from environment
// variables. The trigger listener defaults to loopback on purpose: it is the
// application tier's private door into the relay and must never be exposed.
type Config struct {
	PublicAddr  string        `env:"RELAY_ADDR" envDefault:":8080"`
	TriggerAddr string        `env:"RELAY_TRIGGER_ADDR" envDefault:"127.0.0.1:8075"`
	DatabaseURL string        `env:"DB_URL,required"`
	RedisURL    string        `env:"REDIS_URL,required"`
	PresenceTTL time.Duration `env:"RELAY_PRESENCE_TTL" envDefault:"90s"`
	LogLevel    string        `env:"RELAY_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	return &cfg, nil
}
