// Package config reads the liveboard service configuration from the
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the sync core. Defaults are chosen so a bare
// `LIVEBOARD_NATS_URL` + `LIVEBOARD_ORDER_SERVICE_URL` pair is enough for a
// working instance.
type Config struct {
	ListenAddr      string `env:"LIVEBOARD_LISTEN_ADDR" envDefault:":8099"`
	NATSURL         string `env:"LIVEBOARD_NATS_URL" envDefault:"nats://localhost:4222"`
	OrderServiceURL string `env:"LIVEBOARD_ORDER_SERVICE_URL"`
	RestaurantID    string `env:"LIVEBOARD_RESTAURANT_ID"`

	// Identity the service connects to the bus as. The surrounding platform
	// issues the bearer token; auth internals are not re-specified here.
	UserID   string `env:"LIVEBOARD_USER_ID" envDefault:"liveboard"`
	Role     string `env:"LIVEBOARD_ROLE" envDefault:"manager"`
	BusToken string `env:"LIVEBOARD_BUS_TOKEN"`

	PollInterval      time.Duration `env:"LIVEBOARD_POLL_INTERVAL" envDefault:"15s"`
	ReconnectDelay    time.Duration `env:"LIVEBOARD_RECONNECT_DELAY" envDefault:"2s"`
	HeartbeatInterval time.Duration `env:"LIVEBOARD_HEARTBEAT_INTERVAL" envDefault:"10s"`
	HeartbeatMisses   int           `env:"LIVEBOARD_HEARTBEAT_MISSES" envDefault:"3"`
	RetryCeiling      int           `env:"LIVEBOARD_RETRY_CEILING" envDefault:"10"`

	EventLogCapacity int           `env:"LIVEBOARD_EVENT_LOG_CAPACITY" envDefault:"50"`
	SessionTTL       time.Duration `env:"LIVEBOARD_SESSION_TTL" envDefault:"8h"`
	AlertsEnabled    bool          `env:"LIVEBOARD_ALERTS_ENABLED" envDefault:"true"`
	DemoSeed         bool          `env:"LIVEBOARD_DEMO" envDefault:"false"`
	LogLevel         string        `env:"LIVEBOARD_LOG_LEVEL" envDefault:"info"`
}

// Parse reads the configuration from environment variables.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if cfg.ReconnectDelay <= 0 {
		return nil, fmt.Errorf("reconnect delay must be positive")
	}

	return cfg, nil
}
