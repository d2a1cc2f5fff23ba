package config

import (
	"fmt"
	"time"

	"github.com/aqylbek/ambulance-dispatch/pkg/configparser"
)

// Config contains all configuration variables of the application
type (
	Config struct {
		Server   ServerConfig
		Database DatabaseConfig
		RabbitMQ RabbitMQConfig
		Auth     AuthConfig
		Dispatch DispatchConfig
	}

	ServerConfig struct {
		Host string `env:"SERVER_HOST" default:"0.0.0.0"`
		Port string `env:"SERVER_PORT" default:"3000"`
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"dispatch_user"`
		Password string `env:"DATABASE_PASSWORD" default:"dispatch_pass"`
		Database string `env:"DATABASE_DATABASE" default:"dispatch_db"`

		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"20"`
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"2"`
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"`
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`
	}

	RabbitMQConfig struct {
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
	}

	AuthConfig struct {
		AccessTokenTTL time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" default:"15m"`
		JWTSecret      string        `env:"AUTH_JWT_SECRET" default:"supersecretkey"`
	}

	// DispatchConfig carries the dispatch and reconciliation timing knobs.
	DispatchConfig struct {
		// How long a driver has to answer an assignment offer.
		ResponseWindow time.Duration `env:"DISPATCH_RESPONSE_WINDOW" default:"60s"`
		// How long a CREATED emergency waits before the sweep retries dispatch.
		ConfirmationWindow time.Duration `env:"DISPATCH_CONFIRMATION_WINDOW" default:"100s"`
		// A session whose heartbeat is at least this old is invisible to dispatch.
		StaleThreshold time.Duration `env:"DISPATCH_STALE_THRESHOLD" default:"30s"`

		ConfirmationSweepPeriod    time.Duration `env:"DISPATCH_CONFIRMATION_SWEEP_PERIOD" default:"10s"`
		ResponseTimeoutSweepPeriod time.Duration `env:"DISPATCH_RESPONSE_TIMEOUT_SWEEP_PERIOD" default:"10s"`
		StaleSessionSweepPeriod    time.Duration `env:"DISPATCH_STALE_SESSION_SWEEP_PERIOD" default:"15s"`
		InvariantRepairSweepPeriod time.Duration `env:"DISPATCH_INVARIANT_REPAIR_SWEEP_PERIOD" default:"60s"`
	}
)

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

func (c DatabaseConfig) PoolLimits() (maxConns, minConns int32) {
	return c.MaxConns, c.MinConns
}

func (c DatabaseConfig) ConnLifetimes() (maxLifetime, maxIdleTime time.Duration) {
	return c.MaxConnLifetime, c.MaxConnIdleTime
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	// Loading environment variables and parsing to config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	return cfg, nil
}
