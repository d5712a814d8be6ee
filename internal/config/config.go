package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Addr            string        `mapstructure:"ADDR"`
	Env             string        `mapstructure:"ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	WriteTimeout    time.Duration `mapstructure:"WRITE_TIMEOUT"`
	OutboxSize      int           `mapstructure:"OUTBOX_SIZE"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	OriginPatterns  []string      `mapstructure:"ORIGIN_PATTERNS"`
}

func (c *Config) Dev() bool { return c.Env == "dev" }

// Load reads an optional .env file, then the process environment.
// Environment variables win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	v.SetDefault("ADDR", ":8080")
	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("WRITE_TIMEOUT", "3s")
	v.SetDefault("OUTBOX_SIZE", 16)
	v.SetDefault("SHUTDOWN_TIMEOUT", "5s")
	v.SetDefault("ORIGIN_PATTERNS", []string{})
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return errors.New("ADDR must not be empty")
	case c.WriteTimeout <= 0:
		return errors.New("WRITE_TIMEOUT must be positive")
	case c.OutboxSize <= 0:
		return errors.New("OUTBOX_SIZE must be positive")
	case c.ShutdownTimeout <= 0:
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}
