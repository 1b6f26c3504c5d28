// Package config loads process configuration from the environment,
// with .env support for local development.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required,notEmpty"`

	DBPath       string `env:"DB_PATH" envDefault:"savedata.db"`
	SettingsPath string `env:"SETTINGS_PATH" envDefault:"settings.json"`

	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"+"`
	DeveloperID   string `env:"DEVELOPER_ID"`

	WebDomain string `env:"WEB_DOMAIN" envDefault:"http://localhost"`
	WebPort   int    `env:"WEB_PORT" envDefault:"5000"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	EvictionInterval time.Duration `env:"EVICTION_INTERVAL" envDefault:"120s"`
}

// Load reads .env (when present) and parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using system environment")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// WebBaseURL is the externally visible root of the key exchange server.
func (c *Config) WebBaseURL() string {
	return fmt.Sprintf("%s:%d", c.WebDomain, c.WebPort)
}
