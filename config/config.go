// Package config loads client settings from the environment.
//
// Variables (all optional):
//
//	TRANSMISSION_HOST        daemon host (default localhost)
//	TRANSMISSION_PORT        daemon port (default 9091)
//	TRANSMISSION_PATH        RPC path (default /transmission/rpc)
//	TRANSMISSION_USERNAME    Basic-Auth user
//	TRANSMISSION_PASSWORD    Basic-Auth password
//	TRANSMISSION_TIMEOUT     per-request timeout (default 30s)
//	TRANSMISSION_RATE_LIMIT  max requests per second, 0 disables
//	TRANSMISSION_RATE_BURST  limiter burst (default 1)
//	TRANSMISSION_DEBUG       verbose logging
//
// A .env file in the working directory is read once before parsing.
package config

import (
	"errors"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	transmission "github.com/jfxdev/go-transmission"
)

var ErrParsingConfig = errors.New("failed to parse transmission configuration")

var dotenvLoaded sync.Once

type Config struct {
	Host           string        `env:"HOST" envDefault:"localhost"`
	Port           int           `env:"PORT" envDefault:"9091"`
	Path           string        `env:"PATH" envDefault:"/transmission/rpc"`
	Username       string        `env:"USERNAME"`
	Password       string        `env:"PASSWORD"`
	RequestTimeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
	RateLimit      float64       `env:"RATE_LIMIT" envDefault:"0"`
	RateBurst      int           `env:"RATE_BURST" envDefault:"1"`
	Debug          bool          `env:"DEBUG" envDefault:"false"`
}

const prefix = "TRANSMISSION_"

// Load reads .env (once, missing file ignored) and parses the process
// environment.
func Load() (Config, error) {
	dotenvLoaded.Do(func() {
		_ = godotenv.Load()
	})

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// LoadFrom parses an explicit environment instead of the process one.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix, Environment: environ}); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// ClientConfig converts the settings for transmission.New. Transport and
// logger are left to the caller.
func (c Config) ClientConfig() transmission.Config {
	return transmission.Config{
		Host:           c.Host,
		Port:           c.Port,
		Path:           c.Path,
		Username:       c.Username,
		Password:       c.Password,
		RequestTimeout: c.RequestTimeout,
	}
}
