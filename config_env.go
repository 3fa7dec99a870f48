package goReset

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable LoadConfig reads,
// e.g. RESET_TOKEN_TTL or RESET_RATE_LIMIT_MAX_REQUESTS.
const EnvPrefix = "RESET_"

// LoadConfig overlays RESET_* environment variables on DefaultConfig and
// validates the result. The given .env files (default ".env") are loaded
// first when present; variables already set in the process win.
func LoadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return configFromEnv(nil)
}

func configFromEnv(environment map[string]string) (Config, error) {
	cfg := defaultConfig()
	opts := env.Options{Prefix: EnvPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
