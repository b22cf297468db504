package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "FORECAST_PANELS_"
	envConfig  = envPrefix + "CONFIG"
	dotEnvFile = ".env"
)

// Load builds a Config by layering, lowest precedence first:
//  1. defaults (New())
//  2. YAML file if FORECAST_PANELS_CONFIG is set
//  3. env (prefix FORECAST_PANELS_), including values from a .env file
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, dotEnvFile, err)
	}

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// FORECAST_PANELS_REFRESH_INTERVAL -> refresh_interval
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg.fromNowSet = k.Exists("from_now")

	explicitLocation := k.Exists("latitude") || k.Exists("longitude")
	if cfg.GeocodeCity != "" && !explicitLocation {
		lat, lon, err := geocode(ctx, cfg.GeocodeCity, cfg.GeocodeCountry, cfg.GeocoderAPIKey)
		if err != nil {
			return nil, err
		}
		cfg.Latitude, cfg.Longitude = lat, lon
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
