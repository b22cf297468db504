package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/i474232898/forecast-panels/internal/weather"
	"github.com/sony/gobreaker"
)

const (
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	DefaultEnsembleURL = "https://ensemble-api.open-meteo.com/v1/ensemble"
)

// OpenMeteoProvider implements the weather.Provider interface for the Open-Meteo
// forecast and ensemble APIs.
type OpenMeteoProvider struct {
	name        string
	forecastURL string
	ensembleURL string
	client      *http.Client
	breakerCfg  BreakerConfig
	circuit     *gobreaker.CircuitBreaker
}

// OpenMeteoOption customizes an OpenMeteoProvider.
type OpenMeteoOption func(*OpenMeteoProvider)

// WithForecastURL overrides the non-ensemble endpoint.
func WithForecastURL(u string) OpenMeteoOption {
	return func(p *OpenMeteoProvider) {
		if u != "" {
			p.forecastURL = u
		}
	}
}

// WithEnsembleURL overrides the ensemble endpoint.
func WithEnsembleURL(u string) OpenMeteoOption {
	return func(p *OpenMeteoProvider) {
		if u != "" {
			p.ensembleURL = u
		}
	}
}

// WithBreaker replaces the default circuit breaker settings.
func WithBreaker(cfg BreakerConfig) OpenMeteoOption {
	return func(p *OpenMeteoProvider) {
		p.breakerCfg = cfg
	}
}

func NewOpenMeteoProvider(client *http.Client, opts ...OpenMeteoOption) *OpenMeteoProvider {
	p := &OpenMeteoProvider{
		name:        "openmeteo",
		forecastURL: DefaultForecastURL,
		ensembleURL: DefaultEnsembleURL,
		client:      client,
		breakerCfg:  DefaultBreakerConfig,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.circuit = newBreaker(p.name, p.breakerCfg)
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// Fetch issues one request for the configured location and variables and decodes
// the hourly block. Ensemble configs go to the ensemble endpoint with the model set.
func (p *OpenMeteoProvider) Fetch(ctx context.Context, cfg weather.PipelineConfig) (*weather.RawResponse, error) {
	if len(cfg.Variables) == 0 {
		return nil, fmt.Errorf("openmeteo: %w: no variables requested", weather.ErrInvalidRequest)
	}

	u, err := p.requestURL(cfg)
	if err != nil {
		return nil, err
	}

	body, err := doRequest(ctx, p.client, p.circuit, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return nil, err
	}

	return decodeForecast(body)
}

func (p *OpenMeteoProvider) requestURL(cfg weather.PipelineConfig) (string, error) {
	base := p.forecastURL
	if cfg.Ensemble() {
		base = p.ensembleURL
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("openmeteo: %w: endpoint %q: %v", weather.ErrInvalidRequest, base, err)
	}

	values := parsed.Query()
	values.Set("latitude", strconv.FormatFloat(cfg.Latitude, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(cfg.Longitude, 'f', -1, 64))
	values.Set("hourly", strings.Join(cfg.Variables, ","))
	if cfg.Timezone != "" {
		values.Set("timezone", cfg.Timezone)
	}
	if cfg.Ensemble() {
		values.Set("models", cfg.Model)
	}
	parsed.RawQuery = values.Encode()
	return parsed.String(), nil
}

type forecastPayload struct {
	Latitude             float64                    `json:"latitude"`
	Longitude            float64                    `json:"longitude"`
	UTCOffsetSeconds     int                        `json:"utc_offset_seconds"`
	Timezone             string                     `json:"timezone"`
	TimezoneAbbreviation string                     `json:"timezone_abbreviation"`
	HourlyUnits          map[string]string          `json:"hourly_units"`
	Hourly               map[string]json.RawMessage `json:"hourly"`
}

func decodeForecast(body []byte) (*weather.RawResponse, error) {
	var payload forecastPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrMalformedResponse, err)
	}
	if payload.Hourly == nil {
		return nil, fmt.Errorf("%w: missing hourly block", weather.ErrMalformedResponse)
	}

	rawTimes, ok := payload.Hourly["time"]
	if !ok {
		return nil, fmt.Errorf("%w: missing hourly.time", weather.ErrMalformedResponse)
	}

	raw := &weather.RawResponse{
		Latitude:             payload.Latitude,
		Longitude:            payload.Longitude,
		UTCOffsetSeconds:     payload.UTCOffsetSeconds,
		Timezone:             payload.Timezone,
		TimezoneAbbreviation: payload.TimezoneAbbreviation,
		Hourly:               make(map[string][]*float64, len(payload.Hourly)-1),
		Units:                payload.HourlyUnits,
	}
	if err := json.Unmarshal(rawTimes, &raw.Time); err != nil {
		return nil, fmt.Errorf("%w: hourly.time: %v", weather.ErrMalformedResponse, err)
	}

	for key, msg := range payload.Hourly {
		if key == "time" {
			continue
		}
		var values []*float64
		if err := json.Unmarshal(msg, &values); err != nil {
			return nil, fmt.Errorf("%w: hourly.%s: %v", weather.ErrMalformedResponse, key, err)
		}
		raw.Hourly[key] = values
	}

	return raw, nil
}
