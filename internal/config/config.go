// Package config loads service configuration from defaults, an optional YAML
// file and FORECAST_PANELS_* environment variables.
package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/i474232898/forecast-panels/internal/common"
	"github.com/i474232898/forecast-panels/internal/metrics"
	"github.com/i474232898/forecast-panels/internal/render"
	"github.com/i474232898/forecast-panels/internal/weather"
)

const defaultEnsembleModel = "gfs_seamless"

var metricNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("metricname", func(fl validator.FieldLevel) bool {
		return metricNameRe.MatchString(fl.Field().String())
	})
	return v
}

// Config contains process configuration.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr     string `koanf:"addr" validate:"required"`
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	Latitude  float64 `koanf:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `koanf:"longitude" validate:"gte=-180,lte=180"`

	// GeocodeCity resolves the location through the Google geocoding API when
	// latitude and longitude are not set explicitly.
	GeocodeCity    string `koanf:"geocode_city"`
	GeocodeCountry string `koanf:"geocode_country"`
	GeocoderAPIKey string `koanf:"geocoder_api_key"`

	// Variables defaults to every variable the layout draws.
	Variables []string `koanf:"variables" validate:"dive,required"`
	Ensemble  bool     `koanf:"ensemble"`
	Model     string   `koanf:"model"`
	Members   int      `koanf:"members" validate:"gte=0,lte=100"`
	Timezone  string   `koanf:"timezone" validate:"required"`
	// FromNow drops samples before now. Unset, it is on for the
	// standard preset and off otherwise.
	FromNow bool `koanf:"from_now"`

	// Layout names a preset; Panels, when set, replaces the preset's panels.
	Layout string             `koanf:"layout" validate:"omitempty,oneof=standard ensemble"`
	Panels []render.PanelSpec `koanf:"panels"`
	Ticks  render.TickCadence `koanf:"ticks"`

	RefreshInterval time.Duration `koanf:"refresh_interval" validate:"gt=0"`
	HTTPTimeout     time.Duration `koanf:"http_timeout" validate:"gt=0"`
	FetchRetries    int           `koanf:"fetch_retries" validate:"gte=0,lte=10"`

	OutputPath  string `koanf:"output_path" validate:"required"`
	PanelWidth  int    `koanf:"panel_width" validate:"gte=200,lte=8000"`
	PanelHeight int    `koanf:"panel_height" validate:"gte=100,lte=4000"`

	ForecastURL string `koanf:"forecast_url" validate:"omitempty,url"`
	EnsembleURL string `koanf:"ensemble_url" validate:"omitempty,url"`

	MirrorEndpoint  string `koanf:"mirror_endpoint"`
	MirrorBucket    string `koanf:"mirror_bucket" validate:"required_with=MirrorEndpoint"`
	MirrorAccessKey string `koanf:"mirror_access_key"`
	MirrorSecretKey string `koanf:"mirror_secret_key"`
	MirrorSecure    bool   `koanf:"mirror_secure"`

	// Metrics* override the metric name prefix and the refresh duration buckets.
	MetricsNamespace string    `koanf:"metrics_namespace" validate:"omitempty,metricname"`
	MetricsSubsystem string    `koanf:"metrics_subsystem" validate:"omitempty,metricname"`
	MetricsBuckets   []float64 `koanf:"metrics_buckets" validate:"dive,gt=0"`

	layout     render.Layout
	fromNowSet bool
}

// New returns the defaults. The location and refresh cadence match the
// service's original deployment.
func New() *Config {
	return &Config{
		Addr:            ":8080",
		LogLevel:        "info",
		Latitude:        41.97,
		Longitude:       2.38,
		Timezone:        "auto",
		RefreshInterval: time.Hour,
		HTTPTimeout:     30 * time.Second,
		OutputPath:      "static/plot.png",
		PanelWidth:      render.DefaultPanelWidth,
		PanelHeight:     render.DefaultPanelHeight,
	}
}

// finalize fills derived fields and checks the result.
func (c *Config) finalize() error {
	c.Variables = common.CleanList(c.Variables...)

	if c.Ensemble && c.Model == "" {
		c.Model = defaultEnsembleModel
	}
	if c.Model != "" {
		c.Ensemble = true
	}
	if c.Ensemble && c.Members == 0 {
		c.Members = weather.DefaultMembers(c.Model)
		if c.Members == 0 {
			return fmt.Errorf("%w: members must be set for model %q", ErrInvalidConfig, c.Model)
		}
	}

	if c.Layout == "" {
		c.Layout = render.PresetStandard
		if c.Ensemble {
			c.Layout = render.PresetEnsemble
		}
	}
	layout, err := c.resolveLayout()
	if err != nil {
		return err
	}
	c.layout = layout

	if !c.fromNowSet && layout.Name == render.PresetStandard {
		c.FromNow = true
	}

	if len(c.Variables) == 0 {
		c.Variables = layout.Variables()
	} else if missing := common.Missing(layout.Variables(), c.Variables); len(missing) > 0 {
		return fmt.Errorf("%w: layout draws variables that are not fetched: %v", ErrInvalidConfig, missing)
	}

	for i := 1; i < len(c.MetricsBuckets); i++ {
		if c.MetricsBuckets[i] <= c.MetricsBuckets[i-1] {
			return fmt.Errorf("%w: metrics_buckets must be strictly increasing", ErrInvalidConfig)
		}
	}

	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) resolveLayout() (render.Layout, error) {
	layout, err := render.Preset(c.Layout)
	if err != nil {
		return render.Layout{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if len(c.Panels) > 0 {
		layout.Name = "custom"
		layout.Panels = c.Panels
	}
	if c.Ticks != "" {
		layout.Ticks = c.Ticks
	}
	if err := layout.Validate(); err != nil {
		return render.Layout{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return layout, nil
}

// PanelLayout is the layout resolved by Load.
func (c *Config) PanelLayout() render.Layout {
	return c.layout
}

// PipelineConfig is the per-run input handed to the refresh coordinator.
func (c *Config) PipelineConfig() weather.PipelineConfig {
	pc := weather.PipelineConfig{
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		Variables: append([]string(nil), c.Variables...),
		Timezone:  c.Timezone,
		FromNow:   c.FromNow,
	}
	if c.Ensemble {
		pc.Model = c.Model
		pc.Members = c.Members
	}
	return pc
}

// MetricsOptions maps the metrics_* keys onto the metrics manager.
func (c *Config) MetricsOptions() []metrics.Option {
	return []metrics.Option{
		metrics.WithNamespace(c.MetricsNamespace),
		metrics.WithSubsystem(c.MetricsSubsystem),
		metrics.WithHistogramBuckets(c.MetricsBuckets),
	}
}

// MirrorEnabled reports whether artifacts are also uploaded to object storage.
func (c *Config) MirrorEnabled() bool {
	return c.MirrorEndpoint != ""
}
