package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/i474232898/forecast-panels/internal/metrics"
	"github.com/i474232898/forecast-panels/internal/render"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := Load(ctx)

			convey.Convey("Then it should describe the standard forecast", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Latitude, convey.ShouldEqual, 41.97)
				convey.So(cfg.Longitude, convey.ShouldEqual, 2.38)
				convey.So(cfg.Timezone, convey.ShouldEqual, "auto")
				convey.So(cfg.RefreshInterval, convey.ShouldEqual, time.Hour)
				convey.So(cfg.Ensemble, convey.ShouldBeFalse)
				convey.So(cfg.Layout, convey.ShouldEqual, render.PresetStandard)
				convey.So(cfg.Variables, convey.ShouldResemble, render.StandardLayout().Variables())
				convey.So(cfg.PanelLayout().Name, convey.ShouldEqual, render.PresetStandard)
				convey.So(cfg.FromNow, convey.ShouldBeTrue)

				pc := cfg.PipelineConfig()
				convey.So(pc.Ensemble(), convey.ShouldBeFalse)
				convey.So(pc.FromNow, convey.ShouldBeTrue)
				convey.So(pc.Members, convey.ShouldEqual, 0)
				convey.So(cfg.MirrorEnabled(), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			vars := append(render.StandardLayout().Variables(), "snowfall")
			setEnv(map[string]string{
				"FORECAST_PANELS_ADDR":             ":9090",
				"FORECAST_PANELS_LATITUDE":         "50.1",
				"FORECAST_PANELS_LONGITUDE":        "-3.5",
				"FORECAST_PANELS_REFRESH_INTERVAL": "15m",
				"FORECAST_PANELS_FROM_NOW":         "true",
				"FORECAST_PANELS_VARIABLES":        strings.Join(vars, ","),
			})

			cfg, err := Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Latitude, convey.ShouldEqual, 50.1)
				convey.So(cfg.Longitude, convey.ShouldEqual, -3.5)
				convey.So(cfg.RefreshInterval, convey.ShouldEqual, 15*time.Minute)
				convey.So(cfg.FromNow, convey.ShouldBeTrue)
				convey.So(cfg.Variables, convey.ShouldResemble, vars)
				convey.So(cfg.PipelineConfig().Variables, convey.ShouldContain, "snowfall")
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			path := writeConfigFile(t, `
addr: ":7070"
model: icon_seamless
timezone: Europe/Madrid
panel_height: 250
`)
			setEnv(map[string]string{"FORECAST_PANELS_CONFIG": path})

			cfg, err := Load(ctx)

			convey.Convey("Then it should load from the file and derive ensemble settings", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.Timezone, convey.ShouldEqual, "Europe/Madrid")
				convey.So(cfg.PanelHeight, convey.ShouldEqual, 250)
				convey.So(cfg.Ensemble, convey.ShouldBeTrue)
				convey.So(cfg.Members, convey.ShouldEqual, 40)
				convey.So(cfg.Layout, convey.ShouldEqual, render.PresetEnsemble)
				convey.So(cfg.PipelineConfig().Model, convey.ShouldEqual, "icon_seamless")
			})

			convey.Convey("And env vars take precedence over the file", func() {
				setEnv(map[string]string{"FORECAST_PANELS_ADDR": ":6060"})

				cfg, err := Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
			})
		})

		convey.Convey("When the YAML file defines custom panels", func() {
			path := writeConfigFile(t, `
ticks: day-boundary
panels:
  - title: Temperature
    primary:
      label: "Temperature (°C)"
      traces:
        - variable: temperature_2m
          color: "#ff0000"
          width: 2
`)
			setEnv(map[string]string{"FORECAST_PANELS_CONFIG": path})

			cfg, err := Load(ctx)

			convey.Convey("Then the layout is replaced and only its variables are fetched", func() {
				convey.So(err, convey.ShouldBeNil)
				layout := cfg.PanelLayout()
				convey.So(layout.Name, convey.ShouldEqual, "custom")
				convey.So(layout.Ticks, convey.ShouldEqual, render.TicksDayBoundary)
				convey.So(layout.Panels, convey.ShouldHaveLength, 1)
				convey.So(cfg.Variables, convey.ShouldResemble, []string{"temperature_2m"})
			})
		})

		convey.Convey("When ensemble mode is enabled without a model", func() {
			setEnv(map[string]string{"FORECAST_PANELS_ENSEMBLE": "true"})

			cfg, err := Load(ctx)

			convey.Convey("Then it should use the GFS ensemble", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Model, convey.ShouldEqual, "gfs_seamless")
				convey.So(cfg.Members, convey.ShouldEqual, 31)
				convey.So(cfg.PanelLayout().Name, convey.ShouldEqual, render.PresetEnsemble)
				convey.So(cfg.PipelineConfig().Ensemble(), convey.ShouldBeTrue)
				convey.So(cfg.FromNow, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When from_now is switched off for the standard layout", func() {
			setEnv(map[string]string{"FORECAST_PANELS_FROM_NOW": "false"})

			cfg, err := Load(ctx)

			convey.Convey("Then the explicit value wins over the layout default", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Layout, convey.ShouldEqual, render.PresetStandard)
				convey.So(cfg.FromNow, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When metrics naming and buckets are configured", func() {
			setEnv(map[string]string{
				"FORECAST_PANELS_METRICS_NAMESPACE": "wx",
				"FORECAST_PANELS_METRICS_SUBSYSTEM": "panels",
				"FORECAST_PANELS_METRICS_BUCKETS":   "1,5,15",
			})

			cfg, err := Load(ctx)

			convey.Convey("Then the metrics manager is built with them", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.MetricsBuckets, convey.ShouldResemble, []float64{1, 5, 15})

				m := metrics.NewManager(cfg.MetricsOptions()...)
				families, err := m.Registry().Gather()
				convey.So(err, convey.ShouldBeNil)
				var names []string
				for _, f := range families {
					names = append(names, f.GetName())
				}
				convey.So(names, convey.ShouldContain, "wx_panels_refresh_duration_seconds")
			})
		})

		convey.Convey("When an unknown model has an explicit member count", func() {
			setEnv(map[string]string{
				"FORECAST_PANELS_MODEL":   "custom_model",
				"FORECAST_PANELS_MEMBERS": "10",
			})

			cfg, err := Load(ctx)

			convey.Convey("Then the count is kept", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Members, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading invalid configs", func() {
			cases := []struct {
				name string
				env  map[string]string
			}{
				{"latitude out of range", map[string]string{"FORECAST_PANELS_LATITUDE": "120"}},
				{"zero refresh interval", map[string]string{"FORECAST_PANELS_REFRESH_INTERVAL": "0s"}},
				{"unknown log level", map[string]string{"FORECAST_PANELS_LOG_LEVEL": "verbose"}},
				{"unknown model without members", map[string]string{"FORECAST_PANELS_MODEL": "mystery"}},
				{"unknown layout", map[string]string{"FORECAST_PANELS_LAYOUT": "mosaic"}},
				{"layout variable not fetched", map[string]string{"FORECAST_PANELS_VARIABLES": "temperature_2m"}},
				{"mirror endpoint without bucket", map[string]string{"FORECAST_PANELS_MIRROR_ENDPOINT": "localhost:9000"}},
				{"too many retries", map[string]string{"FORECAST_PANELS_FETCH_RETRIES": "11"}},
				{"malformed forecast url", map[string]string{"FORECAST_PANELS_FORECAST_URL": "not a url"}},
				{"metrics namespace with a dash", map[string]string{"FORECAST_PANELS_METRICS_NAMESPACE": "forecast-panels"}},
				{"unsorted metrics buckets", map[string]string{"FORECAST_PANELS_METRICS_BUCKETS": "5,1"}},
			}

			for _, tc := range cases {
				convey.Convey("Then "+tc.name+" is rejected", func() {
					setEnv(tc.env)

					_, err := Load(ctx)
					convey.So(errors.Is(err, ErrInvalidConfig), convey.ShouldBeTrue)
				})
			}
		})

		convey.Convey("When the config file does not exist", func() {
			setEnv(map[string]string{"FORECAST_PANELS_CONFIG": filepath.Join(t.TempDir(), "missing.yaml")})

			_, err := Load(ctx)

			convey.Convey("Then it should fail to load", func() {
				convey.So(errors.Is(err, ErrLoadConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func TestConfigGeocoding(t *testing.T) {
	convey.Convey("Given a stubbed geocoder", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		calls := 0
		original := geocode
		geocode = func(_ context.Context, city, country, _ string) (float64, float64, error) {
			calls++
			if city == "Nowhere" {
				return 0, 0, ErrGeocode
			}
			return 41.98, 2.82, nil
		}
		defer func() { geocode = original }()

		convey.Convey("When only a city is configured", func() {
			setEnv(map[string]string{
				"FORECAST_PANELS_GEOCODE_CITY":    "Girona",
				"FORECAST_PANELS_GEOCODE_COUNTRY": "Spain",
			})

			cfg, err := Load(ctx)

			convey.Convey("Then coordinates come from the geocoder", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(calls, convey.ShouldEqual, 1)
				convey.So(cfg.Latitude, convey.ShouldEqual, 41.98)
				convey.So(cfg.Longitude, convey.ShouldEqual, 2.82)
			})
		})

		convey.Convey("When coordinates are also set explicitly", func() {
			setEnv(map[string]string{
				"FORECAST_PANELS_GEOCODE_CITY": "Girona",
				"FORECAST_PANELS_LATITUDE":     "10",
			})

			cfg, err := Load(ctx)

			convey.Convey("Then the geocoder is not consulted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(calls, convey.ShouldEqual, 0)
				convey.So(cfg.Latitude, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When the city cannot be resolved", func() {
			setEnv(map[string]string{"FORECAST_PANELS_GEOCODE_CITY": "Nowhere"})

			_, err := Load(ctx)

			convey.Convey("Then loading fails", func() {
				convey.So(errors.Is(err, ErrGeocode), convey.ShouldBeTrue)
			})
		})
	})
}

func TestGoogleGeocodeRequiresKey(t *testing.T) {
	convey.Convey("Google geocoding without an API key fails before any request", t, func() {
		_, _, err := googleGeocode(context.Background(), "Girona", "Spain", "")
		convey.So(errors.Is(err, ErrGeocode), convey.ShouldBeTrue)
	})
}

func setEnv(vars map[string]string) {
	for k, v := range vars {
		_ = os.Setenv(k, v)
	}
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, envPrefix) {
			_ = os.Unsetenv(key)
		}
	}
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
